package evm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sandevgo/memchain/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvents_SubscribeAnchorLogs(t *testing.T) {
	backend := newFakeBackend()
	events := NewEvents(backend, testContract)

	sink := make(chan types.Log, 1)
	sub, err := events.SubscribeAnchorLogs(context.Background(), sink)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.Len(t, backend.queries, 1)
	q := backend.queries[0]
	assert.Equal(t, []common.Address{testContract}, q.Addresses)
	assert.Equal(t, [][]common.Hash{{AnchorEventID}}, q.Topics)
}

func TestEvents_SubscribeAnchorLogsFailure(t *testing.T) {
	backend := newFakeBackend()
	backend.subscribeErr = errors.New("notifications not supported")
	events := NewEvents(backend, testContract)

	_, err := events.SubscribeAnchorLogs(context.Background(), make(chan types.Log))
	assert.ErrorIs(t, err, core.ErrTransport)
}

func TestEvents_ErrorSubscriptionsAreIndependent(t *testing.T) {
	events := NewEvents(newFakeBackend(), testContract)

	a := make(chan error, 1)
	b := make(chan error, 1)
	subA := events.SubscribeErrors(a)
	subB := events.SubscribeErrors(b)
	defer subB.Unsubscribe()

	subA.Unsubscribe()

	boom := errors.New("socket closed")
	assert.Equal(t, 1, events.ReportError(boom))
	assert.Equal(t, boom, <-b)
	assert.Empty(t, a)
}

func TestEvents_MonitorReportsFailures(t *testing.T) {
	backend := newFakeBackend()
	backend.blockErr = errors.New("connection reset")
	events := NewEvents(backend, testContract)

	errs := make(chan error, 1)
	sub := events.SubscribeErrors(errs)
	defer sub.Unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		events.Monitor(ctx, 5*time.Millisecond)
		close(done)
	}()

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, core.ErrTransport)
	case <-time.After(2 * time.Second):
		t.Fatal("no error reported")
	}

	cancel()
	// Unsubscribing releases a report blocked in Send.
	sub.Unsubscribe()
	<-done
}
