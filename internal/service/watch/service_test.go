package watch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sandevgo/memchain/internal/codec"
	"github.com/sandevgo/memchain/internal/core"
	"github.com/sandevgo/memchain/internal/storage/sqlite"
	"github.com/sandevgo/memchain/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	agentA = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	agentB = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	other  = "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"
)

type recordingNotifier struct {
	mu      sync.Mutex
	updates []core.ObservedUpdate
	err     error
}

func (n *recordingNotifier) NotifyUpdate(ctx context.Context, u core.ObservedUpdate) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updates = append(n.updates, u)
	return n.err
}

func (n *recordingNotifier) seen() []core.ObservedUpdate {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]core.ObservedUpdate(nil), n.updates...)
}

type countingMonitor struct {
	mu    sync.Mutex
	calls int
}

func (m *countingMonitor) Monitor(ctx context.Context, interval time.Duration) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	<-ctx.Done()
}

func (m *countingMonitor) started() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type fixture struct {
	source   *testutil.FeedSource
	repo     *sqlite.ObservationsRepo
	notifier *recordingNotifier
	monitor  *countingMonitor
	service  *Service
	cancel   context.CancelFunc
	done     chan error
}

func startService(t *testing.T, agents ...string) *fixture {
	t.Helper()
	db, err := sqlite.NewDB(context.Background(), sqlite.InMemory)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	f := &fixture{
		source:   testutil.NewFeedSource(),
		repo:     sqlite.NewObservationsRepo(db),
		notifier: &recordingNotifier{},
		monitor:  &countingMonitor{},
		done:     make(chan error, 1),
	}
	f.service = NewService(f.source, agents, f.repo,
		WithNotifier(f.notifier),
		WithHealthMonitor(f.monitor, time.Minute),
		WithClock(clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))),
	)

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	go func() { f.done <- f.service.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-f.done
	})

	require.Eventually(t, func() bool { return f.source.Subscribes() == len(agents) }, time.Second, 5*time.Millisecond)
	return f
}

func TestService_RecordsAndNotifies(t *testing.T) {
	f := startService(t, agentA, agentB)
	digest := codec.Sum([]byte("record one"))

	// Both watchers hold a subscription and receive the log.
	assert.Equal(t, 2, f.source.Emit(agentA, digest))

	require.Eventually(t, func() bool { return len(f.notifier.seen()) == 1 }, time.Second, 5*time.Millisecond)
	u := f.notifier.seen()[0]
	assert.Equal(t, codec.CIDFromDigest(digest), u.CID)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), u.ObservedAt)

	last, err := f.repo.LastObservation(context.Background(), agentA)
	require.NoError(t, err)
	assert.Equal(t, u.CID, last.CID)

	_, err = f.repo.LastObservation(context.Background(), agentB)
	assert.ErrorIs(t, err, core.ErrNotFound)

	stats := f.service.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, uint64(1), stats[strings.ToLower(agentA)].Dispatched)
	assert.Zero(t, stats[strings.ToLower(agentB)].Dispatched)

	assert.Eventually(t, func() bool { return f.monitor.started() == 1 }, time.Second, 5*time.Millisecond)
}

func TestService_SkipsRepeatedHead(t *testing.T) {
	f := startService(t, agentA)
	digest := codec.Sum([]byte("same"))

	f.source.Emit(agentA, digest)
	require.Eventually(t, func() bool { return len(f.notifier.seen()) == 1 }, time.Second, 5*time.Millisecond)

	f.source.Emit(agentA, digest)
	f.source.Emit(agentA, codec.Sum([]byte("next")))
	require.Eventually(t, func() bool { return len(f.notifier.seen()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, codec.CIDFromDigest(codec.Sum([]byte("next"))), f.notifier.seen()[1].CID)
}

func TestService_IgnoresOtherAgents(t *testing.T) {
	f := startService(t, agentA)

	f.source.Emit(other, codec.Sum([]byte("x")))
	f.source.Emit(agentA, codec.Sum([]byte("y")))

	require.Eventually(t, func() bool { return len(f.notifier.seen()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, codec.CIDFromDigest(codec.Sum([]byte("y"))), f.notifier.seen()[0].CID)
}

func TestService_NotifierErrorDoesNotStopWatching(t *testing.T) {
	f := startService(t, agentA)
	f.notifier.mu.Lock()
	f.notifier.err = errors.New("telegram down")
	f.notifier.mu.Unlock()

	f.source.Emit(agentA, codec.Sum([]byte("1")))
	f.source.Emit(agentA, codec.Sum([]byte("2")))
	require.Eventually(t, func() bool { return len(f.notifier.seen()) == 2 }, time.Second, 5*time.Millisecond)
}

func TestService_StopsWithContext(t *testing.T) {
	f := startService(t, agentA)
	f.cancel()

	select {
	case err := <-f.done:
		require.NoError(t, err)
		f.done <- nil
	case <-time.After(time.Second):
		t.Fatal("service did not stop")
	}
	for _, st := range f.service.Stats() {
		assert.Equal(t, "stopped", st.State.String())
		assert.Zero(t, st.Listeners)
	}
}

func TestService_InvalidAgent(t *testing.T) {
	s := NewService(testutil.NewFeedSource(), []string{agentA, "nope"}, nil)
	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
	for _, st := range s.Stats() {
		assert.Equal(t, "stopped", st.State.String())
	}
}

func TestService_NoAgents(t *testing.T) {
	err := NewService(testutil.NewFeedSource(), nil, nil).Start(context.Background())
	assert.Error(t, err)
}
