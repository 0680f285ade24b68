package evm

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/sandevgo/memchain/internal/core"
	"github.com/sandevgo/memchain/pkg/log"
)

// EventFilterer is the part of Backend needed to follow contract events.
type EventFilterer interface {
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Events streams LastMemoryHashSet logs and fans connection errors out to
// any number of independent subscribers.
type Events struct {
	backend  EventFilterer
	contract common.Address
	errFeed  event.FeedOf[error]
}

func NewEvents(backend EventFilterer, contract common.Address) *Events {
	return &Events{backend: backend, contract: contract}
}

// SubscribeAnchorLogs streams raw LastMemoryHashSet logs from the contract.
func (e *Events) SubscribeAnchorLogs(ctx context.Context, sink chan<- types.Log) (event.Subscription, error) {
	q := ethereum.FilterQuery{
		Addresses: []common.Address{e.contract},
		Topics:    [][]common.Hash{{AnchorEventID}},
	}
	sub, err := e.backend.SubscribeFilterLogs(ctx, q, sink)
	if err != nil {
		return nil, fmt.Errorf("%w: subscribe logs: %w", core.ErrTransport, err)
	}
	return sub, nil
}

// SubscribeErrors registers sink for connection errors. Unsubscribing only
// removes this sink.
func (e *Events) SubscribeErrors(sink chan<- error) event.Subscription {
	return e.errFeed.Subscribe(sink)
}

// ReportError delivers err to every error subscriber and returns how many
// received it. It blocks until each subscriber has taken the error.
func (e *Events) ReportError(err error) int {
	return e.errFeed.Send(err)
}

func (e *Events) DecodeAnchorUpdate(l types.Log) (core.AnchorUpdate, error) {
	return DecodeAnchorUpdate(l)
}

// Monitor polls the node every interval and reports failures to the error
// subscribers until ctx is done.
func (e *Events) Monitor(ctx context.Context, interval time.Duration) {
	logger := log.FromCtx(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		pingCtx, cancel := context.WithTimeout(ctx, interval)
		_, err := e.backend.BlockNumber(pingCtx)
		cancel()
		if err == nil || ctx.Err() != nil {
			continue
		}

		logger.Warn().Err(err).Msg("rpc health check failed")
		e.ReportError(fmt.Errorf("%w: %w", core.ErrTransport, err))
	}
}
