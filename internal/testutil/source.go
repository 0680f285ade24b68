package testutil

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/sandevgo/memchain/internal/codec"
	"github.com/sandevgo/memchain/internal/core"
	"github.com/sandevgo/memchain/internal/providers/evm"
)

// FeedSource is an in-process event source for the anchor contract. Logs
// are encoded exactly as the contract emits them.
type FeedSource struct {
	Contract common.Address

	mu         sync.Mutex
	logs       event.FeedOf[types.Log]
	errs       event.FeedOf[error]
	subscribes int
}

func NewFeedSource() *FeedSource {
	return &FeedSource{Contract: common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")}
}

func (s *FeedSource) SubscribeAnchorLogs(ctx context.Context, sink chan<- types.Log) (event.Subscription, error) {
	s.mu.Lock()
	s.subscribes++
	s.mu.Unlock()
	return s.logs.Subscribe(sink), nil
}

func (s *FeedSource) SubscribeErrors(sink chan<- error) event.Subscription {
	return s.errs.Subscribe(sink)
}

func (s *FeedSource) DecodeAnchorUpdate(l types.Log) (core.AnchorUpdate, error) {
	return evm.DecodeAnchorUpdate(l)
}

// Emit publishes a pointer update and returns the number of live log
// subscribers that received it.
func (s *FeedSource) Emit(agent string, digest codec.Digest) int {
	l, err := evm.EncodeAnchorLog(s.Contract, common.HexToAddress(agent), digest)
	if err != nil {
		panic(err)
	}
	return s.logs.Send(l)
}

// Fail reports a transport error to every error subscriber.
func (s *FeedSource) Fail(err error) int {
	return s.errs.Send(err)
}

func (s *FeedSource) Subscribes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribes
}
