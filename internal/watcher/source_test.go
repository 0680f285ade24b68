package watcher

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/sandevgo/memchain/internal/codec"
	"github.com/sandevgo/memchain/internal/core"
	"github.com/sandevgo/memchain/internal/providers/evm"
)

var testContract = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

// fakeSource is an in-process node: logs and connection errors are pushed
// by the test.
type fakeSource struct {
	mu           sync.Mutex
	logSubs      []*fakeSub
	errSubs      []*fakeSub
	errFeed      event.FeedOf[error]
	subscribeErr error
	subscribes   int
	panicOnClose bool
	// unsubscribeDelay stalls releasing a log subscription, like
	// eth_unsubscribe on a dead connection.
	unsubscribeDelay time.Duration
	// entered and release, when set, hold SubscribeAnchorLogs open.
	entered chan struct{}
	release chan struct{}
}

type fakeSub struct {
	mu     sync.Mutex
	source *fakeSource
	sink   chan<- types.Log
	inner  event.Subscription
	err    chan error
	// releasing is set when Unsubscribe starts, closed once it is done.
	releasing bool
	closed    bool
}

func (s *fakeSub) Unsubscribe() {
	s.mu.Lock()
	if s.releasing {
		s.mu.Unlock()
		return
	}
	s.releasing = true
	s.mu.Unlock()

	if s.sink != nil && s.source.unsubscribeDelay > 0 {
		time.Sleep(s.source.unsubscribeDelay)
	}
	if s.inner != nil {
		s.inner.Unsubscribe()
	}
	if s.err != nil {
		close(s.err)
	}

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.source.mu.Lock()
	shouldPanic := s.source.panicOnClose && s.sink != nil
	s.source.mu.Unlock()
	if shouldPanic {
		panic("connection already closed")
	}
}

func (s *fakeSub) Err() <-chan error {
	if s.inner != nil {
		return s.inner.Err()
	}
	return s.err
}

func (s *fakeSub) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (f *fakeSource) SubscribeAnchorLogs(ctx context.Context, sink chan<- types.Log) (event.Subscription, error) {
	if f.release != nil {
		close(f.entered)
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribes++
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	sub := &fakeSub{source: f, sink: sink, err: make(chan error, 1)}
	f.logSubs = append(f.logSubs, sub)
	return sub, nil
}

func (f *fakeSource) SubscribeErrors(sink chan<- error) event.Subscription {
	sub := &fakeSub{source: f, inner: f.errFeed.Subscribe(sink)}
	f.mu.Lock()
	f.errSubs = append(f.errSubs, sub)
	f.mu.Unlock()
	return sub
}

func (f *fakeSource) DecodeAnchorUpdate(l types.Log) (core.AnchorUpdate, error) {
	return evm.DecodeAnchorUpdate(l)
}

func (f *fakeSource) setSubscribeErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribeErr = err
}

func (f *fakeSource) subscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribes
}

func (f *fakeSource) activeLogSubs() []*fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*fakeSub
	for _, s := range f.logSubs {
		if !s.isClosed() {
			out = append(out, s)
		}
	}
	return out
}

func (f *fakeSource) activeErrSubs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.errSubs {
		if !s.isClosed() {
			n++
		}
	}
	return n
}

// emit delivers a LastMemoryHashSet log to every live log subscription.
func (f *fakeSource) emit(agent common.Address, digest codec.Digest) {
	l, err := evm.EncodeAnchorLog(testContract, agent, digest)
	if err != nil {
		panic(err)
	}
	f.emitRaw(l)
}

func (f *fakeSource) emitRaw(l types.Log) {
	for _, sub := range f.activeLogSubs() {
		select {
		case sub.sink <- l:
		case <-time.After(time.Second):
			panic("log sink blocked")
		}
	}
}

// failConnection reports a connection error to every error listener.
func (f *fakeSource) failConnection(err error) int {
	return f.errFeed.Send(err)
}

// failSubscription fails the newest live log subscription.
func (f *fakeSource) failSubscription(err error) {
	subs := f.activeLogSubs()
	subs[len(subs)-1].err <- err
}
