// Package watcher follows pointer updates of one agent on the anchor
// contract and hands each new head CID to a callback.
//
// A Watcher keeps exactly one live log subscription. The subscription is
// rebuilt on a fixed refresh interval and after transport errors, with the
// reconnect delay taken from a retry policy. All timing goes through an
// injected clock.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/sandevgo/memchain/internal/core"
	"github.com/sandevgo/memchain/pkg/log"
	"github.com/sandevgo/memchain/pkg/retry"
)

// EventSource delivers anchor contract logs. *evm.Events implements it.
type EventSource interface {
	SubscribeAnchorLogs(ctx context.Context, sink chan<- types.Log) (event.Subscription, error)
	// SubscribeErrors registers a sink for connection errors. Each call
	// returns an independent subscription.
	SubscribeErrors(sink chan<- error) event.Subscription
	DecodeAnchorUpdate(l types.Log) (core.AnchorUpdate, error)
}

// Handler receives the agent address as emitted and the CID of its new head.
// Errors and panics are logged and never stop the watcher.
type Handler func(ctx context.Context, agent, cid string) error

// StopFunc stops a watcher. It is safe to call more than once and from
// several goroutines.
type StopFunc func()

type State int

const (
	StateIdle State = iota
	StateSubscribing
	StateActive
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubscribing:
		return "subscribing"
	case StateActive:
		return "active"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var ErrAlreadyStarted = errors.New("watcher already started")

// Stats is a snapshot of a watcher's resources.
type Stats struct {
	State           State
	Listeners       int
	ErrorListeners  int
	RefreshTimers   int
	ReconnectTimers int
	// Instances counts log subscriptions ever established.
	Instances uint64
	// Failures counts consecutive failed connection attempts.
	Failures   int
	Dispatched uint64
	Dropped    uint64
}

type Watcher struct {
	source       EventSource
	agent        string
	handler      Handler
	clock        clockwork.Clock
	refreshEvery time.Duration
	policy       *retry.Config
	queueSize    int

	// rebuildMu serializes rebuilds. It is never taken by Stop.
	rebuildMu sync.Mutex

	mu        sync.Mutex
	state     State
	stopped   bool
	gen       uint64
	instances uint64
	failures  int
	logSub    event.Subscription
	errSub    event.Subscription
	pumpQuit  chan struct{}
	refresh   clockwork.Timer
	reconnect clockwork.Timer

	dispatched uint64
	dropped    uint64

	ctx      context.Context
	cancel   context.CancelFunc
	detachFn func() bool
	logger   zerolog.Logger
	queue    chan update
	quit     chan struct{}
}

type update struct {
	agent string
	cid   string
}

func New(source EventSource, agent string, handler Handler, opts ...Option) (*Watcher, error) {
	if source == nil {
		return nil, errors.New("watcher: nil event source")
	}
	if handler == nil {
		return nil, errors.New("watcher: nil handler")
	}
	if !common.IsHexAddress(agent) {
		return nil, fmt.Errorf("watcher: invalid agent address %q", agent)
	}

	w := &Watcher{
		source:       source,
		agent:        agent,
		handler:      handler,
		clock:        clockwork.NewRealClock(),
		refreshEvery: DefaultRefreshInterval,
		policy:       retry.NewFixedConfig(DefaultReconnectDelay),
		queueSize:    DefaultQueueSize,
		quit:         make(chan struct{}),
		logger:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.queue = make(chan update, w.queueSize)
	return w, nil
}

// Watch creates and starts a watcher for agent.
func Watch(ctx context.Context, source EventSource, agent string, handler Handler, opts ...Option) (StopFunc, error) {
	w, err := New(source, agent, handler, opts...)
	if err != nil {
		return nil, err
	}
	return w.Start(ctx)
}

// Start subscribes and returns once the first subscription attempt has
// finished. A failed first attempt is retried like any transport error.
// The watcher stops when ctx is done.
func (w *Watcher) Start(ctx context.Context) (StopFunc, error) {
	w.mu.Lock()
	if w.state != StateIdle || w.stopped {
		w.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	w.ctx, w.cancel = context.WithCancel(context.WithoutCancel(ctx))
	w.logger = log.FromCtx(ctx).With().
		Str("component", "watcher").
		Str("agent", w.agent).
		Logger()
	w.state = StateSubscribing
	w.detachFn = context.AfterFunc(ctx, w.Stop)
	w.mu.Unlock()

	go w.dispatch()

	w.logger.Info().Dur("refresh", w.refreshEvery).Msg("starting memory hash watcher")
	w.rebuild("start", 0)
	return w.Stop, nil
}

// Stop tears everything down. No handler invocation starts after Stop
// returns; one already running is not waited for.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.stopLocked()
	w.logger.Info().Msg("memory hash watcher stopped")
}

func (w *Watcher) stopLocked() {
	w.stopped = true
	w.state = StateStopped
	w.teardownLocked()
	close(w.quit)
	if w.cancel != nil {
		w.cancel()
	}
	if w.detachFn != nil {
		w.detachFn()
	}
}

func (w *Watcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Stats{
		State:           w.state,
		Listeners:       count(w.logSub != nil),
		ErrorListeners:  count(w.errSub != nil),
		RefreshTimers:   count(w.refresh != nil),
		ReconnectTimers: count(w.reconnect != nil),
		Instances:       w.instances,
		Failures:        w.failures,
		Dispatched:      w.dispatched,
		Dropped:         w.dropped,
	}
}

func count(b bool) int {
	if b {
		return 1
	}
	return 0
}
