package watcher

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sandevgo/memchain/pkg/retry"
)

const (
	DefaultRefreshInterval = 4 * time.Minute
	DefaultReconnectDelay  = 5 * time.Second
	DefaultQueueSize       = 64
)

type Option func(*Watcher)

func WithClock(c clockwork.Clock) Option {
	return func(w *Watcher) { w.clock = c }
}

// WithRefreshInterval sets how often the subscription is torn down and
// rebuilt even when it looks healthy.
func WithRefreshInterval(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.refreshEvery = d
		}
	}
}

// WithReconnectPolicy sets the delays between reconnect attempts. A policy
// with a finite MaxRetries stops the watcher once that many consecutive
// attempts have failed.
func WithReconnectPolicy(policy *retry.Config) Option {
	return func(w *Watcher) {
		if policy != nil {
			w.policy = policy
		}
	}
}

// WithQueueSize bounds the number of updates waiting for the handler.
// Updates arriving while the queue is full are dropped and counted.
func WithQueueSize(n int) Option {
	return func(w *Watcher) {
		if n > 0 {
			w.queueSize = n
		}
	}
}
