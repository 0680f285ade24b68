package watcher

import (
	"errors"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
)

const logBuffer = 16

var errSubscriptionClosed = errors.New("log subscription closed")

// rebuild replaces the current subscription with a fresh one. expect is the
// generation the caller observed; a rebuild requested for an older
// generation is dropped.
func (w *Watcher) rebuild(reason string, expect uint64) {
	w.rebuildMu.Lock()
	defer w.rebuildMu.Unlock()

	w.mu.Lock()
	if w.stopped || w.gen != expect {
		w.mu.Unlock()
		return
	}
	w.teardownLocked()
	w.state = StateSubscribing
	w.gen++
	gen := w.gen
	ctx := w.ctx
	w.mu.Unlock()

	w.logger.Debug().Str("reason", reason).Uint64("generation", gen).Msg("subscribing to memory hash updates")

	logs := make(chan types.Log, logBuffer)
	errs := make(chan error, 1)
	errSub := w.source.SubscribeErrors(errs)
	logSub, err := w.source.SubscribeAnchorLogs(ctx, logs)

	w.mu.Lock()
	defer w.mu.Unlock()

	if err != nil {
		w.releaseLater(released{"errors", errSub})
		if w.stopped {
			return
		}
		w.logger.Warn().Err(err).Uint64("generation", gen).Msg("subscribe failed")
		w.scheduleReconnectLocked()
		return
	}
	if w.stopped {
		w.releaseLater(released{"logs", logSub}, released{"errors", errSub})
		return
	}

	quit := make(chan struct{})
	w.logSub = logSub
	w.errSub = errSub
	w.pumpQuit = quit
	w.instances++
	w.state = StateActive
	w.refresh = w.clock.AfterFunc(w.refreshEvery, func() { w.onRefresh(gen) })

	go w.pump(gen, quit, logs, logSub.Err(), errs)

	w.logger.Info().Str("reason", reason).Uint64("generation", gen).Msg("memory hash listener attached")
}

// teardownLocked detaches the subscription and stops all timers. It is
// idempotent. The detached subscriptions are released in the background:
// releasing an RPC subscription waits on eth_unsubscribe, which hangs on a
// dead connection and must not hold w.mu.
func (w *Watcher) teardownLocked() {
	if w.pumpQuit != nil {
		close(w.pumpQuit)
		w.pumpQuit = nil
	}
	var subs []released
	if w.logSub != nil {
		subs = append(subs, released{"logs", w.logSub})
		w.logSub = nil
	}
	if w.errSub != nil {
		subs = append(subs, released{"errors", w.errSub})
		w.errSub = nil
	}
	w.releaseLater(subs...)
	if w.refresh != nil {
		w.refresh.Stop()
		w.refresh = nil
	}
	if w.reconnect != nil {
		w.reconnect.Stop()
		w.reconnect = nil
	}
}

type released struct {
	kind string
	sub  event.Subscription
}

func (w *Watcher) releaseLater(subs ...released) {
	if len(subs) == 0 {
		return
	}
	go func() {
		for _, r := range subs {
			w.unsubscribe(r.kind, r.sub)
		}
	}()
}

// unsubscribe tolerates subscriptions that fail or panic when released, as
// happens after the underlying connection is gone.
func (w *Watcher) unsubscribe(kind string, sub event.Subscription) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Debug().Interface("panic", r).Str("subscription", kind).Msg("failed to remove listener")
		}
	}()
	sub.Unsubscribe()
}

func (w *Watcher) onRefresh(gen uint64) {
	w.mu.Lock()
	if w.stopped || w.gen != gen {
		w.mu.Unlock()
		return
	}
	// The subscription lived a full interval.
	w.failures = 0
	w.mu.Unlock()

	w.logger.Debug().Uint64("generation", gen).Msg("refreshing event listener")
	w.rebuild("refresh", gen)
}

func (w *Watcher) onTransportError(gen uint64, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped || w.gen != gen || w.state != StateActive {
		return
	}

	w.logger.Error().Err(err).Uint64("generation", gen).Msg("provider error, attempting to reconnect")
	w.teardownLocked()
	w.state = StateSubscribing
	w.scheduleReconnectLocked()
}

func (w *Watcher) scheduleReconnectLocked() {
	if w.policy.Exhausted(w.failures) {
		w.logger.Error().Int("attempts", w.failures).Msg("reconnect attempts exhausted, stopping watcher")
		w.stopLocked()
		return
	}

	delay := w.policy.Delay(w.failures)
	w.failures++
	gen := w.gen
	w.reconnect = w.clock.AfterFunc(delay, func() { w.rebuild("reconnect", gen) })

	w.logger.Info().Dur("delay", delay).Int("attempt", w.failures).Msg("reconnect scheduled")
}

// pump forwards one subscription's logs and errors until it is torn down.
func (w *Watcher) pump(gen uint64, quit <-chan struct{}, logs <-chan types.Log, subErr <-chan error, errs <-chan error) {
	for {
		select {
		case <-quit:
			return
		case l := <-logs:
			w.onLog(gen, l)
		case err, ok := <-subErr:
			if !ok || err == nil {
				// Also closed by our own Unsubscribe, which
				// onTransportError ignores.
				err = errSubscriptionClosed
			}
			w.onTransportError(gen, err)
			return
		case err := <-errs:
			w.onTransportError(gen, err)
			return
		}
	}
}
