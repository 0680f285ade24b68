package watcher

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sandevgo/memchain/internal/codec"
)

func (w *Watcher) onLog(gen uint64, l types.Log) {
	u, err := w.source.DecodeAnchorUpdate(l)
	if err != nil {
		w.logger.Error().Err(err).Str("tx", l.TxHash.Hex()).Msg("error processing event data")
		return
	}
	if !strings.EqualFold(u.Agent, w.agent) {
		return
	}
	cid := codec.CIDFromDigest(u.Digest)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped || w.gen != gen {
		return
	}
	w.failures = 0

	select {
	case w.queue <- update{agent: u.Agent, cid: cid}:
	default:
		w.dropped++
		w.logger.Warn().Str("cid", cid).Uint64("dropped", w.dropped).Msg("dispatch queue full, update dropped")
	}
}

// dispatch runs the handler for queued updates one at a time, outside any
// watcher lock.
func (w *Watcher) dispatch() {
	for {
		select {
		case <-w.quit:
			return
		case u := <-w.queue:
			w.mu.Lock()
			if w.stopped {
				w.mu.Unlock()
				return
			}
			w.dispatched++
			ctx := w.ctx
			w.mu.Unlock()

			w.invoke(ctx, u)
		}
	}
}

func (w *Watcher) invoke(ctx context.Context, u update) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error().
				Str("cid", u.cid).
				Str("panic", fmt.Sprint(r)).
				Bytes("stack", debug.Stack()).
				Msg("memory hash handler panicked")
		}
	}()

	if err := w.handler(ctx, u.agent, u.cid); err != nil {
		w.logger.Error().Err(err).Str("cid", u.cid).Msg("memory hash handler failed")
		return
	}
	w.logger.Debug().Str("cid", u.cid).Msg("memory hash update dispatched")
}
