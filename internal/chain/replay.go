package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/sandevgo/memchain/internal/codec"
	"github.com/sandevgo/memchain/internal/core"
	"github.com/sandevgo/memchain/internal/signer"
	"github.com/sandevgo/memchain/pkg/log"
)

const DefaultMaxDepth = 10_000

// Link is one verified record of a replayed chain.
type Link struct {
	CID    string
	Record core.MemoryRecord
}

// Replayer walks a chain backward from a head CID to its genesis record,
// checking every signature against the agent address.
type Replayer struct {
	store    core.ContentStore
	anchor   Anchor
	maxDepth int
}

type ReplayOption func(*Replayer)

func WithMaxDepth(n int) ReplayOption {
	return func(r *Replayer) { r.maxDepth = n }
}

func NewReplayer(store core.ContentStore, anchor Anchor, opts ...ReplayOption) *Replayer {
	r := &Replayer{
		store:    store,
		anchor:   anchor,
		maxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReplayFromHead replays the chain currently anchored for agent.
func (r *Replayer) ReplayFromHead(ctx context.Context, agent string) ([]Link, error) {
	head, err := r.anchor.GetPointer(ctx, agent)
	if err != nil {
		return nil, err
	}
	return r.Replay(ctx, head, agent)
}

// Replay returns the chain from head back to genesis, newest first. Links
// are compared by digest, so the same record reached through CIDs with
// different codecs counts as one.
func (r *Replayer) Replay(ctx context.Context, head, agent string) ([]Link, error) {
	logger := log.FromCtx(ctx)

	var links []Link
	seen := make(map[codec.Digest]struct{})

	for cid := head; cid != ""; {
		if err := ctx.Err(); err != nil {
			return links, err
		}
		if len(links) >= r.maxDepth {
			return links, fmt.Errorf("%w: deeper than %d records", core.ErrBrokenChain, r.maxDepth)
		}

		digest, err := codec.DigestFromCID(cid)
		if err != nil {
			return links, fmt.Errorf("%w: link %d: %w", core.ErrBrokenChain, len(links), err)
		}
		if _, ok := seen[digest]; ok {
			return links, fmt.Errorf("%w: cycle at %s", core.ErrBrokenChain, cid)
		}
		seen[digest] = struct{}{}

		data, err := r.store.Get(ctx, cid)
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				return links, fmt.Errorf("%w: record %s is missing", core.ErrBrokenChain, cid)
			}
			if errors.Is(err, core.ErrIntegrity) {
				return links, fmt.Errorf("%w: %w", core.ErrBrokenChain, err)
			}
			return links, fmt.Errorf("%w: %w", core.ErrStorage, err)
		}
		if got := codec.Sum(data); got != digest && codec.IsRawCID(cid) {
			return links, fmt.Errorf("%w: content of %s hashes to %s", core.ErrBrokenChain, cid, got.Hex())
		}

		rec, err := DecodeRecord(data)
		if err != nil {
			return links, fmt.Errorf("record %s: %w", cid, err)
		}
		if err := signer.VerifyRecord(rec, agent); err != nil {
			return links, fmt.Errorf("record %s: %w", cid, err)
		}

		logger.Debug().
			Str("cid", cid).
			Str("previous_cid", rec.PreviousCID).
			Msg("record verified")

		links = append(links, Link{CID: cid, Record: rec})
		cid = rec.PreviousCID
	}
	return links, nil
}
