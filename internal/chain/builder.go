// Package chain appends signed records to an agent's memory chain and walks
// the chain back for verification.
package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sandevgo/memchain/internal/codec"
	"github.com/sandevgo/memchain/internal/core"
	"github.com/sandevgo/memchain/internal/signer"
	"github.com/sandevgo/memchain/pkg/log"
)

// Anchor is the subset of the anchor contract client the chain needs.
type Anchor interface {
	GetPointer(ctx context.Context, agent string) (string, error)
	SetPointer(ctx context.Context, digest codec.Digest) (core.Receipt, error)
}

type Builder struct {
	signer  core.Signer
	store   core.ContentStore
	anchor  Anchor
	journal core.RecordRepository
	clock   clockwork.Clock
	// timeout bounds each I/O step; zero leaves it to the caller's context.
	timeout time.Duration
}

type Option func(*Builder)

// WithJournal records every append in repo. Journal failures are logged and
// never change the outcome of Append.
func WithJournal(repo core.RecordRepository) Option {
	return func(b *Builder) { b.journal = repo }
}

func WithClock(c clockwork.Clock) Option {
	return func(b *Builder) { b.clock = c }
}

func WithTimeout(d time.Duration) Option {
	return func(b *Builder) { b.timeout = d }
}

func NewBuilder(s core.Signer, store core.ContentStore, anchor Anchor, opts ...Option) *Builder {
	b := &Builder{
		signer: s,
		store:  store,
		anchor: anchor,
		clock:  clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type AppendResult struct {
	CID     string            `json:"cid"`
	Digest  codec.Digest      `json:"-"`
	Receipt core.Receipt      `json:"receipt"`
	Record  core.MemoryRecord `json:"record"`
}

type appendOptions struct {
	timestamp time.Time
}

type AppendOption func(*appendOptions)

// WithTimestamp overrides the record creation time.
func WithTimestamp(ts time.Time) AppendOption {
	return func(o *appendOptions) { o.timestamp = ts }
}

// Append signs payload together with previousCID, stores the envelope and
// anchors its digest. An empty previousCID starts a new chain.
//
// A store failure returns core.ErrStorage and nothing is anchored. An anchor
// failure returns core.ErrAnchor; the stored record is left as an orphan and
// its CID is still reported in the result.
func (b *Builder) Append(ctx context.Context, payload json.RawMessage, previousCID string, opts ...AppendOption) (AppendResult, error) {
	var o appendOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.timestamp.IsZero() {
		o.timestamp = b.clock.Now()
	}

	logger := log.FromCtx(ctx)

	rec := core.MemoryRecord{
		Payload:     payload,
		PreviousCID: previousCID,
		Timestamp:   o.timestamp.UTC().Truncate(time.Millisecond),
	}
	if err := b.step(ctx, func(ctx context.Context) error {
		return signer.SignRecord(ctx, b.signer, &rec)
	}); err != nil {
		return AppendResult{}, fmt.Errorf("sign record: %w", err)
	}

	data, err := EncodeRecord(rec)
	if err != nil {
		return AppendResult{}, err
	}

	var cid string
	err = b.step(ctx, func(ctx context.Context) error {
		var putErr error
		cid, putErr = b.store.Put(ctx, data, core.ObjectMeta{
			Name:     "agent-memory-" + rec.Timestamp.Format(core.TimestampLayout) + ".json",
			MimeType: "application/json",
		})
		return putErr
	})
	if err != nil {
		return AppendResult{}, fmt.Errorf("%w: %w", core.ErrStorage, err)
	}

	digest, err := codec.DigestFromCID(cid)
	if err != nil {
		return AppendResult{}, fmt.Errorf("%w: store returned unusable cid: %w", core.ErrStorage, err)
	}

	result := AppendResult{CID: cid, Digest: digest, Record: rec}
	b.journalSave(ctx, core.RecordEntry{
		ID:          uuid.NewString(),
		CID:         cid,
		Digest:      digest.Hex(),
		PreviousCID: previousCID,
		Status:      core.RecordStored,
	})

	logger.Info().
		Str("cid", cid).
		Str("digest", digest.Hex()).
		Str("previous_cid", previousCID).
		Msg("setting last memory hash")

	err = b.step(ctx, func(ctx context.Context) error {
		var setErr error
		result.Receipt, setErr = b.anchor.SetPointer(ctx, digest)
		return setErr
	})
	if err != nil {
		b.journalStatus(ctx, cid, core.RecordOrphaned, "")
		return result, fmt.Errorf("%w: record %s stored but not anchored: %w", core.ErrAnchor, cid, err)
	}

	b.journalStatus(ctx, cid, core.RecordAnchored, result.Receipt.TxHash)
	logger.Info().
		Str("cid", cid).
		Str("tx", result.Receipt.TxHash).
		Msg("memory record anchored")
	return result, nil
}

// AppendNext appends payload after the signer's current head. An agent
// without a pointer gets a genesis record.
func (b *Builder) AppendNext(ctx context.Context, payload json.RawMessage, opts ...AppendOption) (AppendResult, error) {
	var head string
	err := b.step(ctx, func(ctx context.Context) error {
		var getErr error
		head, getErr = b.anchor.GetPointer(ctx, b.signer.Address())
		return getErr
	})
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return AppendResult{}, fmt.Errorf("read head: %w", err)
	}
	return b.Append(ctx, payload, head, opts...)
}

// Agent is the address records are signed and anchored for.
func (b *Builder) Agent() string {
	return b.signer.Address()
}

func (b *Builder) step(ctx context.Context, fn func(context.Context) error) error {
	if b.timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return fn(ctx)
}

func (b *Builder) journalSave(ctx context.Context, entry core.RecordEntry) {
	if b.journal == nil {
		return
	}
	if err := b.journal.SaveRecord(ctx, entry); err != nil {
		log.FromCtx(ctx).Warn().Err(err).Str("cid", entry.CID).Msg("failed to journal record")
	}
}

func (b *Builder) journalStatus(ctx context.Context, cid string, status core.RecordStatus, txHash string) {
	if b.journal == nil {
		return
	}
	if err := b.journal.UpdateRecordStatus(ctx, cid, status, txHash); err != nil {
		log.FromCtx(ctx).Warn().Err(err).Str("cid", cid).Str("status", string(status)).Msg("failed to update journal")
	}
}
