package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/sandevgo/memchain/internal/codec"
	"github.com/sandevgo/memchain/internal/core"
	"github.com/sandevgo/memchain/pkg/log"
)

// Reconciler re-anchors records that were stored but never anchored.
// It runs only when asked; Append itself never rolls back or retries.
type Reconciler struct {
	anchor  Anchor
	journal core.RecordRepository
}

func NewReconciler(anchor Anchor, journal core.RecordRepository) *Reconciler {
	return &Reconciler{anchor: anchor, journal: journal}
}

type SweepReport struct {
	Anchored  []string `json:"anchored"`
	Abandoned []string `json:"abandoned"`
}

// Sweep walks orphaned journal entries oldest first. An orphan whose
// previous CID is the current head is anchored and becomes the new head;
// any other orphan can no longer extend the chain and is marked abandoned.
// The sweep stops at the first anchoring failure.
func (r *Reconciler) Sweep(ctx context.Context, agent string) (SweepReport, error) {
	var report SweepReport
	logger := log.FromCtx(ctx)

	orphans, err := r.journal.ListRecords(ctx, core.RecordOrphaned, 0)
	if err != nil {
		return report, fmt.Errorf("list orphans: %w", err)
	}
	if len(orphans) == 0 {
		return report, nil
	}

	head, err := r.anchor.GetPointer(ctx, agent)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return report, fmt.Errorf("read head: %w", err)
	}

	for _, orphan := range orphans {
		if !sameRecord(orphan.PreviousCID, head) {
			if err := r.journal.UpdateRecordStatus(ctx, orphan.CID, core.RecordAbandoned, ""); err != nil {
				return report, fmt.Errorf("abandon %s: %w", orphan.CID, err)
			}
			report.Abandoned = append(report.Abandoned, orphan.CID)
			logger.Info().
				Str("cid", orphan.CID).
				Str("previous_cid", orphan.PreviousCID).
				Str("head", head).
				Msg("orphan no longer extends head, abandoned")
			continue
		}

		digest, err := codec.DigestFromCID(orphan.CID)
		if err != nil {
			return report, fmt.Errorf("orphan %s: %w", orphan.CID, err)
		}
		receipt, err := r.anchor.SetPointer(ctx, digest)
		if err != nil {
			return report, fmt.Errorf("%w: re-anchor %s: %w", core.ErrAnchor, orphan.CID, err)
		}
		if err := r.journal.UpdateRecordStatus(ctx, orphan.CID, core.RecordAnchored, receipt.TxHash); err != nil {
			logger.Warn().Err(err).Str("cid", orphan.CID).Msg("failed to update journal")
		}

		report.Anchored = append(report.Anchored, orphan.CID)
		head = orphan.CID
		logger.Info().
			Str("cid", orphan.CID).
			Str("tx", receipt.TxHash).
			Msg("orphan re-anchored")
	}
	return report, nil
}

// sameRecord compares CIDs by digest; the ledger only ever hands back
// dag-pb CIDs while stores may return other codecs.
func sameRecord(a, b string) bool {
	if a == "" || b == "" {
		return a == b
	}
	if a == b {
		return true
	}
	da, err := codec.DigestFromCID(a)
	if err != nil {
		return false
	}
	db, err := codec.DigestFromCID(b)
	if err != nil {
		return false
	}
	return da == db
}
