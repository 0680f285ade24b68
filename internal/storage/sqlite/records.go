package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sandevgo/memchain/internal/core"
)

// RecordsRepo is the local journal of appended records.
type RecordsRepo struct {
	db  *sql.DB
	now func() time.Time
}

var _ core.RecordRepository = (*RecordsRepo)(nil)

func NewRecordsRepo(db *sql.DB) *RecordsRepo {
	return &RecordsRepo{db: db, now: time.Now}
}

func (r *RecordsRepo) SaveRecord(ctx context.Context, entry core.RecordEntry) error {
	now := r.now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}

	// A record re-appended with identical content keeps its original row.
	query := `
		INSERT INTO records (id, cid, digest, previous_cid, tx_hash, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cid) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at`
	_, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.CID, entry.Digest, entry.PreviousCID, entry.TxHash,
		string(entry.Status), entry.CreatedAt.UTC(), now,
	)
	if err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	return nil
}

func (r *RecordsRepo) UpdateRecordStatus(ctx context.Context, cid string, status core.RecordStatus, txHash string) error {
	query := `
		UPDATE records
		SET status = ?, tx_hash = CASE WHEN ? = '' THEN tx_hash ELSE ? END, updated_at = ?
		WHERE cid = ?`
	res, err := r.db.ExecContext(ctx, query, string(status), txHash, txHash, r.now().UTC(), cid)
	if err != nil {
		return fmt.Errorf("failed to update record status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("record %s: %w", cid, core.ErrNotFound)
	}
	return nil
}

func (r *RecordsRepo) GetRecord(ctx context.Context, cid string) (core.RecordEntry, error) {
	query := `
		SELECT id, cid, digest, previous_cid, tx_hash, status, created_at, updated_at
		FROM records WHERE cid = ?`
	entry, err := scanRecord(r.db.QueryRowContext(ctx, query, cid))
	if errors.Is(err, sql.ErrNoRows) {
		return core.RecordEntry{}, fmt.Errorf("record %s: %w", cid, core.ErrNotFound)
	}
	if err != nil {
		return core.RecordEntry{}, fmt.Errorf("failed to get record: %w", err)
	}
	return entry, nil
}

// ListRecords returns entries oldest first. An empty status matches all
// entries and a non-positive limit means no limit.
func (r *RecordsRepo) ListRecords(ctx context.Context, status core.RecordStatus, limit int) ([]core.RecordEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `
		SELECT id, cid, digest, previous_cid, tx_hash, status, created_at, updated_at
		FROM records
		WHERE ? = '' OR status = ?
		ORDER BY created_at ASC, rowid ASC
		LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, string(status), string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var entries []core.RecordEntry
	for rows.Next() {
		entry, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (core.RecordEntry, error) {
	var entry core.RecordEntry
	var status string
	err := s.Scan(
		&entry.ID, &entry.CID, &entry.Digest, &entry.PreviousCID, &entry.TxHash,
		&status, &entry.CreatedAt, &entry.UpdatedAt,
	)
	entry.Status = core.RecordStatus(status)
	return entry, err
}
