package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/sandevgo/memchain/internal/codec"
	"github.com/sandevgo/memchain/internal/core"
	"github.com/sandevgo/memchain/pkg/log"
)

// BlobStore is a local content store. Objects are keyed by the raw-codec
// BLAKE3 CID of their bytes and can also be fetched by any other CID that
// carries the same digest, such as the dag-pb CID read back from the ledger.
type BlobStore struct {
	db *sql.DB
}

var _ core.ContentStore = (*BlobStore)(nil)

func NewBlobStore(db *sql.DB) *BlobStore {
	return &BlobStore{db: db}
}

func (s *BlobStore) Put(ctx context.Context, data []byte, meta core.ObjectMeta) (string, error) {
	cid := codec.CIDForBytes(data)
	query := `INSERT OR IGNORE INTO blobs (cid, digest, name, mime_type, data) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, cid, digestKey(codec.Sum(data)), meta.Name, meta.MimeType, data); err != nil {
		return "", fmt.Errorf("failed to store blob: %w", err)
	}
	log.FromCtx(ctx).Debug().Str("cid", cid).Int("size", len(data)).Msg("blob stored")
	return cid, nil
}

// Get returns the object addressed by cid. The bytes must hash to the
// digest cid carries, whichever CID form was used to ask.
func (s *BlobStore) Get(ctx context.Context, cid string) ([]byte, error) {
	digest, err := codec.DigestFromCID(cid)
	if err != nil {
		return nil, fmt.Errorf("blob %s: %w", cid, core.ErrNotFound)
	}

	var data []byte
	err = s.db.QueryRowContext(ctx, `SELECT data FROM blobs WHERE cid = ?`, cid).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		err = s.db.QueryRowContext(ctx, `SELECT data FROM blobs WHERE digest = ? LIMIT 1`, digestKey(digest)).Scan(&data)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("blob %s: %w", cid, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	if got := codec.Sum(data); got != digest {
		return nil, fmt.Errorf("blob %s: %w: stored bytes hash to %s", cid, core.ErrIntegrity, got.Hex())
	}
	return data, nil
}

// Corrupted lists the CIDs whose stored bytes no longer hash to their digest.
func (s *BlobStore) Corrupted(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT cid FROM blobs WHERE blake3(data) != digest ORDER BY cid`)
	if err != nil {
		return nil, fmt.Errorf("failed to check blobs: %w", err)
	}
	defer rows.Close()

	var cids []string
	for rows.Next() {
		var cid string
		if err := rows.Scan(&cid); err != nil {
			return nil, err
		}
		cids = append(cids, cid)
	}
	return cids, rows.Err()
}

// digestKey matches the output of the blake3 SQL function.
func digestKey(d codec.Digest) string {
	return strings.TrimPrefix(d.Hex(), "0x")
}
