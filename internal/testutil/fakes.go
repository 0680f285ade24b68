// Package testutil holds in-memory collaborators shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sandevgo/memchain/internal/codec"
	"github.com/sandevgo/memchain/internal/core"
)

// MemoryStore is a deduplicating content store keyed by the BLAKE3 CID of
// the bytes. Set PutErr or GetErr to inject failures.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	Puts    int
	PutErr  error
	GetErr  error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func (s *MemoryStore) Put(ctx context.Context, data []byte, meta core.ObjectMeta) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PutErr != nil {
		return "", s.PutErr
	}
	s.Puts++
	cid := codec.CIDForBytes(data)
	s.objects[cid] = append([]byte(nil), data...)
	return cid, nil
}

func (s *MemoryStore) Get(ctx context.Context, cid string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetErr != nil {
		return nil, s.GetErr
	}
	data, ok := s.objects[cid]
	if !ok {
		// The ledger only knows the canonical dag-pb CID; fall back to
		// matching by digest.
		want, err := codec.DigestFromCID(cid)
		if err != nil {
			return nil, fmt.Errorf("object %s: %w", cid, core.ErrNotFound)
		}
		for stored, d := range s.objects {
			if got, _ := codec.DigestFromCID(stored); got == want {
				return d, nil
			}
		}
		return nil, fmt.Errorf("object %s: %w", cid, core.ErrNotFound)
	}
	return data, nil
}

// MemoryLedger mimics the anchor contract for a single sender.
type MemoryLedger struct {
	mu       sync.Mutex
	sender   string
	pointers map[string]codec.Digest
	txs      int
	Writes   int
	SetErr   error
	GetErr   error
}

func NewMemoryLedger(sender string) *MemoryLedger {
	return &MemoryLedger{
		sender:   strings.ToLower(sender),
		pointers: make(map[string]codec.Digest),
	}
}

func (l *MemoryLedger) LastDigest(ctx context.Context, agent string) (codec.Digest, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.GetErr != nil {
		return codec.Digest{}, l.GetErr
	}
	return l.pointers[strings.ToLower(agent)], nil
}

func (l *MemoryLedger) SetLastDigest(ctx context.Context, digest codec.Digest) (core.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.SetErr != nil {
		return core.Receipt{}, l.SetErr
	}
	l.Writes++
	l.txs++
	l.pointers[l.sender] = digest
	return core.Receipt{
		TxHash:      common.BigToHash(big.NewInt(int64(l.txs))).Hex(),
		BlockNumber: uint64(l.txs),
		GasUsed:     21000,
	}, nil
}

// MemoryJournal is a core.RecordRepository backed by a map. Entries are
// listed in insertion order.
type MemoryJournal struct {
	mu      sync.Mutex
	order   []string
	entries map[string]core.RecordEntry
	SaveErr error
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{entries: make(map[string]core.RecordEntry)}
}

func (j *MemoryJournal) SaveRecord(ctx context.Context, entry core.RecordEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.SaveErr != nil {
		return j.SaveErr
	}
	if _, ok := j.entries[entry.CID]; !ok {
		j.order = append(j.order, entry.CID)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	entry.UpdatedAt = entry.CreatedAt
	j.entries[entry.CID] = entry
	return nil
}

func (j *MemoryJournal) UpdateRecordStatus(ctx context.Context, cid string, status core.RecordStatus, txHash string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	entry, ok := j.entries[cid]
	if !ok {
		return fmt.Errorf("record %s: %w", cid, core.ErrNotFound)
	}
	entry.Status = status
	if txHash != "" {
		entry.TxHash = txHash
	}
	entry.UpdatedAt = time.Now()
	j.entries[cid] = entry
	return nil
}

func (j *MemoryJournal) GetRecord(ctx context.Context, cid string) (core.RecordEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	entry, ok := j.entries[cid]
	if !ok {
		return core.RecordEntry{}, fmt.Errorf("record %s: %w", cid, core.ErrNotFound)
	}
	return entry, nil
}

func (j *MemoryJournal) ListRecords(ctx context.Context, status core.RecordStatus, limit int) ([]core.RecordEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []core.RecordEntry
	for _, cid := range j.order {
		entry := j.entries[cid]
		if status != "" && entry.Status != status {
			continue
		}
		out = append(out, entry)
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
