package core

import (
	"context"

	"github.com/sandevgo/memchain/internal/codec"
)

// ContentStore is a content-addressed blob store.
type ContentStore interface {
	Put(ctx context.Context, data []byte, meta ObjectMeta) (string, error)
	Get(ctx context.Context, cid string) ([]byte, error)
}

// Signer holds the agent key.
type Signer interface {
	// Address is the 0x-hex account address of the key.
	Address() string
	// Sign returns a 0x-hex signature over message.
	Sign(ctx context.Context, message []byte) (string, error)
}

// Ledger is the anchor contract: one digest per agent address.
type Ledger interface {
	LastDigest(ctx context.Context, agent string) (codec.Digest, error)
	// SetLastDigest submits the update and waits for one confirmation.
	SetLastDigest(ctx context.Context, digest codec.Digest) (Receipt, error)
}

type RecordRepository interface {
	SaveRecord(ctx context.Context, entry RecordEntry) error
	UpdateRecordStatus(ctx context.Context, cid string, status RecordStatus, txHash string) error
	GetRecord(ctx context.Context, cid string) (RecordEntry, error)
	ListRecords(ctx context.Context, status RecordStatus, limit int) ([]RecordEntry, error)
}

type ObservationRepository interface {
	SaveObservation(ctx context.Context, update ObservedUpdate) error
	LastObservation(ctx context.Context, agent string) (ObservedUpdate, error)
}
