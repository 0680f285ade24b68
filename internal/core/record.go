package core

import (
	"encoding/json"
	"time"

	"github.com/sandevgo/memchain/internal/codec"
)

const (
	AppName      = "memchain"
	AppUserAgent = "memchain/0.1"
	AppVersion   = "0.1.0"
)

// TimestampLayout is the wire format of record timestamps.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Envelope field names. Payload objects may not use them.
const (
	FieldPreviousCID = "previousCid"
	FieldSignature   = "signature"
	FieldTimestamp   = "timestamp"
)

// MemoryRecord is one link of an agent's memory chain. Once stored it never
// changes; its identity is the CID of its serialized envelope.
type MemoryRecord struct {
	Payload     json.RawMessage `json:"data"`
	PreviousCID string          `json:"previousCid,omitempty"`
	Signature   string          `json:"signature"`
	Timestamp   time.Time       `json:"timestamp"`
}

// IsGenesis reports whether the record starts a chain.
func (r MemoryRecord) IsGenesis() bool {
	return r.PreviousCID == ""
}

// ObjectMeta describes an upload to the content store.
type ObjectMeta struct {
	Name     string
	MimeType string
}

// Receipt is the outcome of a confirmed anchoring transaction.
type Receipt struct {
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
	GasUsed     uint64 `json:"gas_used"`
}

// AnchorUpdate is a decoded pointer-update event.
type AnchorUpdate struct {
	Agent  string
	Digest codec.Digest
}

type RecordStatus string

const (
	RecordStored    RecordStatus = "stored"
	RecordAnchored  RecordStatus = "anchored"
	RecordOrphaned  RecordStatus = "orphaned"
	RecordAbandoned RecordStatus = "abandoned"
)

// RecordEntry is the local journal row kept for every appended record.
type RecordEntry struct {
	ID          string       `json:"id"`
	CID         string       `json:"cid"`
	Digest      string       `json:"digest"`
	PreviousCID string       `json:"previous_cid,omitempty"`
	TxHash      string       `json:"tx_hash,omitempty"`
	Status      RecordStatus `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// ObservedUpdate is a pointer update seen by a watcher.
type ObservedUpdate struct {
	ID         int64     `json:"id"`
	Agent      string    `json:"agent"`
	CID        string    `json:"cid"`
	ObservedAt time.Time `json:"observed_at"`
}
