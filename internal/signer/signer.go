// Package signer signs memory records with the agent's secp256k1 key using
// EIP-191 personal messages, so any Ethereum tooling can verify them against
// the agent address.
package signer

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sandevgo/memchain/internal/core"
	"github.com/sandevgo/memchain/pkg/canon"
)

const signatureLength = 65

type KeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

var _ core.Signer = (*KeySigner)(nil)

// New parses a hex private key, with or without 0x.
func New(hexKey string) (*KeySigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return NewFromKey(key), nil
}

func NewFromKey(key *ecdsa.PrivateKey) *KeySigner {
	return &KeySigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

func (s *KeySigner) Address() string {
	return s.address.Hex()
}

// PrivateKey exposes the key to the transaction signer of the ledger client.
func (s *KeySigner) PrivateKey() *ecdsa.PrivateKey {
	return s.key
}

func (s *KeySigner) Sign(ctx context.Context, message []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	sig, err := crypto.Sign(accounts.TextHash(message), s.key)
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// Recover returns the address that produced signature over message.
func Recover(message []byte, signature string) (string, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrInvalidSignature, err)
	}
	if len(sig) != signatureLength {
		return "", fmt.Errorf("%w: want %d bytes, got %d", core.ErrInvalidSignature, signatureLength, len(sig))
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash(message), sig)
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}

// SigningBytes is the canonical message covering a record's payload and its
// chain linkage.
func SigningBytes(payload json.RawMessage, previousCID string, ts time.Time) ([]byte, error) {
	var prev any
	if previousCID != "" {
		prev = previousCID
	}
	doc := map[string]any{
		"data":                payload,
		core.FieldPreviousCID: prev,
		core.FieldTimestamp:   ts.UTC().Format(core.TimestampLayout),
	}
	return canon.Marshal(doc)
}

// SignRecord fills rec.Signature.
func SignRecord(ctx context.Context, s core.Signer, rec *core.MemoryRecord) error {
	msg, err := SigningBytes(rec.Payload, rec.PreviousCID, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrInvalidPayload, err)
	}
	sig, err := s.Sign(ctx, msg)
	if err != nil {
		return err
	}
	rec.Signature = sig
	return nil
}

// VerifyRecord checks that rec was signed by address.
func VerifyRecord(rec core.MemoryRecord, address string) error {
	msg, err := SigningBytes(rec.Payload, rec.PreviousCID, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrInvalidPayload, err)
	}
	signer, err := Recover(msg, rec.Signature)
	if err != nil {
		return err
	}
	if !strings.EqualFold(signer, address) {
		return fmt.Errorf("%w: signed by %s, want %s", core.ErrInvalidSignature, signer, address)
	}
	return nil
}
