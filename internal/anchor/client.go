// Package anchor reads and moves an agent's memory pointer on the anchor
// contract, translating between on-chain digests and content CIDs.
package anchor

import (
	"context"
	"errors"
	"fmt"

	"github.com/sandevgo/memchain/internal/codec"
	"github.com/sandevgo/memchain/internal/core"
	"github.com/sandevgo/memchain/pkg/log"
)

type Client struct {
	ledger core.Ledger
}

func NewClient(ledger core.Ledger) *Client {
	return &Client{ledger: ledger}
}

// GetPointer returns the CID of the agent's latest anchored record, or
// core.ErrNotFound when the agent never anchored.
func (c *Client) GetPointer(ctx context.Context, agent string) (string, error) {
	digest, err := c.GetDigest(ctx, agent)
	if err != nil {
		return "", err
	}
	return codec.CIDFromDigest(digest), nil
}

// GetDigest is GetPointer without the CID conversion.
func (c *Client) GetDigest(ctx context.Context, agent string) (codec.Digest, error) {
	digest, err := c.ledger.LastDigest(ctx, agent)
	if err != nil {
		return codec.Digest{}, fmt.Errorf("read pointer for %s: %w", agent, err)
	}
	if digest.IsZero() {
		return codec.Digest{}, fmt.Errorf("pointer for %s: %w", agent, core.ErrNotFound)
	}
	return digest, nil
}

// SetPointer anchors digest for the signing identity and waits for the
// receipt. Errors always match core.ErrUnauthorized or core.ErrTransaction.
func (c *Client) SetPointer(ctx context.Context, digest codec.Digest) (core.Receipt, error) {
	if digest.IsZero() {
		return core.Receipt{}, fmt.Errorf("%w: refusing to anchor zero digest", core.ErrTransaction)
	}

	receipt, err := c.ledger.SetLastDigest(ctx, digest)
	if err != nil {
		if errors.Is(err, core.ErrUnauthorized) || errors.Is(err, core.ErrTransaction) {
			return core.Receipt{}, err
		}
		return core.Receipt{}, fmt.Errorf("%w: %w", core.ErrTransaction, err)
	}

	log.FromCtx(ctx).Debug().
		Str("digest", digest.Hex()).
		Str("tx", receipt.TxHash).
		Uint64("block", receipt.BlockNumber).
		Msg("pointer anchored")
	return receipt, nil
}
