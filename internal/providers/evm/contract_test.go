package evm

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sandevgo/memchain/internal/codec"
	"github.com/sandevgo/memchain/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Backend = (*fakeBackend)(nil)

// Well-known throwaway key (hardhat account #0), address testAgent.
const testKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func keccak(s string) []byte {
	return crypto.Keccak256([]byte(s))
}

func newTestContract(t *testing.T, backend *fakeBackend, agent common.Address) *Contract {
	t.Helper()
	key, err := crypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)
	return NewContract(backend, ContractConfig{Address: testContract, Agent: agent, Key: key})
}

func TestContract_SetThenGet(t *testing.T) {
	backend := newFakeBackend()
	c := newTestContract(t, backend, testAgent)
	ctx := context.Background()

	digest, err := c.LastDigest(ctx, testAgent.Hex())
	require.NoError(t, err)
	assert.True(t, digest.IsZero())

	want := codec.Sum([]byte("head"))
	receipt, err := c.SetLastDigest(ctx, want)
	require.NoError(t, err)
	require.Len(t, backend.sent, 1)
	assert.Equal(t, backend.sent[0].Hash().Hex(), receipt.TxHash)
	assert.Equal(t, uint64(100), receipt.BlockNumber)
	assert.Equal(t, uint64(43_000), receipt.GasUsed)
	assert.Equal(t, big.NewInt(1337), backend.sent[0].ChainId())

	got, err := c.LastDigest(ctx, testAgent.Hex())
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// Setting the same digest again is a legal transition.
	_, err = c.SetLastDigest(ctx, want)
	require.NoError(t, err)
	assert.Len(t, backend.sent, 2)
	assert.Equal(t, uint64(1), backend.sent[1].Nonce())
}

func TestContract_LastDigestInvalidAddress(t *testing.T) {
	c := newTestContract(t, newFakeBackend(), testAgent)
	_, err := c.LastDigest(context.Background(), "not-an-address")
	assert.Error(t, err)
}

func TestContract_Unauthorized(t *testing.T) {
	t.Run("no key", func(t *testing.T) {
		backend := newFakeBackend()
		c := NewContract(backend, ContractConfig{Address: testContract})
		_, err := c.SetLastDigest(context.Background(), codec.Sum([]byte("x")))
		assert.ErrorIs(t, err, core.ErrUnauthorized)
		assert.Empty(t, backend.sent)
	})

	t.Run("key for another agent", func(t *testing.T) {
		backend := newFakeBackend()
		c := newTestContract(t, backend, common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"))
		_, err := c.SetLastDigest(context.Background(), codec.Sum([]byte("x")))
		assert.ErrorIs(t, err, core.ErrUnauthorized)
		assert.Empty(t, backend.sent)
	})

	t.Run("revert reason", func(t *testing.T) {
		backend := newFakeBackend()
		backend.estimateErr = errors.New("execution reverted: Unauthorized agent")
		c := newTestContract(t, backend, testAgent)
		_, err := c.SetLastDigest(context.Background(), codec.Sum([]byte("x")))
		assert.ErrorIs(t, err, core.ErrUnauthorized)
		assert.NotErrorIs(t, err, core.ErrTransaction)
	})
}

func TestContract_TransactionFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*fakeBackend)
	}{
		{name: "estimate revert", setup: func(b *fakeBackend) { b.estimateErr = errors.New("execution reverted: paused") }},
		{name: "send failure", setup: func(b *fakeBackend) { b.sendErr = errors.New("insufficient funds for gas") }},
		{name: "reverted receipt", setup: func(b *fakeBackend) { b.receiptStatus = types.ReceiptStatusFailed }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newFakeBackend()
			tt.setup(backend)
			c := newTestContract(t, backend, testAgent)

			_, err := c.SetLastDigest(context.Background(), codec.Sum([]byte("x")))
			assert.ErrorIs(t, err, core.ErrTransaction)
			assert.NotErrorIs(t, err, core.ErrUnauthorized)

			got, err := c.LastDigest(context.Background(), testAgent.Hex())
			require.NoError(t, err)
			assert.True(t, got.IsZero())
		})
	}
}

func TestClassify(t *testing.T) {
	assert.ErrorIs(t, classify(errors.New("Not Authorized")), core.ErrUnauthorized)
	assert.ErrorIs(t, classify(errors.New("only agent may call")), core.ErrUnauthorized)
	assert.ErrorIs(t, classify(errors.New("nonce too low")), core.ErrTransaction)
}
