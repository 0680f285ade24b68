package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sandevgo/memchain/internal/codec"
	"github.com/sandevgo/memchain/internal/core"
	"github.com/sandevgo/memchain/pkg/log"
)

// Contract implements core.Ledger on the agent memory contract.
type Contract struct {
	backend Backend
	address common.Address
	bound   *bind.BoundContract
	agent   common.Address
	key     *ecdsa.PrivateKey
	chainID *big.Int

	// txMu serializes writes so nonces are not reused.
	txMu sync.Mutex
}

var _ core.Ledger = (*Contract)(nil)

type ContractConfig struct {
	Address common.Address
	// Agent is the address whose pointer this process moves. When set, a
	// key for any other address is refused.
	Agent common.Address
	// Key is optional; without it the contract is read-only.
	Key *ecdsa.PrivateKey
	// ChainID is fetched from the backend when nil.
	ChainID *big.Int
}

func NewContract(backend Backend, cfg ContractConfig) *Contract {
	return &Contract{
		backend: backend,
		address: cfg.Address,
		bound:   bind.NewBoundContract(cfg.Address, memoryContractABI, backend, backend, backend),
		agent:   cfg.Agent,
		key:     cfg.Key,
		chainID: cfg.ChainID,
	}
}

func (c *Contract) Address() common.Address {
	return c.address
}

func (c *Contract) LastDigest(ctx context.Context, agent string) (codec.Digest, error) {
	if !common.IsHexAddress(agent) {
		return codec.Digest{}, fmt.Errorf("invalid agent address %q", agent)
	}

	var out []any
	err := c.bound.Call(&bind.CallOpts{Context: ctx}, &out, methodGetLastMemoryHash, common.HexToAddress(agent))
	if err != nil {
		return codec.Digest{}, fmt.Errorf("call %s: %w", methodGetLastMemoryHash, err)
	}
	if len(out) != 1 {
		return codec.Digest{}, fmt.Errorf("%w: %s returned %d values", core.ErrDecode, methodGetLastMemoryHash, len(out))
	}
	hash := *abi.ConvertType(out[0], new([32]byte)).(*[32]byte)
	return codec.Digest(hash), nil
}

func (c *Contract) SetLastDigest(ctx context.Context, digest codec.Digest) (core.Receipt, error) {
	if c.key == nil {
		return core.Receipt{}, fmt.Errorf("%w: no signing key configured", core.ErrUnauthorized)
	}
	from := crypto.PubkeyToAddress(c.key.PublicKey)
	if c.agent != (common.Address{}) && from != c.agent {
		return core.Receipt{}, fmt.Errorf("%w: key address %s is not agent %s", core.ErrUnauthorized, from.Hex(), c.agent.Hex())
	}

	c.txMu.Lock()
	defer c.txMu.Unlock()

	chainID, err := c.chain(ctx)
	if err != nil {
		return core.Receipt{}, fmt.Errorf("%w: chain id: %w", core.ErrTransaction, err)
	}
	auth, err := bind.NewKeyedTransactorWithChainID(c.key, chainID)
	if err != nil {
		return core.Receipt{}, fmt.Errorf("%w: %w", core.ErrTransaction, err)
	}
	auth.Context = ctx

	tx, err := c.bound.Transact(auth, methodSetLastMemoryHash, [32]byte(digest))
	if err != nil {
		return core.Receipt{}, classify(err)
	}

	log.FromCtx(ctx).Debug().
		Str("tx", tx.Hash().Hex()).
		Str("digest", digest.Hex()).
		Msg("waiting for anchor transaction")

	receipt, err := bind.WaitMined(ctx, c.backend, tx)
	if err != nil {
		return core.Receipt{}, fmt.Errorf("%w: wait for %s: %w", core.ErrTransaction, tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return core.Receipt{}, fmt.Errorf("%w: transaction %s reverted", core.ErrTransaction, tx.Hash().Hex())
	}

	var block uint64
	if receipt.BlockNumber != nil {
		block = receipt.BlockNumber.Uint64()
	}
	return core.Receipt{
		TxHash:      tx.Hash().Hex(),
		BlockNumber: block,
		GasUsed:     receipt.GasUsed,
	}, nil
}

func (c *Contract) chain(ctx context.Context) (*big.Int, error) {
	if c.chainID != nil {
		return c.chainID, nil
	}
	id, err := c.backend.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	c.chainID = id
	return id, nil
}

var unauthorizedHints = []string{"unauthori", "not authorized", "not allowed", "only agent", "only owner"}

// classify maps a submission failure to the ledger error taxonomy. Reverts
// surface during gas estimation with the revert reason in the message.
func classify(err error) error {
	msg := strings.ToLower(err.Error())
	for _, hint := range unauthorizedHints {
		if strings.Contains(msg, hint) {
			return fmt.Errorf("%w: %w", core.ErrUnauthorized, err)
		}
	}
	return fmt.Errorf("%w: %w", core.ErrTransaction, err)
}
