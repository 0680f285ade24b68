// Package evm talks to the agent memory contract over JSON-RPC.
package evm

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sandevgo/memchain/internal/codec"
	"github.com/sandevgo/memchain/internal/core"
)

const memoryABI = `[
	{
		"type": "function",
		"name": "getLastMemoryHash",
		"stateMutability": "view",
		"inputs": [{"name": "_agent", "type": "address"}],
		"outputs": [{"name": "", "type": "bytes32"}]
	},
	{
		"type": "function",
		"name": "setLastMemoryHash",
		"stateMutability": "nonpayable",
		"inputs": [{"name": "hash", "type": "bytes32"}],
		"outputs": []
	},
	{
		"type": "event",
		"name": "LastMemoryHashSet",
		"anonymous": false,
		"inputs": [
			{"name": "agent", "type": "address", "indexed": true},
			{"name": "hash", "type": "bytes32", "indexed": false}
		]
	}
]`

const (
	methodGetLastMemoryHash = "getLastMemoryHash"
	methodSetLastMemoryHash = "setLastMemoryHash"
	eventLastMemoryHashSet  = "LastMemoryHashSet"
)

var memoryContractABI = mustParseABI(memoryABI)

// AnchorEventID is topic 0 of LastMemoryHashSet logs.
var AnchorEventID = memoryContractABI.Events[eventLastMemoryHashSet].ID

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic("evm: parse memory abi: " + err.Error())
	}
	return parsed
}

// DecodeAnchorUpdate parses a LastMemoryHashSet log. Errors match
// core.ErrDecode.
func DecodeAnchorUpdate(l types.Log) (core.AnchorUpdate, error) {
	if l.Removed {
		return core.AnchorUpdate{}, fmt.Errorf("%w: log removed by reorg", core.ErrDecode)
	}
	if len(l.Topics) != 2 || l.Topics[0] != AnchorEventID {
		return core.AnchorUpdate{}, fmt.Errorf("%w: not a %s log", core.ErrDecode, eventLastMemoryHashSet)
	}

	values, err := memoryContractABI.Unpack(eventLastMemoryHashSet, l.Data)
	if err != nil {
		return core.AnchorUpdate{}, fmt.Errorf("%w: %v", core.ErrDecode, err)
	}
	if len(values) != 1 {
		return core.AnchorUpdate{}, fmt.Errorf("%w: want 1 value, got %d", core.ErrDecode, len(values))
	}
	hash, ok := values[0].([32]byte)
	if !ok {
		return core.AnchorUpdate{}, fmt.Errorf("%w: unexpected hash type %T", core.ErrDecode, values[0])
	}

	return core.AnchorUpdate{
		Agent:  common.BytesToAddress(l.Topics[1].Bytes()).Hex(),
		Digest: codec.Digest(hash),
	}, nil
}

// EncodeAnchorLog builds the log the contract emits for agent setting
// digest. Used by tests and by tooling replaying historical updates.
func EncodeAnchorLog(contract common.Address, agent common.Address, digest codec.Digest) (types.Log, error) {
	data, err := memoryContractABI.Events[eventLastMemoryHashSet].Inputs.NonIndexed().Pack([32]byte(digest))
	if err != nil {
		return types.Log{}, err
	}
	return types.Log{
		Address: contract,
		Topics:  []common.Hash{AnchorEventID, common.BytesToHash(agent.Bytes())},
		Data:    data,
	}, nil
}
