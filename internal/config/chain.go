package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sandevgo/memchain/pkg/log"
)

type ChainConfig struct {
	// Subscriptions need a ws:// or wss:// endpoint
	RPCURL          string `env:"RPC_URL,required,notEmpty"`
	ContractAddress string `env:"CONTRACT_ADDRESS,required,notEmpty"`
	// Defaults to the address of PRIVATE_KEY
	AgentAddress string `env:"AGENT_ADDRESS"`
	// Optional; without it only read-only commands work
	PrivateKey string `env:"PRIVATE_KEY"`
	// Zero asks the node
	ChainID int64 `env:"CHAIN_ID" envDefault:"0"`
}

func LoadChainConfig() (*ChainConfig, error) {
	c := &ChainConfig{}
	if err := env.Parse(c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func NewChainConfig(ctx context.Context) *ChainConfig {
	c, err := LoadChainConfig()
	if err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse Chain config")
	}
	return c
}

func (c ChainConfig) Validate() error {
	if !common.IsHexAddress(c.ContractAddress) {
		return fmt.Errorf("CONTRACT_ADDRESS is not a hex address: %q", c.ContractAddress)
	}
	if c.AgentAddress != "" && !common.IsHexAddress(c.AgentAddress) {
		return fmt.Errorf("AGENT_ADDRESS is not a hex address: %q", c.AgentAddress)
	}
	if c.ChainID < 0 {
		return fmt.Errorf("CHAIN_ID must not be negative")
	}
	return nil
}

func (c ChainConfig) HasKey() bool {
	return strings.TrimSpace(c.PrivateKey) != ""
}

func (c ChainConfig) IsWebsocket() bool {
	return strings.HasPrefix(c.RPCURL, "ws://") || strings.HasPrefix(c.RPCURL, "wss://")
}
