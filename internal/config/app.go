package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/memchain/pkg/log"
)

const (
	StoreAutoDrive = "autodrive"
	StoreLocal     = "local"
)

type AppConfig struct {
	RuntimePath string `env:"MEMCHAIN_RUNTIME_PATH" envDefault:".memchain"`
	// Content store backend: autodrive or local
	Store string `env:"MEMCHAIN_STORE" envDefault:"autodrive"`
	// Upper bound for a single storage or ledger step
	OperationTimeout time.Duration `env:"MEMCHAIN_OPERATION_TIMEOUT" envDefault:"2m"`

	// Transport Flags
	EnableTelegram bool `env:"ENABLE_TELEGRAM" envDefault:"false"`
}

func LoadAppConfig() (*AppConfig, error) {
	c := &AppConfig{}
	if err := env.Parse(c); err != nil {
		return nil, err
	}
	if c.Store != StoreAutoDrive && c.Store != StoreLocal {
		return nil, fmt.Errorf("MEMCHAIN_STORE must be %q or %q, got %q", StoreAutoDrive, StoreLocal, c.Store)
	}
	c.RuntimePath = resolveRuntimePath(c.RuntimePath)
	return c, nil
}

func NewAppConfig(ctx context.Context) *AppConfig {
	c, err := LoadAppConfig()
	if err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse App config")
	}
	return c
}

func (c AppConfig) GetRuntimePath() string {
	return c.RuntimePath
}

func (c AppConfig) GetDatabasePath() string {
	return filepath.Join(c.RuntimePath, "memchain.db")
}

func (c AppConfig) GetEnvPath() string {
	return filepath.Join(c.RuntimePath, ".env")
}

func (c AppConfig) IsTelegramSelected() bool {
	return c.EnableTelegram
}

func (c AppConfig) UsesLocalStore() bool {
	return c.Store == StoreLocal
}
