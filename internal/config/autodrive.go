package config

import (
	"context"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/memchain/pkg/log"
)

type AutoDriveConfig struct {
	APIKey      string `env:"DSN_API_KEY,required,notEmpty"`
	BaseURL     string `env:"DSN_API_URL" envDefault:"https://mainnet.auto-drive.autonomys.xyz/api"`
	Compression bool   `env:"DSN_COMPRESSION" envDefault:"true"`
}

func LoadAutoDriveConfig() (*AutoDriveConfig, error) {
	c := &AutoDriveConfig{}
	if err := env.Parse(c); err != nil {
		return nil, err
	}
	return c, nil
}

func NewAutoDriveConfig(ctx context.Context) *AutoDriveConfig {
	c, err := LoadAutoDriveConfig()
	if err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse Auto Drive config")
	}
	return c
}
