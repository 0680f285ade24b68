package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sandevgo/memchain/pkg/log"
	"github.com/sandevgo/memchain/pkg/retry"
)

type WatcherConfig struct {
	RefreshInterval time.Duration `env:"WATCHER_REFRESH_INTERVAL" envDefault:"4m"`
	ReconnectDelay  time.Duration `env:"WATCHER_RECONNECT_DELAY" envDefault:"5s"`
	// Zero retries forever
	MaxAttempts   int           `env:"WATCHER_MAX_ATTEMPTS" envDefault:"0"`
	BackoffFactor float64       `env:"WATCHER_BACKOFF_FACTOR" envDefault:"1"`
	MaxDelay      time.Duration `env:"WATCHER_MAX_DELAY" envDefault:"5m"`
	QueueSize     int           `env:"WATCHER_QUEUE_SIZE" envDefault:"64"`
	// Agents to watch besides AGENT_ADDRESS
	Agents []string `env:"WATCHER_AGENTS" envSeparator:","`
	// Block number poll feeding transport errors to watchers; zero disables it
	HealthInterval time.Duration `env:"WATCHER_HEALTH_INTERVAL" envDefault:"30s"`
}

func LoadWatcherConfig() (*WatcherConfig, error) {
	c := &WatcherConfig{}
	if err := env.Parse(c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func NewWatcherConfig(ctx context.Context) *WatcherConfig {
	c, err := LoadWatcherConfig()
	if err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse Watcher config")
	}
	return c
}

func (c WatcherConfig) Validate() error {
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("WATCHER_REFRESH_INTERVAL must be positive")
	}
	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("WATCHER_RECONNECT_DELAY must be positive")
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("WATCHER_MAX_ATTEMPTS must not be negative")
	}
	if c.BackoffFactor < 1 {
		return fmt.Errorf("WATCHER_BACKOFF_FACTOR must be at least 1")
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("WATCHER_QUEUE_SIZE must be positive")
	}
	for _, a := range c.Agents {
		if !common.IsHexAddress(strings.TrimSpace(a)) {
			return fmt.Errorf("WATCHER_AGENTS entry is not a hex address: %q", a)
		}
	}
	return nil
}

// Policy converts the reconnect settings into a retry policy. With the
// defaults it is a fixed 5s delay that never gives up.
func (c WatcherConfig) Policy() *retry.Config {
	maxRetries := retry.Unlimited
	if c.MaxAttempts > 0 {
		maxRetries = c.MaxAttempts
	}
	maxDelay := c.MaxDelay
	if c.BackoffFactor == 1 {
		maxDelay = c.ReconnectDelay
	}
	return &retry.Config{
		MaxRetries:    maxRetries,
		BackoffFactor: c.BackoffFactor,
		InitialDelay:  c.ReconnectDelay,
		MaxDelay:      maxDelay,
	}
}

// AgentList returns agent addresses to watch, primary first, without
// case-insensitive duplicates.
func (c WatcherConfig) AgentList(primary string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, a := range append([]string{primary}, c.Agents...) {
		a = strings.TrimSpace(a)
		if a == "" || seen[strings.ToLower(a)] {
			continue
		}
		seen[strings.ToLower(a)] = true
		out = append(out, a)
	}
	return out
}
