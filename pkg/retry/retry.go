package retry

import (
	"context"
	"math/rand"
	"time"
)

// Unlimited as MaxRetries makes the policy retry until the context ends.
const Unlimited = -1

type Operation = func() error

type Config struct {
	MaxRetries    int
	BackoffFactor float64
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	Jitter        time.Duration
	// RetryIf reports whether an error is worth another attempt.
	// Nil retries every error.
	RetryIf func(error) bool
}

func NewDefaultConfig() *Config {
	return &Config{
		MaxRetries:    5,
		BackoffFactor: 2.15,
		InitialDelay:  300 * time.Millisecond,
		MaxDelay:      20 * time.Second,
		Jitter:        50 * time.Millisecond,
	}
}

// NewFixedConfig returns a policy that waits the same delay before every
// attempt and never gives up.
func NewFixedConfig(delay time.Duration) *Config {
	return &Config{
		MaxRetries:    Unlimited,
		BackoffFactor: 1,
		InitialDelay:  delay,
		MaxDelay:      delay,
	}
}

// Exhausted reports whether attempt (zero based, counting retries already
// made) has used up the policy.
func (c *Config) Exhausted(attempt int) bool {
	return c.MaxRetries != Unlimited && attempt >= c.MaxRetries
}

// Delay returns the wait before retry number attempt (zero based), without
// jitter.
func (c *Config) Delay(attempt int) time.Duration {
	delay := c.InitialDelay
	factor := c.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	for i := 0; i < attempt; i++ {
		delay = time.Duration(float64(delay) * factor)
		if c.MaxDelay > 0 && delay > c.MaxDelay {
			return c.MaxDelay
		}
	}
	if c.MaxDelay > 0 && delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	return delay
}

type Retrier struct {
	config *Config
}

func NewRetrier(config *Config) *Retrier {
	return &Retrier{
		config: config,
	}
}

func (r *Retrier) Do(ctx context.Context, op Operation) error {
	var err error
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))

	for attempt := 0; ; attempt++ {
		err = op()
		if err == nil {
			return nil
		}

		if r.config.RetryIf != nil && !r.config.RetryIf(err) {
			return err
		}

		if r.config.Exhausted(attempt) {
			return err
		}

		var jitter time.Duration
		if r.config.Jitter > 0 {
			jitter = time.Duration(rnd.Float64() * float64(r.config.Jitter))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.config.Delay(attempt) + jitter):
		}
	}
}
