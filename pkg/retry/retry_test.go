package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetry_SuccessOnFirstTry(t *testing.T) {
	retrier := NewRetrier(NewDefaultConfig())

	counter := 0
	err := retrier.Do(context.Background(), func() error {
		counter++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counter != 1 {
		t.Errorf("expected 1 attempt, got %d", counter)
	}
}

func TestRetry_SuccessAfterRetries(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.InitialDelay = time.Millisecond
	cfg.Jitter = 0
	retrier := NewRetrier(cfg)

	counter := 0
	err := retrier.Do(context.Background(), func() error {
		counter++
		if counter < 3 {
			return errors.New("temporary error")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counter != 3 {
		t.Errorf("expected 3 attempts, got %d", counter)
	}
}

func TestRetry_MaxRetriesExceeded(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.MaxRetries = 2
	cfg.InitialDelay = time.Millisecond
	retrier := NewRetrier(cfg)

	expectedErr := errors.New("permanent error")
	counter := 0
	err := retrier.Do(context.Background(), func() error {
		counter++
		return expectedErr
	})
	if !errors.Is(err, expectedErr) {
		t.Errorf("expected %v, got %v", expectedErr, err)
	}
	if counter != 3 { // Initial try + 2 retries
		t.Errorf("expected 3 attempts, got %d", counter)
	}
}

func TestRetry_RetryIfStopsEarly(t *testing.T) {
	fatal := errors.New("do not retry")
	cfg := NewDefaultConfig()
	cfg.RetryIf = func(err error) bool { return !errors.Is(err, fatal) }
	retrier := NewRetrier(cfg)

	counter := 0
	err := retrier.Do(context.Background(), func() error {
		counter++
		return fatal
	})
	if !errors.Is(err, fatal) {
		t.Errorf("expected %v, got %v", fatal, err)
	}
	if counter != 1 {
		t.Errorf("expected 1 attempt, got %d", counter)
	}
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	retrier := NewRetrier(NewDefaultConfig())

	err := retrier.Do(ctx, func() error {
		cancel()
		return errors.New("operation error after cancel")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRetry_UnlimitedStopsOnContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	retrier := NewRetrier(NewFixedConfig(5 * time.Millisecond))

	counter := 0
	err := retrier.Do(ctx, func() error {
		counter++
		return errors.New("still failing")
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if counter < 2 {
		t.Errorf("expected several attempts, got %d", counter)
	}
}

func TestConfig_Delay(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		attempt int
		want    time.Duration
	}{
		{
			name:    "fixed",
			cfg:     *NewFixedConfig(5 * time.Second),
			attempt: 7,
			want:    5 * time.Second,
		},
		{
			name:    "exponential second retry",
			cfg:     Config{InitialDelay: 100 * time.Millisecond, BackoffFactor: 2, MaxDelay: time.Second},
			attempt: 2,
			want:    400 * time.Millisecond,
		},
		{
			name:    "capped",
			cfg:     Config{InitialDelay: 100 * time.Millisecond, BackoffFactor: 2, MaxDelay: time.Second},
			attempt: 10,
			want:    time.Second,
		},
		{
			name:    "factor below one treated as fixed",
			cfg:     Config{InitialDelay: time.Second, BackoffFactor: 0.5},
			attempt: 3,
			want:    time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Delay(tt.attempt); got != tt.want {
				t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestConfig_Exhausted(t *testing.T) {
	if NewFixedConfig(time.Second).Exhausted(1 << 20) {
		t.Error("unlimited policy must never be exhausted")
	}
	cfg := &Config{MaxRetries: 3}
	if cfg.Exhausted(2) {
		t.Error("attempt 2 of 3 must not be exhausted")
	}
	if !cfg.Exhausted(3) {
		t.Error("attempt 3 of 3 must be exhausted")
	}
}
