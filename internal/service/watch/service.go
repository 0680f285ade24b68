// Package watch runs one pointer watcher per configured agent, records every
// observed head and forwards it to notifiers.
package watch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sandevgo/memchain/internal/core"
	"github.com/sandevgo/memchain/internal/watcher"
	"github.com/sandevgo/memchain/pkg/log"
)

// Notifier is told about every new head. *telegram.Bot implements it.
type Notifier interface {
	NotifyUpdate(ctx context.Context, update core.ObservedUpdate) error
}

// HealthMonitor reports transport failures to the event source's error
// subscribers. *evm.Events implements it.
type HealthMonitor interface {
	Monitor(ctx context.Context, interval time.Duration)
}

type Service struct {
	source       watcher.EventSource
	agents       []string
	observations core.ObservationRepository
	notifiers    []Notifier
	monitor      HealthMonitor
	healthEvery  time.Duration
	watcherOpts  []watcher.Option
	clock        clockwork.Clock

	mu       sync.Mutex
	watchers map[string]*watcher.Watcher
}

type Option func(*Service)

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifiers = append(s.notifiers, n) }
}

// WithHealthMonitor polls the node every interval while the service runs.
func WithHealthMonitor(m HealthMonitor, interval time.Duration) Option {
	return func(s *Service) {
		s.monitor = m
		s.healthEvery = interval
	}
}

func WithWatcherOptions(opts ...watcher.Option) Option {
	return func(s *Service) { s.watcherOpts = append(s.watcherOpts, opts...) }
}

func WithClock(c clockwork.Clock) Option {
	return func(s *Service) { s.clock = c }
}

func NewService(source watcher.EventSource, agents []string, observations core.ObservationRepository, opts ...Option) *Service {
	s := &Service{
		source:       source,
		agents:       agents,
		observations: observations,
		clock:        clockwork.NewRealClock(),
		watchers:     make(map[string]*watcher.Watcher),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the watchers and blocks until ctx is done.
func (s *Service) Start(ctx context.Context) error {
	ctx = log.WithComponent(ctx, "watch")
	logger := log.FromCtx(ctx)

	if len(s.agents) == 0 {
		return errors.New("no agents to watch")
	}

	for _, agent := range s.agents {
		opts := append([]watcher.Option{watcher.WithClock(s.clock)}, s.watcherOpts...)
		w, err := watcher.New(s.source, agent, s.handle, opts...)
		if err != nil {
			s.stopAll()
			return fmt.Errorf("watch %s: %w", agent, err)
		}
		if _, err := w.Start(ctx); err != nil {
			s.stopAll()
			return fmt.Errorf("watch %s: %w", agent, err)
		}
		s.mu.Lock()
		s.watchers[strings.ToLower(agent)] = w
		s.mu.Unlock()
	}

	if s.monitor != nil && s.healthEvery > 0 {
		go s.monitor.Monitor(ctx, s.healthEvery)
	}

	logger.Info().Int("agents", len(s.agents)).Msg("watch service started")
	<-ctx.Done()
	s.stopAll()
	return nil
}

func (s *Service) Shutdown(ctx context.Context) error {
	s.stopAll()
	return nil
}

func (s *Service) stopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.watchers {
		w.Stop()
	}
}

// Stats returns a snapshot per watched agent, keyed by lower-case address.
func (s *Service) Stats() map[string]watcher.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]watcher.Stats, len(s.watchers))
	for agent, w := range s.watchers {
		out[agent] = w.Stats()
	}
	return out
}

func (s *Service) handle(ctx context.Context, agent, cid string) error {
	logger := log.FromCtx(ctx)

	last, err := s.observations.LastObservation(ctx, agent)
	switch {
	case err == nil && last.CID == cid:
		logger.Debug().Str("cid", cid).Msg("head already observed")
		return nil
	case err != nil && !errors.Is(err, core.ErrNotFound):
		logger.Warn().Err(err).Msg("failed to read last observation")
	}

	update := core.ObservedUpdate{
		Agent:      agent,
		CID:        cid,
		ObservedAt: s.clock.Now().UTC(),
	}
	if err := s.observations.SaveObservation(ctx, update); err != nil {
		return fmt.Errorf("save observation: %w", err)
	}
	logger.Info().Str("cid", cid).Msg("memory pointer updated")

	for _, n := range s.notifiers {
		if err := n.NotifyUpdate(ctx, update); err != nil {
			logger.Error().Err(err).Str("cid", cid).Msg("failed to notify")
		}
	}
	return nil
}
