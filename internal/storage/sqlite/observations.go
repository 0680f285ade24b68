package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sandevgo/memchain/internal/core"
)

// ObservationsRepo keeps the pointer updates seen by watchers.
type ObservationsRepo struct {
	db *sql.DB
}

var _ core.ObservationRepository = (*ObservationsRepo)(nil)

func NewObservationsRepo(db *sql.DB) *ObservationsRepo {
	return &ObservationsRepo{db: db}
}

// SaveObservation stores update. Agent addresses are stored lower-case.
func (r *ObservationsRepo) SaveObservation(ctx context.Context, update core.ObservedUpdate) error {
	observedAt := update.ObservedAt
	if observedAt.IsZero() {
		observedAt = time.Now()
	}
	query := `INSERT INTO observations (agent, cid, observed_at) VALUES (?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, strings.ToLower(update.Agent), update.CID, observedAt.UTC()); err != nil {
		return fmt.Errorf("failed to save observation: %w", err)
	}
	return nil
}

func (r *ObservationsRepo) LastObservation(ctx context.Context, agent string) (core.ObservedUpdate, error) {
	var u core.ObservedUpdate
	query := `SELECT id, agent, cid, observed_at FROM observations WHERE agent = ? ORDER BY id DESC LIMIT 1`
	err := r.db.QueryRowContext(ctx, query, strings.ToLower(agent)).Scan(&u.ID, &u.Agent, &u.CID, &u.ObservedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return u, fmt.Errorf("observation for %s: %w", agent, core.ErrNotFound)
	}
	if err != nil {
		return u, fmt.Errorf("failed to get observation: %w", err)
	}
	return u, nil
}
