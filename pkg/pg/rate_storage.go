package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/jobkit/pkg/limiter"
)

// RateStorage keeps rate limiter starts in jobkit_rate_events so servers in
// different processes share one window. RecordIfBelow serializes callers of
// the same name with a transaction-scoped advisory lock.
type RateStorage struct {
	pool *pgxpool.Pool
}

// NewRateStorage wraps pool. The schema comes from Migrate.
func NewRateStorage(pool *pgxpool.Pool) *RateStorage {
	return &RateStorage{pool: pool}
}

var _ limiter.Storage = (*RateStorage)(nil)

// Record implements limiter.Storage.
func (s *RateStorage) Record(ctx context.Context, name string, at time.Time) error {
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO jobkit_rate_events (name, at) VALUES ($1, $2)`, name, at.UTC()); err != nil {
		return fmt.Errorf("record rate event: %w", err)
	}
	return nil
}

// Count implements limiter.Storage.
func (s *RateStorage) Count(ctx context.Context, name string, since time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM jobkit_rate_events WHERE name = $1 AND at > $2`,
		name, since.UTC()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count rate events: %w", err)
	}
	return n, nil
}

// RecordIfBelow also prunes starts at or before since.
func (s *RateStorage) RecordIfBelow(ctx context.Context, name string, at, since time.Time, limit int) (bool, error) {
	recorded := false
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, name); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM jobkit_rate_events WHERE name = $1 AND at <= $2`, name, since.UTC()); err != nil {
			return err
		}

		var n int
		if err := tx.QueryRow(ctx,
			`SELECT count(*) FROM jobkit_rate_events WHERE name = $1 AND at > $2`,
			name, since.UTC()).Scan(&n); err != nil {
			return err
		}
		if n >= limit {
			return nil
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO jobkit_rate_events (name, at) VALUES ($1, $2)`, name, at.UTC()); err != nil {
			return err
		}
		recorded = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("admit rate event: %w", err)
	}
	return recorded, nil
}

// Oldest implements limiter.Storage.
func (s *RateStorage) Oldest(ctx context.Context, name string, since time.Time) (time.Time, bool, error) {
	var oldest *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT min(at) FROM jobkit_rate_events WHERE name = $1 AND at > $2`,
		name, since.UTC()).Scan(&oldest)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("oldest rate event: %w", err)
	}
	if oldest == nil {
		return time.Time{}, false, nil
	}
	return oldest.UTC(), true, nil
}

// Clear implements limiter.Storage.
func (s *RateStorage) Clear(ctx context.Context, name string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM jobkit_rate_events WHERE name = $1`, name); err != nil {
		return fmt.Errorf("clear rate events: %w", err)
	}
	return nil
}
