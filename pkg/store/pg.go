package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGNodeMetaStore is the Postgres-backed NodeMetaStore. It owns the
// shared `nodes`, `events`, `monitoring_history` and `voting_term` tables
// every sibling daemon reads and writes.
type PGNodeMetaStore struct {
	pool *pgxpool.Pool
}

var _ NodeMetaStore = (*PGNodeMetaStore)(nil)

// NewPGNodeMetaStore opens a pool against dsn, verifies connectivity and
// ensures the schema exists.
func NewPGNodeMetaStore(ctx context.Context, dsn string) (*PGNodeMetaStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse dsn: %w", err)
	}

	cfg.MaxConns = 10
	cfg.MinConns = 2
	cfg.MaxConnLifetime = 10 * time.Minute
	cfg.MaxConnIdleTime = 2 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	s := &PGNodeMetaStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return s, nil
}

// Ping checks database connectivity, the probe HealthProbe uses to
// distinguish a DOWN peer from a REJECTED one (spec.md §4.2).
func (s *PGNodeMetaStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PGNodeMetaStore) Close() {
	s.pool.Close()
}
