// Package store persists catalog load history for the trending service.
//
// It uses DuckDB as the backing database. An empty DSN opens an in-memory
// database.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/xtxerr/trending/config"
	"github.com/xtxerr/trending/internal/errors"
	"github.com/xtxerr/trending/internal/logging"
)

var log = logging.Component("store")

// =============================================================================
// Store Configuration
// =============================================================================

// Config holds store configuration options.
type Config struct {
	// DSN is the database path. Empty means in-memory.
	DSN string

	// MaxOpenConns is the maximum number of open connections.
	MaxOpenConns int

	// QueryTimeout is the default timeout for queries.
	QueryTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxOpenConns: 4,
		QueryTimeout: config.DefaultQueryTimeout,
	}
}

// =============================================================================
// Store
// =============================================================================

// Store provides database operations.
//
// Store is safe for concurrent use.
type Store struct {
	db     *sql.DB
	config Config
	mu     sync.RWMutex
	closed bool
}

// New opens the database and applies the schema.
func New(cfg Config) (*Store, error) {
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = config.DefaultQueryTimeout
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = DefaultConfig().MaxOpenConns
	}

	db, err := sql.Open("duckdb", cfg.DSN)
	if err != nil {
		return nil, errors.Kind(errors.ErrDatabase, fmt.Errorf("open database: %w", err))
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Kind(errors.ErrDatabase, fmt.Errorf("ping database: %w", err))
	}

	s := &Store{db: db, config: cfg}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema. It is idempotent.
func (s *Store) migrate(ctx context.Context) error {
	migrations := []struct {
		name string
		sql  string
	}{
		{
			name: "seq_catalog_loads",
			sql:  `CREATE SEQUENCE IF NOT EXISTS seq_catalog_loads START 1`,
		},
		{
			name: "catalog_loads",
			sql: `CREATE TABLE IF NOT EXISTS catalog_loads (
				id          BIGINT PRIMARY KEY DEFAULT nextval('seq_catalog_loads'),
				site        VARCHAR NOT NULL,
				source      VARCHAR NOT NULL,
				kind        VARCHAR NOT NULL,
				load_trigger VARCHAR NOT NULL,
				started_at  TIMESTAMP NOT NULL,
				duration_ms BIGINT NOT NULL,
				channels    INTEGER NOT NULL,
				error       VARCHAR
			)`,
		},
		{
			name: "idx_catalog_loads_site",
			sql:  `CREATE INDEX IF NOT EXISTS idx_catalog_loads_site ON catalog_loads(site, started_at)`,
		},
	}

	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m.sql); err != nil {
			return errors.Kind(errors.ErrDatabase, fmt.Errorf("migration %s: %w", m.name, err))
		}
		log.Debug("migration applied", "name", m.name)
	}
	return nil
}

// Close closes the store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	return s.db.Close()
}

// Health checks database connectivity.
func (s *Store) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.config.QueryTimeout)
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.Kind(errors.ErrDatabase, errors.ErrClosed)
	}
	return nil
}
