// Package db implements the pipeline's store boundaries on PostgreSQL.
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/facturaIA/purchase-invoice-ingest/internal/models"
)

// Connect opens and verifies a connection pool.
// It returns models.ErrNoDatabase when no URL is configured.
func Connect(ctx context.Context, cfg models.DatabaseConfig, logger zerolog.Logger) (*pgxpool.Pool, error) {
	if cfg.URL == "" {
		return nil, models.ErrNoDatabase
	}

	config, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	// Connection pool settings optimized for PgBouncer
	config.MaxConns = cfg.MaxConns
	config.MinConns = cfg.MinConns
	config.MaxConnLifetime = 1 * time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = 1 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info().
		Int32("max_conns", config.MaxConns).
		Int32("min_conns", config.MinConns).
		Msg("Database connection pool initialized")
	return pool, nil
}

// Store groups the table accessors for one schema
type Store struct {
	pool   *pgxpool.Pool
	schema string
}

// New creates a store over pool. An empty schema means public.
func New(pool *pgxpool.Pool, schema string) *Store {
	if schema == "" {
		schema = "public"
	}
	return &Store{pool: pool, schema: schema}
}

// Pool returns the underlying connection pool
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Close closes the connection pool
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// table returns the schema-qualified, quoted table name
func (s *Store) table(name string) string {
	return pgx.Identifier{s.schema, name}.Sanitize()
}

func (s *Store) Catalog() *Catalog {
	return &Catalog{store: s}
}

func (s *Store) Corrections() *Corrections {
	return &Corrections{store: s}
}

func (s *Store) Invoices() *Invoices {
	return &Invoices{store: s}
}

func (s *Store) Sessions() *Sessions {
	return &Sessions{store: s}
}

func (s *Store) ExtractionLog() *ExtractionLog {
	return &ExtractionLog{store: s}
}

// wrap maps pgx errors onto the pipeline's sentinels
func wrap(what string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}
	return fmt.Errorf("%s: %w: %w", what, models.ErrStoreUnavailable, err)
}
