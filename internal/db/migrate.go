package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies the embedded migrations not yet recorded in schema_migrations
func (s *Store) Migrate(ctx context.Context, logger zerolog.Logger) error {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)

	quoted := pgx.Identifier{s.schema}.Sanitize()
	bootstrap := fmt.Sprintf(`
		CREATE SCHEMA IF NOT EXISTS %s;
		CREATE TABLE IF NOT EXISTS %s (
			name       text PRIMARY KEY,
			applied_at timestamptz NOT NULL DEFAULT now()
		)`, quoted, s.table("schema_migrations"))
	if _, err := s.pool.Exec(ctx, bootstrap); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, name := range names {
		if err := s.applyMigration(ctx, name, quoted); err != nil {
			return fmt.Errorf("migration %s: %w", name, err)
		}
		logger.Debug().Str("migration", name).Msg("Migration checked")
	}
	return nil
}

func (s *Store) applyMigration(ctx context.Context, name, quotedSchema string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var applied bool
	err = tx.QueryRow(ctx,
		fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE name = $1)`, s.table("schema_migrations")),
		name,
	).Scan(&applied)
	if err != nil {
		return err
	}
	if applied {
		return nil
	}

	body, err := migrations.ReadFile(name)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, strings.ReplaceAll(string(body), "{{schema}}", quotedSchema)); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (name) VALUES ($1)`, s.table("schema_migrations")),
		name,
	); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
