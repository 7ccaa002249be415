// Package database opens the Postgres connection used by the postgres remote
// backend and creates its schema.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dharsanguruparan/Waypoint/internal/dbx"
)

// Connect opens a pgx-backed *sql.DB using the provided DSN and checks that
// the server answers.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Schema is the DDL EnsureSchema runs. seq gives the listing a stable
// creation order independent of clock skew.
const Schema = `
CREATE TABLE IF NOT EXISTS remote_files (
	id TEXT PRIMARY KEY,
	seq BIGSERIAL NOT NULL,
	name TEXT NOT NULL,
	properties JSONB NOT NULL DEFAULT '{}'::jsonb,
	content BYTEA NOT NULL,
	size BIGINT NOT NULL,
	modified_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_remote_files_name ON remote_files(name);`

// EnsureSchema creates the remote_files table if needed. Keeping the DDL in
// code lets a fresh docker-compose Postgres bootstrap itself.
func EnsureSchema(ctx context.Context, db dbx.DBTX) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
