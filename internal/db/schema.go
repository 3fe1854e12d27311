package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		username      TEXT NOT NULL,
		first_name    TEXT NOT NULL DEFAULT '',
		last_name     TEXT NOT NULL DEFAULT '',
		avatar        TEXT,
		password_hash TEXT NOT NULL DEFAULT '',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id          BIGSERIAL PRIMARY KEY,
		sender_id   TEXT NOT NULL,
		receiver_id TEXT NOT NULL,
		content     TEXT NOT NULL DEFAULT '',
		image_url   TEXT,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		is_read     BOOLEAN NOT NULL DEFAULT FALSE,
		is_deleted  BOOLEAN NOT NULL DEFAULT FALSE,
		CONSTRAINT messages_content_or_image CHECK (content <> '' OR image_url IS NOT NULL)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_pair_created
		ON messages (sender_id, receiver_id, created_at, id)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_receiver_unread
		ON messages (receiver_id) WHERE NOT is_read AND NOT is_deleted`,
}

// EnsureSchema crea las tablas e índices si no existen. Es idempotente.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, stmt := range schemaStatements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return tx.Commit(ctx)
}
