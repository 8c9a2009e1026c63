package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type migration struct {
	version  int
	postgres string
	sqlite   string
}

// migrations are applied in order; never edit a released entry, append a new one.
var migrations = []migration{
	{
		version: 1,
		postgres: `
			CREATE TABLE IF NOT EXISTS notifications (
				id              BIGSERIAL PRIMARY KEY,
				receiver_id     TEXT NOT NULL,
				receiver_type   TEXT NOT NULL,
				type            TEXT NOT NULL,
				target_id       TEXT NOT NULL,
				target_type     TEXT NOT NULL,
				actors          TEXT NOT NULL DEFAULT '[]',
				count           INTEGER NOT NULL DEFAULT 1,
				state           TEXT NOT NULL DEFAULT 'unread',
				aggregation_key TEXT NOT NULL,
				is_open         BOOLEAN NOT NULL DEFAULT TRUE,
				created_at      TIMESTAMPTZ NOT NULL,
				updated_at      TIMESTAMPTZ NOT NULL,
				delivered_at    TIMESTAMPTZ,
				seen_at         TIMESTAMPTZ
			);
			CREATE UNIQUE INDEX IF NOT EXISTS idx_notifications_open_key
				ON notifications (receiver_id, receiver_type, aggregation_key) WHERE is_open;
			CREATE INDEX IF NOT EXISTS idx_notifications_receiver_created
				ON notifications (receiver_id, receiver_type, created_at DESC);
			CREATE INDEX IF NOT EXISTS idx_notifications_unread
				ON notifications (receiver_id, receiver_type) WHERE state = 'unread';

			CREATE TABLE IF NOT EXISTS events (
				id          UUID PRIMARY KEY,
				type        TEXT NOT NULL,
				actor_id    TEXT NOT NULL DEFAULT '',
				target_id   TEXT NOT NULL,
				target_type TEXT NOT NULL,
				metadata    TEXT NOT NULL DEFAULT '{}',
				occurred_at TIMESTAMPTZ NOT NULL,
				recorded_at TIMESTAMPTZ NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_events_target ON events (target_type, target_id);

			CREATE TABLE IF NOT EXISTS legacy_notifications (
				id              BIGSERIAL PRIMARY KEY,
				receiver_id     TEXT NOT NULL,
				target_id       TEXT NOT NULL,
				type            TEXT NOT NULL,
				content         TEXT NOT NULL DEFAULT '',
				actor_usernames TEXT NOT NULL DEFAULT '[]',
				is_read         BOOLEAN NOT NULL DEFAULT FALSE,
				created_at      TIMESTAMPTZ NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_legacy_receiver ON legacy_notifications (receiver_id);
		`,
		sqlite: `
			CREATE TABLE IF NOT EXISTS notifications (
				id              INTEGER PRIMARY KEY AUTOINCREMENT,
				receiver_id     TEXT NOT NULL,
				receiver_type   TEXT NOT NULL,
				type            TEXT NOT NULL,
				target_id       TEXT NOT NULL,
				target_type     TEXT NOT NULL,
				actors          TEXT NOT NULL DEFAULT '[]',
				count           INTEGER NOT NULL DEFAULT 1,
				state           TEXT NOT NULL DEFAULT 'unread',
				aggregation_key TEXT NOT NULL,
				is_open         INTEGER NOT NULL DEFAULT 1,
				created_at      DATETIME NOT NULL,
				updated_at      DATETIME NOT NULL,
				delivered_at    DATETIME,
				seen_at         DATETIME
			);
			CREATE UNIQUE INDEX IF NOT EXISTS idx_notifications_open_key
				ON notifications (receiver_id, receiver_type, aggregation_key) WHERE is_open = 1;
			CREATE INDEX IF NOT EXISTS idx_notifications_receiver_created
				ON notifications (receiver_id, receiver_type, created_at DESC);
			CREATE INDEX IF NOT EXISTS idx_notifications_unread
				ON notifications (receiver_id, receiver_type) WHERE state = 'unread';

			CREATE TABLE IF NOT EXISTS events (
				id          TEXT PRIMARY KEY,
				type        TEXT NOT NULL,
				actor_id    TEXT NOT NULL DEFAULT '',
				target_id   TEXT NOT NULL,
				target_type TEXT NOT NULL,
				metadata    TEXT NOT NULL DEFAULT '{}',
				occurred_at DATETIME NOT NULL,
				recorded_at DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_events_target ON events (target_type, target_id);

			CREATE TABLE IF NOT EXISTS legacy_notifications (
				id              INTEGER PRIMARY KEY AUTOINCREMENT,
				receiver_id     TEXT NOT NULL,
				target_id       TEXT NOT NULL,
				type            TEXT NOT NULL,
				content         TEXT NOT NULL DEFAULT '',
				actor_usernames TEXT NOT NULL DEFAULT '[]',
				is_read         INTEGER NOT NULL DEFAULT 0,
				created_at      DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_legacy_receiver ON legacy_notifications (receiver_id);
		`,
	},
}

// Migrate checks the current schema version and applies outstanding migrations in order
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var current int
	if err := db.GetContext(ctx, &current, `SELECT COALESCE(MAX(version), 0) FROM schema_version`); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		stmt := m.postgres
		if db.DriverName() == "sqlite" {
			stmt = m.sqlite
		}

		tx, err := db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to apply migration %d: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO schema_version (version) VALUES (?)`), m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.version, err)
		}
	}

	return nil
}
