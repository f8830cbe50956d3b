package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations[i] brings the schema from version i to i+1.
var migrations = [][]string{
	{
		`CREATE TABLE IF NOT EXISTS channels (
			id       INTEGER PRIMARY KEY,
			kind     TEXT    NOT NULL,
			title    TEXT    NOT NULL DEFAULT '',
			username TEXT    NOT NULL DEFAULT '',
			added_at TEXT    NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_channels_kind ON channels(kind, added_at)`,

		`CREATE TABLE IF NOT EXISTS admins (
			user_id INTEGER PRIMARY KEY
		)`,

		`CREATE TABLE IF NOT EXISTS users (
			id         INTEGER PRIMARY KEY,
			username   TEXT NOT NULL DEFAULT '',
			first_name TEXT NOT NULL DEFAULT '',
			first_seen TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS covers (
			file_key      TEXT PRIMARY KEY,
			photo_file_id TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS batches (
			id          TEXT    PRIMARY KEY,
			keyword     TEXT    NOT NULL,
			channel_id  INTEGER NOT NULL,
			message_ids TEXT    NOT NULL DEFAULT '[]',
			created_by  INTEGER NOT NULL DEFAULT 0,
			created_at  TEXT    NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_batches_keyword ON batches(keyword COLLATE NOCASE, created_at)`,

		`CREATE TABLE IF NOT EXISTS documents (
			channel_id     INTEGER NOT NULL,
			message_id     INTEGER NOT NULL,
			file_id        TEXT    NOT NULL,
			file_unique_id TEXT    NOT NULL DEFAULT '',
			file_name      TEXT    NOT NULL DEFAULT '',
			mime_type      TEXT    NOT NULL DEFAULT '',
			file_size      INTEGER NOT NULL DEFAULT 0,
			caption        TEXT    NOT NULL DEFAULT '',
			indexed_at     TEXT    NOT NULL,
			UNIQUE (channel_id, message_id)
		)`,

		`CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
			file_name,
			caption,
			content=documents,
			content_rowid=rowid
		)`,

		`CREATE TRIGGER IF NOT EXISTS documents_ai AFTER INSERT ON documents BEGIN
			INSERT INTO documents_fts(rowid, file_name, caption) VALUES (new.rowid, new.file_name, new.caption);
		END`,

		`CREATE TRIGGER IF NOT EXISTS documents_ad AFTER DELETE ON documents BEGIN
			INSERT INTO documents_fts(documents_fts, rowid, file_name, caption) VALUES ('delete', old.rowid, old.file_name, old.caption);
		END`,

		`CREATE TRIGGER IF NOT EXISTS documents_au AFTER UPDATE ON documents BEGIN
			INSERT INTO documents_fts(documents_fts, rowid, file_name, caption) VALUES ('delete', old.rowid, old.file_name, old.caption);
			INSERT INTO documents_fts(rowid, file_name, caption) VALUES (new.rowid, new.file_name, new.caption);
		END`,
	},
	{
		// A channel may sit in both the db and the sub set.
		`CREATE TABLE channels_v2 (
			id       INTEGER NOT NULL,
			kind     TEXT    NOT NULL,
			title    TEXT    NOT NULL DEFAULT '',
			username TEXT    NOT NULL DEFAULT '',
			added_at TEXT    NOT NULL,
			PRIMARY KEY (id, kind)
		)`,
		`INSERT INTO channels_v2 (id, kind, title, username, added_at)
			SELECT id, kind, title, username, added_at FROM channels`,
		`DROP TABLE channels`,
		`ALTER TABLE channels_v2 RENAME TO channels`,
		`CREATE INDEX IF NOT EXISTS idx_channels_kind ON channels(kind, added_at)`,
	},
}

// schemaVersion is the version the latest migration produces.
var schemaVersion = len(migrations)

// migrate applies the migrations the database has not seen yet, each in
// its own transaction.
func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("sqlite: create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("sqlite: read schema version: %w", err)
	}

	for v := current; v < schemaVersion; v++ {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("sqlite: begin migration %d: %w", v+1, err)
		}
		for _, stmt := range migrations[v] {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("sqlite: migrate to %d: %w\nstatement: %s", v+1, err, stmt)
			}
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", v+1); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("sqlite: record schema version: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("sqlite: commit migration %d: %w", v+1, err)
		}
	}
	return nil
}
