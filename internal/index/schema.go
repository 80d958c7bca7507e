// Package index provides a SQLite-backed page and link index used for
// listings, backlinks and the link graph.
package index

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// schemaVersion is stored in PRAGMA user_version. An index built by an
// older version is dropped and rebuilt by the next sync.
const schemaVersion = 2

const dropSQL = `
DROP TABLE IF EXISTS links;
DROP TABLE IF EXISTS pages;
`

const schemaSQL = `
CREATE TABLE IF NOT EXISTS pages (
	path       TEXT PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	title_key  TEXT NOT NULL DEFAULT '',
	category   TEXT NOT NULL DEFAULT 'other',
	checksum   TEXT NOT NULL DEFAULT '',
	tags       TEXT NOT NULL DEFAULT '[]',
	updated    TEXT NOT NULL DEFAULT '',
	indexed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS links (
	source TEXT NOT NULL,
	target TEXT NOT NULL,
	type      TEXT NOT NULL DEFAULT 'inline',
	title_key TEXT NOT NULL DEFAULT '',
	UNIQUE(source, target, type)
);

CREATE INDEX IF NOT EXISTS idx_pages_category ON pages(category);
CREATE INDEX IF NOT EXISTS idx_links_source ON links(source);
CREATE INDEX IF NOT EXISTS idx_links_target ON links(target);
CREATE INDEX IF NOT EXISTS idx_pages_title_key ON pages(title_key);
`

// DB wraps a sql.DB with index-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return &DB{conn: conn}, nil
}

func migrate(conn *sql.DB) error {
	var version int
	if err := conn.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("index: read schema version: %w", err)
	}
	if version != schemaVersion {
		if _, err := conn.Exec(dropSQL); err != nil {
			return fmt.Errorf("index: drop old schema: %w", err)
		}
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		return fmt.Errorf("index: apply schema: %w", err)
	}
	if _, err := conn.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, schemaVersion)); err != nil {
		return fmt.Errorf("index: write schema version: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// PingContext verifies the database is reachable.
func (db *DB) PingContext(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}
