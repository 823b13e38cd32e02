// Package history provides the SQLite-backed diagram history with optional
// FTS5 full-text search over titles and node labels.
package history

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS diagrams (
	id        TEXT PRIMARY KEY,
	title     TEXT NOT NULL DEFAULT '',
	nodes     TEXT NOT NULL DEFAULT '[]',
	edges     TEXT NOT NULL DEFAULT '[]',
	labels    TEXT NOT NULL DEFAULT '',
	timestamp INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_diagrams_timestamp ON diagrams(timestamp);

CREATE TABLE IF NOT EXISTS imports (
	path       TEXT PRIMARY KEY,
	diagram_id TEXT NOT NULL,
	checksum   TEXT NOT NULL DEFAULT ''
);
`

// DB wraps a sql.DB with history operations.
type DB struct {
	conn *sql.DB
	now  func() time.Time
}

// Option configures a DB.
type Option func(*DB)

// WithClock overrides the clock used for entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(db *DB) { db.now = now }
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string, opts ...Option) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("history: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("history: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("history: apply fts schema: %w", err)
	}

	db := &DB{conn: conn, now: time.Now}
	for _, opt := range opts {
		opt(db)
	}
	return db, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
