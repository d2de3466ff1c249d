// Copyright 2026 The Coterie Authors
// SPDX-License-Identifier: Apache-2.0

// Package store persists the engine's domain state in SQLite:
// projects, personas, tickets, versioned documents, comments, agent
// runs, and the advisory audit log.
//
// Every write is a single SQL statement. The store intentionally does
// not wrap multi-step sequences ("bump version, then insert document")
// in transactions — concurrent completions for the same ticket can
// race, and the engine's mitigation is the single-authoritative-
// assignee rule, not locking. SQLite serializes the individual
// statements.
package store

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"

	"github.com/coterie-dev/coterie/lib/clock"
	"github.com/coterie-dev/coterie/lib/sqlitepool"
)

const dbSchema = `
CREATE TABLE IF NOT EXISTS projects (
    id            TEXT PRIMARY KEY,
    name          TEXT NOT NULL,
    slug          TEXT NOT NULL UNIQUE,
    remote_url    TEXT NOT NULL DEFAULT '',
    build_command TEXT NOT NULL DEFAULT '',
    run_command   TEXT NOT NULL DEFAULT '',
    created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS personas (
    id           TEXT PRIMARY KEY,
    name         TEXT NOT NULL,
    role         TEXT NOT NULL,
    tool_profile TEXT NOT NULL DEFAULT '',
    created_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tickets (
    id                    TEXT PRIMARY KEY,
    project_id            TEXT NOT NULL REFERENCES projects(id),
    title                 TEXT NOT NULL,
    description           TEXT NOT NULL DEFAULT '',
    acceptance_criteria   TEXT NOT NULL DEFAULT '',
    type                  TEXT NOT NULL,
    state                 TEXT NOT NULL,
    assignee_persona_id   TEXT NOT NULL DEFAULT '',
    research_completed_at TEXT,
    research_approved_at  TEXT,
    plan_completed_at     TEXT,
    plan_approved_at      TEXT,
    merge_commit          TEXT NOT NULL DEFAULT '',
    merged_at             TEXT,
    created_at            TEXT NOT NULL,
    updated_at            TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tickets_project ON tickets(project_id, state);

CREATE TABLE IF NOT EXISTS documents (
    ticket_id         TEXT NOT NULL REFERENCES tickets(id),
    type              TEXT NOT NULL,
    version           INTEGER NOT NULL,
    content           TEXT NOT NULL,
    author_persona_id TEXT NOT NULL,
    created_at        TEXT NOT NULL,
    PRIMARY KEY (ticket_id, type, version)
);

CREATE TABLE IF NOT EXISTS comments (
    ticket_id         TEXT NOT NULL REFERENCES tickets(id),
    seq               INTEGER NOT NULL,
    author_persona_id TEXT NOT NULL,
    body              TEXT NOT NULL,
    created_at        TEXT NOT NULL,
    PRIMARY KEY (ticket_id, seq)
);

CREATE TABLE IF NOT EXISTS agent_runs (
    id           TEXT PRIMARY KEY,
    ticket_id    TEXT NOT NULL REFERENCES tickets(id),
    persona_id   TEXT NOT NULL,
    phase        TEXT NOT NULL,
    status       TEXT NOT NULL,
    started_at   TEXT NOT NULL,
    completed_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_runs_ticket ON agent_runs(ticket_id, status);

CREATE TABLE IF NOT EXISTS audit_events (
    seq       INTEGER PRIMARY KEY AUTOINCREMENT,
    ticket_id TEXT NOT NULL DEFAULT '',
    kind      TEXT NOT NULL,
    detail    TEXT NOT NULL DEFAULT '',
    at        TEXT NOT NULL
);
`

// Store is the SQLite-backed persistence layer. Safe for concurrent
// use; each method takes its own pooled connection.
type Store struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger
}

// Config holds the parameters for opening a store.
type Config struct {
	// Path is the database file. ":memory:" works for tests with
	// PoolSize 1.
	Path string

	// PoolSize is the connection pool size. Zero means the
	// sqlitepool default.
	PoolSize int

	// Clock provides timestamps for created/updated fields. Required.
	Clock clock.Clock

	// Logger receives operational messages. Nil means discard.
	Logger *slog.Logger
}

// Open creates the store, applying the schema to each connection.
func Open(cfg Config) (*Store, error) {
	if cfg.Clock == nil {
		return nil, fmt.Errorf("store: Clock is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: cfg.PoolSize,
		Logger:   logger,
		Schema:   dbSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return &Store{pool: pool, clock: cfg.Clock, logger: logger}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// withConn runs fn with a pooled connection.
func (s *Store) withConn(ctx context.Context, fn func(conn *sqlite.Conn) error) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)
	return fn(conn)
}

// timeText formats a timestamp for storage.
func timeText(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime parses a stored timestamp. Empty input yields nil.
func parseTime(text string) (*time.Time, error) {
	if text == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, text)
	if err != nil {
		return nil, fmt.Errorf("store: parsing timestamp %q: %w", text, err)
	}
	return &parsed, nil
}

// mustTime parses a required stored timestamp, returning the zero
// time (and logging nothing) on corruption — callers treat created_at
// as display data, not control flow.
func mustTime(text string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, text)
	if err != nil {
		return time.Time{}
	}
	return parsed
}

// optText returns the string form of an optional timestamp for
// binding: nil becomes SQL NULL.
func optText(t *time.Time) any {
	if t == nil {
		return nil
	}
	return timeText(*t)
}
