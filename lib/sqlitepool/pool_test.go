// Copyright 2026 The Coterie Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool

import (
	"context"
	"path/filepath"
	"testing"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(Config{}); err == nil {
		t.Fatal("Open with empty Path succeeded")
	}
}

func TestOpenAppliesSchema(t *testing.T) {
	t.Parallel()

	pool, err := Open(Config{
		Path:   filepath.Join(t.TempDir(), "state.db"),
		Schema: "CREATE TABLE IF NOT EXISTS items (id TEXT PRIMARY KEY, n INTEGER);",
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer pool.Close()

	conn, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	defer pool.Put(conn)

	if err := sqlitex.Execute(conn, "INSERT INTO items (id, n) VALUES (?, ?)", &sqlitex.ExecOptions{
		Args: []any{"a", 1},
	}); err != nil {
		t.Fatalf("insert into schema table: %v", err)
	}

	var count int
	err = sqlitex.Execute(conn, "SELECT COUNT(*) FROM items", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			count = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}
