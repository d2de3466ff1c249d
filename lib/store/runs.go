// Copyright 2026 The Coterie Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/coterie-dev/coterie/lib/schema"
)

// CreateRun inserts an agent run in the running state.
func (s *Store) CreateRun(ctx context.Context, run schema.AgentRun) error {
	if run.ID == "" || run.TicketID == "" || run.PersonaID == "" {
		return fmt.Errorf("agent run: ID, TicketID, and PersonaID are required")
	}
	if !run.Status.Valid() {
		return fmt.Errorf("agent run %s: unknown status %q", run.ID, run.Status)
	}
	return s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`INSERT INTO agent_runs (id, ticket_id, persona_id, phase, status, started_at, completed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{
				run.ID, run.TicketID, run.PersonaID, string(run.Phase),
				string(run.Status), timeText(s.clock.Now()), optText(run.CompletedAt),
			}})
	})
}

// FinishRun marks a run's terminal status and completion time.
func (s *Store) FinishRun(ctx context.Context, runID string, status schema.RunStatus) error {
	if !status.Valid() || status == schema.RunRunning {
		return fmt.Errorf("agent run %s: %q is not a terminal status", runID, status)
	}
	return s.withConn(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn,
			`UPDATE agent_runs SET status = ?, completed_at = ? WHERE id = ?`,
			&sqlitex.ExecOptions{Args: []any{
				string(status), timeText(s.clock.Now()), runID,
			}})
		if err != nil {
			return err
		}
		if conn.Changes() == 0 {
			return fmt.Errorf("agent run %s: %w", runID, ErrNotFound)
		}
		return nil
	})
}

func scanRun(stmt *sqlite.Stmt) (schema.AgentRun, error) {
	run := schema.AgentRun{
		ID:        stmt.ColumnText(0),
		TicketID:  stmt.ColumnText(1),
		PersonaID: stmt.ColumnText(2),
		Phase:     schema.State(stmt.ColumnText(3)),
		Status:    schema.RunStatus(stmt.ColumnText(4)),
		StartedAt: mustTime(stmt.ColumnText(5)),
	}
	var err error
	run.CompletedAt, err = parseTime(stmt.ColumnText(6))
	return run, err
}

// RunningRun returns the in-flight run for a (ticket, persona) pair,
// or ErrNotFound. The engine consults this from the completion
// callback to tie output back to its dispatch.
func (s *Store) RunningRun(ctx context.Context, ticketID, personaID string) (schema.AgentRun, error) {
	var run schema.AgentRun
	found := false
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT id, ticket_id, persona_id, phase, status, started_at, completed_at
			 FROM agent_runs WHERE ticket_id = ? AND persona_id = ? AND status = 'running'
			 ORDER BY started_at DESC LIMIT 1`,
			&sqlitex.ExecOptions{
				Args: []any{ticketID, personaID},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					found = true
					var scanErr error
					run, scanErr = scanRun(stmt)
					return scanErr
				},
			})
	})
	if err != nil {
		return schema.AgentRun{}, err
	}
	if !found {
		return schema.AgentRun{}, fmt.Errorf("running run for %s/%s: %w", ticketID, personaID, ErrNotFound)
	}
	return run, nil
}

// RunsForTicket returns all runs for a ticket, newest first.
func (s *Store) RunsForTicket(ctx context.Context, ticketID string) ([]schema.AgentRun, error) {
	var runs []schema.AgentRun
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT id, ticket_id, persona_id, phase, status, started_at, completed_at
			 FROM agent_runs WHERE ticket_id = ? ORDER BY started_at DESC, id DESC`,
			&sqlitex.ExecOptions{
				Args: []any{ticketID},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					run, scanErr := scanRun(stmt)
					if scanErr != nil {
						return scanErr
					}
					runs = append(runs, run)
					return nil
				},
			})
	})
	return runs, err
}
