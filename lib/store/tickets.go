// Copyright 2026 The Coterie Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/coterie-dev/coterie/lib/schema"
)

// ErrNotFound reports a lookup for a row that does not exist.
var ErrNotFound = errors.New("not found")

// CreateProject inserts a project.
func (s *Store) CreateProject(ctx context.Context, project schema.Project) error {
	if err := project.Validate(); err != nil {
		return err
	}
	return s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`INSERT INTO projects (id, name, slug, remote_url, build_command, run_command, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{
				project.ID, project.Name, project.Slug, project.RemoteURL,
				project.BuildCommand, project.RunCommand, timeText(s.clock.Now()),
			}})
	})
}

// GetProject fetches a project by ID.
func (s *Store) GetProject(ctx context.Context, id string) (schema.Project, error) {
	var project schema.Project
	found := false
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT id, name, slug, remote_url, build_command, run_command, created_at
			 FROM projects WHERE id = ?`,
			&sqlitex.ExecOptions{
				Args: []any{id},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					found = true
					project = schema.Project{
						ID:           stmt.ColumnText(0),
						Name:         stmt.ColumnText(1),
						Slug:         stmt.ColumnText(2),
						RemoteURL:    stmt.ColumnText(3),
						BuildCommand: stmt.ColumnText(4),
						RunCommand:   stmt.ColumnText(5),
						CreatedAt:    mustTime(stmt.ColumnText(6)),
					}
					return nil
				},
			})
	})
	if err != nil {
		return schema.Project{}, err
	}
	if !found {
		return schema.Project{}, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	return project, nil
}

// CreatePersona inserts a persona.
func (s *Store) CreatePersona(ctx context.Context, persona schema.Persona) error {
	if err := persona.Validate(); err != nil {
		return err
	}
	return s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`INSERT INTO personas (id, name, role, tool_profile, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{
				persona.ID, persona.Name, string(persona.Role),
				persona.ToolProfile, timeText(s.clock.Now()),
			}})
	})
}

func scanPersona(stmt *sqlite.Stmt) schema.Persona {
	return schema.Persona{
		ID:          stmt.ColumnText(0),
		Name:        stmt.ColumnText(1),
		Role:        schema.Role(stmt.ColumnText(2)),
		ToolProfile: stmt.ColumnText(3),
		CreatedAt:   mustTime(stmt.ColumnText(4)),
	}
}

// GetPersona fetches a persona by ID.
func (s *Store) GetPersona(ctx context.Context, id string) (schema.Persona, error) {
	var persona schema.Persona
	found := false
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT id, name, role, tool_profile, created_at FROM personas WHERE id = ?`,
			&sqlitex.ExecOptions{
				Args: []any{id},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					found = true
					persona = scanPersona(stmt)
					return nil
				},
			})
	})
	if err != nil {
		return schema.Persona{}, err
	}
	if !found {
		return schema.Persona{}, fmt.Errorf("persona %s: %w", id, ErrNotFound)
	}
	return persona, nil
}

// PersonaByRole returns the first persona with the given role, in
// creation order. Used when a dispatch targets a role rather than a
// specific persona.
func (s *Store) PersonaByRole(ctx context.Context, role schema.Role) (schema.Persona, error) {
	var persona schema.Persona
	found := false
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT id, name, role, tool_profile, created_at FROM personas
			 WHERE role = ? ORDER BY created_at, id LIMIT 1`,
			&sqlitex.ExecOptions{
				Args: []any{string(role)},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					found = true
					persona = scanPersona(stmt)
					return nil
				},
			})
	})
	if err != nil {
		return schema.Persona{}, err
	}
	if !found {
		return schema.Persona{}, fmt.Errorf("persona with role %s: %w", role, ErrNotFound)
	}
	return persona, nil
}

const ticketColumns = `id, project_id, title, description, acceptance_criteria, type, state,
	assignee_persona_id, research_completed_at, research_approved_at,
	plan_completed_at, plan_approved_at, merge_commit, merged_at,
	created_at, updated_at`

func scanTicket(stmt *sqlite.Stmt) (schema.Ticket, error) {
	ticket := schema.Ticket{
		ID:                 stmt.ColumnText(0),
		ProjectID:          stmt.ColumnText(1),
		Title:              stmt.ColumnText(2),
		Description:        stmt.ColumnText(3),
		AcceptanceCriteria: stmt.ColumnText(4),
		Type:               schema.TicketType(stmt.ColumnText(5)),
		State:              schema.State(stmt.ColumnText(6)),
		AssigneePersonaID:  stmt.ColumnText(7),
		MergeCommit:        stmt.ColumnText(12),
		CreatedAt:          mustTime(stmt.ColumnText(14)),
		UpdatedAt:          mustTime(stmt.ColumnText(15)),
	}
	var err error
	if ticket.ResearchCompletedAt, err = parseTime(stmt.ColumnText(8)); err != nil {
		return ticket, err
	}
	if ticket.ResearchApprovedAt, err = parseTime(stmt.ColumnText(9)); err != nil {
		return ticket, err
	}
	if ticket.PlanCompletedAt, err = parseTime(stmt.ColumnText(10)); err != nil {
		return ticket, err
	}
	if ticket.PlanApprovedAt, err = parseTime(stmt.ColumnText(11)); err != nil {
		return ticket, err
	}
	if ticket.MergedAt, err = parseTime(stmt.ColumnText(13)); err != nil {
		return ticket, err
	}
	return ticket, nil
}

// CreateTicket inserts a ticket. New tickets start in research with no
// assignee unless the caller set one.
func (s *Store) CreateTicket(ctx context.Context, ticket schema.Ticket) error {
	if err := ticket.Validate(); err != nil {
		return err
	}
	now := timeText(s.clock.Now())
	return s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`INSERT INTO tickets (`+ticketColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{
				ticket.ID, ticket.ProjectID, ticket.Title, ticket.Description,
				ticket.AcceptanceCriteria, string(ticket.Type), string(ticket.State),
				ticket.AssigneePersonaID,
				optText(ticket.ResearchCompletedAt), optText(ticket.ResearchApprovedAt),
				optText(ticket.PlanCompletedAt), optText(ticket.PlanApprovedAt),
				ticket.MergeCommit, optText(ticket.MergedAt),
				now, now,
			}})
	})
}

// GetTicket fetches a ticket by ID.
func (s *Store) GetTicket(ctx context.Context, id string) (schema.Ticket, error) {
	var ticket schema.Ticket
	found := false
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT `+ticketColumns+` FROM tickets WHERE id = ?`,
			&sqlitex.ExecOptions{
				Args: []any{id},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					found = true
					var scanErr error
					ticket, scanErr = scanTicket(stmt)
					return scanErr
				},
			})
	})
	if err != nil {
		return schema.Ticket{}, err
	}
	if !found {
		return schema.Ticket{}, fmt.Errorf("ticket %s: %w", id, ErrNotFound)
	}
	return ticket, nil
}

// UpdateTicket writes all mutable ticket fields in one statement.
func (s *Store) UpdateTicket(ctx context.Context, ticket schema.Ticket) error {
	if err := ticket.Validate(); err != nil {
		return err
	}
	return s.withConn(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn,
			`UPDATE tickets SET title = ?, description = ?, acceptance_criteria = ?,
				type = ?, state = ?, assignee_persona_id = ?,
				research_completed_at = ?, research_approved_at = ?,
				plan_completed_at = ?, plan_approved_at = ?,
				merge_commit = ?, merged_at = ?, updated_at = ?
			 WHERE id = ?`,
			&sqlitex.ExecOptions{Args: []any{
				ticket.Title, ticket.Description, ticket.AcceptanceCriteria,
				string(ticket.Type), string(ticket.State), ticket.AssigneePersonaID,
				optText(ticket.ResearchCompletedAt), optText(ticket.ResearchApprovedAt),
				optText(ticket.PlanCompletedAt), optText(ticket.PlanApprovedAt),
				ticket.MergeCommit, optText(ticket.MergedAt),
				timeText(s.clock.Now()), ticket.ID,
			}})
		if err != nil {
			return err
		}
		if conn.Changes() == 0 {
			return fmt.Errorf("ticket %s: %w", ticket.ID, ErrNotFound)
		}
		return nil
	})
}

// ListTickets returns a project's tickets, newest first.
func (s *Store) ListTickets(ctx context.Context, projectID string) ([]schema.Ticket, error) {
	var tickets []schema.Ticket
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT `+ticketColumns+` FROM tickets WHERE project_id = ?
			 ORDER BY created_at DESC, id DESC`,
			&sqlitex.ExecOptions{
				Args: []any{projectID},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					ticket, scanErr := scanTicket(stmt)
					if scanErr != nil {
						return scanErr
					}
					tickets = append(tickets, ticket)
					return nil
				},
			})
	})
	return tickets, err
}
