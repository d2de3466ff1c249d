// Copyright 2026 The Coterie Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/coterie-dev/coterie/lib/agentrun"
	"github.com/coterie-dev/coterie/lib/clock"
	"github.com/coterie-dev/coterie/lib/gitqueue"
	"github.com/coterie-dev/coterie/lib/schema"
	"github.com/coterie-dev/coterie/lib/store"
	"github.com/coterie-dev/coterie/lib/toolprofile"
	"github.com/coterie-dev/coterie/lib/workspace"
)

// SystemAuthor attributes engine-generated comments (dispatch
// instructions, gate rejections, step notices).
const SystemAuthor = "system"

// Config holds the dependencies of an Engine. All fields except
// Clock, Logger, and Policy are required.
type Config struct {
	Store      *store.Store
	Workspaces *workspace.Provider
	Tools      *toolprofile.Registry
	Runner     agentrun.Runner

	// Queue serializes ship-time git operations against each
	// project's canonical clone. Must be the same queue the
	// workspace provider uses.
	Queue *gitqueue.Queue

	// Clock provides timestamps. Nil means the real clock.
	Clock clock.Clock

	// Logger receives operational messages. Nil means discard.
	Logger *slog.Logger

	// Policy configures the quality gate and critique chain.
	// Zero-valued fields take defaults.
	Policy Policy
}

// Engine is the ticket lifecycle orchestrator.
type Engine struct {
	store      *store.Store
	workspaces *workspace.Provider
	tools      *toolprofile.Registry
	runner     agentrun.Runner
	queue      *gitqueue.Queue
	clock      clock.Clock
	logger     *slog.Logger
	policy     Policy

	// background tracks asynchronous auto-dispatches so tests and
	// shutdown can wait for them to settle.
	background sync.WaitGroup
}

// New constructs an Engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("engine: Store is required")
	}
	if cfg.Workspaces == nil {
		return nil, fmt.Errorf("engine: Workspaces is required")
	}
	if cfg.Tools == nil {
		return nil, fmt.Errorf("engine: Tools is required")
	}
	if cfg.Runner == nil {
		return nil, fmt.Errorf("engine: Runner is required")
	}
	if cfg.Queue == nil {
		return nil, fmt.Errorf("engine: Queue is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{
		store:      cfg.Store,
		workspaces: cfg.Workspaces,
		tools:      cfg.Tools,
		runner:     cfg.Runner,
		queue:      cfg.Queue,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
		policy:     cfg.Policy.withDefaults(),
	}, nil
}

// Wait blocks until all asynchronous auto-dispatches issued so far
// have settled. Used by shutdown and tests.
func (e *Engine) Wait() {
	e.background.Wait()
}

// CreateTicket fills defaults and persists a new ticket in the
// research state.
func (e *Engine) CreateTicket(ctx context.Context, ticket schema.Ticket) (schema.Ticket, error) {
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	if ticket.Type == "" {
		ticket.Type = schema.TypeFeature
	}
	ticket.State = schema.StateResearch
	now := e.clock.Now()
	ticket.CreatedAt = now
	ticket.UpdatedAt = now
	if err := ticket.Validate(); err != nil {
		return schema.Ticket{}, err
	}
	if err := e.store.CreateTicket(ctx, ticket); err != nil {
		return schema.Ticket{}, err
	}
	e.audit(ctx, ticket.ID, "ticket_created", string(ticket.Type))
	return ticket, nil
}

// GetTicket returns a ticket by ID.
func (e *Engine) GetTicket(ctx context.Context, ticketID string) (schema.Ticket, error) {
	return e.store.GetTicket(ctx, ticketID)
}

// ListTickets returns a project's tickets.
func (e *Engine) ListTickets(ctx context.Context, projectID string) ([]schema.Ticket, error) {
	return e.store.ListTickets(ctx, projectID)
}

// Comments returns a ticket's comments in sequence order.
func (e *Engine) Comments(ctx context.Context, ticketID string) ([]schema.Comment, error) {
	return e.store.Comments(ctx, ticketID)
}

// audit appends an advisory audit event. Failures are logged and
// swallowed; the audit log never gates engine behavior.
func (e *Engine) audit(ctx context.Context, ticketID, kind, detail string) {
	event := schema.AuditEvent{
		TicketID: ticketID,
		Kind:     kind,
		Detail:   detail,
		At:       e.clock.Now(),
	}
	if err := e.store.AppendAudit(ctx, event); err != nil {
		e.logger.Warn("audit append failed", "ticket_id", ticketID, "kind", kind, "error", err)
	}
}

// transition applies event to the ticket and persists the new state.
// Returns false without persisting when the (state, event) pair is
// not in the transition table.
func (e *Engine) transition(ctx context.Context, ticket *schema.Ticket, event schema.Event) (bool, error) {
	next, ok := schema.Transition(ticket.State, event)
	if !ok {
		return false, nil
	}
	prev := ticket.State
	ticket.State = next
	ticket.UpdatedAt = e.clock.Now()
	if err := e.store.UpdateTicket(ctx, *ticket); err != nil {
		ticket.State = prev
		return false, fmt.Errorf("recording transition %s -> %s: %w", prev, next, err)
	}
	e.audit(ctx, ticket.ID, "state_transition", fmt.Sprintf("%s -> %s on %s", prev, next, event))
	e.logger.Info("ticket transition",
		"ticket_id", ticket.ID,
		"from", prev,
		"to", next,
		"event", event,
	)
	return true, nil
}
