// Copyright 2026 The Coterie Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/coterie-dev/coterie/lib/agentrun"
	"github.com/coterie-dev/coterie/lib/schema"
)

// Target selects the persona for a dispatch: either a specific
// persona by ID, or any persona holding a role.
type Target struct {
	PersonaID string
	Role      schema.Role
}

// Options carries optional dispatch parameters.
type Options struct {
	// SystemPrompt replaces the default phase framing fed to the
	// agent process.
	SystemPrompt string
}

// Dispatch begins an agent run for a ticket: resolves the target
// persona, resolves the ticket's workspace (provisioning it when
// absent), records the instruction comment and run row, marks the
// persona as the ticket's authoritative assignee, and spawns the
// agent detached. Returns the chosen persona. Workspace structure
// errors propagate to the caller unmodified.
func (e *Engine) Dispatch(ctx context.Context, ticketID string, target Target, commentText string, opts Options) (schema.Persona, error) {
	ticket, err := e.store.GetTicket(ctx, ticketID)
	if err != nil {
		return schema.Persona{}, fmt.Errorf("dispatch for %s: %w", ticketID, err)
	}
	project, err := e.store.GetProject(ctx, ticket.ProjectID)
	if err != nil {
		return schema.Persona{}, fmt.Errorf("dispatch for %s: %w", ticketID, err)
	}
	persona, err := e.resolvePersona(ctx, target)
	if err != nil {
		return schema.Persona{}, fmt.Errorf("dispatch for %s: %w", ticketID, err)
	}

	ws, err := e.workspaces.Resolve(ctx, project, ticketID)
	if err != nil {
		return schema.Persona{}, err
	}

	if commentText != "" {
		if _, err := e.store.AddComment(ctx, ticketID, SystemAuthor, commentText); err != nil {
			return schema.Persona{}, fmt.Errorf("dispatch for %s: recording instructions: %w", ticketID, err)
		}
	}

	ticket.AssigneePersonaID = persona.ID
	ticket.UpdatedAt = e.clock.Now()
	if err := e.store.UpdateTicket(ctx, ticket); err != nil {
		return schema.Persona{}, fmt.Errorf("dispatch for %s: assigning %s: %w", ticketID, persona.ID, err)
	}

	run := schema.AgentRun{
		ID:        uuid.NewString(),
		TicketID:  ticketID,
		PersonaID: persona.ID,
		Phase:     ticket.State,
		Status:    schema.RunRunning,
		StartedAt: e.clock.Now(),
	}
	if err := e.store.CreateRun(ctx, run); err != nil {
		return schema.Persona{}, fmt.Errorf("dispatch for %s: %w", ticketID, err)
	}

	task := agentrun.Task{
		TicketID:      ticketID,
		PersonaID:     persona.ID,
		RunID:         run.ID,
		Phase:         string(ticket.State),
		SystemPrompt:  e.systemPrompt(ticket, persona, opts),
		Instructions:  instructions(ticket, commentText),
		WorkspaceRoot: ws.Root,
	}
	if err := e.runner.Start(ctx, task, e.completeCallback); err != nil {
		if finishErr := e.store.FinishRun(ctx, run.ID, schema.RunFailed); finishErr != nil {
			e.logger.Warn("could not mark failed run", "run_id", run.ID, "error", finishErr)
		}
		return schema.Persona{}, fmt.Errorf("dispatch for %s: %w", ticketID, err)
	}

	e.audit(ctx, ticketID, "dispatch", fmt.Sprintf("persona %s (%s) phase %s", persona.ID, persona.Role, ticket.State))
	e.logger.Info("dispatched",
		"ticket_id", ticketID,
		"persona_id", persona.ID,
		"role", persona.Role,
		"phase", ticket.State,
		"run_id", run.ID,
	)
	return persona, nil
}

// completeCallback adapts AgentComplete to the runner's callback
// shape. Errors are logged; a completion has no caller to return to.
func (e *Engine) completeCallback(ctx context.Context, ticketID, personaID, output string) {
	if err := e.AgentComplete(ctx, ticketID, personaID, output); err != nil {
		e.logger.Error("agent completion failed",
			"ticket_id", ticketID,
			"persona_id", personaID,
			"error", err,
		)
	}
}

// resolvePersona picks the dispatch target. A persona ID wins over a
// role; role lookup takes the earliest-created persona for the role.
func (e *Engine) resolvePersona(ctx context.Context, target Target) (schema.Persona, error) {
	if target.PersonaID != "" {
		return e.store.GetPersona(ctx, target.PersonaID)
	}
	if target.Role != "" {
		if !target.Role.Valid() {
			return schema.Persona{}, fmt.Errorf("unknown role %q", target.Role)
		}
		return e.store.PersonaByRole(ctx, target.Role)
	}
	return schema.Persona{}, fmt.Errorf("dispatch target has neither persona ID nor role")
}

// systemPrompt frames the persona and its allowed operations. The
// tool list comes from the registry intersection for the persona's
// role, which is the single authority on what the run may invoke.
func (e *Engine) systemPrompt(ticket schema.Ticket, persona schema.Persona, opts Options) string {
	if opts.SystemPrompt != "" {
		return opts.SystemPrompt
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a %s working ticket %s in phase %s.\n",
		persona.Name, persona.Role, ticket.ID, ticket.State)
	tools := e.tools.ToolsForProfile(persona.Role)
	if len(tools) > 0 {
		b.WriteString("Available operations:\n")
		for _, tool := range tools {
			fmt.Fprintf(&b, "  %s: %s\n", tool.Name, tool.Description)
		}
	}
	return b.String()
}

// instructions assembles the concrete ask for the agent.
func instructions(ticket schema.Ticket, commentText string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ticket: %s\n", ticket.Title)
	if ticket.Description != "" {
		b.WriteString(ticket.Description)
		b.WriteString("\n")
	}
	if ticket.AcceptanceCriteria != "" {
		b.WriteString("Acceptance criteria:\n")
		b.WriteString(ticket.AcceptanceCriteria)
		b.WriteString("\n")
	}
	if commentText != "" {
		b.WriteString("\n")
		b.WriteString(commentText)
		b.WriteString("\n")
	}
	return b.String()
}

// dispatchAsync issues a follow-up dispatch without blocking the
// caller. Failures are logged and never retried; the triggering
// transition has already been recorded.
func (e *Engine) dispatchAsync(ticketID string, target Target, commentText string) {
	e.background.Add(1)
	go func() {
		defer e.background.Done()
		if _, err := e.Dispatch(context.Background(), ticketID, target, commentText, Options{}); err != nil {
			e.logger.Error("auto-dispatch failed",
				"ticket_id", ticketID,
				"persona_id", target.PersonaID,
				"role", target.Role,
				"error", err,
			)
		}
	}()
}
