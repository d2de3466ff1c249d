// Copyright 2026 The Coterie Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/coterie-dev/coterie/lib/schema"
	"github.com/coterie-dev/coterie/lib/store"
)

// AgentComplete is the sole completion callback for agent runs. It
// checks assignee supersession, screens the output through the
// quality gate, and archives it as a versioned document or a plain
// comment depending on the ticket's phase. Research documents drive
// the author → critic → author chain; follow-up dispatches are issued
// asynchronously and never awaited.
func (e *Engine) AgentComplete(ctx context.Context, ticketID, personaID, output string) error {
	ticket, err := e.store.GetTicket(ctx, ticketID)
	if err != nil {
		return fmt.Errorf("completion for %s: %w", ticketID, err)
	}

	run, runErr := e.store.RunningRun(ctx, ticketID, personaID)
	if runErr != nil && !errors.Is(runErr, store.ErrNotFound) {
		return fmt.Errorf("completion for %s: %w", ticketID, runErr)
	}
	finish := func(status schema.RunStatus) {
		if runErr != nil {
			return
		}
		if err := e.store.FinishRun(ctx, run.ID, status); err != nil {
			e.logger.Warn("could not finish run", "run_id", run.ID, "status", status, "error", err)
		}
	}

	// A superseded assignee may still speak, but never writes an
	// authoritative document.
	if ticket.AssigneePersonaID != "" && ticket.AssigneePersonaID != personaID {
		if _, err := e.store.AddComment(ctx, ticketID, personaID, output); err != nil {
			return fmt.Errorf("completion for %s: %w", ticketID, err)
		}
		finish(schema.RunAbandoned)
		e.audit(ctx, ticketID, "superseded_completion", personaID)
		e.logger.Info("superseded completion downgraded to comment",
			"ticket_id", ticketID,
			"persona_id", personaID,
			"assignee", ticket.AssigneePersonaID,
		)
		return nil
	}

	if reason, ok := e.policy.screen(output); !ok {
		if _, err := e.store.AddComment(ctx, ticketID, personaID, output); err != nil {
			return fmt.Errorf("completion for %s: %w", ticketID, err)
		}
		finish(schema.RunCompleted)
		e.audit(ctx, ticketID, "quality_rejected", reason)
		e.logger.Info("output failed quality gate, archived as comment",
			"ticket_id", ticketID,
			"persona_id", personaID,
			"reason", reason,
		)
		return nil
	}

	switch ticket.State {
	case schema.StateResearch:
		err = e.completeResearch(ctx, &ticket, personaID, output)
	case schema.StatePlan:
		err = e.completePlan(ctx, &ticket, personaID, output)
	case schema.StateBuild:
		err = e.completeBuild(ctx, &ticket, personaID, output)
	default:
		// Test and later phases take narrative comments; motion out
		// of test happens through ship or an explicit return.
		_, err = e.store.AddComment(ctx, ticketID, personaID, output)
	}
	if err != nil {
		finish(schema.RunFailed)
		return fmt.Errorf("completion for %s: %w", ticketID, err)
	}
	finish(schema.RunCompleted)
	return nil
}

// completeResearch archives accepted research output as the next
// document version and advances the critique chain. Versions beyond
// the cap become comments, which is what terminates the chain.
func (e *Engine) completeResearch(ctx context.Context, ticket *schema.Ticket, personaID, output string) error {
	version, err := e.store.NextDocumentVersion(ctx, ticket.ID, schema.DocResearch)
	if err != nil {
		return err
	}
	if version > e.policy.MaxResearchVersions {
		if _, err := e.store.AddComment(ctx, ticket.ID, personaID, output); err != nil {
			return err
		}
		e.audit(ctx, ticket.ID, "research_version_capped", fmt.Sprintf("version %d", version))
		e.logger.Info("research chain capped, output archived as comment",
			"ticket_id", ticket.ID,
			"would_be_version", version,
		)
		return nil
	}

	now := e.clock.Now()
	doc := schema.Document{
		TicketID:        ticket.ID,
		Type:            schema.DocResearch,
		Version:         version,
		Content:         output,
		AuthorPersonaID: personaID,
		CreatedAt:       now,
	}
	if err := e.store.InsertDocument(ctx, doc); err != nil {
		return err
	}
	ticket.ResearchCompletedAt = &now
	ticket.UpdatedAt = now
	if err := e.store.UpdateTicket(ctx, *ticket); err != nil {
		return err
	}
	e.audit(ctx, ticket.ID, "document_archived", fmt.Sprintf("research v%d by %s", version, personaID))

	switch version {
	case 1:
		e.dispatchAsync(ticket.ID, Target{Role: schema.RoleCritic},
			"Critique the research document on this ticket. Append your findings; do not rewrite it.")
	case 2:
		author, err := e.researchAuthor(ctx, ticket.ID)
		if err != nil {
			e.logger.Error("cannot resolve research author for fold dispatch",
				"ticket_id", ticket.ID, "error", err)
			return nil
		}
		e.dispatchAsync(ticket.ID, Target{PersonaID: author},
			"Fold the critique into a revised research document.")
	}
	return nil
}

// researchAuthor returns the persona that wrote research v1.
func (e *Engine) researchAuthor(ctx context.Context, ticketID string) (string, error) {
	docs, err := e.store.Documents(ctx, ticketID, schema.DocResearch)
	if err != nil {
		return "", err
	}
	for _, doc := range docs {
		if doc.Version == 1 {
			return doc.AuthorPersonaID, nil
		}
	}
	return "", fmt.Errorf("ticket %s has no research v1", ticketID)
}

// completePlan archives plan output. Plans have no version chain:
// while the ticket sits in plan, a new submission replaces the stored
// document in place.
func (e *Engine) completePlan(ctx context.Context, ticket *schema.Ticket, personaID, output string) error {
	now := e.clock.Now()
	doc := schema.Document{
		TicketID:        ticket.ID,
		Type:            schema.DocImplementationPlan,
		Content:         output,
		AuthorPersonaID: personaID,
		CreatedAt:       now,
	}
	latest, err := e.store.LatestDocument(ctx, ticket.ID, schema.DocImplementationPlan)
	switch {
	case err == nil:
		doc.Version = latest.Version
		if err := e.store.ReplaceDocument(ctx, doc); err != nil {
			return err
		}
	case errors.Is(err, store.ErrNotFound):
		doc.Version = 1
		if err := e.store.InsertDocument(ctx, doc); err != nil {
			return err
		}
	default:
		return err
	}
	ticket.PlanCompletedAt = &now
	ticket.UpdatedAt = now
	if err := e.store.UpdateTicket(ctx, *ticket); err != nil {
		return err
	}
	e.audit(ctx, ticket.ID, "document_archived", fmt.Sprintf("implementation_plan v%d by %s", doc.Version, personaID))
	return nil
}

// completeBuild records the build narrative, moves the ticket to
// test, and asks a critic to verify.
func (e *Engine) completeBuild(ctx context.Context, ticket *schema.Ticket, personaID, output string) error {
	if _, err := e.store.AddComment(ctx, ticket.ID, personaID, output); err != nil {
		return err
	}
	ok, err := e.transition(ctx, ticket, schema.EventBuildComplete)
	if err != nil {
		return err
	}
	if ok {
		e.dispatchAsync(ticket.ID, Target{Role: schema.RoleCritic},
			"Verify the implementation against the ticket's acceptance criteria.")
	}
	return nil
}
