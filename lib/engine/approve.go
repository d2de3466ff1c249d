// Copyright 2026 The Coterie Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"

	"github.com/coterie-dev/coterie/lib/schema"
)

// ApproveResearch stamps the research approval and, when the ticket
// is still in research, advances it to plan and asks a developer for
// an implementation plan. Approving an already-approved ticket is a
// no-op.
func (e *Engine) ApproveResearch(ctx context.Context, ticketID string) error {
	ticket, err := e.store.GetTicket(ctx, ticketID)
	if err != nil {
		return fmt.Errorf("approve research for %s: %w", ticketID, err)
	}
	if ticket.ResearchApprovedAt != nil {
		return nil
	}
	now := e.clock.Now()
	ticket.ResearchApprovedAt = &now
	ticket.UpdatedAt = now
	if err := e.store.UpdateTicket(ctx, ticket); err != nil {
		return fmt.Errorf("approve research for %s: %w", ticketID, err)
	}
	e.audit(ctx, ticketID, "research_approved", "")

	ok, err := e.transition(ctx, &ticket, schema.EventResearchApproved)
	if err != nil {
		return fmt.Errorf("approve research for %s: %w", ticketID, err)
	}
	if ok {
		e.dispatchAsync(ticketID, Target{Role: schema.RoleDeveloper},
			"Research is approved. Write the implementation plan.")
	}
	return nil
}

// RevokeResearch clears the research approval. Clearing an
// already-clear approval is a no-op, never an error. The ticket's
// state is not rolled back.
func (e *Engine) RevokeResearch(ctx context.Context, ticketID string) error {
	ticket, err := e.store.GetTicket(ctx, ticketID)
	if err != nil {
		return fmt.Errorf("revoke research for %s: %w", ticketID, err)
	}
	if ticket.ResearchApprovedAt == nil {
		return nil
	}
	ticket.ResearchApprovedAt = nil
	ticket.UpdatedAt = e.clock.Now()
	if err := e.store.UpdateTicket(ctx, ticket); err != nil {
		return fmt.Errorf("revoke research for %s: %w", ticketID, err)
	}
	e.audit(ctx, ticketID, "research_revoked", "")
	return nil
}

// ApprovePlan stamps the plan approval and, when the ticket is still
// in plan, advances it to build and dispatches a developer.
func (e *Engine) ApprovePlan(ctx context.Context, ticketID string) error {
	ticket, err := e.store.GetTicket(ctx, ticketID)
	if err != nil {
		return fmt.Errorf("approve plan for %s: %w", ticketID, err)
	}
	if ticket.PlanApprovedAt != nil {
		return nil
	}
	now := e.clock.Now()
	ticket.PlanApprovedAt = &now
	ticket.UpdatedAt = now
	if err := e.store.UpdateTicket(ctx, ticket); err != nil {
		return fmt.Errorf("approve plan for %s: %w", ticketID, err)
	}
	e.audit(ctx, ticketID, "plan_approved", "")

	ok, err := e.transition(ctx, &ticket, schema.EventPlanApproved)
	if err != nil {
		return fmt.Errorf("approve plan for %s: %w", ticketID, err)
	}
	if ok {
		e.dispatchAsync(ticketID, Target{Role: schema.RoleDeveloper},
			"The plan is approved. Implement it.")
	}
	return nil
}

// RevokePlan clears the plan approval. No-op when already clear.
func (e *Engine) RevokePlan(ctx context.Context, ticketID string) error {
	ticket, err := e.store.GetTicket(ctx, ticketID)
	if err != nil {
		return fmt.Errorf("revoke plan for %s: %w", ticketID, err)
	}
	if ticket.PlanApprovedAt == nil {
		return nil
	}
	ticket.PlanApprovedAt = nil
	ticket.UpdatedAt = e.clock.Now()
	if err := e.store.UpdateTicket(ctx, ticket); err != nil {
		return fmt.Errorf("revoke plan for %s: %w", ticketID, err)
	}
	e.audit(ctx, ticketID, "plan_revoked", "")
	return nil
}

// ReturnToBuild sends a ticket in test back to build, recording the
// reason as a comment and dispatching a developer to address it.
func (e *Engine) ReturnToBuild(ctx context.Context, ticketID, reason string) error {
	ticket, err := e.store.GetTicket(ctx, ticketID)
	if err != nil {
		return fmt.Errorf("return %s to build: %w", ticketID, err)
	}
	ok, err := e.transition(ctx, &ticket, schema.EventTestReturned)
	if err != nil {
		return fmt.Errorf("return %s to build: %w", ticketID, err)
	}
	if !ok {
		return fmt.Errorf("return %s to build: not in test (state %s)", ticketID, ticket.State)
	}
	if _, err := e.store.AddComment(ctx, ticketID, SystemAuthor, "Returned to build: "+reason); err != nil {
		return fmt.Errorf("return %s to build: %w", ticketID, err)
	}
	e.dispatchAsync(ticketID, Target{Role: schema.RoleDeveloper},
		"The ticket was returned from test: "+reason)
	return nil
}
