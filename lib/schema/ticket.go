// Copyright 2026 The Coterie Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"fmt"
	"time"
)

// State is a ticket's lifecycle phase. Tickets move strictly through
// the transition table below; the engine layers approval gates on top
// (a ticket leaves plan only once the plan is approved, and reaches
// ship only through an actual merge).
type State string

const (
	StateResearch State = "research"
	StatePlan     State = "plan"
	StateBuild    State = "build"
	StateTest     State = "test"
	StateShip     State = "ship"
)

// States lists all lifecycle states in forward order.
func States() []State {
	return []State{StateResearch, StatePlan, StateBuild, StateTest, StateShip}
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateResearch, StatePlan, StateBuild, StateTest, StateShip:
		return true
	}
	return false
}

// Event is a lifecycle trigger. Together with the current state it
// determines the next state via Transition.
type Event string

const (
	// EventResearchApproved moves an approved research phase to plan.
	EventResearchApproved Event = "research_approved"

	// EventPlanApproved moves an approved plan to build.
	EventPlanApproved Event = "plan_approved"

	// EventBuildComplete moves finished implementation work to test.
	EventBuildComplete Event = "build_complete"

	// EventTestReturned sends a failing ticket from test back to
	// build, carrying a reason in the triggering comment.
	EventTestReturned Event = "test_returned"

	// EventMerged moves a ticket to ship. Only the engine's ship path
	// emits this, after a merge commit (or the file-copy recovery
	// equivalent) exists.
	EventMerged Event = "merged"
)

// transitions is the full (state, event) → state table. Anything not
// listed is an invalid transition.
var transitions = map[State]map[Event]State{
	StateResearch: {EventResearchApproved: StatePlan},
	StatePlan:     {EventPlanApproved: StateBuild},
	StateBuild:    {EventBuildComplete: StateTest},
	StateTest: {
		EventTestReturned: StateBuild,
		EventMerged:       StateShip,
	},
}

// Transition returns the state that from moves to on event. The
// second result is false for any pair outside the table.
func Transition(from State, event Event) (State, bool) {
	next, ok := transitions[from][event]
	return next, ok
}

// TicketType categorizes the work a ticket represents.
type TicketType string

const (
	TypeFeature TicketType = "feature"
	TypeBug     TicketType = "bug"
	TypeChore   TicketType = "chore"
)

// Valid reports whether t is a known ticket type.
func (t TicketType) Valid() bool {
	switch t {
	case TypeFeature, TypeBug, TypeChore:
		return true
	}
	return false
}

// Ticket is a unit of work driven through the lifecycle by agent
// dispatches. One authoritative assignee at a time; completions from
// superseded assignees degrade to comments.
type Ticket struct {
	ID                 string     `json:"id"`
	ProjectID          string     `json:"project_id"`
	Title              string     `json:"title"`
	Description        string     `json:"description,omitempty"`
	AcceptanceCriteria string     `json:"acceptance_criteria,omitempty"`
	Type               TicketType `json:"type"`
	State              State      `json:"state"`

	// AssigneePersonaID is the persona currently authorized to
	// produce authoritative documents for this ticket.
	AssigneePersonaID string `json:"assignee_persona_id,omitempty"`

	// Completion and approval timestamps for the two gated phases.
	// Nil means not completed / not approved. Approvals are
	// idempotent: clearing an already-nil timestamp is a no-op.
	ResearchCompletedAt *time.Time `json:"research_completed_at,omitempty"`
	ResearchApprovedAt  *time.Time `json:"research_approved_at,omitempty"`
	PlanCompletedAt     *time.Time `json:"plan_completed_at,omitempty"`
	PlanApprovedAt      *time.Time `json:"plan_approved_at,omitempty"`

	// MergeCommit is the hash of the merge (or recovery) commit that
	// shipped this ticket. Set only by the ship path.
	MergeCommit string     `json:"merge_commit,omitempty"`
	MergedAt    *time.Time `json:"merged_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks structural invariants on a ticket.
func (t *Ticket) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("ticket: ID is required")
	}
	if t.ProjectID == "" {
		return fmt.Errorf("ticket %s: ProjectID is required", t.ID)
	}
	if t.Title == "" {
		return fmt.Errorf("ticket %s: Title is required", t.ID)
	}
	if !t.Type.Valid() {
		return fmt.Errorf("ticket %s: unknown type %q", t.ID, t.Type)
	}
	if !t.State.Valid() {
		return fmt.Errorf("ticket %s: unknown state %q", t.ID, t.State)
	}
	if t.State == StateShip && t.MergeCommit == "" {
		return fmt.Errorf("ticket %s: state ship without a merge commit", t.ID)
	}
	return nil
}

// BranchName returns the git branch a ticket's workspace is bound to.
func (t *Ticket) BranchName() string {
	return TicketBranch(t.ID)
}

// TicketBranch computes the branch name for a ticket ID.
func TicketBranch(ticketID string) string {
	return "ticket/" + ticketID
}
