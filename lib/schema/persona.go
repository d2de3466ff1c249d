// Copyright 2026 The Coterie Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"fmt"
	"time"
)

// Role determines which operations a persona may invoke (via the
// toolprofile registry) and whether its output can become an
// authoritative document for a given phase.
type Role string

const (
	RoleResearcher Role = "researcher"
	RoleDeveloper  Role = "developer"
	RoleDesigner   Role = "designer"
	RoleCritic     Role = "critic"
	RoleHacker     Role = "hacker"
	RoleLead       Role = "lead"
)

// Roles lists all known roles.
func Roles() []Role {
	return []Role{RoleResearcher, RoleDeveloper, RoleDesigner, RoleCritic, RoleHacker, RoleLead}
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleResearcher, RoleDeveloper, RoleDesigner, RoleCritic, RoleHacker, RoleLead:
		return true
	}
	return false
}

// Persona is an agent identity. Its role governs the tool allow-list
// consulted before any dispatch.
type Persona struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Role        Role      `json:"role"`
	ToolProfile string    `json:"tool_profile"`
	CreatedAt   time.Time `json:"created_at"`
}

// Validate checks structural invariants on a persona.
func (p *Persona) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("persona: ID is required")
	}
	if p.Name == "" {
		return fmt.Errorf("persona %s: Name is required", p.ID)
	}
	if !p.Role.Valid() {
		return fmt.Errorf("persona %s: unknown role %q", p.ID, p.Role)
	}
	return nil
}

// RunStatus is the lifecycle of one dispatched agent run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunTimeout   RunStatus = "timeout"
	RunAbandoned RunStatus = "abandoned"
)

// Valid reports whether s is a known run status.
func (s RunStatus) Valid() bool {
	switch s {
	case RunRunning, RunCompleted, RunFailed, RunTimeout, RunAbandoned:
		return true
	}
	return false
}

// AgentRun records one dispatch of a persona against a ticket. There
// is no cancellation path once a run is dispatched; a run made stale
// by reassignment is marked abandoned when its completion arrives.
type AgentRun struct {
	ID          string     `json:"id"`
	TicketID    string     `json:"ticket_id"`
	PersonaID   string     `json:"persona_id"`
	Phase       State      `json:"phase"`
	Status      RunStatus  `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Project owns tickets and one canonical on-disk clone of its
// repository.
type Project struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Slug         string    `json:"slug"`
	RemoteURL    string    `json:"remote_url,omitempty"`
	BuildCommand string    `json:"build_command,omitempty"`
	RunCommand   string    `json:"run_command,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Validate checks structural invariants on a project.
func (p *Project) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("project: ID is required")
	}
	if p.Slug == "" {
		return fmt.Errorf("project %s: Slug is required", p.ID)
	}
	return nil
}
