// Copyright 2026 The Coterie Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"testing"
	"time"
)

func TestTransitionTable(t *testing.T) {
	t.Parallel()

	valid := []struct {
		from  State
		event Event
		want  State
	}{
		{StateResearch, EventResearchApproved, StatePlan},
		{StatePlan, EventPlanApproved, StateBuild},
		{StateBuild, EventBuildComplete, StateTest},
		{StateTest, EventTestReturned, StateBuild},
		{StateTest, EventMerged, StateShip},
	}
	for _, c := range valid {
		got, ok := Transition(c.from, c.event)
		if !ok {
			t.Errorf("Transition(%s, %s) invalid, want %s", c.from, c.event, c.want)
			continue
		}
		if got != c.want {
			t.Errorf("Transition(%s, %s) = %s, want %s", c.from, c.event, got, c.want)
		}
	}
}

func TestTransitionRejectsInvalidPairs(t *testing.T) {
	t.Parallel()

	invalid := []struct {
		from  State
		event Event
	}{
		{StateResearch, EventPlanApproved},
		{StateResearch, EventMerged},
		{StatePlan, EventResearchApproved},
		{StateBuild, EventMerged},
		{StateShip, EventMerged},
		{StateShip, EventTestReturned},
		{StateTest, EventBuildComplete},
	}
	for _, c := range invalid {
		if next, ok := Transition(c.from, c.event); ok {
			t.Errorf("Transition(%s, %s) = %s, want invalid", c.from, c.event, next)
		}
	}
}

func TestTicketValidate(t *testing.T) {
	t.Parallel()

	now := time.Now()
	base := Ticket{
		ID:        "tk-1",
		ProjectID: "pr-1",
		Title:     "Add login",
		Type:      TypeFeature,
		State:     StateResearch,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("valid ticket rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Ticket)
	}{
		{"missing id", func(tk *Ticket) { tk.ID = "" }},
		{"missing project", func(tk *Ticket) { tk.ProjectID = "" }},
		{"missing title", func(tk *Ticket) { tk.Title = "" }},
		{"bad type", func(tk *Ticket) { tk.Type = "epic" }},
		{"bad state", func(tk *Ticket) { tk.State = "done" }},
		{"ship without merge", func(tk *Ticket) { tk.State = StateShip }},
	}
	for _, c := range cases {
		ticket := base
		c.mutate(&ticket)
		if err := ticket.Validate(); err == nil {
			t.Errorf("%s: Validate accepted an invalid ticket", c.name)
		}
	}
}

func TestTicketBranch(t *testing.T) {
	t.Parallel()

	if got := TicketBranch("tk-42"); got != "ticket/tk-42" {
		t.Errorf("TicketBranch = %q, want ticket/tk-42", got)
	}
}

func TestDocumentValidate(t *testing.T) {
	t.Parallel()

	doc := Document{
		TicketID:        "tk-1",
		Type:            DocResearch,
		Version:         1,
		Content:         "## Findings\n...",
		AuthorPersonaID: "pe-1",
	}
	if err := doc.Validate(); err != nil {
		t.Fatalf("valid document rejected: %v", err)
	}

	bad := doc
	bad.Version = 0
	if err := bad.Validate(); err == nil {
		t.Error("version 0 accepted")
	}
	bad = doc
	bad.Type = "retrospective"
	if err := bad.Validate(); err == nil {
		t.Error("unknown type accepted")
	}
}

func TestRoleValid(t *testing.T) {
	t.Parallel()

	for _, role := range Roles() {
		if !role.Valid() {
			t.Errorf("listed role %q reported invalid", role)
		}
	}
	if Role("manager").Valid() {
		t.Error("unknown role reported valid")
	}
}
