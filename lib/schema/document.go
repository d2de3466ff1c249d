// Copyright 2026 The Coterie Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"fmt"
	"time"
)

// DocumentType identifies which artifact a versioned document holds.
type DocumentType string

const (
	DocResearch           DocumentType = "research"
	DocImplementationPlan DocumentType = "implementation_plan"
	DocDesign             DocumentType = "design"
	DocSecurityReview     DocumentType = "security_review"
)

// Valid reports whether d is a known document type.
func (d DocumentType) Valid() bool {
	switch d {
	case DocResearch, DocImplementationPlan, DocDesign, DocSecurityReview:
		return true
	}
	return false
}

// Document is one numbered, append-only snapshot of a ticket
// artifact. Versions for a (ticket, type) pair count up from 1 with
// no gaps; the highest version is authoritative. Research documents
// additionally follow the author → critic → author chain: v2 is an
// appended critique, v3 folds the critique in, and the chain stops
// there.
type Document struct {
	TicketID        string       `json:"ticket_id"`
	Type            DocumentType `json:"type"`
	Version         int          `json:"version"`
	Content         string       `json:"content"`
	AuthorPersonaID string       `json:"author_persona_id"`
	CreatedAt       time.Time    `json:"created_at"`
}

// Validate checks structural invariants on a document.
func (d *Document) Validate() error {
	if d.TicketID == "" {
		return fmt.Errorf("document: TicketID is required")
	}
	if !d.Type.Valid() {
		return fmt.Errorf("document for %s: unknown type %q", d.TicketID, d.Type)
	}
	if d.Version < 1 {
		return fmt.Errorf("document for %s: version %d, must be >= 1", d.TicketID, d.Version)
	}
	if d.Content == "" {
		return fmt.Errorf("document for %s: empty content", d.TicketID)
	}
	return nil
}

// Comment is a plain, non-authoritative message on a ticket. Seq is a
// per-ticket counter maintained by the store.
type Comment struct {
	TicketID        string    `json:"ticket_id"`
	Seq             int       `json:"seq"`
	AuthorPersonaID string    `json:"author_persona_id"`
	Body            string    `json:"body"`
	CreatedAt       time.Time `json:"created_at"`
}

// AuditEvent is an advisory append-only record of something the
// engine did. Written on every transition and dispatch, never read
// back by the engine itself.
type AuditEvent struct {
	TicketID string    `json:"ticket_id,omitempty"`
	Kind     string    `json:"kind"`
	Detail   string    `json:"detail,omitempty"`
	At       time.Time `json:"at"`
}
