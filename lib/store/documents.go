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

// NextDocumentVersion returns the version the next document of this
// type should carry: highest stored version + 1, starting at 1.
func (s *Store) NextDocumentVersion(ctx context.Context, ticketID string, docType schema.DocumentType) (int, error) {
	next := 1
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT COALESCE(MAX(version), 0) + 1 FROM documents
			 WHERE ticket_id = ? AND type = ?`,
			&sqlitex.ExecOptions{
				Args: []any{ticketID, string(docType)},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					next = stmt.ColumnInt(0)
					return nil
				},
			})
	})
	return next, err
}

// InsertDocument appends a document row. The (ticket, type, version)
// primary key makes double-insertion of the same version an error, not
// a silent overwrite.
func (s *Store) InsertDocument(ctx context.Context, doc schema.Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	return s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`INSERT INTO documents (ticket_id, type, version, content, author_persona_id, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{
				doc.TicketID, string(doc.Type), doc.Version, doc.Content,
				doc.AuthorPersonaID, timeText(s.clock.Now()),
			}})
	})
}

// ReplaceDocument overwrites the content and author of an existing
// version in place. Used for implementation plans, which are revised
// rather than versioned while the ticket sits in the plan phase.
func (s *Store) ReplaceDocument(ctx context.Context, doc schema.Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	return s.withConn(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn,
			`UPDATE documents SET content = ?, author_persona_id = ?, created_at = ?
			 WHERE ticket_id = ? AND type = ? AND version = ?`,
			&sqlitex.ExecOptions{Args: []any{
				doc.Content, doc.AuthorPersonaID, timeText(s.clock.Now()),
				doc.TicketID, string(doc.Type), doc.Version,
			}})
		if err != nil {
			return err
		}
		if conn.Changes() == 0 {
			return fmt.Errorf("document %s/%s v%d: %w", doc.TicketID, doc.Type, doc.Version, ErrNotFound)
		}
		return nil
	})
}

func scanDocument(stmt *sqlite.Stmt) schema.Document {
	return schema.Document{
		TicketID:        stmt.ColumnText(0),
		Type:            schema.DocumentType(stmt.ColumnText(1)),
		Version:         stmt.ColumnInt(2),
		Content:         stmt.ColumnText(3),
		AuthorPersonaID: stmt.ColumnText(4),
		CreatedAt:       mustTime(stmt.ColumnText(5)),
	}
}

// Documents returns all documents of a type for a ticket, highest
// version first.
func (s *Store) Documents(ctx context.Context, ticketID string, docType schema.DocumentType) ([]schema.Document, error) {
	var docs []schema.Document
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT ticket_id, type, version, content, author_persona_id, created_at
			 FROM documents WHERE ticket_id = ? AND type = ?
			 ORDER BY version DESC`,
			&sqlitex.ExecOptions{
				Args: []any{ticketID, string(docType)},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					docs = append(docs, scanDocument(stmt))
					return nil
				},
			})
	})
	return docs, err
}

// LatestDocument returns the authoritative (highest) version, or
// ErrNotFound when the ticket has no document of this type.
func (s *Store) LatestDocument(ctx context.Context, ticketID string, docType schema.DocumentType) (schema.Document, error) {
	docs, err := s.Documents(ctx, ticketID, docType)
	if err != nil {
		return schema.Document{}, err
	}
	if len(docs) == 0 {
		return schema.Document{}, fmt.Errorf("document %s/%s: %w", ticketID, docType, ErrNotFound)
	}
	return docs[0], nil
}

// AddComment appends a comment, assigning the next per-ticket
// sequence number in the same statement as the insert.
func (s *Store) AddComment(ctx context.Context, ticketID, authorPersonaID, body string) (schema.Comment, error) {
	now := s.clock.Now()
	comment := schema.Comment{
		TicketID:        ticketID,
		AuthorPersonaID: authorPersonaID,
		Body:            body,
		CreatedAt:       now,
	}
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		// RETURNING ties the reported seq to the inserted row; a
		// follow-up MAX(seq) could observe a concurrent insert.
		return sqlitex.Execute(conn,
			`INSERT INTO comments (ticket_id, seq, author_persona_id, body, created_at)
			 VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM comments WHERE ticket_id = ?), ?, ?, ?)
			 RETURNING seq`,
			&sqlitex.ExecOptions{
				Args: []any{ticketID, ticketID, authorPersonaID, body, timeText(now)},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					comment.Seq = stmt.ColumnInt(0)
					return nil
				},
			})
	})
	if err != nil {
		return schema.Comment{}, fmt.Errorf("adding comment to %s: %w", ticketID, err)
	}
	return comment, nil
}

// Comments returns a ticket's comments in sequence order.
func (s *Store) Comments(ctx context.Context, ticketID string) ([]schema.Comment, error) {
	var comments []schema.Comment
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT ticket_id, seq, author_persona_id, body, created_at
			 FROM comments WHERE ticket_id = ? ORDER BY seq`,
			&sqlitex.ExecOptions{
				Args: []any{ticketID},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					comments = append(comments, schema.Comment{
						TicketID:        stmt.ColumnText(0),
						Seq:             stmt.ColumnInt(1),
						AuthorPersonaID: stmt.ColumnText(2),
						Body:            stmt.ColumnText(3),
						CreatedAt:       mustTime(stmt.ColumnText(4)),
					})
					return nil
				},
			})
	})
	return comments, err
}

// AppendAudit records an advisory audit event. Failures are returned
// but callers log and continue; the audit log is never load-bearing.
func (s *Store) AppendAudit(ctx context.Context, event schema.AuditEvent) error {
	return s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`INSERT INTO audit_events (ticket_id, kind, detail, at) VALUES (?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{
				event.TicketID, event.Kind, event.Detail, timeText(s.clock.Now()),
			}})
	})
}
