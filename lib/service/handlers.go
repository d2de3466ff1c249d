// Copyright 2026 The Coterie Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"fmt"

	"github.com/coterie-dev/coterie/lib/codec"
	"github.com/coterie-dev/coterie/lib/engine"
	"github.com/coterie-dev/coterie/lib/schema"
)

// RegisterHandlers binds the full control-plane action set to eng.
func RegisterHandlers(server *SocketServer, eng *engine.Engine) {
	server.Handle("ticket-create", ticketCreate(eng))
	server.Handle("ticket-get", ticketGet(eng))
	server.Handle("ticket-list", ticketList(eng))
	server.Handle("ticket-return", ticketReturn(eng))
	server.Handle("dispatch", dispatch(eng))
	server.Handle("agent-complete", agentComplete(eng))
	server.Handle("approve-research", approval(eng.ApproveResearch))
	server.Handle("approve-plan", approval(eng.ApprovePlan))
	server.Handle("revoke-research", approval(eng.RevokeResearch))
	server.Handle("revoke-plan", approval(eng.RevokePlan))
	server.Handle("ship", ship(eng))
	server.Handle("comment-list", commentList(eng))
}

// decode unmarshals the raw request into params.
func decode(raw []byte, params any) error {
	if err := codec.Unmarshal(raw, params); err != nil {
		return fmt.Errorf("decoding request: %w", err)
	}
	return nil
}

func ticketCreate(eng *engine.Engine) ActionFunc {
	return func(ctx context.Context, raw []byte) (any, error) {
		var params struct {
			ProjectID          string `cbor:"project_id"`
			Title              string `cbor:"title"`
			Description        string `cbor:"description"`
			AcceptanceCriteria string `cbor:"acceptance_criteria"`
			Type               string `cbor:"type"`
		}
		if err := decode(raw, &params); err != nil {
			return nil, err
		}
		ticket, err := eng.CreateTicket(ctx, schema.Ticket{
			ProjectID:          params.ProjectID,
			Title:              params.Title,
			Description:        params.Description,
			AcceptanceCriteria: params.AcceptanceCriteria,
			Type:               schema.TicketType(params.Type),
		})
		if err != nil {
			return nil, err
		}
		return ticket, nil
	}
}

func ticketGet(eng *engine.Engine) ActionFunc {
	return func(ctx context.Context, raw []byte) (any, error) {
		var params struct {
			TicketID string `cbor:"ticket_id"`
		}
		if err := decode(raw, &params); err != nil {
			return nil, err
		}
		ticket, err := eng.GetTicket(ctx, params.TicketID)
		if err != nil {
			return nil, err
		}
		return ticket, nil
	}
}

func ticketList(eng *engine.Engine) ActionFunc {
	return func(ctx context.Context, raw []byte) (any, error) {
		var params struct {
			ProjectID string `cbor:"project_id"`
		}
		if err := decode(raw, &params); err != nil {
			return nil, err
		}
		tickets, err := eng.ListTickets(ctx, params.ProjectID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"tickets": tickets}, nil
	}
}

func ticketReturn(eng *engine.Engine) ActionFunc {
	return func(ctx context.Context, raw []byte) (any, error) {
		var params struct {
			TicketID string `cbor:"ticket_id"`
			Reason   string `cbor:"reason"`
		}
		if err := decode(raw, &params); err != nil {
			return nil, err
		}
		return nil, eng.ReturnToBuild(ctx, params.TicketID, params.Reason)
	}
}

func dispatch(eng *engine.Engine) ActionFunc {
	return func(ctx context.Context, raw []byte) (any, error) {
		var params struct {
			TicketID  string `cbor:"ticket_id"`
			PersonaID string `cbor:"persona_id"`
			Role      string `cbor:"role"`
			Comment   string `cbor:"comment"`
		}
		if err := decode(raw, &params); err != nil {
			return nil, err
		}
		persona, err := eng.Dispatch(ctx, params.TicketID, engine.Target{
			PersonaID: params.PersonaID,
			Role:      schema.Role(params.Role),
		}, params.Comment, engine.Options{})
		if err != nil {
			return nil, err
		}
		return persona, nil
	}
}

func agentComplete(eng *engine.Engine) ActionFunc {
	return func(ctx context.Context, raw []byte) (any, error) {
		var params struct {
			TicketID  string `cbor:"ticket_id"`
			PersonaID string `cbor:"persona_id"`
			Output    string `cbor:"output"`
		}
		if err := decode(raw, &params); err != nil {
			return nil, err
		}
		return nil, eng.AgentComplete(ctx, params.TicketID, params.PersonaID, params.Output)
	}
}

// approval adapts the four timestamp set/clear operations, which all
// share the one-parameter shape.
func approval(op func(ctx context.Context, ticketID string) error) ActionFunc {
	return func(ctx context.Context, raw []byte) (any, error) {
		var params struct {
			TicketID string `cbor:"ticket_id"`
		}
		if err := decode(raw, &params); err != nil {
			return nil, err
		}
		return nil, op(ctx, params.TicketID)
	}
}

func ship(eng *engine.Engine) ActionFunc {
	return func(ctx context.Context, raw []byte) (any, error) {
		var params struct {
			TicketID string `cbor:"ticket_id"`
		}
		if err := decode(raw, &params); err != nil {
			return nil, err
		}
		steps, err := eng.Ship(ctx, params.TicketID)
		if err != nil {
			// The step log is part of the contract even on failure.
			return nil, fmt.Errorf("%w (steps: %v)", err, steps)
		}
		return map[string]any{"steps": steps}, nil
	}
}

func commentList(eng *engine.Engine) ActionFunc {
	return func(ctx context.Context, raw []byte) (any, error) {
		var params struct {
			TicketID string `cbor:"ticket_id"`
		}
		if err := decode(raw, &params); err != nil {
			return nil, err
		}
		comments, err := eng.Comments(ctx, params.TicketID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"comments": comments}, nil
	}
}
