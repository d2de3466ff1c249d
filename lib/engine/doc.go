// Copyright 2026 The Coterie Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine drives tickets through the research → plan → build →
// test → ship lifecycle. It selects personas for dispatches, resolves
// their workspaces, classifies agent output into versioned documents
// or plain comments, enforces the research critique chain, applies
// approval gates, and performs the final merge-and-cleanup sequence.
//
// The engine is single-process and event-driven. Each inbound call
// (request or completion callback) runs as its own task; state
// transitions are recorded synchronously, while any follow-up
// dispatch is issued asynchronously and never awaited. A failed
// auto-dispatch leaves the ticket static for a human to notice.
package engine
