// Copyright 2026 The Coterie Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema defines the domain types shared across the engine:
// projects, tickets and their lifecycle state machine, versioned
// ticket documents, comments, personas, and agent runs.
//
// The ticket lifecycle is an explicit transition table over typed
// states and events, not a string column plus nullable-timestamp
// convention. Invalid transitions are unrepresentable at the API
// level: [Transition] either returns the next state or reports the
// pair as invalid, and callers never write the state field directly.
//
// This package is pure data: no I/O, no logging, no storage. The
// store persists these types; the engine enforces the approval gates
// that sit on top of the raw transition table.
package schema
