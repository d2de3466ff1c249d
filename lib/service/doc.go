// Copyright 2026 The Coterie Authors
// SPDX-License-Identifier: Apache-2.0

// Package service exposes the engine's control plane over a Unix
// socket. The protocol is CBOR request-response, one request per
// connection: the client writes a single CBOR map carrying an
// "action" field plus action-specific parameters, the server answers
// with {ok, error?, data?} and closes.
package service
