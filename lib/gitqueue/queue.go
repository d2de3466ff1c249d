// Copyright 2026 The Coterie Authors
// SPDX-License-Identifier: Apache-2.0

// Package gitqueue serializes operations that touch a repository's
// shared metadata (refs, locks, object database). Concurrent writers
// to that state can corrupt it; operations queued under the same
// repository path run strictly one after another, while operations for
// different repositories proceed independently. Worktree-local queries
// (status, diff) bypass the queue entirely via Local.
package gitqueue

import (
	"context"
	"sync"
)

// Queue provides per-repository-path FIFO execution. The zero value
// is not usable; construct with New. One Queue instance is shared per
// application context — consumers receive it by injection, never via
// a package-level singleton, so tests get isolated instances.
type Queue struct {
	mu    sync.Mutex
	tails map[string]chan struct{}
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{tails: make(map[string]chan struct{})}
}

// Shared runs op after every operation previously queued under the
// same repoPath has settled. A prior operation's failure does not
// block successors; its error is returned to its own caller only.
// The per-path chain entry is released once the last queued operation
// finishes.
//
// Shared blocks the calling goroutine until op completes, returning
// op's error. Context cancellation while waiting in line abandons the
// slot and returns ctx.Err() without running op.
func (q *Queue) Shared(ctx context.Context, repoPath string, op func() error) error {
	done := make(chan struct{})

	q.mu.Lock()
	predecessor := q.tails[repoPath]
	q.tails[repoPath] = done
	q.mu.Unlock()

	// release marks this slot settled and removes the chain entry if
	// no newer operation has queued behind it.
	release := func() {
		close(done)
		q.mu.Lock()
		if q.tails[repoPath] == done {
			delete(q.tails, repoPath)
		}
		q.mu.Unlock()
	}

	if predecessor != nil {
		select {
		case <-predecessor:
		case <-ctx.Done():
			// Settle the abandoned slot only after the predecessor
			// settles, otherwise a successor queued behind this slot
			// could start while the predecessor is still running.
			go func() {
				<-predecessor
				release()
			}()
			return ctx.Err()
		}
	}

	defer release()
	return op()
}

// SharedResult is Shared for operations that return a value.
func SharedResult[T any](ctx context.Context, q *Queue, repoPath string, op func() (T, error)) (T, error) {
	var result T
	err := q.Shared(ctx, repoPath, func() error {
		var opErr error
		result, opErr = op()
		return opErr
	})
	return result, err
}

// Local runs op immediately without serialization. For operations
// touching only worktree-local state, which cannot race shared
// repository metadata.
func (q *Queue) Local(op func() error) error {
	return op()
}
