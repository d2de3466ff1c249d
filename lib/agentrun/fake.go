// Copyright 2026 The Coterie Authors
// SPDX-License-Identifier: Apache-2.0

package agentrun

import (
	"context"
	"sync"
)

// FakeRunner records started tasks instead of spawning processes.
// Tests drive completions explicitly via Finish.
type FakeRunner struct {
	mu      sync.Mutex
	started []StartedTask

	// StartErr, when set, is returned from Start without recording
	// the task.
	StartErr error
}

// StartedTask pairs a recorded task with its completion callback.
type StartedTask struct {
	Task     Task
	Complete CompleteFunc
}

// NewFakeRunner constructs an empty fake.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{}
}

// Start records the task.
func (r *FakeRunner) Start(ctx context.Context, task Task, complete CompleteFunc) error {
	if r.StartErr != nil {
		return r.StartErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, StartedTask{Task: task, Complete: complete})
	return nil
}

// Started returns a copy of all recorded tasks.
func (r *FakeRunner) Started() []StartedTask {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]StartedTask, len(r.started))
	copy(out, r.started)
	return out
}

// Last returns the most recently started task, or false if none.
func (r *FakeRunner) Last() (StartedTask, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.started) == 0 {
		return StartedTask{}, false
	}
	return r.started[len(r.started)-1], true
}

// Finish invokes the completion callback of the started task at
// index i with the given output.
func (r *FakeRunner) Finish(ctx context.Context, i int, output string) {
	r.mu.Lock()
	task := r.started[i]
	r.mu.Unlock()
	task.Complete(ctx, task.Task.TicketID, task.Task.PersonaID, output)
}
