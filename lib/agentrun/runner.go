// Copyright 2026 The Coterie Authors
// SPDX-License-Identifier: Apache-2.0

// Package agentrun spawns external agent reasoning processes for the
// engine. A run is detached: the engine never blocks a request on
// agent completion, and there is no cancellation path once a process
// is dispatched — the process is expected to finish and its terminal
// output is relayed back through the completion callback. Stale runs
// are neutralized by assignee supersession in the engine, not by
// killing processes.
package agentrun

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
)

// Task describes one unit of work handed to an agent process.
type Task struct {
	TicketID  string
	PersonaID string
	RunID     string

	// Phase is the lifecycle phase this run serves, as a string so
	// the package stays schema-free.
	Phase string

	// SystemPrompt frames the persona and its allowed tools.
	SystemPrompt string

	// Instructions is the concrete ask (ticket body, dispatch
	// comment).
	Instructions string

	// WorkspaceRoot is the resolved worktree the process runs in.
	WorkspaceRoot string
}

// CompleteFunc receives an agent's terminal output. It is invoked
// exactly once per started run, from the run's own goroutine.
type CompleteFunc func(ctx context.Context, ticketID, personaID, output string)

// Runner starts agent runs. The engine depends on this interface;
// tests substitute a fake.
type Runner interface {
	// Start launches the agent for task and returns once the process
	// is running. complete fires later, when the process exits.
	Start(ctx context.Context, task Task, complete CompleteFunc) error
}

// ProcessRunner runs agents as external subprocesses.
type ProcessRunner struct {
	// command is the argv prefix for the agent binary. The system
	// prompt and instructions are written to the process's stdin.
	command []string
	logger  *slog.Logger
}

// NewProcessRunner constructs a runner invoking the given command.
func NewProcessRunner(command []string, logger *slog.Logger) (*ProcessRunner, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("agentrun: command is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ProcessRunner{command: command, logger: logger}, nil
}

// Start spawns the agent process in the task's workspace and waits
// for it in a detached goroutine. The spawn itself can fail; once the
// process is running, all outcomes (including nonzero exits) flow
// through the completion callback as output text.
func (r *ProcessRunner) Start(ctx context.Context, task Task, complete CompleteFunc) error {
	if task.WorkspaceRoot == "" {
		return fmt.Errorf("agentrun: task has no workspace root")
	}

	// Deliberately not CommandContext: the run outlives the request
	// that dispatched it.
	command := exec.Command(r.command[0], r.command[1:]...)
	command.Dir = task.WorkspaceRoot
	command.Env = append(command.Environ(),
		"COTERIE_TICKET_ID="+task.TicketID,
		"COTERIE_PERSONA_ID="+task.PersonaID,
		"COTERIE_RUN_ID="+task.RunID,
		"COTERIE_PHASE="+task.Phase,
	)
	command.Stdin = strings.NewReader(buildStdin(task))

	// Stdout and stderr share one writer; os/exec gives both the
	// same descriptor, so the interleaving is the process's own.
	var output bytes.Buffer
	command.Stdout = &output
	command.Stderr = &output

	if err := command.Start(); err != nil {
		return fmt.Errorf("agentrun: starting %s: %w", r.command[0], err)
	}

	r.logger.Info("agent run started",
		"ticket_id", task.TicketID,
		"persona_id", task.PersonaID,
		"run_id", task.RunID,
		"pid", command.Process.Pid,
	)

	go func() {
		err := command.Wait()
		if err != nil {
			r.logger.Warn("agent process exited with error",
				"run_id", task.RunID,
				"error", err,
			)
		}
		complete(context.Background(), task.TicketID, task.PersonaID, output.String())
	}()
	return nil
}

// buildStdin assembles the text fed to the agent process.
func buildStdin(task Task) string {
	var b strings.Builder
	if task.SystemPrompt != "" {
		b.WriteString(task.SystemPrompt)
		b.WriteString("\n\n")
	}
	b.WriteString(task.Instructions)
	b.WriteString("\n")
	return b.String()
}
