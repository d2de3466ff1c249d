// Copyright 2026 The Coterie Authors
// SPDX-License-Identifier: Apache-2.0

package sandboxfs

import (
	"context"
	"errors"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

const (
	// DefaultTimeout bounds a subprocess's wall-clock time when the
	// caller does not specify one.
	DefaultTimeout = 30 * time.Second

	// DefaultOutputLimit bounds combined stdout+stderr capture. Output
	// beyond the limit is discarded; the process keeps running.
	DefaultOutputLimit = 512 * 1024

	// timeoutExitCode is the synthetic exit code reported when a
	// subprocess is killed for exceeding its timeout.
	timeoutExitCode = 124
)

// RunOptions configures a single subprocess execution.
type RunOptions struct {
	// Dir is the working directory, relative to the workspace root.
	// Empty means the root itself. A Dir that fails path validation
	// is the one condition under which Run returns an error.
	Dir string

	// Timeout bounds wall-clock execution. Zero means DefaultTimeout.
	Timeout time.Duration

	// Env is appended to the subprocess environment.
	Env []string

	// OutputLimit caps combined stdout+stderr bytes. Zero means
	// DefaultOutputLimit.
	OutputLimit int
}

// RunResult is the outcome of a subprocess execution. Nonzero exits
// and timeouts are reported here, never as Go errors.
type RunResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
}

// Run executes cmd with args inside the workspace. The process is
// killed when the timeout elapses; its partial output and a synthetic
// nonzero exit code are returned in the result.
func (e *Executor) Run(ctx context.Context, cmd string, args []string, opts RunOptions) (RunResult, error) {
	dir := e.root
	if opts.Dir != "" {
		resolved, err := e.Resolve(opts.Dir)
		if err != nil {
			return RunResult{}, err
		}
		dir = resolved
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = e.runTimeout
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	limit := opts.OutputLimit
	if limit <= 0 {
		limit = e.runOutputLimit
	}
	if limit <= 0 {
		limit = DefaultOutputLimit
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	command := exec.CommandContext(runCtx, cmd, args...)
	command.Dir = dir
	if len(opts.Env) > 0 {
		command.Env = append(command.Environ(), opts.Env...)
	}

	// Run the subprocess in its own process group and kill the whole
	// group on timeout. Killing only the direct child leaves any
	// grandchild holding the output pipes, and Run would block on pipe
	// EOF until it exits. WaitDelay is the backstop for grandchildren
	// that escaped the group before the kill.
	command.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	command.Cancel = func() error {
		return syscall.Kill(-command.Process.Pid, syscall.SIGKILL)
	}
	command.WaitDelay = time.Second

	budget := &outputBudget{remaining: limit}
	stdout := &cappedBuffer{budget: budget}
	stderr := &cappedBuffer{budget: budget}
	command.Stdout = stdout
	command.Stderr = stderr

	err := command.Run()

	result := RunResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	switch {
	case runCtx.Err() == context.DeadlineExceeded:
		result.TimedOut = true
		result.ExitCode = timeoutExitCode
	case err == nil:
		result.ExitCode = 0
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			// Spawn failure (command not found, etc). Surface it
			// through the result like any other nonzero exit so
			// callers have one code path.
			result.ExitCode = 127
			if result.Stderr == "" {
				result.Stderr = err.Error()
			}
		}
	}
	return result, nil
}

// outputBudget is a byte budget shared between the stdout and stderr
// buffers of one subprocess, enforcing a combined cap.
type outputBudget struct {
	mu        sync.Mutex
	remaining int
}

func (b *outputBudget) take(n int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n > b.remaining {
		n = b.remaining
	}
	b.remaining -= n
	return n
}

// cappedBuffer accumulates subprocess output up to the shared budget
// and silently discards the rest. Write never fails: a process that
// exceeds the cap keeps running, only its output is dropped.
type cappedBuffer struct {
	mu     sync.Mutex
	budget *outputBudget
	data   []byte
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	keep := b.budget.take(len(p))
	if keep > 0 {
		b.mu.Lock()
		b.data = append(b.data, p[:keep]...)
		b.mu.Unlock()
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.data)
}
