// Copyright 2026 The Coterie Authors
// SPDX-License-Identifier: Apache-2.0

// Package git provides typed access to the git CLI for workspace
// management: fetching, branch create/delete, worktree add/remove, and
// merging. All commands target a specific repository directory via the
// -C flag, which every Repository method injects — there is no default
// directory, callers must always say which repository they mean.
//
// Failures from git subcommands are wrapped with the subcommand name
// and a tail of stderr. Read-only queries about refs and branches
// report absence as a boolean result, not an error.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// stderrTailLimit bounds how much stderr is embedded in error
// messages. Git can be chatty on failure; the tail carries the reason.
const stderrTailLimit = 1024

// Repository represents a git repository at a specific directory. All
// operations target this directory via "git -C <dir>".
type Repository struct {
	dir string
}

// NewRepository returns a Repository targeting the given directory,
// which may be a primary checkout or a linked worktree.
func NewRepository(dir string) *Repository {
	return &Repository{dir: dir}
}

// Dir returns the repository directory.
func (r *Repository) Dir() string { return r.dir }

// Run executes a git subcommand targeting this repository and returns
// stdout. On failure the error names the subcommand and carries the
// stderr tail.
func (r *Repository) Run(ctx context.Context, args ...string) (string, error) {
	fullArgs := append([]string{"-C", r.dir}, args...)
	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, "git", fullArgs...)
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return "", fmt.Errorf("git %s in %s: %w (stderr: %s)",
			subcommand(args), r.dir, err, stderrTail(stderr.String()))
	}
	return stdout.String(), nil
}

// Try executes a git subcommand and reports success as a boolean,
// swallowing the nonzero exit. For queries whose failure is an answer
// ("does this branch exist"), not an error.
func (r *Repository) Try(ctx context.Context, args ...string) bool {
	fullArgs := append([]string{"-C", r.dir}, args...)
	command := exec.CommandContext(ctx, "git", fullArgs...)
	return command.Run() == nil
}

// subcommand extracts the git subcommand for error messages, skipping
// leading flags like -c options.
func subcommand(args []string) string {
	for _, arg := range args {
		if !strings.HasPrefix(arg, "-") {
			return arg
		}
	}
	return strings.Join(args, " ")
}

// stderrTail returns the last stderrTailLimit bytes of s, trimmed.
func stderrTail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stderrTailLimit {
		s = "..." + s[len(s)-stderrTailLimit:]
	}
	return s
}

// IsRepository reports whether the directory contains valid repository
// metadata (a .git directory or worktree pointer file that git itself
// accepts).
func (r *Repository) IsRepository(ctx context.Context) bool {
	output, err := r.Run(ctx, "rev-parse", "--is-inside-work-tree")
	if err != nil {
		return false
	}
	return strings.TrimSpace(output) == "true"
}

// CurrentBranch returns the branch checked out in this repository's
// working tree.
func (r *Repository) CurrentBranch(ctx context.Context) (string, error) {
	output, err := r.Run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// BranchExists reports whether a local branch with the given name
// exists. Absence is a false result, never an error.
func (r *Repository) BranchExists(ctx context.Context, branch string) bool {
	return r.Try(ctx, "show-ref", "--verify", "--quiet", "refs/heads/"+branch)
}

// RemoteDefaultBranch returns the default branch of the named remote
// (what origin/HEAD points at), falling back to "main" when the
// symbolic ref is not set locally.
func (r *Repository) RemoteDefaultBranch(ctx context.Context, remote string) string {
	output, err := r.Run(ctx, "symbolic-ref", "--short", "refs/remotes/"+remote+"/HEAD")
	if err != nil {
		return "main"
	}
	return strings.TrimPrefix(strings.TrimSpace(output), remote+"/")
}

// Fetch updates all remote-tracking refs from the named remote.
func (r *Repository) Fetch(ctx context.Context, remote string) error {
	_, err := r.Run(ctx, "fetch", remote)
	return err
}

// DeleteBranch force-deletes a local branch. Deleting a branch that
// does not exist is a no-op.
func (r *Repository) DeleteBranch(ctx context.Context, branch string) error {
	if !r.BranchExists(ctx, branch) {
		return nil
	}
	_, err := r.Run(ctx, "branch", "-D", branch)
	return err
}

// CreateBranch creates a branch at the given start point, replacing
// any existing branch of the same name.
func (r *Repository) CreateBranch(ctx context.Context, branch, startPoint string) error {
	_, err := r.Run(ctx, "branch", "--force", branch, startPoint)
	return err
}

// AddWorktree checks out branch into a new linked worktree at path.
func (r *Repository) AddWorktree(ctx context.Context, path, branch string) error {
	_, err := r.Run(ctx, "worktree", "add", path, branch)
	return err
}

// RemoveWorktree removes the linked worktree at path, discarding any
// local modifications. Removing an unknown worktree is a no-op.
func (r *Repository) RemoveWorktree(ctx context.Context, path string) error {
	worktrees, err := r.Worktrees(ctx)
	if err != nil {
		return err
	}
	known := false
	for _, w := range worktrees {
		if w == path {
			known = true
			break
		}
	}
	if !known {
		return nil
	}
	_, err = r.Run(ctx, "worktree", "remove", "--force", path)
	return err
}

// PruneWorktrees drops worktree bookkeeping for directories that no
// longer exist on disk.
func (r *Repository) PruneWorktrees(ctx context.Context) error {
	_, err := r.Run(ctx, "worktree", "prune")
	return err
}

// Worktrees returns the paths of all worktrees linked to this
// repository, including the primary checkout.
func (r *Repository) Worktrees(ctx context.Context) ([]string, error) {
	output, err := r.Run(ctx, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, line := range strings.Split(output, "\n") {
		if rest, ok := strings.CutPrefix(line, "worktree "); ok {
			paths = append(paths, rest)
		}
	}
	return paths, nil
}

// SetIdentity configures the committer identity for this repository's
// working tree only (no --global).
func (r *Repository) SetIdentity(ctx context.Context, name, email string) error {
	if _, err := r.Run(ctx, "config", "user.name", name); err != nil {
		return err
	}
	_, err := r.Run(ctx, "config", "user.email", email)
	return err
}

// Merge merges the named branch into the current branch with a merge
// commit (--no-ff), so the result is always detectable as a merge.
func (r *Repository) Merge(ctx context.Context, branch, message string) error {
	_, err := r.Run(ctx, "merge", "--no-ff", "-m", message, branch)
	return err
}

// CommitAll stages everything and commits. Returns false without error
// when there is nothing to commit.
func (r *Repository) CommitAll(ctx context.Context, message string) (bool, error) {
	if _, err := r.Run(ctx, "add", "-A"); err != nil {
		return false, err
	}
	if r.Try(ctx, "diff", "--cached", "--quiet") {
		return false, nil
	}
	if _, err := r.Run(ctx, "commit", "-m", message); err != nil {
		return false, err
	}
	return true, nil
}

// HeadCommit returns the commit hash at HEAD.
func (r *Repository) HeadCommit(ctx context.Context) (string, error) {
	output, err := r.Run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// IsGitError reports whether err originated from a git subcommand
// rather than from process spawning.
func IsGitError(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}
