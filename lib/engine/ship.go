// Copyright 2026 The Coterie Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/coterie-dev/coterie/lib/git"
	"github.com/coterie-dev/coterie/lib/schema"
)

// Ship merges a ticket's branch into the project's main checkout and
// cleans the workspace up. The returned slice is the ordered log of
// attempted steps, populated even on failure.
//
// When the worktree's own repository metadata has been overwritten by
// a nested tool (its .git turned from a worktree pointer file into a
// real directory), merge is impossible; the recovery path copies the
// worktree's files into the main checkout and commits them there,
// then removes the corrupted worktree. Either way the ticket's state
// flips to ship only after the resulting commit exists.
func (e *Engine) Ship(ctx context.Context, ticketID string) (steps []string, err error) {
	ticket, err := e.store.GetTicket(ctx, ticketID)
	if err != nil {
		return steps, fmt.Errorf("ship %s: %w", ticketID, err)
	}
	if ticket.State != schema.StateTest {
		return steps, fmt.Errorf("ship %s: ticket is in %s, not test", ticketID, ticket.State)
	}
	project, err := e.store.GetProject(ctx, ticket.ProjectID)
	if err != nil {
		return steps, fmt.Errorf("ship %s: %w", ticketID, err)
	}

	repoDir := e.workspaces.RepoDir(project)
	worktreeDir := e.workspaces.WorktreeDir(project, ticketID)
	branch := schema.TicketBranch(ticketID)
	repo := git.NewRepository(repoDir)

	var mergeCommit string
	err = e.queue.Shared(ctx, repoDir, func() error {
		if nestedRepository(worktreeDir) {
			steps = append(steps, "detected nested repository metadata in "+worktreeDir)
			if err := copyTree(worktreeDir, repoDir); err != nil {
				steps = append(steps, "file copy failed: "+err.Error())
				return fmt.Errorf("copying worktree files: %w", err)
			}
			steps = append(steps, "copied worktree files into main checkout")
			committed, err := repo.CommitAll(ctx, "Ship "+ticketID+" (recovered from nested repository)")
			if err != nil {
				steps = append(steps, "commit failed: "+err.Error())
				return err
			}
			if committed {
				steps = append(steps, "committed recovered files in main checkout")
			} else {
				steps = append(steps, "recovered files matched main checkout, nothing to commit")
			}
			if err := os.RemoveAll(worktreeDir); err != nil {
				steps = append(steps, "could not remove corrupted worktree: "+err.Error())
			} else {
				steps = append(steps, "removed corrupted worktree "+worktreeDir)
			}
			if err := repo.PruneWorktrees(ctx); err != nil {
				e.logger.Warn("worktree prune failed", "project_id", project.ID, "error", err)
			}
		} else {
			if err := repo.Merge(ctx, branch, "Merge "+branch); err != nil {
				steps = append(steps, "merge failed: "+err.Error())
				return err
			}
			steps = append(steps, "merged "+branch+" into main checkout")
		}
		head, err := repo.HeadCommit(ctx)
		if err != nil {
			return err
		}
		mergeCommit = head
		return nil
	})
	if err != nil {
		return steps, fmt.Errorf("ship %s: %w", ticketID, err)
	}

	now := e.clock.Now()
	ticket.MergeCommit = mergeCommit
	ticket.MergedAt = &now
	ok, err := e.transition(ctx, &ticket, schema.EventMerged)
	if err != nil {
		return steps, fmt.Errorf("ship %s: %w", ticketID, err)
	}
	if !ok {
		return steps, fmt.Errorf("ship %s: state %s rejects merge", ticketID, ticket.State)
	}
	steps = append(steps, "recorded merge commit "+mergeCommit)

	cleanupSteps, cleanupErr := e.workspaces.Cleanup(ctx, project, ticketID)
	steps = append(steps, cleanupSteps...)
	if cleanupErr != nil {
		// The merge commit exists and the state is recorded; a
		// cleanup failure leaves debris, not an unshipped ticket.
		steps = append(steps, "cleanup failed: "+cleanupErr.Error())
		e.logger.Warn("post-ship cleanup failed",
			"ticket_id", ticketID,
			"error", cleanupErr,
		)
	}

	e.audit(ctx, ticketID, "shipped", mergeCommit)
	e.logger.Info("ticket shipped", "ticket_id", ticketID, "merge_commit", mergeCommit)
	return steps, nil
}

// nestedRepository reports whether the worktree's .git entry is a
// directory. Linked worktrees keep a pointer file there; a directory
// means some tool initialized a fresh repository on top.
func nestedRepository(worktreeDir string) bool {
	info, err := os.Stat(filepath.Join(worktreeDir, ".git"))
	return err == nil && info.IsDir()
}

// copyTree copies regular files from src into dst, preserving
// relative paths and modes, skipping src's top-level .git.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == ".git" {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		target := filepath.Join(dst, rel)
		if entry.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
