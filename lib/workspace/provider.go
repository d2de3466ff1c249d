// Copyright 2026 The Coterie Authors
// SPDX-License-Identifier: Apache-2.0

// Package workspace resolves and provisions per-ticket git worktrees
// over a project's canonical clone.
//
// On-disk layout, enforced at resolve time:
//
//	{projectsRoot}/{slug}/repo/            canonical clone
//	{projectsRoot}/{slug}/worktrees/{id}/  per-ticket checkout, branch ticket/{id}
//
// A missing or metadata-less canonical clone is a fatal
// [StructureError] with a remediation hint — never retried, because
// retrying cannot create a repository.
//
// Provisioning touches shared repository metadata (refs, object
// database), so each step runs through the injected gitqueue under
// the repository path. Resolution of an already-provisioned worktree
// is idempotent and queue-free.
package workspace

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/coterie-dev/coterie/lib/git"
	"github.com/coterie-dev/coterie/lib/gitqueue"
	"github.com/coterie-dev/coterie/lib/sandboxfs"
	"github.com/coterie-dev/coterie/lib/schema"
)

// StructureError reports a project whose on-disk layout violates the
// canonical structure. It is a precondition failure: the caller must
// fix the layout, the engine will not retry.
type StructureError struct {
	ProjectID string
	Path      string
	Reason    string
}

func (e *StructureError) Error() string {
	return fmt.Sprintf("project %s: %s at %s; expected a git repository at {projectsRoot}/{slug}/repo — recreate the clone and retry",
		e.ProjectID, e.Reason, e.Path)
}

// Workspace is a resolved checkout bound to a sandboxed executor.
// TicketID is empty for the main checkout, which is never auto-cleaned.
type Workspace struct {
	ProjectID string
	TicketID  string
	Root      string
	Branch    string
	Executor  *sandboxfs.Executor
}

// Provider resolves and provisions workspaces.
type Provider struct {
	projectsRoot string
	queue        *gitqueue.Queue
	logger       *slog.Logger

	// remote is the remote name fetched during provisioning.
	remote string

	runTimeout     time.Duration
	runOutputLimit int
}

// Config holds Provider construction parameters.
type Config struct {
	// ProjectsRoot is the directory holding one subdirectory per
	// project slug. Required.
	ProjectsRoot string

	// Queue serializes shared-metadata git operations. Required.
	Queue *gitqueue.Queue

	// Logger receives provisioning messages. Nil means discard.
	Logger *slog.Logger

	// Remote is the remote name used for fetch and default-branch
	// lookup. Empty means "origin".
	Remote string

	// RunTimeout and RunOutputLimit override the sandboxfs defaults
	// for subprocesses run inside resolved workspaces. Zero keeps the
	// sandboxfs defaults.
	RunTimeout     time.Duration
	RunOutputLimit int
}

// NewProvider constructs a Provider.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.ProjectsRoot == "" {
		return nil, fmt.Errorf("workspace: ProjectsRoot is required")
	}
	if cfg.Queue == nil {
		return nil, fmt.Errorf("workspace: Queue is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	remote := cfg.Remote
	if remote == "" {
		remote = "origin"
	}
	return &Provider{
		projectsRoot:   cfg.ProjectsRoot,
		queue:          cfg.Queue,
		logger:         logger,
		remote:         remote,
		runTimeout:     cfg.RunTimeout,
		runOutputLimit: cfg.RunOutputLimit,
	}, nil
}

// newExecutor roots a sandboxed executor at dir with the provider's
// subprocess defaults applied.
func (p *Provider) newExecutor(dir string) (*sandboxfs.Executor, error) {
	executor, err := sandboxfs.New(dir)
	if err != nil {
		return nil, err
	}
	executor.SetRunDefaults(p.runTimeout, p.runOutputLimit)
	return executor, nil
}

// RepoDir returns the canonical clone directory for a project.
func (p *Provider) RepoDir(project schema.Project) string {
	return filepath.Join(p.projectsRoot, project.Slug, "repo")
}

// WorktreeDir returns the worktree directory for a ticket.
func (p *Provider) WorktreeDir(project schema.Project, ticketID string) string {
	return filepath.Join(p.projectsRoot, project.Slug, "worktrees", ticketID)
}

// checkStructure verifies the canonical clone exists and carries
// valid repository metadata.
func (p *Provider) checkStructure(ctx context.Context, project schema.Project) (*git.Repository, error) {
	repoDir := p.RepoDir(project)
	info, err := os.Stat(repoDir)
	if err != nil || !info.IsDir() {
		return nil, &StructureError{ProjectID: project.ID, Path: repoDir, Reason: "canonical clone missing"}
	}
	repo := git.NewRepository(repoDir)
	if !repo.IsRepository(ctx) {
		return nil, &StructureError{ProjectID: project.ID, Path: repoDir, Reason: "directory is not a git repository"}
	}
	return repo, nil
}

// Resolve returns the workspace for a ticket, provisioning it on
// first use. With an empty ticketID it returns the main checkout on
// its current branch.
func (p *Provider) Resolve(ctx context.Context, project schema.Project, ticketID string) (*Workspace, error) {
	repo, err := p.checkStructure(ctx, project)
	if err != nil {
		return nil, err
	}

	if ticketID == "" {
		var branch string
		err := p.queue.Local(func() error {
			var branchErr error
			branch, branchErr = repo.CurrentBranch(ctx)
			return branchErr
		})
		if err != nil {
			return nil, fmt.Errorf("resolving main checkout for %s: %w", project.ID, err)
		}
		executor, err := p.newExecutor(repo.Dir())
		if err != nil {
			return nil, err
		}
		return &Workspace{
			ProjectID: project.ID,
			Root:      executor.Root(),
			Branch:    branch,
			Executor:  executor,
		}, nil
	}

	branch := schema.TicketBranch(ticketID)
	worktreeDir := p.WorktreeDir(project, ticketID)

	// Reuse an existing worktree: resolution is idempotent.
	if info, err := os.Stat(worktreeDir); err == nil && info.IsDir() {
		executor, err := p.newExecutor(worktreeDir)
		if err != nil {
			return nil, err
		}
		return &Workspace{
			ProjectID: project.ID,
			TicketID:  ticketID,
			Root:      executor.Root(),
			Branch:    branch,
			Executor:  executor,
		}, nil
	}

	if err := p.provision(ctx, project, repo, ticketID, branch, worktreeDir); err != nil {
		return nil, err
	}

	executor, err := p.newExecutor(worktreeDir)
	if err != nil {
		return nil, err
	}
	p.logger.Info("workspace provisioned",
		"project_id", project.ID,
		"ticket_id", ticketID,
		"branch", branch,
		"path", worktreeDir,
	)
	return &Workspace{
		ProjectID: project.ID,
		TicketID:  ticketID,
		Root:      executor.Root(),
		Branch:    branch,
		Executor:  executor,
	}, nil
}

// provision creates the branch and worktree for a ticket. Every step
// that touches shared repository metadata is serialized under the
// repository path.
func (p *Provider) provision(ctx context.Context, project schema.Project, repo *git.Repository, ticketID, branch, worktreeDir string) error {
	repoKey := repo.Dir()

	if project.RemoteURL != "" {
		if err := p.queue.Shared(ctx, repoKey, func() error {
			return repo.Fetch(ctx, p.remote)
		}); err != nil {
			return fmt.Errorf("provisioning %s: %w", ticketID, err)
		}
	}

	if err := p.queue.Shared(ctx, repoKey, func() error {
		return repo.DeleteBranch(ctx, branch)
	}); err != nil {
		return fmt.Errorf("provisioning %s: %w", ticketID, err)
	}

	if err := p.queue.Shared(ctx, repoKey, func() error {
		start := p.startPoint(ctx, project, repo)
		return repo.CreateBranch(ctx, branch, start)
	}); err != nil {
		return fmt.Errorf("provisioning %s: %w", ticketID, err)
	}

	if err := p.queue.Shared(ctx, repoKey, func() error {
		if err := os.MkdirAll(filepath.Dir(worktreeDir), 0o755); err != nil {
			return fmt.Errorf("creating worktrees directory: %w", err)
		}
		return repo.AddWorktree(ctx, worktreeDir, branch)
	}); err != nil {
		return fmt.Errorf("provisioning %s: %w", ticketID, err)
	}

	// Committer identity writes repository-level config, which is
	// shared between worktrees — hence queued too.
	if err := p.queue.Shared(ctx, repoKey, func() error {
		worktree := git.NewRepository(worktreeDir)
		return worktree.SetIdentity(ctx, "ticket-agent "+ticketID, "agent+"+ticketID+"@coterie.local")
	}); err != nil {
		return fmt.Errorf("provisioning %s: %w", ticketID, err)
	}

	return nil
}

// startPoint picks where a fresh ticket branch begins: the remote
// default branch when a remote is configured, otherwise the clone's
// current branch.
func (p *Provider) startPoint(ctx context.Context, project schema.Project, repo *git.Repository) string {
	if project.RemoteURL != "" {
		return p.remote + "/" + repo.RemoteDefaultBranch(ctx, p.remote)
	}
	branch, err := repo.CurrentBranch(ctx)
	if err != nil {
		return "HEAD"
	}
	return branch
}

// Cleanup removes a ticket's worktree and branch, returning an
// ordered log of attempted steps. A missing worktree or branch is
// skipped, not an error. Without a ticketID, Cleanup is a no-op: the
// main checkout is never auto-cleaned.
func (p *Provider) Cleanup(ctx context.Context, project schema.Project, ticketID string) ([]string, error) {
	if ticketID == "" {
		return nil, nil
	}
	repo, err := p.checkStructure(ctx, project)
	if err != nil {
		return nil, err
	}
	repoKey := repo.Dir()
	branch := schema.TicketBranch(ticketID)
	worktreeDir := p.WorktreeDir(project, ticketID)

	var steps []string
	step := func(format string, args ...any) {
		steps = append(steps, fmt.Sprintf(format, args...))
	}

	if err := p.queue.Shared(ctx, repoKey, func() error {
		if _, statErr := os.Stat(worktreeDir); statErr != nil {
			// The directory may be gone while git still tracks the
			// worktree (e.g. after the nested-metadata recovery
			// path deletes it). Prune the bookkeeping either way.
			step("worktree %s absent, pruning bookkeeping", worktreeDir)
			return repo.PruneWorktrees(ctx)
		}
		step("removing worktree %s", worktreeDir)
		return repo.RemoveWorktree(ctx, worktreeDir)
	}); err != nil {
		step("worktree removal failed: %v", err)
		return steps, fmt.Errorf("cleanup %s: %w", ticketID, err)
	}

	if err := p.queue.Shared(ctx, repoKey, func() error {
		if !repo.BranchExists(ctx, branch) {
			step("branch %s absent, skipping", branch)
			return nil
		}
		step("deleting branch %s", branch)
		return repo.DeleteBranch(ctx, branch)
	}); err != nil {
		step("branch deletion failed: %v", err)
		return steps, fmt.Errorf("cleanup %s: %w", ticketID, err)
	}

	p.logger.Info("workspace cleaned up", "project_id", project.ID, "ticket_id", ticketID)
	return steps, nil
}
