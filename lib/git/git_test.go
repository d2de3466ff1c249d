// Copyright 2026 The Coterie Authors
// SPDX-License-Identifier: Apache-2.0

package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// gitEnv is the environment for test git invocations: a fixed
// committer identity so commits work on machines with no global
// config.
func gitEnv() []string {
	return append(os.Environ(),
		"GIT_AUTHOR_NAME=Test",
		"GIT_AUTHOR_EMAIL=test@test.local",
		"GIT_COMMITTER_NAME=Test",
		"GIT_COMMITTER_EMAIL=test@test.local",
	)
}

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	command := exec.Command("git", append([]string{"-C", dir}, args...)...)
	command.Env = gitEnv()
	if output, err := command.CombinedOutput(); err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, output)
	}
}

// initRepo creates a repository with one commit on main and returns
// its path.
func initRepo(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	command := exec.Command("git", "init", "-b", "main", dir)
	if output, err := command.CombinedOutput(); err != nil {
		t.Fatalf("git init: %v\n%s", err, output)
	}
	if err := os.WriteFile(filepath.Join(dir, "README"), []byte("seed\n"), 0o644); err != nil {
		t.Fatalf("write README: %v", err)
	}
	runGit(t, dir, "add", "README")
	runGit(t, dir, "commit", "-m", "initial")
	return dir
}

func TestRunWrapsStderr(t *testing.T) {
	t.Parallel()

	repo := NewRepository(initRepo(t))
	_, err := repo.Run(context.Background(), "checkout", "no-such-branch")
	if err == nil {
		t.Fatal("expected error for missing branch")
	}
	message := err.Error()
	if !strings.Contains(message, "checkout") {
		t.Errorf("error %q does not name the subcommand", message)
	}
	if !strings.Contains(message, "stderr") {
		t.Errorf("error %q does not carry stderr", message)
	}
}

func TestIsRepository(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if repo := NewRepository(initRepo(t)); !repo.IsRepository(ctx) {
		t.Error("IsRepository = false for a real repository")
	}
	if repo := NewRepository(t.TempDir()); repo.IsRepository(ctx) {
		t.Error("IsRepository = true for a plain directory")
	}
}

func TestBranchLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewRepository(initRepo(t))

	if repo.BranchExists(ctx, "ticket/42") {
		t.Fatal("branch exists before creation")
	}
	if err := repo.CreateBranch(ctx, "ticket/42", "main"); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	if !repo.BranchExists(ctx, "ticket/42") {
		t.Fatal("branch missing after creation")
	}
	// Recreating over an existing branch must succeed (force).
	if err := repo.CreateBranch(ctx, "ticket/42", "main"); err != nil {
		t.Fatalf("CreateBranch (replace): %v", err)
	}
	if err := repo.DeleteBranch(ctx, "ticket/42"); err != nil {
		t.Fatalf("DeleteBranch: %v", err)
	}
	// Deleting an absent branch is a no-op, not an error.
	if err := repo.DeleteBranch(ctx, "ticket/42"); err != nil {
		t.Fatalf("DeleteBranch (absent): %v", err)
	}
}

func TestWorktreeLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := initRepo(t)
	repo := NewRepository(dir)

	if err := repo.CreateBranch(ctx, "ticket/7", "main"); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	worktree := filepath.Join(t.TempDir(), "wt")
	if err := repo.AddWorktree(ctx, worktree, "ticket/7"); err != nil {
		t.Fatalf("AddWorktree: %v", err)
	}

	paths, err := repo.Worktrees(ctx)
	if err != nil {
		t.Fatalf("Worktrees: %v", err)
	}
	found := false
	for _, p := range paths {
		if strings.HasSuffix(p, "wt") {
			found = true
		}
	}
	if !found {
		t.Fatalf("Worktrees = %v, want to include %s", paths, worktree)
	}

	listed, err := NewRepository(worktree).CurrentBranch(ctx)
	if err != nil {
		t.Fatalf("CurrentBranch: %v", err)
	}
	if listed != "ticket/7" {
		t.Errorf("worktree branch = %q, want ticket/7", listed)
	}

	if err := repo.RemoveWorktree(ctx, worktree); err != nil {
		t.Fatalf("RemoveWorktree: %v", err)
	}
	// Removing an unknown worktree is a no-op.
	if err := repo.RemoveWorktree(ctx, worktree); err != nil {
		t.Fatalf("RemoveWorktree (absent): %v", err)
	}
}

func TestMergeCreatesMergeCommit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := initRepo(t)
	repo := NewRepository(dir)

	runGit(t, dir, "checkout", "-b", "ticket/9")
	if err := os.WriteFile(filepath.Join(dir, "work.txt"), []byte("done\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	runGit(t, dir, "add", "work.txt")
	runGit(t, dir, "commit", "-m", "ticket work")
	runGit(t, dir, "checkout", "main")

	if err := repo.SetIdentity(ctx, "Shipper", "shipper@test.local"); err != nil {
		t.Fatalf("SetIdentity: %v", err)
	}
	if err := repo.Merge(ctx, "ticket/9", "merge ticket/9"); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	// --no-ff means HEAD must have two parents.
	output, err := repo.Run(ctx, "rev-list", "--parents", "-n", "1", "HEAD")
	if err != nil {
		t.Fatalf("rev-list: %v", err)
	}
	if fields := strings.Fields(output); len(fields) != 3 {
		t.Errorf("HEAD has %d hashes in rev-list output, want 3 (commit + 2 parents)", len(fields))
	}
}

func TestCommitAll(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := initRepo(t)
	repo := NewRepository(dir)
	if err := repo.SetIdentity(ctx, "Test", "test@test.local"); err != nil {
		t.Fatalf("SetIdentity: %v", err)
	}

	// Nothing staged: no commit, no error.
	committed, err := repo.CommitAll(ctx, "empty")
	if err != nil {
		t.Fatalf("CommitAll (clean): %v", err)
	}
	if committed {
		t.Error("CommitAll reported a commit on a clean tree")
	}

	if err := os.WriteFile(filepath.Join(dir, "new.txt"), []byte("x\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	committed, err = repo.CommitAll(ctx, "add new.txt")
	if err != nil {
		t.Fatalf("CommitAll: %v", err)
	}
	if !committed {
		t.Error("CommitAll did not commit staged changes")
	}
}
