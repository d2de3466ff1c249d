// Copyright 2026 The Coterie Authors
// SPDX-License-Identifier: Apache-2.0

package sandboxfs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// newWorkspace creates a workspace root plus a sibling directory
// outside it, and returns an Executor rooted at the workspace.
func newWorkspace(t *testing.T) (*Executor, string, string) {
	t.Helper()

	base := t.TempDir()
	root := filepath.Join(base, "workspace")
	outside := filepath.Join(base, "outside")
	for _, dir := range []string{root, outside} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}

	executor, err := New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return executor, executor.Root(), outside
}

func TestResolveInvalidPath(t *testing.T) {
	t.Parallel()

	executor, _, _ := newWorkspace(t)
	for _, path := range []string{"", "   ", "\t\n"} {
		_, err := executor.Resolve(path)
		var invalid *InvalidPathError
		if !errors.As(err, &invalid) {
			t.Errorf("Resolve(%q) error = %v, want InvalidPathError", path, err)
		}
	}
}

func TestResolveInsideWorkspace(t *testing.T) {
	t.Parallel()

	executor, root, _ := newWorkspace(t)

	cases := []struct {
		path string
		want string
	}{
		{".", root},
		{"file.txt", filepath.Join(root, "file.txt")},
		{"a/b/c.txt", filepath.Join(root, "a", "b", "c.txt")},
		{"a/../file.txt", filepath.Join(root, "file.txt")},
	}
	for _, c := range cases {
		got, err := executor.Resolve(c.path)
		if err != nil {
			t.Errorf("Resolve(%q): %v", c.path, err)
			continue
		}
		if got != c.want {
			t.Errorf("Resolve(%q) = %q, want %q", c.path, got, c.want)
		}
		if got != root && !strings.HasPrefix(got, root+string(filepath.Separator)) {
			t.Errorf("Resolve(%q) = %q escapes root %q", c.path, got, root)
		}
	}
}

func TestResolveTraversalEscapes(t *testing.T) {
	t.Parallel()

	executor, _, _ := newWorkspace(t)

	for _, path := range []string{"..", "../outside", "a/../../outside/secret.txt"} {
		_, err := executor.Resolve(path)
		var escape *PathEscapeError
		if !errors.As(err, &escape) {
			t.Errorf("Resolve(%q) error = %v, want PathEscapeError", path, err)
			continue
		}
		if escape.Input != path {
			t.Errorf("escape.Input = %q, want %q", escape.Input, path)
		}
		if escape.Resolved == "" {
			t.Error("escape.Resolved is empty, want the resolved target")
		}
	}
}

func TestResolveSymlinkOutsideRejected(t *testing.T) {
	t.Parallel()

	executor, root, outside := newWorkspace(t)

	secret := filepath.Join(outside, "secret.txt")
	if err := os.WriteFile(secret, []byte("private"), 0o644); err != nil {
		t.Fatalf("write secret: %v", err)
	}
	if err := os.Symlink(secret, filepath.Join(root, "link.txt")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	_, err := executor.Resolve("link.txt")
	var escape *PathEscapeError
	if !errors.As(err, &escape) {
		t.Fatalf("Resolve(link.txt) error = %v, want PathEscapeError", err)
	}
}

func TestResolveSymlinkInsideAllowed(t *testing.T) {
	t.Parallel()

	executor, root, _ := newWorkspace(t)

	target := filepath.Join(root, "real.txt")
	if err := os.WriteFile(target, []byte("ok"), 0o644); err != nil {
		t.Fatalf("write target: %v", err)
	}
	if err := os.Symlink(target, filepath.Join(root, "alias.txt")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	resolved, err := executor.Resolve("alias.txt")
	if err != nil {
		t.Fatalf("Resolve(alias.txt): %v", err)
	}
	if resolved != target {
		t.Errorf("Resolve(alias.txt) = %q, want %q", resolved, target)
	}
}

func TestResolveDanglingSymlinkOutsideRejected(t *testing.T) {
	t.Parallel()

	executor, root, outside := newWorkspace(t)

	// link.txt -> outside/smuggled.txt where the referent does not
	// exist yet. A write through the link would create the file
	// outside the workspace.
	smuggled := filepath.Join(outside, "smuggled.txt")
	if err := os.Symlink(smuggled, filepath.Join(root, "link.txt")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	_, err := executor.Resolve("link.txt")
	var escape *PathEscapeError
	if !errors.As(err, &escape) {
		t.Fatalf("Resolve(link.txt) error = %v, want PathEscapeError", err)
	}

	if err := executor.WriteFile("link.txt", []byte("escaped")); err == nil {
		t.Fatal("WriteFile through dangling outside link succeeded")
	}
	if _, err := os.Lstat(smuggled); !os.IsNotExist(err) {
		t.Errorf("Lstat(%s) = %v, want not-exist", smuggled, err)
	}
}

func TestResolveDanglingSymlinkInsideAllowed(t *testing.T) {
	t.Parallel()

	executor, root, _ := newWorkspace(t)

	// alias.txt -> real.txt inside the workspace, referent missing. A
	// write through the link stays confined, so it resolves to the
	// target path.
	target := filepath.Join(root, "real.txt")
	if err := os.Symlink(target, filepath.Join(root, "alias.txt")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	resolved, err := executor.Resolve("alias.txt")
	if err != nil {
		t.Fatalf("Resolve(alias.txt): %v", err)
	}
	if resolved != target {
		t.Errorf("Resolve(alias.txt) = %q, want %q", resolved, target)
	}
}

func TestResolveSymlinkLoop(t *testing.T) {
	t.Parallel()

	executor, root, _ := newWorkspace(t)

	if err := os.Symlink(filepath.Join(root, "b"), filepath.Join(root, "a")); err != nil {
		t.Fatalf("symlink a: %v", err)
	}
	if err := os.Symlink(filepath.Join(root, "a"), filepath.Join(root, "b")); err != nil {
		t.Fatalf("symlink b: %v", err)
	}

	if _, err := executor.Resolve("a/missing.txt"); err == nil {
		t.Fatal("Resolve through a symlink loop succeeded")
	}
}

func TestResolveSymlinkedParentOfMissingFile(t *testing.T) {
	t.Parallel()

	executor, root, outside := newWorkspace(t)

	// dir -> outside; a write to dir/new.txt would land outside the
	// workspace even though new.txt does not exist yet.
	if err := os.Symlink(outside, filepath.Join(root, "dir")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	_, err := executor.Resolve("dir/new.txt")
	var escape *PathEscapeError
	if !errors.As(err, &escape) {
		t.Fatalf("Resolve(dir/new.txt) error = %v, want PathEscapeError", err)
	}
}

func TestWriteFileCreatesParents(t *testing.T) {
	t.Parallel()

	executor, root, _ := newWorkspace(t)

	if err := executor.WriteFile("a/b/new.txt", []byte("content")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(root, "a", "b", "new.txt"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "content" {
		t.Errorf("content = %q, want %q", data, "content")
	}
}

func TestListFiles(t *testing.T) {
	t.Parallel()

	executor, root, _ := newWorkspace(t)

	if err := os.MkdirAll(filepath.Join(root, "sub"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "plain.txt"), nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	entries, err := executor.ListFiles(".")
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	want := map[string]bool{"plain.txt": false, "sub" + string(filepath.Separator): false}
	for _, entry := range entries {
		if _, ok := want[entry]; !ok {
			t.Errorf("unexpected entry %q", entry)
		}
		want[entry] = true
	}
	for entry, seen := range want {
		if !seen {
			t.Errorf("missing entry %q", entry)
		}
	}
}

func TestListFilesMissingDirectory(t *testing.T) {
	t.Parallel()

	executor, _, _ := newWorkspace(t)

	entries, err := executor.ListFiles("does/not/exist")
	if err != nil {
		t.Fatalf("ListFiles on missing dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("entries = %v, want empty", entries)
	}
}

func TestFileExists(t *testing.T) {
	t.Parallel()

	executor, root, _ := newWorkspace(t)

	if err := os.WriteFile(filepath.Join(root, "here.txt"), nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	exists, err := executor.FileExists("here.txt")
	if err != nil || !exists {
		t.Errorf("FileExists(here.txt) = %v, %v, want true, nil", exists, err)
	}

	exists, err = executor.FileExists("absent.txt")
	if err != nil || exists {
		t.Errorf("FileExists(absent.txt) = %v, %v, want false, nil", exists, err)
	}

	// Escape errors propagate rather than degrading to false.
	_, err = executor.FileExists("../outside/x")
	var escape *PathEscapeError
	if !errors.As(err, &escape) {
		t.Errorf("FileExists escape error = %v, want PathEscapeError", err)
	}
}

func TestRunCapturesExit(t *testing.T) {
	t.Parallel()

	executor, _, _ := newWorkspace(t)

	result, err := executor.Run(context.Background(), "sh", []string{"-c", "echo out; echo err >&2; exit 3"}, RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", result.ExitCode)
	}
	if !strings.Contains(result.Stdout, "out") {
		t.Errorf("Stdout = %q, want to contain 'out'", result.Stdout)
	}
	if !strings.Contains(result.Stderr, "err") {
		t.Errorf("Stderr = %q, want to contain 'err'", result.Stderr)
	}
}

func TestRunTimeout(t *testing.T) {
	t.Parallel()

	executor, _, _ := newWorkspace(t)

	start := time.Now()
	result, err := executor.Run(context.Background(), "sleep", []string{"10"}, RunOptions{Timeout: 200 * time.Millisecond})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Run took %v, timeout not enforced", elapsed)
	}
	if !result.TimedOut {
		t.Error("TimedOut = false, want true")
	}
	if result.ExitCode == 0 {
		t.Error("ExitCode = 0, want synthetic nonzero")
	}
}

func TestRunTimeoutKillsBackgroundChildren(t *testing.T) {
	t.Parallel()

	executor, _, _ := newWorkspace(t)

	// The background sleep inherits the output pipes. Run must not
	// wait for it after the deadline kills the shell.
	start := time.Now()
	result, err := executor.Run(context.Background(), "sh",
		[]string{"-c", "sleep 30 & sleep 30"},
		RunOptions{Timeout: 300 * time.Millisecond})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Run took %v, background child outlived the timeout", elapsed)
	}
	if !result.TimedOut {
		t.Error("TimedOut = false, want true")
	}
	if result.ExitCode == 0 {
		t.Error("ExitCode = 0, want synthetic nonzero")
	}
}

func TestRunOutputCap(t *testing.T) {
	t.Parallel()

	executor, _, _ := newWorkspace(t)

	result, err := executor.Run(context.Background(), "sh",
		[]string{"-c", "head -c 4096 /dev/zero | tr '\\0' 'x'"},
		RunOptions{OutputLimit: 1024})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Stdout)+len(result.Stderr) > 1024 {
		t.Errorf("combined output = %d bytes, want <= 1024", len(result.Stdout)+len(result.Stderr))
	}
	if result.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0 (cap must not kill the process)", result.ExitCode)
	}
}

func TestRunRejectsEscapingDir(t *testing.T) {
	t.Parallel()

	executor, _, _ := newWorkspace(t)

	_, err := executor.Run(context.Background(), "true", nil, RunOptions{Dir: "../outside"})
	var escape *PathEscapeError
	if !errors.As(err, &escape) {
		t.Fatalf("Run with escaping Dir error = %v, want PathEscapeError", err)
	}
}
