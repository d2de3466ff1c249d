// Copyright 2026 The Coterie Authors
// SPDX-License-Identifier: Apache-2.0

package sandboxfs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Executor exposes confined file I/O and subprocess execution rooted
// at a single workspace directory. All paths passed to its methods are
// interpreted relative to the root and validated by Resolve before any
// filesystem call.
type Executor struct {
	root string

	// Per-executor defaults for Run, applied when a RunOptions field
	// is zero. Zero here means the package-level default.
	runTimeout     time.Duration
	runOutputLimit int
}

// New returns an Executor rooted at root. The root must exist; it is
// canonicalized (symlinks resolved) once here so that every later
// prefix comparison is against the real directory.
func New(root string) (*Executor, error) {
	canonical, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, fmt.Errorf("canonicalizing workspace root %s: %w", root, err)
	}
	return &Executor{root: canonical}, nil
}

// Root returns the canonical workspace root.
func (e *Executor) Root() string { return e.root }

// SetRunDefaults overrides the package-level subprocess timeout and
// output cap for this executor. Zero values keep the package defaults.
func (e *Executor) SetRunDefaults(timeout time.Duration, outputLimit int) {
	e.runTimeout = timeout
	e.runOutputLimit = outputLimit
}

// Resolve validates a caller-supplied path against the workspace root
// and returns the canonical absolute path for it.
//
// The target need not exist: for missing paths the nearest existing
// ancestor is canonicalized and the remaining components are appended
// to it, so writes to new files are checked against the directory they
// will really land in.
func (e *Executor) Resolve(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", &InvalidPathError{Input: path}
	}

	joined := path
	if !filepath.IsAbs(joined) {
		joined = filepath.Join(e.root, joined)
	}
	joined = filepath.Clean(joined)

	canonical, err := canonicalize(joined)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", path, err)
	}

	if canonical != e.root && !strings.HasPrefix(canonical, e.root+string(filepath.Separator)) {
		return "", &PathEscapeError{Input: path, Resolved: canonical, Root: e.root}
	}
	return canonical, nil
}

// maxLinkHops bounds symlink resolution for paths EvalSymlinks cannot
// handle on its own, mirroring the kernel's limit.
const maxLinkHops = 40

// canonicalize resolves all symlinks in path. When the path does not
// exist, it walks up to the nearest existing ancestor, canonicalizes
// that, and re-appends the stripped components one at a time. A
// stripped component can still exist on disk as a symlink whose
// referent is missing (EvalSymlinks reports that as ENOENT too); such
// a link must be followed, not treated as a literal name, or a write
// through it would land wherever the link points.
func canonicalize(path string) (string, error) {
	for hops := 0; hops < maxLinkHops; hops++ {
		resolved, err := filepath.EvalSymlinks(path)
		if err == nil {
			return resolved, nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}

		existing := path
		var pending []string
		for {
			parent := filepath.Dir(existing)
			if parent == existing {
				// Reached the filesystem root without finding an
				// existing ancestor.
				return path, nil
			}
			pending = append([]string{filepath.Base(existing)}, pending...)
			existing = parent

			resolved, err = filepath.EvalSymlinks(existing)
			if err == nil {
				break
			}
			if !os.IsNotExist(err) {
				return "", err
			}
		}

		followed := false
		for i, name := range pending {
			candidate := filepath.Join(resolved, name)
			info, err := os.Lstat(candidate)
			if os.IsNotExist(err) {
				return filepath.Join(append([]string{resolved}, pending[i:]...)...), nil
			}
			if err != nil {
				return "", err
			}
			if info.Mode()&os.ModeSymlink != 0 {
				target, err := os.Readlink(candidate)
				if err != nil {
					return "", err
				}
				if !filepath.IsAbs(target) {
					target = filepath.Join(resolved, target)
				}
				path = filepath.Join(append([]string{target}, pending[i+1:]...)...)
				followed = true
				break
			}
			resolved = candidate
		}
		if !followed {
			return resolved, nil
		}
	}
	return "", fmt.Errorf("too many symbolic links resolving %s", path)
}

// ReadFile reads the file at path inside the workspace.
func (e *Executor) ReadFile(path string) ([]byte, error) {
	resolved, err := e.Resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

// WriteFile writes data to path inside the workspace, creating parent
// directories as needed.
func (e *Executor) WriteFile(path string, data []byte) error {
	resolved, err := e.Resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Errorf("creating parent directories for %s: %w", path, err)
	}
	if err := os.WriteFile(resolved, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// ListFiles returns the entries of the directory at path. Directory
// entries carry a trailing separator. A missing directory yields an
// empty list, not an error.
func (e *Executor) ListFiles(path string) ([]string, error) {
	resolved, err := e.Resolve(path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("listing %s: %w", path, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			name += string(filepath.Separator)
		}
		names = append(names, name)
	}
	return names, nil
}

// FileExists reports whether path exists inside the workspace. Path
// escape errors propagate; I/O errors (permission, transient) are
// reported as false.
func (e *Executor) FileExists(path string) (bool, error) {
	resolved, err := e.Resolve(path)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(resolved); err != nil {
		return false, nil
	}
	return true, nil
}
