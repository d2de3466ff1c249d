// Copyright 2026 The Coterie Authors
// SPDX-License-Identifier: Apache-2.0

// Package sandboxfs confines an agent's filesystem and subprocess
// access to a single workspace root. Every path an agent supplies is
// normalized and symlink-resolved before use; anything that lands
// outside the root is rejected with [PathEscapeError]. This is a path
// canonicalization boundary, not a kernel jail: it stops traversal
// (../..) and adversarial symlinks, nothing more.
//
// The guard also covers paths that do not exist yet. A write to
// workspace/new/dir/file.txt resolves the nearest existing ancestor,
// canonicalizes that, and reconstructs the intended target from it, so
// a symlinked parent directory cannot smuggle a write outside the
// root.
//
// Subprocess execution through [Executor.Run] is bounded in wall-clock
// time and combined output size. Timeouts and nonzero exits are
// results, not errors — the only error Run returns is a working
// directory that fails path validation.
package sandboxfs
