// Copyright 2026 The Coterie Authors
// SPDX-License-Identifier: Apache-2.0

package sandboxfs

import "fmt"

// InvalidPathError reports a caller path that is empty or whitespace.
type InvalidPathError struct {
	Input string
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("invalid path %q: empty or whitespace", e.Input)
}

// PathEscapeError reports a caller path whose symlink-resolved target
// lies outside the workspace root. Both the input as the caller wrote
// it and the resolved target are included so the violation is
// diagnosable from the message alone.
type PathEscapeError struct {
	Input    string
	Resolved string
	Root     string
}

func (e *PathEscapeError) Error() string {
	return fmt.Sprintf("path %q escapes workspace: resolves to %q outside %q",
		e.Input, e.Resolved, e.Root)
}
