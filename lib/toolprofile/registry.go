// Copyright 2026 The Coterie Authors
// SPDX-License-Identifier: Apache-2.0

// Package toolprofile is the single authority for "may persona X with
// role Y invoke operation Z". It holds a global registry of operation
// definitions plus per-role ordered allow-lists, and answers profile
// queries with the intersection of the two. The engine consults it
// before every dispatch.
//
// Registries are plain values created per application context and
// passed to consumers — no package-level singleton, so tests build
// isolated instances.
package toolprofile

import (
	"fmt"

	"github.com/coterie-dev/coterie/lib/schema"
)

// Tool describes one operation an agent may invoke.
type Tool struct {
	// Name is the operation identifier used in allow-lists.
	Name string

	// Description is shown to the agent in its system prompt.
	Description string
}

// Registry maps roles to the tools they are allowed to use.
type Registry struct {
	tools map[string]Tool
	order []string
	// allowlists holds the ordered allow-list per role.
	allowlists map[schema.Role][]string
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		tools:      make(map[string]Tool),
		allowlists: make(map[schema.Role][]string),
	}
}

// Register adds a tool to the global registry. Duplicate names are a
// startup configuration error and are rejected.
func (r *Registry) Register(tool Tool) error {
	if tool.Name == "" {
		return fmt.Errorf("toolprofile: tool name is required")
	}
	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("toolprofile: duplicate tool %q", tool.Name)
	}
	r.tools[tool.Name] = tool
	r.order = append(r.order, tool.Name)
	return nil
}

// SetAllowlist installs the ordered allow-list for a role, replacing
// any previous list. Names not present in the global registry are
// kept — they are dropped at query time, never an error, so profiles
// may reference tools that a given deployment does not register.
func (r *Registry) SetAllowlist(role schema.Role, names []string) error {
	if !role.Valid() {
		return fmt.Errorf("toolprofile: unknown role %q", role)
	}
	deduped := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		deduped = append(deduped, name)
	}
	r.allowlists[role] = deduped
	return nil
}

// ToolsForProfile returns the tools a role may use: the intersection
// of the global registry and the role's allow-list, in allow-list
// order. Unknown names are silently dropped. A role with no
// allow-list gets nothing.
func (r *Registry) ToolsForProfile(role schema.Role) []Tool {
	names := r.allowlists[role]
	tools := make([]Tool, 0, len(names))
	for _, name := range names {
		if tool, ok := r.tools[name]; ok {
			tools = append(tools, tool)
		}
	}
	return tools
}

// Allowed reports whether a role may invoke the named operation.
func (r *Registry) Allowed(role schema.Role, name string) bool {
	if _, registered := r.tools[name]; !registered {
		return false
	}
	for _, allowed := range r.allowlists[role] {
		if allowed == name {
			return true
		}
	}
	return false
}
