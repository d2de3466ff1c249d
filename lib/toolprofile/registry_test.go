// Copyright 2026 The Coterie Authors
// SPDX-License-Identifier: Apache-2.0

package toolprofile

import (
	"strings"
	"testing"

	"github.com/coterie-dev/coterie/lib/schema"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()

	registry := New()
	for _, tool := range []Tool{
		{Name: "read_file", Description: "read a workspace file"},
		{Name: "write_file", Description: "write a workspace file"},
		{Name: "run_command", Description: "run a command in the workspace"},
		{Name: "list_files", Description: "list workspace files"},
	} {
		if err := registry.Register(tool); err != nil {
			t.Fatalf("Register(%s): %v", tool.Name, err)
		}
	}
	return registry
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry(t)
	err := registry.Register(Tool{Name: "read_file"})
	if err == nil {
		t.Fatal("duplicate registration succeeded")
	}
	if !strings.Contains(err.Error(), "read_file") {
		t.Errorf("error %q does not name the duplicate tool", err)
	}
}

func TestToolsForProfileIntersection(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry(t)
	// The allow-list names a tool this deployment never registered;
	// it must be dropped silently, preserving order of the rest.
	err := registry.SetAllowlist(schema.RoleResearcher,
		[]string{"list_files", "deploy_production", "read_file"})
	if err != nil {
		t.Fatalf("SetAllowlist: %v", err)
	}

	tools := registry.ToolsForProfile(schema.RoleResearcher)
	if len(tools) != 2 {
		t.Fatalf("got %d tools, want 2", len(tools))
	}
	if tools[0].Name != "list_files" || tools[1].Name != "read_file" {
		t.Errorf("tools = %v, want allow-list order [list_files read_file]", tools)
	}
}

func TestToolsForUnconfiguredRole(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry(t)
	if tools := registry.ToolsForProfile(schema.RoleHacker); len(tools) != 0 {
		t.Errorf("unconfigured role got tools %v, want none", tools)
	}
}

func TestSetAllowlistUnknownRole(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry(t)
	if err := registry.SetAllowlist(schema.Role("wizard"), []string{"read_file"}); err == nil {
		t.Fatal("unknown role accepted")
	}
}

func TestAllowed(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry(t)
	if err := registry.SetAllowlist(schema.RoleCritic, []string{"read_file"}); err != nil {
		t.Fatalf("SetAllowlist: %v", err)
	}

	if !registry.Allowed(schema.RoleCritic, "read_file") {
		t.Error("Allowed(critic, read_file) = false")
	}
	if registry.Allowed(schema.RoleCritic, "write_file") {
		t.Error("Allowed(critic, write_file) = true, not in allow-list")
	}
	if registry.Allowed(schema.RoleCritic, "unregistered") {
		t.Error("Allowed(critic, unregistered) = true for unknown tool")
	}
}

func TestParseJSONCProfileFile(t *testing.T) {
	t.Parallel()

	source := `{
		// Deployment tool set.
		"tools": [
			{"name": "read_file", "description": "read"},
			{"name": "write_file", "description": "write"},
		],
		"profiles": {
			"researcher": ["read_file"],
			"developer": ["read_file", "write_file", "write_file"],
		},
	}`

	file, err := Parse([]byte(source))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	registry, err := file.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// Duplicate allow-list entries collapse.
	tools := registry.ToolsForProfile(schema.RoleDeveloper)
	if len(tools) != 2 {
		t.Errorf("developer tools = %v, want 2 entries", tools)
	}
	if !registry.Allowed(schema.RoleResearcher, "read_file") {
		t.Error("researcher lost read_file")
	}
}

func TestBuildRejectsUnknownProfileRole(t *testing.T) {
	t.Parallel()

	file := &ProfileFile{
		Tools:    []Tool{{Name: "read_file"}},
		Profiles: map[string][]string{"superuser": {"read_file"}},
	}
	if _, err := file.Build(); err == nil {
		t.Fatal("unknown profile role accepted at build time")
	}
}
