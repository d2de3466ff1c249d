// Copyright 2026 The Coterie Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "coterie.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
paths:
  projects_root: /srv/coterie/projects
agent:
  command: ["coterie-agent", "--quiet"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Paths.Database != "/srv/coterie/projects/coterie.db" {
		t.Errorf("Database = %q", cfg.Paths.Database)
	}
	if cfg.Paths.Socket != "/srv/coterie/projects/coterie.sock" {
		t.Errorf("Socket = %q", cfg.Paths.Socket)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if len(cfg.Agent.Command) != 2 || cfg.Agent.Command[0] != "coterie-agent" {
		t.Errorf("Command = %v", cfg.Agent.Command)
	}
}

func TestLoadResolvesRelativePaths(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
paths:
  projects_root: projects
  socket: run/coterie.sock
agent:
  command: ["agent"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	base := filepath.Dir(path)
	if cfg.Paths.ProjectsRoot != filepath.Join(base, "projects") {
		t.Errorf("ProjectsRoot = %q", cfg.Paths.ProjectsRoot)
	}
	if cfg.Paths.Socket != filepath.Join(base, "run/coterie.sock") {
		t.Errorf("Socket = %q", cfg.Paths.Socket)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "missing projects root",
			content: "agent:\n  command: [\"agent\"]\n",
			want:    "projects_root",
		},
		{
			name:    "missing agent command",
			content: "paths:\n  projects_root: /srv/p\n",
			want:    "agent.command",
		},
		{
			name: "bad log level",
			content: `
paths:
  projects_root: /srv/p
agent:
  command: ["agent"]
log_level: loud
`,
			want: "log_level",
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Load(writeConfig(t, tc.content))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Load error = %v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load of absent file succeeded")
	}
}
