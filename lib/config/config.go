// Copyright 2026 The Coterie Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the engine's YAML configuration.
//
// Configuration comes from a single file named by the --config flag
// or the COTERIE_CONFIG environment variable. There are no fallbacks
// or automatic discovery; the effective configuration is exactly what
// the file says plus documented defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfig is the environment variable naming the config file when
// no flag is passed.
const EnvConfig = "COTERIE_CONFIG"

// Config is the engine configuration.
type Config struct {
	// Paths configures on-disk locations.
	Paths PathsConfig `yaml:"paths"`

	// Agent configures the external agent process.
	Agent AgentConfig `yaml:"agent"`

	// Subprocess configures git/tool subprocess execution.
	Subprocess SubprocessConfig `yaml:"subprocess"`

	// Policy overrides the document quality gate. Zero values take
	// engine defaults.
	Policy PolicyConfig `yaml:"policy"`

	// LogLevel is debug, info, warn, or error. Empty means info.
	LogLevel string `yaml:"log_level"`
}

// PathsConfig configures directory and file locations.
type PathsConfig struct {
	// ProjectsRoot holds one subdirectory per project slug, each
	// with its canonical clone and per-ticket worktrees.
	ProjectsRoot string `yaml:"projects_root"`

	// Database is the SQLite file.
	Database string `yaml:"database"`

	// Socket is the control-plane Unix socket.
	Socket string `yaml:"socket"`

	// ToolProfiles is the JSONC file defining tools and role
	// allow-lists. Optional; empty means no tools are registered.
	ToolProfiles string `yaml:"tool_profiles"`
}

// AgentConfig configures how agent runs are spawned.
type AgentConfig struct {
	// Command is the argv prefix of the agent binary. Required.
	Command []string `yaml:"command"`
}

// SubprocessConfig bounds git/tool subprocess execution.
type SubprocessConfig struct {
	// TimeoutSeconds is the wall-clock limit per subprocess. Zero
	// means the sandboxfs default.
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// OutputLimitBytes caps combined stdout+stderr capture. Zero
	// means the sandboxfs default.
	OutputLimitBytes int `yaml:"output_limit_bytes"`
}

// PolicyConfig mirrors the engine's quality-gate knobs.
type PolicyConfig struct {
	MaxResearchVersions int      `yaml:"max_research_versions"`
	MinDocumentLength   int      `yaml:"min_document_length"`
	BoilerplatePatterns []string `yaml:"boilerplate_patterns"`
}

// Timeout returns the subprocess timeout as a duration, zero when
// unset.
func (s SubprocessConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// Load reads and validates the config file at path. An empty path
// falls back to the COTERIE_CONFIG environment variable.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path == "" {
		return nil, fmt.Errorf("no config file: pass --config or set %s", EnvConfig)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.applyDefaults(filepath.Dir(path))
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

// applyDefaults fills derivable paths relative to the config file's
// directory.
func (c *Config) applyDefaults(baseDir string) {
	if c.Paths.Database == "" && c.Paths.ProjectsRoot != "" {
		c.Paths.Database = filepath.Join(c.Paths.ProjectsRoot, "coterie.db")
	}
	if c.Paths.Socket == "" && c.Paths.ProjectsRoot != "" {
		c.Paths.Socket = filepath.Join(c.Paths.ProjectsRoot, "coterie.sock")
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	for _, p := range []*string{&c.Paths.ProjectsRoot, &c.Paths.Database, &c.Paths.Socket, &c.Paths.ToolProfiles} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(baseDir, *p)
		}
	}
}

func (c *Config) validate() error {
	if c.Paths.ProjectsRoot == "" {
		return fmt.Errorf("paths.projects_root is required")
	}
	if len(c.Agent.Command) == 0 {
		return fmt.Errorf("agent.command is required")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q: want debug, info, warn, or error", c.LogLevel)
	}
	if c.Subprocess.TimeoutSeconds < 0 {
		return fmt.Errorf("subprocess.timeout_seconds must be >= 0")
	}
	if c.Subprocess.OutputLimitBytes < 0 {
		return fmt.Errorf("subprocess.output_limit_bytes must be >= 0")
	}
	if c.Policy.MaxResearchVersions < 0 || c.Policy.MinDocumentLength < 0 {
		return fmt.Errorf("policy values must be >= 0")
	}
	return nil
}
