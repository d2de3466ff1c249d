// Copyright 2026 The Coterie Authors
// SPDX-License-Identifier: Apache-2.0

// The coterie-engine daemon drives ticket orchestration: it owns the
// SQLite store, provisions git worktree workspaces, spawns agent
// runs, and serves the CBOR control socket that cmd/coterie talks to.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/coterie-dev/coterie/lib/agentrun"
	"github.com/coterie-dev/coterie/lib/clock"
	"github.com/coterie-dev/coterie/lib/config"
	"github.com/coterie-dev/coterie/lib/engine"
	"github.com/coterie-dev/coterie/lib/gitqueue"
	"github.com/coterie-dev/coterie/lib/process"
	"github.com/coterie-dev/coterie/lib/service"
	"github.com/coterie-dev/coterie/lib/store"
	"github.com/coterie-dev/coterie/lib/toolprofile"
	"github.com/coterie-dev/coterie/lib/version"
	"github.com/coterie-dev/coterie/lib/workspace"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		socketPath  string
		logLevel    string
		showVersion bool
	)
	pflag.StringVar(&configPath, "config", "", "path to the engine config file")
	pflag.StringVar(&socketPath, "socket", "", "override the control socket path")
	pflag.StringVar(&logLevel, "log-level", "", "override the configured log level")
	pflag.BoolVar(&showVersion, "version", false, "print version information and exit")
	pflag.Parse()

	if showVersion {
		fmt.Printf("coterie-engine %s\n", version.Info())
		return nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if socketPath != "" {
		cfg.Paths.Socket = socketPath
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(store.Config{
		Path:   cfg.Paths.Database,
		Clock:  clock.Real(),
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	registry := toolprofile.New()
	if cfg.Paths.ToolProfiles != "" {
		profiles, err := toolprofile.ReadFile(cfg.Paths.ToolProfiles)
		if err != nil {
			return fmt.Errorf("loading tool profiles: %w", err)
		}
		registry, err = profiles.Build()
		if err != nil {
			return fmt.Errorf("building tool registry: %w", err)
		}
	}

	queue := gitqueue.New()
	spaces, err := workspace.NewProvider(workspace.Config{
		ProjectsRoot:   cfg.Paths.ProjectsRoot,
		Queue:          queue,
		Logger:         logger,
		RunTimeout:     cfg.Subprocess.Timeout(),
		RunOutputLimit: cfg.Subprocess.OutputLimitBytes,
	})
	if err != nil {
		return err
	}

	runner, err := agentrun.NewProcessRunner(cfg.Agent.Command, logger)
	if err != nil {
		return err
	}

	eng, err := engine.New(engine.Config{
		Store:      st,
		Workspaces: spaces,
		Tools:      registry,
		Runner:     runner,
		Queue:      queue,
		Logger:     logger,
		Policy: engine.Policy{
			MaxResearchVersions: cfg.Policy.MaxResearchVersions,
			MinDocumentLength:   cfg.Policy.MinDocumentLength,
			BoilerplatePatterns: cfg.Policy.BoilerplatePatterns,
		},
	})
	if err != nil {
		return err
	}

	server := service.NewSocketServer(cfg.Paths.Socket, logger)
	service.RegisterHandlers(server, eng)

	logger.Info("coterie-engine starting",
		"version", version.Info(),
		"projects_root", cfg.Paths.ProjectsRoot,
		"socket", cfg.Paths.Socket,
	)
	err = server.Serve(ctx)

	// Let in-flight auto-dispatches record their outcomes before the
	// store closes.
	eng.Wait()
	return err
}

func parseLevel(name string) (slog.Level, error) {
	switch name {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", name)
}
