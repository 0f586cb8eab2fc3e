// Copyright 2026 The Gitcell Authors
// SPDX-License-Identifier: Apache-2.0

// Gitcell-runner is the worker daemon of a gitcell deployment. A
// fleet of runners shares one git repository as its only coordination
// medium: peers commit a job notebook into a worker's slot directory,
// the worker's runner polls the remote, executes the notebook, moves
// the executed copy into the shared results directory under a name
// that encodes identity, outcome, and completion time, and publishes
// everything back with commit and push.
//
// The runner is a single sequential loop. Each cycle:
//  1. Fetches and reads the remote branch ref.
//  2. If the ref is unchanged since the last cycle, idles.
//  3. Otherwise syncs the checkout and looks for a job in its slot.
//  4. Validates, executes, relocates, and publishes the job.
//
// Push contention with other workers is expected and handled by a
// bounded, jittered, classified retry policy; see publish.go.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/gitcell-io/gitcell/lib/archive"
	"github.com/gitcell-io/gitcell/lib/clock"
	"github.com/gitcell-io/gitcell/lib/config"
	"github.com/gitcell-io/gitcell/lib/engine"
	"github.com/gitcell-io/gitcell/lib/git"
	"github.com/gitcell-io/gitcell/lib/slot"
	"github.com/gitcell-io/gitcell/lib/state"
	"github.com/gitcell-io/gitcell/lib/version"
	"github.com/gitcell-io/gitcell/lib/worklog"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		showVersion bool
	)
	pflag.StringVar(&configPath, "config", "", "path to the config file (overrides $"+config.EnvVar+")")
	pflag.BoolVar(&showVersion, "version", false, "print version information and exit")
	pflag.Parse()

	if showVersion {
		fmt.Printf("gitcell-runner %s\n", version.Info())
		return nil
	}

	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner, err := newRunner(cfg, logger)
	if err != nil {
		return err
	}
	return runner.Run(ctx)
}

// newRunner wires the production runner from configuration: real
// clock, subprocess engine, git CLI repository, persisted state and
// archive under the state directory.
func newRunner(cfg *config.Config, logger *slog.Logger) (*Runner, error) {
	resolved, err := slot.Resolve(cfg.Identity, cfg.Repository.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolving slot: %w", err)
	}

	store, err := state.NewStore(cfg.StateDir)
	if err != nil {
		return nil, err
	}
	persisted, intact, err := store.Load()
	if err != nil {
		return nil, err
	}
	if !intact {
		logger.Warn("state file unreadable, starting fresh", "path", store.Path())
	}

	resultArchive, err := archive.New(filepath.Join(cfg.StateDir, "archive"))
	if err != nil {
		return nil, err
	}

	clk := clock.Real()
	repo := git.NewRepository(cfg.Repository.Dir).WithTimeout(cfg.Repository.OpTimeout.Std())
	log := worklog.New(resolved.LogPath, clk)

	return &Runner{
		config: cfg,
		slot:   resolved,
		repo:   repo,
		engine: &engine.Subprocess{
			Command:      cfg.Execute.Command,
			Timeout:      cfg.Execute.Timeout.Std(),
			SetupHook:    cfg.Execute.SetupHook,
			TeardownHook: cfg.Execute.TeardownHook,
			Clock:        clk,
			Log:          logger,
		},
		clock:   clk,
		logger:  logger,
		worklog: log,
		store:   store,
		archive: resultArchive,
		state:   persisted,
		publisher: &publisher{
			repo:    repo,
			branch:  cfg.Repository.Branch,
			policy:  cfg.Publish,
			clock:   clk,
			logger:  logger,
			worklog: log,
			jitter:  randomJitter,
		},
	}, nil
}
