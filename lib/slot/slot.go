// Copyright 2026 The Gitcell Authors
// SPDX-License-Identifier: Apache-2.0

// Package slot maps a worker identity to its locations inside the
// shared repository checkout: a private inbox directory where peers
// commit job notebooks for this worker, the shared results directory,
// and the worker's append-only log file.
package slot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// JobArtifact is the fixed name of the job notebook inside a slot
// directory. Peers address a worker by writing this file into the
// worker's slot and committing.
const JobArtifact = "run.ipynb"

// ErrNoIdentity is returned by Resolve when the worker identity is
// empty. This is a configuration error, fatal at startup.
var ErrNoIdentity = errors.New("worker identity is not set")

// Slot is a worker's identity-scoped location set. Created once at
// process start and immutable for the process lifetime; slots of
// different workers never overlap.
type Slot struct {
	// Identity is the worker identity the slot belongs to.
	Identity string

	// Dir is the worker's private inbox directory,
	// <repoRoot>/cells/<identity>.
	Dir string

	// JobPath is the job artifact path inside Dir.
	JobPath string

	// ResultsDir is the shared outbox, <repoRoot>/results. Output
	// filenames encode identity, status, and timestamp, so workers
	// never collide inside it.
	ResultsDir string

	// LogPath is the worker's append-only log file inside Dir.
	LogPath string
}

// Resolve computes the slot for a worker identity inside a repository
// checkout and creates the slot and results directories when missing
// (idempotent). Fails with ErrNoIdentity for an empty identity, or
// with a wrapped filesystem error when a directory cannot be created.
func Resolve(identity, repoRoot string) (Slot, error) {
	if identity == "" {
		return Slot{}, ErrNoIdentity
	}

	dir := filepath.Join(repoRoot, "cells", identity)
	resolved := Slot{
		Identity:   identity,
		Dir:        dir,
		JobPath:    filepath.Join(dir, JobArtifact),
		ResultsDir: filepath.Join(repoRoot, "results"),
		LogPath:    filepath.Join(dir, "log.txt"),
	}

	for _, directory := range []string{resolved.Dir, resolved.ResultsDir} {
		if err := os.MkdirAll(directory, 0755); err != nil {
			return Slot{}, fmt.Errorf("creating slot directory %s: %w", directory, err)
		}
	}
	return resolved, nil
}

// HasJob reports whether a job artifact is currently present in the
// slot's inbox.
func (s Slot) HasJob() bool {
	info, err := os.Stat(s.JobPath)
	return err == nil && !info.IsDir()
}
