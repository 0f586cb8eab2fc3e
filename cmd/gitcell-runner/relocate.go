// Copyright 2026 The Gitcell Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gitcell-io/gitcell/lib/engine"
)

// resultTimestampLayout is the completion-time component of a result
// filename. Second resolution; the collision suffix below covers two
// results inside the same second.
const resultTimestampLayout = "20060102_150405"

// relocate moves the executed notebook out of the slot into the
// shared results directory under a name encoding identity, outcome,
// and completion time: run_<identity>_<status>_<timestamp>.ipynb.
// When that name is already taken, a numeric suffix is appended
// rather than overwriting.
func (r *Runner) relocate(status engine.Status) (string, error) {
	base := fmt.Sprintf("run_%s_%s_%s",
		r.slot.Identity, status, r.clock.Now().UTC().Format(resultTimestampLayout))

	target := filepath.Join(r.slot.ResultsDir, base+".ipynb")
	for suffix := 2; ; suffix++ {
		if _, err := os.Stat(target); errors.Is(err, os.ErrNotExist) {
			break
		}
		target = filepath.Join(r.slot.ResultsDir, fmt.Sprintf("%s_%d.ipynb", base, suffix))
	}

	if err := os.Rename(r.slot.JobPath, target); err != nil {
		return "", fmt.Errorf("relocating result: %w", err)
	}
	return target, nil
}

// cleanSlot removes everything execution left behind in the slot
// directory except the worklog. Hooks and kernels scatter scratch
// files; none of them belong in the next commit.
func (r *Runner) cleanSlot() {
	entries, err := os.ReadDir(r.slot.Dir)
	if err != nil {
		r.logger.Warn("reading slot directory failed", "error", err)
		return
	}
	for _, entry := range entries {
		if entry.Name() == filepath.Base(r.slot.LogPath) {
			continue
		}
		path := filepath.Join(r.slot.Dir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			r.logger.Warn("cleaning slot entry failed", "path", path, "error", err)
		}
	}
}
