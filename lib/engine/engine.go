// Copyright 2026 The Gitcell Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine executes job notebooks as subprocesses. The
// production engine shells out to the configured command (nbconvert
// by default), which rewrites the notebook in place with executed
// outputs. Execution failures are job outcomes, not runner errors:
// the runner publishes a failure result and keeps polling.
package engine

import (
	"context"
	"time"
)

// Status is a job execution outcome. Status values appear verbatim in
// result filenames.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Outcome describes one completed execution.
type Outcome struct {
	// Status is success when the command exited zero.
	Status Status

	// Diagnostic holds the tail of the command's combined output when
	// Status is failure, or a timeout notice. Empty on success.
	Diagnostic string

	// Duration is wall-clock execution time.
	Duration time.Duration
}

// Engine executes one job notebook. Execute blocks until the job
// finishes or ctx is done; an engine-internal failure (the command
// cannot be spawned at all) is returned as an error, while a job that
// ran and failed is a StatusFailure outcome with a nil error.
type Engine interface {
	Execute(ctx context.Context, jobPath string) (Outcome, error)
}
