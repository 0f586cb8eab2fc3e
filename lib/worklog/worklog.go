// Copyright 2026 The Gitcell Authors
// SPDX-License-Identifier: Apache-2.0

// Package worklog appends timestamped, human-readable lines to a
// worker's slot log. The log is the operator-facing trail of what the
// worker did: it lives inside the slot directory, is committed along
// with results, and is only ever appended to — never rewritten or
// truncated. Growth is an accepted cost.
package worklog

import (
	"fmt"
	"os"
	"time"

	"github.com/gitcell-io/gitcell/lib/clock"
)

// Log appends lines to a single file. Not safe for concurrent use;
// the runner is a single sequential loop and each worker owns its own
// log file exclusively.
type Log struct {
	path  string
	clock clock.Clock
}

// New returns a Log appending to path, timestamping lines with the
// given clock.
func New(path string, clk clock.Clock) *Log {
	return &Log{path: path, clock: clk}
}

// Path returns the log file path.
func (l *Log) Path() string { return l.path }

// Printf appends one formatted line, prefixed with an RFC 3339
// timestamp. Returns the append error; callers that have nowhere
// better to report it may ignore it, since the log is diagnostic.
func (l *Log) Printf(format string, args ...any) error {
	file, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("opening worklog: %w", err)
	}
	defer file.Close()

	line := fmt.Sprintf("%s %s\n",
		l.clock.Now().UTC().Format(time.RFC3339),
		fmt.Sprintf(format, args...))
	if _, err := file.WriteString(line); err != nil {
		return fmt.Errorf("appending to worklog: %w", err)
	}
	return nil
}
