// Copyright 2026 The Gitcell Authors
// SPDX-License-Identifier: Apache-2.0

package git

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Failure classes for repository operations. These are the expected
// failure modes of a shared repository under concurrent writers; the
// publish retry policy branches on them with errors.Is. Anything that
// does not match a class is an unexpected fault and carries no class
// sentinel.
var (
	// ErrNetwork marks transport-level failures: unreachable remote,
	// DNS, connection reset, and operation timeout. Transient; the
	// caller retries on a later cycle.
	ErrNetwork = errors.New("network failure")

	// ErrMergeConflict marks a pull that could not fast-forward or
	// merge cleanly.
	ErrMergeConflict = errors.New("merge conflict")

	// ErrRebaseConflict marks a rebase-pull that could not replay
	// local commits cleanly.
	ErrRebaseConflict = errors.New("rebase conflict")

	// ErrDirtyWorktree marks operations refused because local
	// modifications would be overwritten ("commit your changes or
	// stash them"). Recovered by stash / rebase / pop.
	ErrDirtyWorktree = errors.New("dirty worktree")

	// ErrMergeInProgress marks operations refused because an earlier
	// merge is still in flight ("cannot do a partial commit during a
	// merge"). Recovered by aborting the merge.
	ErrMergeInProgress = errors.New("merge in progress")
)

// ErrNothingToCommit is returned by Commit when the working tree is
// clean. It is a signal, not a failure: the caller typically proceeds
// as if the commit succeeded with no new content.
var ErrNothingToCommit = errors.New("nothing to commit")

// OpError is the discriminated result of a failed repository
// operation. Class (when non-nil) is one of the sentinel errors above
// and is reachable through errors.Is; Output carries the git stderr
// that drove the classification.
type OpError struct {
	Op     string // git subcommand, e.g. "push"
	Dir    string // repository directory
	Class  error  // failure class sentinel, nil for unexpected faults
	Output string // trimmed stderr (and stdout for commit)
	Err    error  // underlying exec or context error
}

func (e *OpError) Error() string {
	if e.Class != nil {
		return fmt.Sprintf("git %s in %s: %v: %s", e.Op, e.Dir, e.Class, e.Output)
	}
	return fmt.Sprintf("git %s in %s: %v (stderr: %s)", e.Op, e.Dir, e.Err, e.Output)
}

func (e *OpError) Unwrap() []error {
	if e.Class != nil {
		return []error{e.Class, e.Err}
	}
	return []error{e.Err}
}

// classify maps git stderr (plus the underlying error) to a failure
// class sentinel. Returns nil when the output matches no known class.
//
// The substrings are git's own phrasing, stable across versions in
// practice; matching is case-insensitive to absorb the remaining
// drift.
func classify(op string, output string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		// Operation timeout: treated as a transport failure so the
		// caller's next cycle retries it.
		return ErrNetwork
	}

	lowered := strings.ToLower(output)

	for _, marker := range []string{
		"could not resolve host",
		"unable to access",
		"could not read from remote repository",
		"connection timed out",
		"connection refused",
		"connection reset",
		"network is unreachable",
		"the remote end hung up",
		"early eof",
	} {
		if strings.Contains(lowered, marker) {
			return ErrNetwork
		}
	}

	for _, marker := range []string{
		"commit your changes or stash them",
		"would be overwritten by",
		"cannot pull with rebase: you have unstaged changes",
		"cannot rebase: you have unstaged changes",
	} {
		if strings.Contains(lowered, marker) {
			return ErrDirtyWorktree
		}
	}

	for _, marker := range []string{
		"you have not concluded your merge",
		"merge_head exists",
		"cannot do a partial commit during a merge",
		"in the middle of a merge",
	} {
		if strings.Contains(lowered, marker) {
			return ErrMergeInProgress
		}
	}

	conflictMarkers := []string{
		"merge conflict",
		"automatic merge failed",
		"fix conflicts",
		"needs merge",
		"unmerged files",
		"could not apply",
		"resolve all conflicts manually",
	}
	for _, marker := range conflictMarkers {
		if strings.Contains(lowered, marker) {
			if op == "pull --rebase" || op == "rebase" {
				return ErrRebaseConflict
			}
			return ErrMergeConflict
		}
	}

	return nil
}
