// Copyright 2026 The Gitcell Authors
// SPDX-License-Identifier: Apache-2.0

// Package git provides typed access to the git CLI for the shared
// coordination repository. All commands target a specific repository
// directory via the -C flag, which is injected by every Repository
// method. Expected failure modes (network, merge and rebase conflicts,
// dirty worktree, in-progress merge) are returned as classified
// errors rather than opaque exit statuses; see errors.go.
package git

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"
)

// Ref identifies a point in the repository's history (a commit hash).
// The runner uses refs purely as change-detection tokens: two equal
// refs mean no new history arrived, and nothing ever inspects the
// hash itself.
type Ref string

// RefUnknown is the zero Ref, used before the first fetch so that the
// first observed ref always counts as a change.
const RefUnknown Ref = ""

// DefaultTimeout bounds a single repository operation. Git has no
// reliable built-in transport timeout, so an unreachable remote would
// otherwise stall a worker forever mid-cycle.
const DefaultTimeout = 60 * time.Second

// Repository represents a git working tree at a specific directory.
// All operations target this directory via "git -C <dir>" and are
// bounded by the per-operation timeout.
type Repository struct {
	dir     string
	remote  string
	timeout time.Duration
}

// NewRepository returns a Repository targeting the given working tree
// directory, operating against the "origin" remote with the default
// operation timeout.
func NewRepository(dir string) *Repository {
	return &Repository{dir: dir, remote: "origin", timeout: DefaultTimeout}
}

// WithTimeout returns a copy of the Repository whose operations are
// bounded by d instead of the default.
func (r *Repository) WithTimeout(d time.Duration) *Repository {
	copied := *r
	copied.timeout = d
	return &copied
}

// Dir returns the repository directory.
func (r *Repository) Dir() string { return r.dir }

// run executes a git command targeting this repository, bounded by the
// operation timeout. Returns stdout; stderr is captured for error
// classification. The op string names the logical operation for error
// reporting and conflict classification.
func (r *Repository) run(ctx context.Context, op string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	fullArgs := append([]string{"-C", r.dir}, args...)
	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, "git", fullArgs...)
	command.Stdout = &stdout
	command.Stderr = &stderr

	err := command.Run()
	if err == nil {
		return stdout.String(), nil
	}

	// git writes some diagnostics to stdout (notably "nothing to
	// commit"); fold both streams into the classified output.
	output := strings.TrimSpace(stderr.String())
	if extra := strings.TrimSpace(stdout.String()); extra != "" {
		if output != "" {
			output += "\n"
		}
		output += extra
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	return "", &OpError{
		Op:     op,
		Dir:    r.dir,
		Class:  classify(op, output, err),
		Output: output,
		Err:    err,
	}
}

// Fetch updates the remote-tracking refs. Fails with ErrNetwork on
// transport errors.
func (r *Repository) Fetch(ctx context.Context) error {
	_, err := r.run(ctx, "fetch", "fetch", r.remote)
	return err
}

// RemoteRef returns the ref of the remote-tracking branch as of the
// last Fetch. Pure local read; no remote access.
func (r *Repository) RemoteRef(ctx context.Context, branch string) (Ref, error) {
	output, err := r.run(ctx, "rev-parse", "rev-parse", r.remote+"/"+branch)
	if err != nil {
		return RefUnknown, err
	}
	return Ref(strings.TrimSpace(output)), nil
}

// Head returns the ref of the local HEAD commit.
func (r *Repository) Head(ctx context.Context) (Ref, error) {
	output, err := r.run(ctx, "rev-parse", "rev-parse", "HEAD")
	if err != nil {
		return RefUnknown, err
	}
	return Ref(strings.TrimSpace(output)), nil
}

// Pull brings the local branch up to date with the remote. Fails with
// ErrMergeConflict when local changes collide, ErrNetwork on
// transport errors.
func (r *Repository) Pull(ctx context.Context, branch string) error {
	_, err := r.run(ctx, "pull", "pull", r.remote, branch)
	return err
}

// PullRebase pulls with --rebase, replaying local commits on top of
// the remote branch. Same failure modes as Pull plus
// ErrRebaseConflict.
func (r *Repository) PullRebase(ctx context.Context, branch string) error {
	_, err := r.run(ctx, "pull --rebase", "pull", "--rebase", r.remote, branch)
	return err
}

// StageAll stages every change in the working tree, including
// deletions and untracked files.
func (r *Repository) StageAll(ctx context.Context) error {
	_, err := r.run(ctx, "add", "add", "-A")
	return err
}

// Commit records the staged changes. Returns ErrNothingToCommit (a
// signal, not a failure) when the working tree is clean.
func (r *Repository) Commit(ctx context.Context, message string) error {
	_, err := r.run(ctx, "commit", "commit", "-m", message)
	if err == nil {
		return nil
	}
	var opErr *OpError
	if errors.As(err, &opErr) && strings.Contains(strings.ToLower(opErr.Output), "nothing to commit") {
		return ErrNothingToCommit
	}
	return err
}

// Push publishes local commits to the remote branch. A push rejected
// because the remote moved (non-fast-forward) carries no class
// sentinel: the publish policy reconciles with PullRebase before
// every push, so a rejection means the reconcile raced another writer
// and the whole attempt is retried on the generic path.
func (r *Repository) Push(ctx context.Context, branch string) error {
	_, err := r.run(ctx, "push", "push", r.remote, branch)
	return err
}

// Stash saves local modifications (including untracked files) away so
// the worktree is clean for a rebase. Recovery primitive for the
// publish policy's dirty-worktree path.
func (r *Repository) Stash(ctx context.Context) error {
	_, err := r.run(ctx, "stash", "stash", "push", "--include-untracked")
	return err
}

// StashPop reapplies the most recently stashed modifications.
func (r *Repository) StashPop(ctx context.Context) error {
	_, err := r.run(ctx, "stash pop", "stash", "pop")
	return err
}

// AbortMerge abandons an in-progress merge, restoring the pre-merge
// state. Recovery primitive for the publish policy's
// merge-in-progress path.
func (r *Repository) AbortMerge(ctx context.Context) error {
	_, err := r.run(ctx, "merge --abort", "merge", "--abort")
	return err
}
