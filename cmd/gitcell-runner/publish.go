// Copyright 2026 The Gitcell Authors
// SPDX-License-Identifier: Apache-2.0

package main

// Publish policy for the shared repository. Every worker pushes to
// the same branch, so rejected pushes are a normal operating
// condition, not an anomaly. The policy has three parts:
//
//   - A randomized delay before the first push attempt, spreading
//     workers that finished jobs at the same moment.
//   - Reconciliation (pull --rebase) before every push, so a push
//     only fails when another worker won the race inside the window.
//   - A bounded retry loop whose recovery action depends on the
//     failure class: a dirty worktree is stashed around the rebase
//     and retried immediately, an in-progress merge is aborted, and
//     anything else waits out a fresh randomized backoff.
//
// Exhausting the attempt budget is not fatal. The commit stays local
// and reaches the remote with a later cycle's reconciliation.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/gitcell-io/gitcell/lib/clock"
	"github.com/gitcell-io/gitcell/lib/config"
	"github.com/gitcell-io/gitcell/lib/git"
	"github.com/gitcell-io/gitcell/lib/worklog"
)

// jitterFunc draws a random duration from [min, max]. Injected so
// tests can pin the draw.
type jitterFunc func(min, max time.Duration) time.Duration

func randomJitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + rand.N(max-min)
}

type publisher struct {
	repo    repository
	branch  string
	policy  config.PublishConfig
	clock   clock.Clock
	logger  *slog.Logger
	worklog *worklog.Log
	jitter  jitterFunc
}

// publish stages and commits the working tree, then pushes with the
// retry policy described above. A clean tree (nothing to commit) is a
// quiet no-op.
func (p *publisher) publish(ctx context.Context, message string) error {
	if err := p.repo.StageAll(ctx); err != nil {
		return err
	}
	err := p.repo.Commit(ctx, message)
	if errors.Is(err, git.ErrNothingToCommit) {
		p.logger.Info("nothing to publish")
		return nil
	}
	if err != nil {
		return err
	}

	if !p.sleep(ctx, p.jitter(p.policy.PrePushDelayMin.Std(), p.policy.PrePushDelayMax.Std())) {
		return ctx.Err()
	}

	var lastError error
	for attempt := 1; attempt <= p.policy.MaxAttempts; attempt++ {
		err := p.reconcileAndPush(ctx)
		if err == nil {
			p.logger.Info("published", "attempt", attempt)
			p.worklog.Printf("Published results (attempt %d of %d)", attempt, p.policy.MaxAttempts)
			return nil
		}
		lastError = err
		if ctx.Err() != nil {
			return err
		}
		p.logger.Warn("publish attempt failed",
			"attempt", attempt,
			"max_attempts", p.policy.MaxAttempts,
			"error", err)

		if attempt == p.policy.MaxAttempts {
			break
		}

		switch {
		case errors.Is(err, git.ErrDirtyWorktree):
			// Local modifications block the rebase. Stash them away,
			// reconcile, reapply, and retry immediately: the repair
			// itself resolved the failure, so waiting buys nothing.
			if recoverErr := p.recoverDirtyWorktree(ctx); recoverErr != nil {
				lastError = recoverErr
			}

		case errors.Is(err, git.ErrMergeInProgress):
			if abortErr := p.repo.AbortMerge(ctx); abortErr != nil {
				p.logger.Warn("aborting stale merge failed", "error", abortErr)
			}
			if !p.sleep(ctx, p.backoff()) {
				return ctx.Err()
			}

		default:
			if !p.sleep(ctx, p.backoff()) {
				return ctx.Err()
			}
		}
	}

	p.worklog.Printf("Publishing failed after %d attempts, keeping results locally", p.policy.MaxAttempts)
	return fmt.Errorf("publish failed after %d attempts: %w", p.policy.MaxAttempts, lastError)
}

// reconcileAndPush replays the local commit on top of the current
// remote branch, then pushes. Each failed push means another worker
// advanced the branch inside this window.
func (p *publisher) reconcileAndPush(ctx context.Context) error {
	if err := p.repo.PullRebase(ctx, p.branch); err != nil {
		return err
	}
	return p.repo.Push(ctx, p.branch)
}

// recoverDirtyWorktree clears the dirty-worktree failure mode: stash
// the stray modifications, rebase onto the remote, reapply. Errors
// are returned for the attempt loop to record; the next attempt
// proceeds regardless.
func (p *publisher) recoverDirtyWorktree(ctx context.Context) error {
	if err := p.repo.Stash(ctx); err != nil {
		return fmt.Errorf("stashing dirty worktree: %w", err)
	}
	if err := p.repo.PullRebase(ctx, p.branch); err != nil {
		return err
	}
	if err := p.repo.StashPop(ctx); err != nil {
		return fmt.Errorf("reapplying stashed changes: %w", err)
	}
	return nil
}

func (p *publisher) backoff() time.Duration {
	return p.jitter(p.policy.RetryBackoffMin.Std(), p.policy.RetryBackoffMax.Std())
}

// sleep waits for d or until ctx is done. Reports false on shutdown.
func (p *publisher) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-p.clock.After(d):
		return true
	}
}
