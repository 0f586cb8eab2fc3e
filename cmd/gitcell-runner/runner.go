// Copyright 2026 The Gitcell Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gitcell-io/gitcell/lib/archive"
	"github.com/gitcell-io/gitcell/lib/clock"
	"github.com/gitcell-io/gitcell/lib/config"
	"github.com/gitcell-io/gitcell/lib/engine"
	"github.com/gitcell-io/gitcell/lib/git"
	"github.com/gitcell-io/gitcell/lib/notebook"
	"github.com/gitcell-io/gitcell/lib/slot"
	"github.com/gitcell-io/gitcell/lib/state"
	"github.com/gitcell-io/gitcell/lib/worklog"
)

// repository is the subset of lib/git the runner and publisher use.
// Tests script failure sequences through it; production passes
// *git.Repository.
type repository interface {
	Fetch(ctx context.Context) error
	RemoteRef(ctx context.Context, branch string) (git.Ref, error)
	PullRebase(ctx context.Context, branch string) error
	StageAll(ctx context.Context) error
	Commit(ctx context.Context, message string) error
	Push(ctx context.Context, branch string) error
	Stash(ctx context.Context) error
	StashPop(ctx context.Context) error
	AbortMerge(ctx context.Context) error
}

// Runner owns one worker's poll loop. All state lives on the struct;
// the loop itself is strictly sequential, so nothing here is guarded
// by locks.
type Runner struct {
	config    *config.Config
	slot      slot.Slot
	repo      repository
	engine    engine.Engine
	clock     clock.Clock
	logger    *slog.Logger
	worklog   *worklog.Log
	store     *state.Store
	archive   *archive.Archive
	publisher *publisher

	// state is the in-memory copy of the persisted poll state. Saved
	// back through store after every mutation.
	state state.State
}

// Run polls until ctx is canceled. Cycle failures are logged and do
// not stop the loop; the only way out is shutdown.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("runner started",
		"identity", r.config.Identity,
		"repository", r.config.Repository.Dir,
		"branch", r.config.Repository.Branch,
		"poll_interval", r.config.PollInterval.Std())

	for {
		if err := r.runCycle(ctx); err != nil {
			if ctx.Err() != nil {
				r.logger.Info("runner stopping")
				return nil
			}
			r.logger.Error("cycle failed", "error", err)
		}

		select {
		case <-ctx.Done():
			r.logger.Info("runner stopping")
			return nil
		case <-r.clock.After(r.config.PollInterval.Std()):
		}
	}
}

// runCycle performs one poll cycle. Transient repository failures
// (unreachable remote, mid-fetch timeout) are logged and absorbed:
// the next cycle retries from the top. The returned error is reserved
// for conditions the loop cannot make progress past.
func (r *Runner) runCycle(ctx context.Context) error {
	branch := r.config.Repository.Branch

	if err := r.repo.Fetch(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.logger.Warn("fetch failed", "error", err)
		return nil
	}
	ref, err := r.repo.RemoteRef(ctx, branch)
	if err != nil {
		r.logger.Warn("reading remote ref failed", "error", err)
		return nil
	}

	// The remote ref is the sole change signal. An unchanged ref means
	// no new history, so the slot cannot contain a new job either.
	if ref == r.state.LastRef {
		return nil
	}

	r.logger.Info("new changes detected", "ref", ref, "previous", r.state.LastRef)
	r.worklog.Printf("New changes detected (ref %s)", ref)

	if err := r.repo.PullRebase(ctx, branch); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.logger.Warn("sync failed", "error", err)
		return nil
	}

	if !r.slot.HasJob() {
		r.logger.Info("no job in slot")
		r.state.LastRef = ref
		r.saveState()
		return nil
	}
	// LastRef advances only once the job reaches a verdict (in
	// finishJob). A cycle abandoned mid-job leaves the old ref in
	// place, so the next cycle sees the same ref as a change and
	// retries the job instead of stranding it in the slot.
	return r.runJob(ctx, ref)
}

// runJob validates, executes, and finishes the job currently in the
// slot. Malformed jobs are never executed: they go straight to a
// failure result so the bad notebook leaves the slot and the verdict
// reaches the peers.
func (r *Runner) runJob(ctx context.Context, ref git.Ref) error {
	raw, err := os.ReadFile(r.slot.JobPath)
	if err != nil {
		return fmt.Errorf("reading job: %w", err)
	}
	digest := notebook.DigestBytes(raw)
	r.logger.Info("job received", "digest", digest.String(), "bytes", len(raw))

	parsed, err := notebook.Parse(raw)
	if err != nil {
		if !errors.Is(err, notebook.ErrMalformed) {
			return err
		}
		r.logger.Warn("job rejected", "digest", digest.String(), "error", err)
		r.worklog.Printf("Job rejected without execution: %v", err)
		return r.finishJob(ctx, ref, digest, engine.Outcome{
			Status:     engine.StatusFailure,
			Diagnostic: err.Error(),
		})
	}

	r.worklog.Printf("Starting notebook execution (%d code cells)", parsed.CodeCells())
	outcome, err := r.engine.Execute(ctx, r.slot.JobPath)
	if err != nil {
		if ctx.Err() != nil {
			// Shutdown. The job stays in the slot with LastRef not yet
			// advanced, so the next cycle retries it.
			return fmt.Errorf("executing job: %w", err)
		}
		// Engine fault (command missing, unspawnable). The job itself
		// never ran, but it still gets a failure verdict: leaving it in
		// the slot would strand it behind an unchanged ref.
		r.logger.Error("engine fault", "digest", digest.String(), "error", err)
		r.worklog.Printf("Notebook execution failed: %v", err)
		outcome = engine.Outcome{
			Status:     engine.StatusFailure,
			Diagnostic: err.Error(),
		}
		return r.finishJob(ctx, ref, digest, outcome)
	}

	if outcome.Status == engine.StatusSuccess {
		r.logger.Info("execution succeeded", "digest", digest.String(), "duration", outcome.Duration)
		r.worklog.Printf("Notebook execution completed successfully")
	} else {
		r.logger.Warn("execution failed", "digest", digest.String(), "duration", outcome.Duration)
		r.worklog.Printf("Notebook execution failed: %s", firstLine(outcome.Diagnostic))
	}
	return r.finishJob(ctx, ref, digest, outcome)
}

// finishJob archives the executed notebook, relocates it into the
// results directory, advances the observed ref, records the run, and
// publishes. Publish exhaustion is logged and swallowed: the commit
// stays local and rides along with a later cycle's reconciliation.
func (r *Runner) finishJob(ctx context.Context, ref git.Ref, digest notebook.Digest, outcome engine.Outcome) error {
	if executed, err := os.ReadFile(r.slot.JobPath); err == nil {
		if err := r.archive.Put(digest, executed); err != nil {
			r.logger.Warn("archiving executed notebook failed", "error", err)
		}
	}

	resultPath, err := r.relocate(outcome.Status)
	if err != nil {
		return err
	}
	r.cleanSlot()

	r.state.LastRef = ref
	r.state.Record(state.RunRecord{
		Digest:     digest.String(),
		Status:     string(outcome.Status),
		Ref:        string(ref),
		FinishedAt: r.clock.Now(),
		Duration:   outcome.Duration,
	})
	r.saveState()

	r.worklog.Printf("Result stored as %s", filepath.Base(resultPath))
	message := fmt.Sprintf("%s: Processed and updated %s", r.config.Identity, slot.JobArtifact)
	if err := r.publisher.publish(ctx, message); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.logger.Error("publish failed, result remains local", "error", err)
	}
	return nil
}

// saveState persists the poll state. The state file is advisory, so a
// write failure is logged rather than propagated.
func (r *Runner) saveState() {
	if err := r.store.Save(r.state); err != nil {
		r.logger.Warn("saving state failed", "error", err)
	}
}

func firstLine(text string) string {
	if index := strings.IndexByte(text, '\n'); index >= 0 {
		return text[:index]
	}
	return text
}
