// Copyright 2026 The Gitcell Authors
// SPDX-License-Identifier: Apache-2.0

package git

import (
	"context"
	"errors"
	"os/exec"
	"testing"

	"github.com/gitcell-io/gitcell/lib/gittest"
)

func TestFetchAndRemoteRefTracksPeerPush(t *testing.T) {
	t.Parallel()

	fixture := gittest.New(t)
	worker := fixture.Clone("worker")
	peer := fixture.Clone("peer")
	repo := NewRepository(worker)
	ctx := context.Background()

	if err := repo.Fetch(ctx); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	before, err := repo.RemoteRef(ctx, "main")
	if err != nil {
		t.Fatalf("RemoteRef: %v", err)
	}
	if before == RefUnknown {
		t.Fatal("RemoteRef returned the unknown ref for an existing branch")
	}

	fixture.WriteFile(peer, "cells/3/run.ipynb", "{}\n")
	fixture.CommitAndPush(peer, "3: new job")

	if err := repo.Fetch(ctx); err != nil {
		t.Fatalf("Fetch after peer push: %v", err)
	}
	after, err := repo.RemoteRef(ctx, "main")
	if err != nil {
		t.Fatalf("RemoteRef after peer push: %v", err)
	}
	if after == before {
		t.Fatalf("RemoteRef unchanged after peer push: %s", after)
	}
	if want := Ref(fixture.Head(peer)); after != want {
		t.Fatalf("RemoteRef = %s, want peer head %s", after, want)
	}
}

func TestPullFastForwards(t *testing.T) {
	t.Parallel()

	fixture := gittest.New(t)
	worker := fixture.Clone("worker")
	peer := fixture.Clone("peer")
	repo := NewRepository(worker)
	ctx := context.Background()

	fixture.WriteFile(peer, "note.txt", "from peer\n")
	fixture.CommitAndPush(peer, "peer update")

	if err := repo.Pull(ctx, "main"); err != nil {
		t.Fatalf("Pull: %v", err)
	}
	head, err := repo.Head(ctx)
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if string(head) != fixture.Head(peer) {
		t.Fatalf("Head after pull = %s, want %s", head, fixture.Head(peer))
	}
}

func TestCommitNothingToCommit(t *testing.T) {
	t.Parallel()

	fixture := gittest.New(t)
	worker := fixture.Clone("worker")
	repo := NewRepository(worker)
	ctx := context.Background()

	if err := repo.StageAll(ctx); err != nil {
		t.Fatalf("StageAll: %v", err)
	}
	err := repo.Commit(ctx, "empty")
	if !errors.Is(err, ErrNothingToCommit) {
		t.Fatalf("Commit on clean tree = %v, want ErrNothingToCommit", err)
	}
}

func TestCommitAndPushVisibleToPeer(t *testing.T) {
	t.Parallel()

	fixture := gittest.New(t)
	worker := fixture.Clone("worker")
	repo := NewRepository(worker)
	ctx := context.Background()

	fixture.WriteFile(worker, "results/run_3_success_20260301_120000.ipynb", "{}\n")
	if err := repo.StageAll(ctx); err != nil {
		t.Fatalf("StageAll: %v", err)
	}
	if err := repo.Commit(ctx, "3: Processed and updated run.ipynb"); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := repo.Push(ctx, "main"); err != nil {
		t.Fatalf("Push: %v", err)
	}

	peer := fixture.Clone("peer")
	if got, want := fixture.Head(peer), fixture.Head(worker); got != want {
		t.Fatalf("peer head = %s, want %s", got, want)
	}
}

func TestPushRejectedWhenRemoteMoved(t *testing.T) {
	t.Parallel()

	fixture := gittest.New(t)
	worker := fixture.Clone("worker")
	peer := fixture.Clone("peer")
	repo := NewRepository(worker)
	ctx := context.Background()

	// Both sides commit; the peer lands first.
	fixture.WriteFile(peer, "results/peer.ipynb", "{}\n")
	fixture.CommitAndPush(peer, "peer result")

	fixture.WriteFile(worker, "results/worker.ipynb", "{}\n")
	if err := repo.StageAll(ctx); err != nil {
		t.Fatalf("StageAll: %v", err)
	}
	if err := repo.Commit(ctx, "worker result"); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if err := repo.Push(ctx, "main"); err == nil {
		t.Fatal("Push succeeded with a stale local branch")
	}

	// Reconcile and retry: the losing worker replays its commit on
	// top of the winner's and the push lands.
	if err := repo.PullRebase(ctx, "main"); err != nil {
		t.Fatalf("PullRebase: %v", err)
	}
	if err := repo.Push(ctx, "main"); err != nil {
		t.Fatalf("Push after rebase: %v", err)
	}
}

func TestPullRebaseDirtyWorktreeClassified(t *testing.T) {
	t.Parallel()

	fixture := gittest.New(t)
	worker := fixture.Clone("worker")
	peer := fixture.Clone("peer")
	repo := NewRepository(worker)
	ctx := context.Background()

	// Peer advances the remote while the worker has uncommitted
	// changes to a tracked file.
	fixture.WriteFile(peer, "note.txt", "peer note\n")
	fixture.CommitAndPush(peer, "peer note")
	fixture.WriteFile(worker, "README", "local uncommitted edit\n")

	err := repo.PullRebase(ctx, "main")
	if !errors.Is(err, ErrDirtyWorktree) {
		t.Fatalf("PullRebase with dirty worktree = %v, want ErrDirtyWorktree", err)
	}

	// The stash / rebase / pop recovery sequence clears it.
	if err := repo.Stash(ctx); err != nil {
		t.Fatalf("Stash: %v", err)
	}
	if err := repo.PullRebase(ctx, "main"); err != nil {
		t.Fatalf("PullRebase after stash: %v", err)
	}
	if err := repo.StashPop(ctx); err != nil {
		t.Fatalf("StashPop: %v", err)
	}
}

func TestPullRebaseConflictClassified(t *testing.T) {
	t.Parallel()

	fixture := gittest.New(t)
	worker := fixture.Clone("worker")
	peer := fixture.Clone("peer")
	repo := NewRepository(worker)
	ctx := context.Background()

	// Conflicting committed edits to the same file on both sides.
	fixture.WriteFile(peer, "README", "peer version\n")
	fixture.CommitAndPush(peer, "peer version")

	fixture.WriteFile(worker, "README", "worker version\n")
	if err := repo.StageAll(ctx); err != nil {
		t.Fatalf("StageAll: %v", err)
	}
	if err := repo.Commit(ctx, "worker version"); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	err := repo.PullRebase(ctx, "main")
	if !errors.Is(err, ErrRebaseConflict) {
		t.Fatalf("conflicting PullRebase = %v, want ErrRebaseConflict", err)
	}
}

func TestFetchUnreachableRemoteIsNetworkFailure(t *testing.T) {
	t.Parallel()

	fixture := gittest.New(t)
	worker := fixture.Clone("worker")
	ctx := context.Background()

	retarget := exec.Command("git", "-C", worker, "remote", "set-url", "origin",
		"https://gitcell-unreachable.invalid/repo.git")
	if output, err := retarget.CombinedOutput(); err != nil {
		t.Fatalf("remote set-url: %v\n%s", err, output)
	}

	repo := NewRepository(worker)
	err := repo.Fetch(ctx)
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("Fetch against unreachable remote = %v, want ErrNetwork", err)
	}
}

func TestOpErrorCarriesOutput(t *testing.T) {
	t.Parallel()

	fixture := gittest.New(t)
	worker := fixture.Clone("worker")
	repo := NewRepository(worker)

	_, err := repo.run(context.Background(), "bogus", "not-a-real-subcommand")
	if err == nil {
		t.Fatal("expected error for invalid git subcommand")
	}
	var opErr *OpError
	if !errors.As(err, &opErr) {
		t.Fatalf("error type = %T, want *OpError", err)
	}
	if opErr.Output == "" {
		t.Error("OpError.Output is empty, want captured stderr")
	}
	if opErr.Class != nil {
		t.Errorf("OpError.Class = %v, want nil for unexpected fault", opErr.Class)
	}
}
