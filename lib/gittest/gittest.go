// Copyright 2026 The Gitcell Authors
// SPDX-License-Identifier: Apache-2.0

// Package gittest builds throwaway git topologies for tests: a bare
// origin repository plus any number of clones, all under t.TempDir.
// Clones push and pull over the filesystem, so tests exercise the
// real fetch/pull/push cycle without any network.
//
// All helpers call t.Fatalf on failure; test setup failures are not
// recoverable.
package gittest

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// Fixture is a bare origin repository with a default branch "main"
// containing one initial commit.
type Fixture struct {
	// Origin is the path of the bare repository. Use it as a remote
	// URL: file paths are valid git remotes.
	Origin string

	t    *testing.T
	root string
}

// New creates the origin repository with an initial commit on main.
func New(t *testing.T) *Fixture {
	t.Helper()

	root := t.TempDir()
	origin := filepath.Join(root, "origin.git")
	fixture := &Fixture{Origin: origin, t: t, root: root}

	fixture.git("", "init", "--bare", "--initial-branch=main", origin)

	// Seed the initial commit through a scratch clone so the bare
	// origin has history for later clones to track.
	seed := fixture.Clone("seed")
	fixture.WriteFile(seed, "README", "shared job repository\n")
	fixture.git(seed, "add", "README")
	fixture.git(seed, "commit", "-m", "initial")
	fixture.git(seed, "push", "origin", "main")

	return fixture
}

// Clone creates a working clone of the origin under the fixture root
// and returns its path. The clone has commit identity configured so
// commits work in bare CI environments.
func (f *Fixture) Clone(name string) string {
	f.t.Helper()

	dir := filepath.Join(f.root, name)
	f.git("", "clone", f.Origin, dir)
	f.git(dir, "config", "user.name", "gitcell-test")
	f.git(dir, "config", "user.email", "test@gitcell.invalid")
	return dir
}

// WriteFile writes content to a path relative to dir, creating parent
// directories as needed.
func (f *Fixture) WriteFile(dir, relative, content string) {
	f.t.Helper()

	path := filepath.Join(dir, relative)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		f.t.Fatalf("creating %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		f.t.Fatalf("writing %s: %v", path, err)
	}
}

// CommitAndPush stages everything in dir, commits with the given
// message, and pushes to origin main. Used to simulate a peer worker
// or operator landing a commit.
func (f *Fixture) CommitAndPush(dir, message string) {
	f.t.Helper()

	f.git(dir, "add", "-A")
	f.git(dir, "commit", "-m", message)
	f.git(dir, "push", "origin", "main")
}

// Head returns the commit hash of HEAD in dir.
func (f *Fixture) Head(dir string) string {
	f.t.Helper()
	return strings.TrimSpace(f.git(dir, "rev-parse", "HEAD"))
}

// git runs a git command (with -C dir when dir is non-empty) and
// returns combined output, failing the test on error.
func (f *Fixture) git(dir string, args ...string) string {
	f.t.Helper()

	if dir != "" {
		args = append([]string{"-C", dir}, args...)
	}
	command := exec.Command("git", args...)
	output, err := command.CombinedOutput()
	if err != nil {
		f.t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, output)
	}
	return string(output)
}
