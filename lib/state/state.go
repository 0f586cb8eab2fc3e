// Copyright 2026 The Gitcell Authors
// SPDX-License-Identifier: Apache-2.0

// Package state persists the runner's poll state across restarts: the
// last observed remote ref and a bounded history of completed runs.
// The state file is advisory. Losing it costs at most one redundant
// sync cycle, so readers treat a missing or unreadable file as a
// fresh start rather than an error condition.
package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gitcell-io/gitcell/lib/codec"
	"github.com/gitcell-io/gitcell/lib/git"
)

// MaxRunRecords bounds the run history kept in the state file. Older
// records are discarded oldest-first.
const MaxRunRecords = 50

// RunRecord summarizes one completed job execution.
type RunRecord struct {
	// Digest is the hex job digest of the notebook that ran.
	Digest string `cbor:"digest"`

	// Status is the execution outcome, "success" or "failure".
	Status string `cbor:"status"`

	// Ref is the remote ref that delivered the job.
	Ref string `cbor:"ref"`

	// FinishedAt is when execution completed.
	FinishedAt time.Time `cbor:"finished_at"`

	// Duration is how long execution took.
	Duration time.Duration `cbor:"duration"`
}

// State is the persisted runner state.
type State struct {
	// LastRef is the last remote ref the runner observed. The empty
	// value means no ref has been observed yet, so the next observed
	// ref always counts as a change.
	LastRef git.Ref `cbor:"last_ref"`

	// Runs is the bounded run history, oldest first.
	Runs []RunRecord `cbor:"runs"`
}

// Record appends a run record, discarding the oldest when the bound
// is exceeded.
func (s *State) Record(run RunRecord) {
	s.Runs = append(s.Runs, run)
	if len(s.Runs) > MaxRunRecords {
		s.Runs = s.Runs[len(s.Runs)-MaxRunRecords:]
	}
}

// Store reads and writes the state file under a state directory.
type Store struct {
	path string
}

// NewStore returns a Store for the given state directory, creating
// the directory when missing.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}
	return &Store{path: filepath.Join(dir, "runner-state.cbor")}, nil
}

// Path returns the state file path.
func (s *Store) Path() string { return s.path }

// Load reads the persisted state. A missing file returns the zero
// state; a corrupt file is discarded with the returned bool false so
// the caller can log the reset.
func (s *Store) Load() (State, bool, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return State{}, true, nil
	}
	if err != nil {
		return State{}, false, fmt.Errorf("reading state file: %w", err)
	}
	var loaded State
	if err := codec.Unmarshal(data, &loaded); err != nil {
		return State{}, false, nil
	}
	return loaded, true, nil
}

// Save atomically writes the state file: temporary file in the same
// directory, fsync, rename. Readers never see a partial write.
func (s *Store) Save(state State) error {
	data, err := codec.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	temporaryPath := s.path + ".tmp"
	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating temporary state file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary state file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary state file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary state file: %w", err)
	}
	if err := os.Rename(temporaryPath, s.path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming state file into place: %w", err)
	}

	// Sync the parent directory so the rename survives power loss.
	parentDirectory, err := os.Open(filepath.Dir(s.path))
	if err == nil {
		parentDirectory.Sync()
		parentDirectory.Close()
	}
	return nil
}
