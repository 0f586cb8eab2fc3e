// Copyright 2026 The Gitcell Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"os"
	"testing"
	"time"
)

func TestLoadMissingFileIsZeroState(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	loaded, ok, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !ok {
		t.Error("missing file reported as corrupt")
	}
	if loaded.LastRef != "" || len(loaded.Runs) != 0 {
		t.Errorf("zero state = %+v", loaded)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	saved := State{LastRef: "abc123"}
	saved.Record(RunRecord{
		Digest:     "deadbeef",
		Status:     "success",
		Ref:        "abc123",
		FinishedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Duration:   90 * time.Second,
	})
	if err := store.Save(saved); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, ok, err := store.Load()
	if err != nil || !ok {
		t.Fatalf("Load: ok=%v err=%v", ok, err)
	}
	if loaded.LastRef != "abc123" {
		t.Errorf("LastRef = %q", loaded.LastRef)
	}
	if len(loaded.Runs) != 1 || loaded.Runs[0].Digest != "deadbeef" {
		t.Errorf("Runs = %+v", loaded.Runs)
	}
	if !loaded.Runs[0].FinishedAt.Equal(saved.Runs[0].FinishedAt) {
		t.Errorf("FinishedAt = %v", loaded.Runs[0].FinishedAt)
	}
}

func TestCorruptFileResetsState(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := os.WriteFile(store.Path(), []byte("not cbor at all"), 0600); err != nil {
		t.Fatalf("writing corrupt file: %v", err)
	}

	loaded, ok, err := store.Load()
	if err != nil {
		t.Fatalf("Load returned error for corrupt file: %v", err)
	}
	if ok {
		t.Error("corrupt file not flagged")
	}
	if loaded.LastRef != "" {
		t.Errorf("corrupt file produced state %+v", loaded)
	}
}

func TestRecordBoundsHistory(t *testing.T) {
	t.Parallel()

	var current State
	for i := 0; i < MaxRunRecords+10; i++ {
		current.Record(RunRecord{Digest: "d", Status: "success"})
	}
	if len(current.Runs) != MaxRunRecords {
		t.Fatalf("history length %d, want %d", len(current.Runs), MaxRunRecords)
	}
}
