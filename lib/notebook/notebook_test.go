// Copyright 2026 The Gitcell Authors
// SPDX-License-Identifier: Apache-2.0

package notebook

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const minimal = `{
  "cells": [
    {"cell_type": "code", "source": ["print('hi')\n"], "metadata": {}},
    {"cell_type": "markdown", "source": "notes", "metadata": {}}
  ],
  "metadata": {},
  "nbformat": 4,
  "nbformat_minor": 5
}`

func TestParseMinimalNotebook(t *testing.T) {
	t.Parallel()

	parsed, err := Parse([]byte(minimal))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(parsed.Cells) != 2 {
		t.Fatalf("got %d cells, want 2", len(parsed.Cells))
	}
	if parsed.CodeCells() != 1 {
		t.Errorf("CodeCells = %d, want 1", parsed.CodeCells())
	}
	// Scalar-string source normalizes to a one-element list.
	if len(parsed.Cells[1].Source) != 1 || parsed.Cells[1].Source[0] != "notes" {
		t.Errorf("markdown source = %v", parsed.Cells[1].Source)
	}
}

func TestParseToleratesCommentsAndTrailingCommas(t *testing.T) {
	t.Parallel()

	relaxed := `{
  // hand-edited job
  "cells": [
    {"cell_type": "code", "source": ["1+1\n"], "metadata": {},},
  ],
  "metadata": {},
  "nbformat": 4,
  "nbformat_minor": 5,
}`
	if _, err := Parse([]byte(relaxed)); err != nil {
		t.Fatalf("Parse rejected jsonc input: %v", err)
	}
}

func TestParseAcceptsEmptySourceList(t *testing.T) {
	t.Parallel()

	// An empty source list is a valid (empty) cell; only an absent
	// source key is malformed.
	input := `{"cells": [{"cell_type": "code", "source": [], "metadata": {}}], "nbformat": 4, "nbformat_minor": 5}`
	if _, err := Parse([]byte(input)); err != nil {
		t.Fatalf("Parse rejected empty source list: %v", err)
	}
}

func TestParseMalformed(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		input string
	}{
		{"truncated", `{"cells": [`},
		{"wrong nbformat", `{"cells": [], "nbformat": 3, "nbformat_minor": 0}`},
		{"missing cells", `{"nbformat": 4, "nbformat_minor": 5}`},
		{"unknown cell type", `{"cells": [{"cell_type": "magic", "source": []}], "nbformat": 4}`},
		{"code cell without source", `{"cells": [{"cell_type": "code", "metadata": {}}], "nbformat": 4}`},
		{"not an object", `[1, 2, 3]`},
	}
	for _, test := range cases {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(test.input))
			if !errors.Is(err, ErrMalformed) {
				t.Fatalf("Parse = %v, want ErrMalformed", err)
			}
		})
	}
}

func TestParseFileReadErrorIsNotMalformed(t *testing.T) {
	t.Parallel()

	_, err := ParseFile(filepath.Join(t.TempDir(), "absent.ipynb"))
	if err == nil {
		t.Fatal("ParseFile succeeded on a missing file")
	}
	if errors.Is(err, ErrMalformed) {
		t.Fatalf("read failure classified as malformed: %v", err)
	}
}

func TestParseFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "run.ipynb")
	if err := os.WriteFile(path, []byte(minimal), 0644); err != nil {
		t.Fatalf("writing notebook: %v", err)
	}
	if _, err := ParseFile(path); err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
}

func TestDigestBytes(t *testing.T) {
	t.Parallel()

	a := DigestBytes([]byte(minimal))
	b := DigestBytes([]byte(minimal))
	if a != b {
		t.Error("same bytes produced different digests")
	}
	if a == DigestBytes([]byte(minimal+"\n")) {
		t.Error("different bytes produced the same digest")
	}
	if len(a.String()) != 64 {
		t.Errorf("String() length = %d, want 64", len(a.String()))
	}
}
