// Copyright 2026 The Gitcell Authors
// SPDX-License-Identifier: Apache-2.0

// Package notebook models Jupyter notebooks (nbformat 4) far enough
// to validate a job before execution and to inspect its cells. The
// runner never mutates notebook content itself; execution is delegated
// to the configured engine. Parsing exists to reject malformed jobs
// cheaply, before a subprocess is spawned.
package notebook

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"
)

// ErrMalformed classifies any parse or validation failure of a job
// notebook. A malformed job is terminal for the current job: it is
// reported as a failure result, never retried as-is.
var ErrMalformed = errors.New("malformed notebook")

// Notebook is the subset of nbformat 4 the runner inspects. Fields
// not modeled here survive a round trip only in the original file,
// which is why the runner executes notebooks in place rather than
// re-serializing this struct.
type Notebook struct {
	Cells         []Cell         `json:"cells"`
	Metadata      map[string]any `json:"metadata"`
	NBFormat      int            `json:"nbformat"`
	NBFormatMinor int            `json:"nbformat_minor"`
}

// Cell is a single notebook cell.
type Cell struct {
	Type     string         `json:"cell_type"`
	Source   Source         `json:"source"`
	Metadata map[string]any `json:"metadata"`
}

// Source is a cell source, which nbformat allows to be either a
// single string or a list of line strings.
type Source []string

// UnmarshalJSON accepts both source encodings.
func (s *Source) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*s = Source{single}
		return nil
	}
	var lines []string
	if err := json.Unmarshal(data, &lines); err != nil {
		return fmt.Errorf("cell source is neither string nor string list: %w", err)
	}
	*s = lines
	return nil
}

// Parse decodes notebook JSON. Comments and trailing commas are
// tolerated (hand-edited jobs carry both surprisingly often); real
// structural damage is reported as ErrMalformed.
func Parse(data []byte) (*Notebook, error) {
	var parsed Notebook
	if err := json.Unmarshal(jsonc.ToJSON(data), &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if parsed.NBFormat != 4 {
		return nil, fmt.Errorf("%w: nbformat %d, want 4", ErrMalformed, parsed.NBFormat)
	}
	if parsed.Cells == nil {
		return nil, fmt.Errorf("%w: missing cells list", ErrMalformed)
	}
	for i, cell := range parsed.Cells {
		switch cell.Type {
		case "code", "markdown", "raw":
		default:
			return nil, fmt.Errorf("%w: cell %d has unknown type %q", ErrMalformed, i, cell.Type)
		}
		// A nil Source means the key was absent; an empty cell carries
		// an empty list instead.
		if cell.Type == "code" && cell.Source == nil {
			return nil, fmt.Errorf("%w: code cell %d has no source", ErrMalformed, i)
		}
	}
	return &parsed, nil
}

// ParseFile reads and parses a notebook from disk. A read failure is
// an I/O error, not ErrMalformed.
func ParseFile(path string) (*Notebook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading notebook: %w", err)
	}
	return Parse(data)
}

// CodeCells returns the number of code cells.
func (n *Notebook) CodeCells() int {
	count := 0
	for _, cell := range n.Cells {
		if cell.Type == "code" {
			count++
		}
	}
	return count
}
