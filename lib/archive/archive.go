// Copyright 2026 The Gitcell Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive keeps a local zstd-compressed copy of every
// executed notebook, keyed by job digest. The shared repository holds
// the authoritative results; the archive exists so an operator can
// recover an executed notebook even after the results directory has
// been pruned upstream. Notebook JSON compresses well, typically 5x
// or better.
package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/gitcell-io/gitcell/lib/notebook"
)

// zstdEncoder and zstdDecoder are reused across calls. Both are safe
// for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("archive: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("archive: zstd decoder initialization failed: " + err.Error())
	}
}

// ErrNotArchived is returned by Get when no entry exists for a digest.
var ErrNotArchived = errors.New("notebook not in archive")

// Archive is a digest-addressed directory of compressed notebooks.
type Archive struct {
	dir string
}

// New returns an Archive rooted at dir, creating it when missing.
func New(dir string) (*Archive, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}
	return &Archive{dir: dir}, nil
}

func (a *Archive) entryPath(digest notebook.Digest) string {
	return filepath.Join(a.dir, digest.String()+".ipynb.zst")
}

// Put stores notebook bytes under their job digest. Writing the same
// digest twice overwrites with identical content, so Put is
// idempotent.
func (a *Archive) Put(digest notebook.Digest, data []byte) error {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if err := os.WriteFile(a.entryPath(digest), compressed, 0600); err != nil {
		return fmt.Errorf("writing archive entry %s: %w", digest, err)
	}
	return nil
}

// Get returns the decompressed notebook for a digest, or
// ErrNotArchived when no entry exists.
func (a *Archive) Get(digest notebook.Digest) ([]byte, error) {
	compressed, err := os.ReadFile(a.entryPath(digest))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotArchived, digest)
	}
	if err != nil {
		return nil, fmt.Errorf("reading archive entry %s: %w", digest, err)
	}
	data, err := zstdDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing archive entry %s: %w", digest, err)
	}
	return data, nil
}

// Has reports whether an entry exists for a digest.
func (a *Archive) Has(digest notebook.Digest) bool {
	_, err := os.Stat(a.entryPath(digest))
	return err == nil
}
