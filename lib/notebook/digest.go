// Copyright 2026 The Gitcell Authors
// SPDX-License-Identifier: Apache-2.0

package notebook

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Digest is a 32-byte BLAKE3 digest of a job notebook's raw bytes.
// It identifies a job in run records and names entries in the local
// result archive.
type Digest [32]byte

// jobDomainKey is the BLAKE3 keyed-hash domain for job digests. The
// key is the ASCII domain name zero-padded to 32 bytes, readable in
// hex dumps. Changing it invalidates every recorded digest.
var jobDomainKey = [32]byte{
	'g', 'i', 't', 'c', 'e', 'l', 'l', '.', 'j', 'o', 'b',
}

// DigestBytes computes the job digest of raw notebook bytes. The
// digest is over the bytes as committed, not a normalized form, so
// any peer edit produces a new digest.
func DigestBytes(data []byte) Digest {
	hasher, err := blake3.NewKeyed(jobDomainKey[:])
	if err != nil {
		// NewKeyed fails only for a wrong key length, which the fixed
		// array rules out.
		panic("notebook: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	return digest
}

// String returns the canonical hex form used in logs and archive
// entry names.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}
