// Copyright 2026 The Gitcell Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for
// testability. Production code accepts a Clock parameter instead of
// calling time.Now, time.After, or time.Sleep directly: Real() gives
// standard library behavior, Fake() gives a deterministic clock that
// advances only when Advance is called.
package clock

import "time"

// Clock abstracts the time operations the runner performs: reading
// wall-clock time for timestamps, and waiting for poll intervals and
// publish backoff delays.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time after
	// duration d elapses. If d <= 0, the channel receives
	// immediately.
	After(d time.Duration) <-chan time.Time

	// Sleep pauses the calling goroutine for at least duration d.
	Sleep(d time.Duration)
}
