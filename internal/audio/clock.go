package audio

import "context"

// Clock is the audio primitive the scheduler drives: a monotonic clock plus
// the ability to start a buffer at a future clock time with sample accuracy.
type Clock interface {
	// Now returns the current audio clock time in seconds.
	Now() float64
	// ScheduleTone starts buf at clock time at, scaled by gain.
	ScheduleTone(buf *Buffer, at float64, gain float64)
	// CancelPending drops every tone that has not started yet.
	CancelPending()
	// Resume makes sure the clock is running, initialising the device on first use.
	Resume(ctx context.Context) error
}
