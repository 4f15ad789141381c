package latency

import (
	"time"

	"github.com/Hassall/roc-toolkit/internal"
)

// EndToEndLatencyMonitor is a pass-through frame reader that keeps track of
// the overall capture-to-play latency of a stream. It can be inserted into
// any point of a frame pipeline where capture timestamps are still present.
type EndToEndLatencyMonitor struct {
	reader FrameReader
	clock  internal.Clock

	ready   bool
	latency time.Duration
}

// NewEndToEndLatencyMonitor creates a monitor wrapping the given reader.
// If clock is nil, a MonotonicClock is used.
func NewEndToEndLatencyMonitor(reader FrameReader, clock internal.Clock) *EndToEndLatencyMonitor {
	if clock == nil {
		clock = internal.MonotonicClock{}
	}
	return &EndToEndLatencyMonitor{
		reader: reader,
		clock:  clock,
	}
}

// Read reads one frame from the wrapped reader and refreshes the latency
// estimate if the frame carries a capture timestamp.
func (m *EndToEndLatencyMonitor) Read(frame *Frame) bool {
	if !m.reader.Read(frame) {
		return false
	}
	if !frame.CaptureTime.IsZero() {
		m.latency = m.clock.Now().Sub(frame.CaptureTime)
		m.ready = true
	}
	return true
}

// HasLatency reports whether any frame with a capture timestamp has been
// seen yet.
func (m *EndToEndLatencyMonitor) HasLatency() bool {
	return m.ready
}

// Latency returns the last measured capture-to-play latency.
func (m *EndToEndLatencyMonitor) Latency() time.Duration {
	return m.latency
}
