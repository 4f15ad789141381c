package latency

import "time"

// Frame is a block of decoded interleaved PCM samples travelling through the
// receiver pipeline.
type Frame struct {
	// Samples holds interleaved signed 16-bit PCM. Its length is
	// num_samples_per_channel * channels and is set by the caller before
	// Read; readers fill it in place.
	Samples []int16

	// CaptureTime is the absolute wall-clock time at which the sender
	// captured the first sample of this frame. The zero value means the
	// capture time is unknown and must be ignored.
	CaptureTime time.Time
}

// FrameReader is the downstream pull interface of the pipeline: each call
// fills one frame. It returns false when no more frames can be produced and
// the pipeline should stop.
type FrameReader interface {
	Read(frame *Frame) bool
}

// Resampler is a frame reader whose output rate can be adjusted at runtime
// by a multiplicative scaling factor close to 1.0.
type Resampler interface {
	FrameReader

	// SetScaling applies a new scaling factor to the output/input rate
	// ratio. It returns false iff the factor is outside the resampler's
	// supported range; it never panics on out-of-range input.
	SetScaling(factor float64) bool
}

// PacketQueue is the upstream packet store observed by the latency monitor.
// It is written by the network ingestion actor and read by the session
// actor; Latest must return a consistent snapshot under that
// single-producer/single-consumer pattern.
type PacketQueue interface {
	// Latest returns the queued packet whose End() timestamp is greatest,
	// or nil if the queue is empty.
	Latest() *Packet
}

// DepacketizerInfo exposes the depacketizer state the latency monitor
// observes to compute network-in-queue latency.
type DepacketizerInfo interface {
	// IsStarted reports whether at least one packet has been consumed.
	IsStarted() bool

	// NextTimestamp returns the stream timestamp that the next decoded
	// sample will carry. Meaningful only after IsStarted returns true.
	NextTimestamp() Timestamp
}
