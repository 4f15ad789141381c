// Package latency implements the adaptive latency control loop of a
// real-time audio streaming receiver: per-session latency monitoring,
// a frequency estimator driving resampler scaling, and the packet and
// frame plumbing the monitor observes.
package latency

// Timestamp is a stream timestamp: an unsigned sample index counted at the
// session's input sample rate. Like an RTP timestamp it is 32 bits wide and
// wraps around; use TimestampDiffOf to compare two values.
type Timestamp uint32

// TimestampDiff is a signed difference between two stream timestamps,
// measured in samples at the input rate.
type TimestampDiff int32

// TimestampDiffOf computes the signed delta a-b between two stream
// timestamps, correctly handling wraparound at the 32-bit boundary.
//
// Half-range comparison decides the direction: an apparent jump larger than
// half the timestamp range is interpreted as a wrap in the other direction.
// This is the same unwrap technique used for the 24-bit abs-send-time field
// in RTP header extensions, applied to the full 32-bit space.
func TimestampDiffOf(a, b Timestamp) TimestampDiff {
	return TimestampDiff(int32(a - b))
}

// AddDiff advances a timestamp by a signed delta, wrapping naturally.
func (t Timestamp) AddDiff(d TimestampDiff) Timestamp {
	return Timestamp(int64(t) + int64(d))
}
