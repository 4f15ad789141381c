package latency

import "time"

// ntpEpochOffset is the offset between the NTP epoch (1 Jan 1900) and the
// Unix epoch (1 Jan 1970): 70 years plus 17 leap days.
const ntpEpochOffset = (70*365 + 17) * 24 * time.Hour

// NTPTime is a 64-bit NTP timestamp in UQ32.32 format: the upper 32 bits
// carry seconds since the NTP epoch, the lower 32 bits carry the fraction
// of a second.
type NTPTime uint64

// NTPFromTime converts an absolute wall-clock time to an NTP timestamp.
// Times before the NTP epoch convert to zero.
func NTPFromTime(t time.Time) NTPTime {
	ns := t.UnixNano() + int64(ntpEpochOffset)
	if ns < 0 {
		return 0
	}
	seconds := uint64(ns) / uint64(time.Second)
	remainder := uint64(ns) - seconds*uint64(time.Second)
	fraction := (remainder << 32) / uint64(time.Second)
	return NTPTime(seconds<<32 | fraction)
}

// Time converts an NTP timestamp back to an absolute wall-clock time.
func (n NTPTime) Time() time.Time {
	seconds := int64(n >> 32)
	fraction := int64(n & 0xFFFFFFFF)
	nanos := (fraction * int64(time.Second)) >> 32
	unixNs := seconds*int64(time.Second) + nanos - int64(ntpEpochOffset)
	return time.Unix(0, unixNs)
}

// TimestampMapping tracks the latest known correspondence between sender
// wall-clock time and stream timestamps, as learned from RTCP sender
// reports. It assigns capture times to packets by extrapolating from the
// mapping at the stream's sample rate.
//
// The zero value has no mapping; CaptureTime reports unknown until the
// first Set.
type TimestampMapping struct {
	spec SampleSpec

	hasMapping bool
	captTime   time.Time
	rtpTs      Timestamp
}

// NewTimestampMapping creates a mapping for a stream with the given spec.
func NewTimestampMapping(spec SampleSpec) *TimestampMapping {
	return &TimestampMapping{spec: spec}
}

// Set records a (wall clock, stream timestamp) pair from a sender report.
// Zero times are ignored.
func (m *TimestampMapping) Set(captTime time.Time, rtpTs Timestamp) {
	if captTime.IsZero() {
		return
	}
	m.hasMapping = true
	m.captTime = captTime
	m.rtpTs = rtpTs
}

// HasMapping reports whether a sender report has been observed.
func (m *TimestampMapping) HasMapping() bool {
	return m.hasMapping
}

// CaptureTime returns the extrapolated capture time for the given stream
// timestamp, or the zero time if no mapping is known yet.
func (m *TimestampMapping) CaptureTime(ts Timestamp) time.Time {
	if !m.hasMapping {
		return time.Time{}
	}
	delta := TimestampDiffOf(ts, m.rtpTs)
	return m.captTime.Add(m.spec.TimestampDiffToNs(delta))
}
