package latency

import (
	"fmt"
	"math"
	"time"
)

// SampleFormat identifies the in-memory encoding of audio samples.
type SampleFormat int

const (
	// FormatS16 is signed 16-bit PCM, the native frame format of this package.
	FormatS16 SampleFormat = iota
	// FormatF32 is 32-bit float PCM.
	FormatF32
)

// String returns a string representation of the SampleFormat.
func (f SampleFormat) String() string {
	switch f {
	case FormatS16:
		return "s16"
	case FormatF32:
		return "f32"
	default:
		return "unknown"
	}
}

// SampleSize returns the size of one sample in bytes.
func (f SampleFormat) SampleSize() int {
	switch f {
	case FormatF32:
		return 4
	default:
		return 2
	}
}

// SampleSpec describes an audio stream: sample rate, channel count, and
// sample format. It is a pure value object; the zero value is invalid.
//
// Latencies cross the package boundary in nanoseconds but are handled
// internally as stream timestamps at the input rate. SampleSpec carries the
// conversions between the two.
type SampleSpec struct {
	// Rate is the sample rate in Hz. Must be positive for a valid spec.
	Rate int

	// Channels is the number of interleaved channels (1=mono, 2=stereo).
	Channels int

	// Format is the sample encoding.
	Format SampleFormat
}

// NewSampleSpec creates a sample spec, validating rate and channel count.
func NewSampleSpec(rate, channels int, format SampleFormat) (SampleSpec, error) {
	if rate <= 0 {
		return SampleSpec{}, fmt.Errorf("sample spec: invalid rate %d", rate)
	}
	if channels <= 0 {
		return SampleSpec{}, fmt.Errorf("sample spec: invalid channel count %d", channels)
	}
	return SampleSpec{Rate: rate, Channels: channels, Format: format}, nil
}

// IsValid reports whether the spec has a positive rate and channel count.
func (s SampleSpec) IsValid() bool {
	return s.Rate > 0 && s.Channels > 0
}

// NsToTimestampDiff converts a signed duration to a signed stream timestamp
// delta: round(ns * rate / 1e9).
//
// Multi-second intervals must not silently wrap: results outside the
// TimestampDiff range saturate to math.MinInt32 / math.MaxInt32.
func (s SampleSpec) NsToTimestampDiff(d time.Duration) TimestampDiff {
	samples := math.Round(d.Seconds() * float64(s.Rate))
	if samples >= math.MaxInt32 {
		return math.MaxInt32
	}
	if samples <= math.MinInt32 {
		return math.MinInt32
	}
	return TimestampDiff(samples)
}

// TimestampDiffToNs converts a signed stream timestamp delta to a duration.
func (s SampleSpec) TimestampDiffToNs(ts TimestampDiff) time.Duration {
	return time.Duration(math.Round(float64(ts) / float64(s.Rate) * float64(time.Second)))
}

// NsToSamples converts a non-negative duration to a sample count per channel,
// saturating at the Timestamp range.
func (s SampleSpec) NsToSamples(d time.Duration) Timestamp {
	if d < 0 {
		return 0
	}
	samples := math.Round(d.Seconds() * float64(s.Rate))
	if samples >= math.MaxUint32 {
		return math.MaxUint32
	}
	return Timestamp(samples)
}

// SamplesToNs converts a sample count per channel to a duration.
func (s SampleSpec) SamplesToNs(samples Timestamp) time.Duration {
	return time.Duration(math.Round(float64(samples) / float64(s.Rate) * float64(time.Second)))
}

// SamplePeriod returns the duration of one sample at this rate.
func (s SampleSpec) SamplePeriod() time.Duration {
	return time.Duration(float64(time.Second) / float64(s.Rate))
}
