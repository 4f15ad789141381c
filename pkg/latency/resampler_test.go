package latency

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rampReader produces an endless linear ramp so interpolation results are
// easy to predict.
type rampReader struct {
	next  int16
	reads int
}

func (r *rampReader) Read(f *Frame) bool {
	r.reads++
	for i := range f.Samples {
		f.Samples[i] = r.next
		r.next++
	}
	return true
}

// countingReader counts samples handed out, to measure consumption ratio.
type countingReader struct {
	given int
}

func (r *countingReader) Read(f *Frame) bool {
	r.given += len(f.Samples)
	return true
}

func TestLinearResampler_ScalingBounds(t *testing.T) {
	spec := monoSpec()
	r := NewLinearResampler(&rampReader{}, spec, spec)

	assert.True(t, r.SetScaling(1.0))
	assert.True(t, r.SetScaling(MinResamplerScaling))
	assert.True(t, r.SetScaling(MaxResamplerScaling))
	assert.True(t, r.SetScaling(1.0005))

	assert.False(t, r.SetScaling(MinResamplerScaling/2))
	assert.False(t, r.SetScaling(MaxResamplerScaling*2))
	assert.False(t, r.SetScaling(0))
	assert.False(t, r.SetScaling(-1))
}

func TestLinearResampler_UnitRatioPreservesRamp(t *testing.T) {
	// Equal rates and unit scaling: the output is the input ramp.
	spec := monoSpec()
	r := NewLinearResampler(&rampReader{}, spec, spec)

	frame := Frame{Samples: make([]int16, 16)}
	require.True(t, r.Read(&frame))

	for i, s := range frame.Samples {
		assert.Equal(t, int16(i), s, "sample %d", i)
	}
}

func TestLinearResampler_InterpolatesBetweenSamples(t *testing.T) {
	// Downconversion by 2: every output sample lands between or on input
	// samples of the ramp, so values follow 2*i exactly.
	in := SampleSpec{Rate: 48000, Channels: 1, Format: FormatS16}
	out := SampleSpec{Rate: 24000, Channels: 1, Format: FormatS16}
	r := NewLinearResampler(&rampReader{}, in, out)

	frame := Frame{Samples: make([]int16, 8)}
	require.True(t, r.Read(&frame))

	for i, s := range frame.Samples {
		assert.Equal(t, int16(2*i), s, "sample %d", i)
	}
}

func TestLinearResampler_ScalingChangesConsumptionRate(t *testing.T) {
	// With scaling above 1.0 the resampler consumes input faster than
	// unit rate: that is how the monitor drains the queue.
	spec := monoSpec()

	consumed := func(scaling float64) int {
		src := &countingReader{}
		r := NewLinearResampler(src, spec, spec)
		require.True(t, r.SetScaling(scaling))

		frame := Frame{Samples: make([]int16, 480)}
		for i := 0; i < 1000; i++ {
			require.True(t, r.Read(&frame))
		}
		return src.given
	}

	faster := consumed(1.005)
	unit := consumed(1.0)
	slower := consumed(0.995)

	assert.Greater(t, faster, unit)
	assert.Greater(t, unit, slower)
}

func TestLinearResampler_MismatchedChannelsPanic(t *testing.T) {
	mono := SampleSpec{Rate: 48000, Channels: 1, Format: FormatS16}
	stereo := SampleSpec{Rate: 48000, Channels: 2, Format: FormatS16}

	assert.Panics(t, func() {
		NewLinearResampler(&rampReader{}, mono, stereo)
	})
}
