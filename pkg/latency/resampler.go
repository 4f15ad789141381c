package latency

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Scaling factors accepted by LinearResampler. Factors outside this range
// are refused by SetScaling.
const (
	MinResamplerScaling = 0.5
	MaxResamplerScaling = 2.0
)

// LinearResampler converts a stream of PCM frames between sample rates
// using linear interpolation, good enough for voice streams without
// external DSP dependencies. Its conversion ratio can be trimmed at runtime
// by a scaling factor close to 1.0, which is how the latency monitor
// compensates clock drift between sender and receiver.
type LinearResampler struct {
	upstream FrameReader
	inSpec   SampleSpec
	outSpec  SampleSpec

	scaling float64
	step    float64 // input groups consumed per output group

	pullLen int // input samples per channel fetched per upstream read

	buf        []int16   // pending interleaved input samples
	bufCapture time.Time // capture time of buf[0], zero if unknown
	pos        float64   // fractional group position into buf
}

// NewLinearResampler creates a resampler reading from upstream. Input and
// output specs must carry the same channel count and positive rates.
func NewLinearResampler(upstream FrameReader, inSpec, outSpec SampleSpec) *LinearResampler {
	if !inSpec.IsValid() || !outSpec.IsValid() {
		panic("resampler: invalid sample spec")
	}
	if inSpec.Channels != outSpec.Channels {
		panic("resampler: input and output channel counts differ")
	}

	r := &LinearResampler{
		upstream: upstream,
		inSpec:   inSpec,
		outSpec:  outSpec,
		scaling:  1.0,
		pullLen:  inSpec.Rate / 100, // 10ms of input per pull
	}
	if r.pullLen == 0 {
		r.pullLen = 1
	}
	r.updateStep()

	logrus.WithFields(logrus.Fields{
		"in_rate":  inSpec.Rate,
		"out_rate": outSpec.Rate,
		"channels": inSpec.Channels,
	}).Debug("resampler: initialized")

	return r
}

// SetScaling applies a new scaling factor to the conversion ratio. Returns
// false iff the factor is outside [MinResamplerScaling, MaxResamplerScaling].
func (r *LinearResampler) SetScaling(factor float64) bool {
	if factor < MinResamplerScaling || factor > MaxResamplerScaling {
		return false
	}
	r.scaling = factor
	r.updateStep()
	return true
}

// Scaling returns the current scaling factor.
func (r *LinearResampler) Scaling() float64 {
	return r.scaling
}

func (r *LinearResampler) updateStep() {
	r.step = float64(r.inSpec.Rate) / float64(r.outSpec.Rate) * r.scaling
}

// Read fills one output frame, pulling input frames from upstream as needed.
// Returns false if the upstream reader fails.
func (r *LinearResampler) Read(frame *Frame) bool {
	channels := r.inSpec.Channels
	outGroups := len(frame.Samples) / channels

	if r.bufCapture.IsZero() {
		frame.CaptureTime = time.Time{}
	} else {
		frame.CaptureTime = r.bufCapture.Add(r.inSpec.SamplesToNs(Timestamp(r.pos)))
	}

	for g := 0; g < outGroups; g++ {
		// Interpolation needs the group at floor(pos) and the one after it.
		for int(r.pos)+2 > len(r.buf)/channels {
			if !r.pull() {
				return false
			}
		}

		i := int(r.pos)
		frac := r.pos - float64(i)
		for c := 0; c < channels; c++ {
			s0 := float64(r.buf[i*channels+c])
			s1 := float64(r.buf[(i+1)*channels+c])
			frame.Samples[g*channels+c] = int16(s0 + (s1-s0)*frac)
		}

		r.pos += r.step
	}

	// Drop consumed input groups, keeping the one interpolation still needs.
	if k := int(r.pos); k > 0 {
		kept := len(r.buf)/channels - k
		if kept < 0 {
			kept = 0
			k = len(r.buf) / channels
		}
		copy(r.buf, r.buf[k*channels:])
		r.buf = r.buf[:kept*channels]
		r.pos -= float64(k)
		if !r.bufCapture.IsZero() {
			r.bufCapture = r.bufCapture.Add(r.inSpec.SamplesToNs(Timestamp(k)))
		}
	}

	return true
}

// pull fetches one input frame from upstream into the pending buffer.
func (r *LinearResampler) pull() bool {
	in := Frame{Samples: make([]int16, r.pullLen*r.inSpec.Channels)}
	if !r.upstream.Read(&in) {
		return false
	}
	if r.bufCapture.IsZero() && !in.CaptureTime.IsZero() {
		r.bufCapture = in.CaptureTime.Add(-r.inSpec.SamplesToNs(Timestamp(len(r.buf) / r.inSpec.Channels)))
	}
	r.buf = append(r.buf, in.Samples...)
	return true
}
