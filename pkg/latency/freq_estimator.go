package latency

// FreqEstimatorProfile selects the gain constants and smoothing window of
// the frequency estimator.
type FreqEstimatorProfile int

const (
	// ProfileResponsive uses a short smoothing window and high gains.
	// It settles within roughly a second at a 50ms tick interval, at the
	// cost of larger transient overshoot.
	ProfileResponsive FreqEstimatorProfile = iota

	// ProfileGradual uses a long smoothing window and low gains. It
	// settles within several seconds with minimal overshoot.
	ProfileGradual
)

// String returns a string representation of the FreqEstimatorProfile.
func (p FreqEstimatorProfile) String() string {
	switch p {
	case ProfileResponsive:
		return "responsive"
	case ProfileGradual:
		return "gradual"
	default:
		return "unknown"
	}
}

// freqEstimatorParams are the per-profile controller constants.
type freqEstimatorParams struct {
	windowLen  int     // moving average window, in ticks
	pGain      float64 // proportional gain on normalized error
	iGain      float64 // integral gain on accumulated normalized error
	accumLimit float64 // anti-windup bound on the accumulated error
}

func profileParams(profile FreqEstimatorProfile) freqEstimatorParams {
	switch profile {
	case ProfileResponsive:
		return freqEstimatorParams{
			windowLen:  8,
			pGain:      0.02,
			iGain:      0.002,
			accumLimit: 10,
		}
	default: // ProfileGradual
		return freqEstimatorParams{
			windowLen:  40,
			pGain:      0.005,
			iGain:      0.0005,
			accumLimit: 20,
		}
	}
}

// FreqEstimator is a discrete-time PI controller mapping a series of latency
// samples to a dimensionless scaling coefficient near 1.0.
//
// Each tick pushes the current latency into a fixed moving-average window,
// computes the normalized error of the smoothed latency against the target,
// and advances an accumulated error term. The output is
//
//	coeff = 1 + P*error + I*accum
//
// so that latency above target produces a coefficient above 1.0 (consumption
// speeds up and the queue drains) and latency below target produces a
// coefficient below 1.0. Latency held at the target from the first tick on
// keeps the output at exactly 1.0. The accumulated error does not decay:
// once it is non-zero, latency held at the target keeps the output at
// 1 + I*accum rather than returning it to 1.0.
//
// The estimator is driven purely by ticks; it never consults a wall clock.
type FreqEstimator struct {
	params freqEstimatorParams
	target float64

	window    []float64
	windowPos int
	windowSum float64
	numTicks  int

	accum float64
	coeff float64
}

// NewFreqEstimator creates a frequency estimator for the given profile and
// target latency in stream timestamps. A zero target is a contract violation
// and panics.
func NewFreqEstimator(profile FreqEstimatorProfile, target Timestamp) *FreqEstimator {
	if target == 0 {
		panic("freq estimator: target latency is zero")
	}

	params := profileParams(profile)

	return &FreqEstimator{
		params: params,
		target: float64(target),
		window: make([]float64, params.windowLen),
		coeff:  1.0,
	}
}

// Update advances the controller by one tick with the given latency sample.
func (f *FreqEstimator) Update(latency Timestamp) {
	// Moving average over the last windowLen ticks. Until the window is
	// full, the average covers only the ticks seen so far.
	f.windowSum -= f.window[f.windowPos]
	f.window[f.windowPos] = float64(latency)
	f.windowSum += f.window[f.windowPos]
	f.windowPos = (f.windowPos + 1) % f.params.windowLen

	if f.numTicks < f.params.windowLen {
		f.numTicks++
	}
	avg := f.windowSum / float64(f.numTicks)

	err := (avg - f.target) / f.target

	f.accum += err
	if f.accum > f.params.accumLimit {
		f.accum = f.params.accumLimit
	} else if f.accum < -f.params.accumLimit {
		f.accum = -f.params.accumLimit
	}

	f.coeff = 1.0 + f.params.pGain*err + f.params.iGain*f.accum
}

// FreqCoeff returns the current scaling coefficient. Before the first
// Update it is exactly 1.0.
func (f *FreqEstimator) FreqCoeff() float64 {
	return f.coeff
}
