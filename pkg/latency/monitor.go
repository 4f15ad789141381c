package latency

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Hassall/roc-toolkit/internal"
)

// logInterval is the minimum wall-clock spacing between latency report
// lines emitted by the monitor.
const logInterval = 5 * time.Second

// LatencyMonitorConfig configures the per-session latency monitor.
type LatencyMonitorConfig struct {
	// FEEnable enables the frequency estimator and resampler scaling.
	// When enabled, a resampler must be attached to the monitor.
	FEEnable bool

	// FEProfile selects the estimator gains and smoothing window.
	FEProfile FreqEstimatorProfile

	// FEUpdateInterval is the stream-position period between estimator
	// ticks. Must be positive when FEEnable is set.
	FEUpdateInterval time.Duration

	// MinLatency and MaxLatency bound the acceptable network-in-queue
	// latency. A sample outside the window fails the session.
	MinLatency time.Duration
	MaxLatency time.Duration

	// MaxScalingDelta bounds |scaling - 1.0| applied to the resampler.
	MaxScalingDelta float64
}

// DefaultLatencyMonitorConfig returns the default monitor configuration.
// MinLatency and MaxLatency are zero and are expected to be derived from
// the target latency by the caller (the session derives target/2 and
// target*2).
func DefaultLatencyMonitorConfig() LatencyMonitorConfig {
	return LatencyMonitorConfig{
		FEEnable:         true,
		FEProfile:        ProfileGradual,
		FEUpdateInterval: 50 * time.Millisecond,
		MaxScalingDelta:  0.005,
	}
}

// LatencyMonitorStats are the current latency estimates of a monitor, in
// nanosecond units at the API boundary.
type LatencyMonitorStats struct {
	// NiqLatency is the network-in-queue latency: the distance between
	// the next sample to be played and the end of the newest queued
	// packet.
	NiqLatency time.Duration

	// E2eLatency is the end-to-end latency: the wall-clock delta between
	// sender capture and reader consumption.
	E2eLatency time.Duration
}

// LatencyMonitor watches the two latency signals of one receiver session
// and keeps playback rate locked to the sender's clock.
//
// Downstream pulls frames through Read; the enclosing session drives Update
// with the current stream position. Each Update samples the network-in-queue
// latency from the packet queue and depacketizer, verifies it against the
// configured window, and, when the frequency estimator is enabled, advances
// the estimator and reprograms the resampler scaling.
//
// A monitor is either valid or invalid after construction; using an invalid
// monitor panics. Update returning false means latency left the window or
// the resampler refused a factor: the session must be torn down. The monitor
// never recovers by itself.
//
// All methods must be called from the single session actor; the monitor
// holds no locks of its own.
type LatencyMonitor struct {
	frameReader  FrameReader
	queue        PacketQueue
	depacketizer DepacketizerInfo
	resampler    Resampler
	fe           *FreqEstimator
	clock        internal.Clock
	limiter      *RateLimiter
	log          *logrus.Entry

	updateInterval Timestamp
	updatePos      Timestamp
	hasUpdatePos   bool

	freqCoeff float64

	niqLatency TimestampDiff
	e2eLatency TimestampDiff
	hasNiq     bool
	hasE2e     bool

	targetLatency TimestampDiff
	minLatency    TimestampDiff
	maxLatency    TimestampDiff

	maxScalingDelta float64

	inSpec  SampleSpec
	outSpec SampleSpec

	valid bool
}

// NewLatencyMonitor creates a latency monitor.
//
// frameReader is the downstream frame source (typically the resampler).
// queue and depacketizer are the upstream observables. resampler may be nil
// only when the frequency estimator is disabled; enabling the estimator
// without a resampler is a contract violation and panics. clock may be nil,
// in which case the system monotonic clock is used.
//
// A rejected configuration produces an invalid monitor, reported by IsValid;
// it is not fatal.
func NewLatencyMonitor(
	frameReader FrameReader,
	queue PacketQueue,
	depacketizer DepacketizerInfo,
	resampler Resampler,
	config LatencyMonitorConfig,
	targetLatency time.Duration,
	inSpec, outSpec SampleSpec,
	clock internal.Clock,
) *LatencyMonitor {
	if clock == nil {
		clock = internal.MonotonicClock{}
	}

	m := &LatencyMonitor{
		frameReader:     frameReader,
		queue:           queue,
		depacketizer:    depacketizer,
		resampler:       resampler,
		clock:           clock,
		limiter:         NewRateLimiter(logInterval, clock),
		log:             logrus.WithField("component", "latency_monitor"),
		updateInterval:  Timestamp(inSpec.NsToTimestampDiff(config.FEUpdateInterval)),
		targetLatency:   inSpec.NsToTimestampDiff(targetLatency),
		minLatency:      inSpec.NsToTimestampDiff(config.MinLatency),
		maxLatency:      inSpec.NsToTimestampDiff(config.MaxLatency),
		maxScalingDelta: config.MaxScalingDelta,
		inSpec:          inSpec,
		outSpec:         outSpec,
	}

	m.log.WithFields(logrus.Fields{
		"target_latency": targetLatency,
		"in_rate":        inSpec.Rate,
		"out_rate":       outSpec.Rate,
		"fe_enable":      config.FEEnable,
		"fe_profile":     config.FEProfile.String(),
		"fe_interval":    config.FEUpdateInterval,
	}).Debug("initializing")

	if inSpec.Rate <= 0 || outSpec.Rate <= 0 {
		m.log.WithFields(logrus.Fields{
			"in_rate":  inSpec.Rate,
			"out_rate": outSpec.Rate,
		}).Error("invalid config: sample rates must be positive")
		return m
	}

	if targetLatency < config.MinLatency || targetLatency > config.MaxLatency ||
		targetLatency <= 0 {
		m.log.WithFields(logrus.Fields{
			"target_latency": targetLatency,
			"min_latency":    config.MinLatency,
			"max_latency":    config.MaxLatency,
		}).Error("invalid config: target latency out of bounds")
		return m
	}

	if config.FEEnable {
		if config.FEUpdateInterval <= 0 {
			m.log.WithField("fe_update_interval", config.FEUpdateInterval).
				Error("invalid config: non-positive update interval")
			return m
		}

		if resampler == nil {
			panic("latency monitor: freq estimator is enabled, but resampler is nil")
		}

		if m.targetLatency <= 0 {
			// Target rounds to zero samples at this rate.
			m.log.WithField("target_latency", targetLatency).
				Error("invalid config: target latency too small for sample rate")
			return m
		}

		if m.updateInterval == 0 {
			// Interval rounds to zero samples; ticking would never
			// advance the update position.
			m.log.WithField("fe_update_interval", config.FEUpdateInterval).
				Error("invalid config: update interval too small for sample rate")
			return m
		}

		m.fe = NewFreqEstimator(config.FEProfile, Timestamp(m.targetLatency))

		if !m.initScaling() {
			return m
		}
	}

	m.freqCoeff = 1.0
	m.valid = true
	return m
}

// IsValid reports whether construction succeeded. All other operations
// panic on an invalid monitor.
func (m *LatencyMonitor) IsValid() bool {
	return m.valid
}

// Stats returns the current latency estimates in nanosecond units.
func (m *LatencyMonitor) Stats() LatencyMonitorStats {
	if !m.valid {
		panic("latency monitor: Stats on invalid monitor")
	}

	return LatencyMonitorStats{
		NiqLatency: m.inSpec.TimestampDiffToNs(m.niqLatency),
		E2eLatency: m.inSpec.TimestampDiffToNs(m.e2eLatency),
	}
}

// FreqCoeff returns the scaling factor most recently programmed into the
// resampler.
func (m *LatencyMonitor) FreqCoeff() float64 {
	if !m.valid {
		panic("latency monitor: FreqCoeff on invalid monitor")
	}
	return m.freqCoeff
}

// Read pulls one frame from the downstream frame source. If the frame
// carries a capture timestamp, the end-to-end latency sample is refreshed.
// Returns the downstream reader's result; no control action is taken.
func (m *LatencyMonitor) Read(frame *Frame) bool {
	if !m.valid {
		panic("latency monitor: Read on invalid monitor")
	}

	if !m.frameReader.Read(frame) {
		return false
	}

	m.updateE2eLatency(frame.CaptureTime)

	return true
}

// Update is the periodic tick driven by the enclosing session with the
// current stream position. It refreshes the network-in-queue latency,
// checks it against the configured window, and advances the frequency
// estimator. A false return means the session must be torn down.
func (m *LatencyMonitor) Update(streamPosition Timestamp) bool {
	if !m.valid {
		panic("latency monitor: Update on invalid monitor")
	}

	m.updateNiqLatency()

	if m.hasNiq {
		if !m.checkLatency(m.niqLatency) {
			return false
		}
		if m.fe != nil {
			if !m.updateScaling(streamPosition, m.niqLatency) {
				return false
			}
		}
		m.reportLatency()
	}

	return true
}

// updateNiqLatency samples the network-in-queue latency from the upstream
// observables. The sample is taken only when the depacketizer has started
// and the queue is non-empty; otherwise the previous sample is retained.
func (m *LatencyMonitor) updateNiqLatency() {
	if !m.depacketizer.IsStarted() {
		return
	}

	niqHead := m.depacketizer.NextTimestamp()

	latest := m.queue.Latest()
	if latest == nil {
		return
	}

	m.niqLatency = TimestampDiffOf(latest.End(), niqHead)
	m.hasNiq = true
}

func (m *LatencyMonitor) updateE2eLatency(captureTime time.Time) {
	if captureTime.IsZero() {
		return
	}

	m.e2eLatency = m.inSpec.NsToTimestampDiff(m.clock.Now().Sub(captureTime))
	m.hasE2e = true
}

func (m *LatencyMonitor) checkLatency(latency TimestampDiff) bool {
	if latency < m.minLatency {
		m.log.WithFields(logrus.Fields{
			"latency": m.inSpec.TimestampDiffToNs(latency),
			"min":     m.inSpec.TimestampDiffToNs(m.minLatency),
		}).Debug("latency out of bounds")
		return false
	}

	if latency > m.maxLatency {
		m.log.WithFields(logrus.Fields{
			"latency": m.inSpec.TimestampDiffToNs(latency),
			"max":     m.inSpec.TimestampDiffToNs(m.maxLatency),
		}).Debug("latency out of bounds")
		return false
	}

	return true
}

// initScaling programs the initial unit scaling into the resampler.
func (m *LatencyMonitor) initScaling() bool {
	if !m.resampler.SetScaling(1.0) {
		m.log.WithFields(logrus.Fields{
			"in_rate":  m.inSpec.Rate,
			"out_rate": m.outSpec.Rate,
		}).Error("resampler refused initial scaling")
		return false
	}

	return true
}

// updateScaling advances the estimator by one step per update interval
// elapsed since the last call and reprograms the resampler.
//
// Negative latency cannot be fed to the estimator: the queue cannot be
// behind playback for its purpose, so transient negative samples clamp to
// zero. A long gap between calls produces multiple steps with the same
// sample (zero-order hold).
func (m *LatencyMonitor) updateScaling(streamPosition Timestamp, latency TimestampDiff) bool {
	if latency < 0 {
		latency = 0
	}

	if !m.hasUpdatePos {
		m.hasUpdatePos = true
		m.updatePos = streamPosition
	}

	for streamPosition >= m.updatePos {
		m.fe.Update(Timestamp(latency))
		m.updatePos += m.updateInterval
	}

	m.freqCoeff = m.fe.FreqCoeff()
	if m.freqCoeff > 1.0+m.maxScalingDelta {
		m.freqCoeff = 1.0 + m.maxScalingDelta
	}
	if m.freqCoeff < 1.0-m.maxScalingDelta {
		m.freqCoeff = 1.0 - m.maxScalingDelta
	}

	if !m.resampler.SetScaling(m.freqCoeff) {
		m.log.WithFields(logrus.Fields{
			"fe":      m.fe.FreqCoeff(),
			"trim_fe": m.freqCoeff,
		}).Debug("scaling factor out of bounds")
		return false
	}

	return true
}

func (m *LatencyMonitor) reportLatency() {
	if !m.limiter.Allow() {
		return
	}

	var rawCoeff float64
	if m.fe != nil {
		rawCoeff = m.fe.FreqCoeff()
	}

	m.log.WithFields(logrus.Fields{
		"e2e_latency":    m.inSpec.TimestampDiffToNs(m.e2eLatency),
		"niq_latency":    m.inSpec.TimestampDiffToNs(m.niqLatency),
		"target_latency": m.inSpec.TimestampDiffToNs(m.targetLatency),
		"fe":             rawCoeff,
		"trim_fe":        m.freqCoeff,
	}).Debug("latency report")
}
