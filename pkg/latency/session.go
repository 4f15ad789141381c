package latency

import (
	"errors"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/sirupsen/logrus"

	"github.com/Hassall/roc-toolkit/internal"
)

// SessionConfig configures a per-sender receiver session.
type SessionConfig struct {
	// TargetLatency is the latency the session tries to maintain.
	TargetLatency time.Duration

	// Monitor configures the latency monitor. Zero MinLatency and
	// MaxLatency are derived from the target as target/2 and target*2.
	Monitor LatencyMonitorConfig

	// InSpec is the sender's sample spec, OutSpec the sink's.
	InSpec  SampleSpec
	OutSpec SampleSpec
}

// DefaultSessionConfig returns a session configuration with a 200ms target
// latency and the default monitor settings.
func DefaultSessionConfig(inSpec, outSpec SampleSpec) SessionConfig {
	return SessionConfig{
		TargetLatency: 200 * time.Millisecond,
		Monitor:       DefaultLatencyMonitorConfig(),
		InSpec:        inSpec,
		OutSpec:       outSpec,
	}
}

// ErrInvalidConfig is returned when a session cannot be created from the
// given configuration.
var ErrInvalidConfig = errors.New("session: invalid configuration")

// Session is the per-sender receiver pipeline: sorted packet queue, then
// depacketizer, then optional resampler, with the latency monitor wrapped
// around the read side.
//
// Packets are routed in from the network ingestion actor; frames are read
// and ticks are driven from the session actor. When the monitor reports a
// failure the session latches Dead and the owner is expected to destroy it
// and, at its discretion, create a fresh one.
type Session struct {
	config SessionConfig
	log    *logrus.Entry

	queue        *SortedQueue
	depacketizer *StreamDepacketizer
	resampler    *LinearResampler
	monitor      *LatencyMonitor
	mapping      *TimestampMapping

	readPos Timestamp
	dead    bool
}

// NewSession creates a session. If clock is nil, the system monotonic clock
// is used. Returns ErrInvalidConfig when the monitor rejects the
// configuration.
func NewSession(config SessionConfig, clock internal.Clock) (*Session, error) {
	if !config.InSpec.IsValid() || !config.OutSpec.IsValid() {
		return nil, ErrInvalidConfig
	}

	if config.Monitor.MinLatency == 0 {
		config.Monitor.MinLatency = config.TargetLatency / 2
	}
	if config.Monitor.MaxLatency == 0 {
		config.Monitor.MaxLatency = config.TargetLatency * 2
	}

	queue := NewSortedQueue()
	depacketizer := NewStreamDepacketizer(queue, config.InSpec)

	var frameSource FrameReader = depacketizer
	var resampler *LinearResampler
	if config.Monitor.FEEnable || config.InSpec.Rate != config.OutSpec.Rate {
		resampler = NewLinearResampler(depacketizer, config.InSpec, config.OutSpec)
		frameSource = resampler
	}

	// The interface value must stay nil when no resampler exists, so the
	// monitor can verify the composition contract.
	var monitorResampler Resampler
	if resampler != nil {
		monitorResampler = resampler
	}

	monitor := NewLatencyMonitor(
		frameSource, queue, depacketizer, monitorResampler,
		config.Monitor, config.TargetLatency,
		config.InSpec, config.OutSpec, clock,
	)
	if !monitor.IsValid() {
		return nil, ErrInvalidConfig
	}

	s := &Session{
		config:       config,
		log:          logrus.WithField("component", "session"),
		queue:        queue,
		depacketizer: depacketizer,
		resampler:    resampler,
		monitor:      monitor,
		mapping:      NewTimestampMapping(config.InSpec),
	}

	s.log.WithFields(logrus.Fields{
		"target_latency": config.TargetLatency,
		"in_rate":        config.InSpec.Rate,
		"out_rate":       config.OutSpec.Rate,
		"fe_enable":      config.Monitor.FEEnable,
	}).Info("session created")

	return s, nil
}

// Route enqueues a packet from the network ingestion actor. If a sender
// report mapping is known, the packet is stamped with its capture time.
func (s *Session) Route(p *Packet) {
	if p.CaptureTime.IsZero() && s.mapping.HasMapping() {
		p.CaptureTime = s.mapping.CaptureTime(p.StreamTimestamp)
	}
	s.queue.Write(p)
}

// RouteRTP parses and enqueues an RTP packet.
func (s *Session) RouteRTP(rp *rtp.Packet) error {
	p, err := PacketFromRTP(rp, s.config.InSpec)
	if err != nil {
		return err
	}
	s.Route(p)
	return nil
}

// OnSenderReport feeds an RTCP sender report into the capture-time mapping.
func (s *Session) OnSenderReport(sr *rtcp.SenderReport) {
	s.mapping.Set(NTPTime(sr.NTPTime).Time(), Timestamp(sr.RTPTime))
}

// ReadFrame reads one frame through the latency monitor and advances the
// session's stream position. Returns false once the session is dead.
func (s *Session) ReadFrame(frame *Frame) bool {
	if s.dead {
		return false
	}

	if !s.monitor.Read(frame) {
		s.die("frame reader failed")
		return false
	}

	// Stream position is counted at the input rate; frames are sized at
	// the output rate.
	outSamples := Timestamp(len(frame.Samples) / s.config.OutSpec.Channels)
	s.readPos = s.readPos.AddDiff(
		s.config.InSpec.NsToTimestampDiff(s.config.OutSpec.SamplesToNs(outSamples)))

	return true
}

// Tick runs one latency monitor update at the current stream position.
// Returns false once the session is dead; the owner must then destroy it.
func (s *Session) Tick() bool {
	if s.dead {
		return false
	}

	if !s.monitor.Update(s.readPos) {
		s.die("latency out of bounds")
		return false
	}

	return true
}

// IsAlive reports whether the session can still produce frames.
func (s *Session) IsAlive() bool {
	return !s.dead
}

// Stats returns the monitor's current latency estimates.
func (s *Session) Stats() LatencyMonitorStats {
	return s.monitor.Stats()
}

// Queue exposes the packet queue, e.g. for tests and diagnostics.
func (s *Session) Queue() *SortedQueue {
	return s.queue
}

// Monitor exposes the latency monitor, e.g. for tests and diagnostics.
func (s *Session) Monitor() *LatencyMonitor {
	return s.monitor
}

func (s *Session) die(reason string) {
	if s.dead {
		return
	}
	s.dead = true
	s.log.WithField("reason", reason).Info("session failed, tearing down")
}
