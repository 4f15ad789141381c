// Package interceptor provides a Pion WebRTC interceptor that feeds
// incoming RTP and RTCP into per-sender latency-controlled receiver
// sessions.
package interceptor

import (
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/sirupsen/logrus"

	"github.com/Hassall/roc-toolkit/pkg/latency"
	"github.com/Hassall/roc-toolkit/internal"
)

// ReceiverInterceptor observes incoming RTP packets and RTCP sender reports
// and routes them into one latency.Session per remote stream. The
// application reads frames from the sessions; the interceptor only performs
// the ingestion side.
//
// Usage:
//
//	ri := NewReceiverInterceptor(latency.DefaultSessionConfig(inSpec, outSpec))
//	// Add to interceptor registry, then read frames:
//	if sess, ok := ri.Session(ssrc); ok {
//	    sess.ReadFrame(&frame)
//	}
type ReceiverInterceptor struct {
	interceptor.NoOp // Embed for interface compliance

	config latency.SessionConfig
	clock  internal.Clock
	log    *logrus.Entry

	mu       sync.Mutex
	sessions map[uint32]*latency.Session
}

// InterceptorOption is a functional option for configuring ReceiverInterceptor.
type InterceptorOption func(*ReceiverInterceptor)

// WithClock sets the clock used by the sessions. Intended for tests.
func WithClock(clock internal.Clock) InterceptorOption {
	return func(i *ReceiverInterceptor) {
		i.clock = clock
	}
}

// NewReceiverInterceptor creates a receiver interceptor that builds a
// session per remote stream from the given configuration.
func NewReceiverInterceptor(config latency.SessionConfig, opts ...InterceptorOption) *ReceiverInterceptor {
	i := &ReceiverInterceptor{
		config:   config,
		log:      logrus.WithField("component", "receiver_interceptor"),
		sessions: make(map[uint32]*latency.Session),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Session returns the session for the given SSRC, if one exists.
func (i *ReceiverInterceptor) Session(ssrc uint32) (*latency.Session, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	s, ok := i.sessions[ssrc]
	return s, ok
}

// Sessions returns a snapshot of all active sessions keyed by SSRC.
func (i *ReceiverInterceptor) Sessions() map[uint32]*latency.Session {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make(map[uint32]*latency.Session, len(i.sessions))
	for ssrc, s := range i.sessions {
		out[ssrc] = s
	}
	return out
}

// BindRemoteStream is called by Pion when a new remote stream is detected.
// It creates a session for the stream and wraps the reader to route packets.
func (i *ReceiverInterceptor) BindRemoteStream(info *interceptor.StreamInfo, reader interceptor.RTPReader) interceptor.RTPReader {
	sess, err := latency.NewSession(i.config, i.clock)
	if err != nil {
		i.log.WithError(err).WithField("ssrc", info.SSRC).
			Error("refusing stream: invalid session config")
		return reader
	}

	i.mu.Lock()
	i.sessions[info.SSRC] = sess
	i.mu.Unlock()

	i.log.WithField("ssrc", info.SSRC).Info("bound remote stream")

	return interceptor.RTPReaderFunc(func(b []byte, a interceptor.Attributes) (int, interceptor.Attributes, error) {
		n, a, err := reader.Read(b, a)
		if err == nil && n > 0 {
			i.processRTP(b[:n], sess)
		}
		return n, a, err
	})
}

// UnbindRemoteStream is called by Pion when a remote stream is removed.
func (i *ReceiverInterceptor) UnbindRemoteStream(info *interceptor.StreamInfo) {
	i.mu.Lock()
	delete(i.sessions, info.SSRC)
	i.mu.Unlock()
}

// BindRTCPReader wraps the RTCP reader to observe sender reports, which
// carry the NTP-to-RTP timestamp mapping used for capture times.
func (i *ReceiverInterceptor) BindRTCPReader(reader interceptor.RTCPReader) interceptor.RTCPReader {
	return interceptor.RTCPReaderFunc(func(b []byte, a interceptor.Attributes) (int, interceptor.Attributes, error) {
		n, a, err := reader.Read(b, a)
		if err == nil && n > 0 {
			i.processRTCP(b[:n])
		}
		return n, a, err
	})
}

// processRTP parses an RTP packet and routes it into the stream's session.
func (i *ReceiverInterceptor) processRTP(raw []byte, sess *latency.Session) {
	var pkt rtp.Packet
	if err := pkt.Unmarshal(raw); err != nil {
		return // Invalid RTP, skip
	}
	if err := sess.RouteRTP(&pkt); err != nil {
		i.log.WithError(err).Debug("dropping unroutable packet")
	}
}

// processRTCP parses a compound RTCP packet and feeds sender reports into
// the matching sessions.
func (i *ReceiverInterceptor) processRTCP(raw []byte) {
	pkts, err := rtcp.Unmarshal(raw)
	if err != nil {
		return
	}
	for _, p := range pkts {
		sr, ok := p.(*rtcp.SenderReport)
		if !ok {
			continue
		}
		if sess, found := i.Session(sr.SSRC); found {
			sess.OnSenderReport(sr)
		}
	}
}
