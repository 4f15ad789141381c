package latency

import (
	"testing"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hassall/roc-toolkit/internal"
)

func sessionConfig() SessionConfig {
	spec := monoSpec()
	config := DefaultSessionConfig(spec, spec)
	config.TargetLatency = 100 * time.Millisecond
	return config
}

func TestSession_InvalidConfigRejected(t *testing.T) {
	config := sessionConfig()
	config.Monitor.MinLatency = 10 * time.Millisecond
	config.Monitor.MaxLatency = 20 * time.Millisecond // target 100ms outside

	_, err := NewSession(config, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	config = sessionConfig()
	config.InSpec = SampleSpec{} // invalid spec
	_, err = NewSession(config, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSession_DerivesLatencyWindowFromTarget(t *testing.T) {
	// Zero min/max derive from the target, so the default config is
	// usable as-is.
	sess, err := NewSession(sessionConfig(), internal.NewMockClock(time.Time{}))
	require.NoError(t, err)
	assert.True(t, sess.IsAlive())
}

func TestSession_ReadAndTick(t *testing.T) {
	clock := internal.NewMockClock(time.Time{})
	sess, err := NewSession(sessionConfig(), clock)
	require.NoError(t, err)

	// Fill the queue to the target depth (100ms = 4800 samples).
	payload := make([]byte, 960*2)
	for i := 0; i < 5; i++ {
		sess.Route(&Packet{
			Seqnum:          uint16(i + 1),
			StreamTimestamp: Timestamp(i * 960),
			Duration:        960,
			Payload:         payload,
		})
	}

	frame := Frame{Samples: make([]int16, 480)}
	require.True(t, sess.ReadFrame(&frame))
	require.True(t, sess.Tick())
	assert.True(t, sess.IsAlive())

	// Producing one 480-sample output frame pulls two 480-sample input
	// chunks (one of interpolation lookahead), so 3840 of the 4800
	// queued samples remain ahead of playback: 80ms.
	assert.Equal(t, 80*time.Millisecond, sess.Stats().NiqLatency)
}

func TestSession_DiesWhenLatencyLeavesWindow(t *testing.T) {
	clock := internal.NewMockClock(time.Time{})
	sess, err := NewSession(sessionConfig(), clock)
	require.NoError(t, err)

	// One second of queued audio against a 200ms max.
	payload := make([]byte, 960*2)
	for i := 0; i < 50; i++ {
		sess.Route(&Packet{
			Seqnum:          uint16(i + 1),
			StreamTimestamp: Timestamp(i * 960),
			Duration:        960,
			Payload:         payload,
		})
	}

	frame := Frame{Samples: make([]int16, 480)}
	require.True(t, sess.ReadFrame(&frame))

	assert.False(t, sess.Tick())
	assert.False(t, sess.IsAlive())

	// A dead session stays dead.
	assert.False(t, sess.Tick())
	assert.False(t, sess.ReadFrame(&frame))
}

func TestSession_RouteRTP(t *testing.T) {
	sess, err := NewSession(sessionConfig(), internal.NewMockClock(time.Time{}))
	require.NoError(t, err)

	pkt := &rtp.Packet{
		Header: rtp.Header{
			SequenceNumber: 7,
			Timestamp:      960,
			SSRC:           42,
		},
		Payload: make([]byte, 960*2),
	}
	require.NoError(t, sess.RouteRTP(pkt))

	latest := sess.Queue().Latest()
	require.NotNil(t, latest)
	assert.Equal(t, uint16(7), latest.Seqnum)
	assert.Equal(t, Timestamp(960), latest.StreamTimestamp)
	assert.Equal(t, Timestamp(960), latest.Duration)

	// Odd payload sizes cannot be a whole number of samples.
	bad := &rtp.Packet{Payload: make([]byte, 3)}
	assert.Error(t, sess.RouteRTP(bad))
}

func TestSession_SenderReportStampsCaptureTimes(t *testing.T) {
	clock := internal.NewMockClock(time.Time{})
	sess, err := NewSession(sessionConfig(), clock)
	require.NoError(t, err)

	// Sender report anchors stream timestamp 0 at a known wall time.
	anchor := time.Unix(1700000000, 0)
	sess.OnSenderReport(&rtcp.SenderReport{
		NTPTime: uint64(NTPFromTime(anchor)),
		RTPTime: 0,
	})

	payload := make([]byte, 960*2)
	sess.Route(&Packet{Seqnum: 1, StreamTimestamp: 48000, Duration: 960, Payload: payload})

	latest := sess.Queue().Latest()
	require.NotNil(t, latest)
	assert.InDelta(t,
		float64(anchor.Add(time.Second).UnixNano()),
		float64(latest.CaptureTime.UnixNano()),
		float64(time.Microsecond))
}
