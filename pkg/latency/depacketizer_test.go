package latency

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func payloadS16(samples ...int16) []byte {
	out := make([]byte, 0, len(samples)*2)
	for _, s := range samples {
		out = append(out, byte(uint16(s)>>8), byte(uint16(s)))
	}
	return out
}

func monoSpec() SampleSpec {
	return SampleSpec{Rate: 48000, Channels: 1, Format: FormatS16}
}

func dataPacket(seq uint16, ts Timestamp, samples ...int16) *Packet {
	return &Packet{
		Seqnum:          seq,
		StreamTimestamp: ts,
		Duration:        Timestamp(len(samples)),
		Payload:         payloadS16(samples...),
	}
}

func TestStreamDepacketizer_NotStartedBeforeFirstPacket(t *testing.T) {
	q := NewSortedQueue()
	d := NewStreamDepacketizer(q, monoSpec())

	assert.False(t, d.IsStarted())

	// Reading from an empty stream produces silence and does not start
	// the timeline.
	frame := Frame{Samples: make([]int16, 4)}
	require.True(t, d.Read(&frame))
	assert.Equal(t, []int16{0, 0, 0, 0}, frame.Samples)
	assert.False(t, d.IsStarted())
}

func TestStreamDepacketizer_DecodesContiguousPackets(t *testing.T) {
	q := NewSortedQueue()
	q.Write(dataPacket(1, 100, 1, 2, 3, 4))
	q.Write(dataPacket(2, 104, 5, 6, 7, 8))

	d := NewStreamDepacketizer(q, monoSpec())

	frame := Frame{Samples: make([]int16, 8)}
	require.True(t, d.Read(&frame))

	assert.Equal(t, []int16{1, 2, 3, 4, 5, 6, 7, 8}, frame.Samples)
	assert.True(t, d.IsStarted())
	assert.Equal(t, Timestamp(108), d.NextTimestamp())
}

func TestStreamDepacketizer_FramesSmallerThanPackets(t *testing.T) {
	q := NewSortedQueue()
	q.Write(dataPacket(1, 0, 1, 2, 3, 4, 5, 6))

	d := NewStreamDepacketizer(q, monoSpec())

	frame := Frame{Samples: make([]int16, 2)}
	require.True(t, d.Read(&frame))
	assert.Equal(t, []int16{1, 2}, frame.Samples)
	require.True(t, d.Read(&frame))
	assert.Equal(t, []int16{3, 4}, frame.Samples)
	assert.Equal(t, Timestamp(4), d.NextTimestamp())
}

func TestStreamDepacketizer_ZeroFillsGaps(t *testing.T) {
	// A lost packet leaves a hole in the timeline that must come out as
	// silence, keeping later samples aligned.
	q := NewSortedQueue()
	q.Write(dataPacket(1, 0, 1, 2))
	q.Write(dataPacket(3, 4, 5, 6)) // seq 2 (ts 2..3) lost

	d := NewStreamDepacketizer(q, monoSpec())

	frame := Frame{Samples: make([]int16, 6)}
	require.True(t, d.Read(&frame))

	assert.Equal(t, []int16{1, 2, 0, 0, 5, 6}, frame.Samples)
	assert.Equal(t, uint64(2), d.PaddedSamples())
}

func TestStreamDepacketizer_ZeroFillsUnderrun(t *testing.T) {
	q := NewSortedQueue()
	q.Write(dataPacket(1, 0, 1, 2))

	d := NewStreamDepacketizer(q, monoSpec())

	frame := Frame{Samples: make([]int16, 4)}
	require.True(t, d.Read(&frame))

	assert.Equal(t, []int16{1, 2, 0, 0}, frame.Samples)
	// The timeline advances through the underrun.
	assert.Equal(t, Timestamp(4), d.NextTimestamp())
}

func TestStreamDepacketizer_DropsLatePackets(t *testing.T) {
	q := NewSortedQueue()
	q.Write(dataPacket(2, 4, 1, 2))

	d := NewStreamDepacketizer(q, monoSpec())

	frame := Frame{Samples: make([]int16, 2)}
	require.True(t, d.Read(&frame))
	require.True(t, d.Read(&frame)) // position now 8

	// A packet entirely behind the playback position is dropped.
	q.Write(dataPacket(1, 0, 9, 9))
	require.True(t, d.Read(&frame))

	assert.Equal(t, uint64(1), d.DroppedPackets())
}

func TestStreamDepacketizer_PropagatesCaptureTime(t *testing.T) {
	capture := time.Unix(1000, 0)

	q := NewSortedQueue()
	p := dataPacket(1, 0, 1, 2, 3, 4)
	p.CaptureTime = capture
	q.Write(p)

	d := NewStreamDepacketizer(q, monoSpec())

	// First frame starts exactly at the packet start.
	frame := Frame{Samples: make([]int16, 2)}
	require.True(t, d.Read(&frame))
	assert.Equal(t, capture, frame.CaptureTime)

	// Second frame is 2 samples later.
	require.True(t, d.Read(&frame))
	want := capture.Add(monoSpec().SamplesToNs(2))
	assert.Equal(t, want, frame.CaptureTime)
}

func TestStreamDepacketizer_StereoInterleaving(t *testing.T) {
	spec := SampleSpec{Rate: 48000, Channels: 2, Format: FormatS16}

	q := NewSortedQueue()
	p := &Packet{
		Seqnum:          1,
		StreamTimestamp: 0,
		Duration:        2, // 2 sample groups
		Payload:         payloadS16(1, -1, 2, -2),
	}
	q.Write(p)

	d := NewStreamDepacketizer(q, spec)

	frame := Frame{Samples: make([]int16, 4)}
	require.True(t, d.Read(&frame))
	assert.Equal(t, []int16{1, -1, 2, -2}, frame.Samples)
	assert.Equal(t, Timestamp(2), d.NextTimestamp())
}
