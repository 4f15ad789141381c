package latency

import (
	"time"

	"github.com/sirupsen/logrus"
)

// StreamDepacketizer converts the packet stream of one sender into a
// continuous stream of PCM frames. Gaps left by lost or late packets are
// filled with silence so that the output timeline never stalls.
//
// It implements FrameReader for the downstream pipeline and
// DepacketizerInfo for the latency monitor.
type StreamDepacketizer struct {
	spec  SampleSpec
	queue *SortedQueue

	started bool
	nextTs  Timestamp

	// current packet being consumed
	pkt      *Packet
	samples  []int16 // decoded interleaved samples of pkt
	pktStart Timestamp
	pktRead  Timestamp // samples per channel consumed from pkt

	// counters
	paddedSamples  uint64
	droppedPackets uint64
}

// NewStreamDepacketizer creates a depacketizer reading from the given queue.
func NewStreamDepacketizer(queue *SortedQueue, spec SampleSpec) *StreamDepacketizer {
	return &StreamDepacketizer{
		spec:  spec,
		queue: queue,
	}
}

// IsStarted reports whether at least one packet has been consumed.
func (d *StreamDepacketizer) IsStarted() bool {
	return d.started
}

// NextTimestamp returns the stream timestamp the next decoded sample will
// carry. Meaningful only after IsStarted returns true.
func (d *StreamDepacketizer) NextTimestamp() Timestamp {
	return d.nextTs
}

// PaddedSamples returns the number of samples per channel zero-filled so
// far because of missing packets.
func (d *StreamDepacketizer) PaddedSamples() uint64 {
	return d.paddedSamples
}

// DroppedPackets returns the number of packets dropped because they arrived
// entirely behind the playback position.
func (d *StreamDepacketizer) DroppedPackets() uint64 {
	return d.droppedPackets
}

// Read fills one frame with decoded samples, padding with silence where
// packets are missing. The frame length is set by the caller and must be a
// multiple of the channel count. Always returns true: a live stream has no
// end, only silence.
func (d *StreamDepacketizer) Read(frame *Frame) bool {
	channels := d.spec.Channels
	needed := Timestamp(len(frame.Samples) / channels)
	frame.CaptureTime = time.Time{}

	var written Timestamp
	for written < needed {
		if d.pkt == nil && !d.fetchPacket() {
			// No packets available: pad the rest with silence.
			d.zeroFill(frame, written, needed-written, channels)
			if d.started {
				d.nextTs += needed - written
			}
			written = needed
			break
		}

		// Silence gap before the current packet's remaining data.
		dataTs := d.pktStart.AddDiff(TimestampDiff(d.pktRead))
		if gap := TimestampDiffOf(dataTs, d.nextTs); gap > 0 {
			fill := Timestamp(gap)
			if fill > needed-written {
				fill = needed - written
			}
			d.zeroFill(frame, written, fill, channels)
			d.nextTs += fill
			written += fill
			continue
		}

		// Copy packet samples into the frame.
		avail := d.pkt.Duration - d.pktRead
		take := avail
		if take > needed-written {
			take = needed - written
		}

		if frame.CaptureTime.IsZero() && !d.pkt.CaptureTime.IsZero() {
			// Extrapolate the capture time of the frame start from the
			// capture time of the first copied sample.
			at := d.pkt.CaptureTime.Add(d.spec.SamplesToNs(d.pktRead))
			frame.CaptureTime = at.Add(-d.spec.SamplesToNs(written))
		}

		src := d.samples[int(d.pktRead)*channels : int(d.pktRead+take)*channels]
		copy(frame.Samples[int(written)*channels:], src)

		d.pktRead += take
		d.nextTs += take
		written += take

		if d.pktRead == d.pkt.Duration {
			d.pkt = nil
			d.samples = nil
		}
	}

	return true
}

// fetchPacket pops the next usable packet from the queue, dropping packets
// that are entirely behind the playback position. Returns false if the
// queue has nothing usable.
func (d *StreamDepacketizer) fetchPacket() bool {
	for {
		p := d.queue.Head()
		if p == nil {
			return false
		}

		if d.started && TimestampDiffOf(p.End(), d.nextTs) <= 0 {
			d.queue.ReadHead()
			d.droppedPackets++
			logrus.WithFields(logrus.Fields{
				"seqnum":  p.Seqnum,
				"pkt_end": p.End(),
				"next_ts": d.nextTs,
			}).Debug("depacketizer: dropping late packet")
			continue
		}

		d.queue.ReadHead()

		if !d.started {
			d.started = true
			d.nextTs = p.StreamTimestamp
			logrus.WithFields(logrus.Fields{
				"seqnum": p.Seqnum,
				"ts":     p.StreamTimestamp,
			}).Debug("depacketizer: got first packet")
		}

		d.pkt = p
		d.pktStart = p.StreamTimestamp
		d.pktRead = 0
		d.samples = p.decodeSamples(make([]int16, 0, int(p.Duration)*d.spec.Channels), d.spec)

		// Skip the part of the packet already behind the playback position.
		if behind := TimestampDiffOf(d.nextTs, d.pktStart); behind > 0 {
			d.pktRead = Timestamp(behind)
		}
		return true
	}
}

func (d *StreamDepacketizer) zeroFill(frame *Frame, at, count Timestamp, channels int) {
	start := int(at) * channels
	end := int(at+count) * channels
	for i := start; i < end; i++ {
		frame.Samples[i] = 0
	}
	d.paddedSamples += uint64(count)
}
