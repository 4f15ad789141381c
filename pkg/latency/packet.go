package latency

import (
	"fmt"
	"time"

	"github.com/pion/rtp"
)

// Packet is one depacketized unit of the incoming stream: a run of encoded
// samples starting at a stream timestamp, plus the metadata the latency
// monitor and depacketizer need.
type Packet struct {
	// Seqnum is the RTP sequence number, used for ordering in the queue.
	Seqnum uint16

	// SSRC identifies the sender's stream.
	SSRC uint32

	// StreamTimestamp is the stream timestamp of the first sample.
	StreamTimestamp Timestamp

	// Duration is the number of samples per channel carried by the packet.
	Duration Timestamp

	// CaptureTime is the absolute wall-clock time at which the sender
	// captured the first sample, when known. Zero means unknown.
	CaptureTime time.Time

	// Payload is the raw encoded sample data (big-endian S16 for L16).
	Payload []byte
}

// End returns the stream timestamp one past the last sample of the packet.
func (p *Packet) End() Timestamp {
	return p.StreamTimestamp + p.Duration
}

// PacketFromRTP converts a parsed RTP packet into a stream packet. The
// sample spec describes the payload encoding; duration is derived from the
// payload size. Returns an error if the payload size is not a whole number
// of sample groups.
func PacketFromRTP(rp *rtp.Packet, spec SampleSpec) (*Packet, error) {
	groupSize := spec.Format.SampleSize() * spec.Channels
	if groupSize == 0 || len(rp.Payload)%groupSize != 0 {
		return nil, fmt.Errorf("packet: payload size %d is not a multiple of sample group size %d",
			len(rp.Payload), groupSize)
	}

	return &Packet{
		Seqnum:          rp.SequenceNumber,
		SSRC:            rp.SSRC,
		StreamTimestamp: Timestamp(rp.Timestamp),
		Duration:        Timestamp(len(rp.Payload) / groupSize),
		Payload:         rp.Payload,
	}, nil
}

// decodeSamples decodes the packet payload into interleaved S16 samples,
// appending to dst. L16 network byte order is big-endian.
func (p *Packet) decodeSamples(dst []int16, spec SampleSpec) []int16 {
	switch spec.Format {
	case FormatS16:
		for i := 0; i+1 < len(p.Payload); i += 2 {
			dst = append(dst, int16(uint16(p.Payload[i])<<8|uint16(p.Payload[i+1])))
		}
	default:
		// Unsupported formats decode to silence of the right length.
		n := len(p.Payload) / spec.Format.SampleSize()
		for i := 0; i < n; i++ {
			dst = append(dst, 0)
		}
	}
	return dst
}
