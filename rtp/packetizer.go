package rtp

import (
	"fmt"
)

// Packetizer splits a frame payload into a sequence of on-wire packets.
// Concrete codec packetizers (codec/h264.NewPacketizer, ...) return a
// named *RTPPacketizer and reuse its chunking/sequencing/marker-bit engine.
type Packetizer interface {
	Name() string

	// AddFrame stages a frame, or a slice of one, for packetization. data is
	// borrowed, not copied, and must remain live until CreateNextPacket
	// returns ok=false. Calling AddFrame with last=true closes the current
	// frame; the next call that starts a new frame must supply a sampling
	// timestamp strictly greater than the one just closed.
	AddFrame(data []byte, frameID uint32, endOfStream bool, samplingTS, poseTS uint32, saveFrame, last bool) error

	// CreateNextPacket returns the next packet to send, or ok=false once the
	// staged frame is fully drained.
	CreateNextPacket() (packet []byte, ok bool)
}

// RTPPacketizer is the shared RTP chunking engine: it walks staged frame
// bytes MaxPayloadSize at a time, increments the sequence number per packet,
// sets the marker bit on the final packet of a frame, and stamps every
// packet of a frame with identical timestamp, frame id and pose timestamp
// fields. Grounded on original_source's IPacketizer contract and on the
// gortsplib rtph264.Encoder single/fragmented NALU split found in the
// example pack.
type RTPPacketizer struct {
	name        string
	ssrc        uint32
	payloadType uint8
	maxPayload  int
	seq         uint16

	chunks       [][]byte
	cursorChunk  int
	cursorOffset int
	building     bool
	haveLast     bool

	// pendingEmptyFrame is set when AddFrame closes a frame with zero
	// bytes of payload, so CreateNextPacket still emits the single
	// zero-length marker packet the "exactly one frame in, at least one
	// packet out" round-trip invariant requires.
	pendingEmptyFrame bool

	frameID        uint32
	samplingTS     uint32
	poseTS         uint32
	endOfStream    bool
	saveFrame      bool
	haveClosed     bool
	lastSamplingTS uint32
}

// NewRTPPacketizer creates a packetizer that stamps SSRC into every packet
// and tags its payload type with payloadType (96 is the conventional
// dynamic payload type used for H.264 in spec.md §6).
func NewRTPPacketizer(name string, ssrc uint32, payloadType uint8) *RTPPacketizer {
	return &RTPPacketizer{
		name:        name,
		ssrc:        ssrc,
		payloadType: payloadType,
		maxPayload:  MaxPayloadSize,
	}
}

func (p *RTPPacketizer) Name() string { return p.name }

func (p *RTPPacketizer) AddFrame(data []byte, frameID uint32, endOfStream bool, samplingTS, poseTS uint32, saveFrame, last bool) error {
	if p.haveClosed && samplingTS <= p.lastSamplingTS {
		return fmt.Errorf("%w: got %d, previous frame closed at %d", ErrStaleTimestamp, samplingTS, p.lastSamplingTS)
	}

	if !p.building {
		p.chunks = p.chunks[:0]
		p.cursorChunk = 0
		p.cursorOffset = 0
		p.building = true
	}
	if len(data) > 0 {
		p.chunks = append(p.chunks, data)
	}

	p.frameID = frameID
	p.samplingTS = samplingTS
	p.poseTS = poseTS
	p.endOfStream = endOfStream
	p.saveFrame = saveFrame

	if last {
		p.haveLast = true
		p.haveClosed = true
		p.lastSamplingTS = samplingTS
		p.pendingEmptyFrame = len(p.chunks) == 0
	}
	return nil
}

func (p *RTPPacketizer) CreateNextPacket() ([]byte, bool) {
	if p.cursorChunk >= len(p.chunks) {
		if p.pendingEmptyFrame {
			p.pendingEmptyFrame = false
			pkt := p.buildPacket(nil, true)
			p.seq++
			p.haveLast = false
			p.building = false
			return pkt, true
		}
		return nil, false
	}

	remaining := p.maxPayload
	var payload []byte
	for remaining > 0 && p.cursorChunk < len(p.chunks) {
		chunk := p.chunks[p.cursorChunk][p.cursorOffset:]
		if len(chunk) <= remaining {
			payload = append(payload, chunk...)
			remaining -= len(chunk)
			p.cursorChunk++
			p.cursorOffset = 0
		} else {
			payload = append(payload, chunk[:remaining]...)
			p.cursorOffset += remaining
			remaining = 0
		}
	}

	drained := p.cursorChunk >= len(p.chunks)
	marker := p.haveLast && drained
	pkt := p.buildPacket(payload, marker)
	p.seq++

	if drained && p.haveLast {
		p.chunks = p.chunks[:0]
		p.cursorChunk = 0
		p.cursorOffset = 0
		p.haveLast = false
		p.building = false
	}

	return pkt, true
}

func (p *RTPPacketizer) buildPacket(payload []byte, marker bool) []byte {
	hdr := &Header{
		Marker:         marker,
		PayloadType:    p.payloadType,
		SequenceNumber: p.seq,
		Timestamp:      p.samplingTS,
		SSRC:           p.ssrc,
	}
	hb, err := EncodeHeader(hdr)
	if err != nil {
		// EncodeHeader can only fail on pion/rtp internal invariants we
		// control (no extension, no CSRCs), so this is unreachable in
		// practice; fall back to an empty header rather than panicking.
		hb = make([]byte, HeaderSize)
	}

	prefix := PayloadPrefix{
		PoseTimestamp: p.poseTS,
		FrameID:       p.frameID,
		EndOfStream:   p.endOfStream,
		SaveFrame:     p.saveFrame,
	}.Encode()

	pkt := make([]byte, 0, len(hb)+len(prefix)+len(payload))
	pkt = append(pkt, hb...)
	pkt = append(pkt, prefix[:]...)
	pkt = append(pkt, payload...)
	return pkt
}
