package rtp

import (
	"bytes"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Depacketizer reassembles a stream of RTP packets into complete frames. It
// is driven from two roles concurrently: AddPacket by the network-reading
// thread, ReceiveFrameData/ReleaseFrameData by the rendering thread. See
// spec.md §4.3/§5 for the full reassembly contract.
type Depacketizer interface {
	Name() string
	AddPacket(data []byte) error
	ReceiveFrameData() (*Frame, bool)
	ReleaseFrameData()
	Stats() DepacketizerStats
}

// RTPDepacketizer is the shared jitter-buffer and reassembly state machine.
// Per-codec payload semantics are delegated to an injected PayloadParser.
// Grounded on original_source's IRtpDepacketizer (m_packet_views ring,
// alloc_jitter_slot, process_packet/reset_frame/finish_frame hooks) and on
// moonlight-common-go/video.Stream's RTPQueue + Depacketizer split.
type RTPDepacketizer struct {
	mu sync.Mutex

	name   string
	parser PayloadParser
	log    *log.Entry

	firstPacket      bool
	desiredSeq       uint16
	lastProcessedSeq uint16
	haveCurrentFrame bool

	views [windowSize]packetView
	slots [windowSize]jitterSlot

	currentFrameTS uint32
	currentPoseTS  uint32
	currentFrameID uint32

	// buffers is the double-buffered frame hand-off: the network thread
	// only ever writes into buffers[stagingIdx]; finishFrame flips
	// stagingIdx so the just-completed buffer becomes read-only for the
	// consumer while a fresh one is used for the next frame.
	buffers    [2]bytes.Buffer
	stagingIdx int

	hasFrame    bool
	presentable Frame
	lastFrameID uint32
	haveLastID  bool

	stats DepacketizerStats
}

// NewRTPDepacketizer creates a depacketizer delegating codec-specific
// payload handling to parser.
func NewRTPDepacketizer(name string, parser PayloadParser) *RTPDepacketizer {
	return &RTPDepacketizer{
		name:        name,
		parser:      parser,
		log:         log.WithField("component", name),
		firstPacket: true,
	}
}

func (d *RTPDepacketizer) Name() string { return d.name }

func (d *RTPDepacketizer) Stats() DepacketizerStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// AddPacket implements the algorithm of spec.md §4.3.
func (d *RTPDepacketizer) AddPacket(data []byte) error {
	hdr, err := DecodeHeader(data)
	if err != nil {
		d.mu.Lock()
		d.stats.MalformedPackets++
		d.mu.Unlock()
		d.log.WithError(err).Debug("dropping malformed packet")
		return nil
	}

	payload := data[HeaderSize:]
	if _, err := DecodePayloadPrefix(payload); err != nil {
		d.mu.Lock()
		d.stats.MalformedPackets++
		d.mu.Unlock()
		d.log.WithError(err).Debug("dropping packet with malformed payload prefix")
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	seq := hdr.SequenceNumber

	if d.firstPacket {
		d.firstPacket = false
		d.desiredSeq = seq
		d.lastProcessedSeq = seq - 1
	}

	dist := signedSeqDelta(seq, d.desiredSeq)

	switch {
	case dist >= 0 && dist < windowSize:
		d.insert(seq, data, int(dist))

	case dist < 0 && dist >= -windowSize:
		d.insertLate(seq, data)

	case dist >= windowSize:
		d.resync(seq, data)

	default:
		// More than windowSize behind: too old even for the late-arrival
		// path, silently dropped per spec.md §4.3's loss policy.
		d.stats.LateDrops++
	}

	d.drain()
	return nil
}

// insert stores an in-window packet (0 <= dist < windowSize) into a free
// jitter slot.
func (d *RTPDepacketizer) insert(seq uint16, data []byte, _dist int) {
	ring := int(seq) % windowSize
	if d.views[ring].valid {
		d.stats.DuplicatePackets++
		return
	}
	slot, ok := d.allocSlot()
	if !ok {
		// Jitter buffer is exhausted; should not happen with a correctly
		// sized window, but drop rather than corrupt state.
		d.stats.LateDrops++
		return
	}
	n := copy(d.slots[slot].data[:], data)
	d.slots[slot].valid = true
	d.views[ring] = packetView{valid: true, slot: slot, size: n}
}

// insertLate handles a packet that arrived behind the desired sequence
// number but still within the window: either a late arrival that can still
// complete a hole, or a duplicate of something already drained.
func (d *RTPDepacketizer) insertLate(seq uint16, data []byte) {
	ring := int(seq) % windowSize
	if d.views[ring].valid {
		d.stats.DuplicatePackets++
		return
	}
	if signedSeqDelta(seq, d.lastProcessedSeq) <= 0 {
		// Already processed and drained.
		d.stats.DuplicatePackets++
		return
	}
	slot, ok := d.allocSlot()
	if !ok {
		d.stats.LateDrops++
		return
	}
	n := copy(d.slots[slot].data[:], data)
	d.slots[slot].valid = true
	d.views[ring] = packetView{valid: true, slot: slot, size: n}
}

// resync discards everything in flight and restarts the reassembly window
// at seq, per spec.md's "too far ahead" classification.
func (d *RTPDepacketizer) resync(seq uint16, data []byte) {
	d.log.WithField("seq", seq).Warn("sequence gap exceeds window, resyncing")
	d.stats.Resyncs++
	if d.haveCurrentFrame {
		d.discardCurrentFrame()
	}
	for i := range d.views {
		d.views[i] = packetView{}
	}
	for i := range d.slots {
		d.slots[i].valid = false
	}
	d.desiredSeq = seq
	d.lastProcessedSeq = seq - 1

	ring := int(seq) % windowSize
	slot, ok := d.allocSlot()
	if !ok {
		return
	}
	n := copy(d.slots[slot].data[:], data)
	d.slots[slot].valid = true
	d.views[ring] = packetView{valid: true, slot: slot, size: n}
}

// allocSlot finds a free jitter slot by linear scan, as spec.md §4.3
// prescribes for the small, fixed-size buffer.
func (d *RTPDepacketizer) allocSlot() (int, bool) {
	for i := range d.slots {
		if !d.slots[i].valid {
			return i, true
		}
	}
	return 0, false
}

// drain walks contiguous packets starting at desiredSeq, handing each one to
// the payload parser, until the first hole.
func (d *RTPDepacketizer) drain() {
	for {
		ring := int(d.desiredSeq) % windowSize
		view := d.views[ring]
		if !view.valid {
			return
		}

		raw := d.slots[view.slot].data[:view.size]
		hdr, err := DecodeHeader(raw)
		if err != nil {
			// Shouldn't happen: this packet already parsed successfully
			// once before being stored. Treat as malformed and skip.
			d.stats.MalformedPackets++
			d.freeView(ring, view.slot)
			d.advance()
			continue
		}
		prefix, err := DecodePayloadPrefix(raw[HeaderSize:])
		if err != nil {
			d.stats.MalformedPackets++
			d.freeView(ring, view.slot)
			d.advance()
			continue
		}
		codecPayload := raw[HeaderSize+PayloadPrefixSize:]

		if !d.haveCurrentFrame {
			d.startFrame(prefix)
		} else if prefix.FrameID != d.currentFrameID {
			d.log.WithFields(log.Fields{
				"expected_frame": d.currentFrameID,
				"got_frame":      prefix.FrameID,
			}).Warn("frame id mismatch mid-frame, discarding and resyncing")
			d.discardCurrentFrame()
			d.startFrame(prefix)
		}

		d.currentFrameTS = hdr.Timestamp
		d.currentPoseTS = prefix.PoseTimestamp

		if err := d.parser.ProcessPacket(&d.buffers[d.stagingIdx], codecPayload, hdr.Marker); err != nil {
			d.log.WithError(err).Warn("payload parser rejected packet, discarding frame")
			d.discardCurrentFrame()
			d.freeView(ring, view.slot)
			d.advance()
			continue
		}

		d.freeView(ring, view.slot)
		d.advance()

		if hdr.Marker {
			d.finishFrame(prefix)
		}
	}
}

func (d *RTPDepacketizer) freeView(ring, slot int) {
	d.views[ring] = packetView{}
	d.slots[slot].valid = false
}

func (d *RTPDepacketizer) advance() {
	d.lastProcessedSeq = d.desiredSeq
	d.desiredSeq++
}

func (d *RTPDepacketizer) startFrame(prefix PayloadPrefix) {
	d.haveCurrentFrame = true
	d.currentFrameID = prefix.FrameID
	d.buffers[d.stagingIdx].Reset()
}

// discardCurrentFrame implements spec.md's "on frame boundary the frame is
// either emitted or discarded atomically" and the resync loss policy: no
// partial frame is ever emitted.
func (d *RTPDepacketizer) discardCurrentFrame() {
	if d.haveCurrentFrame {
		d.stats.DiscardedFrames++
	}
	d.haveCurrentFrame = false
	d.buffers[d.stagingIdx].Reset()
	d.parser.Reset()
}

// finishFrame freezes the just-completed frame's metadata, swaps the
// double-buffer so the network thread can start a fresh frame without
// disturbing the one handed to the consumer, and marks a frame ready.
// Invariant #5 requires frame ids observed by the consumer to be strictly
// increasing, so a completed frame whose id does not exceed the last one
// delivered is discarded here instead of being surfaced.
func (d *RTPDepacketizer) finishFrame(prefix PayloadPrefix) {
	if d.haveLastID && d.currentFrameID <= d.lastFrameID {
		d.log.WithFields(log.Fields{
			"frame_id":      d.currentFrameID,
			"last_frame_id": d.lastFrameID,
		}).Warn("completed frame id is not greater than the last delivered frame, discarding")
		d.stats.DiscardedFrames++
		d.haveCurrentFrame = false
		d.buffers[d.stagingIdx].Reset()
		d.parser.Reset()
		return
	}

	d.presentable = Frame{
		Data:                 d.buffers[d.stagingIdx].Bytes(),
		FrameID:              d.currentFrameID,
		SamplingTimestamp:    d.currentFrameTS,
		PoseTimestamp:        d.currentPoseTS,
		EndOfStream:          prefix.EndOfStream,
		SaveFrame:            prefix.SaveFrame,
		LastPacketReceivedAt: time.Now(),
	}
	d.hasFrame = true
	d.haveCurrentFrame = false
	d.stats.CompletedFrames++
	d.lastFrameID = d.currentFrameID
	d.haveLastID = true

	d.stagingIdx = 1 - d.stagingIdx
	d.buffers[d.stagingIdx].Reset()
}

// ReceiveFrameData hands out the most recently completed frame, if any.
// The returned Frame's Data borrows the depacketizer's internal buffer and
// remains valid only until the next call to AddPacket or ReceiveFrameData.
func (d *RTPDepacketizer) ReceiveFrameData() (*Frame, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.hasFrame {
		return nil, false
	}
	d.hasFrame = false
	frame := d.presentable
	return &frame, true
}

// ReleaseFrameData ends the borrow scope opened by ReceiveFrameData.
func (d *RTPDepacketizer) ReleaseFrameData() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.presentable = Frame{}
}
