package rtp

import "bytes"

// PayloadParser is the per-codec hook that RTPDepacketizer delegates payload
// parsing to, realizing the template-method split called for in spec.md §9:
// RTPDepacketizer owns the invariant reassembly machinery (ordering, jitter
// buffer, loss/duplicate handling) and PayloadParser owns codec-specific
// knowledge of what a payload byte-for-byte means once it is in order.
type PayloadParser interface {
	// ProcessPacket appends the reassembled bytes for one in-order packet's
	// payload onto buf. marker is set on the last packet of a frame.
	ProcessPacket(buf *bytes.Buffer, payload []byte, marker bool) error

	// Reset clears any parser-internal cross-packet state (e.g. an in
	// -progress fragmentation unit), invoked whenever the depacketizer
	// discards an in-progress frame on resync.
	Reset()
}
