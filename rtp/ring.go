package rtp

// windowSize is the reassembly window's tolerance for early arrivals, fixed
// by spec.md §3 at 128 sequence numbers.
const windowSize = 128

// jitterSlot is a fixed-size MTU buffer recycled across packets, per
// spec.md's "Jitter slot" data model entry.
type jitterSlot struct {
	valid bool
	data  [MTU]byte
}

// packetView records where a seen-but-not-yet-processed packet lives in the
// jitter buffer, keyed by sequence number modulo windowSize. An absent view
// (valid == false) is a hole.
type packetView struct {
	valid bool
	slot  int
	size  int
}

// signedSeqDelta returns a - b interpreted as a signed 16-bit distance in
// [-2^15, 2^15), the arithmetic spec.md §3 mandates for sequence-number
// comparisons across the 16-bit wraparound.
func signedSeqDelta(a, b uint16) int32 {
	return int32(int16(a - b))
}
