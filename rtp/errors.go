package rtp

import "errors"

// Sentinel errors returned by this package, in the style of
// moonlight-common-go's crypto and video packages.
var (
	// ErrPacketTooShort is returned when a datagram is smaller than the
	// fixed RTP header or payload prefix it is expected to contain.
	ErrPacketTooShort = errors.New("rtp: packet too short")
	// ErrMalformedHeader is returned when the RTP header fails to parse or
	// declares an unsupported version.
	ErrMalformedHeader = errors.New("rtp: malformed header")
	// ErrStaleTimestamp is returned by Packetizer.AddFrame when a sampling
	// timestamp is not fresher than the previously closed frame's.
	ErrStaleTimestamp = errors.New("rtp: sampling timestamp not fresher than previous frame")
	// ErrFrameInconsistent is returned internally when packets belonging to
	// the same sequence run carry different frame ids.
	ErrFrameInconsistent = errors.New("rtp: frame id mismatch within frame")
)
