package rtp

import (
	"fmt"

	pionrtp "github.com/pion/rtp"
)

// Wire layout constants from spec.md §6.
const (
	// HeaderSize is the fixed RTP header size on the wire: version, padding,
	// extension, CSRC count, marker, payload type, sequence, timestamp, SSRC.
	HeaderSize = 12
	// PayloadPrefixSize is the private per-packet prefix carrying the pose
	// timestamp, frame id and flags byte.
	PayloadPrefixSize = 9
	// MTU is the maximum transmission unit of the underlying link.
	MTU = 1500
	// ipUDPOverhead accounts for a 20-byte IPv4 header and an 8-byte UDP
	// header, matching spec.md's 1472-byte usable-on-the-wire budget.
	ipUDPOverhead = 28
	// MaxPayloadSize is the largest codec payload that fits a single RTP
	// packet once the header, payload prefix and IP/UDP overhead are
	// subtracted: 1500 - 28 - 9 - 12 = 1451.
	MaxPayloadSize = MTU - ipUDPOverhead - PayloadPrefixSize - HeaderSize

	// Version is the only RTP version accepted by this core.
	Version = 2
)

// Header is the 12-byte RTP header. It is an alias of pion/rtp's Header type
// so that EncodeHeader/DecodeHeader can defer to its battle-tested
// Marshal/Unmarshal rather than hand-rolling bit-packing; with Extension
// false and no CSRCs (never used by this protocol), it marshals to exactly
// HeaderSize bytes.
type Header = pionrtp.Header

// EncodeHeader serializes h to its 12-byte wire representation.
func EncodeHeader(h *Header) ([]byte, error) {
	h.Version = Version
	h.Padding = false
	h.Extension = false
	h.CSRC = nil
	return h.Marshal()
}

// DecodeHeader parses an RTP header from the front of data. It returns an
// error if data is too short or the header does not declare version 2, per
// spec.md §4.3 step 1 ("If bytes < 12 or version ≠ 2, drop").
func DecodeHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrPacketTooShort, len(data))
	}
	h := &Header{}
	if _, err := h.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}
	if h.Version != Version {
		return nil, fmt.Errorf("%w: version %d", ErrMalformedHeader, h.Version)
	}
	return h, nil
}
