package rtp

import (
	"encoding/binary"
	"fmt"
)

// Payload prefix flag bits, per spec.md §6.
const (
	FlagEndOfStream uint8 = 1 << 0
	FlagSaveFrame   uint8 = 1 << 1
)

// PayloadPrefix is the private 9-byte header carried at the start of every
// RTP packet's payload: a pose sampling timestamp, the frame id and a flags
// byte. It travels in every packet of a frame so the depacketizer can
// tolerate any packet being the first to arrive.
type PayloadPrefix struct {
	PoseTimestamp uint32
	FrameID       uint32
	EndOfStream   bool
	SaveFrame     bool
}

// Encode writes p to its 9-byte big-endian wire representation.
func (p PayloadPrefix) Encode() [PayloadPrefixSize]byte {
	var b [PayloadPrefixSize]byte
	binary.BigEndian.PutUint32(b[0:4], p.PoseTimestamp)
	binary.BigEndian.PutUint32(b[4:8], p.FrameID)
	var flags uint8
	if p.EndOfStream {
		flags |= FlagEndOfStream
	}
	if p.SaveFrame {
		flags |= FlagSaveFrame
	}
	b[8] = flags
	return b
}

// DecodePayloadPrefix parses a PayloadPrefix from the front of data.
func DecodePayloadPrefix(data []byte) (PayloadPrefix, error) {
	if len(data) < PayloadPrefixSize {
		return PayloadPrefix{}, fmt.Errorf("%w: got %d bytes", ErrPacketTooShort, len(data))
	}
	flags := data[8]
	return PayloadPrefix{
		PoseTimestamp: binary.BigEndian.Uint32(data[0:4]),
		FrameID:       binary.BigEndian.Uint32(data[4:8]),
		EndOfStream:   flags&FlagEndOfStream != 0,
		SaveFrame:     flags&FlagSaveFrame != 0,
	}, nil
}
