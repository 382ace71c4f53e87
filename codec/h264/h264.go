// Package h264 implements the built-in H.264 RTP payload format (RFC 6184
// single NALU, STAP-A and FU-A) as a rtp.PayloadParser, grounded on the
// reassembly logic of lanikai/alohartc's internal/rtp h264Reader and on
// original_source's codec/h264 packetizer/depacketizer pair.
package h264

import (
	"bytes"
	"fmt"

	"github.com/martin-danhier/wvb-go/rtp"
)

const (
	naluTypeMask  = 0x1f
	naluTypeSTAPA = 24
	naluTypeFUA   = 28

	fuHeaderStartBit = 0x80
	fuHeaderEndBit   = 0x40
	fuHeaderTypeMask = 0x1f

	// packetizerName/depacketizerName are the stable values the H.264
	// packetizer's and depacketizer's Name() return. module.Registry keys
	// the H.264 module by its codec id "h264", not by these names.
	packetizerName   = "H264RtpPacketizer"
	depacketizerName = "H264RtpDepacketizer"
)

// annexBStartCode is prepended to every reassembled NAL unit so consumers
// receive a standard Annex-B elementary stream, matching what
// original_source's h264_decoder.cpp expects on its input.
var annexBStartCode = []byte{0x00, 0x00, 0x00, 0x01}

// PayloadParser reassembles H.264 NAL units carried in RTP payloads back
// into an Annex-B bitstream. It holds the in-progress FU-A accumulation
// buffer across ProcessPacket calls within one frame.
type PayloadParser struct {
	fu   bytes.Buffer
	inFU bool
}

// NewPayloadParser returns a fresh H.264 PayloadParser.
func NewPayloadParser() *PayloadParser {
	return &PayloadParser{}
}

// ProcessPacket implements rtp.PayloadParser.
func (p *PayloadParser) ProcessPacket(buf *bytes.Buffer, payload []byte, marker bool) error {
	if len(payload) == 0 {
		return fmt.Errorf("%w: empty h264 payload", rtp.ErrMalformedHeader)
	}

	naluType := payload[0] & naluTypeMask
	switch naluType {
	case naluTypeSTAPA:
		return p.processSTAPA(buf, payload)
	case naluTypeFUA:
		return p.processFUA(buf, payload)
	default:
		if p.inFU {
			// A single-NALU packet arrived while a fragmentation unit was
			// in progress: the stream skipped the FU-A end marker.
			p.Reset()
			return fmt.Errorf("%w: single NALU interrupts in-progress FU-A", rtp.ErrFrameInconsistent)
		}
		buf.Write(annexBStartCode)
		buf.Write(payload)
		return nil
	}
}

func (p *PayloadParser) processSTAPA(buf *bytes.Buffer, payload []byte) error {
	if p.inFU {
		p.Reset()
		return fmt.Errorf("%w: STAP-A interrupts in-progress FU-A", rtp.ErrFrameInconsistent)
	}

	cursor := payload[1:]
	for len(cursor) > 0 {
		if len(cursor) < 2 {
			return fmt.Errorf("%w: truncated STAP-A NALU size", rtp.ErrMalformedHeader)
		}
		size := int(cursor[0])<<8 | int(cursor[1])
		cursor = cursor[2:]
		if size == 0 || len(cursor) < size {
			return fmt.Errorf("%w: truncated STAP-A NALU body", rtp.ErrMalformedHeader)
		}
		buf.Write(annexBStartCode)
		buf.Write(cursor[:size])
		cursor = cursor[size:]
	}
	return nil
}

func (p *PayloadParser) processFUA(buf *bytes.Buffer, payload []byte) error {
	if len(payload) < 2 {
		return fmt.Errorf("%w: truncated FU-A header", rtp.ErrMalformedHeader)
	}
	indicator := payload[0]
	header := payload[1]
	start := header&fuHeaderStartBit != 0
	end := header&fuHeaderEndBit != 0

	if start {
		p.fu.Reset()
		p.inFU = true
		reconstructed := indicator&0xe0 | header&fuHeaderTypeMask
		p.fu.WriteByte(reconstructed)
	} else if !p.inFU {
		return fmt.Errorf("%w: FU-A continuation without start", rtp.ErrFrameInconsistent)
	}

	p.fu.Write(payload[2:])

	if end {
		buf.Write(annexBStartCode)
		buf.Write(p.fu.Bytes())
		p.fu.Reset()
		p.inFU = false
	}
	return nil
}

// Reset implements rtp.PayloadParser.
func (p *PayloadParser) Reset() {
	p.fu.Reset()
	p.inFU = false
}

// NewPacketizer returns an RTP packetizer for the H.264 payload format.
// Frame data handed to AddFrame is expected to already be a single Annex-B
// access unit; it is not re-split into per-NALU STAP-A/FU-A groupings here
// because spec.md's Packetizer contract packetizes whatever bytes it is
// given without parsing codec semantics (§9, "Packetizer is codec-agnostic
// at the byte level").
func NewPacketizer(ssrc uint32, payloadType uint8) *rtp.RTPPacketizer {
	return rtp.NewRTPPacketizer(packetizerName, ssrc, payloadType)
}

// NewDepacketizer returns a depacketizer wired with the H.264 payload
// parser.
func NewDepacketizer() *rtp.RTPDepacketizer {
	return rtp.NewRTPDepacketizer(depacketizerName, NewPayloadParser())
}
