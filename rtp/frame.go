package rtp

import "time"

// Frame is a fully reassembled codec bitstream handed from a Depacketizer to
// its consumer. Data is a borrow into the depacketizer's internal buffer: it
// remains valid only until the next call to AddPacket or ReceiveFrameData.
type Frame struct {
	Data                 []byte
	FrameID              uint32
	SamplingTimestamp    uint32
	PoseTimestamp        uint32
	EndOfStream          bool
	SaveFrame            bool
	LastPacketReceivedAt time.Time
}

// DepacketizerStats accumulates counters for the recoverable failure modes
// described in spec.md §7, supplementing the spec with the running
// statistics original_source keeps (wvb_common/server_shared_state.h) and
// that moonlight-common-go/types.RTPVideoStats exposes to its caller.
type DepacketizerStats struct {
	MalformedPackets uint64
	DuplicatePackets uint64
	LateDrops        uint64
	Resyncs          uint64
	DiscardedFrames  uint64
	CompletedFrames  uint64
}
