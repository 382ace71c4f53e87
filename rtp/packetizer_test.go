package rtp

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drainPackets(p *RTPPacketizer) [][]byte {
	var out [][]byte
	for {
		pkt, ok := p.CreateNextPacket()
		if !ok {
			return out
		}
		out = append(out, pkt)
	}
}

func TestPacketizerSmallFrameIsSinglePacket(t *testing.T) {
	p := NewRTPPacketizer("test", 1234, 96)
	data := []byte("hello world")

	require.NoError(t, p.AddFrame(data, 1, false, 1000, 2000, false, true))
	packets := drainPackets(p)
	require.Len(t, packets, 1)

	hdr, err := DecodeHeader(packets[0])
	require.NoError(t, err)
	assert.True(t, hdr.Marker)
	assert.EqualValues(t, 96, hdr.PayloadType)
	assert.EqualValues(t, 1234, hdr.SSRC)
	assert.EqualValues(t, 1000, hdr.Timestamp)

	prefix, err := DecodePayloadPrefix(packets[0][HeaderSize:])
	require.NoError(t, err)
	assert.EqualValues(t, 1, prefix.FrameID)
	assert.EqualValues(t, 2000, prefix.PoseTimestamp)

	assert.Equal(t, data, packets[0][HeaderSize+PayloadPrefixSize:])
}

func TestPacketizerLargeFrameFragments(t *testing.T) {
	p := NewRTPPacketizer("test", 1, 96)
	data := bytes.Repeat([]byte{0xAB}, MaxPayloadSize*3+17)

	require.NoError(t, p.AddFrame(data, 7, false, 500, 0, false, true))
	packets := drainPackets(p)
	require.Len(t, packets, 4)

	var reassembled []byte
	for i, pkt := range packets {
		hdr, err := DecodeHeader(pkt)
		require.NoError(t, err)
		assert.EqualValues(t, i, uint16(hdr.SequenceNumber))
		assert.Equal(t, i == len(packets)-1, hdr.Marker)
		reassembled = append(reassembled, pkt[HeaderSize+PayloadPrefixSize:]...)
	}
	assert.Equal(t, data, reassembled)
}

func TestPacketizerMultipleAddFrameCallsBeforeLast(t *testing.T) {
	p := NewRTPPacketizer("test", 1, 96)
	part1 := []byte("part one ")
	part2 := []byte("part two")

	require.NoError(t, p.AddFrame(part1, 3, false, 10, 0, false, false))
	require.NoError(t, p.AddFrame(part2, 3, false, 10, 0, false, true))

	packets := drainPackets(p)
	require.Len(t, packets, 1)
	assert.Equal(t, append(append([]byte{}, part1...), part2...), packets[0][HeaderSize+PayloadPrefixSize:])
}

func TestPacketizerRejectsNonMonotonicTimestamp(t *testing.T) {
	p := NewRTPPacketizer("test", 1, 96)
	require.NoError(t, p.AddFrame([]byte("a"), 1, false, 100, 0, false, true))
	drainPackets(p)

	err := p.AddFrame([]byte("b"), 2, false, 100, 0, false, true)
	assert.ErrorIs(t, err, ErrStaleTimestamp)
}

func TestPacketizerSequenceNumberIncrementsAcrossFrames(t *testing.T) {
	p := NewRTPPacketizer("test", 1, 96)
	require.NoError(t, p.AddFrame([]byte("a"), 1, false, 10, 0, false, true))
	first := drainPackets(p)

	require.NoError(t, p.AddFrame([]byte("b"), 2, false, 20, 0, false, true))
	second := drainPackets(p)

	h1, _ := DecodeHeader(first[0])
	h2, _ := DecodeHeader(second[0])
	assert.Equal(t, h1.SequenceNumber+1, h2.SequenceNumber)
}
