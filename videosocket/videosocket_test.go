package videosocket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martin-danhier/wvb-go/codec/h264"
	"github.com/martin-danhier/wvb-go/rtp"
	"github.com/martin-danhier/wvb-go/transport"
)

// repeatUntil mirrors original_source/tests/video_socket.cpp's repeat()
// helper: poll task up to a bound, sleeping briefly between attempts.
func repeatUntil(t *testing.T, task func() bool) bool {
	t.Helper()
	for i := 0; i < 500; i++ {
		if task() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}

func TestVideoSocketHandshakeAndPassthroughDataPath(t *testing.T) {
	server, err := NewServerVideoSocket("127.0.0.1:0", "127.0.0.1:0")
	require.NoError(t, err)
	defer server.Close()

	client, err := NewClientVideoSocket("127.0.0.1:0")
	require.NoError(t, err)
	defer client.Close()

	serverTCPAddr := server.tcpListener.Addr().String()
	serverUDPAddr := server.udp.LocalAddr()
	clientUDPAddr := client.udp.LocalAddr()

	// "raw" is not a registered codec, so Listen/Connect leave both ends in
	// opaque passthrough mode instead of auto-installing a packetizer.
	done := make(chan error, 1)
	go func() {
		done <- server.Listen(clientUDPAddr, "raw")
	}()

	require.NoError(t, client.Connect(serverTCPAddr, serverUDPAddr))
	require.NoError(t, <-done)

	assert.Equal(t, server.Clock().NTPEpoch(), client.Clock().NTPEpoch())
	assert.Equal(t, "raw", client.CodecID())

	payload := []byte("opaque frame bytes")
	require.NoError(t, server.SendPacket(payload, 1, false, 1000, 0, true, false))

	ok := repeatUntil(t, func() bool {
		client.Update()
		_, ok := client.ReceivePacket()
		return ok
	})
	require.True(t, ok)

	packet, ok := client.ReceivePacket()
	require.True(t, ok)
	assert.Equal(t, payload, packet.Data)
}

func TestServerHandshakeRejectsMismatchedMirror(t *testing.T) {
	ln, err := transport.ListenTCP("127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	serverErr := make(chan error, 1)
	go func() {
		conn, err := transport.AcceptTCP(ln)
		if err != nil {
			serverErr <- err
			return
		}
		defer conn.Close()
		serverErr <- serverHandshake(conn, rtp.NewClock(), "h264")
	}()

	clientConn, err := transport.DialTCP(ln.Addr().String())
	require.NoError(t, err)
	defer clientConn.Close()

	// A well-behaved peer would mirror these values back; instead, send a
	// deliberately different codec id to simulate a foreign/corrupt peer.
	_, _, err = readHandshake(clientConn)
	require.NoError(t, err)
	require.NoError(t, writeHandshake(clientConn, 0, "not-the-same-codec"))

	err = <-serverErr
	assert.ErrorIs(t, err, ErrHandshakeMismatch)
}

func TestVideoSocketWithH264Codec(t *testing.T) {
	server, err := NewServerVideoSocket("127.0.0.1:0", "127.0.0.1:0")
	require.NoError(t, err)
	defer server.Close()

	client, err := NewClientVideoSocket("127.0.0.1:0")
	require.NoError(t, err)
	defer client.Close()

	serverTCPAddr := server.tcpListener.Addr().String()
	serverUDPAddr := server.udp.LocalAddr()
	clientUDPAddr := client.udp.LocalAddr()

	done := make(chan error, 1)
	go func() { done <- server.Listen(clientUDPAddr, "h264") }()
	require.NoError(t, client.Connect(serverTCPAddr, serverUDPAddr))
	require.NoError(t, <-done)

	// Listen/Connect already auto-installed an h264 packetizer/depacketizer
	// from the registry (SSRC 1); override with an explicit SSRC to confirm
	// SetPacketizer/SetDepacketizer still take priority over auto-wiring.
	server.SetPacketizer(h264.NewPacketizer(99, 96))
	client.SetDepacketizer(h264.NewDepacketizer())

	nalu := []byte{0x65, 0x01, 0x02, 0x03}
	require.NoError(t, server.SendPacket(nalu, 1, false, 1000, 0, true, false))

	// A depacketized frame is handed out once, so keep the one the poll
	// loop received.
	var packet *ReceivedPacket
	ok := repeatUntil(t, func() bool {
		client.Update()
		var ok bool
		packet, ok = client.ReceivePacket()
		return ok
	})
	require.True(t, ok)
	require.NotNil(t, packet)

	expected := append([]byte{0x00, 0x00, 0x00, 0x01}, nalu...)
	assert.Equal(t, expected, packet.Data)
	assert.EqualValues(t, 1, packet.FrameID)
}

func TestVideoSocketAutoWiresRegisteredCodecFromHandshake(t *testing.T) {
	server, err := NewServerVideoSocket("127.0.0.1:0", "127.0.0.1:0")
	require.NoError(t, err)
	defer server.Close()

	client, err := NewClientVideoSocket("127.0.0.1:0")
	require.NoError(t, err)
	defer client.Close()

	serverTCPAddr := server.tcpListener.Addr().String()
	serverUDPAddr := server.udp.LocalAddr()
	clientUDPAddr := client.udp.LocalAddr()

	done := make(chan error, 1)
	go func() { done <- server.Listen(clientUDPAddr, "h264") }()
	require.NoError(t, client.Connect(serverTCPAddr, serverUDPAddr))
	require.NoError(t, <-done)

	// Neither side called SetPacketizer/SetDepacketizer: the handshake's
	// negotiated "h264" codec id must have auto-installed both ends from
	// the registry.
	nalu := []byte{0x65, 0x0a, 0x0b, 0x0c}
	require.NoError(t, server.SendPacket(nalu, 7, false, 1000, 0, true, false))

	var packet *ReceivedPacket
	ok := repeatUntil(t, func() bool {
		client.Update()
		var ok bool
		packet, ok = client.ReceivePacket()
		return ok
	})
	require.True(t, ok)
	require.NotNil(t, packet)
	expected := append([]byte{0x00, 0x00, 0x00, 0x01}, nalu...)
	assert.Equal(t, expected, packet.Data)
	assert.EqualValues(t, 7, packet.FrameID)
}

// TestVideoSocketLargeFrameFragmentsAcrossManyPackets exercises the full
// fragmentation/reassembly path end to end through real UDP sockets: a
// single large H.264 frame must be split into many RTP packets by the
// auto-wired packetizer and reassembled byte-for-byte by the depacketizer.
func TestVideoSocketLargeFrameFragmentsAcrossManyPackets(t *testing.T) {
	server, err := NewServerVideoSocket("127.0.0.1:0", "127.0.0.1:0")
	require.NoError(t, err)
	defer server.Close()

	client, err := NewClientVideoSocket("127.0.0.1:0")
	require.NoError(t, err)
	defer client.Close()

	serverTCPAddr := server.tcpListener.Addr().String()
	serverUDPAddr := server.udp.LocalAddr()
	clientUDPAddr := client.udp.LocalAddr()

	done := make(chan error, 1)
	go func() { done <- server.Listen(clientUDPAddr, "h264") }()
	require.NoError(t, client.Connect(serverTCPAddr, serverUDPAddr))
	require.NoError(t, <-done)

	nalu := make([]byte, 200*1024)
	nalu[0] = 0x65
	for i := 1; i < len(nalu); i++ {
		nalu[i] = byte(i)
	}
	require.NoError(t, server.SendPacket(nalu, 1, false, 1000, 0, true, false))

	var packet *ReceivedPacket
	ok := repeatUntil(t, func() bool {
		client.Update()
		var ok bool
		packet, ok = client.ReceivePacket()
		return ok
	})
	require.True(t, ok)
	require.NotNil(t, packet)
	expected := append([]byte{0x00, 0x00, 0x00, 0x01}, nalu...)
	assert.Equal(t, expected, packet.Data)
}
