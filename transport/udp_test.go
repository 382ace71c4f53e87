package transport

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustUDPSocket(t *testing.T) (*UDPSocket, *net.UDPAddr) {
	t.Helper()
	local, err := net.ResolveUDPAddr("udp", "127.0.0.1:0")
	require.NoError(t, err)
	s, err := NewUDPSocket(local, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, s.LocalAddr()
}

func TestUDPReceiveWithoutDataReturnsWouldBlock(t *testing.T) {
	s, _ := mustUDPSocket(t)
	buf := make([]byte, 1500)

	_, result := s.Receive(buf)
	assert.Equal(t, WouldBlock, result)
}

func TestUDPSendReceiveRoundTrip(t *testing.T) {
	serverSock, serverAddr := mustUDPSocket(t)
	clientSock, _ := mustUDPSocket(t)
	clientSock.SetPeer(serverAddr)

	result := clientSock.Send([]byte("ping"))
	require.Equal(t, OK, result)

	buf := make([]byte, 1500)
	var n int
	var recvResult Result
	require.Eventually(t, func() bool {
		n, recvResult = serverSock.Receive(buf)
		return recvResult == OK
	}, time.Second, time.Millisecond)

	assert.Equal(t, "ping", string(buf[:n]))
}

func TestUDPSendWithoutPeerIsError(t *testing.T) {
	s, _ := mustUDPSocket(t)
	result := s.Send([]byte("data"))
	assert.Equal(t, Error, result)
}
