package transport

import (
	"errors"
	"fmt"
	"net"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// recvBufferBytes sizes the kernel receive buffer generously enough to
// absorb a burst of RTP packets between two Update() polls, grounded on
// moonlight-common-go/video.Stream's RTPRecvPacketsBuffered sizing idiom.
const recvBufferBytes = 2048 * 1500

// UDPSocket is a non-blocking UDP endpoint. Send/Receive never
// block: every read/write deadline is set to "now", turning a would-block
// condition into an immediate WouldBlock result rather than a stall.
type UDPSocket struct {
	conn *net.UDPConn
	peer *net.UDPAddr
	log  *log.Entry
}

// NewUDPSocket opens a UDP socket bound to localAddr and, if peer is
// non-nil, pre-connects the destination for Send.
func NewUDPSocket(localAddr *net.UDPAddr, peer *net.UDPAddr) (*UDPSocket, error) {
	conn, err := net.ListenUDP("udp", localAddr)
	if err != nil {
		return nil, fmt.Errorf("listen udp: %w", err)
	}

	s := &UDPSocket{conn: conn, peer: peer, log: log.WithField("component", "udp")}
	if err := s.tuneReceiveBuffer(); err != nil {
		s.log.WithError(err).Warn("failed to tune SO_RCVBUF, continuing with system default")
	}
	return s, nil
}

// tuneReceiveBuffer raises SO_RCVBUF directly via the raw socket, since
// net.UDPConn.SetReadBuffer silently caps out below what RTP bursts need on
// some kernels. Grounded on facebook-time/timestamp.ConnFd's
// SyscallConn().Control() idiom.
func (s *UDPSocket) tuneReceiveBuffer() error {
	sc, err := s.conn.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	err = sc.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, recvBufferBytes)
	})
	if err != nil {
		return err
	}
	return sockErr
}

// Send writes data to the pre-connected peer. A send that would block the
// kernel buffer returns WouldBlock rather than waiting.
func (s *UDPSocket) Send(data []byte) Result {
	if s.peer == nil {
		return Error
	}
	if err := s.conn.SetWriteDeadline(time.Now()); err != nil {
		return Error
	}
	_, err := s.conn.WriteToUDP(data, s.peer)
	return classifyIOError(err)
}

// Receive reads one datagram into buf without blocking. n is meaningful
// only when result is OK.
func (s *UDPSocket) Receive(buf []byte) (n int, result Result) {
	if err := s.conn.SetReadDeadline(time.Now()); err != nil {
		return 0, Error
	}
	n, _, err := s.conn.ReadFromUDP(buf)
	return n, classifyIOError(err)
}

// Close releases the underlying socket.
func (s *UDPSocket) Close() error {
	return s.conn.Close()
}

// LocalAddr returns the bound local address.
func (s *UDPSocket) LocalAddr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// SetPeer fixes the destination address used by Send, without rebinding the
// underlying socket. Used once the handshake has learned the peer's data
// port.
func (s *UDPSocket) SetPeer(peer *net.UDPAddr) {
	s.peer = peer
}

func classifyIOError(err error) Result {
	if err == nil {
		return OK
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return WouldBlock
	}
	if errors.Is(err, net.ErrClosed) {
		return Closed
	}
	return Error
}
