package transport

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"

	log "github.com/sirupsen/logrus"
)

// handshakeTimeout bounds the one blocking operation the transport layer
// performs, per spec.md §5 ("Timeouts apply only to handshake, default
// 5s"). Overridable via SetHandshakeTimeout for deployments that configure
// a different bound.
var handshakeTimeout = 5 * time.Second

// SetHandshakeTimeout overrides the blocking bound applied to TCP
// dial/accept and the handshake's ReadFull/WriteFull calls.
func SetHandshakeTimeout(d time.Duration) {
	handshakeTimeout = d
}

// TCPSocket is a length-prefixed TCP connection used for the video
// handshake and any control-plane framing built on top of it. Steady-state
// reads/writes are non-blocking like UDPSocket; only Dial/Accept and the
// handshake helpers below block, with handshakeTimeout as a backstop.
type TCPSocket struct {
	conn net.Conn
	log  *log.Entry
}

// DialTCP connects to addr, blocking up to handshakeTimeout.
func DialTCP(addr string) (*TCPSocket, error) {
	conn, err := net.DialTimeout("tcp", addr, handshakeTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial tcp %s: %w", addr, err)
	}
	return &TCPSocket{conn: conn, log: log.WithField("component", "tcp")}, nil
}

// ListenTCP opens a listener bound to addr.
func ListenTCP(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}

// AcceptTCP blocks up to handshakeTimeout waiting for the next client.
func AcceptTCP(ln net.Listener) (*TCPSocket, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := ln.Accept()
		ch <- result{conn, err}
	}()
	select {
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("accept tcp: %w", r.err)
		}
		return &TCPSocket{conn: r.conn, log: log.WithField("component", "tcp")}, nil
	case <-time.After(handshakeTimeout):
		return nil, fmt.Errorf("accept tcp: %w", ErrHandshakeTimeout)
	}
}

// WriteFull blocks (bounded by handshakeTimeout) until all of data has been
// written, for use during the handshake only.
func (s *TCPSocket) WriteFull(data []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(handshakeTimeout)); err != nil {
		return err
	}
	_, err := s.conn.Write(data)
	return err
}

// ReadFull blocks (bounded by handshakeTimeout) until len(buf) bytes have
// been read, for use during the handshake only.
func (s *TCPSocket) ReadFull(buf []byte) error {
	if err := s.conn.SetReadDeadline(time.Now().Add(handshakeTimeout)); err != nil {
		return err
	}
	total := 0
	for total < len(buf) {
		n, err := s.conn.Read(buf[total:])
		if err != nil {
			return err
		}
		total += n
	}
	return nil
}

// Send writes a length-prefixed frame without blocking; a partial write due
// to a full kernel buffer is reported as WouldBlock and must be retried by
// the caller with the same frame.
func (s *TCPSocket) Send(frame []byte) Result {
	if err := s.conn.SetWriteDeadline(time.Now()); err != nil {
		return Error
	}
	buf := make([]byte, 4+len(frame))
	binary.BigEndian.PutUint32(buf, uint32(len(frame)))
	copy(buf[4:], frame)
	_, err := s.conn.Write(buf)
	return classifyIOError(err)
}

// Receive polls for the next length-prefixed frame. The 4-byte length
// header is polled without blocking; once it has arrived, the body read
// waits up to handshakeTimeout.
func (s *TCPSocket) Receive() (frame []byte, result Result) {
	if err := s.conn.SetReadDeadline(time.Now()); err != nil {
		return nil, Error
	}
	header := make([]byte, 4)
	if _, err := fullRead(s.conn, header); err != nil {
		return nil, classifyIOError(err)
	}
	size := binary.BigEndian.Uint32(header)
	body := make([]byte, size)
	if err := s.conn.SetReadDeadline(time.Now().Add(handshakeTimeout)); err != nil {
		return nil, Error
	}
	if _, err := fullRead(s.conn, body); err != nil {
		return nil, classifyIOError(err)
	}
	return body, OK
}

func fullRead(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Close releases the underlying connection.
func (s *TCPSocket) Close() error {
	return s.conn.Close()
}
