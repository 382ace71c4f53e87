// Package videosocket composes the rtp packetizer/depacketizer pair with
// the transport layer into the two endpoints of a video stream: the host
// (server) that captures and sends frames, and the headset (client) that
// receives and decodes them. Grounded on original_source/tests/video_socket.cpp's
// ServerVideoSocket/ClientVideoSocket pairing and on
// moonlight-common-go/video.Stream's Start/receiveLoop split.
package videosocket

import (
	"encoding/binary"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/martin-danhier/wvb-go/rtp"
	"github.com/martin-danhier/wvb-go/transport"
)

const maxCodecIDLen = 255

// applyLogLevel parses level with logrus.ParseLevel and installs it as the
// package-wide level; an empty or unparseable level leaves logrus's current
// level untouched, matching internal/config.Config's "empty keeps default"
// contract.
func applyLogLevel(level string) {
	if level == "" {
		return
	}
	parsed, err := log.ParseLevel(level)
	if err != nil {
		log.WithField("log_level", level).Warn("ignoring unparseable log level")
		return
	}
	log.SetLevel(parsed)
}

// writeHandshake serializes the 8-byte big-endian NTP epoch followed by a
// length-prefixed codec identifier, per spec.md §6's handshake wire format.
func writeHandshake(conn *transport.TCPSocket, ntpEpoch uint64, codecID string) error {
	if len(codecID) > maxCodecIDLen {
		return fmt.Errorf("codec id %q exceeds %d bytes", codecID, maxCodecIDLen)
	}
	buf := make([]byte, 8+1+len(codecID))
	binary.BigEndian.PutUint64(buf[0:8], ntpEpoch)
	buf[8] = byte(len(codecID))
	copy(buf[9:], codecID)
	return conn.WriteFull(buf)
}

// readHandshake is the inverse of writeHandshake.
func readHandshake(conn *transport.TCPSocket) (ntpEpoch uint64, codecID string, err error) {
	head := make([]byte, 9)
	if err := conn.ReadFull(head); err != nil {
		return 0, "", fmt.Errorf("read handshake header: %w", err)
	}
	ntpEpoch = binary.BigEndian.Uint64(head[0:8])
	n := int(head[8])
	idBuf := make([]byte, n)
	if n > 0 {
		if err := conn.ReadFull(idBuf); err != nil {
			return 0, "", fmt.Errorf("read handshake codec id: %w", err)
		}
	}
	return ntpEpoch, string(idBuf), nil
}

// serverHandshake performs the server side of the exchange: send our clock
// and codec, then read back the client's mirrored copy as acknowledgment.
// Grounded on original_source/tests/video_socket.cpp's
// "server writes settings, client echoes them back" sequencing.
func serverHandshake(conn *transport.TCPSocket, clock *rtp.Clock, codecID string) error {
	if err := writeHandshake(conn, clock.NTPEpoch(), codecID); err != nil {
		return fmt.Errorf("server handshake write: %w", err)
	}
	mirroredEpoch, mirroredCodec, err := readHandshake(conn)
	if err != nil {
		return fmt.Errorf("server handshake read ack: %w", err)
	}
	if mirroredEpoch != clock.NTPEpoch() || mirroredCodec != codecID {
		return fmt.Errorf("%w: client echoed mismatched handshake", ErrHandshakeMismatch)
	}
	return nil
}

// clientHandshake performs the client side: read the server's clock and
// codec, build a local clock aligned to it, then mirror the same values
// back as acknowledgment.
func clientHandshake(conn *transport.TCPSocket) (*rtp.Clock, string, error) {
	ntpEpoch, codecID, err := readHandshake(conn)
	if err != nil {
		return nil, "", fmt.Errorf("client handshake read: %w", err)
	}
	clock := rtp.NewClockFromPeerNTPEpoch(ntpEpoch)
	if err := writeHandshake(conn, ntpEpoch, codecID); err != nil {
		return nil, "", fmt.Errorf("client handshake mirror write: %w", err)
	}
	return clock, codecID, nil
}
