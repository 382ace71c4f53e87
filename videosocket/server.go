package videosocket

import (
	"fmt"
	"net"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/martin-danhier/wvb-go/internal/config"
	"github.com/martin-danhier/wvb-go/module"
	"github.com/martin-danhier/wvb-go/rtp"
	"github.com/martin-danhier/wvb-go/transport"
)

// ServerVideoSocket is the sender-side endpoint: it binds a UDP port for
// data and a TCP port for the handshake, then feeds a Packetizer and drains
// it to the UDP socket on every SendPacket call.
type ServerVideoSocket struct {
	tcpListener net.Listener
	tcpConn     *transport.TCPSocket
	udp         *transport.UDPSocket

	clock      *rtp.Clock
	codecID    string
	packetizer rtp.Packetizer

	// registry and ssrc drive Listen's auto-wiring: once the handshake
	// negotiates codecID, a registered module's packetizer is installed
	// automatically instead of requiring the caller to call
	// SetPacketizer. defaultCodecID feeds ListenDefault, the
	// config-driven convenience entry point.
	registry       *module.Registry
	ssrc           uint32
	defaultCodecID string

	sessionID uuid.UUID
	log       *log.Entry
}

// NewServerVideoSocket binds the TCP and UDP ports. The socket is not ready
// to send until Listen completes the handshake with a peer.
func NewServerVideoSocket(tcpAddr, udpAddr string) (*ServerVideoSocket, error) {
	ln, err := transport.ListenTCP(tcpAddr)
	if err != nil {
		return nil, fmt.Errorf("server video socket: listen tcp: %w", err)
	}
	localUDP, err := net.ResolveUDPAddr("udp", udpAddr)
	if err != nil {
		ln.Close()
		return nil, fmt.Errorf("server video socket: resolve udp addr: %w", err)
	}
	udp, err := transport.NewUDPSocket(localUDP, nil)
	if err != nil {
		ln.Close()
		return nil, fmt.Errorf("server video socket: listen udp: %w", err)
	}
	sessionID := uuid.New()
	return &ServerVideoSocket{
		tcpListener: ln,
		udp:         udp,
		clock:       rtp.NewClock(),
		registry:    module.NewRegistry(),
		ssrc:        1,
		sessionID:   sessionID,
		log:         log.WithFields(log.Fields{"component": "server-video-socket", "session_id": sessionID}),
	}, nil
}

// NewServerVideoSocketFromConfig applies cfg.LogLevel before binding
// cfg.TCPAddr/cfg.UDPAddr, the construction path used by the host process's
// entry point. It also overrides the transport handshake timeout, loads any
// plugins found under cfg.PluginDir, sets the SSRC new packetizers are
// created with, and records cfg.CodecID as the default for ListenDefault.
func NewServerVideoSocketFromConfig(cfg *config.Config) (*ServerVideoSocket, error) {
	applyLogLevel(cfg.LogLevel)
	if cfg.HandshakeTimeout > 0 {
		transport.SetHandshakeTimeout(cfg.HandshakeTimeout)
	}
	s, err := NewServerVideoSocket(cfg.TCPAddr, cfg.UDPAddr)
	if err != nil {
		return nil, err
	}
	if cfg.SSRC != 0 {
		s.SetSSRC(cfg.SSRC)
	}
	if cfg.PluginDir != "" {
		if err := s.registry.LoadPlugins(cfg.PluginDir); err != nil {
			s.Close()
			return nil, fmt.Errorf("server video socket: load plugins: %w", err)
		}
	}
	s.defaultCodecID = cfg.CodecID
	return s, nil
}

// SessionID uniquely identifies this socket instance for log correlation
// across the handshake and data-path lifetime.
func (s *ServerVideoSocket) SessionID() uuid.UUID {
	return s.sessionID
}

// Listen blocks, bounded by the transport handshake timeout, accepting one
// client and exchanging the NTP epoch and codec id. peerUDPAddr is the
// address SendPacket will subsequently write datagrams to. Once the
// handshake completes, codecID is looked up in the registry: a match
// auto-installs that module's packetizer (built with this socket's SSRC),
// and no match leaves the socket in opaque passthrough mode, preserving
// compatibility with callers exercising a codec the registry doesn't know.
func (s *ServerVideoSocket) Listen(peerUDPAddr *net.UDPAddr, codecID string) error {
	conn, err := transport.AcceptTCP(s.tcpListener)
	if err != nil {
		return fmt.Errorf("server video socket: accept: %w", err)
	}
	if err := serverHandshake(conn, s.clock, codecID); err != nil {
		conn.Close()
		return fmt.Errorf("server video socket: handshake: %w", err)
	}
	s.tcpConn = conn
	s.codecID = codecID
	s.udp.SetPeer(peerUDPAddr)

	if m, ok := s.registry.Lookup(codecID); ok {
		s.packetizer = m.CreatePacketizer(s.ssrc)
	}

	s.log.WithFields(log.Fields{"peer": peerUDPAddr.String(), "codec": codecID}).Info("video socket handshake complete")
	return nil
}

// ListenDefault is Listen's config-driven convenience form: it negotiates
// the codec id configured as defaultCodecID, e.g. via
// NewServerVideoSocketFromConfig's cfg.CodecID.
func (s *ServerVideoSocket) ListenDefault(peerUDPAddr *net.UDPAddr) error {
	return s.Listen(peerUDPAddr, s.defaultCodecID)
}

// SetPacketizer installs the codec's packetizer, overriding whatever Listen
// auto-installed from the registry. A nil packetizer (used in tests for
// opaque binary passthrough) causes SendPacket to write raw frame_bytes as a
// single datagram, matching the "pass-through for opaque binary streams in
// tests" behavior described for the client side.
func (s *ServerVideoSocket) SetPacketizer(p rtp.Packetizer) {
	s.packetizer = p
}

// SetSSRC sets the SSRC that Listen passes to the registry when building a
// new packetizer. Must be called before Listen to take effect.
func (s *ServerVideoSocket) SetSSRC(ssrc uint32) {
	s.ssrc = ssrc
}

// SetRegistry overrides the default module.Registry, letting a caller
// supply one pre-populated with extra plugins. Must be called before
// Listen.
func (s *ServerVideoSocket) SetRegistry(r *module.Registry) {
	s.registry = r
}

// Clock returns the RTP clock constructed with the socket, whose NTP epoch
// Listen sends to the client during the handshake.
func (s *ServerVideoSocket) Clock() *rtp.Clock {
	return s.clock
}

// SendPacket feeds one frame (or a fragment of one, when last is false) to
// the packetizer and drains every resulting RTP packet to the UDP socket.
func (s *ServerVideoSocket) SendPacket(
	frameBytes []byte,
	frameID uint32,
	endOfStream bool,
	samplingTS, poseTS uint32,
	last, saveFrame bool,
) error {
	if s.packetizer == nil {
		result := s.udp.Send(frameBytes)
		if result == transport.Error {
			return fmt.Errorf("server video socket: send passthrough packet failed")
		}
		return nil
	}

	if err := s.packetizer.AddFrame(frameBytes, frameID, endOfStream, samplingTS, poseTS, saveFrame, last); err != nil {
		return fmt.Errorf("server video socket: add frame: %w", err)
	}

	for {
		pkt, ok := s.packetizer.CreateNextPacket()
		if !ok {
			return nil
		}
		if result := s.udp.Send(pkt); result == transport.Error {
			s.log.Warn("dropping RTP packet: udp send error")
		}
	}
}

// Close releases the TCP and UDP sockets.
func (s *ServerVideoSocket) Close() error {
	if s.tcpConn != nil {
		s.tcpConn.Close()
	}
	s.tcpListener.Close()
	return s.udp.Close()
}
