package videosocket

import (
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/martin-danhier/wvb-go/internal/config"
	"github.com/martin-danhier/wvb-go/ipc"
	"github.com/martin-danhier/wvb-go/module"
	"github.com/martin-danhier/wvb-go/rtp"
	"github.com/martin-danhier/wvb-go/transport"
)

// ClientVideoSocket is the receiver-side endpoint: it connects to a server,
// mirrors the handshake, and on every Update call non-blockingly drains the
// UDP socket into the installed depacketizer.
type ClientVideoSocket struct {
	tcp *transport.TCPSocket
	udp *transport.UDPSocket

	clock        *rtp.Clock
	codecID      string
	depacketizer rtp.Depacketizer

	// registry drives Connect's auto-wiring: once the handshake learns
	// codecID from the server, a registered module's depacketizer is
	// installed automatically instead of requiring the caller to call
	// SetDepacketizer.
	registry *module.Registry

	// passthrough holds the most recently received raw datagram when no
	// depacketizer is installed, mirroring original_source's
	// "set_depacketizer(nullptr)" opaque-binary test mode.
	passthrough []byte
	hasRaw      bool

	recvBuf []byte

	// stopEvent, when set, lets an external coordinator (e.g. the VR
	// driver side of the IPC boundary) request that Update stop pulling
	// new datagrams without tearing down the socket.
	stopEvent ipc.Event

	sessionID uuid.UUID
	log       *log.Entry
}

// NewClientVideoSocket binds a local UDP port for data reception. The
// socket is not ready until Connect completes the handshake.
func NewClientVideoSocket(localUDPAddr string) (*ClientVideoSocket, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", localUDPAddr)
	if err != nil {
		return nil, fmt.Errorf("client video socket: resolve udp addr: %w", err)
	}
	udp, err := transport.NewUDPSocket(udpAddr, nil)
	if err != nil {
		return nil, fmt.Errorf("client video socket: listen udp: %w", err)
	}
	sessionID := uuid.New()
	return &ClientVideoSocket{
		udp:       udp,
		registry:  module.NewRegistry(),
		recvBuf:   make([]byte, rtp.MTU),
		sessionID: sessionID,
		log:       log.WithFields(log.Fields{"component": "client-video-socket", "session_id": sessionID}),
	}, nil
}

// NewClientVideoSocketFromConfig applies cfg.LogLevel before binding
// cfg.UDPAddr, the construction path used by the headset process's entry
// point. It also overrides the transport handshake timeout and loads any
// plugins found under cfg.PluginDir.
func NewClientVideoSocketFromConfig(cfg *config.Config) (*ClientVideoSocket, error) {
	applyLogLevel(cfg.LogLevel)
	if cfg.HandshakeTimeout > 0 {
		transport.SetHandshakeTimeout(cfg.HandshakeTimeout)
	}
	c, err := NewClientVideoSocket(cfg.UDPAddr)
	if err != nil {
		return nil, err
	}
	if cfg.PluginDir != "" {
		if err := c.registry.LoadPlugins(cfg.PluginDir); err != nil {
			c.Close()
			return nil, fmt.Errorf("client video socket: load plugins: %w", err)
		}
	}
	return c, nil
}

// SessionID uniquely identifies this socket instance for log correlation
// across the handshake and data-path lifetime.
func (c *ClientVideoSocket) SessionID() uuid.UUID {
	return c.sessionID
}

// Connect dials the server's TCP handshake port, blocking up to the
// transport handshake timeout, and aligns this socket's RTP clock to the
// server's. Once the negotiated codecID is known, it is looked up in the
// registry: a match auto-installs that module's depacketizer, and no match
// leaves the socket in opaque passthrough mode.
func (c *ClientVideoSocket) Connect(serverTCPAddr string, serverUDPAddr *net.UDPAddr) error {
	conn, err := transport.DialTCP(serverTCPAddr)
	if err != nil {
		return fmt.Errorf("client video socket: dial: %w", err)
	}
	clock, codecID, err := clientHandshake(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("client video socket: handshake: %w", err)
	}
	c.tcp = conn
	c.clock = clock
	c.codecID = codecID
	c.udp.SetPeer(serverUDPAddr)

	if m, ok := c.registry.Lookup(codecID); ok {
		c.depacketizer = m.CreateDepacketizer()
	}

	c.log.WithFields(log.Fields{"server": serverTCPAddr, "codec": codecID}).Info("video socket handshake complete")
	return nil
}

// SetDepacketizer installs the codec's depacketizer, overriding whatever
// Connect auto-installed from the registry. A nil depacketizer switches
// Update into opaque-binary passthrough mode.
func (c *ClientVideoSocket) SetDepacketizer(d rtp.Depacketizer) {
	c.depacketizer = d
}

// SetRegistry overrides the default module.Registry, letting a caller
// supply one pre-populated with extra plugins. Must be called before
// Connect.
func (c *ClientVideoSocket) SetRegistry(r *module.Registry) {
	c.registry = r
}

// SetStopEvent installs a cross-process stop signal: once set, Update
// becomes a no-op until the event is replaced or cleared, letting an
// external coordinator pause reception without closing the socket.
func (c *ClientVideoSocket) SetStopEvent(e ipc.Event) {
	c.stopEvent = e
}

// Clock returns the RTP clock aligned to the server's during Connect.
func (c *ClientVideoSocket) Clock() *rtp.Clock {
	return c.clock
}

// CodecID returns the codec identifier learned during the handshake.
func (c *ClientVideoSocket) CodecID() string {
	return c.codecID
}

// Update drains every datagram currently queued on the UDP socket without
// blocking, handing each to the depacketizer (or staging it for
// passthrough retrieval). Call this once per poll tick from the caller's
// own thread.
func (c *ClientVideoSocket) Update() {
	if c.stopEvent != nil && c.stopEvent.Wait(0) {
		return
	}
	for {
		n, result := c.udp.Receive(c.recvBuf)
		switch result {
		case transport.OK:
			c.handleDatagram(c.recvBuf[:n])
		case transport.WouldBlock:
			return
		case transport.Closed, transport.Error:
			return
		}
	}
}

func (c *ClientVideoSocket) handleDatagram(data []byte) {
	if c.depacketizer == nil {
		cp := make([]byte, len(data))
		copy(cp, data)
		c.passthrough = cp
		c.hasRaw = true
		return
	}
	if err := c.depacketizer.AddPacket(data); err != nil {
		c.log.WithError(err).Debug("depacketizer rejected packet")
	}
}

// ReceivedPacket is the thin delegate to the depacketizer's
// ReceiveFrameData/passthrough path described for ClientVideoSocket.
type ReceivedPacket struct {
	Data                 []byte
	FrameID              uint32
	EndOfStream          bool
	SamplingTimestamp    uint32
	PoseTimestamp        uint32
	LastPacketReceivedAt time.Time
	SaveFrame            bool
}

// ReceivePacket returns the most recently completed frame, if any, without
// blocking.
func (c *ClientVideoSocket) ReceivePacket() (*ReceivedPacket, bool) {
	if c.depacketizer == nil {
		if !c.hasRaw {
			return nil, false
		}
		return &ReceivedPacket{Data: c.passthrough, LastPacketReceivedAt: time.Now()}, true
	}

	frame, ok := c.depacketizer.ReceiveFrameData()
	if !ok {
		return nil, false
	}
	return &ReceivedPacket{
		Data:                 frame.Data,
		FrameID:              frame.FrameID,
		EndOfStream:          frame.EndOfStream,
		SamplingTimestamp:    frame.SamplingTimestamp,
		PoseTimestamp:        frame.PoseTimestamp,
		LastPacketReceivedAt: frame.LastPacketReceivedAt,
		SaveFrame:            frame.SaveFrame,
	}, true
}

// ReleaseFrameData ends the borrow scope opened by ReceivePacket.
func (c *ClientVideoSocket) ReleaseFrameData() {
	if c.depacketizer == nil {
		c.hasRaw = false
		c.passthrough = nil
		return
	}
	c.depacketizer.ReleaseFrameData()
}

// Close releases the TCP and UDP sockets.
func (c *ClientVideoSocket) Close() error {
	if c.tcp != nil {
		c.tcp.Close()
	}
	return c.udp.Close()
}
