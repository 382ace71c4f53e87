// Package config holds the ambient configuration shared by a video socket
// endpoint, adapted from internal/server.Config's plain-struct-plus-
// DefaultConfig pattern.
package config

import "time"

// Config holds the tunables a video socket endpoint is constructed from.
type Config struct {
	// TCPAddr is the handshake listen/dial address (e.g. ":5591" on the
	// server, "host:5591" on the client).
	TCPAddr string `json:"tcp_addr"`

	// UDPAddr is the local address to bind for RTP data.
	UDPAddr string `json:"udp_addr"`

	// CodecID selects the module.Registry entry NewServerVideoSocketFromConfig
	// offers via ListenDefault. Unused on the client side: the client always
	// adopts whatever codec id the server's handshake names.
	CodecID string `json:"codec_id"`

	// SSRC tags every packet a server endpoint sends, passed to the
	// module.Registry factory that builds its packetizer.
	SSRC uint32 `json:"ssrc"`

	// PluginDir is scanned for dynamically loaded codec modules at
	// startup, in addition to the built-ins, via module.Registry.LoadPlugins.
	PluginDir string `json:"plugin_dir,omitempty"`

	// HandshakeTimeout bounds the one blocking phase of the transport
	// layer (TCP accept/dial, handshake read/write), overriding
	// transport's default via transport.SetHandshakeTimeout.
	HandshakeTimeout time.Duration `json:"handshake_timeout"`

	// LogLevel is parsed with logrus.ParseLevel; an empty string keeps
	// logrus's default (Info).
	LogLevel string `json:"log_level,omitempty"`
}

// DefaultConfig returns a configuration with sensible defaults for a
// loopback test session.
func DefaultConfig() *Config {
	return &Config{
		TCPAddr:          ":5591",
		UDPAddr:          ":5590",
		CodecID:          "h264",
		SSRC:             1,
		HandshakeTimeout: 5 * time.Second,
		LogLevel:         "info",
	}
}
