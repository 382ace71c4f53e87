package transport

import "errors"

// ErrHandshakeTimeout is returned when the one blocking phase of the
// transport layer (TCP accept/dial, handshake read/write) exceeds
// handshakeTimeout.
var ErrHandshakeTimeout = errors.New("transport: handshake timed out")
