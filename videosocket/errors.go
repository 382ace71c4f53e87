package videosocket

import "errors"

// ErrHandshakeMismatch is returned when a mirrored handshake does not echo
// back the exact values sent, indicating a corrupted or foreign peer.
var ErrHandshakeMismatch = errors.New("videosocket: handshake mismatch")
