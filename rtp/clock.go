// Package rtp implements the RTP wire format, clock, packetizer and
// depacketizer used by the video transport core.
package rtp

import "time"

// TicksPerSecond is the RTP clock rate used throughout the video pipeline.
const TicksPerSecond = 90000

// ntpEpochOffset is the number of seconds between the NTP epoch (1 Jan 1900)
// and the Unix epoch (1 Jan 1970).
const ntpEpochOffset = 2208988800

// Clock is a monotonic time source ticking at TicksPerSecond, aligned to a
// steady (monotonic) epoch, a wall-clock epoch and an NTP epoch. All three
// epochs are fixed at construction and never mutate.
type Clock struct {
	epoch    time.Time
	ntpEpoch uint64
}

// NewClock latches the current steady and wall time as a pair of coincident
// readings and derives the NTP epoch from the wall-clock reading.
func NewClock() *Clock {
	now := time.Now()
	return &Clock{
		epoch:    now,
		ntpEpoch: ntpFromTime(now),
	}
}

// NewClockFromPeerNTPEpoch reconstructs a peer's steady epoch from a 64-bit
// NTP timestamp received over the wire, aligning this clock's tick space to
// the peer's to within one tick (assuming both hosts' wall clocks already
// agree, e.g. via system NTP).
func NewClockFromPeerNTPEpoch(peerNTPEpoch uint64) *Clock {
	now := time.Now()
	peerWall := ntpToTime(peerNTPEpoch)

	// now carries a monotonic reading; peerWall (built from time.Unix) does
	// not, so Sub falls back to wall-clock comparison per the time package's
	// documented semantics. Adding that offset back onto now keeps the
	// monotonic reading alive while shifting the wall component to line up
	// with the peer's epoch instant.
	offset := peerWall.Sub(now)

	return &Clock{
		epoch:    now.Add(offset),
		ntpEpoch: peerNTPEpoch,
	}
}

// Now returns the number of 90kHz ticks elapsed since the clock's epoch.
// The conversion multiplies before dividing so the result stays accurate to
// within one tick over a 24 hour span, rather than truncating the rational
// 10^9/90000 ns-per-tick divisor up front.
func (c *Clock) Now() int64 {
	return ticksFromDuration(time.Since(c.epoch))
}

// SteadyEpoch returns the monotonic-clock instant the clock was constructed
// against.
func (c *Clock) SteadyEpoch() time.Time {
	return c.epoch
}

// WallEpoch returns the wall-clock instant coincident with SteadyEpoch,
// stripped of its monotonic reading.
func (c *Clock) WallEpoch() time.Time {
	return c.epoch.Round(0)
}

// NTPEpoch returns the 64-bit NTP timestamp (seconds since 1900 in the high
// 32 bits, fractional seconds in the low 32 bits) for the handshake wire
// format described in spec.md §6.
func (c *Clock) NTPEpoch() uint64 {
	return c.ntpEpoch
}

func ticksFromDuration(d time.Duration) int64 {
	return d.Nanoseconds() * TicksPerSecond / int64(time.Second)
}

// ntpFromTime converts a wall-clock instant into the 64-bit NTP timestamp
// format, following the seconds/fraction split used by
// facebook-time's protocol/ntp.Time, collapsed into a single 64-bit value.
func ntpFromTime(t time.Time) uint64 {
	seconds := uint64(t.Unix()+ntpEpochOffset) & 0xFFFFFFFF
	fraction := (uint64(t.Nanosecond()) << 32) / uint64(time.Second)
	return seconds<<32 | fraction
}

// ntpToTime is the inverse of ntpFromTime.
func ntpToTime(ntp uint64) time.Time {
	seconds := int64(ntp>>32) - ntpEpochOffset
	fraction := ntp & 0xFFFFFFFF
	nanos := int64((fraction * uint64(time.Second)) >> 32)
	return time.Unix(seconds, nanos)
}
