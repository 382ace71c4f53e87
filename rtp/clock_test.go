package rtp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClockTicksMonotonic(t *testing.T) {
	c := NewClock()
	first := c.Now()
	time.Sleep(2 * time.Millisecond)
	second := c.Now()
	assert.Greater(t, second, first)
}

func TestClockTickRateMatchesOneSecond(t *testing.T) {
	c := NewClock()
	start := c.Now()
	time.Sleep(50 * time.Millisecond)
	elapsedTicks := c.Now() - start

	// 50ms at 90kHz is 4500 ticks; allow generous scheduling slack.
	assert.InDelta(t, 4500, elapsedTicks, 1000)
}

func TestClockEpochsAreFixedAtConstruction(t *testing.T) {
	c := NewClock()
	wall1 := c.WallEpoch()
	ntp1 := c.NTPEpoch()
	time.Sleep(time.Millisecond)
	assert.Equal(t, wall1, c.WallEpoch())
	assert.Equal(t, ntp1, c.NTPEpoch())
}

func TestClockFromPeerNTPEpochAgreesWithinOneTick(t *testing.T) {
	reference := NewClock()
	peer := NewClockFromPeerNTPEpoch(reference.NTPEpoch())

	a := reference.Now()
	b := peer.Now()

	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	// Allow a small slack beyond the exact one-tick bound for the two
	// Now() calls not being perfectly simultaneous.
	assert.LessOrEqual(t, diff, int64(5))
}

func TestNTPRoundTripPreservesInstant(t *testing.T) {
	now := time.Now()
	ntp := ntpFromTime(now)
	back := ntpToTime(ntp)

	delta := now.Sub(back)
	if delta < 0 {
		delta = -delta
	}
	require.Less(t, delta, time.Microsecond)
}

func TestTicksFromDurationAccurateOver24Hours(t *testing.T) {
	d := 24 * time.Hour
	ticks := ticksFromDuration(d)

	expected := int64(24 * 60 * 60 * TicksPerSecond)
	assert.Equal(t, expected, ticks)
}
