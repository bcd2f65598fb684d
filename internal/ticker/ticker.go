// Package ticker implements the client-side tick manager: a u16 tick
// counter seeded from the server's handshake response, advanced locally
// at a fixed interval, and nudged by drift correction from every
// incoming data packet's authoritative server tick without ever moving
// backward or jumping more than half an interval at a time.
package ticker

import (
	"time"

	"github.com/cBournhonesque/naia-go/internal/seqnum"
)

// Ticker is the client's local tick clock.
type Ticker struct {
	interval time.Duration

	tick       uint16
	lastTickAt time.Time
}

// New returns a Ticker advancing at interval, not yet seeded.
func New(interval time.Duration) *Ticker {
	return &Ticker{interval: interval}
}

// Seed sets the tick counter to serverTick and resets the local advance
// clock to now. Called once, from the handshake's ServerChallengeResponse.
func (t *Ticker) Seed(serverTick uint16, now time.Time) {
	t.tick = serverTick
	t.lastTickAt = now
}

// Tick returns the current local tick value.
func (t *Ticker) Tick() uint16 {
	return t.tick
}

// Advance moves the tick forward by as many whole intervals as have
// elapsed since the last advance, returning the number of ticks
// consumed. Safe to call every frame; a no-op if less than one interval
// has elapsed.
func (t *Ticker) Advance(now time.Time) int {
	if t.interval <= 0 || t.lastTickAt.IsZero() {
		return 0
	}

	elapsed := now.Sub(t.lastTickAt)
	n := int(elapsed / t.interval)
	if n <= 0 {
		return 0
	}

	t.tick += uint16(n) //nolint:gosec // intentional wraparound
	t.lastTickAt = t.lastTickAt.Add(time.Duration(n) * t.interval)
	return n
}

// Fraction returns how far into the current interval now falls, in
// [0,1), for render interpolation between the previous and next tick.
func (t *Ticker) Fraction(now time.Time) float64 {
	if t.interval <= 0 || t.lastTickAt.IsZero() {
		return 0
	}
	elapsed := now.Sub(t.lastTickAt)
	if elapsed <= 0 {
		return 0
	}
	f := float64(elapsed) / float64(t.interval)
	if f >= 1 {
		return 0 // Advance should have consumed this; clamp defensively.
	}
	return f
}

// ApplyDrift nudges the next local tick advance toward
// authoritativeServerTick carried on an incoming data packet. If the
// client is behind, the next tick is scheduled early (by up to half an
// interval); if ahead, it is scheduled late (by up to half an interval).
// The tick counter itself never moves backward: only the timing of the
// next Advance is adjusted.
func (t *Ticker) ApplyDrift(authoritativeServerTick uint16, now time.Time) {
	if t.interval <= 0 || t.lastTickAt.IsZero() {
		return
	}

	diff := seqnum.WrappingDiff(authoritativeServerTick, t.tick)
	if diff == 0 {
		return
	}

	maxShift := t.interval / 2
	var shift time.Duration
	if diff > 0 {
		// Client is behind: pull the next tick earlier.
		shift = -maxShift
	} else {
		// Client is ahead: push the next tick later.
		shift = maxShift
	}

	// lastTickAt never moves past now, which bounds the ahead case's push.
	adjusted := t.lastTickAt.Add(shift)
	if adjusted.After(now) {
		adjusted = now
	}
	t.lastTickAt = adjusted
}
