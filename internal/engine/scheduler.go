package engine

import "time"

// pollClock decides when a poll cycle is due. Every heartbeat adds one tick
// worth of time to an accumulator; the cycle fires once the accumulator
// reaches the interval that matches the current appliance activity, and the
// accumulator resets to zero on fire.
type pollClock struct {
	tick        time.Duration
	onInterval  time.Duration
	offInterval time.Duration

	accumulated time.Duration
}

func newPollClock(tick, onInterval, offInterval time.Duration) *pollClock {
	return &pollClock{tick: tick, onInterval: onInterval, offInterval: offInterval}
}

// Advance records one heartbeat and reports whether a poll cycle is due.
// Switching between the on and off intervals takes effect immediately: an
// accumulator that already exceeds the shorter interval fires on the very
// next heartbeat after the switch.
func (c *pollClock) Advance(active bool) bool {
	c.accumulated += c.tick
	target := c.offInterval
	if active {
		target = c.onInterval
	}
	if c.accumulated < target {
		return false
	}
	c.accumulated = 0
	return true
}

// Reset clears the accumulator without firing.
func (c *pollClock) Reset() {
	c.accumulated = 0
}
