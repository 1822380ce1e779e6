package testfixtures

import (
	"sync"
	"time"
)

// Clock is a manually driven time source. Services under test take its
// NowFunc, so an entire sync cycle observes one frozen instant and time moves
// only when the test says so.
type Clock struct {
	mu  sync.RWMutex
	now time.Time
}

// NewClock returns a clock frozen at start. The zero value freezes it at the
// shared ReferenceTime so fixtures and clock agree by default.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{now: start}
}

// Now reports the frozen instant.
func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// NowFunc adapts the clock to the now-func dependency the services accept.
// A nil clock falls back to the real time source.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

// Set freezes the clock at t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the frozen instant forward by d and returns the new value,
// for stepping a test from one sync cycle to the next.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	moved := c.now
	c.mu.Unlock()
	return moved
}

// Current reads the clock in assertions that do not move time. It is Now
// under a name that makes the intent explicit.
func (c *Clock) Current() time.Time {
	return c.Now()
}
