package crypto

import (
	"sync"
	"time"
)

// Layout of the stamp attribute on synthetic chat messages.
const STAMP_LAYOUT = "2006-01-02 15:04:05.000"

// Produces message stamps that never go backwards,
// even when the wall clock is adjusted.
type StampClock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func NewStampClock() *StampClock {
	return &StampClock{now: time.Now}
}

// Returns the next stamp: one second ahead of the wall clock in UTC,
// or the previous stamp if the clock went backwards.
func (c *StampClock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now().UTC().Add(time.Second).Truncate(time.Millisecond)
	if t.Before(c.last) {
		t = c.last
	}
	c.last = t
	return t
}

// Returns the next stamp formatted for the wire.
func (c *StampClock) NextString() string {
	return c.Next().Format(STAMP_LAYOUT)
}
