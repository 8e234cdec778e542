package simulated

import (
	"fmt"
	"sync"
	"time"
)

// Clock supplies the ledger's notion of the current time.
type Clock interface {
	Now() time.Time
}

// SimClock is a manually driven clock. Time only moves forward.
type SimClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewSimClock returns a clock reading start, truncated to whole seconds
// because block timestamps have second resolution.
func NewSimClock(start time.Time) *SimClock {
	return &SimClock{now: start.Truncate(time.Second)}
}

// Now returns the current simulated time.
func (c *SimClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new time.
func (c *SimClock) Advance(d time.Duration) (time.Time, error) {
	if d < 0 {
		return time.Time{}, fmt.Errorf("cannot move clock backwards by %s", d)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now, nil
}

// Set moves the clock to t, which must not be before the current time.
func (c *SimClock) Set(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.Before(c.now) {
		return fmt.Errorf("cannot set clock to %s: before current time %s", t.Format(time.RFC3339), c.now.Format(time.RFC3339))
	}
	c.now = t
	return nil
}
