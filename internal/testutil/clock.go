// Package testutil provides shared test collaborators: a deterministic
// clock and small waiting helpers, in the style of the teacher's
// testutil.RuntimeAdapter (testutil/adapter.go) — a thin seam that lets
// the same test logic run against either real or fake timing.
package testutil

import (
	"sync"
	"time"
)

// Clock is a manually-advanced clock for deterministic queue/dispatch
// tests. Safe for concurrent use.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a Clock starting at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now implements the func() time.Time shape every clock-consuming
// constructor in this module accepts.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new time.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Set pins the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
