// Package testutil provides shared helpers for tests.
package testutil

import (
	"sync"
	"time"
)

// WallClock provides a thread-safe deterministic time source for tests.
//
// Time never moves on its own: Now returns the same instant until the test
// advances it. Wire its Now method wherever production code accepts a
// `func() time.Time` clock to make timestamps and mark expiry deterministic.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type WallClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewWallClock creates a clock frozen at the given instant.
func NewWallClock(start time.Time) *WallClock {
	return &WallClock{now: start}
}

// Now returns the current instant without advancing.
func (c *WallClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *WallClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set jumps the clock to the given instant.
//
// Used for test reuse. Set may move time backwards.
func (c *WallClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
