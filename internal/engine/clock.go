package engine

import "sync/atomic"

// TickSource hands out tick numbers. Clock is the production source and
// testutil.DeterministicClock the resettable test one.
type TickSource interface {
	Next() int64
	Current() int64
}

// Clock is a monotonic logical tick counter.
//
// Ticks number scheduler passes; they never relate to wall time, so a
// replayed scenario journals the same tick numbers.
//
// Thread-safety: Clock is safe for concurrent use, though only the
// scheduler goroutine normally advances it.
type Clock struct {
	tick atomic.Int64
}

// NewClock creates a clock whose first tick is 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock positioned at start. Used to continue a
// journaled run after its last recorded tick.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.tick.Store(start)
	return c
}

// Next advances the clock and returns the new tick.
func (c *Clock) Next() int64 {
	return c.tick.Add(1)
}

// Current returns the last tick handed out, or the start position.
func (c *Clock) Current() int64 {
	return c.tick.Load()
}
