package engine

import (
	"fmt"
	"strings"
)

// DefaultMaxDivergences is the default number of non-decreasing passes
// tolerated within one tick.
const DefaultMaxDivergences = 32

// DivergenceGuard counts passes that failed to shrink the dirty set.
//
// One guard lives for one tick. After every pass the scheduler calls
// Observe with the dirty counts taken before and after it. A pass makes
// progress when the after count is strictly below the lowest before count of
// the last window passes; with the default window of 1 that is a plain
// strict decrease. Progress resets the counter to zero; anything else
// increments it, and exceeding the limit fails the tick.
//
// The guard bounds oscillation but does not prevent it: a cycle that keeps
// making progress every few passes within the window never trips it.
type DivergenceGuard struct {
	limit   int
	window  int
	befores []int // last window before counts, oldest first
	current int
}

// NewDivergenceGuard creates a guard. A window below 1 is treated as 1.
func NewDivergenceGuard(limit, window int) *DivergenceGuard {
	if window < 1 {
		window = 1
	}
	return &DivergenceGuard{
		limit:   limit,
		window:  window,
		befores: make([]int, 0, window),
	}
}

// Observe records one pass. Returns a *DivergenceError once the counter
// exceeds the limit; the caller fills in the tick context.
func (g *DivergenceGuard) Observe(before, after int) error {
	if len(g.befores) == g.window {
		copy(g.befores, g.befores[1:])
		g.befores = g.befores[:g.window-1]
	}
	g.befores = append(g.befores, before)

	floor := before
	for _, b := range g.befores {
		floor = min(floor, b)
	}

	if after < floor {
		g.current = 0
		return nil
	}

	g.current++
	if g.current > g.limit {
		return &DivergenceError{
			Divergences: g.current,
			Limit:       g.limit,
			Dirty:       after,
		}
	}
	return nil
}

// Current returns the consecutive non-progress count.
func (g *DivergenceGuard) Current() int {
	return g.current
}

// Limit returns the configured limit.
func (g *DivergenceGuard) Limit() int {
	return g.limit
}

// Reset clears the counter and window history.
func (g *DivergenceGuard) Reset() {
	g.current = 0
	g.befores = g.befores[:0]
}

// DivergenceError is returned when a tick exceeds its divergence limit.
//
// The tick is abandoned with scopes still dirty. HotScopes lists the scopes
// re-run most often during the tick, hottest first, to point at the cycle.
type DivergenceError struct {
	Tick        int64
	Iterations  int
	Divergences int
	Limit       int
	Dirty       int
	HotScopes   []HotScope
}

// Error implements the error interface.
func (e *DivergenceError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "tick %d diverged: %d non-decreasing passes > %d limit after %d iterations (%d scopes dirty)",
		e.Tick, e.Divergences, e.Limit, e.Iterations, e.Dirty)
	if len(e.HotScopes) > 0 {
		b.WriteString("; hottest:")
		for _, h := range e.HotScopes {
			fmt.Fprintf(&b, " %s", h)
		}
	}
	return b.String()
}

// Code returns the runtime error category.
func (e *DivergenceError) Code() RuntimeErrorCode {
	return ErrCodeDivergenceExceeded
}
