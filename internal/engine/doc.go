// Package engine drives reactive views to a quiescent state once per tick.
//
// ARCHITECTURE:
//
//	host commands ──Enqueue──▶ commandQueue ──▶ Scheduler.Tick
//	                                               │
//	                        ┌──────────────────────┘
//	                        ▼
//	             drain commands (apply to store)
//	                        │
//	             ┌──▶ snapshot dirty scopes (depth, then id)
//	             │          │
//	             │   React each still-dirty scope
//	             │          │
//	             │   DivergenceGuard.Observe(before, after)
//	             └──────────┘ until no scope is dirty
//	                        │
//	                        ▼
//	                 journal the pass (optional)
//
// CRITICAL PATTERNS:
//
// Single Writer
//   - The reactive store and the world are touched only by the goroutine
//     calling Tick (or Run). Enqueue is the only cross-goroutine entry point.
//
// Snapshot Per Iteration
//   - Each iteration re-runs the dirty scopes present when it started, in
//     depth order. Scopes dirtied during the iteration wait for the next one,
//     and a scope disposed or cleaned by an earlier re-run is skipped.
//
// Divergence Limit
//   - A pass that does not reduce the dirty count increments a counter; any
//     strict decrease resets it. Exceeding the limit fails the tick with a
//     DivergenceError naming the hottest scopes.
//
// Logical Time
//   - Ticks come from a monotonic logical clock, never wall time, so a
//     journaled run of the same scenario is reproducible.
package engine
