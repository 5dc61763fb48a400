// Package store provides SQLite-backed durable storage for the pass journal.
//
// The journal is append-only and records, per scheduler run:
//   - Runs: one row per scheduler lifetime with its divergence limits
//   - Passes: one row per tick (iterations, convergence, dirty-count trace)
//   - Reactions: every scope re-run within a pass, in execution order
//   - Instance Errors: errors surfaced to the scheduler during a pass
//
// # Critical Patterns
//
// Logical Time Only
//   - Ordering uses run seq, tick, iteration and seq INTEGER columns
//   - No wall-clock timestamps, so two runs of the same scenario journal
//     identically
//
// Deterministic Query Results
//   - Every read has an explicit ORDER BY
//   - Empty results are empty slices, never nil
//
// Atomic Passes
//   - WritePass inserts the pass and its child rows in one transaction
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
