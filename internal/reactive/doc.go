// Package reactive implements dependency tracking for quill view templates.
//
// The package has two halves that reference each other and therefore live
// together:
//
//   - Scope: a tracking scope records which cells were read while it was the
//     active recorder, owns cleanup actions, owns cells created through it, and
//     carries the hook slot table of the template instance it belongs to.
//   - Store: an arena of reactive cells addressed by (index, generation)
//     handles. Reading a cell while a scope is active subscribes that scope;
//     writing a cell marks every subscribed scope dirty and drops the
//     subscriptions, so scopes must read again to re-subscribe.
//
// ARCHITECTURE:
//
// Single Thread of Control:
// A Store and all of its scopes are driven from one goroutine (the scheduler
// pass). Nothing here is locked. Cross-goroutine writes go through the
// engine's command queue, which applies them between passes.
//
// One Active Recorder:
// Only one scope may record reads at a time. Begin() on a second scope while
// another is active fails with ErrNestedScope. Nested template evaluation
// suspends the parent recorder (Suspend/Resume) rather than nesting.
//
// Dirty Set:
// MarkDirty never triggers work. The Store keeps the set of dirty scopes; the
// scheduler snapshots it once per iteration.
package reactive
