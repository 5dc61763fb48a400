// Package view implements the view abstraction and the template reconciler.
//
// A View is a value that knows how to build display nodes in the world, how
// to update a previous build of the same kind in place, and how to tear that
// build down again. Views are cheap, immutable descriptions; everything a
// build produced lives in its opaque State.
//
// ARCHITECTURE:
//
//	Template[P] ── create(cx, props) ──► View ── Build/Rebuild ──► State
//	     │                                              │
//	     └── Instance (scope, hooks, slot{View, State}) ┘
//
// Each Template position owns one Instance. The instance evaluates its
// create function inside its reactive.Scope so that every Mutable read is
// recorded; when a recorded cell is written the scope becomes dirty and the
// scheduler calls Instance.React, which re-evaluates and patches the
// previous State in place.
//
// Output changes propagate upward through Attach: the nearest enclosing
// element re-links its children and stops the walk; thin wrappers
// (fragments, conditionals, templates) report the change to their parent.
//
// Every container stores its children as (View, State) slots. A slot is
// rebuilt in place only when the next View has the same identity (Go type,
// and for templates the template name and create function). Otherwise the
// old State is razed before the new View is built. Outside a Dynamic
// wrapper such a replacement is reported as a TYPE_MISMATCH instance error.
//
// Thread-safety: none. All views, instances and hooks run on the
// scheduler's thread of control.
package view
