package reactive

import (
	"slices"
)

// ScopeID identifies a tracking scope within its Store.
type ScopeID uint64

// Reactor is the owner of a scope that the scheduler re-runs when the scope
// is dirty. It returns true if the owner's output nodes changed.
type Reactor interface {
	React() bool
}

// Scope records the cells read during one evaluation of a template
// instance, the cleanups registered during that evaluation, the cells the
// instance created, and the instance's hook slots.
//
// A scope lives as long as its template instance. Each re-evaluation starts
// a fresh tracking generation via Reset: cleanups run and dependencies are
// dropped, while hooks and owned cells carry over.
type Scope struct {
	id         ScopeID
	store      *Store
	parent     *Scope
	children   []*Scope
	depth      int
	label      string
	dirty      bool
	disposed   bool
	generation int
	deps       map[CellID]struct{}
	cleanups   []func()
	finalizers []func()
	owned      []CellID
	hooks      hookTable
	reactor    Reactor
}

// ID returns the scope ID.
func (sc *Scope) ID() ScopeID { return sc.id }

// Parent returns the owning scope, or nil for a root scope.
func (sc *Scope) Parent() *Scope { return sc.parent }

// Depth is the number of ancestors.
func (sc *Scope) Depth() int { return sc.depth }

// Label returns the diagnostic label.
func (sc *Scope) Label() string { return sc.label }

// SetLabel sets a diagnostic label (normally the template name).
func (sc *Scope) SetLabel(label string) { sc.label = label }

// Generation counts how many times the scope has been Reset.
func (sc *Scope) Generation() int { return sc.generation }

// Disposed reports whether Dispose has run.
func (sc *Scope) Disposed() bool { return sc.disposed }

// Dirty reports whether a dependency was written since the last Reset.
func (sc *Scope) Dirty() bool { return sc.dirty }

// Reactor returns the owner registered with SetReactor.
func (sc *Scope) Reactor() Reactor { return sc.reactor }

// SetReactor registers the owner that re-runs this scope.
func (sc *Scope) SetReactor(r Reactor) { sc.reactor = r }

// Begin makes this scope the active recorder and rewinds the hook cursor.
func (sc *Scope) Begin() error {
	if sc.disposed {
		return staleScope(sc.id)
	}
	if sc.store.active != nil {
		return ErrNestedScope
	}
	sc.store.active = sc
	sc.hooks.cursor = 0
	return nil
}

// End deactivates the scope if it is the active recorder.
func (sc *Scope) End() {
	if sc.store.active == sc {
		sc.store.active = nil
	}
}

// MarkDirty flags the scope for the next scheduler pass. Idempotent.
func (sc *Scope) MarkDirty() {
	if sc.disposed || sc.dirty {
		return
	}
	sc.dirty = true
	sc.store.dirty[sc.id] = sc
}

// OnCleanup registers an action run on the next Reset or on Dispose.
func (sc *Scope) OnCleanup(fn func()) error {
	if sc.disposed {
		return staleScope(sc.id)
	}
	sc.cleanups = append(sc.cleanups, fn)
	return nil
}

// OnDispose registers an action run only when the scope is disposed, after
// the cleanups of the last generation.
func (sc *Scope) OnDispose(fn func()) error {
	if sc.disposed {
		return staleScope(sc.id)
	}
	sc.finalizers = append(sc.finalizers, fn)
	return nil
}

// Dependencies returns the cells read since the last Reset, in ID order.
func (sc *Scope) Dependencies() []CellID {
	out := make([]CellID, 0, len(sc.deps))
	for id := range sc.deps {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Owned returns the cells created through this scope.
func (sc *Scope) Owned() []CellID {
	return slices.Clone(sc.owned)
}

func (sc *Scope) track(id CellID, c *cell) {
	if _, ok := sc.deps[id]; ok {
		return
	}
	sc.deps[id] = struct{}{}
	if c.dependents == nil {
		c.dependents = make(map[ScopeID]struct{})
	}
	c.dependents[sc.id] = struct{}{}
}

// Reset starts a fresh tracking generation: cleanups run in reverse
// registration order, subscriptions are dropped and the dirty flag cleared.
func (sc *Scope) Reset() {
	if sc.disposed {
		return
	}
	sc.runCleanups()
	sc.untrack()
	sc.dirty = false
	delete(sc.store.dirty, sc.id)
	sc.generation++
}

// Dispose tears the scope down: live child scopes are disposed first, then
// cleanups run in reverse order, dependencies are cleared and owned cells
// are released. Idempotent.
func (sc *Scope) Dispose() {
	if sc.disposed {
		return
	}
	for i := len(sc.children) - 1; i >= 0; i-- {
		sc.children[i].Dispose()
	}
	sc.children = nil

	sc.runCleanups()
	sc.untrack()
	for i := len(sc.finalizers) - 1; i >= 0; i-- {
		sc.finalizers[i]()
	}
	sc.finalizers = nil

	for i := len(sc.owned) - 1; i >= 0; i-- {
		sc.store.release(sc.owned[i])
	}
	sc.owned = nil
	sc.hooks = hookTable{}

	sc.disposed = true
	sc.dirty = false
	if sc.store.active == sc {
		sc.store.active = nil
	}
	delete(sc.store.dirty, sc.id)
	delete(sc.store.scopes, sc.id)
	if sc.parent != nil {
		sc.parent.removeChild(sc)
	}
}

func (sc *Scope) disown(id CellID) {
	if i := slices.Index(sc.owned, id); i >= 0 {
		sc.owned = slices.Delete(sc.owned, i, i+1)
	}
}

func (sc *Scope) removeChild(child *Scope) {
	if i := slices.Index(sc.children, child); i >= 0 {
		sc.children = slices.Delete(sc.children, i, i+1)
	}
}

func (sc *Scope) runCleanups() {
	cleanups := sc.cleanups
	sc.cleanups = nil
	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
}

func (sc *Scope) untrack() {
	for id := range sc.deps {
		if c, err := sc.store.lookup(id); err == nil {
			delete(c.dependents, sc.id)
		}
	}
	clear(sc.deps)
}
