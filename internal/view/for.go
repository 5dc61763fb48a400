package view

import (
	"slices"

	"github.com/roach88/quill/internal/lcs"
	"github.com/roach88/quill/internal/world"
)

// ForView renders one child view per item, matched across rebuilds by key.
type ForView[K comparable, T any] struct {
	items    []T
	key      func(T) K
	each     func(T) View
	equal    func(a, b T) bool
	fallback View
}

// For renders each item with each, keyed by key. Keys must be unique within
// one list. Items are compared with structural equality unless Equal
// supplies a comparator.
func For[K comparable, T any](items []T, key func(T) K, each func(T) View) ForView[K, T] {
	return ForView[K, T]{items: items, key: key, each: each}
}

// Equal sets the item comparator. Items that compare equal under the same
// key are reused without calling each.
func (f ForView[K, T]) Equal(eq func(a, b T) bool) ForView[K, T] {
	f.equal = eq
	return f
}

// Fallback sets the view shown while the list is empty.
func (f ForView[K, T]) Fallback(v View) ForView[K, T] {
	f.fallback = v
	return f
}

func (f ForView[K, T]) same(a, b T) bool {
	if f.equal != nil {
		return f.equal(a, b)
	}
	return propsEqual(a, b)
}

type forEntry[K comparable, T any] struct {
	key  K
	item T
	slot slot
}

type forState[K comparable, T any] struct {
	entries  []forEntry[K, T]
	fallback fallbackSlot
}

// Build implements View.
func (f ForView[K, T]) Build(cx *Cx) State {
	st := &forState[K, T]{entries: make([]forEntry[K, T], len(f.items))}
	for i, item := range f.items {
		st.entries[i] = forEntry[K, T]{key: f.key(item), item: item, slot: buildSlot(cx, f.each(item))}
	}
	st.fallback.sync(cx, len(st.entries) == 0, f.fallback)
	return st
}

// Rebuild implements View. Surviving keys keep their instances; only items
// whose value changed are rebuilt, and vanished keys are razed before new
// keys are built.
func (f ForView[K, T]) Rebuild(cx *Cx, state State) (State, bool) {
	st := state.(*forState[K, T])
	before := f.Nodes(st)

	oldKeys := make([]K, len(st.entries))
	for i, e := range st.entries {
		oldKeys[i] = e.key
	}
	newKeys := make([]K, len(f.items))
	for i, item := range f.items {
		newKeys[i] = f.key(item)
	}
	plan := lcs.Diff(oldKeys, newKeys)

	for _, op := range plan.Ops {
		if op.Kind == lcs.Delete {
			st.entries[op.Old].slot.raze(cx)
		}
	}

	next := make([]forEntry[K, T], len(f.items))
	for _, op := range plan.Ops {
		switch op.Kind {
		case lcs.Keep, lcs.Move:
			e := st.entries[op.Old]
			item := f.items[op.New]
			if !f.same(e.item, item) {
				e.item = item
				e.slot.update(cx, f.each(item), false)
			}
			next[op.New] = e
		case lcs.Insert:
			item := f.items[op.New]
			next[op.New] = forEntry[K, T]{key: newKeys[op.New], item: item, slot: buildSlot(cx, f.each(item))}
		}
	}
	st.entries = next
	st.fallback.sync(cx, len(next) == 0, f.fallback)

	return st, !slices.Equal(before, f.Nodes(st))
}

// Raze implements View.
func (ForView[K, T]) Raze(cx *Cx, state State) {
	st := state.(*forState[K, T])
	for i := len(st.entries) - 1; i >= 0; i-- {
		st.entries[i].slot.raze(cx)
	}
	st.entries = nil
	st.fallback.clear(cx)
}

// Nodes implements View.
func (ForView[K, T]) Nodes(state State) []world.EntityID {
	st := state.(*forState[K, T])
	if len(st.entries) == 0 {
		return st.fallback.nodes()
	}
	var out []world.EntityID
	for i := range st.entries {
		out = append(out, st.entries[i].slot.nodes()...)
	}
	return out
}

// Attach implements View.
func (ForView[K, T]) Attach(cx *Cx, state State) bool {
	st := state.(*forState[K, T])
	changed := st.fallback.attach(cx)
	for i := range st.entries {
		if st.entries[i].slot.attach(cx) {
			changed = true
		}
	}
	return changed
}

// ForIndexView renders one child view per item, matched by position. An
// insertion or deletion rebuilds every later position.
type ForIndexView[T any] struct {
	items    []T
	each     func(int, T) View
	fallback View
}

// ForIndex renders each item with each, keyed by index.
func ForIndex[T any](items []T, each func(i int, item T) View) ForIndexView[T] {
	return ForIndexView[T]{items: items, each: each}
}

// Fallback sets the view shown while the list is empty.
func (f ForIndexView[T]) Fallback(v View) ForIndexView[T] {
	f.fallback = v
	return f
}

type indexEntry[T any] struct {
	item T
	slot slot
}

type forIndexState[T any] struct {
	entries  []indexEntry[T]
	fallback fallbackSlot
}

// Build implements View.
func (f ForIndexView[T]) Build(cx *Cx) State {
	st := &forIndexState[T]{entries: make([]indexEntry[T], len(f.items))}
	for i, item := range f.items {
		st.entries[i] = indexEntry[T]{item: item, slot: buildSlot(cx, f.each(i, item))}
	}
	st.fallback.sync(cx, len(st.entries) == 0, f.fallback)
	return st
}

// Rebuild implements View.
func (f ForIndexView[T]) Rebuild(cx *Cx, state State) (State, bool) {
	st := state.(*forIndexState[T])
	before := f.Nodes(st)

	n := min(len(st.entries), len(f.items))
	for i := 0; i < n; i++ {
		e := &st.entries[i]
		if !propsEqual(e.item, f.items[i]) {
			e.item = f.items[i]
			e.slot.update(cx, f.each(i, f.items[i]), false)
		}
	}
	for i := len(st.entries) - 1; i >= len(f.items); i-- {
		st.entries[i].slot.raze(cx)
	}
	st.entries = st.entries[:n]
	for i := n; i < len(f.items); i++ {
		st.entries = append(st.entries, indexEntry[T]{item: f.items[i], slot: buildSlot(cx, f.each(i, f.items[i]))})
	}
	st.fallback.sync(cx, len(st.entries) == 0, f.fallback)

	return st, !slices.Equal(before, f.Nodes(st))
}

// Raze implements View.
func (ForIndexView[T]) Raze(cx *Cx, state State) {
	st := state.(*forIndexState[T])
	for i := len(st.entries) - 1; i >= 0; i-- {
		st.entries[i].slot.raze(cx)
	}
	st.entries = nil
	st.fallback.clear(cx)
}

// Nodes implements View.
func (ForIndexView[T]) Nodes(state State) []world.EntityID {
	st := state.(*forIndexState[T])
	if len(st.entries) == 0 {
		return st.fallback.nodes()
	}
	var out []world.EntityID
	for i := range st.entries {
		out = append(out, st.entries[i].slot.nodes()...)
	}
	return out
}

// Attach implements View.
func (ForIndexView[T]) Attach(cx *Cx, state State) bool {
	st := state.(*forIndexState[T])
	changed := st.fallback.attach(cx)
	for i := range st.entries {
		if st.entries[i].slot.attach(cx) {
			changed = true
		}
	}
	return changed
}

// fallbackSlot is the optional view a list shows while empty.
type fallbackSlot struct {
	live bool
	slot slot
}

// sync shows v while empty is true and razes it once an item exists.
func (fb *fallbackSlot) sync(cx *Cx, empty bool, v View) {
	switch {
	case empty && v != nil && fb.live:
		fb.slot.update(cx, v, false)
	case empty && v != nil:
		fb.slot = buildSlot(cx, v)
		fb.live = true
	default:
		fb.clear(cx)
	}
}

func (fb *fallbackSlot) clear(cx *Cx) {
	if fb.live {
		fb.slot.raze(cx)
		fb.live = false
	}
}

func (fb *fallbackSlot) nodes() []world.EntityID {
	if !fb.live {
		return nil
	}
	return fb.slot.nodes()
}

func (fb *fallbackSlot) attach(cx *Cx) bool {
	if !fb.live {
		return false
	}
	return fb.slot.attach(cx)
}
