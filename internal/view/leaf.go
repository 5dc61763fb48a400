package view

import (
	"slices"

	"github.com/roach88/quill/internal/world"
)

// Empty contributes no nodes.
type Empty struct{}

// Build implements View.
func (Empty) Build(*Cx) State { return nil }

// Rebuild implements View.
func (Empty) Rebuild(_ *Cx, state State) (State, bool) { return state, false }

// Raze implements View.
func (Empty) Raze(*Cx, State) {}

// Nodes implements View.
func (Empty) Nodes(State) []world.EntityID { return nil }

// Attach implements View.
func (Empty) Attach(*Cx, State) bool { return false }

// Text is a single text node.
type Text string

type textState struct {
	entity world.EntityID
	value  string
}

// Build implements View.
func (t Text) Build(cx *Cx) State {
	e := cx.World().Spawn(world.Text{Value: string(t)})
	return &textState{entity: e, value: string(t)}
}

// Rebuild implements View. The entity is reused; only the component
// changes.
func (t Text) Rebuild(cx *Cx, state State) (State, bool) {
	st := state.(*textState)
	if st.value != string(t) {
		st.value = string(t)
		cx.World().Add(st.entity, world.Text{Value: st.value})
	}
	return st, false
}

// Raze implements View.
func (Text) Raze(cx *Cx, state State) {
	cx.World().Despawn(state.(*textState).entity)
}

// Nodes implements View.
func (Text) Nodes(state State) []world.EntityID {
	return []world.EntityID{state.(*textState).entity}
}

// Attach implements View.
func (Text) Attach(*Cx, State) bool { return false }

// Element is a display node whose world children are the flattened nodes
// of its child views. Insert and InsertIf attach further components.
type Element struct {
	Tag      string
	Children []View
	effects  []insertEffect
}

// El builds an Element.
func El(tag string, children ...View) Element {
	return Element{Tag: tag, Children: children}
}

// insertEffect adds a component to the element's entity. An unconditional
// effect re-inserts when deps change; a conditional one holds its condition
// in deps and inserts while it is true.
type insertEffect struct {
	deps        any
	conditional bool
	fn          func() world.Component
}

// Insert adds the component fn returns to the element. fn runs on build and
// again on every rebuild whose deps differ structurally from the last ones.
func (el Element) Insert(deps any, fn func() world.Component) Element {
	el.effects = append(slices.Clip(el.effects), insertEffect{deps: deps, fn: fn})
	return el
}

// InsertIf adds the component fn returns while cond holds and removes it
// once cond turns false.
func (el Element) InsertIf(cond bool, fn func() world.Component) Element {
	el.effects = append(slices.Clip(el.effects), insertEffect{deps: cond, conditional: true, fn: fn})
	return el
}

// Equal compares elements by tag, children and effect deps. The component
// functions are not compared.
func (el Element) Equal(o Element) bool {
	if el.Tag != o.Tag || len(el.effects) != len(o.effects) {
		return false
	}
	for i, fx := range el.effects {
		if fx.conditional != o.effects[i].conditional || !propsEqual(fx.deps, o.effects[i].deps) {
			return false
		}
	}
	return propsEqual(el.Children, o.Children)
}

type inserted struct {
	deps        any
	conditional bool
	typ         world.ComponentType
	present     bool
}

type elementState struct {
	entity   world.EntityID
	tag      string
	children []slot
	inserted []inserted
}

func (st *elementState) link(cx *Cx) {
	cx.World().SetChildren(st.entity, flatten(st.children))
}

// apply runs the effects whose deps changed and removes components left by
// effects that are gone.
func (st *elementState) apply(cx *Cx, effects []insertEffect) {
	w := cx.World()
	for i, fx := range effects {
		var prev inserted
		if i < len(st.inserted) {
			prev = st.inserted[i]
			if prev.conditional == fx.conditional && propsEqual(prev.deps, fx.deps) {
				continue
			}
		}

		next := inserted{deps: fx.deps, conditional: fx.conditional}
		on, _ := fx.deps.(bool)
		if !fx.conditional || on {
			if c := fx.fn(); c != nil {
				next.typ, next.present = c.Type(), true
				if prev.present && prev.typ != next.typ {
					w.Remove(st.entity, prev.typ)
				}
				w.Add(st.entity, c)
			}
		}
		if prev.present && !next.present {
			w.Remove(st.entity, prev.typ)
		}

		if i < len(st.inserted) {
			st.inserted[i] = next
		} else {
			st.inserted = append(st.inserted, next)
		}
	}
	for _, gone := range st.inserted[min(len(effects), len(st.inserted)):] {
		if gone.present {
			w.Remove(st.entity, gone.typ)
		}
	}
	st.inserted = st.inserted[:min(len(effects), len(st.inserted))]
}

// Build implements View.
func (el Element) Build(cx *Cx) State {
	st := &elementState{
		entity: cx.World().Spawn(world.Tag{Name: el.Tag}),
		tag:    el.Tag,
	}
	st.apply(cx, el.effects)
	st.children = buildSlots(cx, el.Children)
	st.link(cx)
	return st
}

// Rebuild implements View. The element keeps its entity, so its own
// output never changes.
func (el Element) Rebuild(cx *Cx, state State) (State, bool) {
	st := state.(*elementState)
	if st.tag != el.Tag {
		st.tag = el.Tag
		cx.World().Add(st.entity, world.Tag{Name: el.Tag})
	}
	st.apply(cx, el.effects)
	var changed bool
	st.children, changed = updateSlots(cx, st.children, el.Children)
	if changed {
		st.link(cx)
	}
	return st, false
}

// Raze implements View.
func (Element) Raze(cx *Cx, state State) {
	st := state.(*elementState)
	razeSlots(cx, st.children)
	st.children = nil
	cx.World().Despawn(st.entity)
}

// Nodes implements View.
func (Element) Nodes(state State) []world.EntityID {
	return []world.EntityID{state.(*elementState).entity}
}

// Attach implements View.
func (Element) Attach(cx *Cx, state State) bool {
	st := state.(*elementState)
	if attachSlots(cx, st.children) {
		st.link(cx)
	}
	return false
}

// Fragment is a sequence of views whose nodes are concatenated.
type Fragment []View

// Seq builds a Fragment.
func Seq(views ...View) Fragment {
	return Fragment(views)
}

type fragmentState struct {
	children []slot
}

// Build implements View.
func (f Fragment) Build(cx *Cx) State {
	return &fragmentState{children: buildSlots(cx, f)}
}

// Rebuild implements View.
func (f Fragment) Rebuild(cx *Cx, state State) (State, bool) {
	st := state.(*fragmentState)
	before := flatten(st.children)
	st.children, _ = updateSlots(cx, st.children, f)
	return st, !slices.Equal(before, flatten(st.children))
}

// Raze implements View.
func (Fragment) Raze(cx *Cx, state State) {
	st := state.(*fragmentState)
	razeSlots(cx, st.children)
	st.children = nil
}

// Nodes implements View.
func (Fragment) Nodes(state State) []world.EntityID {
	return flatten(state.(*fragmentState).children)
}

// Attach implements View.
func (Fragment) Attach(cx *Cx, state State) bool {
	return attachSlots(cx, state.(*fragmentState).children)
}
