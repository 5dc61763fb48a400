package view

import (
	"slices"

	"github.com/roach88/quill/internal/world"
)

// CondView holds exactly one of two branches live at a time.
type CondView struct {
	test bool
	then View
	els  View
}

// Cond selects then when test is true and els otherwise. Either branch may
// be nil. The branches may be views of different kinds.
func Cond(test bool, then, els View) CondView {
	return CondView{test: test, then: then, els: els}
}

type condState struct {
	branch bool
	slot   slot
}

func (c CondView) pick() View {
	if c.test {
		return c.then
	}
	return c.els
}

// Build implements View.
func (c CondView) Build(cx *Cx) State {
	return &condState{branch: c.test, slot: buildSlot(cx, c.pick())}
}

// Rebuild implements View. Switching branches razes the inactive branch
// before the newly active one is built.
func (c CondView) Rebuild(cx *Cx, state State) (State, bool) {
	st := state.(*condState)
	if st.branch == c.test {
		return st, st.slot.update(cx, c.pick(), false)
	}
	before := st.slot.nodes()
	st.slot.raze(cx)
	st.branch = c.test
	st.slot = buildSlot(cx, c.pick())
	return st, !slices.Equal(before, st.slot.nodes())
}

// Raze implements View.
func (CondView) Raze(cx *Cx, state State) {
	state.(*condState).slot.raze(cx)
}

// Nodes implements View.
func (CondView) Nodes(state State) []world.EntityID {
	return state.(*condState).slot.nodes()
}

// Attach implements View.
func (CondView) Attach(cx *Cx, state State) bool {
	return state.(*condState).slot.attach(cx)
}

// SwitchView is an N-way conditional keyed by a discriminant value.
type SwitchView[V comparable] struct {
	value    V
	cases    []switchCase[V]
	fallback View
}

type switchCase[V comparable] struct {
	match V
	view  View
}

// Switch starts a switch on value. Add arms with Case and an optional
// Fallback; the first matching arm wins.
func Switch[V comparable](value V) SwitchView[V] {
	return SwitchView[V]{value: value}
}

// Case adds an arm shown when the switch value equals match.
func (s SwitchView[V]) Case(match V, v View) SwitchView[V] {
	s.cases = append(slices.Clip(s.cases), switchCase[V]{match: match, view: v})
	return s
}

// Fallback sets the view shown when no arm matches.
func (s SwitchView[V]) Fallback(v View) SwitchView[V] {
	s.fallback = v
	return s
}

const fallbackArm = -1

func (s SwitchView[V]) pick() (int, View) {
	for i, c := range s.cases {
		if c.match == s.value {
			return i, c.view
		}
	}
	return fallbackArm, s.fallback
}

type switchState struct {
	arm  int
	slot slot
}

// Build implements View.
func (s SwitchView[V]) Build(cx *Cx) State {
	arm, v := s.pick()
	return &switchState{arm: arm, slot: buildSlot(cx, v)}
}

// Rebuild implements View.
func (s SwitchView[V]) Rebuild(cx *Cx, state State) (State, bool) {
	st := state.(*switchState)
	arm, v := s.pick()
	if arm == st.arm {
		return st, st.slot.update(cx, v, false)
	}
	before := st.slot.nodes()
	st.slot.raze(cx)
	st.arm = arm
	st.slot = buildSlot(cx, v)
	return st, !slices.Equal(before, st.slot.nodes())
}

// Raze implements View.
func (SwitchView[V]) Raze(cx *Cx, state State) {
	state.(*switchState).slot.raze(cx)
}

// Nodes implements View.
func (SwitchView[V]) Nodes(state State) []world.EntityID {
	return state.(*switchState).slot.nodes()
}

// Attach implements View.
func (SwitchView[V]) Attach(cx *Cx, state State) bool {
	return state.(*switchState).slot.attach(cx)
}

// DynamicView is the explicit type-erasure boundary: when the wrapped
// view's identity changes between rebuilds, the old state is razed and the
// new view built fresh.
type DynamicView struct {
	inner View
}

// Dynamic wraps v so that views of different kinds may occupy the
// position over time.
func Dynamic(v View) DynamicView {
	return DynamicView{inner: v}
}

type dynamicState struct {
	slot slot
}

// Build implements View.
func (d DynamicView) Build(cx *Cx) State {
	return &dynamicState{slot: buildSlot(cx, d.inner)}
}

// Rebuild implements View.
func (d DynamicView) Rebuild(cx *Cx, state State) (State, bool) {
	st := state.(*dynamicState)
	return st, st.slot.update(cx, d.inner, true)
}

// Raze implements View.
func (DynamicView) Raze(cx *Cx, state State) {
	state.(*dynamicState).slot.raze(cx)
}

// Nodes implements View.
func (DynamicView) Nodes(state State) []world.EntityID {
	return state.(*dynamicState).slot.nodes()
}

// Attach implements View.
func (DynamicView) Attach(cx *Cx, state State) bool {
	return state.(*dynamicState).slot.attach(cx)
}
