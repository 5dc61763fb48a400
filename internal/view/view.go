package view

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/google/go-cmp/cmp"

	"github.com/roach88/quill/internal/world"
)

// State is the opaque per-build state of a View. Only the View kind that
// produced a State may interpret it.
type State any

// View is the capability set every renderable unit implements.
//
// Rebuild is called on the new View value with the State produced by a
// previous View of the same identity. The bool results of Rebuild and
// Attach report whether Nodes changed, which tells the parent to re-link.
type View interface {
	// Build creates display nodes and nested instances.
	Build(cx *Cx) State

	// Rebuild updates state in place.
	Rebuild(cx *Cx, state State) (State, bool)

	// Raze tears down nested instances, then owned nodes.
	Raze(cx *Cx, state State)

	// Nodes returns the display entities contributed by this view, in order.
	Nodes(state State) []world.EntityID

	// Attach re-links children whose output changed since the last build.
	Attach(cx *Cx, state State) bool
}

// identifier is implemented by views whose identity is narrower than their
// Go type.
type identifier interface {
	identity() any
}

// sameIdentity reports whether b may rebuild a State produced by a.
func sameIdentity(a, b View) bool {
	if reflect.TypeOf(a) != reflect.TypeOf(b) {
		return false
	}
	ia, ok := a.(identifier)
	if !ok {
		return true
	}
	return ia.identity() == b.(identifier).identity()
}

func describe(v View) string {
	if n, ok := v.(interface{ templateName() string }); ok {
		return "template " + n.templateName()
	}
	return fmt.Sprintf("%T", v)
}

func orEmpty(v View) View {
	if v == nil {
		return Empty{}
	}
	return v
}

// exportAll lets cmp compare unexported fields of props and items.
var exportAll = cmp.Exporter(func(reflect.Type) bool { return true })

// propsEqual is the structural equality used for template props and list
// items.
func propsEqual(a, b any) bool {
	return cmp.Equal(a, b, exportAll)
}

// slot pairs a View with the State it built.
type slot struct {
	view  View
	state State
}

func buildSlot(cx *Cx, v View) slot {
	v = orEmpty(v)
	return slot{view: v, state: v.Build(cx)}
}

func (s *slot) nodes() []world.EntityID {
	if s.view == nil {
		return nil
	}
	return s.view.Nodes(s.state)
}

func (s *slot) raze(cx *Cx) {
	if s.view != nil {
		s.view.Raze(cx, s.state)
	}
	*s = slot{}
}

func (s *slot) attach(cx *Cx) bool {
	if s.view == nil {
		return false
	}
	return s.view.Attach(cx, s.state)
}

// update reconciles the slot against next. A next View of another identity
// razes the old State before building; outside a Dynamic wrapper that is
// reported as a TYPE_MISMATCH.
func (s *slot) update(cx *Cx, next View, dynamic bool) bool {
	next = orEmpty(next)
	if s.view != nil && sameIdentity(s.view, next) {
		state, changed := next.Rebuild(cx, s.state)
		s.view, s.state = next, state
		return changed
	}
	if s.view != nil && !dynamic {
		cx.rt.report(cx.instanceError(ErrCodeTypeMismatch,
			fmt.Errorf("%s replaced by %s", describe(s.view), describe(next))))
	}
	before := s.nodes()
	s.raze(cx)
	*s = buildSlot(cx, next)
	return !slices.Equal(before, s.nodes())
}

func buildSlots(cx *Cx, views []View) []slot {
	out := make([]slot, len(views))
	for i, v := range views {
		out[i] = buildSlot(cx, v)
	}
	return out
}

// updateSlots reconciles slots position by position and reports whether
// any slot's nodes changed.
func updateSlots(cx *Cx, slots []slot, views []View) ([]slot, bool) {
	changed := false
	n := min(len(slots), len(views))
	for i := 0; i < n; i++ {
		if slots[i].update(cx, views[i], false) {
			changed = true
		}
	}
	for i := len(slots) - 1; i >= len(views); i-- {
		slots[i].raze(cx)
		changed = true
	}
	slots = slots[:n]
	for _, v := range views[n:] {
		slots = append(slots, buildSlot(cx, v))
		changed = true
	}
	return slots, changed
}

func razeSlots(cx *Cx, slots []slot) {
	for i := len(slots) - 1; i >= 0; i-- {
		slots[i].raze(cx)
	}
}

func attachSlots(cx *Cx, slots []slot) bool {
	changed := false
	for i := range slots {
		if slots[i].attach(cx) {
			changed = true
		}
	}
	return changed
}

func flatten(slots []slot) []world.EntityID {
	var out []world.EntityID
	for i := range slots {
		out = append(out, slots[i].nodes()...)
	}
	return out
}
