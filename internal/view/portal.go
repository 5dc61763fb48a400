package view

import (
	"github.com/roach88/quill/internal/world"
)

// PortalView builds its children under a detached root entity of its own
// instead of its parent's element. It contributes no nodes to the parent;
// the children stay owned by the enclosing instance and are razed with it.
type PortalView struct {
	Name     string
	Children []View
}

// Portal builds a PortalView.
func Portal(name string, children ...View) PortalView {
	return PortalView{Name: name, Children: children}
}

type portalState struct {
	entity   world.EntityID
	children []slot
}

func (st *portalState) link(cx *Cx) {
	cx.World().SetChildren(st.entity, flatten(st.children))
}

// Build implements View.
func (p PortalView) Build(cx *Cx) State {
	st := &portalState{entity: cx.World().Spawn(world.Root{Name: p.Name})}
	st.children = buildSlots(cx, p.Children)
	st.link(cx)
	return st
}

// Rebuild implements View. The portal's own output is always empty, so it
// never reports a change.
func (p PortalView) Rebuild(cx *Cx, state State) (State, bool) {
	st := state.(*portalState)
	if root, ok := cx.World().Get(st.entity, world.ComponentRoot).(world.Root); !ok || root.Name != p.Name {
		cx.World().Add(st.entity, world.Root{Name: p.Name})
	}
	var changed bool
	st.children, changed = updateSlots(cx, st.children, p.Children)
	if changed {
		st.link(cx)
	}
	return st, false
}

// Raze implements View.
func (PortalView) Raze(cx *Cx, state State) {
	st := state.(*portalState)
	razeSlots(cx, st.children)
	st.children = nil
	cx.World().Despawn(st.entity)
}

// Nodes implements View.
func (PortalView) Nodes(State) []world.EntityID { return nil }

// Attach implements View. A child's new output is linked under the portal
// entity and stops there.
func (PortalView) Attach(cx *Cx, state State) bool {
	st := state.(*portalState)
	if attachSlots(cx, st.children) {
		st.link(cx)
	}
	return false
}
