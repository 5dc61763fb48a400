package world

import "slices"

// World is the central entity registry and component store, plus the
// parent/child hierarchy that display nodes are attached into.
//
// Thread-safety: none. The world is mutated only from the scheduler's
// thread of control.
type World struct {
	nextID     EntityID
	alive      map[EntityID]bool
	components map[ComponentType]map[EntityID]Component
	parent     map[EntityID]EntityID
	children   map[EntityID][]EntityID
	listeners  map[int]func(EntityID)
	nextListen int
}

// NewWorld creates an empty World.
func NewWorld() *World {
	return &World{
		nextID:     1,
		alive:      make(map[EntityID]bool),
		components: make(map[ComponentType]map[EntityID]Component),
		parent:     make(map[EntityID]EntityID),
		children:   make(map[EntityID][]EntityID),
		listeners:  make(map[int]func(EntityID)),
	}
}

// Spawn mints a new entity ID, marks it alive and attaches the given
// components.
func (w *World) Spawn(cs ...Component) EntityID {
	id := w.nextID
	w.nextID++
	w.alive[id] = true
	for _, c := range cs {
		w.Add(id, c)
	}
	return id
}

// Despawn destroys the entity and all its descendants, deepest first.
// Despawn listeners are notified once per destroyed entity. Despawning a
// dead entity is a no-op.
func (w *World) Despawn(id EntityID) {
	if !w.alive[id] {
		return
	}
	for _, child := range slices.Clone(w.children[id]) {
		w.Despawn(child)
	}
	w.detach(id)
	delete(w.children, id)
	delete(w.alive, id)
	for _, store := range w.components {
		delete(store, id)
	}
	for _, key := range w.listenerKeys() {
		if fn, ok := w.listeners[key]; ok {
			fn(id)
		}
	}
}

// OnDespawn registers a listener called after an entity is destroyed. The
// returned function unregisters it.
func (w *World) OnDespawn(fn func(EntityID)) (cancel func()) {
	key := w.nextListen
	w.nextListen++
	w.listeners[key] = fn
	return func() { delete(w.listeners, key) }
}

func (w *World) listenerKeys() []int {
	keys := make([]int, 0, len(w.listeners))
	for k := range w.listeners {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Alive reports whether the entity is alive.
func (w *World) Alive(id EntityID) bool {
	return w.alive[id]
}

// Len returns the number of live entities.
func (w *World) Len() int {
	return len(w.alive)
}

// Add attaches a component to an entity, replacing any of the same type.
func (w *World) Add(id EntityID, c Component) {
	t := c.Type()
	if w.components[t] == nil {
		w.components[t] = make(map[EntityID]Component)
	}
	w.components[t][id] = c
}

// Get returns the component of the given type for entity id, or nil.
func (w *World) Get(id EntityID, t ComponentType) Component {
	store := w.components[t]
	if store == nil {
		return nil
	}
	return store[id]
}

// Remove detaches a component from an entity.
func (w *World) Remove(id EntityID, t ComponentType) {
	if store := w.components[t]; store != nil {
		delete(store, id)
	}
}

// Has reports whether entity id has a component of the given type.
func (w *World) Has(id EntityID, t ComponentType) bool {
	return w.Get(id, t) != nil
}

// Query returns all alive entities that have every listed component type,
// in ascending ID order.
func (w *World) Query(types ...ComponentType) []EntityID {
	if len(types) == 0 {
		return nil
	}
	// Use the smallest store as the candidate set.
	smallest := types[0]
	for _, t := range types[1:] {
		if len(w.components[t]) < len(w.components[smallest]) {
			smallest = t
		}
	}
	store := w.components[smallest]
	if store == nil {
		return nil
	}
	var result []EntityID
	for id := range store {
		if !w.alive[id] {
			continue
		}
		match := true
		for _, t := range types {
			if t == smallest {
				continue
			}
			if !w.Has(id, t) {
				match = false
				break
			}
		}
		if match {
			result = append(result, id)
		}
	}
	slices.Sort(result)
	return result
}

// Parent returns the entity's parent, or NilEntity.
func (w *World) Parent(id EntityID) EntityID {
	return w.parent[id]
}

// Children returns a copy of the entity's ordered child list.
func (w *World) Children(id EntityID) []EntityID {
	return slices.Clone(w.children[id])
}

// SetChildren replaces the entity's child list. Entities no longer listed
// are detached (not despawned); listed entities are moved from any previous
// parent. Dead entities are skipped. Returns false if the list was already
// identical.
func (w *World) SetChildren(parent EntityID, kids []EntityID) bool {
	if !w.alive[parent] {
		return false
	}
	next := make([]EntityID, 0, len(kids))
	for _, k := range kids {
		if w.alive[k] && k != parent {
			next = append(next, k)
		}
	}
	if slices.Equal(w.children[parent], next) {
		return false
	}
	for _, old := range w.children[parent] {
		if w.parent[old] == parent {
			delete(w.parent, old)
		}
	}
	for _, k := range next {
		if p, ok := w.parent[k]; ok && p != parent {
			w.removeChild(p, k)
		}
		w.parent[k] = parent
	}
	if len(next) == 0 {
		delete(w.children, parent)
	} else {
		w.children[parent] = next
	}
	return true
}

// AddChild appends child to parent's child list.
func (w *World) AddChild(parent, child EntityID) {
	kids := append(w.Children(parent), child)
	w.SetChildren(parent, kids)
}

func (w *World) detach(id EntityID) {
	if p, ok := w.parent[id]; ok {
		w.removeChild(p, id)
		delete(w.parent, id)
	}
}

func (w *World) removeChild(parent, child EntityID) {
	kids := w.children[parent]
	if i := slices.Index(kids, child); i >= 0 {
		kids = slices.Delete(kids, i, i+1)
	}
	if len(kids) == 0 {
		delete(w.children, parent)
	} else {
		w.children[parent] = kids
	}
}
