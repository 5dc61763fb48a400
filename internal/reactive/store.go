package reactive

import (
	"fmt"
	"log/slog"
	"slices"
)

// CellID is a stable identifier for a cell in a Store: arena index in the
// low 32 bits, generation in the high 32 bits. A freed slot gets a new
// generation, so old IDs never alias a newer cell.
type CellID uint64

func makeCellID(index, gen uint32) CellID {
	return CellID(uint64(gen)<<32 | uint64(index))
}

func (id CellID) index() uint32 { return uint32(id) }
func (id CellID) gen() uint32   { return uint32(id >> 32) }

// String renders the ID as index@generation.
func (id CellID) String() string {
	return fmt.Sprintf("%d@%d", id.index(), id.gen())
}

type cell struct {
	value      any
	gen        uint32
	live       bool
	owner      ScopeID
	dependents map[ScopeID]struct{}
}

// Store is the table of reactive cells and the registry of live scopes.
//
// Thread-safety: none. See package documentation.
type Store struct {
	cells     []cell
	free      []uint32
	scopes    map[ScopeID]*Scope
	dirty     map[ScopeID]*Scope
	active    *Scope
	nextScope ScopeID
	logger    *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the logger used for debug output.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = l
	}
}

// NewStore creates an empty store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		scopes: make(map[ScopeID]*Scope),
		dirty:  make(map[ScopeID]*Scope),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewScope creates a scope. A non-nil parent owns the new scope: disposing
// the parent disposes it first.
func (s *Store) NewScope(parent *Scope) *Scope {
	s.nextScope++
	sc := &Scope{
		id:     s.nextScope,
		store:  s,
		parent: parent,
		deps:   make(map[CellID]struct{}),
	}
	if parent != nil {
		sc.depth = parent.depth + 1
		parent.children = append(parent.children, sc)
	}
	s.scopes[sc.id] = sc
	return sc
}

// Scope looks up a live scope by ID.
func (s *Store) Scope(id ScopeID) (*Scope, bool) {
	sc, ok := s.scopes[id]
	return sc, ok
}

// Active returns the scope currently recording reads, or nil.
func (s *Store) Active() *Scope {
	return s.active
}

// Suspend deactivates the current recorder and returns it so that it can be
// restored with Resume. Used when a nested template evaluates its own scope.
func (s *Store) Suspend() *Scope {
	prev := s.active
	s.active = nil
	return prev
}

// Resume reinstates a recorder returned by Suspend.
func (s *Store) Resume(prev *Scope) {
	if prev != nil && prev.disposed {
		prev = nil
	}
	s.active = prev
}

// DirtyCount returns the number of scopes currently marked dirty.
func (s *Store) DirtyCount() int {
	return len(s.dirty)
}

// DirtyScopes returns a snapshot of the dirty set, parents before children
// (ordered by depth, then creation order).
func (s *Store) DirtyScopes() []*Scope {
	out := make([]*Scope, 0, len(s.dirty))
	for _, sc := range s.dirty {
		out = append(out, sc)
	}
	slices.SortFunc(out, compareScopes)
	return out
}

func compareScopes(a, b *Scope) int {
	if a.depth != b.depth {
		return a.depth - b.depth
	}
	switch {
	case a.id < b.id:
		return -1
	case a.id > b.id:
		return 1
	}
	return 0
}

// ScopeCount returns the number of live scopes.
func (s *Store) ScopeCount() int {
	return len(s.scopes)
}

// CellCount returns the number of live cells.
func (s *Store) CellCount() int {
	return len(s.cells) - len(s.free)
}

// alloc places a value in a free slot and returns its handle.
func (s *Store) alloc(value any, owner *Scope) (CellID, error) {
	var ownerID ScopeID
	if owner != nil {
		if owner.disposed {
			return 0, staleScope(owner.id)
		}
		ownerID = owner.id
	}

	var idx uint32
	if n := len(s.free); n > 0 {
		idx = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		idx = uint32(len(s.cells))
		s.cells = append(s.cells, cell{})
	}

	c := &s.cells[idx]
	c.gen++
	c.live = true
	c.value = value
	c.owner = ownerID
	c.dependents = nil

	id := makeCellID(idx, c.gen)
	if owner != nil {
		owner.owned = append(owner.owned, id)
	}
	return id, nil
}

func (s *Store) lookup(id CellID) (*cell, error) {
	idx := id.index()
	if int(idx) >= len(s.cells) {
		return nil, staleCell(id)
	}
	c := &s.cells[idx]
	if !c.live || c.gen != id.gen() {
		return nil, staleCell(id)
	}
	return c, nil
}

// read returns the cell value, subscribing the active scope if any.
func (s *Store) read(id CellID, track bool) (any, error) {
	c, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	if track && s.active != nil {
		s.active.track(id, c)
	}
	return c.value, nil
}

// write stores the value, marks every subscriber dirty and clears the
// subscriber set.
func (s *Store) write(id CellID, value any) error {
	c, err := s.lookup(id)
	if err != nil {
		return err
	}
	c.value = value
	dependents := c.dependents
	c.dependents = nil
	for sid := range dependents {
		if sc, ok := s.scopes[sid]; ok {
			delete(sc.deps, id)
			sc.MarkDirty()
		}
	}
	if len(dependents) > 0 {
		s.logger.Debug("cell written", "cell", id.String(), "invalidated", len(dependents))
	}
	return nil
}

// release frees a cell slot. Subscribers are forgotten, not dirtied.
func (s *Store) release(id CellID) {
	c, err := s.lookup(id)
	if err != nil {
		return
	}
	for sid := range c.dependents {
		if sc, ok := s.scopes[sid]; ok {
			delete(sc.deps, id)
		}
	}
	*c = cell{gen: c.gen}
	s.free = append(s.free, id.index())
}

// Release disposes a cell. Owned cells are normally released with their
// scope; releasing one directly removes it from the owner's cells and makes
// later access stale.
func (s *Store) Release(id CellID) error {
	c, err := s.lookup(id)
	if err != nil {
		return err
	}
	if owner, ok := s.scopes[c.owner]; ok {
		owner.disown(id)
		s.logger.Debug("owned cell released early", "cell", id.String(), "owner", owner.id, "label", owner.label)
	}
	s.release(id)
	return nil
}

// Owner returns the scope that owns the cell, if the cell is live and was
// created through a scope that has not been disposed.
func (s *Store) Owner(id CellID) (*Scope, bool) {
	c, err := s.lookup(id)
	if err != nil {
		return nil, false
	}
	sc, ok := s.scopes[c.owner]
	return sc, ok
}

// Live reports whether the cell handle still refers to a live cell.
func (s *Store) Live(id CellID) bool {
	_, err := s.lookup(id)
	return err == nil
}
