package reactive

import "fmt"

// Mutable is a typed handle to a reactive cell. Copying the handle does not
// copy the value; every copy refers to the same cell.
type Mutable[T any] struct {
	store *Store
	id    CellID
}

// NewMutable allocates a cell holding initial. If owner is non-nil the cell
// is released when owner is disposed; otherwise the caller releases it.
func NewMutable[T any](s *Store, initial T, owner *Scope) (Mutable[T], error) {
	id, err := s.alloc(initial, owner)
	if err != nil {
		return Mutable[T]{}, err
	}
	return Mutable[T]{store: s, id: id}, nil
}

// MutableFrom rebuilds a typed handle from a cell ID.
func MutableFrom[T any](s *Store, id CellID) Mutable[T] {
	return Mutable[T]{store: s, id: id}
}

// ID returns the cell identifier.
func (m Mutable[T]) ID() CellID { return m.id }

// Equal reports whether both handles refer to the same cell.
func (m Mutable[T]) Equal(o Mutable[T]) bool {
	return m.store == o.store && m.id == o.id
}

// Valid reports whether the handle still refers to a live cell.
func (m Mutable[T]) Valid() bool {
	return m.store != nil && m.store.Live(m.id)
}

// Get returns the current value and subscribes the active scope.
func (m Mutable[T]) Get() (T, error) {
	return m.get(true)
}

// Peek returns the current value without subscribing.
func (m Mutable[T]) Peek() (T, error) {
	return m.get(false)
}

func (m Mutable[T]) get(track bool) (T, error) {
	var zero T
	if m.store == nil {
		return zero, staleCell(m.id)
	}
	v, err := m.store.read(m.id, track)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("cell %s holds %T, not %T", m.id, v, zero)
	}
	return t, nil
}

// Set stores v and marks every scope that read the cell since the last
// write as dirty.
func (m Mutable[T]) Set(v T) error {
	if m.store == nil {
		return staleCell(m.id)
	}
	return m.store.write(m.id, v)
}

// Update applies fn to the current value (untracked) and stores the result.
func (m Mutable[T]) Update(fn func(T) T) error {
	cur, err := m.Peek()
	if err != nil {
		return err
	}
	return m.Set(fn(cur))
}

// Release disposes the cell. Later access returns ErrStaleHandle.
func (m Mutable[T]) Release() error {
	if m.store == nil {
		return staleCell(m.id)
	}
	return m.store.Release(m.id)
}
