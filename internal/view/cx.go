package view

import (
	"reflect"

	"github.com/roach88/quill/internal/reactive"
	"github.com/roach88/quill/internal/world"
)

// Cx is the context handed to create functions and to every View method.
// Inside a template it carries the owning instance, whose scope records
// reads and holds hook slots.
type Cx struct {
	rt    *Runtime
	owner *Instance
	root  *Root
}

// Runtime returns the runtime the view tree belongs to.
func (cx *Cx) Runtime() *Runtime { return cx.rt }

// World returns the host world display nodes are created in.
func (cx *Cx) World() *world.World { return cx.rt.world }

// Store returns the reactive store.
func (cx *Cx) Store() *reactive.Store { return cx.rt.store }

// Owner returns the enclosing template instance, or nil at the root.
func (cx *Cx) Owner() *Instance { return cx.owner }

// Scope returns the owning instance's scope, or nil at the root.
func (cx *Cx) Scope() *reactive.Scope {
	if cx.owner == nil {
		return nil
	}
	return cx.owner.scope
}

func (cx *Cx) name() string {
	if cx.owner == nil {
		return "root"
	}
	return cx.owner.name
}

func (cx *Cx) instanceError(code InstanceErrorCode, err error) *InstanceError {
	ie := &InstanceError{Code: code, Instance: cx.name(), Err: err}
	if sc := cx.Scope(); sc != nil {
		ie.Scope = sc.ID()
	}
	return ie
}

func (cx *Cx) hook(kind string) (*reactive.HookSlot, bool) {
	if cx.owner == nil || cx.owner.razed {
		abort(ErrNoInstance)
	}
	slot, fresh, err := cx.owner.scope.NextHook(kind)
	if err != nil {
		abort(err)
	}
	return slot, fresh
}

func kindOf[T any](kind string) string {
	return kind + ":" + reflect.TypeFor[T]().String()
}

// CreateMutable returns a cell owned by the current instance. The cell is
// created with initial on the first run and returned unchanged afterwards;
// it is released when the instance is razed.
func CreateMutable[T any](cx *Cx, initial T) reactive.Mutable[T] {
	slot, fresh := cx.hook(kindOf[T]("mutable"))
	if fresh {
		m, err := reactive.NewMutable(cx.rt.store, initial, cx.owner.scope)
		if err != nil {
			abort(err)
		}
		slot.Value = m
	}
	return slot.Value.(reactive.Mutable[T])
}

// Use reads m and subscribes the current instance to it.
func Use[T any](cx *Cx, m reactive.Mutable[T]) T {
	v, err := m.Get()
	if err != nil {
		abort(err)
	}
	return v
}

// CreateEffect schedules fn to run after every evaluation of the current
// instance, once its view has been built or rebuilt. Reads inside fn are
// tracked. A non-nil returned function runs before the next evaluation and
// when the instance is razed.
func CreateEffect(cx *Cx, fn func() func()) {
	cx.hook("effect")
	cx.owner.effects = append(cx.owner.effects, fn)
}

type memoSlot[T any] struct {
	deps  []any
	value T
}

// CreateMemo returns compute's cached result, recomputing it on the first
// run and whenever deps differ structurally from the previous run's.
func CreateMemo[T any](cx *Cx, compute func() T, deps ...any) T {
	slot, fresh := cx.hook(kindOf[T]("memo"))
	ms, _ := slot.Value.(*memoSlot[T])
	if fresh || ms == nil || !propsEqual(ms.deps, deps) {
		ms = &memoSlot[T]{deps: deps, value: compute()}
		slot.Value = ms
	}
	return ms.value
}

// CreateEntity spawns a world entity owned by the current instance. The
// entity persists across runs and is despawned when the instance is razed.
func CreateEntity(cx *Cx, cs ...world.Component) world.EntityID {
	slot, fresh := cx.hook("entity")
	if fresh {
		w := cx.rt.world
		id := w.Spawn(cs...)
		if err := cx.owner.scope.OnDispose(func() { w.Despawn(id) }); err != nil {
			abort(err)
		}
		slot.Value = id
	}
	return slot.Value.(world.EntityID)
}

// OnCleanup registers fn to run before the next evaluation of the current
// instance or when it is razed.
func OnCleanup(cx *Cx, fn func()) {
	if cx.owner == nil {
		abort(ErrNoInstance)
	}
	in := cx.owner
	err := in.scope.OnCleanup(func() {
		in.rt.emit(Event{Kind: EventCleanup, Instance: in.name, Scope: in.scope.ID()})
		fn()
	})
	if err != nil {
		abort(err)
	}
}
