package view

import (
	"log/slog"
	"slices"

	"github.com/roach88/quill/internal/reactive"
	"github.com/roach88/quill/internal/world"
)

// EventKind names a reconciler lifecycle event.
type EventKind string

const (
	EventBuild   EventKind = "build"
	EventRerun   EventKind = "rerun"
	EventReuse   EventKind = "reuse"
	EventRaze    EventKind = "raze"
	EventCleanup EventKind = "cleanup"
	EventAttach  EventKind = "attach"
	EventError   EventKind = "error"
)

// Event is delivered to the runtime observer.
type Event struct {
	Kind     EventKind
	Instance string
	Scope    reactive.ScopeID
	Detail   string
}

// Runtime binds view trees to a world and a reactive store. It collects
// instance errors until the scheduler takes them.
type Runtime struct {
	world    *world.World
	store    *reactive.Store
	logger   *slog.Logger
	observer func(Event)
	errs     []error
	roots    map[world.EntityID]*Root
	live     int
	cancel   func()
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the runtime logger.
func WithLogger(l *slog.Logger) Option {
	return func(rt *Runtime) {
		rt.logger = l
	}
}

// WithObserver registers a callback for lifecycle events.
func WithObserver(fn func(Event)) Option {
	return func(rt *Runtime) {
		rt.observer = fn
	}
}

// NewRuntime creates a runtime over w and s. Despawning a root entity in w
// razes the view tree mounted on it.
func NewRuntime(w *world.World, s *reactive.Store, opts ...Option) *Runtime {
	rt := &Runtime{
		world:  w,
		store:  s,
		logger: slog.Default(),
		roots:  make(map[world.EntityID]*Root),
	}
	for _, opt := range opts {
		opt(rt)
	}
	rt.cancel = w.OnDespawn(func(id world.EntityID) {
		if r, ok := rt.roots[id]; ok {
			rt.logger.Info("root despawned", "entity", id.String())
			r.raze()
		}
	})
	return rt
}

// World returns the host world.
func (rt *Runtime) World() *world.World { return rt.world }

// Store returns the reactive store.
func (rt *Runtime) Store() *reactive.Store { return rt.store }

// LiveInstances returns the number of template instances not yet razed.
func (rt *Runtime) LiveInstances() int { return rt.live }

// TakeErrors returns and clears the instance errors collected so far.
func (rt *Runtime) TakeErrors() []error {
	errs := rt.errs
	rt.errs = nil
	return errs
}

// Roots returns the mounted roots in entity order.
func (rt *Runtime) Roots() []*Root {
	out := make([]*Root, 0, len(rt.roots))
	for _, r := range rt.roots {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b *Root) int {
		switch {
		case a.entity < b.entity:
			return -1
		case a.entity > b.entity:
			return 1
		}
		return 0
	})
	return out
}

// Close unmounts every root and stops listening for despawns.
func (rt *Runtime) Close() {
	for _, r := range rt.Roots() {
		r.Unmount()
	}
	if rt.cancel != nil {
		rt.cancel()
		rt.cancel = nil
	}
}

func (rt *Runtime) emit(ev Event) {
	if rt.observer != nil {
		rt.observer(ev)
	}
}

func (rt *Runtime) report(err *InstanceError) {
	rt.errs = append(rt.errs, err)
	rt.logger.Warn("instance error",
		"code", string(err.Code),
		"instance", err.Instance,
		"scope", err.Scope,
		"error", err.Err)
	rt.emit(Event{Kind: EventError, Instance: err.Instance, Scope: err.Scope, Detail: string(err.Code)})
}

// Root is a view tree mounted on a root entity. The view's nodes are kept
// as the root entity's children.
type Root struct {
	rt      *Runtime
	entity  world.EntityID
	name    string
	cx      *Cx
	slot    slot
	mounted bool
}

// Mount spawns a root entity named name, attaches it under parent (unless
// parent is NilEntity) and builds v into it.
func (rt *Runtime) Mount(name string, parent world.EntityID, v View) *Root {
	e := rt.world.Spawn(world.Root{Name: name})
	if parent != world.NilEntity {
		rt.world.AddChild(parent, e)
	}
	r := &Root{rt: rt, entity: e, name: name, mounted: true}
	r.cx = &Cx{rt: rt, root: r}
	rt.roots[e] = r
	r.slot = buildSlot(r.cx, v)
	r.link()
	rt.logger.Debug("root mounted", "root", name, "entity", e.String())
	return r
}

// Entity returns the root entity.
func (r *Root) Entity() world.EntityID { return r.entity }

// Name returns the root's name.
func (r *Root) Name() string { return r.name }

// Mounted reports whether the tree is still live.
func (r *Root) Mounted() bool { return r.mounted }

// Nodes returns the top-level nodes of the mounted tree.
func (r *Root) Nodes() []world.EntityID {
	if !r.mounted {
		return nil
	}
	return r.slot.nodes()
}

// Update reconciles the mounted tree against v, as a parent rebuild would.
func (r *Root) Update(v View) {
	if !r.mounted {
		return
	}
	if r.slot.update(r.cx, v, false) {
		r.link()
	}
}

// Unmount razes the tree and despawns the root entity.
func (r *Root) Unmount() {
	r.raze()
	r.rt.world.Despawn(r.entity)
}

func (r *Root) raze() {
	if !r.mounted {
		return
	}
	r.mounted = false
	delete(r.rt.roots, r.entity)
	r.slot.raze(r.cx)
}

func (r *Root) attach() {
	if !r.mounted {
		return
	}
	r.slot.attach(r.cx)
	r.link()
}

func (r *Root) link() {
	r.rt.world.SetChildren(r.entity, r.slot.nodes())
}
