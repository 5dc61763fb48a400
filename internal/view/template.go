package view

import (
	"reflect"
	"slices"

	"github.com/roach88/quill/internal/reactive"
	"github.com/roach88/quill/internal/world"
)

// Template is a view produced by a create function from props. Each
// position a Template is built at owns one Instance.
type Template[P any] struct {
	Name   string
	Create func(cx *Cx, props P) View
	Props  P
}

// Factory produces Template values that share one identity.
type Factory[P any] func(props P) Template[P]

// Define names a create function and returns a factory for its templates.
func Define[P any](name string, create func(cx *Cx, props P) View) Factory[P] {
	return func(props P) Template[P] {
		return Template[P]{Name: name, Create: create, Props: props}
	}
}

type templateKey struct {
	name string
	fn   uintptr
}

func (t Template[P]) identity() any {
	return templateKey{name: t.Name, fn: reflect.ValueOf(t.Create).Pointer()}
}

func (t Template[P]) templateName() string { return t.Name }

// Equal reports whether o is the same template with structurally equal
// props. cmp uses it, so props may carry child templates and still memoize.
func (t Template[P]) Equal(o Template[P]) bool {
	return t.identity() == o.identity() && propsEqual(t.Props, o.Props)
}

func (t Template[P]) bind() func(*Cx) View {
	create, props := t.Create, t.Props
	return func(cx *Cx) View { return create(cx, props) }
}

type templateState[P any] struct {
	inst  *Instance
	props P
	nodes []world.EntityID
}

// Build implements View.
func (t Template[P]) Build(cx *Cx) State {
	inst := newInstance(cx, t.Name, t.bind())
	inst.build()
	return &templateState[P]{inst: inst, props: t.Props, nodes: inst.Nodes()}
}

// Rebuild implements View. Structurally equal props reuse the instance as
// is; otherwise the instance re-evaluates with the new props.
func (t Template[P]) Rebuild(cx *Cx, state State) (State, bool) {
	st := state.(*templateState[P])
	if st.inst.razed {
		next := t.Build(cx).(*templateState[P])
		return next, !slices.Equal(st.nodes, next.nodes)
	}
	if propsEqual(st.props, t.Props) {
		cx.rt.emit(Event{Kind: EventReuse, Instance: st.inst.name, Scope: st.inst.scope.ID()})
		return st, false
	}
	st.props = t.Props
	st.inst.create = t.bind()
	st.inst.rerun()
	nodes := st.inst.Nodes()
	changed := !slices.Equal(st.nodes, nodes)
	st.nodes = nodes
	return st, changed
}

// Raze implements View.
func (Template[P]) Raze(_ *Cx, state State) {
	state.(*templateState[P]).inst.raze()
}

// Nodes implements View.
func (Template[P]) Nodes(state State) []world.EntityID {
	return state.(*templateState[P]).nodes
}

// Attach implements View. The instance re-links its own subtree; here only
// the cached output is refreshed.
func (Template[P]) Attach(_ *Cx, state State) bool {
	st := state.(*templateState[P])
	nodes := st.inst.Nodes()
	if slices.Equal(st.nodes, nodes) {
		return false
	}
	st.nodes = nodes
	return true
}

// Instance is the reconciler for one template position: it owns the
// tracking scope, the hook slots and the (View, State) built from the last
// successful evaluation.
type Instance struct {
	rt     *Runtime
	name   string
	parent *Instance
	root   *Root
	cx     *Cx
	scope  *reactive.Scope
	create func(*Cx) View
	slot   slot

	placeholder bool
	razed       bool
	effects     []func() func()
	evals       int
}

func newInstance(cx *Cx, name string, create func(*Cx) View) *Instance {
	in := &Instance{
		rt:     cx.rt,
		name:   name,
		parent: cx.owner,
		root:   cx.root,
		create: create,
	}
	in.scope = cx.rt.store.NewScope(cx.Scope())
	in.scope.SetLabel(name)
	in.scope.SetReactor(in)
	in.cx = &Cx{rt: cx.rt, owner: in, root: cx.root}
	cx.rt.live++
	return in
}

// Name returns the template name.
func (in *Instance) Name() string { return in.name }

// Scope returns the instance's tracking scope.
func (in *Instance) Scope() *reactive.Scope { return in.scope }

// Evaluations returns how many times create has been invoked.
func (in *Instance) Evaluations() int { return in.evals }

// Razed reports whether the instance has been torn down.
func (in *Instance) Razed() bool { return in.razed }

// Nodes returns the instance's current output.
func (in *Instance) Nodes() []world.EntityID {
	if in.razed {
		return nil
	}
	return in.slot.nodes()
}

func (in *Instance) build() {
	v, err := in.evaluate()
	if err != nil {
		in.slot = buildSlot(in.cx, Empty{})
		in.placeholder = true
		in.fail(err)
		return
	}
	in.slot = buildSlot(in.cx, v)
	in.rt.emit(Event{Kind: EventBuild, Instance: in.name, Scope: in.scope.ID()})
	in.rt.logger.Debug("instance built", "instance", in.name, "scope", in.scope.ID())
	in.runEffects()
}

// rerun starts a fresh tracking generation, re-invokes create and patches
// the previous build. On failure the previous build stays in place.
func (in *Instance) rerun() {
	in.scope.Reset()
	v, err := in.evaluate()
	if err != nil {
		in.fail(err)
		return
	}
	if in.placeholder {
		in.placeholder = false
		in.slot.raze(in.cx)
		in.slot = buildSlot(in.cx, v)
	} else {
		in.slot.update(in.cx, v, false)
	}
	in.rt.emit(Event{Kind: EventRerun, Instance: in.name, Scope: in.scope.ID()})
	in.rt.logger.Debug("instance rerun", "instance", in.name, "scope", in.scope.ID())
	in.runEffects()
}

// evaluate invokes create with the instance scope recording.
func (in *Instance) evaluate() (v View, err error) {
	store := in.rt.store
	prev := store.Suspend()
	defer store.Resume(prev)

	if err := in.scope.Begin(); err != nil {
		return nil, err
	}
	defer in.scope.End()

	in.effects = nil
	defer func() {
		if r := recover(); r != nil {
			err = recovered(r)
			v = nil
			in.scope.DiscardHooks()
		}
	}()

	in.evals++
	v = in.create(in.cx)
	if err := in.scope.CheckHooks(); err != nil {
		return nil, err
	}
	return orEmpty(v), nil
}

func (in *Instance) runEffects() {
	effects := in.effects
	in.effects = nil
	if len(effects) == 0 {
		return
	}

	store := in.rt.store
	prev := store.Suspend()
	defer store.Resume(prev)
	if err := in.scope.Begin(); err != nil {
		in.rt.report(in.cx.instanceError(classify(err), err))
		return
	}
	defer in.scope.End()

	for _, fx := range effects {
		if in.razed {
			return
		}
		in.runEffect(fx)
	}
}

func (in *Instance) runEffect(fx func() func()) {
	defer func() {
		if r := recover(); r != nil {
			err := recovered(r)
			in.rt.report(in.cx.instanceError(classify(err), err))
		}
	}()
	if cleanup := fx(); cleanup != nil {
		if err := in.scope.OnCleanup(cleanup); err != nil {
			in.rt.report(in.cx.instanceError(classify(err), err))
		}
	}
}

// fail reports an evaluation error. Hook order violations and stale
// handles raze the instance; a panicking create keeps the previous build.
func (in *Instance) fail(err error) {
	in.effects = nil
	code := classify(err)
	in.rt.report(in.cx.instanceError(code, err))
	if code == ErrCodeHookOrder || code == ErrCodeStaleHandle {
		in.raze()
	}
}

// React re-runs the instance for the scheduler and propagates an output
// change to the enclosing element.
func (in *Instance) React() bool {
	if in.razed {
		return false
	}
	before := in.Nodes()
	in.rerun()
	if slices.Equal(before, in.Nodes()) {
		return false
	}
	in.propagate()
	return true
}

func (in *Instance) propagate() {
	in.rt.emit(Event{Kind: EventAttach, Instance: in.name, Scope: in.scope.ID()})
	for p := in.parent; p != nil; p = p.parent {
		if p.razed || !p.slot.attach(p.cx) {
			return
		}
	}
	if in.root != nil {
		in.root.attach()
	}
}

// raze tears the instance down: the view first (nested instances, then
// nodes), then the scope (cleanups, owned cells).
func (in *Instance) raze() {
	if in.razed {
		return
	}
	in.razed = true
	in.rt.emit(Event{Kind: EventRaze, Instance: in.name, Scope: in.scope.ID()})
	in.slot.raze(in.cx)
	in.scope.Dispose()
	in.effects = nil
	in.rt.live--
	in.rt.logger.Debug("instance razed", "instance", in.name, "scope", in.scope.ID())
}
