package view

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quill/internal/world"
)

type item struct {
	Key string
	Val string
}

func itemKey(it item) string { return it.Key }

func mountList(t *testing.T, f *fixture, initial []item) (*Root, func([]item)) {
	t.Helper()
	items := mustMutable(t, f.s, initial)
	row := Define("Row", func(cx *Cx, it item) View { return Text(it.Val) })
	list := Define("List", func(cx *Cx, _ none) View {
		return El("list", For(Use(cx, items), itemKey, func(it item) View { return row(it) }))
	})
	r := f.rt.Mount("main", world.NilEntity, list(none{}))
	return r, func(next []item) {
		require.NoError(t, items.Set(next))
		f.flush(t)
	}
}

// TestFor_ReorderReusesEverything tests that a pure reorder neither
// rebuilds nor razes any row.
func TestFor_ReorderReusesEverything(t *testing.T) {
	f := newFixture(t)
	r, set := mountList(t, f, []item{{"k1", "a"}, {"k2", "b"}, {"k3", "c"}})
	list := r.Nodes()[0]
	before := f.w.Children(list)
	f.events = nil

	set([]item{{"k3", "c"}, {"k1", "a"}, {"k2", "b"}})

	assert.Zero(t, f.count(EventBuild, "Row"))
	assert.Zero(t, f.count(EventRerun, "Row"))
	assert.Zero(t, f.count(EventRaze, "Row"))
	assert.Equal(t, []string{"c", "a", "b"}, f.childTexts(list))
	assert.Equal(t, []world.EntityID{before[2], before[0], before[1]}, f.w.Children(list))
}

// TestFor_InsertBuildsOnlyNewKey tests keyed insertion.
func TestFor_InsertBuildsOnlyNewKey(t *testing.T) {
	f := newFixture(t)
	r, set := mountList(t, f, []item{{"k1", "a"}, {"k2", "b"}})
	list := r.Nodes()[0]
	f.events = nil

	set([]item{{"k1", "a"}, {"k3", "x"}, {"k2", "b"}})

	assert.Equal(t, 1, f.count(EventBuild, "Row"))
	assert.Zero(t, f.count(EventRerun, "Row"))
	assert.Zero(t, f.count(EventRaze, "Row"))
	assert.Equal(t, []string{"a", "x", "b"}, f.childTexts(list))
}

// TestFor_DeleteAndChange tests razing vanished keys and rebuilding changed
// values in place.
func TestFor_DeleteAndChange(t *testing.T) {
	f := newFixture(t)
	r, set := mountList(t, f, []item{{"k1", "a"}, {"k2", "b"}, {"k3", "c"}})
	list := r.Nodes()[0]
	before := f.w.Children(list)
	f.events = nil

	set([]item{{"k1", "A"}, {"k3", "c"}})

	assert.Equal(t, 1, f.count(EventRaze, "Row"))
	assert.Equal(t, 1, f.count(EventRerun, "Row"))
	assert.Zero(t, f.count(EventBuild, "Row"))
	assert.Equal(t, []string{"A", "c"}, f.childTexts(list))
	assert.Equal(t, []world.EntityID{before[0], before[2]}, f.w.Children(list))
}

// TestFor_CustomEqual tests a supplied comparator.
func TestFor_CustomEqual(t *testing.T) {
	f := newFixture(t)
	calls := 0
	each := func(it item) View {
		calls++
		return Text(it.Val)
	}
	caseless := func(a, b item) bool { return strings.EqualFold(a.Val, b.Val) }

	r := f.rt.Mount("main", world.NilEntity,
		For([]item{{"k1", "a"}}, itemKey, each).Equal(caseless))
	r.Update(For([]item{{"k1", "A"}}, itemKey, each).Equal(caseless))

	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{"a"}, f.childTexts(r.Entity()))
}

// TestFor_Fallback tests the empty-list fallback.
func TestFor_Fallback(t *testing.T) {
	f := newFixture(t)
	each := func(it item) View { return Text(it.Val) }

	r := f.rt.Mount("main", world.NilEntity,
		For[string, item](nil, itemKey, each).Fallback(Text("empty")))
	assert.Equal(t, []string{"empty"}, f.childTexts(r.Entity()))
	fallback := r.Nodes()[0]

	r.Update(For([]item{{"k1", "a"}}, itemKey, each).Fallback(Text("empty")))
	assert.Equal(t, []string{"a"}, f.childTexts(r.Entity()))
	assert.False(t, f.w.Alive(fallback))

	r.Update(For[string, item](nil, itemKey, each).Fallback(Text("none")))
	assert.Equal(t, []string{"none"}, f.childTexts(r.Entity()))
}

// TestForIndex tests position-keyed lists.
func TestForIndex(t *testing.T) {
	f := newFixture(t)
	calls := 0
	each := func(i int, s string) View {
		calls++
		return Text(s)
	}

	r := f.rt.Mount("main", world.NilEntity, ForIndex([]string{"a", "b", "c"}, each))
	assert.Equal(t, 3, calls)

	r.Update(ForIndex([]string{"a", "x", "c", "d"}, each))
	assert.Equal(t, 5, calls, "one changed index and one append")
	assert.Equal(t, []string{"a", "x", "c", "d"}, f.childTexts(r.Entity()))

	r.Update(ForIndex([]string{"x", "c", "d"}, each))
	assert.Equal(t, 8, calls, "deleting the head shifts every position")
	assert.Equal(t, []string{"x", "c", "d"}, f.childTexts(r.Entity()))

	r.Update(ForIndex([]string{}, each).Fallback(Text("-")))
	assert.Equal(t, []string{"-"}, f.childTexts(r.Entity()))
}

// TestCond_SwitchesBranches tests that the inactive branch is razed.
func TestCond_SwitchesBranches(t *testing.T) {
	f := newFixture(t)
	r := f.rt.Mount("main", world.NilEntity, Cond(true, Text("yes"), El("no")))
	yes := r.Nodes()[0]

	r.Update(Cond(true, Text("YES"), El("no")))
	assert.Equal(t, []world.EntityID{yes}, r.Nodes())
	assert.Equal(t, "YES", f.text(yes))

	r.Update(Cond(false, Text("yes"), El("no")))
	assert.False(t, f.w.Alive(yes))
	assert.Equal(t, []string{"<no>"}, f.childTexts(r.Entity()))

	r.Update(Cond(true, nil, El("no")))
	assert.Empty(t, r.Nodes())
	assert.Empty(t, f.rt.TakeErrors(), "branch change is not a type mismatch")
}

// TestSwitch tests arm selection and fallback.
func TestSwitch(t *testing.T) {
	f := newFixture(t)
	sw := func(v string) View {
		return Switch(v).
			Case("a", Text("A")).
			Case("b", El("B")).
			Fallback(Text("?"))
	}

	r := f.rt.Mount("main", world.NilEntity, sw("b"))
	assert.Equal(t, []string{"<B>"}, f.childTexts(r.Entity()))

	r.Update(sw("a"))
	assert.Equal(t, []string{"A"}, f.childTexts(r.Entity()))

	r.Update(sw("z"))
	assert.Equal(t, []string{"?"}, f.childTexts(r.Entity()))

	r.Update(Switch(1).Case(1, Text("one")))
	assert.Equal(t, []string{"one"}, f.childTexts(r.Entity()))

	errs := f.rt.TakeErrors()
	require.Len(t, errs, 1, "switching discriminant type replaces the view")
	assert.True(t, IsTypeMismatch(errs[0]))
}

// TestDynamic_RazesBeforeBuild tests that a type change under Dynamic razes
// the old view fully before building the new one, without an error.
func TestDynamic_RazesBeforeBuild(t *testing.T) {
	f := newFixture(t)
	var order []string
	button := Define("Button", func(cx *Cx, _ none) View {
		order = append(order, "button create")
		OnCleanup(cx, func() { order = append(order, "button cleanup") })
		return El("button")
	})
	checkbox := Define("Checkbox", func(cx *Cx, _ none) View {
		order = append(order, "checkbox create")
		return El("checkbox")
	})
	which := mustMutable(t, f.s, "button")
	host := Define("Host", func(cx *Cx, _ none) View {
		if Use(cx, which) == "button" {
			return Dynamic(button(none{}))
		}
		return Dynamic(checkbox(none{}))
	})

	r := f.rt.Mount("main", world.NilEntity, host(none{}))
	require.NoError(t, which.Set("checkbox"))
	f.flush(t)

	assert.Equal(t, []string{"button create", "button cleanup", "checkbox create"}, order)
	assert.Equal(t, []string{"<checkbox>"}, f.childTexts(r.Entity()))
	assert.Empty(t, f.rt.TakeErrors())
	assert.Equal(t, 2, f.rt.LiveInstances())
}

// TestTypeMismatch_WithoutDynamic tests the direct case: the old view is
// still razed and the new one built, and the mismatch is reported.
func TestTypeMismatch_WithoutDynamic(t *testing.T) {
	f := newFixture(t)
	var order []string
	button := Define("Button", func(cx *Cx, _ none) View {
		OnCleanup(cx, func() { order = append(order, "button cleanup") })
		return El("button")
	})
	checkbox := Define("Checkbox", func(cx *Cx, _ none) View {
		order = append(order, "checkbox create")
		return El("checkbox")
	})
	which := mustMutable(t, f.s, "button")
	host := Define("Host", func(cx *Cx, _ none) View {
		if Use(cx, which) == "button" {
			return button(none{})
		}
		return checkbox(none{})
	})

	r := f.rt.Mount("main", world.NilEntity, host(none{}))
	require.NoError(t, which.Set("checkbox"))
	f.flush(t)

	assert.Equal(t, []string{"button cleanup", "checkbox create"}, order)
	assert.Equal(t, []string{"<checkbox>"}, f.childTexts(r.Entity()))
	errs := f.rt.TakeErrors()
	require.Len(t, errs, 1)
	assert.True(t, IsTypeMismatch(errs[0]))
	assert.Contains(t, errs[0].Error(), "template Button replaced by template Checkbox")
}

// TestElement_Children tests child reconciliation by position.
func TestElement_Children(t *testing.T) {
	f := newFixture(t)
	r := f.rt.Mount("main", world.NilEntity, El("row", Text("a"), Text("b")))
	row := r.Nodes()[0]
	first := f.w.Children(row)[0]

	r.Update(El("col", Text("a"), Text("b"), Text("c")))
	assert.Equal(t, []world.EntityID{row}, r.Nodes())
	assert.Equal(t, "<col>", f.text(row))
	assert.Equal(t, []string{"a", "b", "c"}, f.childTexts(row))
	assert.Equal(t, first, f.w.Children(row)[0])

	r.Update(El("col", Text("a")))
	assert.Equal(t, []string{"a"}, f.childTexts(row))
	assert.Equal(t, 3, f.w.Len(), "root, col and one text")
}

type widthComp struct{ N int }

func (widthComp) Type() world.ComponentType { return world.ComponentUser }

type selectedComp struct{}

func (selectedComp) Type() world.ComponentType { return world.ComponentUser + 1 }

// TestElement_InsertEffects tests component insertion on an element's
// entity: re-run on dep change, conditional insert and removal.
func TestElement_InsertEffects(t *testing.T) {
	f := newFixture(t)
	calls := 0
	cell := func(n int, selected bool) Element {
		return El("cell", Text("x")).
			Insert(n, func() world.Component {
				calls++
				return widthComp{N: n}
			}).
			InsertIf(selected, func() world.Component { return selectedComp{} })
	}

	r := f.rt.Mount("main", world.NilEntity, cell(3, false))
	node := r.Nodes()[0]
	assert.Equal(t, widthComp{N: 3}, f.w.Get(node, widthComp{}.Type()))
	assert.False(t, f.w.Has(node, selectedComp{}.Type()))

	r.Update(cell(3, true))
	assert.Equal(t, 1, calls, "deps unchanged")
	assert.True(t, f.w.Has(node, selectedComp{}.Type()))

	r.Update(cell(4, false))
	assert.Equal(t, 2, calls)
	assert.Equal(t, widthComp{N: 4}, f.w.Get(node, widthComp{}.Type()))
	assert.False(t, f.w.Has(node, selectedComp{}.Type()))

	r.Update(El("cell", Text("x")))
	assert.False(t, f.w.Has(node, widthComp{}.Type()), "dropped effect removes its component")
	assert.Equal(t, []world.EntityID{node}, r.Nodes())
	assert.Equal(t, "<cell>", f.text(node))
}

// TestElement_Equal tests that elements compare by tag, children and
// effect deps, ignoring the component functions.
func TestElement_Equal(t *testing.T) {
	box := func(text string, n int) Element {
		return El("box", Text(text)).Insert(n, func() world.Component { return widthComp{N: n} })
	}

	assert.True(t, propsEqual(box("x", 1), box("x", 1)))
	assert.False(t, propsEqual(box("x", 1), box("x", 2)))
	assert.False(t, propsEqual(box("x", 1), box("y", 1)))
	assert.False(t, propsEqual(box("x", 1), El("box", Text("x"))))
	assert.False(t, propsEqual(
		El("box").Insert(true, func() world.Component { return selectedComp{} }),
		El("box").InsertIf(true, func() world.Component { return selectedComp{} }),
	))
}

// TestPortal tests that a portal contributes no nodes to its parent, keeps
// its children live under a detached entity and despawns them on raze.
func TestPortal(t *testing.T) {
	f := newFixture(t)
	msg := mustMutable(t, f.s, "hi")
	tip := Define("Tip", func(cx *Cx, _ none) View {
		return Text(Use(cx, msg))
	})

	r := f.rt.Mount("main", world.NilEntity, El("row", Text("a"), Portal("overlay", tip(none{}))))
	row := r.Nodes()[0]
	assert.Equal(t, []string{"a"}, f.childTexts(row))

	roots := f.w.Query(world.ComponentRoot)
	require.Len(t, roots, 2)
	overlay := roots[1]
	assert.Equal(t, world.Root{Name: "overlay"}, f.w.Get(overlay, world.ComponentRoot))
	assert.Equal(t, world.NilEntity, f.w.Parent(overlay))
	assert.Equal(t, []string{"hi"}, f.childTexts(overlay))

	require.NoError(t, msg.Set("bye"))
	f.flush(t)
	assert.Equal(t, []string{"bye"}, f.childTexts(overlay))
	assert.Equal(t, []string{"a"}, f.childTexts(row))

	r.Update(El("row", Text("a")))
	assert.False(t, f.w.Alive(overlay))
	assert.Zero(t, f.rt.LiveInstances())
}
