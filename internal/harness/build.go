package harness

import (
	"fmt"
	"slices"

	"github.com/roach88/quill/internal/ir"
	"github.com/roach88/quill/internal/reactive"
	"github.com/roach88/quill/internal/view"
)

// builder turns scenario nodes into views. Every node is evaluated inside
// a template's create function, so $cell reads subscribe that template.
type builder struct {
	scenario  *Scenario
	cells     map[string]reactive.Mutable[ir.Value]
	templates map[string]view.Factory[ir.Object]
	app       view.Factory[ir.Object]
}

func newBuilder(s *Scenario, st *reactive.Store) (*builder, error) {
	values, err := toValues(s.State)
	if err != nil {
		return nil, fmt.Errorf("state: %w", err)
	}

	b := &builder{
		scenario:  s,
		cells:     make(map[string]reactive.Mutable[ir.Value], len(values)),
		templates: make(map[string]view.Factory[ir.Object], len(s.Templates)),
	}
	for name, v := range values {
		m, err := reactive.NewMutable(st, v, nil)
		if err != nil {
			return nil, fmt.Errorf("state %q: %w", name, err)
		}
		b.cells[name] = m
	}
	for name, def := range s.Templates {
		body := def.Body
		b.templates[name] = view.Define(name, func(cx *view.Cx, props ir.Object) view.View {
			return b.node(cx, &body, b.tracked(cx, props))
		})
	}
	b.app = view.Define(AppTemplate, func(cx *view.Cx, _ ir.Object) view.View {
		return b.node(cx, &s.Root, b.tracked(cx, nil))
	})
	return b, nil
}

// tracked returns a scope whose cell reads subscribe the instance behind cx.
func (b *builder) tracked(cx *view.Cx, vars ir.Object) scope {
	return scope{
		vars: vars,
		read: func(cell string) ir.Value {
			return view.Use(cx, b.cells[cell])
		},
	}
}

// cell returns the handle for a declared cell.
func (b *builder) cell(name string) (reactive.Mutable[ir.Value], bool) {
	m, ok := b.cells[name]
	return m, ok
}

func (b *builder) nodes(cx *view.Cx, ns []Node, sc scope) []view.View {
	out := make([]view.View, len(ns))
	for i := range ns {
		out[i] = b.node(cx, &ns[i], sc)
	}
	return out
}

func (b *builder) node(cx *view.Cx, n *Node, sc scope) view.View {
	switch {
	case n.Element != "":
		return view.El(n.Element, b.nodes(cx, n.Children, sc)...)

	case n.Text != nil:
		return view.Text(sc.interpolate(parseText(*n.Text)))

	case n.Fragment != nil:
		return view.Fragment(b.nodes(cx, n.Fragment, sc))

	case n.When != "":
		test := ir.Truthy(sc.eval(n.When))
		// Only the active branch is evaluated, so only its reads subscribe.
		var then, els view.View
		if test && n.Then != nil {
			then = b.node(cx, n.Then, sc)
		}
		if !test && n.Else != nil {
			els = b.node(cx, n.Else, sc)
		}
		return view.Cond(test, then, els)

	case n.Switch != "":
		return b.switchNode(cx, n, sc)

	case n.Each != "":
		return b.eachNode(cx, n, sc)

	case n.Dynamic != nil:
		return view.Dynamic(b.node(cx, n.Dynamic, sc))

	case n.Template != "":
		return b.templates[n.Template](b.props(n.Props, sc))

	case n.Feedback != nil:
		return b.feedbackNode(cx, n.Feedback)
	}
	return view.Empty{}
}

func (b *builder) props(exprs map[string]string, sc scope) ir.Object {
	props := make(ir.Object, len(exprs))
	for name, expr := range exprs {
		props[name] = sc.eval(expr)
	}
	return props
}

// switchNode adds every arm in key order so arm positions stay stable, but
// evaluates only the selected one.
func (b *builder) switchNode(cx *view.Cx, n *Node, sc scope) view.View {
	value := ir.Display(sc.eval(n.Switch))
	keys := make([]string, 0, len(n.Cases))
	for k := range n.Cases {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	sw := view.Switch(value)
	matched := false
	for _, k := range keys {
		var v view.View
		if k == value {
			arm := n.Cases[k]
			v = b.node(cx, &arm, sc)
			matched = true
		}
		sw = sw.Case(k, v)
	}
	if !matched && n.Default != nil {
		sw = sw.Fallback(b.node(cx, n.Default, sc))
	}
	return sw
}

// eachNode builds a keyed or index list. Rows are templates whose props
// are evaluated from the row variable only.
func (b *builder) eachNode(cx *view.Cx, n *Node, sc scope) view.View {
	items, _ := sc.eval(n.Each).(ir.List)
	row := b.templates[n.Do.Template]
	as := n.As
	if as == "" {
		as = "item"
	}
	rowScope := scope{vars: sc.vars}

	var fallback view.View
	if n.Fallback != nil {
		fallback = b.node(cx, n.Fallback, sc)
	}

	if n.Key == "" {
		return view.ForIndex(items, func(i int, item ir.Value) view.View {
			return row(b.props(n.Do.Props, rowScope.with(as, item).with("index", ir.Int(i))))
		}).Fallback(fallback)
	}

	key := n.Key
	return view.For(items,
		func(item ir.Value) string { return ir.Display(ir.Field(item, key)) },
		func(item ir.Value) view.View {
			return row(b.props(n.Do.Props, rowScope.with(as, item)))
		},
	).Fallback(fallback)
}

// feedbackNode subscribes to the cell and writes it again after every
// evaluation, until the limit is reached.
func (b *builder) feedbackNode(cx *view.Cx, fb *Feedback) view.View {
	cell := b.cells[fb.Cell]
	cur, _ := view.Use(cx, cell).(ir.Int)
	step := fb.Step
	if step == 0 {
		step = 1
	}
	view.CreateEffect(cx, func() func() {
		if fb.Limit == 0 || int64(cur) < fb.Limit {
			if err := cell.Set(ir.Int(int64(cur) + step)); err != nil {
				panic(err)
			}
		}
		return nil
	})
	return view.Empty{}
}
