package view

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/quill/internal/reactive"
	"github.com/roach88/quill/internal/world"
)

type fixture struct {
	w      *world.World
	s      *reactive.Store
	rt     *Runtime
	events []Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{w: world.NewWorld(), s: reactive.NewStore()}
	f.rt = NewRuntime(f.w, f.s,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithObserver(func(ev Event) { f.events = append(f.events, ev) }),
	)
	t.Cleanup(f.rt.Close)
	return f
}

// flush re-runs dirty scopes until none remain, parents first.
func (f *fixture) flush(t *testing.T) {
	t.Helper()
	for i := 0; f.s.DirtyCount() > 0; i++ {
		require.Less(t, i, 100, "did not converge")
		for _, sc := range f.s.DirtyScopes() {
			if sc.Disposed() || !sc.Dirty() {
				continue
			}
			sc.Reactor().React()
		}
	}
}

func (f *fixture) count(kind EventKind, instance string) int {
	n := 0
	for _, ev := range f.events {
		if ev.Kind == kind && ev.Instance == instance {
			n++
		}
	}
	return n
}

func (f *fixture) trace() []string {
	out := make([]string, 0, len(f.events))
	for _, ev := range f.events {
		out = append(out, string(ev.Kind)+" "+ev.Instance)
	}
	return out
}

func (f *fixture) text(id world.EntityID) string {
	if c, ok := f.w.Get(id, world.ComponentText).(world.Text); ok {
		return c.Value
	}
	if c, ok := f.w.Get(id, world.ComponentTag).(world.Tag); ok {
		return "<" + c.Name + ">"
	}
	return ""
}

func (f *fixture) texts(ids []world.EntityID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = f.text(id)
	}
	return out
}

func (f *fixture) childTexts(parent world.EntityID) []string {
	return f.texts(f.w.Children(parent))
}

func mustMutable[T any](t *testing.T, s *reactive.Store, v T) reactive.Mutable[T] {
	t.Helper()
	m, err := reactive.NewMutable(s, v, nil)
	require.NoError(t, err)
	return m
}

type none struct{}
