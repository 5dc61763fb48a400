package engine

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/quill/internal/reactive"
	"github.com/roach88/quill/internal/store"
	"github.com/roach88/quill/internal/view"
	"github.com/roach88/quill/internal/world"
)

type none struct{}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setupRuntime creates a view runtime over a fresh world and store.
func setupRuntime(t *testing.T) *view.Runtime {
	t.Helper()
	rt := view.NewRuntime(world.NewWorld(), reactive.NewStore(), view.WithLogger(discardLogger()))
	t.Cleanup(rt.Close)
	return rt
}

// setupJournal opens a journal in a temp dir.
func setupJournal(t *testing.T) *store.Store {
	t.Helper()
	j, err := store.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func newTestScheduler(rt *view.Runtime, opts ...SchedulerOption) *Scheduler {
	return NewScheduler(rt, append([]SchedulerOption{WithLogger(discardLogger())}, opts...)...)
}

func mustMutable[T any](t *testing.T, s *reactive.Store, v T) reactive.Mutable[T] {
	t.Helper()
	m, err := reactive.NewMutable(s, v, nil)
	require.NoError(t, err)
	return m
}

// mountLoop mounts a template whose effect writes the cell its create
// function reads, so it re-dirties itself on every run.
func mountLoop(t *testing.T, rt *view.Runtime) reactive.Mutable[int] {
	t.Helper()
	n := mustMutable(t, rt.Store(), 0)
	loop := view.Define("Loop", func(cx *view.Cx, _ none) view.View {
		v := view.Use(cx, n)
		view.CreateEffect(cx, func() func() {
			require.NoError(t, n.Set(v+1))
			return nil
		})
		return view.Text("loop")
	})
	rt.Mount("main", world.NilEntity, loop(none{}))
	return n
}
