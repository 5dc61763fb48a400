package store

import (
	"context"
	"path/filepath"
	"testing"
)

// createTestStore creates a new file-backed store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// seedRun inserts a run with default limits.
func seedRun(t *testing.T, s *Store, id string) Run {
	t.Helper()
	run, err := s.BeginRun(context.Background(), Run{ID: id, MaxDivergences: 32, Window: 1})
	if err != nil {
		t.Fatalf("BeginRun(%q) failed: %v", id, err)
	}
	return run
}

// createTestPass creates a converged pass with n reactions in one iteration.
func createTestPass(runID string, tick int64, n int) Pass {
	p := Pass{
		RunID:      runID,
		Tick:       tick,
		Iterations: 1,
		Converged:  true,
		DirtyTrace: []int{n},
	}
	for i := 0; i < n; i++ {
		p.Reactions = append(p.Reactions, Reaction{Iteration: 1, Seq: i + 1, ScopeID: uint64(i + 1), Label: "Row"})
	}
	return p
}
