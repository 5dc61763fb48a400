package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quill/internal/engine"
	"github.com/roach88/quill/internal/store"
)

func loadTestScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	scenario, err := LoadScenario(filepath.Join("../../testdata/scenarios", name+".yaml"))
	require.NoError(t, err)
	return scenario
}

func mustParse(t *testing.T, content string) *Scenario {
	t.Helper()
	scenario, err := ParseScenario([]byte(content))
	require.NoError(t, err)
	return scenario
}

func labels(trace []TraceEvent) []string {
	out := make([]string, len(trace))
	for i, ev := range trace {
		out[i] = ev.Label()
	}
	return out
}

func TestRun_Counter(t *testing.T) {
	result, err := Run(loadTestScenario(t, "counter"))
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Errors)
	assert.Equal(t, "test-run", result.RunID)
	assert.Equal(t, []string{"build App", "rerun App"}, labels(result.Trace))
	assert.Equal(t, int64(0), result.Trace[0].Tick)
	assert.Equal(t, int64(2), result.Trace[1].Tick)
	assert.Equal(t, []string{"box", `  "count=1"`}, result.Outline)
	assert.Equal(t, 1, result.LiveInstances)

	require.Len(t, result.Passes, 2)
	assert.Equal(t, PassSummary{Tick: 1, Converged: true, DirtyTrace: []int{0}}, result.Passes[0])
	assert.Equal(t, PassSummary{Tick: 2, Iterations: 1, Reactions: 1, Converged: true, DirtyTrace: []int{1, 0}}, result.Passes[1])
}

func TestRun_MinimalInlineScenario(t *testing.T) {
	scenario := mustParse(t, `
name: minimal
description: "Static tree"
root:
  element: box
  children:
    - text: hello
assertions:
  - type: outline
    lines: [box, '  "hello"']
  - type: trace_count
    kind: build
    instance: App
    count: 1
`)
	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Passes, 1)
	assert.True(t, result.Passes[0].Converged)
}

func TestRun_Deterministic(t *testing.T) {
	scenario := loadTestScenario(t, "keyed_list")

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	assert.Equal(t, first.Trace, second.Trace)
	assert.Equal(t, first.Passes, second.Passes)
	assert.Equal(t, first.Outline, second.Outline)
}

func TestRun_AssertionFailureReported(t *testing.T) {
	scenario := mustParse(t, `
name: failing
description: "Wrong expectations"
root: {text: hi}
assertions:
  - type: live_instances
    count: 5
  - type: trace_contains
    kind: raze
    instance: App
`)
	result, err := Run(scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	assert.Len(t, result.Errors, 2)
	assert.Contains(t, result.Summary(), "FAIL")
}

func TestRun_DivergenceStopsScript(t *testing.T) {
	result, err := Run(loadTestScenario(t, "divergence"))
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Contains(t, result.Failure, "diverged")
	// The step after the failing tick never runs.
	require.Len(t, result.Passes, 1)
	assert.False(t, result.Passes[0].Converged)
	assert.Equal(t, 3, result.Passes[0].Divergences)
	assert.NotEmpty(t, result.Passes[0].Failure)
}

func TestRun_FeedbackSettles(t *testing.T) {
	result, err := Run(loadTestScenario(t, "feedback"))
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Failure)
	assert.Equal(t, []string{`"n=3"`}, result.Outline)
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The feedback effect leaves the root dirty after mount, so the first
	// tick observes the cancellation.
	result, err := RunContext(ctx, loadTestScenario(t, "feedback"))
	require.NoError(t, err)

	assert.Contains(t, result.Failure, string(engine.ErrCodeTickCancelled))
	require.Len(t, result.Passes, 1)
	assert.False(t, result.Passes[0].Converged)
	assert.Equal(t, 0, result.Passes[0].Iterations)
}

func TestRun_Unmount(t *testing.T) {
	result, err := Run(loadTestScenario(t, "unmount"))
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Outline)
	assert.Equal(t, 0, result.LiveInstances)
	// Unmount does not tick.
	assert.Len(t, result.Passes, 1)
}

func TestRun_TeardownNotTraced(t *testing.T) {
	result, err := Run(loadTestScenario(t, "counter"))
	require.NoError(t, err)

	for _, ev := range result.Trace {
		assert.NotEqual(t, "raze", ev.Kind, "runtime teardown leaked into the trace")
	}
}

func TestRun_TickObserver(t *testing.T) {
	var ticks []int64
	_, err := Run(loadTestScenario(t, "reuse"), WithTickObserver(func(res *engine.PassResult) {
		ticks = append(ticks, res.Tick)
	}))
	require.NoError(t, err)

	// Settling tick plus the step's two ticks.
	assert.Equal(t, []int64{1, 2, 3}, ticks)
}

func TestRun_SharedJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	first := loadTestScenario(t, "counter")
	first.RunID = "run-one"
	second := loadTestScenario(t, "tabs")
	second.RunID = "run-two"

	for _, s := range []*Scenario{first, second} {
		result, err := Run(s, WithJournalPath(path))
		require.NoError(t, err)
		assert.True(t, result.Pass, "%s errors: %v", s.Name, result.Errors)
	}

	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()

	runs, err := st.ListRuns(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-one", runs[0].ID)
	assert.Equal(t, "counter", runs[0].Label)
	assert.Equal(t, "run-two", runs[1].ID)
	assert.Equal(t, "tabs", runs[1].Label)
}

func TestRun_DuplicateRunIDIsJournalFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	scenario := loadTestScenario(t, "counter")

	_, err := Run(scenario, WithJournalPath(path))
	require.NoError(t, err)

	_, err = Run(scenario, WithJournalPath(path))
	require.Error(t, err)
	assert.True(t, engine.IsJournalError(err))
}

func TestRun_AllTestdataScenariosPass(t *testing.T) {
	paths, err := DiscoverScenarios("../../testdata/scenarios")
	require.NoError(t, err)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)
			result, err := Run(scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestResult_AddError(t *testing.T) {
	result := NewResult()
	assert.True(t, result.Pass)

	result.AddError("boom")
	assert.False(t, result.Pass)
	assert.Equal(t, []string{"boom"}, result.Errors)
}

func TestResult_AddEvent(t *testing.T) {
	result := NewResult()
	result.AddEvent(TraceEvent{Kind: "build", Instance: "App"})
	result.AddEvent(TraceEvent{Kind: "rerun", Instance: "App", Tick: 2})

	require.Len(t, result.Trace, 2)
	assert.Equal(t, int64(1), result.Trace[0].Seq)
	assert.Equal(t, int64(2), result.Trace[1].Seq)
	assert.Equal(t, "rerun App", result.Trace[1].Label())
}

func TestResult_Summary(t *testing.T) {
	result := NewResult()
	result.Passes = []PassSummary{{Tick: 1}}
	result.AddEvent(TraceEvent{Kind: "build", Instance: "App"})
	result.LiveInstances = 1

	assert.Equal(t, "PASS (1 ticks, 1 events, 1 live instances)", result.Summary())
}
