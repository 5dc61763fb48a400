package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quill/internal/ir"
	"github.com/roach88/quill/internal/store"
)

func sampleTrace() []TraceEvent {
	r := NewResult()
	r.AddEvent(TraceEvent{Tick: 0, Kind: "build", Instance: "Row"})
	r.AddEvent(TraceEvent{Tick: 0, Kind: "build", Instance: "Row"})
	r.AddEvent(TraceEvent{Tick: 0, Kind: "build", Instance: "App"})
	r.AddEvent(TraceEvent{Tick: 2, Kind: "raze", Instance: "Row"})
	r.AddEvent(TraceEvent{Tick: 2, Kind: "rerun", Instance: "App"})
	return r.Trace
}

func TestAssertTraceContains_Found(t *testing.T) {
	err := assertTraceContains(sampleTrace(), Assertion{Type: AssertTraceContains, Kind: "raze", Instance: "Row"})
	assert.NoError(t, err)
}

func TestAssertTraceContains_NotFound(t *testing.T) {
	err := assertTraceContains(sampleTrace(), Assertion{Type: AssertTraceContains, Kind: "raze", Instance: "App"})
	require.Error(t, err)

	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, AssertTraceContains, ae.Type)
	assert.Equal(t, "raze App", ae.Expected)
	assert.Len(t, ae.Trace, 5)
}

func TestAssertTraceOrder_Correct(t *testing.T) {
	err := assertTraceOrder(sampleTrace(), Assertion{Events: []string{"build App", "raze Row", "rerun App"}})
	assert.NoError(t, err)
}

func TestAssertTraceOrder_InterveningEventsAllowed(t *testing.T) {
	err := assertTraceOrder(sampleTrace(), Assertion{Events: []string{"build Row", "rerun App"}})
	assert.NoError(t, err)
}

func TestAssertTraceOrder_RepeatedEventsConsumeInOrder(t *testing.T) {
	err := assertTraceOrder(sampleTrace(), Assertion{Events: []string{"build Row", "build Row", "build App"}})
	assert.NoError(t, err)

	err = assertTraceOrder(sampleTrace(), Assertion{Events: []string{"build Row", "build Row", "build Row"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing "build Row"`)
}

func TestAssertTraceOrder_WrongOrder(t *testing.T) {
	err := assertTraceOrder(sampleTrace(), Assertion{Events: []string{"rerun App", "build App"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing "build App" after earlier matches`)
}

func TestAssertTraceCount(t *testing.T) {
	tests := []struct {
		name     string
		kind     string
		instance string
		count    int
		wantErr  bool
	}{
		{"exact", "build", "Row", 2, false},
		{"too few", "build", "Row", 3, true},
		{"too many", "build", "Row", 1, true},
		{"zero", "cleanup", "Row", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertTraceCount(sampleTrace(), Assertion{Kind: tt.kind, Instance: tt.instance, Count: tt.count})
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "occurrences")
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestAssertOutline(t *testing.T) {
	result := NewResult()
	result.Outline = []string{"list", `  "a"`}

	assert.NoError(t, assertOutline(result, Assertion{Lines: []string{"list", `  "a"`}}))

	err := assertOutline(result, Assertion{Lines: []string{"list", `  "b"`}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outline differs")
}

func TestAssertPass(t *testing.T) {
	yes, no := true, false
	one := 1
	result := NewResult()
	result.Passes = []PassSummary{
		{Tick: 1, Iterations: 0, Converged: true, DirtyTrace: []int{0}},
		{Tick: 2, Iterations: 1, Converged: true, DirtyTrace: []int{1, 0}},
	}

	assert.NoError(t, assertPass(result, Assertion{Tick: 2, Converged: &yes, Iterations: &one, DirtyTrace: []int{1, 0}}))
	assert.NoError(t, assertPass(result, Assertion{Tick: 1}))

	err := assertPass(result, Assertion{Tick: 2, Converged: &no})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "converged=false")

	err = assertPass(result, Assertion{Tick: 2, DirtyTrace: []int{2, 0}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dirty_trace=[1 0]")

	err = assertPass(result, Assertion{Tick: 5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only 2 ticks ran")
}

func TestAssertErrorCount(t *testing.T) {
	result := NewResult()
	result.MountErrors = []string{"CREATE_PANIC"}
	result.Passes = []PassSummary{
		{Tick: 1, Errors: []string{"TYPE_MISMATCH", "CREATE_PANIC"}},
	}

	assert.Equal(t, []string{"CREATE_PANIC", "TYPE_MISMATCH", "CREATE_PANIC"}, result.ErrorCodes())
	assert.NoError(t, assertErrorCount(result, Assertion{Code: "CREATE_PANIC", Count: 2}))
	assert.NoError(t, assertErrorCount(result, Assertion{Code: "HOOK_ORDER_VIOLATION", Count: 0}))

	err := assertErrorCount(result, Assertion{Code: "TYPE_MISMATCH", Count: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 errors with code TYPE_MISMATCH")
}

func TestAssertLiveInstances(t *testing.T) {
	result := NewResult()
	result.LiveInstances = 3

	assert.NoError(t, assertLiveInstances(result, Assertion{Count: 3}))
	assert.Error(t, assertLiveInstances(result, Assertion{Count: 0}))
}

func TestEvaluateAssertions_AllPass(t *testing.T) {
	result := NewResult()
	result.Trace = sampleTrace()
	result.LiveInstances = 2

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertTraceContains, Kind: "build", Instance: "App"},
		{Type: AssertLiveInstances, Count: 2},
	}, nil)
	assert.Empty(t, errs)
}

func TestEvaluateAssertions_SomeFail(t *testing.T) {
	result := NewResult()
	result.Trace = sampleTrace()

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertTraceContains, Kind: "build", Instance: "App"},
		{Type: AssertTraceContains, Kind: "build", Instance: "Missing"},
		{Type: AssertLiveInstances, Count: 4},
	}, nil)
	assert.Len(t, errs, 2)
}

func TestEvaluateAssertions_UnknownType(t *testing.T) {
	errs := EvaluateAssertions(NewResult(), []Assertion{{Type: "final_state"}}, nil)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], `unknown assertion type "final_state"`)
}

func TestEvaluateAssertions_JournalRowWithoutContext(t *testing.T) {
	errs := EvaluateAssertions(NewResult(), []Assertion{
		{Type: AssertJournalRow, Table: "passes", Expect: map[string]any{"tick": 1}},
	}, nil)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "journal_row requires journal context")
}

func TestAssertionError_ErrorFormat(t *testing.T) {
	err := &AssertionError{
		Type:     AssertTraceContains,
		Expected: "build Row",
		Actual:   "not found in trace",
		Trace:    sampleTrace()[:1],
	}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: trace_contains")
	assert.Contains(t, msg, "Expected: build Row")
	assert.Contains(t, msg, "Actual: not found in trace")
	assert.Contains(t, msg, "[1] tick 0 build Row")
}

func TestBuildWhereClause_Empty(t *testing.T) {
	sql, args, err := buildWhereClause(nil)
	require.NoError(t, err)
	assert.Empty(t, sql)
	assert.Nil(t, args)
}

func TestBuildWhereClause_MultipleKeys_SortedDeterministic(t *testing.T) {
	sql, args, err := buildWhereClause(map[string]any{"tick": 2, "run_id": "r", "code": "X"})
	require.NoError(t, err)
	assert.Equal(t, "code = ? AND run_id = ? AND tick = ?", sql)
	assert.Equal(t, []any{"X", "r", 2}, args)
}

func TestBuildWhereClause_InvalidColumnName(t *testing.T) {
	for _, col := range []string{"tick; DROP TABLE passes", "1tick", "ti-ck", ""} {
		_, _, err := buildWhereClause(map[string]any{col: 1})
		require.Error(t, err, col)
		assert.Contains(t, err.Error(), "invalid column name")
	}
}

func TestToSQLValue_Types(t *testing.T) {
	assert.Equal(t, "s", toSQLValue(ir.String("s")))
	assert.Equal(t, int64(3), toSQLValue(ir.Int(3)))
	assert.Equal(t, true, toSQLValue(ir.Bool(true)))
	assert.Equal(t, 3, toSQLValue(3))
	assert.Equal(t, "[1]", toSQLValue([]int{1}))
}

func TestFormatWhereClause(t *testing.T) {
	assert.Equal(t, "(no conditions)", formatWhereClause(nil))
	assert.Equal(t, "a=1 AND b=x", formatWhereClause(map[string]any{"b": "x", "a": 1}))
}

func TestStateValuesEqual(t *testing.T) {
	assert.True(t, stateValuesEqual("a", "a"))
	assert.True(t, stateValuesEqual("a", []byte("a")))
	assert.False(t, stateValuesEqual("a", "b"))
	assert.True(t, stateValuesEqual(1, int64(1)))
	assert.True(t, stateValuesEqual(ir.Int(1), int64(1)))
	assert.False(t, stateValuesEqual(1, "1"))
	assert.True(t, stateValuesEqual(true, int64(1)))
	assert.True(t, stateValuesEqual(false, int64(0)))
	assert.False(t, stateValuesEqual(true, int64(0)))
	assert.True(t, stateValuesEqual(nil, nil))
	assert.False(t, stateValuesEqual(nil, "x"))
}

// journalFixture opens an in-memory journal holding two runs so queries
// can be checked for run scoping.
func journalFixture(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	for _, id := range []string{"run-a", "run-b"} {
		_, err := st.BeginRun(ctx, store.Run{ID: id, MaxDivergences: 32, Window: 1})
		require.NoError(t, err)
	}
	require.NoError(t, st.WritePass(ctx, store.Pass{
		RunID: "run-a", Tick: 1, Iterations: 2, Converged: true, DirtyTrace: []int{2, 1, 0},
		Reactions: []store.Reaction{
			{Iteration: 1, Seq: 1, ScopeID: 1, Label: "App"},
			{Iteration: 2, Seq: 2, ScopeID: 2, Label: "Row"},
		},
		Errors: []store.ErrorRecord{{Seq: 1, Code: "TYPE_MISMATCH", Instance: "App", Message: "text replaced by element"}},
	}))
	require.NoError(t, st.WritePass(ctx, store.Pass{
		RunID: "run-b", Tick: 1, Iterations: 5, Converged: false, DirtyTrace: []int{1, 1},
		Failure: "tick 1 diverged",
	}))
	return st
}

func TestAssertJournalRow_RowFound_Pass(t *testing.T) {
	st := journalFixture(t)
	err := assertJournalRow(context.Background(), st, "run-a", Assertion{
		Table:  "passes",
		Where:  map[string]any{"tick": 1},
		Expect: map[string]any{"iterations": 2, "converged": true, "reactions": 2, "dirty_trace": "[2,1,0]"},
	})
	assert.NoError(t, err)
}

func TestAssertJournalRow_ScopedToRun(t *testing.T) {
	st := journalFixture(t)
	err := assertJournalRow(context.Background(), st, "run-b", Assertion{
		Table:  "passes",
		Where:  map[string]any{"tick": 1},
		Expect: map[string]any{"converged": false, "failure": "tick 1 diverged"},
	})
	assert.NoError(t, err)
}

func TestAssertJournalRow_ValueMismatch_Fail(t *testing.T) {
	st := journalFixture(t)
	err := assertJournalRow(context.Background(), st, "run-a", Assertion{
		Table:  "instance_errors",
		Where:  map[string]any{"tick": 1},
		Expect: map[string]any{"code": "CREATE_PANIC"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `field "code"`)
}

func TestAssertJournalRow_RowNotFound_Fail(t *testing.T) {
	st := journalFixture(t)
	err := assertJournalRow(context.Background(), st, "run-a", Assertion{
		Table:  "passes",
		Where:  map[string]any{"tick": 9},
		Expect: map[string]any{"converged": true},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row not found")
}

func TestAssertJournalRow_MultipleRows_Fail(t *testing.T) {
	st := journalFixture(t)
	err := assertJournalRow(context.Background(), st, "run-a", Assertion{
		Table:  "reactions",
		Where:  map[string]any{"tick": 1},
		Expect: map[string]any{"label": "App"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "multiple rows matched")
}

func TestAssertJournalRow_MissingColumn_Fail(t *testing.T) {
	st := journalFixture(t)
	err := assertJournalRow(context.Background(), st, "run-a", Assertion{
		Table:  "reactions",
		Where:  map[string]any{"seq": 2},
		Expect: map[string]any{"nonexistent": 1},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not present in result columns")
}

func TestAssertJournalRow_UnknownTable(t *testing.T) {
	st := journalFixture(t)
	err := assertJournalRow(context.Background(), st, "run-a", Assertion{
		Table:  "runs",
		Expect: map[string]any{"label": ""},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown table "runs"`)
}

func TestEvaluateAssertions_JournalRowWithContext_Pass(t *testing.T) {
	st := journalFixture(t)
	errs := EvaluateAssertions(NewResult(), []Assertion{
		{Type: AssertJournalRow, Table: "reactions", Where: map[string]any{"seq": 2}, Expect: map[string]any{"label": "Row", "iteration": 2}},
	}, &AssertionContext{Journal: st, RunID: "run-a", Ctx: context.Background()})
	assert.Empty(t, errs)
}
