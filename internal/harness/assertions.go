package harness

import (
	"context"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/google/go-cmp/cmp"

	"github.com/roach88/quill/internal/ir"
	"github.com/roach88/quill/internal/store"
)

// validIdentifier matches valid SQL identifiers (table/column names).
// Only allows alphanumeric and underscore, must start with letter or underscore.
// This prevents SQL injection via identifier interpolation.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// journalTables lists the tables journal_row may query. Every one of them
// has a run_id column, which scopes the query to the scenario's run.
var journalTables = map[string]bool{
	"passes":          true,
	"reactions":       true,
	"instance_errors": true,
}

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] tick %d %s\n", event.Seq, event.Tick, event.Label())
		}
	}

	return buf.String()
}

// assertOutline compares the final outline line by line.
func assertOutline(result *Result, assertion Assertion) error {
	if diff := cmp.Diff(assertion.Lines, result.Outline); diff != "" {
		return &AssertionError{
			Type:     AssertOutline,
			Expected: fmt.Sprintf("%d outline lines", len(assertion.Lines)),
			Actual:   fmt.Sprintf("outline differs (-want +got):\n%s", diff),
		}
	}
	return nil
}

// matchEvent reports whether ev has the assertion's kind and instance.
func matchEvent(ev TraceEvent, kind, instance string) bool {
	return ev.Kind == kind && ev.Instance == instance
}

// assertTraceContains checks that at least one matching event occurred.
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if matchEvent(event, assertion.Kind, assertion.Instance) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("%s %s", assertion.Kind, assertion.Instance),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the events occur in the given order.
// Events don't need to be consecutive (intervening events are allowed), and
// each expected event matches the first occurrence after the previous match.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	pos := 0
	for _, want := range assertion.Events {
		found := false
		for pos < len(trace) {
			label := trace[pos].Label()
			pos++
			if label == want {
				found = true
				break
			}
		}
		if !found {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("events in order: %v", assertion.Events),
				Actual:   fmt.Sprintf("missing %q after earlier matches", want),
				Trace:    trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks that matching events occurred exactly Count times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if matchEvent(event, assertion.Kind, assertion.Instance) {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s %s", assertion.Count, assertion.Kind, assertion.Instance),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}

	return nil
}

// assertPass checks the summary of one tick.
func assertPass(result *Result, assertion Assertion) error {
	p, ok := result.PassAt(assertion.Tick)
	if !ok {
		return &AssertionError{
			Type:     AssertPass,
			Expected: fmt.Sprintf("tick %d", assertion.Tick),
			Actual:   fmt.Sprintf("only %d ticks ran", len(result.Passes)),
		}
	}

	if assertion.Converged != nil && p.Converged != *assertion.Converged {
		return &AssertionError{
			Type:     AssertPass,
			Expected: fmt.Sprintf("tick %d converged=%t", p.Tick, *assertion.Converged),
			Actual:   fmt.Sprintf("converged=%t (%s)", p.Converged, p.Failure),
		}
	}
	if assertion.Iterations != nil && p.Iterations != *assertion.Iterations {
		return &AssertionError{
			Type:     AssertPass,
			Expected: fmt.Sprintf("tick %d iterations=%d", p.Tick, *assertion.Iterations),
			Actual:   fmt.Sprintf("iterations=%d", p.Iterations),
		}
	}
	if assertion.DirtyTrace != nil && !cmp.Equal(assertion.DirtyTrace, p.DirtyTrace) {
		return &AssertionError{
			Type:     AssertPass,
			Expected: fmt.Sprintf("tick %d dirty_trace=%v", p.Tick, assertion.DirtyTrace),
			Actual:   fmt.Sprintf("dirty_trace=%v", p.DirtyTrace),
		}
	}
	return nil
}

// assertErrorCount counts reported errors with the given code.
func assertErrorCount(result *Result, assertion Assertion) error {
	codes := result.ErrorCodes()
	count := 0
	for _, code := range codes {
		if code == assertion.Code {
			count++
		}
	}
	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertErrorCount,
			Expected: fmt.Sprintf("%d errors with code %s", assertion.Count, assertion.Code),
			Actual:   fmt.Sprintf("%d (all codes: %v)", count, codes),
		}
	}
	return nil
}

// assertLiveInstances checks the number of unrazed instances.
func assertLiveInstances(result *Result, assertion Assertion) error {
	if result.LiveInstances != assertion.Count {
		return &AssertionError{
			Type:     AssertLiveInstances,
			Expected: fmt.Sprintf("%d live instances", assertion.Count),
			Actual:   fmt.Sprintf("%d live instances", result.LiveInstances),
		}
	}
	return nil
}

// assertJournalRow checks that the scenario's run has exactly one row in
// Table matching Where, and that the row carries every Expect value. Table
// must be a journal table; column names must be plain identifiers.
func assertJournalRow(ctx context.Context, st *store.Store, runID string, assertion Assertion) error {
	if !journalTables[assertion.Table] {
		return fmt.Errorf("journal_row: unknown table %q", assertion.Table)
	}

	where := make(map[string]any, len(assertion.Where)+1)
	for k, v := range assertion.Where {
		where[k] = v
	}
	where["run_id"] = runID

	whereSQL, whereArgs, err := buildWhereClause(where)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("SELECT * FROM %s WHERE %s", assertion.Table, whereSQL)
	rows, err := st.DB().QueryContext(ctx, query, whereArgs...)
	if err != nil {
		return &AssertionError{
			Type:     AssertJournalRow,
			Expected: fmt.Sprintf("query table %s", assertion.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("get columns: %w", err)
	}

	if !rows.Next() {
		return &AssertionError{
			Type:     AssertJournalRow,
			Expected: fmt.Sprintf("row in %s where %s", assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   "row not found",
		}
	}

	values := make([]any, len(columns))
	valuePtrs := make([]any, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}
	if err := rows.Scan(valuePtrs...); err != nil {
		return fmt.Errorf("scan row: %w", err)
	}

	// Multiple matching rows would make the assertion ambiguous.
	if rows.Next() {
		return &AssertionError{
			Type:     AssertJournalRow,
			Expected: fmt.Sprintf("exactly one row in %s where %s", assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	actualRow := make(map[string]any, len(columns))
	for i, col := range columns {
		actualRow[col] = values[i]
	}

	// Columns missing from Expect are not checked.
	for _, key := range slices.Sorted(maps.Keys(assertion.Expect)) {
		expectedValue := assertion.Expect[key]
		actualValue, exists := actualRow[key]
		if !exists {
			return &AssertionError{
				Type:     AssertJournalRow,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in result columns: %v", key, columns),
			}
		}

		if !stateValuesEqual(expectedValue, actualValue) {
			return &AssertionError{
				Type:     AssertJournalRow,
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, expectedValue, expectedValue),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, actualValue, actualValue),
			}
		}
	}

	return nil
}

// buildWhereClause renders where as a parameterized AND of equalities in
// column name order.
func buildWhereClause(where map[string]any) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}

	clauses := make([]string, 0, len(where))
	args := make([]any, 0, len(where))

	for _, key := range slices.Sorted(maps.Keys(where)) {
		if !validIdentifier.MatchString(key) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause: must match pattern %s", key, validIdentifier.String())
		}
		clauses = append(clauses, fmt.Sprintf("%s = ?", key))
		args = append(args, toSQLValue(where[key]))
	}

	return strings.Join(clauses, " AND "), args, nil
}

// toSQLValue converts a YAML or IR value to a SQL-compatible value.
func toSQLValue(v any) any {
	switch val := v.(type) {
	case ir.String:
		return string(val)
	case ir.Int:
		return int64(val)
	case ir.Bool:
		return bool(val)
	case string, int, int64, bool:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

// formatWhereClause creates a human-readable description of WHERE conditions.
func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}

	parts := make([]string, 0, len(where))
	for _, k := range slices.Sorted(maps.Keys(where)) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

// stateValuesEqual compares expected and actual values from journal tables.
// Handles type coercion for SQLite values which may be returned as different types.
func stateValuesEqual(expected, actual any) bool {
	if expected == nil && actual == nil {
		return true
	}
	if expected == nil || actual == nil {
		return false
	}

	// SQLite returns TEXT columns as []byte or string depending on the driver path.
	if b, ok := actual.([]byte); ok {
		actual = string(b)
	}

	switch exp := expected.(type) {
	case ir.String:
		return stateValuesEqual(string(exp), actual)
	case ir.Int:
		return stateValuesEqual(int64(exp), actual)
	case ir.Bool:
		return stateValuesEqual(bool(exp), actual)
	case string:
		actualStr, ok := actual.(string)
		return ok && exp == actualStr
	case int:
		return stateValuesEqual(int64(exp), actual)
	case int64:
		switch a := actual.(type) {
		case int64:
			return exp == a
		case int:
			return exp == int64(a)
		}
		return false
	case bool:
		switch a := actual.(type) {
		case bool:
			return exp == a
		case int64:
			// SQLite stores booleans as integers
			return exp == (a != 0)
		}
		return false
	}

	return cmp.Equal(expected, actual)
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Journal *store.Store
	RunID   string
	Ctx     context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides journal access for journal_row assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertOutline:
			err = assertOutline(result, assertion)
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertPass:
			err = assertPass(result, assertion)
		case AssertErrorCount:
			err = assertErrorCount(result, assertion)
		case AssertLiveInstances:
			err = assertLiveInstances(result, assertion)
		case AssertJournalRow:
			if actx == nil || actx.Journal == nil {
				err = fmt.Errorf("assertion[%d]: journal_row requires journal context", i)
			} else {
				err = assertJournalRow(actx.Ctx, actx.Journal, actx.RunID, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
