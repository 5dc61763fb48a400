package harness

import (
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/quill/internal/ir"
)

// GoldenDir is where golden traces live, relative to the test's package.
const GoldenDir = "testdata/golden"

// TraceSnapshot captures the deterministic part of a scenario execution.
// Scope IDs and failure messages are left out so unrelated changes in
// scope allocation do not churn golden files.
type TraceSnapshot struct {
	ScenarioName string
	Result       *Result
}

// Value converts the snapshot to an IR object for canonical serialization.
func (s *TraceSnapshot) Value() ir.Value {
	trace := make(ir.List, len(s.Result.Trace))
	for i, ev := range s.Result.Trace {
		trace[i] = ir.String(fmt.Sprintf("%d %s", ev.Tick, ev.Label()))
	}

	passes := make(ir.List, len(s.Result.Passes))
	for i, p := range s.Result.Passes {
		dirty := make(ir.List, len(p.DirtyTrace))
		for j, n := range p.DirtyTrace {
			dirty[j] = ir.Int(n)
		}
		obj := ir.Object{
			"tick":        ir.Int(p.Tick),
			"iterations":  ir.Int(p.Iterations),
			"converged":   ir.Bool(p.Converged),
			"dirty_trace": dirty,
		}
		if len(p.Errors) > 0 {
			obj["errors"] = stringList(p.Errors)
		}
		passes[i] = obj
	}

	snap := ir.Object{
		"scenario": ir.String(s.ScenarioName),
		"trace":    trace,
		"passes":   passes,
		"outline":  stringList(s.Result.Outline),
	}
	if len(s.Result.MountErrors) > 0 {
		snap["mount_errors"] = stringList(s.Result.MountErrors)
	}
	return snap
}

// Marshal returns the snapshot's canonical JSON.
func (s *TraceSnapshot) Marshal() ([]byte, error) {
	return ir.MarshalCanonical(s.Value())
}

// Hash returns the trace hash of the snapshot, for reporting.
func (s *TraceSnapshot) Hash() (string, error) {
	return ir.TraceHash(s.Value())
}

func stringList(ss []string) ir.List {
	out := make(ir.List, len(ss))
	for i, s := range ss {
		out[i] = ir.String(s)
	}
	return out
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result, or an error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(scenario, opts...)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := TraceSnapshot{ScenarioName: scenarioName, Result: result}
	traceJSON, err := snapshot.Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)

	return nil
}
