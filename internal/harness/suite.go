package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ScenarioNotFoundError is returned when a suite path doesn't exist.
type ScenarioNotFoundError struct {
	Path         string
	ResolvedPath string
}

// Error implements the error interface.
func (e *ScenarioNotFoundError) Error() string {
	return fmt.Sprintf("scenario path %q does not exist (resolved to: %s)", e.Path, e.ResolvedPath)
}

// IsScenarioNotFound reports whether err is a ScenarioNotFoundError.
func IsScenarioNotFound(err error) bool {
	_, ok := err.(*ScenarioNotFoundError)
	return ok
}

// DiscoverScenarios expands paths into scenario files.
// A directory contributes its *.yaml and *.yml files (non-recursive); a file
// is taken as-is. The result is sorted and free of duplicates.
func DiscoverScenarios(paths ...string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, p := range paths {
		resolved, err := filepath.Abs(p)
		if err != nil {
			resolved = p
		}
		info, err := os.Stat(p)
		if os.IsNotExist(err) {
			return nil, &ScenarioNotFoundError{Path: p, ResolvedPath: resolved}
		}
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
		if !info.IsDir() {
			add(p)
			continue
		}

		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		for _, e := range entries {
			ext := strings.ToLower(filepath.Ext(e.Name()))
			if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
				continue
			}
			add(filepath.Join(p, e.Name()))
		}
	}

	sort.Strings(out)
	return out, nil
}

// SuiteResult summarizes a batch of scenario runs.
type SuiteResult struct {
	TotalScenarios int               `json:"total_scenarios"`
	Passed         int               `json:"passed"`
	Failed         int               `json:"failed"`
	Results        []ScenarioOutcome `json:"results"`
	Failures       []SuiteFailure    `json:"failures,omitempty"`
}

// ScenarioOutcome is the per-file line of a suite run.
type ScenarioOutcome struct {
	Path     string `json:"path"`
	Scenario string `json:"scenario"`
	Pass     bool   `json:"pass"`
	Summary  string `json:"summary"`
}

// SuiteFailure records why one scenario failed.
type SuiteFailure struct {
	ScenarioPath string `json:"scenario_path"`
	Error        string `json:"error"`
}

// OK reports whether every scenario passed.
func (r *SuiteResult) OK() bool {
	return r.Failed == 0
}

// RunSuite loads and runs every scenario file in order.
//
// For each path:
// 1. Load and validate the scenario
// 2. Run it via RunContext
// 3. Collect the outcome
//
// A load or execution failure counts against that scenario only; the suite
// continues. Cancellation of ctx stops the suite and returns ctx.Err().
func RunSuite(ctx context.Context, paths []string, opts ...Option) (*SuiteResult, error) {
	result := &SuiteResult{Results: []ScenarioOutcome{}}

	fail := func(path, name, msg string) {
		result.Failed++
		result.Results = append(result.Results, ScenarioOutcome{Path: path, Scenario: name, Summary: "FAIL"})
		result.Failures = append(result.Failures, SuiteFailure{ScenarioPath: path, Error: msg})
	}

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.TotalScenarios++

		scenario, err := LoadScenario(path)
		if err != nil {
			fail(path, "", fmt.Sprintf("failed to load scenario: %v", err))
			continue
		}

		runResult, err := RunContext(ctx, scenario, opts...)
		if err != nil {
			fail(path, scenario.Name, fmt.Sprintf("scenario execution failed: %v", err))
			continue
		}

		if !runResult.Pass {
			fail(path, scenario.Name, fmt.Sprintf("scenario assertions failed: %v", runResult.Errors))
			result.Results[len(result.Results)-1].Summary = runResult.Summary()
			continue
		}

		result.Passed++
		result.Results = append(result.Results, ScenarioOutcome{
			Path:     path,
			Scenario: scenario.Name,
			Pass:     true,
			Summary:  runResult.Summary(),
		})
	}

	return result, nil
}
