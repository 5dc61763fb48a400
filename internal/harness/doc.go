// Package harness runs declarative reconciliation scenarios.
//
// A scenario declares state cells, a view tree built from them and a
// script of cell writes. The harness mounts the tree, drives the scheduler
// tick by tick and checks the resulting lifecycle trace, pass results,
// journal rows and final node outline.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	state:
//	  items: [{id: a, label: Alpha}, {id: b, label: Beta}]
//	  show: true
//	templates:
//	  Row:
//	    body:
//	      element: row
//	      children:
//	        - text: "{item.label}"
//	root:
//	  element: list
//	  children:
//	    - each: $items
//	      key: id
//	      do: {template: Row, props: {item: item}}
//	steps:
//	  - set: {items: [{id: b, label: Beta}]}
//	assertions:
//	  - type: trace_contains
//	    kind: raze
//	    instance: Row
//	  - type: outline
//	    lines: [list, "  row", "    \"Beta\""]
//
// The root is the body of an implicit template named App. $cell reads in a
// template body subscribe that template, so a write to the cell re-runs it
// on the next tick.
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - outline: the final node outline equals the given lines
//   - trace_contains: an event of a kind occurred for an instance
//   - trace_order: "kind Instance" events occur in the given order
//   - trace_count: an event occurred exactly N times
//   - pass: a tick converged (or not) with the given iterations and dirty trace
//   - error_count: an error code was reported exactly N times
//   - live_instances: N template instances are alive at the end
//   - journal_row: a journal table row matches where and expect
//
// # Deterministic Testing
//
// The harness uses:
//   - A fixed run ID (scenario.run_id, default "test-run")
//   - Deterministic logical clock (testutil.DeterministicClock)
//   - In-memory SQLite journal (isolated per run)
//
// Tick 0 is the mount; tick 1 is the settling pass that follows it. Each
// step then runs one tick unless it asks for more.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/keyed_list.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
