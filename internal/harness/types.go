package harness

import "fmt"

// TraceEvent is one reconciler lifecycle event observed during a run.
type TraceEvent struct {
	Seq      int64  `json:"seq"`
	Tick     int64  `json:"tick"` // 0 for the initial mount
	Kind     string `json:"kind"`
	Instance string `json:"instance"`
	Scope    uint64 `json:"scope"`
	Detail   string `json:"detail,omitempty"`
}

// Label renders the event as "kind Instance", the form trace_order uses.
func (e TraceEvent) Label() string {
	return e.Kind + " " + e.Instance
}

// PassSummary records one scheduler tick.
type PassSummary struct {
	Tick        int64    `json:"tick"`
	Iterations  int      `json:"iterations"`
	Reactions   int      `json:"reactions"`
	Converged   bool     `json:"converged"`
	Divergences int      `json:"divergences"`
	DirtyTrace  []int    `json:"dirty_trace"`
	Errors      []string `json:"errors,omitempty"` // error codes, in report order
	Failure     string   `json:"failure,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all assertions hold.
	Pass bool `json:"pass"`

	// RunID is the journal run the passes were recorded under.
	RunID string `json:"run_id"`

	// Trace contains every lifecycle event in order.
	Trace []TraceEvent `json:"trace"`

	// Passes contains one summary per tick.
	Passes []PassSummary `json:"passes"`

	// MountErrors contains the error codes reported while mounting.
	MountErrors []string `json:"mount_errors,omitempty"`

	// Outline is the final node hierarchy under the root entity.
	Outline []string `json:"outline"`

	// LiveInstances is the number of template instances alive at the end.
	LiveInstances int `json:"live_instances"`

	// Failure is the error that stopped the script early, if any.
	Failure string `json:"failure,omitempty"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Trace:   []TraceEvent{},
		Passes:  []PassSummary{},
		Outline: []string{},
		Errors:  []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddEvent appends a trace event with the next sequence number.
func (r *Result) AddEvent(ev TraceEvent) {
	ev.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, ev)
}

// PassAt returns the summary for tick, if that tick ran.
func (r *Result) PassAt(tick int64) (PassSummary, bool) {
	for _, p := range r.Passes {
		if p.Tick == tick {
			return p, true
		}
	}
	return PassSummary{}, false
}

// ErrorCodes returns every error code reported during mount and ticks.
func (r *Result) ErrorCodes() []string {
	out := append([]string(nil), r.MountErrors...)
	for _, p := range r.Passes {
		out = append(out, p.Errors...)
	}
	return out
}

// Summary renders a one-line description for CLI output.
func (r *Result) Summary() string {
	status := "PASS"
	if !r.Pass {
		status = "FAIL"
	}
	return fmt.Sprintf("%s (%d ticks, %d events, %d live instances)",
		status, len(r.Passes), len(r.Trace), r.LiveInstances)
}
