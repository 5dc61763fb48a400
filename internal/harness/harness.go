package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/roach88/quill/internal/engine"
	"github.com/roach88/quill/internal/ir"
	"github.com/roach88/quill/internal/preview"
	"github.com/roach88/quill/internal/reactive"
	"github.com/roach88/quill/internal/store"
	"github.com/roach88/quill/internal/testutil"
	"github.com/roach88/quill/internal/view"
	"github.com/roach88/quill/internal/world"
)

// DefaultJournal is the journal path used when none is given: a private
// in-memory database per run.
const DefaultJournal = ":memory:"

// Harness is the test execution engine.
// It runs scenarios with a deterministic clock and run ID.
type Harness struct {
	journal *store.Store
	world   *world.World
	runtime *view.Runtime
	sched   *engine.Scheduler
	build   *builder
	clock   *testutil.DeterministicClock
	logger  *slog.Logger
	result  *Result
	root    *view.Root
	done    bool
}

type options struct {
	journalPath string
	logger      *slog.Logger
	onTick      func(*engine.PassResult)
	inspect     func(*world.World, world.EntityID)
}

// Option configures a scenario run.
type Option func(*options)

// WithJournalPath records the run in the SQLite database at path instead
// of a private in-memory one.
func WithJournalPath(path string) Option {
	return func(o *options) {
		o.journalPath = path
	}
}

// WithLogger sets the logger handed to the runtime and scheduler.
// Default: logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithTickObserver registers a callback invoked after every tick.
func WithTickObserver(fn func(*engine.PassResult)) Option {
	return func(o *options) {
		o.onTick = fn
	}
}

// WithInspector registers a callback that receives the live world and the
// root's mount entity after the last step, before teardown. It is not
// called when the root was unmounted.
func WithInspector(fn func(w *world.World, root world.EntityID)) Option {
	return func(o *options) {
		o.inspect = fn
	}
}

// Run executes a scenario and returns the result.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	return RunContext(context.Background(), scenario, opts...)
}

// RunContext executes a scenario and returns the result.
//
// Each scenario runs against a fresh world, store and journal.
// Deterministic helpers ensure reproducible results.
//
// Execution flow:
// 1. Open the journal and declare the state cells
// 2. Mount the root tree and run one pass
// 3. Execute steps, enqueueing cell writes as scheduler commands
// 4. Capture the final outline
// 5. Evaluate assertions against the trace, passes and journal
func RunContext(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	o := options{
		journalPath: DefaultJournal,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&o)
	}

	st, err := store.Open(o.journalPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	defer st.Close()

	h := &Harness{
		journal: st,
		world:   world.NewWorld(),
		clock:   testutil.NewDeterministicClock(),
		logger:  o.logger,
		result:  NewResult(),
	}
	rs := reactive.NewStore(reactive.WithLogger(o.logger))
	h.runtime = view.NewRuntime(h.world, rs,
		view.WithLogger(o.logger),
		view.WithObserver(h.observe),
	)
	defer func() {
		// Teardown razes are not part of the trace.
		h.done = true
		h.runtime.Close()
	}()

	h.build, err = newBuilder(scenario, rs)
	if err != nil {
		return nil, err
	}

	schedOpts := []engine.SchedulerOption{
		engine.WithClock(h.clock),
		engine.WithJournal(st),
		engine.WithRunIDGenerator(testutil.NewFixedRunIDGenerator(scenario.RunID)),
		engine.WithRunLabel(scenario.Name),
		engine.WithLogger(o.logger),
	}
	if scenario.MaxDivergences > 0 {
		schedOpts = append(schedOpts, engine.WithMaxDivergences(scenario.MaxDivergences))
	}
	if scenario.DivergenceWindow > 0 {
		schedOpts = append(schedOpts, engine.WithDivergenceWindow(scenario.DivergenceWindow))
	}
	h.sched = engine.NewScheduler(h.runtime, schedOpts...)

	h.root = h.runtime.Mount("main", world.NilEntity, h.build.app(ir.Object{}))
	for _, err := range h.runtime.TakeErrors() {
		h.result.MountErrors = append(h.result.MountErrors, engine.ErrorCode(err))
	}

	if err := h.execute(ctx, scenario.Steps, o.onTick); err != nil {
		return nil, err
	}

	h.result.RunID = h.sched.RunID()
	h.result.LiveInstances = h.runtime.LiveInstances()
	if h.root.Mounted() {
		h.result.Outline = preview.Outline(h.world, h.root.Entity())
		if o.inspect != nil {
			o.inspect(h.world, h.root.Entity())
		}
	}

	actx := &AssertionContext{
		Journal: st,
		RunID:   h.result.RunID,
		Ctx:     ctx,
	}
	for _, errMsg := range EvaluateAssertions(h.result, scenario.Assertions, actx) {
		h.result.AddError(errMsg)
	}

	h.logger.Info("scenario finished",
		"scenario", scenario.Name,
		"pass", h.result.Pass,
		"ticks", len(h.result.Passes),
	)
	return h.result, nil
}

// observe records runtime lifecycle events against the current tick.
func (h *Harness) observe(ev view.Event) {
	if h.done {
		return
	}
	h.result.AddEvent(TraceEvent{
		Tick:     h.clock.Current(),
		Kind:     string(ev.Kind),
		Instance: ev.Instance,
		Scope:    uint64(ev.Scope),
		Detail:   ev.Detail,
	})
}

// execute runs the settling pass after mount and then every step.
//
// A divergent or cancelled tick stops the script; the remaining steps are
// skipped and the failure is kept on the result for assertions. A journal
// failure aborts the run.
func (h *Harness) execute(ctx context.Context, steps []Step, onTick func(*engine.PassResult)) error {
	tick := func() (bool, error) {
		res, err := h.sched.Tick(ctx)
		h.record(res, err)
		if onTick != nil {
			onTick(res)
		}
		switch {
		case err == nil:
			return true, nil
		case engine.IsJournalError(err):
			return false, fmt.Errorf("tick %d: %w", res.Tick, err)
		default:
			h.result.Failure = err.Error()
			return false, nil
		}
	}

	ok, err := tick()
	if !ok {
		return err
	}

	for i, step := range steps {
		if step.Unmount {
			h.root.Unmount()
			h.logger.Info("step completed", "step", i, "unmount", true)
			continue
		}
		if err := h.enqueueSets(step.Set); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		n := max(step.Ticks, 1)
		for range n {
			ok, err := tick()
			if !ok {
				return err
			}
		}
		h.logger.Info("step completed", "step", i, "ticks", n)
	}
	return nil
}

// enqueueSets submits one command per cell write, in cell name order.
func (h *Harness) enqueueSets(set map[string]any) error {
	values, err := toValues(set)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		cell, ok := h.build.cell(name)
		if !ok {
			return fmt.Errorf("unknown cell %q", name)
		}
		v := values[name]
		h.sched.Enqueue(func(*reactive.Store) error {
			return cell.Set(v)
		})
	}
	return nil
}

// record appends a pass summary.
func (h *Harness) record(res *engine.PassResult, failure error) {
	p := PassSummary{
		Tick:        res.Tick,
		Iterations:  res.Iterations,
		Reactions:   len(res.Reactions),
		Converged:   res.Converged,
		Divergences: res.Divergences,
		DirtyTrace:  res.DirtyTrace,
	}
	for _, err := range res.Errors {
		p.Errors = append(p.Errors, engine.ErrorCode(err))
	}
	if failure != nil {
		p.Failure = failure.Error()
	}
	h.result.Passes = append(h.result.Passes, p)
}
