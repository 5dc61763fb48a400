package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/quill/internal/reactive"
	"github.com/roach88/quill/internal/store"
	"github.com/roach88/quill/internal/view"
)

// DefaultFrameInterval is the Run loop's default tick period.
const DefaultFrameInterval = 16 * time.Millisecond

// hotScopeReport is how many hot scopes a DivergenceError names.
const hotScopeReport = 5

// Host is what the scheduler drives: a reactive store whose dirty scopes it
// re-runs, and a sink of per-instance errors raised while doing so.
// *view.Runtime implements Host.
type Host interface {
	Store() *reactive.Store
	TakeErrors() []error
}

// Reaction records one scope re-run within a pass.
type Reaction struct {
	Iteration int
	Scope     reactive.ScopeID
	Label     string
}

// PassResult describes one tick.
type PassResult struct {
	// Tick is the logical tick number.
	Tick int64

	// Iterations counts passes over the dirty set.
	Iterations int

	// Reactions lists every scope re-run, in execution order.
	Reactions []Reaction

	// Converged is true when the tick ended with no dirty scopes.
	Converged bool

	// Divergences is the guard's counter when the tick ended.
	Divergences int

	// Errors holds instance errors and command failures. They never abort
	// the tick.
	Errors []error

	// DirtyTrace is the dirty count at the start of every iteration, plus
	// the final count.
	DirtyTrace []int
}

// Scheduler is the single-writer reaction control loop.
//
// Each Tick drains host commands and then re-runs dirty scopes until none
// remain or the divergence limit is exceeded.
//
// Thread-safety model:
//   - Enqueue(), Stop(): safe from any goroutine
//   - Tick(), Run(): must be called from exactly one goroutine, the one
//     that owns the store and the world
type Scheduler struct {
	host   Host
	clock  TickSource
	queue  *commandQueue
	logger *slog.Logger

	maxDivergences int
	window         int
	frame          time.Duration

	journal *store.Store
	runIDs  RunIDGenerator
	runID   string
	label   string
}

// SchedulerOption allows configuration of scheduler parameters.
type SchedulerOption func(*Scheduler)

// WithMaxDivergences sets how many consecutive non-decreasing passes a tick
// tolerates.
//
// Default: 32 (DefaultMaxDivergences)
func WithMaxDivergences(n int) SchedulerOption {
	return func(s *Scheduler) {
		s.maxDivergences = n
	}
}

// WithDivergenceWindow compares each pass against the lowest dirty count of
// the last n passes instead of only the previous one, so a cycle that
// alternates between two counts is caught.
//
// Default: 1
func WithDivergenceWindow(n int) SchedulerOption {
	return func(s *Scheduler) {
		s.window = n
	}
}

// WithClock replaces the tick source.
func WithClock(c TickSource) SchedulerOption {
	return func(s *Scheduler) {
		s.clock = c
	}
}

// WithJournal records every pass in j.
func WithJournal(j *store.Store) SchedulerOption {
	return func(s *Scheduler) {
		s.journal = j
	}
}

// WithRunIDGenerator names the journaled run.
//
// Default: UUIDv7Generator
func WithRunIDGenerator(g RunIDGenerator) SchedulerOption {
	return func(s *Scheduler) {
		s.runIDs = g
	}
}

// WithRunLabel sets a free-form label stored with the journaled run.
func WithRunLabel(label string) SchedulerOption {
	return func(s *Scheduler) {
		s.label = label
	}
}

// WithLogger sets the scheduler logger.
func WithLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// WithFrameInterval sets the Run loop's tick period.
//
// Default: 16ms (DefaultFrameInterval)
func WithFrameInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.frame = d
	}
}

// NewScheduler creates a scheduler driving host.
func NewScheduler(host Host, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		host:           host,
		clock:          NewClock(),
		queue:          newCommandQueue(),
		logger:         slog.Default(),
		maxDivergences: DefaultMaxDivergences,
		window:         1,
		frame:          DefaultFrameInterval,
		runIDs:         UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunID returns the journaled run ID, or "" before the first journaled tick.
func (s *Scheduler) RunID() string {
	return s.runID
}

// Enqueue submits a command for the next tick.
// Thread-safe: may be called from any goroutine.
//
// Returns false if the scheduler has been stopped.
func (s *Scheduler) Enqueue(c Command) bool {
	return s.queue.Enqueue(c)
}

// Pending returns the number of queued commands.
func (s *Scheduler) Pending() int {
	return s.queue.Len()
}

// Tick runs one pass to convergence.
//
// The returned result is non-nil even when err is. err is a
// *DivergenceError when the limit is exceeded, a RuntimeError with
// ErrCodeTickCancelled when ctx ends first, or a RuntimeError with
// ErrCodeJournalWrite when recording the pass fails.
func (s *Scheduler) Tick(ctx context.Context) (*PassResult, error) {
	res := &PassResult{Tick: s.clock.Next()}
	st := s.host.Store()

	for i, cmd := range s.queue.Drain() {
		if err := cmd(st); err != nil {
			s.logger.Warn("command failed", "tick", res.Tick, "index", i, "error", err)
			res.Errors = append(res.Errors, NewCommandError(res.Tick, i, err))
		}
	}

	guard := NewDivergenceGuard(s.maxDivergences, s.window)
	hot := NewHotScopes()
	var failure error

	for {
		before := st.DirtyCount()
		res.DirtyTrace = append(res.DirtyTrace, before)
		if before == 0 {
			res.Converged = true
			break
		}
		if err := ctx.Err(); err != nil {
			failure = NewCancelledError(res.Tick, res.Iterations, err)
			break
		}

		res.Iterations++
		for _, sc := range st.DirtyScopes() {
			// An earlier re-run in this iteration may have razed or
			// rebuilt this scope already.
			if sc.Disposed() || !sc.Dirty() {
				continue
			}
			hot.Record(sc)
			res.Reactions = append(res.Reactions, Reaction{
				Iteration: res.Iterations,
				Scope:     sc.ID(),
				Label:     sc.Label(),
			})
			if r := sc.Reactor(); r != nil {
				r.React()
			} else {
				sc.Reset()
			}
		}
		res.Errors = append(res.Errors, s.host.TakeErrors()...)

		after := st.DirtyCount()
		if err := guard.Observe(before, after); err != nil {
			var de *DivergenceError
			if errors.As(err, &de) {
				de.Tick = res.Tick
				de.Iterations = res.Iterations
				de.HotScopes = hot.Top(hotScopeReport)
			}
			res.DirtyTrace = append(res.DirtyTrace, after)
			failure = err
			break
		}
	}
	res.Divergences = guard.Current()

	if failure != nil {
		s.logger.Error("tick failed",
			"tick", res.Tick,
			"iterations", res.Iterations,
			"divergences", res.Divergences,
			"error", failure,
		)
	} else {
		s.logger.Debug("tick converged",
			"tick", res.Tick,
			"iterations", res.Iterations,
			"reactions", len(res.Reactions),
		)
	}

	if s.journal != nil {
		if err := s.record(ctx, res, failure); err != nil {
			s.logger.Error("journal write failed", "tick", res.Tick, "run", s.runID, "error", err)
			if failure == nil {
				failure = NewJournalError(s.runID, res.Tick, err)
			}
		}
	}

	return res, failure
}

// record writes res to the journal, starting the run on first use.
// The context is detached from cancellation so a cancelled tick is still
// journaled.
func (s *Scheduler) record(ctx context.Context, res *PassResult, failure error) error {
	ctx = context.WithoutCancel(ctx)
	if s.runID == "" {
		run, err := s.journal.BeginRun(ctx, store.Run{
			ID:             s.runIDs.Generate(),
			Label:          s.label,
			MaxDivergences: s.maxDivergences,
			Window:         s.window,
		})
		if err != nil {
			return fmt.Errorf("begin run: %w", err)
		}
		s.runID = run.ID
		s.logger.Info("journal run started", "run", run.ID, "seq", run.Seq)
	}
	return s.journal.WritePass(ctx, toJournal(s.runID, res, failure))
}

// toJournal converts a pass result into its journal form.
func toJournal(runID string, res *PassResult, failure error) store.Pass {
	p := store.Pass{
		RunID:       runID,
		Tick:        res.Tick,
		Iterations:  res.Iterations,
		Converged:   res.Converged,
		Divergences: res.Divergences,
		DirtyTrace:  res.DirtyTrace,
	}
	if failure != nil {
		p.Failure = failure.Error()
	}
	for i, r := range res.Reactions {
		p.Reactions = append(p.Reactions, store.Reaction{
			Iteration: r.Iteration,
			Seq:       i + 1,
			ScopeID:   uint64(r.Scope),
			Label:     r.Label,
		})
	}
	for i, err := range res.Errors {
		rec := store.ErrorRecord{Seq: i + 1, Code: ErrorCode(err), Message: err.Error()}
		var ie *view.InstanceError
		if errors.As(err, &ie) {
			rec.Instance = ie.Instance
		}
		p.Errors = append(p.Errors, rec)
	}
	return p
}

// Run ticks once per frame interval until ctx is cancelled or Stop is
// called. A divergence failure ends the loop and is returned; instance
// errors and journal failures are logged and the loop continues.
//
// CRITICAL: Must be called from the goroutine that owns the store.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler starting",
		"frame", s.frame,
		"max_divergences", s.maxDivergences,
		"window", s.window,
	)

	ticker := time.NewTicker(s.frame)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping: context cancelled")
			s.queue.Close()
			return ctx.Err()

		case <-s.queue.Wait():
			// Commands wait for the next frame. The signal channel closes
			// when the queue is closed.
			if s.queue.Closed() {
				s.logger.Info("scheduler stopping: stopped")
				return nil
			}

		case <-ticker.C:
			res, err := s.Tick(ctx)
			for _, e := range res.Errors {
				s.logger.Warn("pass error", "tick", res.Tick, "error", e)
			}
			switch {
			case err == nil, IsJournalError(err):
			case IsCancelled(err):
				s.queue.Close()
				return ctx.Err()
			default:
				s.queue.Close()
				return err
			}
		}
	}
}

// Stop closes the command queue, which causes Run to return.
func (s *Scheduler) Stop() {
	s.queue.Close()
}

// Settle ticks until a tick converges with no commands pending, up to limit
// ticks. Used by the harness and tests, which drive ticks directly instead
// of through Run.
func (s *Scheduler) Settle(ctx context.Context, limit int) ([]*PassResult, error) {
	var out []*PassResult
	for i := 0; i < limit; i++ {
		res, err := s.Tick(ctx)
		out = append(out, res)
		if err != nil {
			return out, err
		}
		if res.Converged && s.queue.Len() == 0 {
			return out, nil
		}
	}
	return out, fmt.Errorf("not settled after %d ticks", limit)
}
