package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/quill/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	RunID    string // optional - defaults to the latest run
	Failed   bool   // only unconverged passes
	List     bool   // list runs instead of tracing one
}

// RunInfo describes a journaled run.
type RunInfo struct {
	ID             string `json:"id"`
	Seq            int64  `json:"seq"`
	Label          string `json:"label"`
	MaxDivergences int    `json:"max_divergences"`
	Window         int    `json:"divergence_window"`
}

// TracePass is one journaled pass.
type TracePass struct {
	Tick        int64           `json:"tick"`
	Iterations  int             `json:"iterations"`
	Converged   bool            `json:"converged"`
	Divergences int             `json:"divergences"`
	DirtyTrace  []int           `json:"dirty_trace"`
	Failure     string          `json:"failure,omitempty"`
	Reactions   []TraceReaction `json:"reactions"`
	Errors      []TraceError    `json:"errors,omitempty"`
}

// TraceReaction is one scope re-run within a pass.
type TraceReaction struct {
	Iteration int    `json:"iteration"`
	Seq       int    `json:"seq"`
	Scope     uint64 `json:"scope"`
	Label     string `json:"label"`
}

// TraceError is one instance error surfaced by a pass.
type TraceError struct {
	Code     string `json:"code"`
	Instance string `json:"instance"`
	Message  string `json:"message"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Run    RunInfo     `json:"run"`
	Passes []TracePass `json:"passes"`
	Stats  TraceStats  `json:"stats"`
}

// TraceStats holds summary statistics for the run.
type TraceStats struct {
	Passes      int  `json:"passes"`
	Unconverged int  `json:"unconverged"`
	Reactions   int  `json:"reactions"`
	Errors      int  `json:"errors"`
	Divergences int  `json:"divergences"`
	Converged   bool `json:"converged"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Read a run back from the pass journal",
		Long: `Show the journaled passes of a run.

For every tick the output lists the iteration count, the dirty-set trace,
each scope re-run and every instance error. Without --run the latest run
in the journal is shown. --failed keeps only the passes that did not
converge.

Examples:
  quill trace --db ./quill.db
  quill trace --db ./quill.db --list
  quill trace --db ./quill.db --run 0190a1b2-... --failed
  quill trace --db ./quill.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run ID to trace (default: latest)")
	cmd.Flags().BoolVar(&opts.Failed, "failed", false, "only show passes that did not converge")
	cmd.Flags().BoolVar(&opts.List, "list", false, "list recorded runs")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// Opening a missing path would create an empty journal.
	if _, err := os.Stat(opts.Database); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, "journal not found", err)
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeJournal, "failed to open journal", err)
	}
	defer st.Close()

	if opts.List {
		return listRuns(ctx, st, formatter)
	}

	run, err := selectRun(ctx, st, opts.RunID)
	switch {
	case errors.Is(err, store.ErrRunNotFound) && opts.RunID == "":
		if formatter.JSON() {
			return formatter.Success(TraceResult{Passes: []TracePass{}})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "No runs recorded in %s\n", opts.Database)
		return nil
	case errors.Is(err, store.ErrRunNotFound):
		return formatter.Fail(ExitCommandError, ErrCodeRunNotFound, "unknown run", err)
	case err != nil:
		return formatter.Fail(ExitCommandError, ErrCodeJournal, "failed to read run", err)
	}

	passes, err := st.ReadPasses(ctx, run.ID, opts.Failed)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeJournal, "failed to read passes", err)
	}

	result := buildTraceResult(run, passes)
	if formatter.JSON() {
		return formatter.Respond(CLIResponse{Status: "ok", Data: result, TraceID: run.ID})
	}
	writeTraceText(cmd.OutOrStdout(), result, opts.Verbose)
	return nil
}

// selectRun returns the named run, or the latest one when id is empty.
func selectRun(ctx context.Context, st *store.Store, id string) (store.Run, error) {
	if id == "" {
		return st.LatestRun(ctx)
	}
	return st.ReadRun(ctx, id)
}

func listRuns(ctx context.Context, st *store.Store, formatter *OutputFormatter) error {
	runs, err := st.ListRuns(ctx)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeJournal, "failed to list runs", err)
	}

	infos := make([]RunInfo, len(runs))
	for i, r := range runs {
		infos[i] = toRunInfo(r)
	}
	if formatter.JSON() {
		return formatter.Success(infos)
	}

	w := formatter.Writer
	if len(infos) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}
	for _, r := range infos {
		fmt.Fprintf(w, "  [%d] %s %s (limit %d, window %d)\n",
			r.Seq, r.ID, r.Label, r.MaxDivergences, r.Window)
	}
	return nil
}

func toRunInfo(r store.Run) RunInfo {
	return RunInfo{
		ID:             r.ID,
		Seq:            r.Seq,
		Label:          r.Label,
		MaxDivergences: r.MaxDivergences,
		Window:         r.Window,
	}
}

// buildTraceResult converts journal rows to the trace output and tallies
// the stats.
func buildTraceResult(run store.Run, passes []store.Pass) TraceResult {
	result := TraceResult{
		Run:    toRunInfo(run),
		Passes: make([]TracePass, 0, len(passes)),
		Stats:  TraceStats{Passes: len(passes), Converged: true},
	}

	for _, p := range passes {
		tp := TracePass{
			Tick:        p.Tick,
			Iterations:  p.Iterations,
			Converged:   p.Converged,
			Divergences: p.Divergences,
			DirtyTrace:  p.DirtyTrace,
			Failure:     p.Failure,
			Reactions:   make([]TraceReaction, len(p.Reactions)),
		}
		for i, r := range p.Reactions {
			tp.Reactions[i] = TraceReaction{Iteration: r.Iteration, Seq: r.Seq, Scope: r.ScopeID, Label: r.Label}
		}
		for _, e := range p.Errors {
			tp.Errors = append(tp.Errors, TraceError{Code: e.Code, Instance: e.Instance, Message: e.Message})
		}

		result.Stats.Reactions += len(tp.Reactions)
		result.Stats.Errors += len(tp.Errors)
		result.Stats.Divergences += tp.Divergences
		if !tp.Converged {
			result.Stats.Unconverged++
			result.Stats.Converged = false
		}
		result.Passes = append(result.Passes, tp)
	}
	return result
}

// writeTraceText outputs the trace result as text.
func writeTraceText(w io.Writer, result TraceResult, verbose bool) {
	fmt.Fprintf(w, "Trace for Run: %s\n", truncateID(result.Run.ID))
	if result.Run.Label != "" {
		fmt.Fprintf(w, "Label: %s\n", result.Run.Label)
	}
	fmt.Fprintf(w, "Status: %s\n", runStatus(result.Stats.Converged))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Passes ===")
	if len(result.Passes) == 0 {
		fmt.Fprintln(w, "  (no passes)")
	}
	for _, p := range result.Passes {
		fmt.Fprintf(w, "  [%d] %s iterations=%d dirty=%v\n",
			p.Tick, convergedStatus(p.Converged), p.Iterations, p.DirtyTrace)
		for _, r := range p.Reactions {
			if verbose {
				fmt.Fprintf(w, "       %d.%d rerun %s (scope %d)\n", r.Iteration, r.Seq, r.Label, r.Scope)
			} else {
				fmt.Fprintf(w, "       %d rerun %s\n", r.Iteration, r.Label)
			}
		}
		for _, e := range p.Errors {
			fmt.Fprintf(w, "       ERR %s %s: %s\n", e.Code, e.Instance, e.Message)
		}
		if p.Failure != "" {
			fmt.Fprintf(w, "       FAIL %s\n", p.Failure)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Passes:      %d\n", result.Stats.Passes)
	fmt.Fprintf(w, "  Unconverged: %d\n", result.Stats.Unconverged)
	fmt.Fprintf(w, "  Reactions:   %d\n", result.Stats.Reactions)
	fmt.Fprintf(w, "  Errors:      %d\n", result.Stats.Errors)
	fmt.Fprintf(w, "  Divergences: %d\n", result.Stats.Divergences)
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}

// runStatus returns a human-readable convergence status.
func runStatus(converged bool) string {
	if converged {
		return "Converged"
	}
	return "Diverged (see failed passes)"
}
