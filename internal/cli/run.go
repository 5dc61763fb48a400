package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/quill/internal/engine"
	"github.com/roach88/quill/internal/harness"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database       string
	MaxDivergences int
	RunID          string

	// RunIDs names journaled runs when --run-id is not given and --db is set.
	// If nil, defaults to UUIDv7Generator.
	RunIDs engine.RunIDGenerator
}

// RunReport is the JSON payload of the run command.
type RunReport struct {
	Scenario string          `json:"scenario"`
	Database string          `json:"database"`
	Result   *harness.Result `json:"result"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario>",
		Short: "Run a scenario and journal every pass",
		Long: `Mount a scenario's view tree, execute its steps and report the result.

Every scheduler pass is written to the journal. Without --db the journal
is an in-memory database discarded on exit; with --db the run is appended
to that SQLite file under a fresh UUIDv7 run ID (or --run-id) so it can be
read back with "quill trace".

Exit codes:
  0 - Scenario passed
  1 - Assertions failed
  2 - Command error (unreadable scenario, journal failure)

Examples:
  quill run ./testdata/scenarios/counter.yaml
  quill run --db ./quill.db ./testdata/scenarios/divergence.yaml
  quill run --max-divergences 8 --format json ./scenario.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarioCommand(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (default: in-memory)")
	cmd.Flags().IntVar(&opts.MaxDivergences, "max-divergences", 0, "override the scenario's divergence limit")
	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "journal run ID (default: generated when --db is set)")

	return cmd
}

func runScenarioCommand(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := slog.Default()

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeLoad, "failed to load scenario", err)
	}
	if opts.MaxDivergences > 0 {
		scenario.MaxDivergences = opts.MaxDivergences
	}

	runOpts := []harness.Option{harness.WithLogger(logger)}
	if opts.Database != "" {
		runOpts = append(runOpts, harness.WithJournalPath(opts.Database))
		scenario.RunID = opts.RunID
		if scenario.RunID == "" {
			gen := opts.RunIDs
			if gen == nil {
				gen = engine.UUIDv7Generator{}
			}
			scenario.RunID = gen.Generate()
		}
	} else if opts.RunID != "" {
		scenario.RunID = opts.RunID
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	logger.Info("running scenario", "scenario", scenario.Name, "db", opts.Database, "run", scenario.RunID)
	result, err := harness.RunContext(ctx, scenario, runOpts...)
	if err != nil {
		code := ErrCodeRunFailed
		if engine.IsJournalError(err) {
			code = ErrCodeJournal
		}
		return formatter.Fail(ExitCommandError, code, "scenario execution failed", err)
	}

	if formatter.JSON() {
		resp := CLIResponse{
			Status:  "ok",
			Data:    RunReport{Scenario: scenario.Name, Database: opts.Database, Result: result},
			TraceID: result.RunID,
		}
		if !result.Pass {
			resp.Status = "error"
			resp.Error = &CLIError{
				Code:    ErrCodeRunFailed,
				Message: fmt.Sprintf("%d assertion(s) failed", len(result.Errors)),
			}
		}
		if err := formatter.Respond(resp); err != nil {
			return err
		}
	} else {
		writeRunText(cmd.OutOrStdout(), scenario.Name, result, opts.Verbose)
	}

	if !result.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", scenario.Name))
	}
	return nil
}

// writeRunText prints the pass table, the final outline and the verdict.
func writeRunText(w io.Writer, name string, result *harness.Result, verbose bool) {
	fmt.Fprintf(w, "Scenario: %s\n", name)
	fmt.Fprintf(w, "Run:      %s\n", result.RunID)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Passes ===")
	for _, p := range result.Passes {
		fmt.Fprintf(w, "  tick %d: %s iterations=%d reactions=%d dirty=%v\n",
			p.Tick, convergedStatus(p.Converged), p.Iterations, p.Reactions, p.DirtyTrace)
		for _, code := range p.Errors {
			fmt.Fprintf(w, "    error %s\n", code)
		}
		if p.Failure != "" {
			fmt.Fprintf(w, "    failure: %s\n", p.Failure)
		}
	}
	fmt.Fprintln(w)

	if verbose {
		fmt.Fprintln(w, "=== Trace ===")
		for _, ev := range result.Trace {
			fmt.Fprintf(w, "  [%d] tick %d %s\n", ev.Seq, ev.Tick, ev.Label())
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "=== Outline ===")
	if len(result.Outline) == 0 {
		fmt.Fprintln(w, "  (unmounted)")
	}
	for _, line := range result.Outline {
		fmt.Fprintf(w, "  %s\n", line)
	}
	fmt.Fprintln(w)

	for _, e := range result.Errors {
		fmt.Fprintf(w, "✗ %s\n", e)
	}
	fmt.Fprintln(w, result.Summary())
}

func convergedStatus(converged bool) string {
	if converged {
		return "converged"
	}
	return "unconverged"
}

// signalContext derives a context from the command's that is cancelled on
// SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, stopping", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}
