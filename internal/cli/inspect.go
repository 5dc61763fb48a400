package cli

import (
	"fmt"
	"log/slog"

	"github.com/gdamore/tcell/v2"
	"github.com/spf13/cobra"

	"github.com/roach88/quill/internal/harness"
	"github.com/roach88/quill/internal/ir"
	"github.com/roach88/quill/internal/preview"
	"github.com/roach88/quill/internal/world"
)

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	Screen bool // draw on the terminal instead of printing

	// NewScreen creates the screen used with --screen. If nil, defaults to
	// tcell.NewScreen and the command waits for a key press before exiting.
	NewScreen func() (tcell.Screen, error)
}

// InspectResult is the JSON payload of the inspect command.
type InspectResult struct {
	Scenario      string   `json:"scenario"`
	Outline       []string `json:"outline"`
	LiveInstances int      `json:"live_instances"`
	Snapshot      string   `json:"snapshot"` // content hash of the outline
	Rows          int      `json:"rows,omitempty"` // rows drawn with --screen
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect <scenario>",
		Short: "Show the node hierarchy a scenario leaves behind",
		Long: `Run a scenario and show the live node hierarchy after its last step.

By default the outline is printed, one node per line. With --screen it is
drawn on the terminal with element, text and root nodes styled apart;
press any key to exit.

Examples:
  quill inspect ./testdata/scenarios/keyed_list.yaml
  quill inspect --screen ./testdata/scenarios/tabs.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Screen, "screen", false, "draw the outline on the terminal")

	return cmd
}

func runInspect(opts *InspectOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeLoad, "failed to load scenario", err)
	}

	var (
		screen tcell.Screen
		rows   int
	)
	wait := false
	if opts.Screen {
		newScreen := opts.NewScreen
		if newScreen == nil {
			newScreen = tcell.NewScreen
			wait = true
		}
		screen, err = newScreen()
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeScreen, "failed to create screen", err)
		}
		if err := screen.Init(); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeScreen, "failed to initialise screen", err)
		}
		defer screen.Fini()
	}

	logger := slog.Default()
	if screen != nil {
		logger = slog.New(slog.DiscardHandler)
	}
	runOpts := []harness.Option{harness.WithLogger(logger)}
	if screen != nil {
		runOpts = append(runOpts, harness.WithInspector(func(w *world.World, root world.EntityID) {
			rows = preview.Draw(screen, w, root, nil)
		}))
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	result, err := harness.RunContext(ctx, scenario, runOpts...)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeRunFailed, "scenario execution failed", err)
	}

	if screen != nil && wait {
		waitForKey(screen)
	}

	out := InspectResult{
		Scenario:      scenario.Name,
		Outline:       result.Outline,
		LiveInstances: result.LiveInstances,
		Rows:          rows,
	}
	if out.Outline == nil {
		out.Outline = []string{}
	}
	out.Snapshot, err = outlineHash(out.Outline)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeRunFailed, "failed to hash outline", err)
	}
	if formatter.JSON() {
		return formatter.Success(out)
	}
	if screen != nil {
		// The terminal showed the outline; leave a one-line record behind.
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d row(s), %d live instance(s)\n", out.Scenario, out.Rows, out.LiveInstances)
		return nil
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s (%d live instance(s))\n", out.Scenario, out.LiveInstances)
	if len(out.Outline) == 0 {
		fmt.Fprintln(w, "  (unmounted)")
	}
	for _, line := range out.Outline {
		fmt.Fprintf(w, "  %s\n", line)
	}
	formatter.VerboseLog("snapshot %s", out.Snapshot)
	return nil
}

// outlineHash fingerprints an outline so two runs can be compared without
// diffing the full hierarchy.
func outlineHash(outline []string) (string, error) {
	lines := make(ir.List, len(outline))
	for i, l := range outline {
		lines[i] = ir.String(l)
	}
	return ir.SnapshotHash(lines)
}

// waitForKey blocks until a key press or the screen is finalised.
func waitForKey(screen tcell.Screen) {
	for {
		switch screen.PollEvent().(type) {
		case nil, *tcell.EventKey:
			return
		case *tcell.EventResize:
			screen.Sync()
		}
	}
}
