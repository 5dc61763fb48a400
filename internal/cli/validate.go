package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/quill/internal/harness"
)

// FileValidationError is a validation error tied to the scenario file it
// was found in.
type FileValidationError struct {
	File string `json:"file"`
	harness.ValidationError
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool                  `json:"valid"`
	Files  int                   `json:"files"`
	Errors []FileValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scenarios>...",
		Short: "Validate scenario files without running them",
		Long: `Validate scenario YAML against the scenario schema.

Each file is checked for YAML syntax, unified with the embedded CUE
schema, and then parsed for semantic errors (unknown cells or templates,
malformed node trees, bad assertions). Nothing is mounted or run.

Error codes:
  E100 - schema failed to compile
  E101 - YAML syntax error
  E102 - schema violation
  E103 - semantic error

Examples:
  quill validate ./testdata/scenarios
  quill validate counter.yaml tabs.yaml --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	files, err := harness.DiscoverScenarios(paths...)
	if err != nil {
		code := ErrCodeLoad
		if harness.IsScenarioNotFound(err) {
			code = ErrCodeNotFound
		}
		return formatter.Fail(ExitCommandError, code, "failed to find scenarios", err)
	}
	if len(files) == 0 {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, "no scenario files found", nil)
	}

	result := ValidationResult{Valid: true, Files: len(files)}
	for _, file := range files {
		formatter.VerboseLog("validating %s", file)

		data, err := os.ReadFile(file)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeLoad, "failed to read scenario", err)
		}
		for _, verr := range harness.ValidateScenario(file, data) {
			result.Errors = append(result.Errors, FileValidationError{File: file, ValidationError: verr})
		}
	}
	result.Valid = len(result.Errors) == 0

	if result.Valid {
		if formatter.JSON() {
			return formatter.Success(result)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ All scenarios valid (%d file(s))\n", result.Files)
		return nil
	}
	return outputValidationErrors(formatter, result)
}

// outputValidationErrors outputs the failing result.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	failure := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))

	if formatter.JSON() {
		first := result.Errors[0]
		if err := formatter.Respond(CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    first.Code,
				Message: first.Message,
			},
		}); err != nil {
			return err
		}
		return failure
	}

	writeValidationText(formatter.Writer, result.Errors)
	return failure
}

func writeValidationText(w io.Writer, errs []FileValidationError) {
	fmt.Fprintln(w, "✗ Validation failed")
	fmt.Fprintln(w)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(w, "%s:%d\n", err.File, err.Line)
		} else {
			fmt.Fprintln(w, err.File)
		}
		fmt.Fprintf(w, "  %s: ", err.Code)
		if err.Field != "" {
			fmt.Fprintf(w, "%s: ", err.Field)
		}
		fmt.Fprintf(w, "%s\n\n", err.Message)
	}
}
