package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/depnotify/internal/harness"
)

// FileValidation is the outcome for one scenario file.
type FileValidation struct {
	Path  string `json:"path"`
	Name  string `json:"name,omitempty"`
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid bool             `json:"valid"`
	Files []FileValidation `json:"files"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scenario-path>...",
		Short: "Validate scenario files without running them",
		Long: `Parse and validate scenario files without running them.

Each path may be a scenario file or a directory of *.yaml / *.yml files.
Checks YAML syntax, unknown fields, that every step has exactly one
operation, and that every dependent referenced is declared.

When --config is given the config file is validated too.

Examples:
  depnotify validate ./testdata/scenarios
  depnotify validate basic.yaml --format json`,
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
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	if opts.Config != "" {
		if _, err := loadConfig(opts); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeConfig, "invalid config", errors.Unwrap(err))
		}
		formatter.VerboseLog("Config %s is valid", opts.Config)
	}

	files, err := harness.CollectScenarios(paths)
	if err != nil {
		var nf *harness.ScenarioNotFoundError
		if errors.As(err, &nf) {
			return formatter.Fail(ExitCommandError, ErrCodeNotFound, nf.Error(), nil)
		}
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to collect scenarios", err)
	}
	formatter.VerboseLog("Found %d scenario file(s)", len(files))

	result := ValidationResult{Valid: true, Files: make([]FileValidation, 0, len(files))}
	for _, path := range files {
		fv := FileValidation{Path: path, Valid: true}
		scenario, err := harness.LoadScenario(path)
		if err != nil {
			fv.Valid = false
			fv.Error = err.Error()
			result.Valid = false
		} else {
			fv.Name = scenario.Name
		}
		result.Files = append(result.Files, fv)
	}

	if err := outputValidation(formatter, result); err != nil {
		return err
	}
	if !result.Valid {
		return NewExitError(ExitFailure, "validation failed")
	}
	return nil
}

func outputValidation(f *OutputFormatter, result ValidationResult) error {
	if f.JSON() {
		return f.Success(result)
	}

	invalid := 0
	for _, fv := range result.Files {
		if fv.Valid {
			fmt.Fprintf(f.Writer, "✓ %s (%s)\n", fv.Name, fv.Path)
			continue
		}
		invalid++
		fmt.Fprintf(f.Writer, "✗ %s\n", fv.Path)
		fmt.Fprintf(f.Writer, "  %s\n", fv.Error)
	}
	fmt.Fprintf(f.Writer, "\n%d valid, %d invalid\n", len(result.Files)-invalid, invalid)
	return nil
}
