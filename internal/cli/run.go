package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/depnotify/internal/harness"
	"github.com/roach88/depnotify/internal/store"
	"github.com/roach88/depnotify/internal/testutil"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string

	// RunIDs overrides the journal run ID generator (for testing).
	// If nil, defaults to UUIDRunIDs.
	RunIDs testutil.RunIDGenerator
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <scenario-path>...",
		Short: "Run scenarios against a fresh engine",
		Long: `Run scenario files, each against its own engine, and report pass/fail.

Engine limits come from --config (engine.shards, engine.max_dependents);
a scenario's own engine section overrides them. With --db, or journal.path
in the config, every run's events are journaled to SQLite under a new
UUIDv7 run ID for later inspection with "depnotify trace".

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, unreadable config, etc.)

Examples:
  depnotify run ./testdata/scenarios
  depnotify run --db ./runs.db basic.yaml --verbose`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (overrides journal.path)")

	return cmd
}

func runScenarios(opts *RunOptions, paths []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", errors.Unwrap(err))
	}
	logger := newLogger(opts.RootOptions, cfg, cmd.ErrOrStderr())

	hopts := []harness.Option{
		harness.WithEngineOptions(cfg.EngineOptions()...),
		harness.WithLogger(logger),
	}

	dbPath := opts.Database
	if dbPath == "" {
		dbPath = cfg.Journal.Path
	}
	if dbPath != "" {
		logger.Info("opening journal", "path", dbPath)
		st, err := store.Open(dbPath)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeDatabase, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				slog.Error("error closing database", "error", closeErr)
			}
		}()

		runIDs := opts.RunIDs
		if runIDs == nil {
			runIDs = testutil.UUIDRunIDs{}
		}
		hopts = append(hopts, harness.WithJournal(st), harness.WithRunIDs(runIDs))
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	suite, err := harness.RunSuite(ctx, paths, hopts...)
	if err != nil {
		var nf *harness.ScenarioNotFoundError
		if errors.As(err, &nf) {
			return formatter.Fail(ExitCommandError, ErrCodeNotFound, nf.Error(), nil)
		}
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to run scenarios", err)
	}

	if err := outputSuite(formatter, suite, dbPath != ""); err != nil {
		return err
	}
	if suite.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenarios failed", suite.Failed, suite.Total))
	}
	return nil
}

func outputSuite(f *OutputFormatter, suite *harness.SuiteResult, journaled bool) error {
	if f.JSON() {
		return f.Success(suite)
	}

	w := f.Writer
	for _, r := range suite.Results {
		if !r.Pass {
			continue
		}
		if journaled {
			fmt.Fprintf(w, "✓ %s (run %s)\n", r.Scenario, r.RunID)
		} else {
			fmt.Fprintf(w, "✓ %s\n", r.Scenario)
		}
	}
	for _, fail := range suite.Failures {
		name := fail.Name
		if name == "" {
			name = fail.Path
		}
		fmt.Fprintf(w, "✗ %s\n", name)
		for _, line := range strings.Split(strings.TrimRight(fail.Error, "\n"), "\n") {
			fmt.Fprintf(w, "  %s\n", line)
		}
	}

	fmt.Fprintf(w, "\n%d passed, %d failed, %d total\n", suite.Passed, suite.Failed, suite.Total)
	return nil
}
