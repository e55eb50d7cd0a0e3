package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/depnotify/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	RunID    string // optional; without it runs are listed
	Kind     string // optional event kind filter
}

// TraceResult is the output of trace for a single run.
type TraceResult struct {
	Summary store.RunSummary    `json:"summary"`
	Events  []store.EventRecord `json:"events"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect journaled runs",
		Long: `Inspect the SQLite journal written by "depnotify run --db".

Without --run, lists every journaled run in creation order.
With --run, prints the run's events in seq order followed by a summary
of event counts by kind.

Examples:
  depnotify trace --db ./runs.db
  depnotify trace --db ./runs.db --run 0190b6f2-...
  depnotify trace --db ./runs.db --run 0190b6f2-... --kind deliver --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run ID to print")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "only print events of this kind")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, "failed to open database", err)
	}
	defer st.Close()

	if opts.RunID == "" {
		return listRuns(ctx, formatter, st)
	}
	return traceRun(ctx, formatter, st, opts)
}

func listRuns(ctx context.Context, f *OutputFormatter, st *store.Store) error {
	runs, err := st.ListRuns(ctx)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeDatabase, "failed to list runs", err)
	}

	if f.JSON() {
		return f.Success(runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(f.Writer, "No runs recorded.")
		return nil
	}
	for _, r := range runs {
		fmt.Fprintf(f.Writer, "%4d  %s  %-24s %d events\n", r.Seq, r.ID, r.Label, r.Events)
	}
	return nil
}

func traceRun(ctx context.Context, f *OutputFormatter, st *store.Store, opts *TraceOptions) error {
	summary, err := st.Summarize(ctx, opts.RunID)
	if errors.Is(err, store.ErrRunNotFound) {
		return f.Fail(ExitCommandError, ErrCodeRunNotFound, fmt.Sprintf("run not found: %s", opts.RunID), nil)
	}
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeDatabase, "failed to summarize run", err)
	}

	events, err := st.ReadEvents(ctx, opts.RunID)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeDatabase, "failed to read events", err)
	}
	if opts.Kind != "" {
		filtered := make([]store.EventRecord, 0, len(events))
		for _, ev := range events {
			if string(ev.Kind) == opts.Kind {
				filtered = append(filtered, ev)
			}
		}
		events = filtered
	}

	if f.JSON() {
		return f.Success(TraceResult{Summary: summary, Events: events})
	}

	w := f.Writer
	fmt.Fprintf(w, "Run %s (%s)\n\n", summary.Run.ID, summary.Run.Label)
	for _, ev := range events {
		fmt.Fprintf(w, "  %s\n", ev)
	}

	kinds := make([]string, 0, len(summary.ByKind))
	for k := range summary.ByKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	fmt.Fprintf(w, "\n%d events, last seq %d, %d dependents notified\n",
		summary.Run.Events, summary.LastSeq, summary.Dependents)
	for _, k := range kinds {
		fmt.Fprintf(w, "  %-9s %d\n", k, summary.ByKind[k])
	}
	return nil
}
