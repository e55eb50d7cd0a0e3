package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/depnotify/internal/identity"
	"github.com/roach88/depnotify/internal/store"
	"github.com/roach88/depnotify/internal/testutil"
	"github.com/roach88/depnotify/internal/update"
)

// Harness executes one scenario against a fresh engine.
type Harness struct {
	engine   *update.Engine
	clock    *testutil.DeterministicClock
	recorder *update.MemoryRecorder
	probes   map[string]*testutil.Probe
	calls    *testutil.CallLog
	logger   *slog.Logger
}

type runConfig struct {
	engineOpts []update.EngineOption
	runIDs     testutil.RunIDGenerator
	journal    *store.Store
	metrics    prometheus.Registerer
	logger     *slog.Logger
}

// Option configures Run.
type Option func(*runConfig)

// WithEngineOptions passes extra options to the engine. Scenario engine
// settings are applied after them and win.
func WithEngineOptions(opts ...update.EngineOption) Option {
	return func(c *runConfig) {
		c.engineOpts = append(c.engineOpts, opts...)
	}
}

// WithRunIDs overrides the run ID source.
// Default: the scenario's run_id, or "run-default".
func WithRunIDs(gen testutil.RunIDGenerator) Option {
	return func(c *runConfig) {
		c.runIDs = gen
	}
}

// WithJournal records the run into st.
func WithJournal(st *store.Store) Option {
	return func(c *runConfig) {
		c.journal = st
	}
}

// WithMetrics registers each run's engine collectors with reg, labelled
// with the scenario name. Scenario names must be unique per registry.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *runConfig) {
		c.metrics = reg
	}
}

// WithLogger sets the harness logger. Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(c *runConfig) {
		c.logger = l
	}
}

// Run executes a scenario and returns the result.
//
// Each scenario runs on its own engine with a deterministic clock, so the
// same scenario always produces the same trace.
//
// Execution flow:
// 1. Create the engine, probes and (optionally) the journal
// 2. Execute steps, checking expect clauses
// 3. Evaluate assertions against the trace and final state
//
// Step failures are reported in the result; the returned error is reserved
// for infrastructure failures such as an unwritable journal.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{
		runIDs: testutil.NewFixedRunID(scenario.RunID),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	runID := cfg.runIDs.Generate()
	h := &Harness{
		clock:    testutil.NewDeterministicClock(),
		recorder: update.NewMemoryRecorder(),
		probes:   make(map[string]*testutil.Probe, len(scenario.Dependents)),
		calls:    testutil.NewCallLog(),
		logger:   cfg.logger.With("scenario", scenario.Name, "run_id", runID),
	}

	engineOpts := append([]update.EngineOption{}, cfg.engineOpts...)
	engineOpts = append(engineOpts,
		update.WithClock(h.clock),
		update.WithRecorder(h.recorder),
	)
	if cfg.journal != nil {
		j, err := store.NewJournal(ctx, cfg.journal, runID, scenario.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
		engineOpts = append(engineOpts, update.WithRecorder(j))
	}
	if cfg.metrics != nil {
		reg := prometheus.WrapRegistererWith(prometheus.Labels{"scenario": scenario.Name}, cfg.metrics)
		engineOpts = append(engineOpts, update.WithMetrics(reg))
	}
	if s := scenario.Engine; s != nil {
		if s.Shards > 0 {
			engineOpts = append(engineOpts, update.WithShards(s.Shards))
		}
		if s.MaxDependents > 0 {
			engineOpts = append(engineOpts, update.WithMaxDependents(s.MaxDependents))
		}
	}
	h.engine = update.New(engineOpts...)

	for _, spec := range scenario.Dependents {
		h.probes[spec.Name] = testutil.NewProbe(spec.Name, h.calls)
	}
	for _, spec := range scenario.Dependents {
		h.probes[spec.Name].OnUpdate = h.reactions(spec)
	}

	result := NewResult(scenario.Name, runID)
	for i := range scenario.Steps {
		if err := h.executeStep(ctx, i, &scenario.Steps[i], result); err != nil {
			return nil, err
		}
	}

	for _, ev := range h.recorder.Events() {
		result.Trace = append(result.Trace, store.RecordFromEvent(runID, ev))
	}
	result.Final = h.engine.Stats()

	actx := &AssertionContext{Engine: h.engine}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	h.logger.Info("scenario finished",
		"pass", result.Pass,
		"events", len(result.Trace),
		"errors", len(result.Errors),
	)
	return result, nil
}

// executeStep runs one step and checks its expect clause.
func (h *Harness) executeStep(ctx context.Context, i int, step *Step, result *Result) error {
	op, target, err := step.op()
	if err != nil {
		return fmt.Errorf("steps[%d]: %w", i, err)
	}

	var (
		delivered bool
		n         int
		opErr     error
	)
	switch op {
	case OpAdd:
		opErr = h.engine.AddDependent(target.Subject, h.dependent(target.Dependent))
	case OpRemove:
		n, opErr = h.engine.RemoveDependent(target.subject(), h.dependent(target.Dependent))
	case OpTrigger:
		delivered, opErr = h.engine.TriggerUpdates(ctx, target.Subject, *target.Message)
	case OpDefer:
		opErr = h.engine.DeferUpdates(target.Subject, *target.Message)
	case OpFlush:
		opErr = h.engine.TriggerDeferredUpdates(ctx, target.subject())
	case OpCancel:
		n = h.engine.CancelUpdates(target.Subject)
	case OpCount:
		n = h.engine.CountDependencies(target.subject())
	}

	h.logger.Debug("step executed", "step", i, "op", op, "subject", target.Subject, "error", opErr)

	fail := func(format string, args ...any) {
		result.AddError(fmt.Sprintf("steps[%d] %s: ", i, op) + fmt.Sprintf(format, args...))
	}

	e := step.Expect
	if e == nil {
		e = &Expect{}
	}

	switch {
	case opErr != nil && e.Error == "":
		fail("unexpected error: %v", opErr)
	case opErr == nil && e.Error != "":
		fail("expected error containing %q, got none", e.Error)
	case opErr != nil && !strings.Contains(opErr.Error(), e.Error):
		fail("error %q does not contain %q", opErr.Error(), e.Error)
	}

	if e.Delivered != nil && delivered != *e.Delivered {
		fail("delivered = %t, want %t", delivered, *e.Delivered)
	}
	if e.Removed != nil && n != *e.Removed {
		fail("removed = %d, want %d", n, *e.Removed)
	}
	if e.Cancelled != nil && n != *e.Cancelled {
		fail("cancelled = %d, want %d", n, *e.Cancelled)
	}
	if e.Count != nil && n != *e.Count {
		fail("count = %d, want %d", n, *e.Count)
	}
	return nil
}

// dependent returns the probe for name, or a nil Dependent for "".
func (h *Harness) dependent(name string) update.Dependent {
	if name == "" {
		return nil
	}
	return h.probes[name]
}

// errDependentFailed is the cause of every scripted fail action.
var errDependentFailed = errors.New("dependent failed")

// reactions builds the OnUpdate callback that runs spec's scripted actions.
func (h *Harness) reactions(spec DependentSpec) update.UpdateFunc {
	if len(spec.OnUpdate) == 0 {
		return nil
	}

	fired := make([]bool, len(spec.OnUpdate))
	return func(ctx context.Context, subject identity.Identity, msg update.Message) error {
		subjectName := h.engine.SubjectName(subject)
		for i := range spec.OnUpdate {
			a := &spec.OnUpdate[i]
			if a.Once && fired[i] {
				continue
			}
			if w := a.When; w != nil {
				if w.Subject != "" && w.Subject != subjectName {
					continue
				}
				if w.Message != nil && *w.Message != msg {
					continue
				}
			}
			fired[i] = true

			if err := h.react(ctx, a); err != nil {
				h.logger.Debug("reaction failed", "dependent", spec.Name, "action", i, "error", err)
				return err
			}
		}
		return nil
	}
}

func (h *Harness) react(ctx context.Context, a *Action) error {
	op, target, err := a.op()
	if err != nil {
		return err
	}

	switch op {
	case OpFail:
		return fmt.Errorf("%w: %s", errDependentFailed, a.Fail)
	case OpAdd:
		return h.engine.AddDependent(target.Subject, h.dependent(target.Dependent))
	case OpRemove:
		_, err = h.engine.RemoveDependent(target.subject(), h.dependent(target.Dependent))
		return err
	case OpTrigger:
		_, err = h.engine.TriggerUpdates(ctx, target.Subject, *target.Message)
		return err
	case OpDefer:
		return h.engine.DeferUpdates(target.Subject, *target.Message)
	case OpFlush:
		return h.engine.TriggerDeferredUpdates(ctx, target.subject())
	case OpCancel:
		h.engine.CancelUpdates(target.Subject)
		return nil
	}
	return fmt.Errorf("unsupported action %q", op)
}
