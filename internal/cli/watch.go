package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/spf13/cobra"

	"github.com/roach88/depnotify/internal/harness"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	MetricsAddr string
	Debounce    time.Duration
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch <scenario-dir>",
		Short: "Rerun scenarios whenever they change",
		Long: `Run every scenario in a directory, then rerun the suite whenever a
scenario file is created, written, renamed or removed.

Prometheus metrics are served on /metrics: watch counters plus the engine
metrics of the most recent suite run, labelled by scenario.

Examples:
  depnotify watch ./testdata/scenarios
  depnotify watch ./testdata/scenarios --metrics-addr 127.0.0.1:9464`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "metrics listen address (overrides metrics.addr)")
	cmd.Flags().DurationVar(&opts.Debounce, "debounce", 200*time.Millisecond, "quiet period before rerunning")

	return cmd
}

func runWatch(opts *WatchOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", errors.Unwrap(err))
	}
	logger := newLogger(opts.RootOptions, cfg, cmd.ErrOrStderr())

	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("scenario directory not found: %s", dir), nil)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := newWatchMetrics()
	session := &watchSession{
		dir:       dir,
		formatter: formatter,
		logger:    logger,
		metrics:   metrics,
		hopts: []harness.Option{
			harness.WithEngineOptions(cfg.EngineOptions()...),
			harness.WithLogger(logger),
		},
	}

	addr := opts.MetricsAddr
	if addr == "" {
		addr = cfg.Metrics.Addr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           newMetricsRouter(metrics),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to create watcher", err)
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to watch directory", err)
	}

	session.rerun(ctx)
	logger.Info("watching scenarios", "dir", dir)
	err = watchLoop(ctx, watcher.Events, watcher.Errors, opts.Debounce, logger, session.rerun)
	logger.Info("watch stopped")
	return err
}

// watchSession reruns the suite and publishes the outcome.
type watchSession struct {
	dir       string
	formatter *OutputFormatter
	logger    *slog.Logger
	metrics   *watchMetrics
	hopts     []harness.Option
}

func (s *watchSession) rerun(ctx context.Context) {
	reg := prometheus.NewRegistry()
	opts := append(append([]harness.Option{}, s.hopts...), harness.WithMetrics(reg))

	start := time.Now()
	suite, err := harness.RunSuite(ctx, []string{s.dir}, opts...)
	if err != nil {
		s.metrics.runs.WithLabelValues("error").Inc()
		s.logger.Error("suite run failed", "dir", s.dir, "error", err)
		return
	}
	s.metrics.observe(suite, reg, start)
	s.logger.Info("suite finished",
		"passed", suite.Passed,
		"failed", suite.Failed,
		"duration", time.Since(start),
	)

	if !s.formatter.JSON() {
		fmt.Fprintf(s.formatter.Writer, "--- %s\n", start.Format(time.TimeOnly))
	}
	if err := outputSuite(s.formatter, suite, false); err != nil {
		s.logger.Error("failed to write results", "error", err)
	}
}

// watchLoop calls rerun once the directory has been quiet for debounce
// after a scenario file changed. It returns when ctx is done or the
// watcher channels close.
func watchLoop(
	ctx context.Context,
	events <-chan fsnotify.Event,
	errs <-chan error,
	debounce time.Duration,
	logger *slog.Logger,
	rerun func(context.Context),
) error {
	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if !harness.IsScenarioFile(ev.Name) {
				continue
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			logger.Debug("scenario changed", "path", ev.Name, "op", ev.Op.String())
			timer.Reset(debounce)
		case err, ok := <-errs:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", "error", err)
		case <-timer.C:
			rerun(ctx)
		}
	}
}

// watchMetrics holds watch counters and the registry of the latest run.
// Each run gets a fresh registry so engines from earlier runs are not
// exported.
type watchMetrics struct {
	registry  *prometheus.Registry
	runs      *prometheus.CounterVec
	scenarios *prometheus.GaugeVec
	lastRun   prometheus.Gauge
	latest    atomic.Pointer[prometheus.Registry]
}

func newWatchMetrics() *watchMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &watchMetrics{
		registry: reg,
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "depnotify",
			Subsystem: "watch",
			Name:      "runs_total",
			Help:      "Suite runs by outcome.",
		}, []string{"result"}),
		scenarios: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "depnotify",
			Subsystem: "watch",
			Name:      "scenarios",
			Help:      "Scenarios in the latest run by outcome.",
		}, []string{"result"}),
		lastRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "depnotify",
			Subsystem: "watch",
			Name:      "last_run_timestamp_seconds",
			Help:      "Start time of the latest suite run.",
		}),
	}
}

func (m *watchMetrics) observe(suite *harness.SuiteResult, reg *prometheus.Registry, start time.Time) {
	result := "passed"
	if suite.Failed > 0 {
		result = "failed"
	}
	m.runs.WithLabelValues(result).Inc()
	m.scenarios.WithLabelValues("passed").Set(float64(suite.Passed))
	m.scenarios.WithLabelValues("failed").Set(float64(suite.Failed))
	m.lastRun.Set(float64(start.Unix()))
	m.latest.Store(reg)
}

// Gather implements prometheus.Gatherer.
func (m *watchMetrics) Gather() ([]*dto.MetricFamily, error) {
	gatherers := prometheus.Gatherers{m.registry}
	if latest := m.latest.Load(); latest != nil {
		gatherers = append(gatherers, latest)
	}
	return gatherers.Gather()
}

func newMetricsRouter(g prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return r
}
