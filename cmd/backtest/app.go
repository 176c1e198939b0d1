package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ducminhle1904/strategy-backtester/internal/backtest"
	"github.com/ducminhle1904/strategy-backtester/internal/cache"
	"github.com/ducminhle1904/strategy-backtester/internal/config"
	"github.com/ducminhle1904/strategy-backtester/internal/monitoring"
	"github.com/ducminhle1904/strategy-backtester/internal/strategy"
	"github.com/ducminhle1904/strategy-backtester/pkg/data"
	"github.com/ducminhle1904/strategy-backtester/pkg/reporting"
	"github.com/ducminhle1904/strategy-backtester/pkg/types"
)

type appOptions struct {
	consoleOnly bool
	outputDir   string
	top         int
	progress    bool
	stdout      io.Writer
	stderr      io.Writer
}

// app holds the wired components for one invocation.
type app struct {
	cfg       *config.Config
	log       *zap.Logger
	opts      appOptions
	store     cache.Store
	metrics   *monitoring.Metrics
	health    *monitoring.HealthChecker
	server    *http.Server
	data      *data.DataManager
	runner    *backtest.Runner
	optimizer *backtest.Optimizer
	reports   *reporting.ReportingManager
}

func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger, opts appOptions) (*app, error) {
	metrics, err := monitoring.NewMetrics(prometheus.NewRegistry())
	if err != nil {
		return nil, err
	}
	store, err := cache.Open(ctx, cfg.Cache.Path, log)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		log:     log,
		opts:    opts,
		store:   store,
		metrics: metrics,
		health:  monitoring.NewHealthChecker(),
		data:    data.NewDataManager(log),
	}
	a.runner = backtest.NewRunner(strategy.DefaultRegistry(),
		backtest.WithLogger(log),
		backtest.WithObserver(metrics),
		backtest.WithCache(store, cfg.Cache.TTL),
	)
	a.optimizer = backtest.NewOptimizer(a.runner,
		backtest.WithMaxWorkers(cfg.Workers()),
		backtest.WithOptimizerLogger(log),
		backtest.WithOptimizerObserver(metrics),
	)
	a.reports = reporting.NewReportingManager(reporting.ReportingConfig{
		EnableConsole:   true,
		EnableFiles:     !opts.consoleOnly,
		OutputDirectory: opts.outputDir,
		ExcelEnabled:    true,
		CSVEnabled:      true,
		JSONEnabled:     true,
		TopResults:      opts.top,
	}, opts.stdout)

	if addr := cfg.Monitoring.MetricsAddr; addr != "" {
		a.server = &http.Server{
			Addr:              addr,
			Handler:           monitoring.NewMux(metrics, a.health),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info("metrics server listening", zap.String("addr", addr))
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server error", zap.Error(err))
			}
		}()
	}
	return a, nil
}

// Close stops the metrics server and closes the cache store.
func (a *app) Close() error {
	if a.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.log.Warn("metrics server shutdown", zap.Error(err))
		}
	}
	return a.store.Close()
}

// maintainCache runs the requested cache maintenance and reports whether
// any was requested.
func (a *app) maintainCache(ctx context.Context, purge bool, symbol string) (bool, error) {
	if purge {
		n, err := a.store.Purge(ctx)
		if err != nil {
			return true, err
		}
		fmt.Fprintf(a.opts.stdout, "🧹 Purged %d expired cache entries\n", n)
	}
	if symbol != "" {
		n, err := a.store.InvalidateSymbol(ctx, symbol)
		if err != nil {
			return true, err
		}
		fmt.Fprintf(a.opts.stdout, "🧹 Invalidated %d cached results for %s\n", n, symbol)
	}
	return purge || symbol != "", nil
}

// execute loads the job's data and dispatches to a single run, an
// optimization or a walk-forward analysis.
func (a *app) execute(ctx context.Context, job *config.Job, period string) (err error) {
	a.health.JobStarted()
	defer func() { a.health.JobFinished(err) }()

	bars, benchmark, err := a.loadBars(job, period)
	if err != nil {
		return err
	}
	sizing, err := job.SizingRule()
	if err != nil {
		return err
	}
	a.log.Info("data loaded",
		zap.String("job", job.Name),
		zap.String("file", job.DataFile),
		zap.Int("bars", len(bars)),
		zap.Time("start", bars[0].Timestamp),
		zap.Time("end", bars[len(bars)-1].Timestamp))

	switch {
	case job.WalkForward != nil:
		return a.walkForward(ctx, job, a.optimizeRequest(job, bars, benchmark, sizing))
	case job.Optimize != nil:
		return a.optimize(ctx, job, a.optimizeRequest(job, bars, benchmark, sizing))
	default:
		return a.single(ctx, job, bars, benchmark, sizing)
	}
}

func (a *app) loadBars(job *config.Job, period string) ([]types.OHLCV, []float64, error) {
	var trailing time.Duration
	if period != "" {
		d, ok := data.ParseTrailingPeriod(period)
		if !ok {
			return nil, nil, fmt.Errorf("invalid period %q", period)
		}
		trailing = d
	}
	bars, err := a.data.Load(job.DataFile, trailing, time.Time{}, time.Time{})
	if err != nil {
		return nil, nil, err
	}
	if job.BenchmarkFile == "" {
		return bars, nil, nil
	}
	benchBars, err := a.data.LoadHistoricalData(job.BenchmarkFile)
	if err != nil {
		return nil, nil, err
	}
	return bars, data.BenchmarkReturns(bars, benchBars), nil
}

func (a *app) single(ctx context.Context, job *config.Job, bars []types.OHLCV, benchmark []float64, sizing backtest.SizingRule) error {
	result, err := a.runner.Run(ctx, backtest.RunRequest{
		Strategy:       job.Strategy,
		Symbol:         job.Symbol,
		Bars:           bars,
		Parameters:     job.Parameters,
		InitialCapital: job.InitialCapital,
		Commission:     *job.Commission,
		Sizing:         sizing,
		EndOfRun:       backtest.EndOfRunPolicy(job.EndOfRun),
		Timeout:        job.Timeout,
		Metrics:        a.cfg.MetricsConfig(),
		Benchmark:      benchmark,
	})
	if err != nil {
		return err
	}
	written, err := a.reports.ReportResult(result)
	a.printWritten(written)
	if err != nil {
		return err
	}
	if !result.Completed() {
		return fmt.Errorf("backtest failed: %s", result.Error)
	}
	return nil
}

func (a *app) optimizeRequest(job *config.Job, bars []types.OHLCV, benchmark []float64, sizing backtest.SizingRule) backtest.OptimizeRequest {
	req := backtest.OptimizeRequest{
		Strategy:       job.Strategy,
		Symbol:         job.Symbol,
		Bars:           bars,
		Grid:           job.Optimize.Grid,
		BaseParameters: job.Parameters,
		Metric:         job.Optimize.Metric,
		InitialCapital: job.InitialCapital,
		Commission:     *job.Commission,
		Sizing:         sizing,
		EndOfRun:       backtest.EndOfRunPolicy(job.EndOfRun),
		RunTimeout:     job.Timeout,
		Metrics:        a.cfg.MetricsConfig(),
		Benchmark:      benchmark,
	}
	if a.opts.progress {
		req.OnProgress = newProgressReporter(a.opts.stderr, "Optimizing "+job.Strategy).update
	}
	return req
}

func (a *app) optimize(ctx context.Context, job *config.Job, req backtest.OptimizeRequest) error {
	a.log.Info("optimization started",
		zap.String("strategy", job.Strategy),
		zap.Int("combinations", req.Grid.Size()),
		zap.Int("workers", a.cfg.Workers()))

	result, err := a.optimizer.Optimize(ctx, req)
	if err != nil {
		return err
	}
	written, err := a.reports.ReportOptimization(result, job.Symbol, req.Grid.Names())
	a.printWritten(written)
	if err != nil {
		return err
	}
	if result.Cancelled {
		return ctx.Err()
	}
	return nil
}

func (a *app) walkForward(ctx context.Context, job *config.Job, req backtest.OptimizeRequest) error {
	result, err := a.optimizer.WalkForward(ctx, backtest.WalkForwardRequest{
		OptimizeRequest: req,
		TrainBars:       job.WalkForward.TrainBars,
		TestBars:        job.WalkForward.TestBars,
		Step:            job.WalkForward.Step,
	})
	if err != nil {
		return err
	}
	written, err := a.reports.ReportWalkForward(result, job.Symbol)
	a.printWritten(written)
	if err != nil {
		return err
	}
	if result.Status == backtest.StatusFailed {
		return fmt.Errorf("walk-forward: none of %d windows completed", len(result.Windows))
	}
	return nil
}

func (a *app) printWritten(paths []string) {
	for _, p := range paths {
		fmt.Fprintf(a.opts.stdout, "📁 %s\n", p)
	}
}
