package backtest

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	engineerrors "github.com/ducminhle1904/strategy-backtester/internal/errors"
	"github.com/ducminhle1904/strategy-backtester/pkg/types"
)

// DefaultMaxWorkers caps the optimizer pool when no cap is configured.
const DefaultMaxWorkers = 10

// OptimizeRequest describes a grid search.
type OptimizeRequest struct {
	Strategy       string
	Symbol         string
	Bars           []types.OHLCV
	Grid           types.ParameterGrid
	BaseParameters types.ParameterSet
	Metric         string
	InitialCapital float64
	Commission     float64
	Sizing         SizingRule
	EndOfRun       EndOfRunPolicy
	RunTimeout     time.Duration
	Metrics        MetricsConfig
	Benchmark      []float64

	// OnProgress is called from the collecting goroutine after each
	// combination finishes.
	OnProgress func(Progress)
}

// Optimizer runs parameter grid searches. It holds no per-job state and may
// serve concurrent jobs; each job owns its worker pool.
type Optimizer struct {
	runner     *Runner
	maxWorkers int
	observer   Observer
	logger     *zap.Logger
}

// OptimizerOption configures an Optimizer
type OptimizerOption func(*Optimizer)

// WithMaxWorkers caps the pool size per job.
func WithMaxWorkers(n int) OptimizerOption {
	return func(o *Optimizer) { o.maxWorkers = n }
}

// WithOptimizerLogger sets the logger
func WithOptimizerLogger(l *zap.Logger) OptimizerOption {
	return func(o *Optimizer) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithOptimizerObserver reports in-flight combinations to obs.
func WithOptimizerObserver(obs Observer) OptimizerOption {
	return func(o *Optimizer) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// NewOptimizer creates an optimizer that runs combinations through runner.
func NewOptimizer(runner *Runner, opts ...OptimizerOption) *Optimizer {
	if runner == nil {
		runner = NewRunner(nil)
	}
	o := &Optimizer{
		runner:     runner,
		maxWorkers: DefaultMaxWorkers,
		observer:   nopObserver{},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ValidateOptimizeRequest checks a request before any simulation starts.
func (o *Optimizer) ValidateOptimizeRequest(req OptimizeRequest) error {
	cfg := EngineConfig{InitialCapital: req.InitialCapital, Commission: req.Commission, EndOfRun: req.EndOfRun}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := ValidateGrid(req.Grid); err != nil {
		return err
	}
	if _, ok := (PerformanceMetrics{}).Value(req.Metric); !ok {
		return engineerrors.NewConfigurationError("optimizer", "validate", fmt.Sprintf("unknown metric %q", req.Metric))
	}
	if IsBenchmarkMetric(req.Metric) && len(req.Benchmark) == 0 {
		return engineerrors.NewConfigurationError("optimizer", "validate", fmt.Sprintf("metric %q requires a benchmark", req.Metric))
	}
	if len(req.Benchmark) > 0 && len(req.Benchmark) != len(req.Bars)-1 {
		return engineerrors.NewConfigurationError("optimizer", "validate",
			fmt.Sprintf("benchmark has %d returns, want %d", len(req.Benchmark), len(req.Bars)-1))
	}
	if !o.runner.Registry().Has(req.Strategy) {
		return engineerrors.NewConfigurationError("optimizer", "validate", fmt.Sprintf("unknown strategy %q", req.Strategy))
	}
	if len(req.Bars) == 0 {
		return engineerrors.NewConfigurationError("optimizer", "validate", "no bars supplied")
	}
	return nil
}

type combinationOutcome struct {
	combo  Combination
	result *BacktestResult
	cached bool
}

// Optimize evaluates every grid combination and ranks the successful ones
// by req.Metric, descending, ties broken by enumeration order. It fails only
// on invalid input or when no combination succeeds. On cancellation the
// finished combinations are ranked and Cancelled is set.
func (o *Optimizer) Optimize(ctx context.Context, req OptimizeRequest) (*OptimizationResult, error) {
	if err := o.ValidateOptimizeRequest(req); err != nil {
		return nil, err
	}

	start := time.Now()
	jobID := uuid.NewString()
	combos := ExpandGrid(req.Grid, req.BaseParameters)
	total := len(combos)
	logger := o.logger.With(zap.String("job_id", jobID), zap.String("strategy", req.Strategy))
	logger.Info("starting optimization", zap.Int("combinations", total), zap.String("metric", req.Metric))

	workers := PoolSize(o.maxWorkers)
	if workers > total {
		workers = total
	}
	pool := NewWorkerPool(ctx, workers, workers, func(ctx context.Context, c Combination) combinationOutcome {
		o.observer.AddInflight(1)
		defer o.observer.AddInflight(-1)

		run := RunRequest{
			Strategy:       req.Strategy,
			Symbol:         req.Symbol,
			Bars:           req.Bars,
			Parameters:     c.Parameters,
			InitialCapital: req.InitialCapital,
			Commission:     req.Commission,
			Sizing:         req.Sizing,
			EndOfRun:       req.EndOfRun,
			Timeout:        req.RunTimeout,
			Metrics:        req.Metrics,
			Benchmark:      req.Benchmark,
		}
		result, cached, err := o.runner.run(ctx, run, fmt.Sprintf("%s-%d", jobID, c.Index))
		if err != nil {
			result = &BacktestResult{Strategy: req.Strategy, Parameters: c.Parameters}
			result.fail(err)
		}
		return combinationOutcome{combo: c, result: result, cached: cached}
	})
	pool.Start()

	go func() {
		defer pool.Stop()
		for _, c := range combos {
			if err := pool.SubmitJob(c); err != nil {
				return
			}
		}
	}()

	// index-addressed, owned by this goroutine
	outcomes := make([]*combinationOutcome, total)
	tracker := NewProgressTracker(total)
	for out := range pool.Results() {
		outcomes[out.combo.Index] = &out
		ok := out.result.Completed()
		tracker.Increment(ok)
		if !ok {
			logger.Debug("combination failed",
				zap.Int("combination", out.combo.Index),
				zap.String("error", out.result.Error))
		}
		if req.OnProgress != nil {
			req.OnProgress(tracker.Snapshot())
		}
	}

	result := &OptimizationResult{
		JobID:             jobID,
		Strategy:          req.Strategy,
		Metric:            req.Metric,
		TotalCombinations: total,
		Cancelled:         ctx.Err() != nil,
	}
	stats := engineerrors.NewStats(5)
	for _, out := range outcomes {
		if out == nil {
			continue
		}
		if out.result.Completed() {
			value, _ := out.result.Metrics.Value(req.Metric)
			result.Results = append(result.Results, RankedResult{
				Index:        out.combo.Index,
				Parameters:   out.combo.Parameters,
				MetricValue:  value,
				Metrics:      out.result.Metrics,
				FinalCapital: out.result.FinalCapital,
			})
			continue
		}
		stats.Record(failureError(out.result))
		result.Failures = append(result.Failures, FailedCombination{
			Index:      out.combo.Index,
			Parameters: out.combo.Parameters,
			Error:      out.result.Error,
		})
	}
	result.CompletedCombinations = len(result.Results)
	result.FailuresByKind = make(map[string]int, len(stats.ByKind))
	for kind, n := range stats.ByKind {
		result.FailuresByKind[string(kind)] = n
	}
	result.Duration = time.Since(start)

	if len(result.Results) == 0 {
		msg := fmt.Sprintf("no successful optimization runs out of %d combinations", total)
		if result.Cancelled {
			msg = "optimization cancelled before any combination completed"
		}
		logger.Error("optimization failed", zap.String("reason", msg), zap.Int("failures", len(result.Failures)))
		return nil, engineerrors.NewBacktestError("optimizer", "Optimize", msg).
			WithContext("failures", len(result.Failures))
	}

	RankResults(result.Results)
	best := result.Results[0]
	result.BestParameters = best.Parameters
	result.BestMetricValue = best.MetricValue
	result.Status = StatusCompleted

	logger.Info("optimization completed",
		zap.Int("completed", result.CompletedCombinations),
		zap.Int("failed", len(result.Failures)),
		zap.Bool("cancelled", result.Cancelled),
		zap.Float64("best_metric", best.MetricValue),
		zap.Duration("duration", result.Duration))
	return result, nil
}

// RankResults sorts by MetricValue descending with ties broken by Index and
// assigns ranks starting at 1. NaN sorts last.
func RankResults(results []RankedResult) {
	key := func(v float64) float64 {
		if math.IsNaN(v) {
			return math.Inf(-1)
		}
		return v
	}
	sort.SliceStable(results, func(i, j int) bool {
		a, b := key(results[i].MetricValue), key(results[j].MetricValue)
		if a != b {
			return a > b
		}
		return results[i].Index < results[j].Index
	})
	for i := range results {
		results[i].Rank = i + 1
	}
}

func failureError(r *BacktestResult) error {
	if err := r.Err(); err != nil {
		return err
	}
	kind := engineerrors.Kind(r.ErrorKind)
	if kind == "" {
		kind = engineerrors.KindBacktest
	}
	return engineerrors.New(kind, "optimizer", "combination", r.Error)
}
