package backtest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	engineerrors "github.com/ducminhle1904/strategy-backtester/internal/errors"
	"github.com/ducminhle1904/strategy-backtester/internal/strategy"
	"github.com/ducminhle1904/strategy-backtester/pkg/types"
)

// RunRequest describes a single backtest job.
type RunRequest struct {
	Strategy       string
	Symbol         string
	Bars           []types.OHLCV
	Parameters     types.ParameterSet
	InitialCapital float64
	Commission     float64
	Sizing         SizingRule
	EndOfRun       EndOfRunPolicy
	Timeout        time.Duration
	Metrics        MetricsConfig
	Benchmark      []float64
}

// Runner builds strategies from a registry and runs backtests through an
// optional result cache.
type Runner struct {
	registry *strategy.Registry
	cached   *CachedRunner
	observer Observer
	logger   *zap.Logger
}

// RunnerOption configures a Runner
type RunnerOption func(*Runner)

// WithCache routes runs through cache with the given ttl.
func WithCache(cache ResultCache, ttl time.Duration) RunnerOption {
	return func(r *Runner) {
		r.cached = NewCachedRunner(cache, ttl, r.logger, r.observer)
	}
}

// WithObserver reports runs and cache requests to o.
func WithObserver(o Observer) RunnerOption {
	return func(r *Runner) {
		if o != nil {
			r.observer = o
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRunner creates a Runner. Options are applied in order, so WithLogger and
// WithObserver should precede WithCache.
func NewRunner(registry *strategy.Registry, opts ...RunnerOption) *Runner {
	if registry == nil {
		registry = strategy.DefaultRegistry()
	}
	r := &Runner{
		registry: registry,
		observer: nopObserver{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.cached == nil {
		r.cached = NewCachedRunner(nil, 0, r.logger, r.observer)
	}
	return r
}

// Registry returns the strategy registry
func (r *Runner) Registry() *strategy.Registry { return r.registry }

// Run executes req. Unknown strategies are configuration errors; every other
// failure is reported as a failed result.
func (r *Runner) Run(ctx context.Context, req RunRequest) (*BacktestResult, error) {
	if !r.registry.Has(req.Strategy) {
		return nil, engineerrors.NewConfigurationError("runner", "Run", "unknown strategy "+req.Strategy)
	}
	result, _, err := r.run(ctx, req, uuid.NewString())
	return result, err
}

// run returns the result and whether it came from the cache.
func (r *Runner) run(ctx context.Context, req RunRequest, jobID string) (*BacktestResult, bool, error) {
	compute := func(ctx context.Context) (*BacktestResult, error) {
		return r.simulate(ctx, req, jobID), nil
	}
	if len(req.Bars) == 0 {
		result, err := compute(ctx)
		return result, false, err
	}

	series := types.Series(req.Bars)
	fingerprint, err := Fingerprint(req.Strategy, req.Symbol, series.Start(), series.End(), req.Parameters)
	if err != nil {
		failed := &BacktestResult{
			JobID:          jobID,
			Strategy:       req.Strategy,
			Symbol:         req.Symbol,
			Parameters:     req.Parameters,
			InitialCapital: req.InitialCapital,
			FinalCapital:   req.InitialCapital,
		}
		failed.fail(err)
		return failed, false, nil
	}
	return r.cached.Run(ctx, fingerprint, compute)
}

func (r *Runner) simulate(ctx context.Context, req RunRequest, jobID string) *BacktestResult {
	config := EngineConfig{
		JobID:          jobID,
		Symbol:         req.Symbol,
		Parameters:     req.Parameters,
		InitialCapital: req.InitialCapital,
		Commission:     req.Commission,
		Sizing:         req.Sizing,
		EndOfRun:       req.EndOfRun,
		Timeout:        req.Timeout,
		Metrics:        req.Metrics,
		Benchmark:      req.Benchmark,
		Logger:         r.logger,
	}

	start := time.Now()
	strat, err := r.registry.New(req.Strategy, req.Parameters)
	var result *BacktestResult
	if err != nil {
		result = NewEngine(nil, req.Bars, config).failedResult(err)
		result.Strategy = req.Strategy
	} else {
		// a fresh engine never returns ErrEngineNotIdle
		result, _ = NewEngine(strat, req.Bars, config).Run(ctx)
	}
	result.Duration = time.Since(start)

	r.observer.ObserveRun(req.Strategy, string(result.Status), result.Duration)
	return result
}
