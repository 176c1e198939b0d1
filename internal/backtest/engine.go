package backtest

import (
	"context"
	stderrors "errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	engineerrors "github.com/ducminhle1904/strategy-backtester/internal/errors"
	"github.com/ducminhle1904/strategy-backtester/internal/strategy"
	"github.com/ducminhle1904/strategy-backtester/pkg/types"
)

// MaxCommission is the upper bound accepted for a commission rate.
const MaxCommission = 0.1

// ErrEngineNotIdle is returned when Run is called more than once.
var ErrEngineNotIdle = stderrors.New("backtest: engine is not idle")

// EngineState is the lifecycle state of an Engine.
type EngineState string

const (
	StateIdle      EngineState = "idle"
	StateRunning   EngineState = "running"
	StateCompleted EngineState = "completed"
	StateFailed    EngineState = "failed"
)

// EndOfRunPolicy selects what happens to a position still open on the last bar.
type EndOfRunPolicy string

const (
	// ForceClose closes the position at the final close so every trade is realised.
	ForceClose EndOfRunPolicy = "force_close"
	// LeaveOpen keeps the position marked to market and out of trade statistics.
	LeaveOpen EndOfRunPolicy = "leave_open"
)

// EngineConfig configures a single simulation.
type EngineConfig struct {
	JobID          string
	Symbol         string
	Parameters     types.ParameterSet
	InitialCapital float64
	Commission     float64
	Sizing         SizingRule
	EndOfRun       EndOfRunPolicy
	Timeout        time.Duration
	Metrics        MetricsConfig
	// Benchmark holds per-period benchmark returns, len(bars)-1 long.
	Benchmark []float64
	Logger    *zap.Logger
}

// Validate checks capital and commission bounds.
func (c EngineConfig) Validate() error {
	if !(c.InitialCapital > 0) || math.IsInf(c.InitialCapital, 0) {
		return engineerrors.NewConfigurationError("engine", "validate", fmt.Sprintf("initial capital must be positive, got %v", c.InitialCapital))
	}
	if !(c.Commission >= 0 && c.Commission <= MaxCommission) {
		return engineerrors.NewConfigurationError("engine", "validate", fmt.Sprintf("commission must be in [0, %v], got %v", MaxCommission, c.Commission))
	}
	switch c.EndOfRun {
	case "", ForceClose, LeaveOpen:
	default:
		return engineerrors.NewConfigurationError("engine", "validate", fmt.Sprintf("unknown end-of-run policy %q", c.EndOfRun))
	}
	return nil
}

// Engine replays a bar series against one strategy instance. An Engine runs
// exactly once.
type Engine struct {
	config   EngineConfig
	strategy strategy.Strategy
	bars     []types.OHLCV
	logger   *zap.Logger

	mu    sync.Mutex
	state EngineState

	// bar is the index being simulated, read when a run is abandoned
	bar atomic.Int64
}

// NewEngine creates an engine in the idle state.
func NewEngine(strat strategy.Strategy, bars []types.OHLCV, config EngineConfig) *Engine {
	if config.JobID == "" {
		config.JobID = uuid.NewString()
	}
	if config.EndOfRun == "" {
		config.EndOfRun = ForceClose
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		config:   config,
		strategy: strat,
		bars:     bars,
		logger:   logger,
		state:    StateIdle,
	}
}

// State returns the current lifecycle state
func (e *Engine) State() EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Run executes the simulation. Failures are reported in the returned result
// with StatusFailed; the only error returned is ErrEngineNotIdle.
func (e *Engine) Run(ctx context.Context) (*BacktestResult, error) {
	e.mu.Lock()
	if e.state != StateIdle {
		e.mu.Unlock()
		return nil, ErrEngineNotIdle
	}
	e.state = StateRunning
	e.mu.Unlock()

	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := e.await(ctx)
	if err != nil {
		result = e.failedResult(err)
	}
	result.Duration = time.Since(start)

	e.mu.Lock()
	if result.Status == StatusCompleted {
		e.state = StateCompleted
	} else {
		e.state = StateFailed
	}
	e.mu.Unlock()

	if err != nil {
		e.logger.Warn("backtest failed",
			zap.String("job_id", result.JobID),
			zap.String("strategy", result.Strategy),
			zap.Duration("duration", result.Duration),
			zap.Error(err))
	} else {
		e.logger.Debug("backtest completed",
			zap.String("job_id", result.JobID),
			zap.String("strategy", result.Strategy),
			zap.Int("trades", len(result.Trades)),
			zap.Float64("final_capital", result.FinalCapital),
			zap.Duration("duration", result.Duration))
	}
	return result, nil
}

type simulation struct {
	result *BacktestResult
	err    error
}

// await runs the simulation on its own goroutine so a strategy stuck inside
// Update or Signal cannot hold the caller past ctx. The abandoned goroutine
// finishes into a buffered channel nobody reads.
func (e *Engine) await(ctx context.Context) (*BacktestResult, error) {
	done := make(chan simulation, 1)
	go func() {
		result, err := e.safeSimulate(ctx)
		done <- simulation{result: result, err: err}
	}()
	select {
	case sim := <-done:
		return sim.result, sim.err
	case <-ctx.Done():
		return nil, e.contextError(ctx.Err(), int(e.bar.Load()))
	}
}

func (e *Engine) safeSimulate(ctx context.Context) (result *BacktestResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = engineerrors.NewBacktestError("engine", "run", fmt.Sprintf("panic: %v", r))
		}
	}()
	return e.simulate(ctx)
}

func (e *Engine) simulate(ctx context.Context) (*BacktestResult, error) {
	if err := e.config.Validate(); err != nil {
		return nil, err
	}
	if e.strategy == nil {
		return nil, engineerrors.NewConfigurationError("engine", "run", "strategy is required")
	}
	if err := ValidateBars(e.bars); err != nil {
		return nil, err
	}

	broker := NewBroker(e.config.InitialCapital, e.config.Commission, e.config.Sizing, strategy.SupportsShort(e.strategy))
	equity := make([]EquityPoint, 0, len(e.bars))
	trades := make([]Trade, 0)
	last := len(e.bars) - 1

	for i, bar := range e.bars {
		e.bar.Store(int64(i))
		if err := ctx.Err(); err != nil {
			return nil, e.contextError(err, i)
		}

		if err := e.strategy.Update(bar); err != nil {
			return nil, stepError(err, "update", i)
		}
		signal, err := e.strategy.Signal()
		if err != nil {
			return nil, stepError(err, "signal", i)
		}
		trade, err := broker.ApplySignal(signal, bar)
		if trade != nil {
			trades = append(trades, *trade)
		}
		if err != nil {
			return nil, stepError(err, "apply signal", i)
		}

		if i == last {
			if e.config.EndOfRun == ForceClose {
				if closing := broker.ForceClose(bar); closing != nil {
					trades = append(trades, *closing)
				}
			} else {
				// no bar is left to fill an order queued on the last one
				broker.CancelPending()
			}
		}

		value := broker.PortfolioValue(bar)
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return nil, engineerrors.NewBacktestError("engine", "run", "portfolio value is not finite").WithContext("bar", i)
		}
		equity = append(equity, EquityPoint{Timestamp: bar.Timestamp, Value: value})
	}

	values := make([]float64, len(equity))
	for i, p := range equity {
		values[i] = p.Value
	}

	result := e.baseResult()
	result.Status = StatusCompleted
	result.FinalCapital = values[len(values)-1]
	result.Trades = trades
	result.EquityCurve = equity
	result.Orders = broker.Summary()
	result.Metrics = CalculateMetrics(values, trades, e.config.InitialCapital, e.config.Benchmark, e.config.Metrics)
	if pos := broker.Position(); !pos.IsFlat() {
		result.OpenPosition = &pos
	}
	return result, nil
}

func (e *Engine) contextError(err error, bar int) error {
	message := "run cancelled"
	if stderrors.Is(err, context.DeadlineExceeded) {
		message = "run timed out"
	}
	ee := engineerrors.NewBacktestError("engine", "run", message).WithContext("bar", bar)
	ee.Underlying = err
	return ee
}

// stepError tags a strategy or broker failure with the bar index. Errors
// without a kind are classified as strategy errors.
func stepError(err error, operation string, bar int) error {
	var ee *engineerrors.EngineError
	if !stderrors.As(err, &ee) {
		ee = engineerrors.Wrap(err, engineerrors.KindStrategy, "engine", operation)
	}
	return ee.WithContext("bar", bar)
}

func (e *Engine) baseResult() *BacktestResult {
	name := ""
	if e.strategy != nil {
		name = e.strategy.Name()
	}
	return &BacktestResult{
		JobID:          e.config.JobID,
		Strategy:       name,
		Symbol:         e.config.Symbol,
		Parameters:     e.config.Parameters,
		InitialCapital: e.config.InitialCapital,
		FinalCapital:   e.config.InitialCapital,
	}
}

func (e *Engine) failedResult(err error) *BacktestResult {
	result := e.baseResult()
	result.fail(err)
	return result
}

// ValidateBars checks that bars are non-empty, strictly increasing in time
// and carry finite, positive, consistent prices.
func ValidateBars(bars []types.OHLCV) error {
	if len(bars) == 0 {
		return engineerrors.NewDataFetchError("engine", "validate", "no bars supplied")
	}
	for i, bar := range bars {
		if i > 0 && !bar.Timestamp.After(bars[i-1].Timestamp) {
			return engineerrors.NewDataFetchError("engine", "validate", "timestamps not strictly increasing").
				WithContext("index", i)
		}
		for _, p := range []float64{bar.Open, bar.High, bar.Low, bar.Close} {
			if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
				return engineerrors.NewDataFetchError("engine", "validate", fmt.Sprintf("invalid price %v", p)).
					WithContext("index", i)
			}
		}
		if bar.High < bar.Low {
			return engineerrors.NewDataFetchError("engine", "validate", "high below low").
				WithContext("index", i)
		}
		if math.IsNaN(bar.Volume) || bar.Volume < 0 {
			return engineerrors.NewDataFetchError("engine", "validate", fmt.Sprintf("invalid volume %v", bar.Volume)).
				WithContext("index", i)
		}
	}
	return nil
}
