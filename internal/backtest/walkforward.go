package backtest

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	engineerrors "github.com/ducminhle1904/strategy-backtester/internal/errors"
	"github.com/ducminhle1904/strategy-backtester/pkg/types"
)

const (
	DefaultTrainBars = 252
	DefaultTestBars  = 63
)

// WalkForwardRequest optimises on rolling train windows and evaluates the
// winners on the following test windows. OnProgress restarts at zero for
// every window.
type WalkForwardRequest struct {
	OptimizeRequest

	TrainBars int
	TestBars  int
	// Step defaults to TestBars.
	Step int
}

// WalkForwardWindow is the outcome of one train/test split.
type WalkForwardWindow struct {
	Index          int                `json:"index"`
	TrainStart     time.Time          `json:"train_start"`
	TrainEnd       time.Time          `json:"train_end"`
	TestStart      time.Time          `json:"test_start"`
	TestEnd        time.Time          `json:"test_end"`
	BestParameters types.ParameterSet `json:"best_parameters,omitempty"`
	InSample       float64            `json:"in_sample_metric"`
	OutOfSample    float64            `json:"out_of_sample_metric"`
	Result         *BacktestResult    `json:"result,omitempty"`
	Error          string             `json:"error,omitempty"`
}

// Succeeded reports whether both the optimisation and the test run completed
func (w WalkForwardWindow) Succeeded() bool {
	return w.Error == "" && w.Result.Completed()
}

// WalkForwardResult summarises all windows.
type WalkForwardResult struct {
	JobID            string              `json:"job_id"`
	Strategy         string              `json:"strategy"`
	Metric           string              `json:"metric"`
	Windows          []WalkForwardWindow `json:"windows"`
	CompletedWindows int                 `json:"completed_windows"`
	// mean metric over completed windows
	AvgInSample    float64       `json:"avg_in_sample"`
	AvgOutOfSample float64       `json:"avg_out_of_sample"`
	Duration       time.Duration `json:"duration"`
	Status         Status        `json:"status"`
}

type window struct {
	trainStart, trainEnd, testEnd int
}

func walkForwardWindows(n, train, test, step int) []window {
	var windows []window
	for start := 0; start+train+test <= n; start += step {
		windows = append(windows, window{
			trainStart: start,
			trainEnd:   start + train,
			testEnd:    start + train + test,
		})
	}
	return windows
}

// WalkForward runs the analysis sequentially over windows; each window's
// grid search uses the optimizer's worker pool.
func (o *Optimizer) WalkForward(ctx context.Context, req WalkForwardRequest) (*WalkForwardResult, error) {
	if req.TrainBars == 0 {
		req.TrainBars = DefaultTrainBars
	}
	if req.TestBars == 0 {
		req.TestBars = DefaultTestBars
	}
	if req.Step == 0 {
		req.Step = req.TestBars
	}
	if req.TrainBars < 2 || req.TestBars < 2 || req.Step < 1 {
		return nil, engineerrors.NewConfigurationError("walkforward", "validate",
			fmt.Sprintf("invalid windows train=%d test=%d step=%d", req.TrainBars, req.TestBars, req.Step))
	}
	if err := o.ValidateOptimizeRequest(req.OptimizeRequest); err != nil {
		return nil, err
	}
	windows := walkForwardWindows(len(req.Bars), req.TrainBars, req.TestBars, req.Step)
	if len(windows) == 0 {
		return nil, engineerrors.NewConfigurationError("walkforward", "validate",
			fmt.Sprintf("%d bars are not enough for one %d+%d window", len(req.Bars), req.TrainBars, req.TestBars))
	}

	start := time.Now()
	result := &WalkForwardResult{
		JobID:    uuid.NewString(),
		Strategy: req.Strategy,
		Metric:   req.Metric,
	}
	logger := o.logger.With(zap.String("job_id", result.JobID), zap.String("strategy", req.Strategy))
	logger.Info("starting walk-forward analysis", zap.Int("windows", len(windows)))

	var inSum, outSum float64
	for i, w := range windows {
		if ctx.Err() != nil {
			break
		}
		train := req.Bars[w.trainStart:w.trainEnd]
		test := req.Bars[w.trainEnd:w.testEnd]
		wr := WalkForwardWindow{
			Index:      i,
			TrainStart: train[0].Timestamp,
			TrainEnd:   train[len(train)-1].Timestamp,
			TestStart:  test[0].Timestamp,
			TestEnd:    test[len(test)-1].Timestamp,
		}

		opt := req.OptimizeRequest
		opt.Bars = train
		opt.Benchmark = sliceBenchmark(req.Benchmark, w.trainStart, w.trainEnd)
		best, err := o.Optimize(ctx, opt)
		if err != nil {
			wr.Error = err.Error()
			result.Windows = append(result.Windows, wr)
			logger.Warn("walk-forward window failed", zap.Int("window", i), zap.Error(err))
			continue
		}
		wr.BestParameters = best.BestParameters
		wr.InSample = best.BestMetricValue

		run := RunRequest{
			Strategy:       req.Strategy,
			Symbol:         req.Symbol,
			Bars:           test,
			Parameters:     best.BestParameters,
			InitialCapital: req.InitialCapital,
			Commission:     req.Commission,
			Sizing:         req.Sizing,
			EndOfRun:       req.EndOfRun,
			Timeout:        req.RunTimeout,
			Metrics:        req.Metrics,
			Benchmark:      sliceBenchmark(req.Benchmark, w.trainEnd, w.testEnd),
		}
		res, _, err := o.runner.run(ctx, run, fmt.Sprintf("%s-w%d", result.JobID, i))
		if err != nil {
			wr.Error = err.Error()
			result.Windows = append(result.Windows, wr)
			continue
		}
		wr.Result = res
		if res.Completed() {
			wr.OutOfSample, _ = wr.Result.Metrics.Value(req.Metric)
			if !math.IsNaN(wr.OutOfSample) && !math.IsNaN(wr.InSample) {
				inSum += wr.InSample
				outSum += wr.OutOfSample
				result.CompletedWindows++
			}
		} else {
			wr.Error = wr.Result.Error
		}
		result.Windows = append(result.Windows, wr)
	}

	if result.CompletedWindows > 0 {
		result.AvgInSample = inSum / float64(result.CompletedWindows)
		result.AvgOutOfSample = outSum / float64(result.CompletedWindows)
	}
	result.Duration = time.Since(start)
	result.Status = StatusCompleted
	if result.CompletedWindows == 0 {
		result.Status = StatusFailed
	}
	logger.Info("walk-forward analysis finished",
		zap.Int("completed_windows", result.CompletedWindows),
		zap.Float64("avg_out_of_sample", result.AvgOutOfSample),
		zap.Duration("duration", result.Duration))
	return result, nil
}

// sliceBenchmark returns the returns aligned with bars[from:to].
func sliceBenchmark(benchmark []float64, from, to int) []float64 {
	if len(benchmark) == 0 {
		return nil
	}
	return benchmark[from : to-1]
}
