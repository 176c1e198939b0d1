package backtest

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	engineerrors "github.com/ducminhle1904/strategy-backtester/internal/errors"
	"github.com/ducminhle1904/strategy-backtester/internal/strategy"
	"github.com/ducminhle1904/strategy-backtester/pkg/types"
)

func baseRequest() OptimizeRequest {
	return OptimizeRequest{
		Strategy:       "scripted",
		Symbol:         "BTCUSDT",
		Bars:           barsFromPrices(100, 100, 101, 103, 106, 110, 115, 121),
		Metric:         "total_return",
		InitialCapital: 1000,
		Commission:     0.001,
		Sizing:         FixedSize(1),
	}
}

// TestOptimizer_EvaluatesEveryCombinationOnce tests the a*b*c property
func TestOptimizer_EvaluatesEveryCombinationOnce(t *testing.T) {
	var mu sync.Mutex
	calls := make(map[string]int)

	registry := strategy.NewRegistry()
	registry.MustRegister("scripted", func(params types.ParameterSet) (strategy.Strategy, error) {
		fp, err := Fingerprint("", "", testStart, testStart, params)
		if err != nil {
			return nil, err
		}
		mu.Lock()
		calls[fp]++
		mu.Unlock()
		return scriptedFactory(params)
	})

	req := baseRequest()
	req.Grid = types.ParameterGrid{
		{Name: "buy_at", Values: []any{0, 1}},
		{Name: "sell_at", Values: []any{3, 4, 5}},
		{Name: "tag", Values: []any{"a", "b", "c", "d"}},
	}

	var progress []Progress
	req.OnProgress = func(p Progress) { progress = append(progress, p) }

	opt := NewOptimizer(NewRunner(registry), WithMaxWorkers(4))
	result, err := opt.Optimize(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 24, result.TotalCombinations)
	assert.Equal(t, 24, result.CompletedCombinations)
	assert.Len(t, result.Results, 24)
	assert.Len(t, calls, 24)
	for fp, n := range calls {
		assert.Equal(t, 1, n, fp)
	}
	require.Len(t, progress, 24)
	assert.Equal(t, 24, progress[23].Done())
	assert.Equal(t, StatusCompleted, result.Status)
}

// TestOptimizer_RankingIsDeterministic tests metric ordering with index tie-breaks
func TestOptimizer_RankingIsDeterministic(t *testing.T) {
	req := baseRequest()
	// the earliest entry with the latest exit captures the most of the trend
	req.Grid = types.ParameterGrid{
		{Name: "buy_at", Values: []any{0, 2}},
		{Name: "sell_at", Values: []any{4, 6}},
		{Name: "tag", Values: []any{"x", "y"}},
	}
	opt := NewOptimizer(NewRunner(testRegistry()), WithMaxWorkers(3))

	first, err := opt.Optimize(context.Background(), req)
	require.NoError(t, err)
	second, err := opt.Optimize(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, types.ParameterSet{"buy_at": 0, "sell_at": 6, "tag": "x"}, first.BestParameters)
	// "y" ties with "x" and loses on enumeration order
	assert.Equal(t, 2, first.Results[0].Index)
	assert.Equal(t, 3, first.Results[1].Index)
	assert.Equal(t, first.Results[0].MetricValue, first.Results[1].MetricValue)
	assert.Equal(t, first.BestMetricValue, first.Results[0].MetricValue)

	for i := range first.Results {
		assert.Equal(t, i+1, first.Results[i].Rank)
		assert.Equal(t, first.Results[i].Index, second.Results[i].Index)
		if i > 0 {
			assert.GreaterOrEqual(t, first.Results[i-1].MetricValue, first.Results[i].MetricValue)
		}
	}
}

// TestOptimizer_PartialFailure tests that failing combinations do not abort the job
func TestOptimizer_PartialFailure(t *testing.T) {
	req := baseRequest()
	req.Grid = types.ParameterGrid{
		{Name: "fail", Values: []any{false, true}},
		{Name: "buy_at", Values: []any{0, 1, 2}},
	}
	opt := NewOptimizer(NewRunner(testRegistry()))

	result, err := opt.Optimize(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, 6, result.TotalCombinations)
	assert.Equal(t, 3, result.CompletedCombinations)
	assert.Less(t, result.CompletedCombinations, result.TotalCombinations)
	require.Len(t, result.Failures, 3)
	for _, f := range result.Failures {
		assert.Equal(t, true, f.Parameters["fail"])
		assert.Contains(t, f.Error, "indicator exploded")
	}
	assert.Equal(t, 3, result.FailuresByKind["STRATEGY"])
	for _, r := range result.Results {
		assert.Equal(t, false, r.Parameters["fail"])
	}
}

func TestOptimizer_AllCombinationsFail(t *testing.T) {
	req := baseRequest()
	req.Grid = types.ParameterGrid{{Name: "fail", Values: []any{true}}}

	_, err := NewOptimizer(NewRunner(testRegistry())).Optimize(context.Background(), req)
	require.Error(t, err)
	assert.True(t, engineerrors.IsKind(err, engineerrors.KindBacktest))
}

func TestOptimizer_Validation(t *testing.T) {
	grid := types.ParameterGrid{{Name: "buy_at", Values: []any{0}}}
	tests := []struct {
		name   string
		mutate func(*OptimizeRequest)
	}{
		{"zero capital", func(r *OptimizeRequest) { r.InitialCapital = 0 }},
		{"negative commission", func(r *OptimizeRequest) { r.Commission = -0.01 }},
		{"commission too high", func(r *OptimizeRequest) { r.Commission = 0.2 }},
		{"empty grid", func(r *OptimizeRequest) { r.Grid = nil }},
		{"empty values", func(r *OptimizeRequest) { r.Grid = types.ParameterGrid{{Name: "buy_at"}} }},
		{"unknown metric", func(r *OptimizeRequest) { r.Metric = "omega" }},
		{"benchmark metric without benchmark", func(r *OptimizeRequest) { r.Metric = "beta" }},
		{"benchmark length", func(r *OptimizeRequest) { r.Benchmark = []float64{0.1} }},
		{"unknown strategy", func(r *OptimizeRequest) { r.Strategy = "martingale" }},
		{"no bars", func(r *OptimizeRequest) { r.Bars = nil }},
	}
	opt := NewOptimizer(NewRunner(testRegistry()))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := baseRequest()
			req.Grid = grid
			tt.mutate(&req)
			_, err := opt.Optimize(context.Background(), req)
			require.Error(t, err)
			assert.True(t, engineerrors.IsKind(err, engineerrors.KindConfiguration), err.Error())
		})
	}
}

func TestOptimizer_BenchmarkMetric(t *testing.T) {
	req := baseRequest()
	req.Grid = types.ParameterGrid{{Name: "buy_at", Values: []any{0, 1}}}
	req.Metric = "beta"
	req.Benchmark = closeReturns(req.Bars)

	result, err := NewOptimizer(NewRunner(testRegistry())).Optimize(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, result.Results[0].Metrics.Beta)
	assert.Equal(t, *result.Results[0].Metrics.Beta, result.BestMetricValue)
}

// TestOptimizer_Cancellation tests that cancelling keeps finished combinations
func TestOptimizer_Cancellation(t *testing.T) {
	req := baseRequest()
	values := make([]any, 40)
	for i := range values {
		values[i] = i
	}
	req.Grid = types.ParameterGrid{
		{Name: "buy_at", Values: []any{0}},
		{Name: "tag", Values: values},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req.OnProgress = func(p Progress) {
		if p.Completed >= 1 {
			cancel()
		}
	}

	result, err := NewOptimizer(NewRunner(testRegistry()), WithMaxWorkers(1)).Optimize(ctx, req)
	require.NoError(t, err)
	assert.True(t, result.Cancelled)
	assert.GreaterOrEqual(t, result.CompletedCombinations, 1)
	assert.Less(t, result.CompletedCombinations, result.TotalCombinations)
	assert.Equal(t, 40, result.TotalCombinations)
}

func TestOptimizer_CancelledBeforeStart(t *testing.T) {
	req := baseRequest()
	req.Grid = types.ParameterGrid{{Name: "buy_at", Values: []any{0, 1}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewOptimizer(NewRunner(testRegistry())).Optimize(ctx, req)
	require.Error(t, err)
	assert.True(t, engineerrors.IsKind(err, engineerrors.KindBacktest))
	assert.Contains(t, err.Error(), "cancelled")
}

func TestOptimizer_ReportsInflight(t *testing.T) {
	obs := newCountingObserver()
	req := baseRequest()
	req.Grid = types.ParameterGrid{{Name: "buy_at", Values: []any{0, 1, 2, 3}}}

	opt := NewOptimizer(NewRunner(testRegistry()), WithMaxWorkers(2), WithOptimizerObserver(obs))
	_, err := opt.Optimize(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 0, obs.inflight)
	assert.LessOrEqual(t, obs.peak, 2)
	assert.GreaterOrEqual(t, obs.peak, 1)
}

func TestRankResults_NaNLast(t *testing.T) {
	results := []RankedResult{
		{Index: 0, MetricValue: nan()},
		{Index: 1, MetricValue: 1},
		{Index: 2, MetricValue: 2},
		{Index: 3, MetricValue: 1},
	}
	RankResults(results)
	order := []int{results[0].Index, results[1].Index, results[2].Index, results[3].Index}
	assert.Equal(t, []int{2, 1, 3, 0}, order)
}
