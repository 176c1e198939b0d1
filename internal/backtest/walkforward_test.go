package backtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	engineerrors "github.com/ducminhle1904/strategy-backtester/internal/errors"
	"github.com/ducminhle1904/strategy-backtester/pkg/types"
)

func TestWalkForwardWindows(t *testing.T) {
	windows := walkForwardWindows(500, DefaultTrainBars, DefaultTestBars, DefaultTestBars)
	require.Len(t, windows, 3)
	assert.Equal(t, window{trainStart: 0, trainEnd: 252, testEnd: 315}, windows[0])
	assert.Equal(t, window{trainStart: 126, trainEnd: 378, testEnd: 441}, windows[2])

	assert.Empty(t, walkForwardWindows(300, 252, 63, 63))
	assert.Len(t, walkForwardWindows(40, 20, 10, 5), 3)
}

func walkForwardRequest(bars []types.OHLCV) WalkForwardRequest {
	req := baseRequest()
	req.Bars = bars
	req.Grid = types.ParameterGrid{
		{Name: "buy_at", Values: []any{0, 1}},
		{Name: "sell_at", Values: []any{5}},
	}
	return WalkForwardRequest{OptimizeRequest: req, TrainBars: 20, TestBars: 10}
}

func TestWalkForward_RunsEveryWindow(t *testing.T) {
	bars := generateWaveData(40)
	req := walkForwardRequest(bars)
	req.Benchmark = closeReturns(bars)

	result, err := NewOptimizer(NewRunner(testRegistry())).WalkForward(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, result.Windows, 2)
	assert.Equal(t, 2, result.CompletedWindows)
	assert.Equal(t, StatusCompleted, result.Status)

	first := result.Windows[0]
	assert.Equal(t, bars[0].Timestamp, first.TrainStart)
	assert.Equal(t, bars[19].Timestamp, first.TrainEnd)
	assert.Equal(t, bars[20].Timestamp, first.TestStart)
	assert.Equal(t, bars[29].Timestamp, first.TestEnd)
	assert.Equal(t, bars[30].Timestamp, result.Windows[1].TestStart)

	for _, w := range result.Windows {
		assert.True(t, w.Succeeded())
		assert.NotEmpty(t, w.BestParameters)
		require.NotNil(t, w.Result)
		assert.Len(t, w.Result.EquityCurve, 10)
	}
	avg := (result.Windows[0].OutOfSample + result.Windows[1].OutOfSample) / 2
	assert.InDelta(t, avg, result.AvgOutOfSample, 1e-12)
}

func TestWalkForward_ReportsProgressPerWindow(t *testing.T) {
	req := walkForwardRequest(generateWaveData(40))
	var progress []Progress
	req.OnProgress = func(p Progress) { progress = append(progress, p) }

	_, err := NewOptimizer(NewRunner(testRegistry())).WalkForward(context.Background(), req)
	require.NoError(t, err)

	// two windows of two combinations each
	require.Len(t, progress, 4)
	assert.Equal(t, []int{1, 2, 1, 2}, []int{progress[0].Done(), progress[1].Done(), progress[2].Done(), progress[3].Done()})
	assert.Equal(t, 2, progress[3].Total)
}

func TestWalkForward_Validation(t *testing.T) {
	opt := NewOptimizer(NewRunner(testRegistry()))

	req := walkForwardRequest(generateWaveData(25))
	_, err := opt.WalkForward(context.Background(), req)
	require.Error(t, err)
	assert.True(t, engineerrors.IsKind(err, engineerrors.KindConfiguration))
	assert.Contains(t, err.Error(), "not enough")

	req = walkForwardRequest(generateWaveData(40))
	req.TestBars = 1
	_, err = opt.WalkForward(context.Background(), req)
	require.Error(t, err)
	assert.True(t, engineerrors.IsKind(err, engineerrors.KindConfiguration))
}

func TestWalkForward_FailedWindows(t *testing.T) {
	req := walkForwardRequest(generateWaveData(40))
	req.Grid = types.ParameterGrid{{Name: "fail", Values: []any{true}}}

	result, err := NewOptimizer(NewRunner(testRegistry())).WalkForward(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, result.Status)
	assert.Zero(t, result.CompletedWindows)
	for _, w := range result.Windows {
		assert.False(t, w.Succeeded())
		assert.Contains(t, w.Error, "no successful optimization runs")
	}
}

func TestSliceBenchmark(t *testing.T) {
	returns := []float64{0, 1, 2, 3, 4}
	assert.Equal(t, []float64{1, 2}, sliceBenchmark(returns, 1, 4))
	assert.Nil(t, sliceBenchmark(nil, 0, 3))
}
