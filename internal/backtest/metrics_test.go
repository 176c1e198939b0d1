package backtest

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tradesWithPnL(pnls ...float64) []Trade {
	trades := make([]Trade, len(pnls))
	for i, p := range pnls {
		trades[i] = Trade{GrossPnL: p, NetPnL: p, Quantity: 1}
	}
	return trades
}

// TestCalculateMetrics_ConstantPrice tests that a flat curve has no risk
func TestCalculateMetrics_ConstantPrice(t *testing.T) {
	for _, n := range []int{2, 3, 50} {
		equity := make([]float64, n)
		for i := range equity {
			equity[i] = 10000
		}
		m := CalculateMetrics(equity, nil, 10000, nil, DefaultMetricsConfig())
		assert.Equal(t, 0.0, m.MaxDrawdown)
		assert.Equal(t, 0.0, m.Volatility)
		assert.Equal(t, 0.0, m.SharpeRatio)
		assert.Equal(t, 0.0, m.TotalReturn)
		assert.Equal(t, 0.0, m.CalmarRatio)
	}
}

// TestCalculateMetrics_TotalReturnSign tests the sign of total return
func TestCalculateMetrics_TotalReturnSign(t *testing.T) {
	tests := []struct {
		name   string
		equity []float64
		sign   float64
	}{
		{"gain", []float64{100, 90, 130}, 1},
		{"loss", []float64{100, 120, 80}, -1},
		{"flat", []float64{100, 150, 100}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := CalculateMetrics(tt.equity, nil, 100, nil, DefaultMetricsConfig())
			switch {
			case tt.sign > 0:
				assert.Positive(t, m.TotalReturn)
			case tt.sign < 0:
				assert.Negative(t, m.TotalReturn)
			default:
				assert.Zero(t, m.TotalReturn)
			}
		})
	}
}

func TestCalculateMetrics_Definitions(t *testing.T) {
	equity := []float64{100, 120, 90, 130}
	cfg := DefaultMetricsConfig()
	m := CalculateMetrics(equity, nil, 100, nil, cfg)

	returns := []float64{0.2, -0.25, 130.0/90 - 1}
	meanR := (returns[0] + returns[1] + returns[2]) / 3

	assert.InDelta(t, 30.0, m.TotalReturn, 1e-9)
	assert.InDelta(t, meanR*252*100, m.AnnualReturn, 1e-9)
	assert.InDelta(t, (math.Pow(1.3, 252.0/4)-1)*100, m.CAGR, 1e-6*math.Abs(m.CAGR))
	assert.InDelta(t, -25.0, m.MaxDrawdown, 1e-9)
	assert.InDelta(t, stdDev(returns)*math.Sqrt(252)*100, m.Volatility, 1e-9)
	assert.InDelta(t, (meanR-0.02/252)/stdDev(returns)*math.Sqrt(252), m.SharpeRatio, 1e-9)
	assert.InDelta(t, m.CAGR/25.0, m.CalmarRatio, 1e-6*math.Abs(m.CalmarRatio))

	// a single downside return has zero deviation
	assert.Equal(t, 0.0, m.SortinoRatio)
	assert.Nil(t, m.Alpha)
	assert.Nil(t, m.Beta)
	assert.Nil(t, m.InformationRatio)
}

func TestCalculateMetrics_EmptyState(t *testing.T) {
	for _, equity := range [][]float64{nil, {10000}} {
		m := CalculateMetrics(equity, tradesWithPnL(5), 10000, []float64{0.1}, DefaultMetricsConfig())
		assert.Equal(t, PerformanceMetrics{}, m)
	}
}

func TestValueAtRisk(t *testing.T) {
	returns := []float64{0.02, -0.01, 0, 0.01, -0.05}
	v, cv := valueAtRisk(returns, 0.95)
	// rank 0.2 between -0.05 and -0.01
	assert.InDelta(t, -4.2, v, 1e-9)
	assert.InDelta(t, -5.0, cv, 1e-9)

	assert.InDelta(t, 0.01, percentile(returns, 75), 1e-12)
	assert.InDelta(t, 0.0, percentile(returns, 50), 1e-12)
}

// TestTradeStats_ProfitFactor tests the worked profit factor example
func TestTradeStats_ProfitFactor(t *testing.T) {
	m := CalculateMetrics([]float64{100, 100}, tradesWithPnL(10, 5, -20), 100, nil, DefaultMetricsConfig())

	assert.InDelta(t, 0.75, m.ProfitFactor, 1e-12)
	assert.InDelta(t, 200.0/3, m.WinRate, 1e-9)
	assert.Equal(t, 7.5, m.AvgWin)
	assert.Equal(t, -20.0, m.AvgLoss)
	assert.InDelta(t, -5.0/3, m.AvgTrade, 1e-12)
	assert.Equal(t, 3, m.TotalTrades)
	assert.Equal(t, 2, m.WinningTrades)
	assert.Equal(t, 1, m.LosingTrades)
}

func TestTradeStats_EmptyAndNoLosses(t *testing.T) {
	m := CalculateMetrics([]float64{100, 101}, nil, 100, nil, DefaultMetricsConfig())
	assert.Equal(t, 0.0, m.WinRate)
	assert.Equal(t, 0.0, m.ProfitFactor)
	assert.Equal(t, 0.0, m.AvgWin)
	assert.Equal(t, 0.0, m.AvgLoss)
	assert.Equal(t, 0.0, m.AvgTrade)

	m = CalculateMetrics([]float64{100, 101}, tradesWithPnL(3, 0), 100, nil, DefaultMetricsConfig())
	assert.True(t, math.IsInf(m.ProfitFactor, 1))
	assert.Equal(t, 50.0, m.WinRate)

	m = CalculateMetrics([]float64{100, 101}, tradesWithPnL(0), 100, nil, DefaultMetricsConfig())
	assert.Equal(t, 0.0, m.ProfitFactor)
}

func TestCalculateMetrics_Benchmark(t *testing.T) {
	benchmark := []float64{0.01, -0.02, 0.03}
	equity := []float64{100}
	for _, b := range benchmark {
		equity = append(equity, equity[len(equity)-1]*(1+2*b))
	}

	m := CalculateMetrics(equity, nil, 100, benchmark, DefaultMetricsConfig())
	require.NotNil(t, m.Beta)
	require.NotNil(t, m.Alpha)
	require.NotNil(t, m.InformationRatio)
	assert.InDelta(t, 2.0, *m.Beta, 1e-9)
	assert.InDelta(t, 0.0, *m.Alpha, 1e-9)

	// mismatched length is ignored
	m = CalculateMetrics(equity, nil, 100, benchmark[:2], DefaultMetricsConfig())
	assert.Nil(t, m.Beta)

	// constant benchmark has zero variance
	m = CalculateMetrics(equity, nil, 100, []float64{0.25, 0.25, 0.25}, DefaultMetricsConfig())
	require.NotNil(t, m.Beta)
	assert.Equal(t, 0.0, *m.Beta)
}

func TestPerformanceMetrics_Value(t *testing.T) {
	m := PerformanceMetrics{SharpeRatio: 1.5, TotalTrades: 4}

	v, ok := m.Value("sharpe_ratio")
	assert.True(t, ok)
	assert.Equal(t, 1.5, v)

	v, ok = m.Value("total_trades")
	assert.True(t, ok)
	assert.Equal(t, 4.0, v)

	v, ok = m.Value("alpha")
	assert.True(t, ok)
	assert.True(t, math.IsNaN(v))

	_, ok = m.Value("omega")
	assert.False(t, ok)

	for _, name := range MetricNames() {
		_, ok := m.Value(name)
		assert.True(t, ok, name)
	}
}

func TestPerformanceMetrics_JSONInfinity(t *testing.T) {
	beta := 1.2
	m := PerformanceMetrics{ProfitFactor: math.Inf(1), WinRate: 100, Beta: &beta}

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"profit_factor":"Infinity"`)
	assert.Contains(t, string(data), `"alpha":null`)

	var decoded PerformanceMetrics
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, math.IsInf(decoded.ProfitFactor, 1))
	assert.Equal(t, 100.0, decoded.WinRate)
	require.NotNil(t, decoded.Beta)
	assert.Equal(t, 1.2, *decoded.Beta)

	data, err = json.Marshal(PerformanceMetrics{ProfitFactor: 0.75})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"profit_factor":0.75`)
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, 0.75, decoded.ProfitFactor)
}
