package backtest

import (
	"encoding/json"
	"math"
	"sort"
)

const (
	DefaultPeriodsPerYear = 252
	DefaultRiskFreeRate   = 0.02
)

// MetricsConfig parameterises annualisation.
type MetricsConfig struct {
	PeriodsPerYear float64 `json:"periods_per_year"`
	RiskFreeRate   float64 `json:"risk_free_rate"`
}

// DefaultMetricsConfig returns daily bars with a 2% annual risk-free rate.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		PeriodsPerYear: DefaultPeriodsPerYear,
		RiskFreeRate:   DefaultRiskFreeRate,
	}
}

func (c MetricsConfig) withDefaults() MetricsConfig {
	if c.PeriodsPerYear <= 0 {
		c.PeriodsPerYear = DefaultPeriodsPerYear
	}
	return c
}

// PerformanceMetrics holds return, risk and trade statistics for a run.
// Returns, CAGR, volatility, drawdown, VaR and CVaR are percentages.
type PerformanceMetrics struct {
	TotalReturn  float64 `json:"total_return"`
	AnnualReturn float64 `json:"annual_return"`
	CAGR         float64 `json:"cagr"`

	Volatility  float64 `json:"volatility"`
	MaxDrawdown float64 `json:"max_drawdown"`
	VaR95       float64 `json:"var_95"`
	CVaR95      float64 `json:"cvar_95"`

	SharpeRatio  float64 `json:"sharpe_ratio"`
	SortinoRatio float64 `json:"sortino_ratio"`
	CalmarRatio  float64 `json:"calmar_ratio"`

	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`
	ProfitFactor  float64 `json:"profit_factor"`
	AvgWin        float64 `json:"avg_win"`
	AvgLoss       float64 `json:"avg_loss"`
	AvgTrade      float64 `json:"avg_trade"`

	// nil unless a benchmark of matching length was supplied
	Alpha            *float64 `json:"alpha"`
	Beta             *float64 `json:"beta"`
	InformationRatio *float64 `json:"information_ratio"`
}

const infinityLiteral = "Infinity"

// MarshalJSON encodes an infinite profit factor as "Infinity".
func (m PerformanceMetrics) MarshalJSON() ([]byte, error) {
	type alias PerformanceMetrics
	out := struct {
		alias
		ProfitFactor any `json:"profit_factor"`
	}{alias: alias(m), ProfitFactor: m.ProfitFactor}
	if math.IsInf(m.ProfitFactor, 1) {
		out.ProfitFactor = infinityLiteral
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts the encoding produced by MarshalJSON.
func (m *PerformanceMetrics) UnmarshalJSON(data []byte) error {
	type alias PerformanceMetrics
	in := struct {
		*alias
		ProfitFactor json.RawMessage `json:"profit_factor"`
	}{alias: (*alias)(m)}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if len(in.ProfitFactor) == 0 || string(in.ProfitFactor) == "null" {
		m.ProfitFactor = 0
		return nil
	}
	var literal string
	if err := json.Unmarshal(in.ProfitFactor, &literal); err == nil {
		if literal == infinityLiteral {
			m.ProfitFactor = math.Inf(1)
			return nil
		}
		return &json.UnmarshalTypeError{Value: "string " + literal, Field: "profit_factor"}
	}
	return json.Unmarshal(in.ProfitFactor, &m.ProfitFactor)
}

var metricNames = []string{
	"total_return", "annual_return", "cagr",
	"volatility", "max_drawdown", "var_95", "cvar_95",
	"sharpe_ratio", "sortino_ratio", "calmar_ratio",
	"total_trades", "winning_trades", "losing_trades",
	"win_rate", "profit_factor", "avg_win", "avg_loss", "avg_trade",
	"alpha", "beta", "information_ratio",
}

// MetricNames lists the metric names accepted by Value.
func MetricNames() []string {
	names := make([]string, len(metricNames))
	copy(names, metricNames)
	return names
}

// IsBenchmarkMetric reports whether name is only computed against a benchmark.
func IsBenchmarkMetric(name string) bool {
	return name == "alpha" || name == "beta" || name == "information_ratio"
}

// Value looks a metric up by its JSON name. Benchmark metrics that were not
// computed read as NaN. ok is false for unknown names.
func (m PerformanceMetrics) Value(name string) (value float64, ok bool) {
	switch name {
	case "total_return":
		return m.TotalReturn, true
	case "annual_return":
		return m.AnnualReturn, true
	case "cagr":
		return m.CAGR, true
	case "volatility":
		return m.Volatility, true
	case "max_drawdown":
		return m.MaxDrawdown, true
	case "var_95":
		return m.VaR95, true
	case "cvar_95":
		return m.CVaR95, true
	case "sharpe_ratio":
		return m.SharpeRatio, true
	case "sortino_ratio":
		return m.SortinoRatio, true
	case "calmar_ratio":
		return m.CalmarRatio, true
	case "total_trades":
		return float64(m.TotalTrades), true
	case "winning_trades":
		return float64(m.WinningTrades), true
	case "losing_trades":
		return float64(m.LosingTrades), true
	case "win_rate":
		return m.WinRate, true
	case "profit_factor":
		return m.ProfitFactor, true
	case "avg_win":
		return m.AvgWin, true
	case "avg_loss":
		return m.AvgLoss, true
	case "avg_trade":
		return m.AvgTrade, true
	case "alpha":
		return deref(m.Alpha), true
	case "beta":
		return deref(m.Beta), true
	case "information_ratio":
		return deref(m.InformationRatio), true
	}
	return 0, false
}

func deref(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

// CalculateMetrics derives the metrics record from an equity curve and the
// closed trades. benchmark holds per-period benchmark returns aligned with
// the equity returns; it is ignored unless its length matches.
func CalculateMetrics(equity []float64, trades []Trade, initialCapital float64, benchmark []float64, cfg MetricsConfig) PerformanceMetrics {
	var m PerformanceMetrics
	if len(equity) < 2 {
		return m
	}
	cfg = cfg.withDefaults()
	ppy := cfg.PeriodsPerYear
	dailyRF := cfg.RiskFreeRate / ppy

	returns := periodReturns(equity)

	m.TotalReturn = (equity[len(equity)-1]/equity[0] - 1) * 100
	m.AnnualReturn = mean(returns) * ppy * 100
	m.CAGR = cagr(equity, ppy)

	m.MaxDrawdown = maxDrawdown(equity)
	m.VaR95, m.CVaR95 = valueAtRisk(returns, 0.95)

	if len(returns) >= 2 {
		sd := stdDev(returns)
		m.Volatility = sd * math.Sqrt(ppy) * 100
		if sd != 0 {
			m.SharpeRatio = (mean(returns) - dailyRF) / sd * math.Sqrt(ppy)
		}
		m.SortinoRatio = sortino(returns, dailyRF, ppy)
	}
	if m.MaxDrawdown != 0 {
		m.CalmarRatio = m.CAGR / math.Abs(m.MaxDrawdown)
	}

	applyTradeStats(&m, trades)

	if benchmark != nil && len(benchmark) == len(returns) && len(returns) >= 2 {
		b := beta(returns, benchmark)
		a := (mean(returns) - b*mean(benchmark)) * ppy * 100
		ir := informationRatio(returns, benchmark, ppy)
		m.Alpha, m.Beta, m.InformationRatio = &a, &b, &ir
	}
	return m
}

func periodReturns(values []float64) []float64 {
	returns := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			continue
		}
		returns[i-1] = values[i]/values[i-1] - 1
	}
	return returns
}

func cagr(values []float64, ppy float64) float64 {
	growth := values[len(values)-1] / values[0]
	if growth <= 0 {
		return -100
	}
	return (math.Pow(growth, ppy/float64(len(values))) - 1) * 100
}

// maxDrawdown returns the deepest decline from a running peak, as a
// non-positive percentage.
func maxDrawdown(values []float64) float64 {
	peak := values[0]
	worst := 0.0
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak <= 0 {
			continue
		}
		if dd := (v - peak) / peak; dd < worst {
			worst = dd
		}
	}
	return worst * 100
}

func valueAtRisk(returns []float64, confidence float64) (varValue, cvar float64) {
	if len(returns) == 0 {
		return 0, 0
	}
	threshold := percentile(returns, (1-confidence)*100)
	var tail []float64
	for _, r := range returns {
		if r <= threshold {
			tail = append(tail, r)
		}
	}
	return threshold * 100, mean(tail) * 100
}

func sortino(returns []float64, dailyRF, ppy float64) float64 {
	var downside []float64
	for _, r := range returns {
		if r < dailyRF {
			downside = append(downside, r)
		}
	}
	if len(downside) == 0 {
		return 0
	}
	sd := stdDev(downside)
	if sd == 0 {
		return 0
	}
	return (mean(returns) - dailyRF) / sd * math.Sqrt(ppy)
}

func beta(returns, benchmark []float64) float64 {
	v := variance(benchmark)
	if v == 0 {
		return 0
	}
	return covariance(returns, benchmark) / v
}

func informationRatio(returns, benchmark []float64, ppy float64) float64 {
	excess := make([]float64, len(returns))
	for i := range returns {
		excess[i] = returns[i] - benchmark[i]
	}
	te := stdDev(excess)
	if te == 0 {
		return 0
	}
	return mean(excess) / te * math.Sqrt(ppy)
}

func applyTradeStats(m *PerformanceMetrics, trades []Trade) {
	m.TotalTrades = len(trades)
	if len(trades) == 0 {
		return
	}
	var grossProfit, grossLoss, total float64
	for _, t := range trades {
		total += t.NetPnL
		switch {
		case t.NetPnL > 0:
			m.WinningTrades++
			grossProfit += t.NetPnL
		case t.NetPnL < 0:
			m.LosingTrades++
			grossLoss += -t.NetPnL
		}
	}

	m.WinRate = float64(m.WinningTrades) / float64(len(trades)) * 100
	switch {
	case grossLoss > 0:
		m.ProfitFactor = grossProfit / grossLoss
	case grossProfit > 0:
		m.ProfitFactor = math.Inf(1)
	}
	if m.WinningTrades > 0 {
		m.AvgWin = grossProfit / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AvgLoss = -grossLoss / float64(m.LosingTrades)
	}
	m.AvgTrade = total / float64(len(trades))
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// variance is the population variance.
func variance(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	mu := mean(xs)
	sum := 0.0
	for _, x := range xs {
		d := x - mu
		sum += d * d
	}
	return sum / float64(len(xs))
}

func stdDev(xs []float64) float64 {
	return math.Sqrt(variance(xs))
}

func covariance(xs, ys []float64) float64 {
	mx, my := mean(xs), mean(ys)
	sum := 0.0
	for i := range xs {
		sum += (xs[i] - mx) * (ys[i] - my)
	}
	return sum / float64(len(xs))
}

// percentile uses linear interpolation between closest ranks.
func percentile(xs []float64, p float64) float64 {
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(rank-float64(lo))
}
