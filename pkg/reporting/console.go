package reporting

import (
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ducminhle1904/strategy-backtester/internal/backtest"
	"github.com/ducminhle1904/strategy-backtester/pkg/types"
)

// DefaultConsoleReporter renders go-pretty tables to a writer
type DefaultConsoleReporter struct {
	out io.Writer
}

// NewDefaultConsoleReporter creates a console reporter writing to w, or
// stdout when w is nil.
func NewDefaultConsoleReporter(w io.Writer) *DefaultConsoleReporter {
	if w == nil {
		w = os.Stdout
	}
	return &DefaultConsoleReporter{out: w}
}

func (r *DefaultConsoleReporter) newTable(title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle(title)
	t.SetStyle(table.StyleRounded)
	return t
}

// OutputResult prints one backtest result
func (r *DefaultConsoleReporter) OutputResult(result *backtest.BacktestResult) {
	t := r.newTable("BACKTEST RESULTS")
	t.AppendRows([]table.Row{
		{"Strategy", result.Strategy},
		{"Symbol", result.Symbol},
		{"Parameters", FormatParameters(result.Parameters)},
		{"Status", string(result.Status)},
	})
	if !result.Completed() {
		t.AppendRow(table.Row{"Error", result.Error})
		t.Render()
		return
	}

	m := result.Metrics
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Initial Capital", fmt.Sprintf("$%.2f", result.InitialCapital)},
		{"Final Capital", fmt.Sprintf("$%.2f", result.FinalCapital)},
		{"Total Return", fmt.Sprintf("%.2f%%", m.TotalReturn)},
		{"Annual Return", fmt.Sprintf("%.2f%%", m.AnnualReturn)},
		{"CAGR", fmt.Sprintf("%.2f%%", m.CAGR)},
		{"Volatility", fmt.Sprintf("%.2f%%", m.Volatility)},
		{"Max Drawdown", fmt.Sprintf("%.2f%%", m.MaxDrawdown)},
		{"VaR / CVaR 95", fmt.Sprintf("%.2f%% / %.2f%%", m.VaR95, m.CVaR95)},
		{"Sharpe Ratio", formatFloat(m.SharpeRatio)},
		{"Sortino Ratio", formatFloat(m.SortinoRatio)},
		{"Calmar Ratio", formatFloat(m.CalmarRatio)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Total Trades", m.TotalTrades},
		{"Winning / Losing", fmt.Sprintf("%d / %d", m.WinningTrades, m.LosingTrades)},
		{"Win Rate", fmt.Sprintf("%.1f%%", m.WinRate)},
		{"Profit Factor", formatFloat(m.ProfitFactor)},
		{"Avg Win / Loss", fmt.Sprintf("$%.2f / $%.2f", m.AvgWin, m.AvgLoss)},
		{"Orders filled / rejected", fmt.Sprintf("%d / %d", result.Orders.Filled, result.Orders.Rejected)},
	})
	if m.Beta != nil {
		t.AppendSeparator()
		t.AppendRows([]table.Row{
			{"Alpha", formatPtr(m.Alpha)},
			{"Beta", formatPtr(m.Beta)},
			{"Information Ratio", formatPtr(m.InformationRatio)},
		})
	}
	if result.OpenPosition != nil {
		t.AppendRow(table.Row{"Open Position", fmt.Sprintf("%.4f @ %.4f", result.OpenPosition.Quantity, result.OpenPosition.EntryPrice)})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 18, Align: text.AlignLeft},
		{Number: 2, WidthMin: 25, Align: text.AlignRight},
	})
	t.Render()
}

// OutputOptimization prints the top ranked combinations and a failure
// summary
func (r *DefaultConsoleReporter) OutputOptimization(result *backtest.OptimizationResult, top int) {
	if top <= 0 {
		top = 10
	}
	t := r.newTable(fmt.Sprintf("OPTIMIZATION: %s by %s", result.Strategy, result.Metric))
	t.AppendHeader(table.Row{"#", "Parameters", result.Metric, "Total Return", "Max DD", "Trades", "Final Capital"})
	for i, rr := range result.Results {
		if i >= top {
			break
		}
		t.AppendRow(table.Row{
			rr.Rank,
			FormatParameters(rr.Parameters),
			formatFloat(rr.MetricValue),
			fmt.Sprintf("%.2f%%", rr.Metrics.TotalReturn),
			fmt.Sprintf("%.2f%%", rr.Metrics.MaxDrawdown),
			rr.Metrics.TotalTrades,
			fmt.Sprintf("$%.2f", rr.FinalCapital),
		})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d/%d completed", result.CompletedCombinations, result.TotalCombinations),
		"", "", "", "", result.Duration.Round(time.Millisecond).String()})
	t.Render()

	if len(result.FailuresByKind) > 0 {
		ft := r.newTable("FAILED COMBINATIONS")
		ft.AppendHeader(table.Row{"Kind", "Count"})
		kinds := make([]string, 0, len(result.FailuresByKind))
		for k := range result.FailuresByKind {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			ft.AppendRow(table.Row{k, result.FailuresByKind[k]})
		}
		ft.Render()
	}
	if result.Cancelled {
		fmt.Fprintln(r.out, "optimization cancelled, ranking covers finished combinations only")
	}
}

// OutputWalkForward prints one row per window
func (r *DefaultConsoleReporter) OutputWalkForward(result *backtest.WalkForwardResult) {
	t := r.newTable(fmt.Sprintf("WALK-FORWARD: %s by %s", result.Strategy, result.Metric))
	t.AppendHeader(table.Row{"Window", "Train", "Test", "Best Parameters", "In-Sample", "Out-of-Sample"})
	for _, w := range result.Windows {
		row := table.Row{
			w.Index + 1,
			w.TrainStart.Format("2006-01-02") + " → " + w.TrainEnd.Format("2006-01-02"),
			w.TestStart.Format("2006-01-02") + " → " + w.TestEnd.Format("2006-01-02"),
		}
		if w.Succeeded() {
			row = append(row, FormatParameters(w.BestParameters), formatFloat(w.InSample), formatFloat(w.OutOfSample))
		} else {
			row = append(row, "failed: "+truncate(w.Error, 40), "", "")
		}
		t.AppendRow(row)
	}
	t.AppendFooter(table.Row{"", "", "", fmt.Sprintf("%d/%d windows", result.CompletedWindows, len(result.Windows)),
		formatFloat(result.AvgInSample), formatFloat(result.AvgOutOfSample)})
	t.Render()

	if result.CompletedWindows > 0 {
		degradation := (result.AvgInSample - result.AvgOutOfSample) / math.Max(0.01, math.Abs(result.AvgInSample)) * 100
		fmt.Fprintf(r.out, "Out-of-sample degradation: %.1f%%\n", degradation)
	}
}

// FormatParameters renders a parameter set as sorted key=value pairs.
func FormatParameters(ps types.ParameterSet) string {
	parts := make([]string, 0, len(ps))
	for _, k := range ps.Keys() {
		parts = append(parts, fmt.Sprintf("%s=%v", k, ps[k]))
	}
	return strings.Join(parts, " ")
}

func formatFloat(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "∞"
	case math.IsNaN(v):
		return "n/a"
	}
	return fmt.Sprintf("%.4f", v)
}

func formatPtr(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return formatFloat(*v)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
