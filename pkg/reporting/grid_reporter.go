package reporting

import (
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/ducminhle1904/strategy-backtester/internal/backtest"
	"github.com/ducminhle1904/strategy-backtester/pkg/types"
)

// GridReporter writes optimization results as a ranking workbook with a
// heat map over the first two grid dimensions.
type GridReporter struct {
	paths *DefaultPathManager
}

// NewGridReporter creates a new grid reporter
func NewGridReporter() *GridReporter {
	return &GridReporter{paths: NewDefaultPathManager()}
}

// WriteOptimizationXLSX writes the Ranking and Failures sheets, plus a Heat
// Map when the grid has at least two dimensions. grid lists the dimension
// names in declared order.
func (r *GridReporter) WriteOptimizationXLSX(result *backtest.OptimizationResult, grid []string, path string) error {
	if err := r.paths.EnsureDirectoryExists(path); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	fx := excelize.NewFile()
	defer fx.Close()

	if err := fx.SetSheetName(fx.GetSheetName(0), RankingSheet); err != nil {
		return err
	}
	if _, err := fx.NewSheet(FailuresSheet); err != nil {
		return err
	}
	if len(grid) >= 2 {
		if _, err := fx.NewSheet(HeatMapSheet); err != nil {
			return err
		}
	}

	styles, err := createExcelStyles(fx)
	if err != nil {
		return err
	}
	if err := r.writeRankingSheet(fx, result, grid, styles); err != nil {
		return err
	}
	if err := r.writeFailuresSheet(fx, result, grid, styles); err != nil {
		return err
	}
	if len(grid) >= 2 {
		if err := r.writeHeatMapSheet(fx, result, grid[0], grid[1], styles); err != nil {
			return err
		}
	}
	return fx.SaveAs(path)
}

func (r *GridReporter) writeRankingSheet(fx *excelize.File, result *backtest.OptimizationResult, grid []string, styles ExcelStyles) error {
	headers := append([]string{"Rank"}, grid...)
	headers = append(headers, result.Metric, "Total Return", "Max Drawdown", "Sharpe", "Trades", "Final Capital")
	if err := writeHeader(fx, RankingSheet, headers, styles); err != nil {
		return err
	}

	for i, rr := range result.Results {
		row := i + 2
		values := []any{rr.Rank}
		for _, name := range grid {
			values = append(values, rr.Parameters[name])
		}
		values = append(values,
			excelNumber(rr.MetricValue),
			rr.Metrics.TotalReturn/100,
			rr.Metrics.MaxDrawdown/100,
			excelNumber(rr.Metrics.SharpeRatio),
			rr.Metrics.TotalTrades,
			rr.FinalCapital)
		if err := writeRow(fx, RankingSheet, row, values); err != nil {
			return err
		}

		col := len(grid) + 2
		cellStyles := []int{
			styles.NumberStyle,
			signedPercent(styles, rr.Metrics.TotalReturn),
			styles.RedPercentStyle,
			styles.NumberStyle,
			styles.BaseStyle,
			styles.CurrencyStyle,
		}
		for j, style := range cellStyles {
			if err := styleCell(fx, RankingSheet, col+j, row, style); err != nil {
				return err
			}
		}
	}

	last, err := excelize.ColumnNumberToName(len(headers))
	if err != nil {
		return err
	}
	fx.SetColWidth(RankingSheet, "A", last, 14)
	return fx.SetPanes(RankingSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

func (r *GridReporter) writeFailuresSheet(fx *excelize.File, result *backtest.OptimizationResult, grid []string, styles ExcelStyles) error {
	headers := append([]string{"Index"}, grid...)
	headers = append(headers, "Error")
	if err := writeHeader(fx, FailuresSheet, headers, styles); err != nil {
		return err
	}
	for i, f := range result.Failures {
		values := []any{f.Index}
		for _, name := range grid {
			values = append(values, f.Parameters[name])
		}
		values = append(values, f.Error)
		if err := writeRow(fx, FailuresSheet, i+2, values); err != nil {
			return err
		}
	}

	errCol, err := excelize.ColumnNumberToName(len(headers))
	if err != nil {
		return err
	}
	return fx.SetColWidth(FailuresSheet, errCol, errCol, 60)
}

// writeHeatMapSheet lays out the best metric value per (x, y) pair, taking
// the maximum over the remaining dimensions.
func (r *GridReporter) writeHeatMapSheet(fx *excelize.File, result *backtest.OptimizationResult, xName, yName string, styles ExcelStyles) error {
	xs := distinctValues(result.Results, xName)
	ys := distinctValues(result.Results, yName)

	best := make(map[[2]string]float64)
	for _, rr := range result.Results {
		key := [2]string{fmt.Sprint(rr.Parameters[xName]), fmt.Sprint(rr.Parameters[yName])}
		if v, ok := best[key]; !ok || rr.MetricValue > v {
			best[key] = rr.MetricValue
		}
	}

	corner := fmt.Sprintf("%s \\ %s", yName, xName)
	header := append([]string{corner}, xs...)
	if err := writeHeader(fx, HeatMapSheet, header, styles); err != nil {
		return err
	}
	for i, y := range ys {
		row := i + 2
		values := []any{y}
		for _, x := range xs {
			if v, ok := best[[2]string{x, y}]; ok {
				values = append(values, excelNumber(v))
			} else {
				values = append(values, "")
			}
		}
		if err := writeRow(fx, HeatMapSheet, row, values); err != nil {
			return err
		}
		if err := styleCell(fx, HeatMapSheet, 1, row, styles.SummaryStyle); err != nil {
			return err
		}
	}
	if len(xs) == 0 || len(ys) == 0 {
		return nil
	}

	first, _ := excelize.CoordinatesToCellName(2, 2)
	last, _ := excelize.CoordinatesToCellName(len(xs)+1, len(ys)+1)
	return fx.SetConditionalFormat(HeatMapSheet, first+":"+last, []excelize.ConditionalFormatOptions{{
		Type:     "3_color_scale",
		Criteria: "=",
		MinType:  "min",
		MidType:  "percentile",
		MidValue: "50",
		MaxType:  "max",
		MinColor: "#F8696B",
		MidColor: "#FFEB84",
		MaxColor: "#63BE7B",
	}})
}

// distinctValues returns the values of name across results in sorted
// order, numbers before strings.
func distinctValues(results []backtest.RankedResult, name string) []string {
	seen := make(map[string]float64)
	numeric := make(map[string]bool)
	for _, rr := range results {
		v := rr.Parameters[name]
		s := fmt.Sprint(v)
		if _, ok := seen[s]; ok {
			continue
		}
		f, err := types.ParameterSet{name: v}.Float(name, 0)
		seen[s] = f
		numeric[s] = err == nil
	}

	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if numeric[a] != numeric[b] {
			return numeric[a]
		}
		if numeric[a] && seen[a] != seen[b] {
			return seen[a] < seen[b]
		}
		return a < b
	})
	return out
}

// WriteOptimizationXLSX writes an optimization workbook with the default reporter.
func WriteOptimizationXLSX(result *backtest.OptimizationResult, grid []string, path string) error {
	return NewGridReporter().WriteOptimizationXLSX(result, grid, path)
}
