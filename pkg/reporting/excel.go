package reporting

import (
	"fmt"
	"math"

	"github.com/xuri/excelize/v2"

	"github.com/ducminhle1904/strategy-backtester/internal/backtest"
)

// Sheet names used by the workbooks.
const (
	SummarySheet  = "Summary"
	TradesSheet   = "Trades"
	EquitySheet   = "Equity"
	RankingSheet  = "Ranking"
	FailuresSheet = "Failures"
	HeatMapSheet  = "Heat Map"
)

// DefaultExcelReporter implements Excel output functionality
type DefaultExcelReporter struct {
	paths *DefaultPathManager
}

// NewDefaultExcelReporter creates a new Excel reporter
func NewDefaultExcelReporter() *DefaultExcelReporter {
	return &DefaultExcelReporter{paths: NewDefaultPathManager()}
}

// WriteResultXLSX writes a workbook with summary, trades and equity sheets.
func (r *DefaultExcelReporter) WriteResultXLSX(result *backtest.BacktestResult, path string) error {
	if err := r.paths.EnsureDirectoryExists(path); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	fx := excelize.NewFile()
	defer fx.Close()

	// Replace default sheet and create additional sheets
	if err := fx.SetSheetName(fx.GetSheetName(0), SummarySheet); err != nil {
		return err
	}
	for _, name := range []string{TradesSheet, EquitySheet} {
		if _, err := fx.NewSheet(name); err != nil {
			return err
		}
	}

	styles, err := createExcelStyles(fx)
	if err != nil {
		return err
	}
	if err := r.writeSummarySheet(fx, result, styles); err != nil {
		return err
	}
	if err := r.writeTradesSheet(fx, result, styles); err != nil {
		return err
	}
	if err := r.writeEquitySheet(fx, result, styles); err != nil {
		return err
	}
	return fx.SaveAs(path)
}

func (r *DefaultExcelReporter) writeSummarySheet(fx *excelize.File, result *backtest.BacktestResult, styles ExcelStyles) error {
	m := result.Metrics
	type line struct {
		label string
		value any
		style int
	}
	pct := func(v float64) float64 { return v / 100 }
	lines := []line{
		{"Strategy", result.Strategy, styles.BaseStyle},
		{"Symbol", result.Symbol, styles.BaseStyle},
		{"Parameters", FormatParameters(result.Parameters), styles.BaseStyle},
		{"Fingerprint", result.Fingerprint, styles.BaseStyle},
		{"Status", string(result.Status), styles.BaseStyle},
		{"Initial Capital", result.InitialCapital, styles.CurrencyStyle},
		{"Final Capital", result.FinalCapital, styles.CurrencyStyle},
		{"Total Return", pct(m.TotalReturn), signedPercent(styles, m.TotalReturn)},
		{"Annual Return", pct(m.AnnualReturn), signedPercent(styles, m.AnnualReturn)},
		{"CAGR", pct(m.CAGR), signedPercent(styles, m.CAGR)},
		{"Volatility", pct(m.Volatility), styles.PercentStyle},
		{"Max Drawdown", pct(m.MaxDrawdown), styles.RedPercentStyle},
		{"VaR 95", pct(m.VaR95), styles.PercentStyle},
		{"CVaR 95", pct(m.CVaR95), styles.PercentStyle},
		{"Sharpe Ratio", excelNumber(m.SharpeRatio), styles.NumberStyle},
		{"Sortino Ratio", excelNumber(m.SortinoRatio), styles.NumberStyle},
		{"Calmar Ratio", excelNumber(m.CalmarRatio), styles.NumberStyle},
		{"Total Trades", m.TotalTrades, styles.BaseStyle},
		{"Win Rate", pct(m.WinRate), styles.PercentStyle},
		{"Profit Factor", excelNumber(m.ProfitFactor), styles.NumberStyle},
		{"Avg Win", m.AvgWin, styles.CurrencyStyle},
		{"Avg Loss", m.AvgLoss, styles.CurrencyStyle},
		{"Avg Trade", m.AvgTrade, styles.CurrencyStyle},
	}
	if m.Beta != nil {
		lines = append(lines,
			line{"Alpha", excelNumber(*m.Alpha), styles.NumberStyle},
			line{"Beta", excelNumber(*m.Beta), styles.NumberStyle},
			line{"Information Ratio", excelPtr(m.InformationRatio), styles.NumberStyle})
	}
	if result.Error != "" {
		lines = append(lines, line{"Error", result.Error, styles.BaseStyle})
	}

	if err := writeHeader(fx, SummarySheet, []string{"Metric", "Value"}, styles); err != nil {
		return err
	}
	for i, l := range lines {
		row := i + 2
		if err := writeRow(fx, SummarySheet, row, []any{l.label, l.value}); err != nil {
			return err
		}
		if err := styleCell(fx, SummarySheet, 1, row, styles.SummaryStyle); err != nil {
			return err
		}
		if err := styleCell(fx, SummarySheet, 2, row, l.style); err != nil {
			return err
		}
	}
	fx.SetColWidth(SummarySheet, "A", "A", 20)
	fx.SetColWidth(SummarySheet, "B", "B", 40)
	return nil
}

func (r *DefaultExcelReporter) writeTradesSheet(fx *excelize.File, result *backtest.BacktestResult, styles ExcelStyles) error {
	headers := []string{"Trade", "Side", "Entry Time", "Exit Time", "Entry Price", "Exit Price",
		"Quantity", "Gross PnL", "Commission", "Net PnL", "Return"}
	if err := writeHeader(fx, TradesSheet, headers, styles); err != nil {
		return err
	}
	colStyles := []int{styles.BaseStyle, styles.BaseStyle, styles.BaseStyle, styles.BaseStyle,
		styles.NumberStyle, styles.NumberStyle, styles.NumberStyle,
		styles.CurrencyStyle, styles.CurrencyStyle, styles.CurrencyStyle, styles.PercentStyle}

	for i, t := range result.Trades {
		row := i + 2
		ret := TradeReturn(t)
		values := []any{i + 1, string(t.Side), t.EntryTime.Format(timeLayout), t.ExitTime.Format(timeLayout),
			t.EntryPrice, t.ExitPrice, t.Quantity, t.GrossPnL, t.Commission, t.NetPnL, ret}
		if err := writeRow(fx, TradesSheet, row, values); err != nil {
			return err
		}
		for col, style := range colStyles {
			if col == len(colStyles)-1 {
				style = signedPercent(styles, ret)
			}
			if err := styleCell(fx, TradesSheet, col+1, row, style); err != nil {
				return err
			}
		}
	}
	fx.SetColWidth(TradesSheet, "C", "D", 20)
	fx.SetColWidth(TradesSheet, "E", "K", 14)
	return fx.SetPanes(TradesSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

func (r *DefaultExcelReporter) writeEquitySheet(fx *excelize.File, result *backtest.BacktestResult, styles ExcelStyles) error {
	if err := writeHeader(fx, EquitySheet, []string{"Timestamp", "Equity", "Drawdown"}, styles); err != nil {
		return err
	}
	peak := 0.0
	for i, p := range result.EquityCurve {
		peak = math.Max(peak, p.Value)
		dd := 0.0
		if peak > 0 {
			dd = (peak - p.Value) / peak
		}
		row := i + 2
		if err := writeRow(fx, EquitySheet, row, []any{p.Timestamp.Format(timeLayout), p.Value, dd}); err != nil {
			return err
		}
		if err := styleCell(fx, EquitySheet, 2, row, styles.CurrencyStyle); err != nil {
			return err
		}
		if err := styleCell(fx, EquitySheet, 3, row, styles.PercentStyle); err != nil {
			return err
		}
	}
	fx.SetColWidth(EquitySheet, "A", "A", 20)
	fx.SetColWidth(EquitySheet, "B", "C", 14)
	return nil
}

// createExcelStyles creates all Excel styles
func createExcelStyles(fx *excelize.File) (ExcelStyles, error) {
	var styles ExcelStyles
	var err error

	thin := func(color string) []excelize.Border {
		return []excelize.Border{
			{Type: "left", Color: color, Style: 1},
			{Type: "right", Color: color, Style: 1},
			{Type: "bottom", Color: color, Style: 1},
		}
	}

	// Header style - Dark slate background with white text
	styles.HeaderStyle, err = fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold:   true,
			Size:   11,
			Color:  "FFFFFF",
			Family: "Calibri",
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"2F4F4F"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
		Border: append(thin("000000"), excelize.Border{Type: "top", Color: "000000", Style: 1}),
	})
	if err != nil {
		return styles, err
	}

	// Currency style (right aligned, $ format)
	styles.CurrencyStyle, err = fx.NewStyle(&excelize.Style{
		NumFmt:    7,
		Alignment: &excelize.Alignment{Horizontal: "right"},
		Border:    thin("E0E0E0"),
	})
	if err != nil {
		return styles, err
	}

	percentFmt := "0.00%"
	styles.PercentStyle, err = fx.NewStyle(&excelize.Style{
		CustomNumFmt: &percentFmt,
		Alignment:    &excelize.Alignment{Horizontal: "right"},
		Border:       thin("E0E0E0"),
	})
	if err != nil {
		return styles, err
	}

	styles.RedPercentStyle, err = fx.NewStyle(&excelize.Style{
		CustomNumFmt: &percentFmt,
		Font:         &excelize.Font{Color: "FF0000"},
		Alignment:    &excelize.Alignment{Horizontal: "right"},
		Border:       thin("E0E0E0"),
	})
	if err != nil {
		return styles, err
	}

	styles.GreenPercentStyle, err = fx.NewStyle(&excelize.Style{
		CustomNumFmt: &percentFmt,
		Font:         &excelize.Font{Color: "008000"},
		Alignment:    &excelize.Alignment{Horizontal: "right"},
		Border:       thin("E0E0E0"),
	})
	if err != nil {
		return styles, err
	}

	numberFmt := "0.0000"
	styles.NumberStyle, err = fx.NewStyle(&excelize.Style{
		CustomNumFmt: &numberFmt,
		Alignment:    &excelize.Alignment{Horizontal: "right"},
		Border:       thin("E0E0E0"),
	})
	if err != nil {
		return styles, err
	}

	styles.BaseStyle, err = fx.NewStyle(&excelize.Style{Border: thin("E0E0E0")})
	if err != nil {
		return styles, err
	}

	// Summary labels - bold on light blue
	styles.SummaryStyle, err = fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"E6F3FF"},
			Pattern: 1,
		},
		Border: thin("E0E0E0"),
	})
	return styles, err
}

func signedPercent(styles ExcelStyles, v float64) int {
	if v < 0 {
		return styles.RedPercentStyle
	}
	return styles.GreenPercentStyle
}

func writeHeader(fx *excelize.File, sheet string, headers []string, styles ExcelStyles) error {
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := fx.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
		if err := fx.SetCellStyle(sheet, cell, cell, styles.HeaderStyle); err != nil {
			return err
		}
	}
	return nil
}

func writeRow(fx *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return fx.SetSheetRow(sheet, cell, &values)
}

func styleCell(fx *excelize.File, sheet string, col, row, style int) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return fx.SetCellStyle(sheet, cell, cell, style)
}

// excelNumber maps values Excel cannot store to text.
func excelNumber(v float64) any {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return formatFloat(v)
	}
	return v
}

func excelPtr(v *float64) any {
	if v == nil {
		return "n/a"
	}
	return excelNumber(*v)
}

// WriteResultXLSX writes a result workbook with the default reporter.
func WriteResultXLSX(result *backtest.BacktestResult, path string) error {
	return NewDefaultExcelReporter().WriteResultXLSX(result, path)
}
