package reporting

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ducminhle1904/strategy-backtester/internal/backtest"
)

const timeLayout = "2006-01-02 15:04:05"

// DefaultCSVReporter implements CSV output functionality
type DefaultCSVReporter struct {
	paths *DefaultPathManager
}

// NewDefaultCSVReporter creates a new CSV reporter
func NewDefaultCSVReporter() *DefaultCSVReporter {
	return &DefaultCSVReporter{paths: NewDefaultPathManager()}
}

// WriteTradesCSV writes one row per trade and a summary row. A path ending
// in .xlsx is written as a workbook instead.
func (r *DefaultCSVReporter) WriteTradesCSV(result *backtest.BacktestResult, path string) error {
	if strings.HasSuffix(strings.ToLower(path), ".xlsx") {
		return NewDefaultExcelReporter().WriteResultXLSX(result, path)
	}
	if err := r.paths.EnsureDirectoryExists(path); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{
		"Trade",
		"Side",
		"Entry_Time",
		"Exit_Time",
		"Entry_Price",
		"Exit_Price",
		"Quantity",
		"Gross_PnL",
		"Commission",
		"Net_PnL",
		"Return_%",
		"Win_Loss",
	}); err != nil {
		return err
	}

	var totalNet, totalComm float64
	for i, t := range result.Trades {
		totalNet += t.NetPnL
		totalComm += t.Commission
		winLoss := "W"
		if t.NetPnL <= 0 {
			winLoss = "L"
		}
		row := []string{
			strconv.Itoa(i + 1),
			string(t.Side),
			t.EntryTime.Format(timeLayout),
			t.ExitTime.Format(timeLayout),
			formatCSVFloat(t.EntryPrice),
			formatCSVFloat(t.ExitPrice),
			formatCSVFloat(t.Quantity),
			fmt.Sprintf("%.2f", t.GrossPnL),
			fmt.Sprintf("%.2f", t.Commission),
			fmt.Sprintf("%.2f", t.NetPnL),
			fmt.Sprintf("%.2f", TradeReturn(t)*100),
			winLoss,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	summaryRow := make([]string, 12)
	summaryRow[11] = fmt.Sprintf("SUMMARY: total_net_pnl=%.2f; total_commission=%.2f; total_trades=%d; final_capital=%.2f",
		totalNet, totalComm, len(result.Trades), result.FinalCapital)
	if err := w.Write(summaryRow); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// TradeReturn is the trade's return on entry notional, signed by side.
func TradeReturn(t backtest.Trade) float64 {
	if t.EntryPrice == 0 {
		return 0
	}
	r := (t.ExitPrice - t.EntryPrice) / t.EntryPrice
	if t.Side == backtest.SideSell {
		r = -r
	}
	return r
}

func formatCSVFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteTradesCSV writes trades with the default reporter.
func WriteTradesCSV(result *backtest.BacktestResult, path string) error {
	return NewDefaultCSVReporter().WriteTradesCSV(result, path)
}
