// Package reporting renders backtest, optimization and walk-forward results
// to the console, CSV, Excel and JSON.
package reporting

import (
	"github.com/ducminhle1904/strategy-backtester/internal/backtest"
)

// ConsoleReporter defines interface for console output
type ConsoleReporter interface {
	OutputResult(result *backtest.BacktestResult)
	OutputOptimization(result *backtest.OptimizationResult, top int)
	OutputWalkForward(result *backtest.WalkForwardResult)
}

// FileReporter defines interface for file output
type FileReporter interface {
	WriteTradesCSV(result *backtest.BacktestResult, path string) error
	WriteResultXLSX(result *backtest.BacktestResult, path string) error
	WriteOptimizationXLSX(result *backtest.OptimizationResult, grid []string, path string) error
	WriteJSON(v any, path string) error
}

// ExcelStyles holds Excel formatting styles
type ExcelStyles struct {
	HeaderStyle       int
	CurrencyStyle     int
	PercentStyle      int
	NumberStyle       int
	BaseStyle         int
	RedPercentStyle   int
	GreenPercentStyle int
	SummaryStyle      int
}

// ReportingConfig holds configuration for reporting
type ReportingConfig struct {
	EnableConsole   bool
	EnableFiles     bool
	OutputDirectory string
	ExcelEnabled    bool
	CSVEnabled      bool
	JSONEnabled     bool

	// TopResults limits the ranking table; zero means 10.
	TopResults int
}
