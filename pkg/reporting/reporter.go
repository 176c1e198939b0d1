package reporting

import (
	"io"
	"path/filepath"

	"github.com/ducminhle1904/strategy-backtester/internal/backtest"
)

// DefaultReporter implements both ConsoleReporter and FileReporter
type DefaultReporter struct {
	console *DefaultConsoleReporter
	csv     *DefaultCSVReporter
	excel   *DefaultExcelReporter
	grid    *GridReporter
	json    *DefaultJSONFormatter
	paths   *DefaultPathManager
}

// NewDefaultReporter creates a new default reporter writing console output to w
func NewDefaultReporter(w io.Writer, outputDir string) *DefaultReporter {
	return &DefaultReporter{
		console: NewDefaultConsoleReporter(w),
		csv:     NewDefaultCSVReporter(),
		excel:   NewDefaultExcelReporter(),
		grid:    NewGridReporter(),
		json:    NewDefaultJSONFormatter(),
		paths:   NewPathManager(outputDir),
	}
}

// Console output methods
func (r *DefaultReporter) OutputResult(result *backtest.BacktestResult) {
	r.console.OutputResult(result)
}

func (r *DefaultReporter) OutputOptimization(result *backtest.OptimizationResult, top int) {
	r.console.OutputOptimization(result, top)
}

func (r *DefaultReporter) OutputWalkForward(result *backtest.WalkForwardResult) {
	r.console.OutputWalkForward(result)
}

// File output methods
func (r *DefaultReporter) WriteTradesCSV(result *backtest.BacktestResult, path string) error {
	return r.csv.WriteTradesCSV(result, path)
}

func (r *DefaultReporter) WriteResultXLSX(result *backtest.BacktestResult, path string) error {
	return r.excel.WriteResultXLSX(result, path)
}

func (r *DefaultReporter) WriteOptimizationXLSX(result *backtest.OptimizationResult, grid []string, path string) error {
	return r.grid.WriteOptimizationXLSX(result, grid, path)
}

func (r *DefaultReporter) WriteJSON(v any, path string) error {
	return WriteJSON(v, path)
}

// Path management methods
func (r *DefaultReporter) GetDefaultOutputDir(symbol, strategy string) string {
	return r.paths.GetDefaultOutputDir(symbol, strategy)
}

var (
	_ ConsoleReporter = (*DefaultReporter)(nil)
	_ FileReporter    = (*DefaultReporter)(nil)
)

// ReportingManager provides a high-level interface for all reporting needs
type ReportingManager struct {
	reporter *DefaultReporter
	config   ReportingConfig
}

// NewReportingManager creates a new reporting manager with configuration
func NewReportingManager(config ReportingConfig, w io.Writer) *ReportingManager {
	if config.TopResults <= 0 {
		config.TopResults = 10
	}
	return &ReportingManager{
		reporter: NewDefaultReporter(w, config.OutputDirectory),
		config:   config,
	}
}

// ReportResult prints a single run and writes its trade files. It returns
// the paths written.
func (m *ReportingManager) ReportResult(result *backtest.BacktestResult) ([]string, error) {
	if m.config.EnableConsole {
		m.reporter.OutputResult(result)
	}
	if !m.config.EnableFiles {
		return nil, nil
	}

	dir := m.reporter.GetDefaultOutputDir(result.Symbol, result.Strategy)
	var written []string
	if m.config.CSVEnabled {
		path := filepath.Join(dir, "trades.csv")
		if err := m.reporter.WriteTradesCSV(result, path); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	if m.config.ExcelEnabled {
		path := filepath.Join(dir, "trades.xlsx")
		if err := m.reporter.WriteResultXLSX(result, path); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	if m.config.JSONEnabled {
		path := filepath.Join(dir, "result.json")
		if err := m.reporter.WriteJSON(result, path); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

// ReportOptimization prints the ranking and writes the optimization
// workbook and best.json.
func (m *ReportingManager) ReportOptimization(result *backtest.OptimizationResult, symbol string, grid []string) ([]string, error) {
	if m.config.EnableConsole {
		m.reporter.OutputOptimization(result, m.config.TopResults)
	}
	if !m.config.EnableFiles {
		return nil, nil
	}

	dir := m.reporter.GetDefaultOutputDir(symbol, result.Strategy)
	var written []string
	if m.config.ExcelEnabled {
		path := filepath.Join(dir, "optimization.xlsx")
		if err := m.reporter.WriteOptimizationXLSX(result, grid, path); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	if m.config.JSONEnabled && result.BestParameters != nil {
		best := BestParameters{
			Strategy:    result.Strategy,
			Symbol:      symbol,
			Metric:      result.Metric,
			MetricValue: result.BestMetricValue,
			Parameters:  result.BestParameters,
		}
		path := filepath.Join(dir, "best.json")
		if err := m.reporter.WriteJSON(best, path); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

// ReportWalkForward prints the window table and writes walkforward.json.
func (m *ReportingManager) ReportWalkForward(result *backtest.WalkForwardResult, symbol string) ([]string, error) {
	if m.config.EnableConsole {
		m.reporter.OutputWalkForward(result)
	}
	if !m.config.EnableFiles || !m.config.JSONEnabled {
		return nil, nil
	}
	path := filepath.Join(m.reporter.GetDefaultOutputDir(symbol, result.Strategy), "walkforward.json")
	if err := m.reporter.WriteJSON(result, path); err != nil {
		return nil, err
	}
	return []string{path}, nil
}
