// Package data loads and validates historical bar series.
package data

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	engineerrors "github.com/ducminhle1904/strategy-backtester/internal/errors"
	"github.com/ducminhle1904/strategy-backtester/pkg/types"
)

// DataManager combines all data operations in a convenient interface
type DataManager struct {
	csv     DataProvider
	parquet DataProvider
	filter  *DefaultDataFilter
	locator FileLocator
}

// NewDataManager creates a data manager with cached CSV and Parquet providers.
func NewDataManager(logger *zap.Logger) *DataManager {
	return &DataManager{
		csv:     NewCachedProvider(NewCSVProvider(logger), logger),
		parquet: NewCachedProvider(NewParquetProvider(), logger),
		filter:  NewDefaultDataFilter(),
		locator: NewDefaultFileLocator(logger),
	}
}

// NewDataManagerWithProvider creates a data manager that reads every file
// through provider.
func NewDataManagerWithProvider(provider DataProvider, logger *zap.Logger) *DataManager {
	return &DataManager{
		csv:     provider,
		parquet: provider,
		filter:  NewDefaultDataFilter(),
		locator: NewDefaultFileLocator(logger),
	}
}

// providerFor picks the provider by file extension.
func (dm *DataManager) providerFor(path string) DataProvider {
	if strings.EqualFold(filepath.Ext(path), ".parquet") {
		return dm.parquet
	}
	return dm.csv
}

// LoadHistoricalData loads path, sorts it, drops duplicate timestamps and
// validates the result.
func (dm *DataManager) LoadHistoricalData(path string) ([]types.OHLCV, error) {
	provider := dm.providerFor(path)
	bars, err := provider.LoadData(path)
	if err != nil {
		return nil, err
	}
	bars = dm.filter.Normalize(bars)
	if err := provider.ValidateData(bars); err != nil {
		return nil, err
	}
	return bars, nil
}

// Load reads path and trims it to the trailing period and date range. Zero
// values disable the filters.
func (dm *DataManager) Load(path string, period time.Duration, start, end time.Time) ([]types.OHLCV, error) {
	bars, err := dm.LoadHistoricalData(path)
	if err != nil {
		return nil, err
	}
	bars = dm.filter.FilterByPeriod(bars, period)
	if !start.IsZero() || !end.IsZero() {
		bars = dm.filter.FilterByDateRange(bars, start, end)
	}
	if len(bars) == 0 {
		return nil, engineerrors.NewDataFetchError("data", "Load", "no bars left after filtering").
			WithContext("file", path)
	}
	return bars, nil
}

// FindDataFile locates data files
func (dm *DataManager) FindDataFile(dataRoot, exchange, symbol, interval string) string {
	return dm.locator.FindDataFile(dataRoot, exchange, symbol, interval)
}

// Filter returns the data filter
func (dm *DataManager) Filter() *DefaultDataFilter {
	return dm.filter
}

// ParseTrailingPeriod parses period strings like "7d", "30d", "180d"
func ParseTrailingPeriod(s string) (time.Duration, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if strings.HasSuffix(s, "days") {
		s = strings.TrimSuffix(s, "days") + "d"
	}
	if strings.HasSuffix(s, "d") {
		nStr := strings.TrimSuffix(s, "d")
		if nStr == "" {
			return 0, false
		}
		n, err := strconv.Atoi(nStr)
		if err != nil || n <= 0 {
			return 0, false
		}
		return time.Duration(n) * 24 * time.Hour, true
	}
	// allow raw durations too (e.g., 168h)
	if d, err := time.ParseDuration(s); err == nil {
		return d, true
	}
	return 0, false
}

// BenchmarkReturns aligns a benchmark series with bars by timestamp and
// returns per-period returns, len(bars)-1 of them. Periods without a
// benchmark bar at both ends get a zero return.
func BenchmarkReturns(bars, benchmark []types.OHLCV) []float64 {
	if len(bars) < 2 {
		return nil
	}
	closes := make(map[int64]float64, len(benchmark))
	for _, b := range benchmark {
		closes[b.Timestamp.UnixNano()] = b.Close
	}
	returns := make([]float64, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		prev, okPrev := closes[bars[i-1].Timestamp.UnixNano()]
		cur, okCur := closes[bars[i].Timestamp.UnixNano()]
		if okPrev && okCur && prev > 0 {
			returns[i-1] = cur/prev - 1
		}
	}
	return returns
}
