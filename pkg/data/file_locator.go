package data

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// DefaultFileLocator implements FileLocator for standard file system operations
type DefaultFileLocator struct {
	logger *zap.Logger
}

// NewDefaultFileLocator creates a new default file locator
func NewDefaultFileLocator(logger *zap.Logger) *DefaultFileLocator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefaultFileLocator{logger: logger}
}

// ConvertIntervalToMinutes converts interval strings like "5m", "1h", "4h" to minute numbers
func (f *DefaultFileLocator) ConvertIntervalToMinutes(interval string) string {
	// If it's already just a number, return as-is
	if _, err := strconv.Atoi(interval); err == nil {
		return interval
	}

	interval = strings.ToLower(strings.TrimSpace(interval))
	if len(interval) < 2 {
		return interval
	}

	numStr := interval[:len(interval)-1]
	unit := interval[len(interval)-1:]
	num, err := strconv.Atoi(numStr)
	if err != nil {
		return interval
	}

	switch unit {
	case "m":
		return strconv.Itoa(num)
	case "h":
		return strconv.Itoa(num * 60)
	case "d":
		return strconv.Itoa(num * 24 * 60)
	case "w":
		return strconv.Itoa(num * 7 * 24 * 60)
	default:
		return interval
	}
}

// FindDataFile attempts to locate data files for a specific exchange.
// Structure: data/{exchange}/{category}/{symbol}/{interval}/candles.{csv,parquet}
// Returns empty string if no file is found
func (f *DefaultFileLocator) FindDataFile(dataRoot, exchange, symbol, interval string) string {
	symbol = strings.ToUpper(symbol)
	intervalMinutes := f.ConvertIntervalToMinutes(interval)

	var categories []string
	switch strings.ToLower(exchange) {
	case "bybit":
		categories = []string{"spot", "linear", "inverse"}
	case "binance":
		categories = []string{"spot", "futures"}
	default:
		categories = []string{"spot", "futures", "linear", "inverse"}
	}

	var attemptedPaths []string
	for _, category := range categories {
		for _, name := range []string{"candles.parquet", "candles.csv"} {
			path := filepath.Join(dataRoot, exchange, category, symbol, intervalMinutes, name)
			attemptedPaths = append(attemptedPaths, path)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}

	f.logger.Warn("no data file found",
		zap.String("exchange", exchange),
		zap.String("symbol", symbol),
		zap.String("interval", interval),
		zap.Strings("attempted", attemptedPaths))
	return ""
}
