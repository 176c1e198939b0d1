package data

import (
	"time"

	"github.com/ducminhle1904/strategy-backtester/pkg/types"
)

// DataProvider interface for loading historical data from various sources
type DataProvider interface {
	// LoadData loads historical data from the specified source
	LoadData(source string) ([]types.OHLCV, error)

	// ValidateData validates the integrity of the loaded data
	ValidateData(data []types.OHLCV) error

	// GetName returns the name of the data provider
	GetName() string
}

// DataCache interface for caching loaded data
type DataCache interface {
	Get(key string) ([]types.OHLCV, bool)
	Set(key string, data []types.OHLCV)
	Clear()
	Size() int
}

// DataFilter interface for filtering and transforming data
type DataFilter interface {
	// FilterByPeriod keeps the trailing period of data
	FilterByPeriod(data []types.OHLCV, period time.Duration) []types.OHLCV

	// FilterByDateRange keeps bars with start <= timestamp <= end
	FilterByDateRange(data []types.OHLCV, start, end time.Time) []types.OHLCV

	// ValidateTimeSequence ensures timestamps strictly increase
	ValidateTimeSequence(data []types.OHLCV) error
}

// CSVColumnMapping defines the column positions for different CSV formats.
// Negative optional columns are absent. A DateFormat of "unix" or "unix_ms"
// reads numeric epoch timestamps.
type CSVColumnMapping struct {
	TimestampCol   int
	OpenCol        int
	HighCol        int
	LowCol         int
	CloseCol       int
	VolumeCol      int
	TradeCountCol  int
	QuoteVolumeCol int
	MinColumns     int
	DateFormat     string
}

// Predefined CSV formats
var (
	DefaultCSVFormat = CSVColumnMapping{
		TimestampCol:   0,
		OpenCol:        1,
		HighCol:        2,
		LowCol:         3,
		CloseCol:       4,
		VolumeCol:      5,
		TradeCountCol:  -1,
		QuoteVolumeCol: -1,
		MinColumns:     6,
		DateFormat:     "2006-01-02 15:04:05",
	}

	// BybitCSVFormat is the kline export layout: start time in unix
	// milliseconds, OHLCV, then turnover.
	BybitCSVFormat = CSVColumnMapping{
		TimestampCol:   0,
		OpenCol:        1,
		HighCol:        2,
		LowCol:         3,
		CloseCol:       4,
		VolumeCol:      5,
		TradeCountCol:  -1,
		QuoteVolumeCol: 6,
		MinColumns:     6,
		DateFormat:     "unix_ms",
	}
)

// FileLocator interface for finding data files
type FileLocator interface {
	// FindDataFile attempts to locate data files for a specific exchange and symbol
	FindDataFile(dataRoot, exchange, symbol, interval string) string

	// ConvertIntervalToMinutes converts interval strings like "5m", "1h", "4h" to minute numbers
	ConvertIntervalToMinutes(interval string) string
}
