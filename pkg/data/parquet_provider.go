package data

import (
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"

	engineerrors "github.com/ducminhle1904/strategy-backtester/internal/errors"
	"github.com/ducminhle1904/strategy-backtester/pkg/types"
)

// BarRecord is the Parquet schema for bar data.
type BarRecord struct {
	Timestamp   int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open        float64 `parquet:"open"`
	High        float64 `parquet:"high"`
	Low         float64 `parquet:"low"`
	Close       float64 `parquet:"close"`
	Volume      float64 `parquet:"volume"`
	TradeCount  int64   `parquet:"trade_count"`
	QuoteVolume float64 `parquet:"quote_volume"`
}

// ParquetProvider implements DataProvider for Parquet files written with the
// BarRecord schema.
type ParquetProvider struct{}

// NewParquetProvider creates a new Parquet data provider
func NewParquetProvider() *ParquetProvider {
	return &ParquetProvider{}
}

// GetName returns the name of the data provider
func (p *ParquetProvider) GetName() string {
	return "Parquet Provider"
}

// LoadData reads every row of the file at source.
func (p *ParquetProvider) LoadData(source string) ([]types.OHLCV, error) {
	records, err := parquet.ReadFile[BarRecord](source)
	if err != nil {
		return nil, engineerrors.Wrap(err, engineerrors.KindData, "parquet", "read").WithContext("file", source)
	}
	bars := make([]types.OHLCV, len(records))
	for i, r := range records {
		bars[i] = types.OHLCV{
			Timestamp:   time.UnixMilli(r.Timestamp).UTC(),
			Open:        r.Open,
			High:        r.High,
			Low:         r.Low,
			Close:       r.Close,
			Volume:      r.Volume,
			TradeCount:  r.TradeCount,
			QuoteVolume: r.QuoteVolume,
		}
	}
	return bars, nil
}

// ValidateData validates the integrity of loaded data
func (p *ParquetProvider) ValidateData(data []types.OHLCV) error {
	return ValidateData(data)
}

// WriteParquet writes bars to path, creating parent directories.
// Timestamps are truncated to milliseconds.
func WriteParquet(path string, bars []types.OHLCV) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return engineerrors.Wrap(err, engineerrors.KindData, "parquet", "mkdir")
	}
	records := make([]BarRecord, len(bars))
	for i, b := range bars {
		records[i] = BarRecord{
			Timestamp:   b.Timestamp.UnixMilli(),
			Open:        b.Open,
			High:        b.High,
			Low:         b.Low,
			Close:       b.Close,
			Volume:      b.Volume,
			TradeCount:  b.TradeCount,
			QuoteVolume: b.QuoteVolume,
		}
	}
	if err := parquet.WriteFile(path, records); err != nil {
		return engineerrors.Wrap(err, engineerrors.KindData, "parquet", "write").WithContext("file", path)
	}
	return nil
}
