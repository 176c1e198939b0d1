package data

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	engineerrors "github.com/ducminhle1904/strategy-backtester/internal/errors"
	"github.com/ducminhle1904/strategy-backtester/pkg/types"
)

// CSVProvider implements DataProvider for CSV files with a header row.
// Malformed rows are skipped and logged. Timestamps are read as UTC.
type CSVProvider struct {
	format CSVColumnMapping
	logger *zap.Logger
}

// NewCSVProvider creates a new CSV data provider with default format
func NewCSVProvider(logger *zap.Logger) *CSVProvider {
	return NewCSVProviderWithFormat(DefaultCSVFormat, logger)
}

// NewCSVProviderWithFormat creates a new CSV data provider with custom format
func NewCSVProviderWithFormat(format CSVColumnMapping, logger *zap.Logger) *CSVProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CSVProvider{
		format: format,
		logger: logger,
	}
}

// GetName returns the name of the data provider
func (p *CSVProvider) GetName() string {
	return "CSV Provider"
}

// LoadData loads historical data from a CSV file
func (p *CSVProvider) LoadData(source string) ([]types.OHLCV, error) {
	file, err := os.Open(source)
	if err != nil {
		return nil, engineerrors.Wrap(err, engineerrors.KindData, "csv", "open").WithContext("file", source)
	}
	defer file.Close()

	return p.read(file, source)
}

func (p *CSVProvider) read(r io.Reader, source string) ([]types.OHLCV, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	// Skip header
	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, engineerrors.NewDataFetchError("csv", "read", "empty file").WithContext("file", source)
		}
		return nil, engineerrors.Wrap(err, engineerrors.KindData, "csv", "read header").WithContext("file", source)
	}

	var data []types.OHLCV
	lineNum := 1
	skipped := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		lineNum++
		if err != nil {
			return nil, engineerrors.Wrap(err, engineerrors.KindData, "csv", "read").
				WithContext("file", source).
				WithContext("line", lineNum)
		}

		bar, reason := p.parseRecord(record)
		if reason != "" {
			skipped++
			p.logger.Warn("skipping csv row",
				zap.String("file", source),
				zap.Int("line", lineNum),
				zap.String("reason", reason))
			continue
		}
		data = append(data, bar)
	}

	if skipped > 0 {
		p.logger.Info("loaded csv with skipped rows",
			zap.String("file", source),
			zap.Int("rows", len(data)),
			zap.Int("skipped", skipped))
	}
	return data, nil
}

// parseRecord returns the bar or a non-empty reason why the row is invalid.
func (p *CSVProvider) parseRecord(record []string) (types.OHLCV, string) {
	format := p.format
	if len(record) < format.MinColumns {
		return types.OHLCV{}, "insufficient columns"
	}

	timestamp, err := parseTimestamp(record[format.TimestampCol], format.DateFormat)
	if err != nil {
		return types.OHLCV{}, "invalid timestamp: " + err.Error()
	}

	var values [5]float64
	cols := [5]int{format.OpenCol, format.HighCol, format.LowCol, format.CloseCol, format.VolumeCol}
	names := [5]string{"open", "high", "low", "close", "volume"}
	for i, col := range cols {
		v, err := strconv.ParseFloat(strings.TrimSpace(record[col]), 64)
		if err != nil {
			return types.OHLCV{}, "invalid " + names[i]
		}
		values[i] = v
	}
	bar := types.OHLCV{
		Timestamp: timestamp,
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
	}

	if col := format.TradeCountCol; col >= 0 && col < len(record) {
		if n, err := strconv.ParseInt(strings.TrimSpace(record[col]), 10, 64); err == nil {
			bar.TradeCount = n
		}
	}
	if col := format.QuoteVolumeCol; col >= 0 && col < len(record) {
		if v, err := strconv.ParseFloat(strings.TrimSpace(record[col]), 64); err == nil {
			bar.QuoteVolume = v
		}
	}

	if reason := validateBar(bar); reason != "" {
		return types.OHLCV{}, reason
	}
	return bar, ""
}

func parseTimestamp(s, layout string) (time.Time, error) {
	s = strings.TrimSpace(s)
	switch layout {
	case "unix":
		sec, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(sec, 0).UTC(), nil
	case "unix_ms":
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.UnixMilli(ms).UTC(), nil
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		// fall back to RFC 3339 and plain dates
		for _, alt := range []string{time.RFC3339Nano, "2006-01-02"} {
			if t2, err2 := time.Parse(alt, s); err2 == nil {
				return t2.UTC(), nil
			}
		}
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// validateBar returns a reason when the bar fails the basic price checks.
func validateBar(bar types.OHLCV) string {
	switch {
	case bar.Open <= 0 || bar.High <= 0 || bar.Low <= 0 || bar.Close <= 0:
		return "prices must be positive"
	case bar.High < bar.Low:
		return "high below low"
	case bar.High < bar.Open || bar.High < bar.Close:
		return "high below open or close"
	case bar.Low > bar.Open || bar.Low > bar.Close:
		return "low above open or close"
	case bar.Volume < 0:
		return "negative volume"
	}
	return ""
}

// ValidateData validates the integrity of loaded data
func (p *CSVProvider) ValidateData(data []types.OHLCV) error {
	return ValidateData(data)
}

// ValidateData checks prices and the time sequence. Errors are data errors.
func ValidateData(data []types.OHLCV) error {
	if len(data) == 0 {
		return engineerrors.NewDataFetchError("data", "validate", "no data provided")
	}
	for i, candle := range data {
		if reason := validateBar(candle); reason != "" {
			return engineerrors.NewDataFetchError("data", "validate", "invalid price data: "+reason).
				WithContext("index", i)
		}
	}
	return NewDefaultDataFilter().ValidateTimeSequence(data)
}
