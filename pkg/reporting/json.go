package reporting

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ducminhle1904/strategy-backtester/pkg/types"
)

// DefaultJSONFormatter implements JSON output functionality
type DefaultJSONFormatter struct{}

// NewDefaultJSONFormatter creates a new JSON formatter
func NewDefaultJSONFormatter() *DefaultJSONFormatter {
	return &DefaultJSONFormatter{}
}

// Format returns indented JSON. Infinite profit factors are written as
// "Infinity" by the metrics marshaller.
func (f *DefaultJSONFormatter) Format(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

// Print writes v to w as indented JSON.
func (f *DefaultJSONFormatter) Print(w io.Writer, v any) error {
	data, err := f.Format(v)
	if err != nil {
		return err
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

// WriteJSON writes v to path, creating parent directories.
func WriteJSON(v any, path string) error {
	data, err := NewDefaultJSONFormatter().Format(v)
	if err != nil {
		return err
	}
	if err := NewDefaultPathManager().EnsureDirectoryExists(path); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// BestParameters is the best.json document written after an optimization.
type BestParameters struct {
	Strategy    string             `json:"strategy"`
	Symbol      string             `json:"symbol,omitempty"`
	Metric      string             `json:"metric"`
	MetricValue float64            `json:"metric_value"`
	Parameters  types.ParameterSet `json:"parameters"`
}

// ExtractIntervalFromPath extracts interval from data file path
// Example: "data/bybit/linear/BTCUSDT/5m/candles.csv" -> "5m"
func ExtractIntervalFromPath(dataPath string) string {
	if dataPath == "" {
		return ""
	}

	parts := strings.Split(filepath.ToSlash(dataPath), "/")
	for i := len(parts) - 1; i >= 0; i-- {
		part := parts[i]
		if len(part) < 2 {
			continue
		}
		// number followed by m, h or d
		lastChar := part[len(part)-1]
		if lastChar == 'm' || lastChar == 'h' || lastChar == 'd' {
			if _, err := strconv.Atoi(part[:len(part)-1]); err == nil {
				return part
			}
		}
	}
	return ""
}
