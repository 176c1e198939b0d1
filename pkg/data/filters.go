package data

import (
	"sort"
	"time"

	engineerrors "github.com/ducminhle1904/strategy-backtester/internal/errors"
	"github.com/ducminhle1904/strategy-backtester/pkg/types"
)

// DefaultDataFilter implements DataFilter for common filtering operations
type DefaultDataFilter struct{}

// NewDefaultDataFilter creates a new default data filter
func NewDefaultDataFilter() *DefaultDataFilter {
	return &DefaultDataFilter{}
}

// FilterByPeriod filters data to the last N period
func (f *DefaultDataFilter) FilterByPeriod(data []types.OHLCV, period time.Duration) []types.OHLCV {
	if period <= 0 || len(data) == 0 {
		return data
	}

	cutoffTime := data[len(data)-1].Timestamp.Add(-period)
	startIdx := sort.Search(len(data), func(i int) bool {
		return !data[i].Timestamp.Before(cutoffTime)
	})
	return data[startIdx:]
}

// FilterByDateRange filters data to a specific date range, both ends inclusive.
// A zero end means no upper bound.
func (f *DefaultDataFilter) FilterByDateRange(data []types.OHLCV, start, end time.Time) []types.OHLCV {
	var filtered []types.OHLCV
	for _, candle := range data {
		if candle.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && candle.Timestamp.After(end) {
			continue
		}
		filtered = append(filtered, candle)
	}
	return filtered
}

// ValidateTimeSequence ensures timestamps strictly increase
func (f *DefaultDataFilter) ValidateTimeSequence(data []types.OHLCV) error {
	for i := 1; i < len(data); i++ {
		prev, cur := data[i-1].Timestamp, data[i].Timestamp
		if cur.Before(prev) {
			return engineerrors.NewDataFetchError("data", "validate", "data not in chronological order").
				WithContext("index", i).
				WithContext("timestamp", cur.Format(time.RFC3339))
		}
		if cur.Equal(prev) {
			return engineerrors.NewDataFetchError("data", "validate", "duplicate timestamp").
				WithContext("index", i).
				WithContext("timestamp", cur.Format(time.RFC3339))
		}
	}
	return nil
}

// SortByTimestamp returns a copy sorted by timestamp (ascending order)
func (f *DefaultDataFilter) SortByTimestamp(data []types.OHLCV) []types.OHLCV {
	sorted := make([]types.OHLCV, len(data))
	copy(sorted, data)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	return sorted
}

// RemoveDuplicates removes duplicate timestamps, keeping the first occurrence
func (f *DefaultDataFilter) RemoveDuplicates(data []types.OHLCV) []types.OHLCV {
	if len(data) <= 1 {
		return data
	}

	filtered := make([]types.OHLCV, 0, len(data))
	seen := make(map[int64]bool, len(data))
	for _, candle := range data {
		ts := candle.Timestamp.UnixNano()
		if !seen[ts] {
			seen[ts] = true
			filtered = append(filtered, candle)
		}
	}
	return filtered
}

// Normalize sorts data and drops duplicate timestamps so that it passes
// ValidateTimeSequence.
func (f *DefaultDataFilter) Normalize(data []types.OHLCV) []types.OHLCV {
	return f.RemoveDuplicates(f.SortByTimestamp(data))
}
