package types

import "time"

// OHLCV is a single bar of a historical price series.
type OHLCV struct {
	Timestamp   time.Time `json:"timestamp"`
	Open        float64   `json:"open"`
	High        float64   `json:"high"`
	Low         float64   `json:"low"`
	Close       float64   `json:"close"`
	Volume      float64   `json:"volume"`
	TradeCount  int64     `json:"trade_count,omitempty"`
	QuoteVolume float64   `json:"quote_volume,omitempty"`
}

// Series is an ordered bar series.
type Series []OHLCV

// Start returns the timestamp of the first bar, or the zero time.
func (s Series) Start() time.Time {
	if len(s) == 0 {
		return time.Time{}
	}
	return s[0].Timestamp
}

// End returns the timestamp of the last bar, or the zero time.
func (s Series) End() time.Time {
	if len(s) == 0 {
		return time.Time{}
	}
	return s[len(s)-1].Timestamp
}

// Closes extracts the close prices.
func (s Series) Closes() []float64 {
	closes := make([]float64, len(s))
	for i, bar := range s {
		closes[i] = bar.Close
	}
	return closes
}
