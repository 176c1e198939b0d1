package indicators

import (
	"errors"
	"fmt"
	"math"
)

// RSI calculates the Relative Strength Index with Wilder smoothing. The first
// reading is available after period+1 prices.
type RSI struct {
	period  int
	prev    float64
	seen    int
	gainSum float64
	lossSum float64
	avgGain float64
	avgLoss float64
	value   float64
}

// NewRSI creates a new RSI instance with the given period
func NewRSI(period int) (*RSI, error) {
	if period <= 0 {
		return nil, fmt.Errorf("rsi period must be positive, got %d", period)
	}
	return &RSI{period: period}, nil
}

// Update feeds the next close price.
func (r *RSI) Update(price float64) float64 {
	r.seen++
	if r.seen == 1 {
		r.prev = price
		return r.value
	}

	change := price - r.prev
	r.prev = price
	gain, loss := 0.0, 0.0
	if change > 0 {
		gain = change
	} else {
		loss = math.Abs(change)
	}

	changes := r.seen - 1
	switch {
	case changes < r.period:
		r.gainSum += gain
		r.lossSum += loss
		return r.value
	case changes == r.period:
		r.gainSum += gain
		r.lossSum += loss
		r.avgGain = r.gainSum / float64(r.period)
		r.avgLoss = r.lossSum / float64(r.period)
	default:
		p := float64(r.period)
		r.avgGain = (r.avgGain*(p-1) + gain) / p
		r.avgLoss = (r.avgLoss*(p-1) + loss) / p
	}

	r.value = rsiFromAverages(r.avgGain, r.avgLoss)
	return r.value
}

// Value returns the last RSI reading
func (r *RSI) Value() float64 { return r.value }

// Ready reports whether a reading is available
func (r *RSI) Ready() bool { return r.seen > r.period }

// GetName returns the indicator name
func (r *RSI) GetName() string { return "RSI" }

// GetRequiredPeriods returns the minimum number of prices needed
func (r *RSI) GetRequiredPeriods() int { return r.period + 1 }

// Calculate computes the RSI over a full price slice.
func (r *RSI) Calculate(prices []float64) (float64, error) {
	if len(prices) < r.period+1 {
		return 0, errors.New("insufficient data for RSI calculation")
	}
	batch := &RSI{period: r.period}
	for _, p := range prices {
		batch.Update(p)
	}
	return batch.value, nil
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}
