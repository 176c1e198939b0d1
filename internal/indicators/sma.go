package indicators

import (
	"errors"
	"fmt"
)

// SMA is a simple moving average over a fixed window.
type SMA struct {
	period int
	window []float64
	next   int
	count  int
	sum    float64
	value  float64
}

// NewSMA creates a new SMA indicator
func NewSMA(period int) (*SMA, error) {
	if period <= 0 {
		return nil, fmt.Errorf("sma period must be positive, got %d", period)
	}
	return &SMA{
		period: period,
		window: make([]float64, period),
	}, nil
}

// Update adds a value to the window.
func (s *SMA) Update(value float64) float64 {
	if s.count == s.period {
		s.sum -= s.window[s.next]
	} else {
		s.count++
	}
	s.window[s.next] = value
	s.sum += value
	s.next = (s.next + 1) % s.period

	if s.count == s.period {
		s.value = s.sum / float64(s.period)
	}
	return s.value
}

// Value returns the last average
func (s *SMA) Value() float64 { return s.value }

// Ready reports whether the window is full
func (s *SMA) Ready() bool { return s.count == s.period }

// GetName returns the indicator name
func (s *SMA) GetName() string { return "SMA" }

// GetRequiredPeriods returns the minimum number of periods needed
func (s *SMA) GetRequiredPeriods() int { return s.period }

// Calculate computes the SMA of the last period prices in one pass.
func (s *SMA) Calculate(prices []float64) (float64, error) {
	if len(prices) < s.period {
		return 0, errors.New("insufficient data for SMA calculation")
	}
	sum := 0.0
	for _, p := range prices[len(prices)-s.period:] {
		sum += p
	}
	return sum / float64(s.period), nil
}
