package indicators

import "fmt"

// EMA represents the Exponential Moving Average technical indicator. It is
// seeded with the SMA of the first period values.
type EMA struct {
	period      int
	alpha       float64
	seen        int
	seedSum     float64
	lastValue   float64
	initialized bool
}

// NewEMA creates a new EMA indicator
func NewEMA(period int) (*EMA, error) {
	if period <= 0 {
		return nil, fmt.Errorf("ema period must be positive, got %d", period)
	}
	return &EMA{
		period: period,
		alpha:  2.0 / float64(period+1),
	}, nil
}

// Update feeds the next value.
func (e *EMA) Update(value float64) float64 {
	e.seen++
	if !e.initialized {
		e.seedSum += value
		if e.seen == e.period {
			e.lastValue = e.seedSum / float64(e.period)
			e.initialized = true
		}
		return e.lastValue
	}

	// EMA = (Value * Alpha) + (Previous EMA * (1 - Alpha))
	e.lastValue = (value * e.alpha) + (e.lastValue * (1 - e.alpha))
	return e.lastValue
}

func (e *EMA) Value() float64          { return e.lastValue }
func (e *EMA) Ready() bool             { return e.initialized }
func (e *EMA) GetName() string         { return "EMA" }
func (e *EMA) GetRequiredPeriods() int { return e.period }
