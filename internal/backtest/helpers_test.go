package backtest

import (
	"errors"
	"math"
	"time"

	"github.com/ducminhle1904/strategy-backtester/internal/strategy"
	"github.com/ducminhle1904/strategy-backtester/pkg/types"
)

var testStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// barsFromPrices builds daily bars whose open and close both equal price.
func barsFromPrices(prices ...float64) []types.OHLCV {
	bars := make([]types.OHLCV, len(prices))
	for i, p := range prices {
		bars[i] = types.OHLCV{
			Timestamp: testStart.Add(time.Duration(i) * 24 * time.Hour),
			Open:      p,
			High:      p,
			Low:       p,
			Close:     p,
			Volume:    1000,
		}
	}
	return bars
}

// generateWaveData creates n bars oscillating around 100.
func generateWaveData(n int) []types.OHLCV {
	prices := make([]float64, n)
	for i := range prices {
		prices[i] = 100 + 10*math.Sin(float64(i)/4) + float64(i)*0.05
	}
	bars := barsFromPrices(prices...)
	for i := range bars {
		bars[i].High = bars[i].Close * 1.01
		bars[i].Low = bars[i].Close * 0.99
		if i > 0 {
			bars[i].Open = bars[i-1].Close
		}
	}
	return bars
}

// scriptedStrategy emits fixed signals at given bar indexes.
type scriptedStrategy struct {
	signals  map[int]strategy.Signal
	bar      int
	short    bool
	failAt   int
	panicAt  int
	sleepFor time.Duration
}

func newScripted(signals map[int]strategy.Signal) *scriptedStrategy {
	return &scriptedStrategy{signals: signals, failAt: -1, panicAt: -1}
}

func (s *scriptedStrategy) Name() string        { return "scripted" }
func (s *scriptedStrategy) SupportsShort() bool { return s.short }

func (s *scriptedStrategy) Update(types.OHLCV) error {
	if s.sleepFor > 0 {
		time.Sleep(s.sleepFor)
	}
	s.bar++
	return nil
}

func (s *scriptedStrategy) Signal() (strategy.Signal, error) {
	i := s.bar - 1
	if i == s.failAt {
		return strategy.Hold, errors.New("indicator exploded")
	}
	if i == s.panicAt {
		panic("division by zero")
	}
	if sig, ok := s.signals[i]; ok {
		return sig, nil
	}
	return strategy.Hold, nil
}

func buy(size float64) strategy.Signal {
	return strategy.Signal{Action: strategy.ActionBuy, Size: size}
}

func sell(size float64) strategy.Signal {
	return strategy.Signal{Action: strategy.ActionSell, Size: size}
}

// scriptedFactory reads buy_at, sell_at and fail from the parameter set.
func scriptedFactory(params types.ParameterSet) (strategy.Strategy, error) {
	buyAt, err := params.Int("buy_at", 1)
	if err != nil {
		return nil, err
	}
	sellAt, err := params.Int("sell_at", -1)
	if err != nil {
		return nil, err
	}
	fail, err := params.Bool("fail", false)
	if err != nil {
		return nil, err
	}
	s := newScripted(map[int]strategy.Signal{buyAt: buy(1)})
	if sellAt >= 0 {
		s.signals[sellAt] = sell(0)
	}
	if fail {
		s.failAt = 0
	}
	return s, nil
}

func testRegistry() *strategy.Registry {
	r := strategy.DefaultRegistry()
	r.MustRegister("scripted", scriptedFactory)
	return r
}

// closeReturns converts closes into per-period returns aligned with an
// equity curve over the same bars.
func closeReturns(bars []types.OHLCV) []float64 {
	if len(bars) < 2 {
		return nil
	}
	returns := make([]float64, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		returns[i-1] = bars[i].Close/bars[i-1].Close - 1
	}
	return returns
}

func nan() float64 { return math.NaN() }
