package strategy

import (
	"fmt"

	"github.com/ducminhle1904/strategy-backtester/internal/indicators"
	"github.com/ducminhle1904/strategy-backtester/pkg/types"
)

const SMACrossStrategyName = "sma_cross"

// SMACrossStrategy trades fast/slow moving-average crossovers. With
// allow_short set it sells short on a bearish cross when flat. ma_type
// selects "sma" (default) or "ema" averages. Without position_size entries
// are sized by the broker.
type SMACrossStrategy struct {
	fast, slow   indicators.Streaming
	allowShort   bool
	positionSize float64

	prevDiff float64
	diff     float64
	samples  int
}

func NewSMACrossStrategyFromParams(params types.ParameterSet) (Strategy, error) {
	fastPeriod, err := params.Int("fast_period", 10)
	if err != nil {
		return nil, paramError(SMACrossStrategyName, err)
	}
	slowPeriod, err := params.Int("slow_period", 30)
	if err != nil {
		return nil, paramError(SMACrossStrategyName, err)
	}
	allowShort, err := params.Bool("allow_short", false)
	if err != nil {
		return nil, paramError(SMACrossStrategyName, err)
	}
	positionSize, err := params.Float("position_size", 0)
	if err != nil {
		return nil, paramError(SMACrossStrategyName, err)
	}

	if fastPeriod >= slowPeriod {
		return nil, invalidParam(SMACrossStrategyName, fmt.Sprintf("fast_period (%d) must be below slow_period (%d)", fastPeriod, slowPeriod))
	}
	if !(positionSize >= 0) {
		return nil, invalidParam(SMACrossStrategyName, fmt.Sprintf("position_size must not be negative, got %v", positionSize))
	}
	maType := "sma"
	if v, ok := params["ma_type"].(string); ok {
		maType = v
	}
	fast, err := newMovingAverage(maType, fastPeriod)
	if err != nil {
		return nil, invalidParam(SMACrossStrategyName, err.Error())
	}
	slow, err := newMovingAverage(maType, slowPeriod)
	if err != nil {
		return nil, invalidParam(SMACrossStrategyName, err.Error())
	}
	return &SMACrossStrategy{
		fast:         fast,
		slow:         slow,
		allowShort:   allowShort,
		positionSize: positionSize,
	}, nil
}

func (s *SMACrossStrategy) Name() string        { return SMACrossStrategyName }
func (s *SMACrossStrategy) SupportsShort() bool { return s.allowShort }

func (s *SMACrossStrategy) Update(bar types.OHLCV) error {
	fast := s.fast.Update(bar.Close)
	slow := s.slow.Update(bar.Close)
	if !s.slow.Ready() {
		return nil
	}
	s.prevDiff = s.diff
	s.diff = fast - slow
	s.samples++
	return nil
}

func (s *SMACrossStrategy) Signal() (Signal, error) {
	if s.samples < 2 {
		return Hold, nil
	}
	switch {
	case s.prevDiff <= 0 && s.diff > 0:
		return Signal{Action: ActionBuy, Size: s.positionSize, Reason: "fast SMA crossed above slow"}, nil
	case s.prevDiff >= 0 && s.diff < 0:
		sig := Signal{Action: ActionSell, Reason: "fast SMA crossed below slow"}
		if s.allowShort {
			sig.Size = s.positionSize
		}
		return sig, nil
	}
	return Hold, nil
}

func newMovingAverage(maType string, period int) (indicators.Streaming, error) {
	switch maType {
	case "sma":
		return indicators.NewSMA(period)
	case "ema":
		return indicators.NewEMA(period)
	default:
		return nil, fmt.Errorf("unknown ma_type %q", maType)
	}
}
