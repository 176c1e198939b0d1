package strategy

import (
	"fmt"

	"github.com/ducminhle1904/strategy-backtester/internal/indicators"
	"github.com/ducminhle1904/strategy-backtester/pkg/types"
)

const (
	RSIStrategyName           = "rsi"
	RSIMACrossStrategyName    = "rsi_ma_cross"
	RSIDivergenceStrategyName = "rsi_divergence"
)

// RSIConfig holds the parameters shared by the RSI family of strategies. A
// zero PositionSize leaves entry sizing to the broker's sizing rule.
type RSIConfig struct {
	Period       int
	Oversold     float64
	Overbought   float64
	PositionSize float64
}

func parseRSIConfig(name string, params types.ParameterSet) (RSIConfig, error) {
	cfg := RSIConfig{}
	var err error
	if cfg.Period, err = params.Int("rsi_period", 14); err != nil {
		return cfg, paramError(name, err)
	}
	if cfg.Oversold, err = params.Float("oversold", 30); err != nil {
		return cfg, paramError(name, err)
	}
	if cfg.Overbought, err = params.Float("overbought", 70); err != nil {
		return cfg, paramError(name, err)
	}
	if cfg.PositionSize, err = params.Float("position_size", 0); err != nil {
		return cfg, paramError(name, err)
	}

	if cfg.Period <= 1 {
		return cfg, invalidParam(name, fmt.Sprintf("rsi_period must be greater than 1, got %d", cfg.Period))
	}
	if cfg.Oversold < 0 || cfg.Overbought > 100 || cfg.Oversold >= cfg.Overbought {
		return cfg, invalidParam(name, fmt.Sprintf("need 0 <= oversold < overbought <= 100, got %v/%v", cfg.Oversold, cfg.Overbought))
	}
	if !(cfg.PositionSize >= 0) {
		return cfg, invalidParam(name, fmt.Sprintf("position_size must not be negative, got %v", cfg.PositionSize))
	}
	return cfg, nil
}

// RSIStrategy buys when RSI falls below the oversold level and sells when it
// rises above the overbought level. Long only.
type RSIStrategy struct {
	config RSIConfig
	rsi    *indicators.RSI
	last   float64
}

// NewRSIStrategy creates an RSI strategy from a validated config.
func NewRSIStrategy(config RSIConfig) (*RSIStrategy, error) {
	rsi, err := indicators.NewRSI(config.Period)
	if err != nil {
		return nil, invalidParam(RSIStrategyName, err.Error())
	}
	return &RSIStrategy{config: config, rsi: rsi}, nil
}

// NewRSIStrategyFromParams is the registry factory for "rsi".
func NewRSIStrategyFromParams(params types.ParameterSet) (Strategy, error) {
	cfg, err := parseRSIConfig(RSIStrategyName, params)
	if err != nil {
		return nil, err
	}
	return NewRSIStrategy(cfg)
}

func (s *RSIStrategy) Name() string { return RSIStrategyName }

func (s *RSIStrategy) Update(bar types.OHLCV) error {
	s.last = s.rsi.Update(bar.Close)
	return nil
}

func (s *RSIStrategy) Signal() (Signal, error) {
	if !s.rsi.Ready() {
		return Hold, nil
	}
	switch {
	case s.last < s.config.Oversold:
		return Signal{
			Action: ActionBuy,
			Size:   s.config.PositionSize,
			Reason: fmt.Sprintf("RSI %.2f below %.2f", s.last, s.config.Oversold),
		}, nil
	case s.last > s.config.Overbought:
		return Signal{
			Action: ActionSell,
			Reason: fmt.Sprintf("RSI %.2f above %.2f", s.last, s.config.Overbought),
		}, nil
	}
	return Hold, nil
}

// RSIMACrossStrategy confirms RSI entries with a moving-average trend filter.
// Buy: RSI oversold and close above SMA. Sell: RSI overbought or close below SMA.
type RSIMACrossStrategy struct {
	config    RSIConfig
	rsi       *indicators.RSI
	ma        *indicators.SMA
	lastRSI   float64
	lastMA    float64
	lastClose float64
}

func NewRSIMACrossStrategyFromParams(params types.ParameterSet) (Strategy, error) {
	cfg, err := parseRSIConfig(RSIMACrossStrategyName, params)
	if err != nil {
		return nil, err
	}
	maPeriod, err := params.Int("ma_period", 50)
	if err != nil {
		return nil, paramError(RSIMACrossStrategyName, err)
	}
	rsi, err := indicators.NewRSI(cfg.Period)
	if err != nil {
		return nil, invalidParam(RSIMACrossStrategyName, err.Error())
	}
	ma, err := indicators.NewSMA(maPeriod)
	if err != nil {
		return nil, invalidParam(RSIMACrossStrategyName, err.Error())
	}
	return &RSIMACrossStrategy{config: cfg, rsi: rsi, ma: ma}, nil
}

func (s *RSIMACrossStrategy) Name() string { return RSIMACrossStrategyName }

func (s *RSIMACrossStrategy) Update(bar types.OHLCV) error {
	s.lastRSI = s.rsi.Update(bar.Close)
	s.lastMA = s.ma.Update(bar.Close)
	s.lastClose = bar.Close
	return nil
}

func (s *RSIMACrossStrategy) Signal() (Signal, error) {
	if !s.rsi.Ready() || !s.ma.Ready() {
		return Hold, nil
	}
	if s.lastRSI < s.config.Oversold && s.lastClose > s.lastMA {
		return Signal{
			Action: ActionBuy,
			Size:   s.config.PositionSize,
			Reason: fmt.Sprintf("RSI %.2f oversold in uptrend", s.lastRSI),
		}, nil
	}
	if s.lastRSI > s.config.Overbought || s.lastClose < s.lastMA {
		return Signal{
			Action: ActionSell,
			Reason: fmt.Sprintf("RSI %.2f, close %.2f vs MA %.2f", s.lastRSI, s.lastClose, s.lastMA),
		}, nil
	}
	return Hold, nil
}

// RSIDivergenceStrategy trades price/RSI divergence over a fixed lookback.
type RSIDivergenceStrategy struct {
	config   RSIConfig
	lookback int
	rsi      *indicators.RSI

	// ring buffers of closes and RSI readings, lookback+1 long
	closes []float64
	values []float64
	pos    int
	count  int
}

func NewRSIDivergenceStrategyFromParams(params types.ParameterSet) (Strategy, error) {
	cfg, err := parseRSIConfig(RSIDivergenceStrategyName, params)
	if err != nil {
		return nil, err
	}
	lookback, err := params.Int("lookback", 5)
	if err != nil {
		return nil, paramError(RSIDivergenceStrategyName, err)
	}
	if lookback <= 0 {
		return nil, invalidParam(RSIDivergenceStrategyName, fmt.Sprintf("lookback must be positive, got %d", lookback))
	}
	rsi, err := indicators.NewRSI(cfg.Period)
	if err != nil {
		return nil, invalidParam(RSIDivergenceStrategyName, err.Error())
	}
	return &RSIDivergenceStrategy{
		config:   cfg,
		lookback: lookback,
		rsi:      rsi,
		closes:   make([]float64, lookback+1),
		values:   make([]float64, lookback+1),
	}, nil
}

func (s *RSIDivergenceStrategy) Name() string { return RSIDivergenceStrategyName }

func (s *RSIDivergenceStrategy) Update(bar types.OHLCV) error {
	value := s.rsi.Update(bar.Close)
	if !s.rsi.Ready() {
		return nil
	}
	s.closes[s.pos] = bar.Close
	s.values[s.pos] = value
	s.pos = (s.pos + 1) % len(s.closes)
	if s.count < len(s.closes) {
		s.count++
	}
	return nil
}

func (s *RSIDivergenceStrategy) Signal() (Signal, error) {
	if s.count < len(s.closes) {
		return Hold, nil
	}
	// after a full wrap, pos points at the oldest reading
	past := s.pos
	current := (s.pos + len(s.closes) - 1) % len(s.closes)

	priceNow, pricePast := s.closes[current], s.closes[past]
	rsiNow, rsiPast := s.values[current], s.values[past]

	switch {
	case priceNow < pricePast && rsiNow > rsiPast:
		return Signal{
			Action: ActionBuy,
			Size:   s.config.PositionSize,
			Reason: "bullish divergence",
		}, nil
	case priceNow > pricePast && rsiNow < rsiPast:
		return Signal{Action: ActionSell, Reason: "bearish divergence"}, nil
	}
	return Hold, nil
}
