package strategy

import (
	"github.com/ducminhle1904/strategy-backtester/pkg/types"
)

// Strategy is the capability every trading strategy implements. A strategy
// instance belongs to exactly one simulation and is never shared.
type Strategy interface {
	// Name returns the registry identifier of the strategy
	Name() string

	// Update advances indicator state with the next bar.
	Update(bar types.OHLCV) error

	// Signal returns the decision for the most recent bar.
	Signal() (Signal, error)
}

// ShortSeller is implemented by strategies that may open short positions.
type ShortSeller interface {
	SupportsShort() bool
}

// SupportsShort reports whether s declares long/short support.
func SupportsShort(s Strategy) bool {
	ss, ok := s.(ShortSeller)
	return ok && ss.SupportsShort()
}

// Signal is a trading decision. A zero Size defers to the broker's sizing rule.
type Signal struct {
	Action TradeAction
	Size   float64
	Reason string
}

// Hold is the no-op signal
var Hold = Signal{Action: ActionHold}

// TradeAction represents the type of trading action
type TradeAction int

const (
	ActionHold TradeAction = iota
	ActionBuy
	ActionSell
)

func (ta TradeAction) String() string {
	switch ta {
	case ActionHold:
		return "HOLD"
	case ActionBuy:
		return "BUY"
	case ActionSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}
