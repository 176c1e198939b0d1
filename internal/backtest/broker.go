package backtest

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	engineerrors "github.com/ducminhle1904/strategy-backtester/internal/errors"
	"github.com/ducminhle1904/strategy-backtester/internal/strategy"
	"github.com/ducminhle1904/strategy-backtester/pkg/types"
)

// SizingRule decides the quantity of an opening order when the signal does
// not carry an explicit size.
type SizingRule interface {
	Quantity(cash, price, commission float64) float64
	String() string
}

// FixedSize always trades the same number of units.
type FixedSize float64

func (f FixedSize) Quantity(_, _, _ float64) float64 { return float64(f) }
func (f FixedSize) String() string                   { return fmt.Sprintf("fixed:%g", float64(f)) }

// FractionOfCash spends a fraction of available cash, commission included.
// The quantity is recomputed from the fill price, so a gap between the
// signal close and the next open changes the size rather than the outcome.
type FractionOfCash float64

func (f FractionOfCash) Quantity(cash, price, commission float64) float64 {
	if price <= 0 {
		return 0
	}
	return cash * float64(f) / (price * (1 + commission))
}

func (f FractionOfCash) String() string { return fmt.Sprintf("fraction:%g", float64(f)) }

// ParseSizingRule parses "fixed:<units>" or "fraction:<0..1>".
func ParseSizingRule(s string) (SizingRule, error) {
	kind, value, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return nil, engineerrors.NewConfigurationError("broker", "ParseSizingRule", fmt.Sprintf("invalid sizing rule %q", s))
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil || v <= 0 || math.IsInf(v, 0) {
		return nil, engineerrors.NewConfigurationError("broker", "ParseSizingRule", fmt.Sprintf("invalid sizing value %q", value))
	}
	switch kind {
	case "fixed":
		return FixedSize(v), nil
	case "fraction":
		if v > 1 {
			return nil, engineerrors.NewConfigurationError("broker", "ParseSizingRule", "fraction must be in (0, 1]")
		}
		return FractionOfCash(v), nil
	default:
		return nil, engineerrors.NewConfigurationError("broker", "ParseSizingRule", fmt.Sprintf("unknown sizing rule %q", kind))
	}
}

// cashTolerance absorbs floating point error when a buy spends all cash.
const cashTolerance = 1e-12

// Broker simulates cash, a single position and at most one pending order.
// Orders are filled at the open of the bar after the signal.
type Broker struct {
	cash       float64
	commission float64
	sizing     SizingRule
	allowShort bool

	position Position
	pending  *Order
	orders   []Order
	summary  OrderSummary
	nextID   int
}

// NewBroker creates a broker holding cash.
func NewBroker(cash, commission float64, sizing SizingRule, allowShort bool) *Broker {
	if sizing == nil {
		sizing = FixedSize(1)
	}
	return &Broker{
		cash:       cash,
		commission: commission,
		sizing:     sizing,
		allowShort: allowShort,
	}
}

func (b *Broker) Cash() float64         { return b.cash }
func (b *Broker) Position() Position    { return b.position }
func (b *Broker) Pending() *Order       { return b.pending }
func (b *Broker) Orders() []Order       { return b.orders }
func (b *Broker) Summary() OrderSummary { return b.summary }

// PortfolioValue marks the position to the bar's close.
func (b *Broker) PortfolioValue(bar types.OHLCV) float64 {
	return b.cash + b.position.Quantity*bar.Close
}

// ApplySignal first resolves the pending order at bar.Open, then queues an
// order for sig. It returns the trade realised by the fill, if any.
func (b *Broker) ApplySignal(sig strategy.Signal, bar types.OHLCV) (*Trade, error) {
	var trade *Trade
	if b.pending != nil {
		trade = b.fill(bar)
	}
	if err := b.queue(sig, bar); err != nil {
		return trade, err
	}
	return trade, nil
}

// CancelPending cancels the pending order, if any.
func (b *Broker) CancelPending() {
	if b.pending != nil {
		b.resolve(OrderCancelled)
	}
}

// ForceClose cancels any pending order and closes the position at bar.Close.
func (b *Broker) ForceClose(bar types.OHLCV) *Trade {
	b.CancelPending()
	if b.position.IsFlat() {
		return nil
	}
	side := SideSell
	if b.position.Quantity < 0 {
		side = SideBuy
	}
	b.nextID++
	order := Order{
		ID:        b.nextID,
		Side:      side,
		Size:      math.Abs(b.position.Quantity),
		State:     OrderPending,
		CreatedAt: bar.Timestamp,
		Reason:    "end of run",
	}
	b.pending = &order
	return b.execute(bar, bar.Close)
}

func (b *Broker) queue(sig strategy.Signal, bar types.OHLCV) error {
	if sig.Action == strategy.ActionHold {
		return nil
	}
	if b.pending != nil {
		return nil
	}
	if sig.Size < 0 || math.IsNaN(sig.Size) || math.IsInf(sig.Size, 0) {
		return engineerrors.NewStrategyError("broker", "ApplySignal", fmt.Sprintf("invalid signal size %v", sig.Size))
	}

	qty := b.position.Quantity
	var side OrderSide
	var size float64
	byRule := false

	switch sig.Action {
	case strategy.ActionBuy:
		switch {
		case qty > 0:
			// no pyramiding
			return nil
		case qty < 0:
			side, size = SideBuy, -qty
			if sig.Size > 0 && sig.Size < size {
				size = sig.Size
			}
		default:
			side, size = SideBuy, sig.Size
			if size == 0 {
				size, byRule = b.sizing.Quantity(b.cash, bar.Close, b.commission), true
			}
		}
	case strategy.ActionSell:
		switch {
		case qty > 0:
			side, size = SideSell, qty
			if sig.Size > 0 {
				if sig.Size > qty && !b.allowShort {
					return b.shortRejected(sig, bar)
				}
				// a sell never closes and reverses in one order
				size = math.Min(sig.Size, qty)
			}
		case qty < 0:
			return nil
		default:
			if !b.allowShort {
				if sig.Size > 0 {
					return b.shortRejected(sig, bar)
				}
				// long-only close with nothing to close
				return nil
			}
			side, size = SideSell, sig.Size
			if size == 0 {
				size, byRule = b.sizing.Quantity(b.cash, bar.Close, b.commission), true
			}
		}
	default:
		return engineerrors.NewStrategyError("broker", "ApplySignal", fmt.Sprintf("unknown action %v", sig.Action))
	}

	if size <= 0 {
		return nil
	}
	b.nextID++
	b.pending = &Order{
		ID:        b.nextID,
		Side:      side,
		Size:      size,
		State:     OrderPending,
		CreatedAt: bar.Timestamp,
		Reason:    sig.Reason,
		byRule:    byRule,
	}
	return nil
}

func (b *Broker) shortRejected(sig strategy.Signal, bar types.OHLCV) error {
	return engineerrors.NewStrategyError("broker", "ApplySignal", "short selling is not supported by this strategy").
		WithContext("bar", bar.Timestamp.UTC().Format("2006-01-02T15:04:05Z07:00")).
		WithContext("size", sig.Size).
		WithContext("position", b.position.Quantity)
}

func (b *Broker) fill(bar types.OHLCV) *Trade {
	return b.execute(bar, bar.Open)
}

// execute fills the pending order at price.
func (b *Broker) execute(bar types.OHLCV, price float64) *Trade {
	order := b.pending
	qty := b.position.Quantity
	opening := qty == 0
	if opening && order.byRule {
		order.Size = b.sizing.Quantity(b.cash, price, b.commission)
		if !(order.Size > 0) {
			b.resolve(OrderRejected)
			return nil
		}
	}
	notional := order.Size * price
	commission := notional * b.commission

	if opening {
		if order.Side == SideBuy {
			cost := notional + commission
			if cost > b.cash*(1+cashTolerance) {
				b.resolve(OrderRejected)
				return nil
			}
			// a full-cash fraction may overshoot by rounding
			b.cash = math.Max(b.cash-cost, 0)
			b.position = Position{Quantity: order.Size, EntryPrice: price, EntryTime: bar.Timestamp, EntryCommission: commission}
		} else {
			b.cash += notional - commission
			b.position = Position{Quantity: -order.Size, EntryPrice: price, EntryTime: bar.Timestamp, EntryCommission: commission}
		}
		b.markFilled(bar, price, commission)
		return nil
	}

	// closing fill, full or partial
	size := order.Size
	open := math.Abs(qty)
	full := size >= open
	if full {
		size = open
	}

	entryCommission := b.position.EntryCommission
	if !full {
		entryCommission = b.position.EntryCommission * size / open
	}

	var gross float64
	trade := &Trade{
		EntryTime:  b.position.EntryTime,
		ExitTime:   bar.Timestamp,
		EntryPrice: b.position.EntryPrice,
		ExitPrice:  price,
		Quantity:   size,
	}
	if qty > 0 {
		trade.Side = SideBuy
		gross = (price - b.position.EntryPrice) * size
		b.cash += notional - commission
	} else {
		trade.Side = SideSell
		gross = (b.position.EntryPrice - price) * size
		// covers are never rejected; cash goes negative when the loss
		// exceeds the short proceeds
		b.cash -= notional + commission
	}
	trade.GrossPnL = gross
	trade.Commission = entryCommission + commission
	trade.NetPnL = gross - entryCommission - commission

	if full {
		b.position = Position{}
	} else {
		b.position.EntryCommission -= entryCommission
		if qty > 0 {
			b.position.Quantity -= size
		} else {
			b.position.Quantity += size
		}
	}
	b.markFilled(bar, price, commission)
	return trade
}

func (b *Broker) markFilled(bar types.OHLCV, price, commission float64) {
	b.pending.FilledAt = bar.Timestamp
	b.pending.FillPrice = price
	b.pending.Commission = commission
	b.resolve(OrderFilled)
}

func (b *Broker) resolve(state OrderState) {
	b.pending.State = state
	switch state {
	case OrderFilled:
		b.summary.Filled++
	case OrderRejected:
		b.summary.Rejected++
	case OrderCancelled:
		b.summary.Cancelled++
	}
	b.orders = append(b.orders, *b.pending)
	b.pending = nil
}
