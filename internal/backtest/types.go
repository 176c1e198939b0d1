package backtest

import (
	"time"

	engineerrors "github.com/ducminhle1904/strategy-backtester/internal/errors"
	"github.com/ducminhle1904/strategy-backtester/pkg/types"
)

// OrderSide is the direction of an order or trade.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// OrderState tracks an order through its lifecycle.
type OrderState string

const (
	OrderPending   OrderState = "pending"
	OrderFilled    OrderState = "filled"
	OrderCancelled OrderState = "cancelled"
	OrderRejected  OrderState = "rejected"
)

// Order is created from a strategy signal and resolved on the next bar.
type Order struct {
	ID         int        `json:"id"`
	Side       OrderSide  `json:"side"`
	Size       float64    `json:"size"`
	State      OrderState `json:"state"`
	CreatedAt  time.Time  `json:"created_at"`
	FilledAt   time.Time  `json:"filled_at,omitempty"`
	FillPrice  float64    `json:"fill_price,omitempty"`
	Commission float64    `json:"commission,omitempty"`
	Reason     string     `json:"reason,omitempty"`

	// byRule marks a size taken from the sizing rule, resized at fill
	byRule bool
}

// Position is the open holding. Quantity is signed: negative means short.
type Position struct {
	Quantity   float64   `json:"quantity"`
	EntryPrice float64   `json:"entry_price"`
	EntryTime  time.Time `json:"entry_time"`

	// entry commission not yet allocated to a closed trade
	EntryCommission float64 `json:"entry_commission"`
}

// IsFlat reports whether no position is open
func (p Position) IsFlat() bool { return p.Quantity == 0 }

// Trade is a completed round trip. Side is the side of the opening fill.
type Trade struct {
	Side       OrderSide `json:"side"`
	EntryTime  time.Time `json:"entry_time"`
	ExitTime   time.Time `json:"exit_time"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	Quantity   float64   `json:"quantity"`
	GrossPnL   float64   `json:"gross_pnl"`
	Commission float64   `json:"commission"`
	NetPnL     float64   `json:"net_pnl"`
}

// EquityPoint is the marked-to-market portfolio value at a bar close.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Status is the terminal state of a job.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// OrderSummary counts orders by final state.
type OrderSummary struct {
	Filled    int `json:"filled"`
	Rejected  int `json:"rejected"`
	Cancelled int `json:"cancelled"`
}

// BacktestResult is the outcome of one simulation.
type BacktestResult struct {
	JobID          string             `json:"job_id"`
	Strategy       string             `json:"strategy"`
	Symbol         string             `json:"symbol,omitempty"`
	Fingerprint    string             `json:"fingerprint,omitempty"`
	Parameters     types.ParameterSet `json:"parameters"`
	InitialCapital float64            `json:"initial_capital"`
	FinalCapital   float64            `json:"final_capital"`
	Metrics        PerformanceMetrics `json:"metrics"`
	Trades         []Trade            `json:"trades"`
	EquityCurve    []EquityPoint      `json:"equity_curve"`
	Orders         OrderSummary       `json:"orders"`
	OpenPosition   *Position          `json:"open_position,omitempty"`
	Duration       time.Duration      `json:"duration"`
	Status         Status             `json:"status"`
	Error          string             `json:"error,omitempty"`
	ErrorKind      string             `json:"error_kind,omitempty"`

	err error
}

// Err returns the error that failed the run, if it is still attached.
// Results decoded from a cache or JSON only carry Error and ErrorKind.
func (r *BacktestResult) Err() error { return r.err }

func (r *BacktestResult) fail(err error) {
	r.Status = StatusFailed
	r.err = err
	r.Error = err.Error()
	if r.Error == "" {
		r.Error = "backtest failed"
	}
	if kind, ok := engineerrors.KindOf(err); ok {
		r.ErrorKind = string(kind)
	}
}

// Completed reports whether the run finished successfully
func (r *BacktestResult) Completed() bool {
	return r != nil && r.Status == StatusCompleted
}

// Clone returns a deep copy that shares no slices, maps or pointers with r.
func (r *BacktestResult) Clone() *BacktestResult {
	if r == nil {
		return nil
	}
	c := *r
	if r.Parameters != nil {
		c.Parameters = r.Parameters.Clone()
	}
	c.Trades = append([]Trade(nil), r.Trades...)
	c.EquityCurve = append([]EquityPoint(nil), r.EquityCurve...)
	if r.OpenPosition != nil {
		pos := *r.OpenPosition
		c.OpenPosition = &pos
	}
	c.Metrics.Alpha = copyFloat(r.Metrics.Alpha)
	c.Metrics.Beta = copyFloat(r.Metrics.Beta)
	c.Metrics.InformationRatio = copyFloat(r.Metrics.InformationRatio)
	return &c
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	f := *v
	return &f
}

// EquityValues returns the equity curve values in order.
func (r *BacktestResult) EquityValues() []float64 {
	values := make([]float64, len(r.EquityCurve))
	for i, p := range r.EquityCurve {
		values[i] = p.Value
	}
	return values
}

// RankedResult is one successful grid combination.
type RankedResult struct {
	Rank         int                `json:"rank"`
	Index        int                `json:"index"`
	Parameters   types.ParameterSet `json:"parameters"`
	MetricValue  float64            `json:"metric_value"`
	Metrics      PerformanceMetrics `json:"metrics"`
	FinalCapital float64            `json:"final_capital"`
}

// FailedCombination is a grid combination whose simulation failed.
type FailedCombination struct {
	Index      int                `json:"index"`
	Parameters types.ParameterSet `json:"parameters"`
	Error      string             `json:"error"`
}

// OptimizationResult is the ranked outcome of a grid search.
type OptimizationResult struct {
	JobID                 string              `json:"job_id"`
	Strategy              string              `json:"strategy"`
	Metric                string              `json:"metric"`
	BestParameters        types.ParameterSet  `json:"best_parameters"`
	BestMetricValue       float64             `json:"best_metric_value"`
	Results               []RankedResult      `json:"results"`
	Failures              []FailedCombination `json:"failures,omitempty"`
	FailuresByKind        map[string]int      `json:"failures_by_kind,omitempty"`
	TotalCombinations     int                 `json:"total_combinations"`
	CompletedCombinations int                 `json:"completed_combinations"`
	Cancelled             bool                `json:"cancelled"`
	Duration              time.Duration       `json:"duration"`
	Status                Status              `json:"status"`
}
