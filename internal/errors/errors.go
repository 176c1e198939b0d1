// Package errors defines the error taxonomy shared by the simulation,
// metrics and optimization components.
package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
)

// Kind classifies an engine error
type Kind string

const (
	// KindConfiguration covers bad capital, commission, grid or metric input.
	KindConfiguration Kind = "CONFIG"
	// KindData covers malformed or out-of-order bar input.
	KindData Kind = "DATA"
	// KindStrategy covers illegal signals and strategy failures.
	KindStrategy Kind = "STRATEGY"
	// KindBacktest covers engine-internal failures during a run.
	KindBacktest Kind = "BACKTEST"
	// KindCache covers result store failures.
	KindCache Kind = "CACHE"
)

// EngineError is a categorized error with the component and operation that
// produced it.
type EngineError struct {
	Kind       Kind
	Component  string
	Operation  string
	Message    string
	Underlying error
	Context    map[string]any
}

// Error implements the error interface
func (e *EngineError) Error() string {
	msg := fmt.Sprintf("[%s:%s] %s: %s", e.Kind, e.Component, e.Operation, e.Message)
	if e.Underlying != nil {
		msg += ": " + e.Underlying.Error()
	}
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			msg += fmt.Sprintf(" %s=%v", k, e.Context[k])
		}
	}
	return msg
}

// Unwrap returns the underlying error
func (e *EngineError) Unwrap() error {
	return e.Underlying
}

// WithContext attaches a key/value pair to the error.
func (e *EngineError) WithContext(key string, value any) *EngineError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// New creates a categorized error.
func New(kind Kind, component, operation, message string) *EngineError {
	return &EngineError{
		Kind:      kind,
		Component: component,
		Operation: operation,
		Message:   message,
	}
}

// Wrap wraps err with engine error context. Wrap(nil, ...) returns nil.
func Wrap(err error, kind Kind, component, operation string) *EngineError {
	if err == nil {
		return nil
	}
	return &EngineError{
		Kind:       kind,
		Component:  component,
		Operation:  operation,
		Message:    "operation failed",
		Underlying: err,
	}
}

// KindOf returns the kind of the first EngineError in err's chain.
func KindOf(err error) (Kind, bool) {
	var ee *EngineError
	if stderrors.As(err, &ee) {
		return ee.Kind, true
	}
	return "", false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

func NewConfigurationError(component, operation, message string) *EngineError {
	return New(KindConfiguration, component, operation, message)
}

func NewDataFetchError(component, operation, message string) *EngineError {
	return New(KindData, component, operation, message)
}

func NewStrategyError(component, operation, message string) *EngineError {
	return New(KindStrategy, component, operation, message)
}

func NewBacktestError(component, operation, message string) *EngineError {
	return New(KindBacktest, component, operation, message)
}

func NewCacheError(component, operation string, err error) *EngineError {
	return Wrap(err, KindCache, component, operation)
}

// Stats tracks error counts by kind, keeping the most recent errors.
type Stats struct {
	Total     int
	ByKind    map[Kind]int
	Recent    []error
	MaxRecent int
}

// NewStats creates a tracker that remembers up to maxRecent errors
func NewStats(maxRecent int) *Stats {
	return &Stats{
		ByKind:    make(map[Kind]int),
		Recent:    make([]error, 0, maxRecent),
		MaxRecent: maxRecent,
	}
}

// Record counts err. Errors without a kind are counted as backtest errors.
func (s *Stats) Record(err error) {
	if err == nil {
		return
	}
	kind, ok := KindOf(err)
	if !ok {
		kind = KindBacktest
	}
	s.Total++
	s.ByKind[kind]++

	s.Recent = append(s.Recent, err)
	if s.MaxRecent > 0 && len(s.Recent) > s.MaxRecent {
		s.Recent = s.Recent[1:]
	}
}

// Rate returns the share of recorded errors of the given kind.
func (s *Stats) Rate(kind Kind) float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.ByKind[kind]) / float64(s.Total)
}
