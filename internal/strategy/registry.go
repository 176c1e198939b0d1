package strategy

import (
	"fmt"
	"sort"
	"sync"

	engineerrors "github.com/ducminhle1904/strategy-backtester/internal/errors"
	"github.com/ducminhle1904/strategy-backtester/pkg/types"
)

// Factory builds a fresh strategy instance from a parameter set.
type Factory func(params types.ParameterSet) (Strategy, error)

// Registry maps strategy identifiers to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// DefaultRegistry returns a registry holding the built-in strategies.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(RSIStrategyName, NewRSIStrategyFromParams)
	r.MustRegister(RSIMACrossStrategyName, NewRSIMACrossStrategyFromParams)
	r.MustRegister(RSIDivergenceStrategyName, NewRSIDivergenceStrategyFromParams)
	r.MustRegister(SMACrossStrategyName, NewSMACrossStrategyFromParams)
	return r
}

// Register adds a factory under id. Registering the same id twice fails.
func (r *Registry) Register(id string, factory Factory) error {
	if id == "" || factory == nil {
		return engineerrors.NewConfigurationError("registry", "Register", "strategy id and factory are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[id]; exists {
		return engineerrors.NewConfigurationError("registry", "Register", fmt.Sprintf("strategy %q already registered", id))
	}
	r.factories[id] = factory
	return nil
}

// MustRegister is Register that panics on error
func (r *Registry) MustRegister(id string, factory Factory) {
	if err := r.Register(id, factory); err != nil {
		panic(err)
	}
}

// Has reports whether id is registered
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[id]
	return ok
}

// New builds a strategy instance. Unknown ids are configuration errors.
func (r *Registry) New(id string, params types.ParameterSet) (Strategy, error) {
	r.mu.RLock()
	factory, ok := r.factories[id]
	r.mu.RUnlock()
	if !ok {
		return nil, engineerrors.NewConfigurationError("registry", "New", fmt.Sprintf("unknown strategy %q", id))
	}
	if params == nil {
		params = types.ParameterSet{}
	}
	return factory(params)
}

// List returns a sorted slice of all registered strategy ids.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func paramError(strategy string, err error) error {
	return engineerrors.Wrap(err, engineerrors.KindConfiguration, strategy, "parameters")
}

func invalidParam(strategy, message string) error {
	return engineerrors.NewConfigurationError(strategy, "parameters", message)
}
