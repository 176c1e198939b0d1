package types

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ParameterSet maps a strategy parameter name to its value. Values are
// treated as immutable once a set has been handed to a simulation.
type ParameterSet map[string]any

// Clone returns a shallow copy of the set
func (ps ParameterSet) Clone() ParameterSet {
	clone := make(ParameterSet, len(ps))
	for k, v := range ps {
		clone[k] = v
	}
	return clone
}

// Keys returns the parameter names in sorted order.
func (ps ParameterSet) Keys() []string {
	keys := make([]string, 0, len(ps))
	for k := range ps {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Float returns the named parameter as float64, or def when it is absent.
func (ps ParameterSet) Float(name string, def float64) (float64, error) {
	v, ok := ps[name]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("parameter %q: %w", name, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("parameter %q: unsupported type %T", name, v)
	}
}

// Int returns the named parameter as int. Non-integral numbers are rejected.
func (ps ParameterSet) Int(name string, def int) (int, error) {
	v, ok := ps[name]
	if !ok || v == nil {
		return def, nil
	}
	if s, isString := v.(string); isString {
		i, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("parameter %q: %w", name, err)
		}
		return i, nil
	}
	f, err := ps.Float(name, float64(def))
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("parameter %q: expected integer, got %v", name, f)
	}
	return int(f), nil
}

// Bool returns the named parameter as bool.
func (ps ParameterSet) Bool(name string, def bool) (bool, error) {
	v, ok := ps[name]
	if !ok || v == nil {
		return def, nil
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(b)
		if err != nil {
			return false, fmt.Errorf("parameter %q: %w", name, err)
		}
		return parsed, nil
	default:
		return false, fmt.Errorf("parameter %q: unsupported type %T", name, v)
	}
}

// GridDimension is one named axis of a parameter grid.
type GridDimension struct {
	Name   string `json:"name" yaml:"name"`
	Values []any  `json:"values" yaml:"values"`
}

// ParameterGrid is an ordered list of dimensions. The declared order fixes
// the enumeration order of combinations.
type ParameterGrid []GridDimension

// Size returns the number of combinations in the cartesian product.
func (g ParameterGrid) Size() int {
	if len(g) == 0 {
		return 0
	}
	size := 1
	for _, dim := range g {
		size *= len(dim.Values)
	}
	return size
}

// Names returns the dimension names in declared order.
func (g ParameterGrid) Names() []string {
	names := make([]string, len(g))
	for i, dim := range g {
		names[i] = dim.Name
	}
	return names
}

// UnmarshalYAML decodes a mapping of name to value list while keeping the
// document order of the keys.
func (g *ParameterGrid) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.SequenceNode {
		var dims []GridDimension
		if err := node.Decode(&dims); err != nil {
			return err
		}
		*g = dims
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: parameter grid must be a mapping", node.Line)
	}

	grid := make(ParameterGrid, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		var values []any
		if value.Kind == yaml.SequenceNode {
			if err := value.Decode(&values); err != nil {
				return err
			}
		} else {
			var single any
			if err := value.Decode(&single); err != nil {
				return err
			}
			values = []any{single}
		}
		grid = append(grid, GridDimension{Name: key.Value, Values: values})
	}
	*g = grid
	return nil
}
