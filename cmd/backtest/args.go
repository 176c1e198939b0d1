package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ducminhle1904/strategy-backtester/pkg/types"
)

// parseParams parses "name=value,name=value".
func parseParams(s string) (types.ParameterSet, error) {
	params := types.ParameterSet{}
	if strings.TrimSpace(s) == "" {
		return params, nil
	}
	for _, pair := range strings.Split(s, ",") {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid parameter %q, want name=value", pair)
		}
		params[name] = parseValue(value)
	}
	return params, nil
}

// parseGrid parses "name=v1,v2;name=v1,v2". Dimension order is kept.
func parseGrid(s string) (types.ParameterGrid, error) {
	var grid types.ParameterGrid
	if strings.TrimSpace(s) == "" {
		return grid, nil
	}
	seen := make(map[string]bool)
	for _, dim := range strings.Split(s, ";") {
		name, list, ok := strings.Cut(dim, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid grid dimension %q, want name=v1,v2", dim)
		}
		if seen[name] {
			return nil, fmt.Errorf("grid dimension %q given twice", name)
		}
		seen[name] = true

		var values []any
		for _, v := range strings.Split(list, ",") {
			if v = strings.TrimSpace(v); v != "" {
				values = append(values, parseValue(v))
			}
		}
		grid = append(grid, types.GridDimension{Name: name, Values: values})
	}
	return grid, nil
}

// parseValue returns an int, float64, bool or the trimmed string.
func parseValue(s string) any {
	s = strings.TrimSpace(s)
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}
