package backtest

import (
	"fmt"

	engineerrors "github.com/ducminhle1904/strategy-backtester/internal/errors"
	"github.com/ducminhle1904/strategy-backtester/pkg/types"
)

// Combination is one point of an expanded parameter grid. Index is the
// position in enumeration order.
type Combination struct {
	Index      int
	Parameters types.ParameterSet
}

// ValidateGrid rejects empty grids, empty or duplicate names and empty
// value lists.
func ValidateGrid(grid types.ParameterGrid) error {
	if len(grid) == 0 {
		return engineerrors.NewConfigurationError("optimizer", "validate", "parameter grid is empty")
	}
	seen := make(map[string]struct{}, len(grid))
	for _, dim := range grid {
		if dim.Name == "" {
			return engineerrors.NewConfigurationError("optimizer", "validate", "parameter grid has an unnamed dimension")
		}
		if _, dup := seen[dim.Name]; dup {
			return engineerrors.NewConfigurationError("optimizer", "validate", fmt.Sprintf("parameter %q appears twice in grid", dim.Name))
		}
		seen[dim.Name] = struct{}{}
		if len(dim.Values) == 0 {
			return engineerrors.NewConfigurationError("optimizer", "validate", fmt.Sprintf("parameter %q has no candidate values", dim.Name))
		}
	}
	return nil
}

// ExpandGrid returns the cartesian product of the grid in declared order,
// the last dimension varying fastest. base supplies fixed parameters that
// grid values override.
func ExpandGrid(grid types.ParameterGrid, base types.ParameterSet) []Combination {
	total := grid.Size()
	combos := make([]Combination, 0, total)
	if total == 0 {
		return combos
	}

	digits := make([]int, len(grid))
	for index := 0; index < total; index++ {
		params := base.Clone()
		for d, dim := range grid {
			params[dim.Name] = dim.Values[digits[d]]
		}
		combos = append(combos, Combination{Index: index, Parameters: params})

		for d := len(grid) - 1; d >= 0; d-- {
			digits[d]++
			if digits[d] < len(grid[d].Values) {
				break
			}
			digits[d] = 0
		}
	}
	return combos
}
