package optimizer

import (
	"github.com/marlinquant/backtester/pkg/errors"
)

// Axis is one parameter dimension of a grid: a name and the values to try.
type Axis struct {
	Name   string    `yaml:"name" json:"name"`
	Values []float64 `yaml:"values" json:"values"`
}

// Grid is an ordered set of parameter axes. The enumeration order is fixed:
// the last axis varies fastest, so combination indices are stable and ties
// can be broken by parameter order.
type Grid struct {
	Axes []Axis `yaml:"axes" json:"axes"`
}

// Validate rejects empty grids and empty axes. An empty grid is a fatal
// config error, never an empty result set.
func (g Grid) Validate() error {
	if len(g.Axes) == 0 {
		return errors.New(errors.ErrCodeEmptyGrid, "grid has no parameter axes")
	}

	for _, axis := range g.Axes {
		if axis.Name == "" {
			return errors.New(errors.ErrCodeEmptyGrid, "grid axis has no name")
		}

		if len(axis.Values) == 0 {
			return errors.Newf(errors.ErrCodeEmptyGrid, "grid axis %q has no values", axis.Name)
		}
	}

	return nil
}

// Size returns the number of combinations: the product of the axis
// cardinalities.
func (g Grid) Size() int {
	if len(g.Axes) == 0 {
		return 0
	}

	size := 1
	for _, axis := range g.Axes {
		size *= len(axis.Values)
	}

	return size
}

// Combination materializes combination i as a parameter map, decoding the
// index with the last axis varying fastest.
func (g Grid) Combination(i int) map[string]float64 {
	params := make(map[string]float64, len(g.Axes))

	for axis := len(g.Axes) - 1; axis >= 0; axis-- {
		n := len(g.Axes[axis].Values)
		params[g.Axes[axis].Name] = g.Axes[axis].Values[i%n]
		i /= n
	}

	return params
}
