package opt

import (
	"context"
	"log/slog"
	"math"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// MayflyAdapter wraps the external Mayfly library to conform to our Optimizer interface
type MayflyAdapter struct {
	maxIters int
	popSize  int
	seed     int64
}

// MinPopSize is the smallest population the mayfly library accepts.
const MinPopSize = 20

// NewMayfly creates a new Mayfly optimizer adapter.
func NewMayfly(maxIters, popSize int, seed int64) Optimizer {
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  popSize,
		seed:     seed,
	}
}

// Run executes the Mayfly optimization using the external library.
//
// The library only accepts one scalar bound for every dimension, so the search
// runs in the unit cube and each candidate is mapped onto [lower[i], upper[i]]
// before it reaches eval. The library cannot be interrupted, so after ctx is
// done the objective answers +Inf without calling eval.
func (m *MayflyAdapter) Run(ctx context.Context, eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64) {
	toBounds := func(unit []float64) []float64 {
		params := make([]float64, dim)
		for i := 0; i < dim; i++ {
			u := math.Max(0, math.Min(1, unit[i]))
			params[i] = lower[i] + u*(upper[i]-lower[i])
		}
		return params
	}

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = func(unit []float64) float64 {
		if ctx.Err() != nil {
			return math.Inf(1)
		}
		return eval(toBounds(unit))
	}
	config.ProblemSize = dim
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize
	config.LowerBound = 0
	config.UpperBound = 1
	config.Rand = rand.New(rand.NewSource(m.seed))

	result, err := mayfly.Optimize(config)
	if err != nil {
		// Fall back to the center of the box
		slog.Warn("Mayfly optimization failed, using box center", "error", err)
		center := make([]float64, dim)
		for i := range center {
			center[i] = 0.5
		}
		params := toBounds(center)
		if ctx.Err() != nil {
			return params, math.Inf(1)
		}
		return params, eval(params)
	}

	return toBounds(result.GlobalBest.Position), result.GlobalBest.Cost
}
