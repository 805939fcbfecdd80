package opt

import "context"

// Optimizer minimizes an objective over a box-bounded parameter space.
type Optimizer interface {
	// Run minimizes eval over the dim-dimensional box [lower, upper] and
	// returns the best parameters found together with their cost. Once ctx
	// is done eval is no longer called and the remaining budget is spent
	// on +Inf costs.
	Run(ctx context.Context, eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64)
}
