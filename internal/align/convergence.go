package align

import (
	"log/slog"
	"math"
)

// ConvergenceConfig defines when an alignment run stops making progress
type ConvergenceConfig struct {
	// Enabled controls whether convergence detection is active
	Enabled bool `json:"enabled"`

	// Patience is the number of iterations with no significant improvement before stopping
	Patience int `json:"patience"`

	// Threshold is the minimum relative energy decrease that counts as progress.
	// Relative improvement = (lastSignificant - energy) / lastSignificant
	Threshold float64 `json:"threshold"`
}

// DefaultConvergenceConfig returns sensible defaults for convergence detection
func DefaultConvergenceConfig() ConvergenceConfig {
	return ConvergenceConfig{
		Enabled:   true,
		Patience:  3,
		Threshold: 0.001, // 0.1% improvement
	}
}

// ConvergenceTracker tracks the energy history of a run and detects stagnation
type ConvergenceTracker struct {
	config          ConvergenceConfig
	history         []float64
	best            float64 // Lowest energy seen
	lastSignificant float64 // Last energy that was a significant improvement
	staleCount      int
}

// NewConvergenceTracker creates a new convergence tracker with the given config
func NewConvergenceTracker(config ConvergenceConfig) *ConvergenceTracker {
	return &ConvergenceTracker{
		config:          config,
		best:            math.Inf(1),
		lastSignificant: math.Inf(1),
	}
}

// Update records a new energy value and returns true if convergence is detected
func (c *ConvergenceTracker) Update(energy float64) bool {
	if !c.config.Enabled {
		return false
	}

	c.history = append(c.history, energy)
	if energy < c.best {
		c.best = energy
	}

	if len(c.history) == 1 {
		c.lastSignificant = energy
		return false
	}

	relativeImprovement := (c.lastSignificant - energy) / c.lastSignificant
	if relativeImprovement >= c.config.Threshold {
		c.lastSignificant = energy
		c.staleCount = 0
		return false
	}

	c.staleCount++
	slog.Debug("No significant energy improvement",
		"energy", energy,
		"last_significant", c.lastSignificant,
		"relative_improvement", relativeImprovement,
		"stale_count", c.staleCount,
		"patience", c.config.Patience,
	)

	return c.staleCount >= c.config.Patience
}

// Best returns the lowest energy seen so far
func (c *ConvergenceTracker) Best() float64 {
	return c.best
}

// History returns a copy of the energy history
func (c *ConvergenceTracker) History() []float64 {
	return append([]float64{}, c.history...)
}

// StaleCount returns the current number of iterations without improvement
func (c *ConvergenceTracker) StaleCount() int {
	return c.staleCount
}
