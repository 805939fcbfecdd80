// Package align recovers a single rigid translation between a live and a
// canonical SDF by minimizing the total data-term energy.
package align

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/cwbudde/sdfdataterm/internal/dataterm"
	"github.com/cwbudde/sdfdataterm/internal/field"
	"github.com/cwbudde/sdfdataterm/internal/opt"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r2"
)

// Problem pairs the fields to align with the evaluator that scores them.
type Problem struct {
	Live      *mat.Dense
	Canonical *mat.Dense
	Evaluator *dataterm.Evaluator
	Workers   int // goroutines per field evaluation, <= 0 for one per CPU
}

// NewProblem validates the field pair.
func NewProblem(live, canonical *mat.Dense, ev *dataterm.Evaluator) (*Problem, error) {
	if ev == nil {
		return nil, fmt.Errorf("evaluator cannot be nil")
	}
	if err := field.SameShape(live, canonical); err != nil {
		return nil, err
	}
	return &Problem{Live: live, Canonical: canonical, Evaluator: ev}, nil
}

// Evaluate scores the live field translated by t.
func (p *Problem) Evaluate(ctx context.Context, t r2.Vec) (*dataterm.FieldResult, error) {
	warped := field.Shift(p.Live, t.X, t.Y)
	fields, err := dataterm.NewFields(warped, p.Canonical)
	if err != nil {
		return nil, err
	}
	return p.Evaluator.Evaluate(ctx, fields, p.Workers)
}

// Energy returns the total data energy of the live field translated by t.
func (p *Problem) Energy(ctx context.Context, t r2.Vec) (float64, error) {
	res, err := p.Evaluate(ctx, t)
	if err != nil {
		return 0, err
	}
	return res.TotalEnergy, nil
}

// Iteration is reported to observers once per gradient step or search evaluation.
type Iteration struct {
	Index       int
	Translation r2.Vec
	Energy      float64
}

// Observer receives alignment progress. It runs on the optimizer's goroutine.
type Observer func(Iteration)

// Result is the outcome of an alignment run.
type Result struct {
	Translation   r2.Vec
	InitialEnergy float64
	FinalEnergy   float64
	Iterations    int
	Converged     bool
}

// GradientConfig controls GradientDescent.
type GradientConfig struct {
	LearningRate  float64           `json:"learningRate"`
	MaxIterations int               `json:"maxIterations"`
	Convergence   ConvergenceConfig `json:"convergence"`
}

// DefaultGradientConfig returns settings that converge on unit-gradient SDFs.
func DefaultGradientConfig() GradientConfig {
	return GradientConfig{
		LearningRate:  0.1,
		MaxIterations: 100,
		Convergence:   DefaultConvergenceConfig(),
	}
}

// GradientDescent moves the translation against the mean data-term gradient
// until MaxIterations, convergence, or ctx cancellation.
func GradientDescent(ctx context.Context, p *Problem, cfg GradientConfig, observe Observer) (*Result, error) {
	if cfg.MaxIterations <= 0 {
		return nil, fmt.Errorf("max iterations must be positive, got %d", cfg.MaxIterations)
	}
	if cfg.LearningRate <= 0 || math.IsInf(cfg.LearningRate, 0) || math.IsNaN(cfg.LearningRate) {
		return nil, fmt.Errorf("learning rate must be positive and finite, got %v", cfg.LearningRate)
	}

	slog.Info("Starting gradient alignment",
		"learning_rate", cfg.LearningRate,
		"max_iterations", cfg.MaxIterations,
	)

	tracker := NewConvergenceTracker(cfg.Convergence)
	result := &Result{}
	var t r2.Vec

	for i := 0; i < cfg.MaxIterations; i++ {
		res, err := p.Evaluate(ctx, t)
		if err != nil {
			return nil, err
		}

		if i == 0 {
			result.InitialEnergy = res.TotalEnergy
		}
		result.Iterations = i + 1

		if observe != nil {
			observe(Iteration{Index: i, Translation: t, Energy: res.TotalEnergy})
		}

		if tracker.Update(res.TotalEnergy) {
			result.Converged = true
			break
		}

		t = r2.Sub(t, r2.Scale(cfg.LearningRate, res.MeanGradient()))
	}

	final, err := p.Energy(ctx, t)
	if err != nil {
		return nil, err
	}
	result.Translation = t
	result.FinalEnergy = final

	slog.Info("Gradient alignment complete",
		"iterations", result.Iterations,
		"converged", result.Converged,
		"initial_energy", result.InitialEnergy,
		"final_energy", result.FinalEnergy,
		"u", t.X,
		"v", t.Y,
	)

	return result, nil
}

// Search finds the translation in [-maxShift, maxShift]^2 with the lowest
// energy using a derivative-free optimizer. observe sees every evaluation
// with the best translation found so far.
func Search(ctx context.Context, p *Problem, optimizer opt.Optimizer, maxShift float64, observe Observer) (*Result, error) {
	if maxShift <= 0 {
		return nil, fmt.Errorf("max shift must be positive, got %v", maxShift)
	}

	initial, err := p.Energy(ctx, r2.Vec{})
	if err != nil {
		return nil, err
	}

	slog.Info("Starting translation search", "max_shift", maxShift, "initial_energy", initial)

	evals := 0
	best := Iteration{Energy: initial}
	eval := func(params []float64) float64 {
		if ctx.Err() != nil {
			return math.Inf(1)
		}
		t := r2.Vec{X: params[0], Y: params[1]}
		energy, err := p.Energy(ctx, t)
		if err != nil {
			return math.Inf(1)
		}
		if energy < best.Energy {
			best.Translation = t
			best.Energy = energy
		}
		if observe != nil {
			best.Index = evals
			observe(best)
		}
		evals++
		return energy
	}

	lower := []float64{-maxShift, -maxShift}
	upper := []float64{maxShift, maxShift}
	params, bestEnergy := optimizer.Run(ctx, eval, lower, upper, 2)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t := r2.Vec{X: params[0], Y: params[1]}
	result := &Result{
		Translation:   t,
		InitialEnergy: initial,
		FinalEnergy:   bestEnergy,
		Iterations:    evals,
	}

	// The search box includes the identity, never report a worse result than no shift
	if initial < bestEnergy {
		result.Translation = r2.Vec{}
		result.FinalEnergy = initial
	}

	slog.Info("Translation search complete",
		"evaluations", evals,
		"initial_energy", result.InitialEnergy,
		"final_energy", result.FinalEnergy,
		"u", result.Translation.X,
		"v", result.Translation.Y,
	)

	return result, nil
}
