package align

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/cwbudde/sdfdataterm/internal/dataterm"
	"github.com/cwbudde/sdfdataterm/internal/opt"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r2"
)

// circleSDF creates a size x size signed distance field of a circle
func circleSDF(size int, center r2.Vec, radius float64) *mat.Dense {
	m := mat.NewDense(size, size, nil)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			p := r2.Vec{X: float64(x), Y: float64(y)}
			m.Set(y, x, r2.Norm(r2.Sub(p, center))-radius)
		}
	}
	return m
}

// newCircleProblem builds a problem whose exact solution is live center - canonical center
func newCircleProblem(t *testing.T) (*Problem, r2.Vec) {
	t.Helper()

	liveCenter := r2.Vec{X: 17, Y: 15.5}
	canonicalCenter := r2.Vec{X: 16, Y: 16}

	ev, err := dataterm.NewEvaluator(dataterm.DefaultConfig())
	if err != nil {
		t.Fatalf("NewEvaluator failed: %v", err)
	}

	p, err := NewProblem(circleSDF(32, liveCenter, 6), circleSDF(32, canonicalCenter, 6), ev)
	if err != nil {
		t.Fatalf("NewProblem failed: %v", err)
	}
	return p, r2.Sub(liveCenter, canonicalCenter)
}

func TestNewProblem_Errors(t *testing.T) {
	ev, _ := dataterm.NewEvaluator(dataterm.DefaultConfig())

	if _, err := NewProblem(circleSDF(8, r2.Vec{}, 1), circleSDF(8, r2.Vec{}, 1), nil); err == nil {
		t.Error("Expected error for nil evaluator")
	}

	if _, err := NewProblem(circleSDF(8, r2.Vec{}, 1), circleSDF(9, r2.Vec{}, 1), ev); err == nil {
		t.Error("Expected error for mismatched shapes")
	}
}

func TestProblemEnergy_ZeroAtSolution(t *testing.T) {
	ev, _ := dataterm.NewEvaluator(dataterm.DefaultConfig())
	f := circleSDF(16, r2.Vec{X: 8, Y: 8}, 3)

	p, err := NewProblem(f, f, ev)
	if err != nil {
		t.Fatalf("NewProblem failed: %v", err)
	}

	energy, err := p.Energy(context.Background(), r2.Vec{})
	if err != nil {
		t.Fatalf("Energy failed: %v", err)
	}
	if energy != 0 {
		t.Errorf("Identical fields should have zero energy, got %f", energy)
	}
}

func TestGradientDescent_RecoversTranslation(t *testing.T) {
	p, want := newCircleProblem(t)

	var iterations []Iteration
	result, err := GradientDescent(context.Background(), p, DefaultGradientConfig(), func(it Iteration) {
		iterations = append(iterations, it)
	})
	if err != nil {
		t.Fatalf("GradientDescent failed: %v", err)
	}

	if result.FinalEnergy >= result.InitialEnergy {
		t.Errorf("Energy should decrease: %f -> %f", result.InitialEnergy, result.FinalEnergy)
	}

	if math.Abs(result.Translation.X-want.X) > 0.25 || math.Abs(result.Translation.Y-want.Y) > 0.25 {
		t.Errorf("Expected translation near %v, got %v", want, result.Translation)
	}

	if len(iterations) != result.Iterations {
		t.Errorf("Observer saw %d iterations, result reports %d", len(iterations), result.Iterations)
	}
	if iterations[0].Translation != (r2.Vec{}) {
		t.Errorf("First iteration should start at the identity, got %v", iterations[0].Translation)
	}
}

func TestGradientDescent_InvalidConfig(t *testing.T) {
	p, _ := newCircleProblem(t)

	cfg := DefaultGradientConfig()
	cfg.MaxIterations = 0
	if _, err := GradientDescent(context.Background(), p, cfg, nil); err == nil {
		t.Error("Expected error for zero iterations")
	}

	cfg = DefaultGradientConfig()
	cfg.LearningRate = -1
	if _, err := GradientDescent(context.Background(), p, cfg, nil); err == nil {
		t.Error("Expected error for negative learning rate")
	}
}

func TestGradientDescent_Cancelled(t *testing.T) {
	p, _ := newCircleProblem(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := GradientDescent(ctx, p, DefaultGradientConfig(), nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestSearch_Mayfly(t *testing.T) {
	p, want := newCircleProblem(t)

	lastBest := math.Inf(1)
	result, err := Search(context.Background(), p, opt.NewMayfly(40, 20, 42), 3, func(it Iteration) {
		if it.Energy > lastBest {
			t.Errorf("Best energy increased at evaluation %d: %f -> %f", it.Index, lastBest, it.Energy)
		}
		lastBest = it.Energy
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if result.FinalEnergy > result.InitialEnergy {
		t.Errorf("Search must not report a worse energy: %f -> %f", result.InitialEnergy, result.FinalEnergy)
	}
	if math.Abs(result.Translation.X-want.X) > 0.5 || math.Abs(result.Translation.Y-want.Y) > 0.5 {
		t.Errorf("Expected translation near %v, got %v", want, result.Translation)
	}
	if result.Iterations == 0 {
		t.Error("Expected evaluation count to be recorded")
	}
}

func TestSearch_StopsPromptlyOnCancel(t *testing.T) {
	p, _ := newCircleProblem(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	observed := 0
	start := time.Now()
	_, err := Search(ctx, p, opt.NewMayfly(2000, 20, 3), 3, func(it Iteration) {
		observed++
		if observed == 5 {
			cancel()
		}
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if observed != 5 {
		t.Errorf("Expected no evaluations after cancellation, got %d observed", observed)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("Search took %v to return after cancellation", elapsed)
	}
}

func TestSearch_InvalidShift(t *testing.T) {
	p, _ := newCircleProblem(t)
	if _, err := Search(context.Background(), p, opt.NewMayfly(10, 20, 1), 0, nil); err == nil {
		t.Error("Expected error for zero max shift")
	}
}
