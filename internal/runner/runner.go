// Package runner executes one alignment run end to end: load the field
// pair, align, and persist the record, trace and energy plot.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cwbudde/sdfdataterm/internal/align"
	"github.com/cwbudde/sdfdataterm/internal/binding"
	"github.com/cwbudde/sdfdataterm/internal/dataterm"
	"github.com/cwbudde/sdfdataterm/internal/opt"
	"github.com/cwbudde/sdfdataterm/internal/store"
	"github.com/cwbudde/sdfdataterm/internal/tsdf"
	"github.com/cwbudde/sdfdataterm/internal/viz"
	"gonum.org/v1/gonum/mat"
)

const (
	MethodGradient = "gradient"
	MethodMayfly   = "mayfly"
)

// EnergyPlotName is the energy curve written next to a run's record.
const EnergyPlotName = "energy.png"

// ApplyDefaults fills unset fields of cfg.
func ApplyDefaults(cfg *store.RunConfig) {
	if cfg.Method == "" {
		cfg.Method = MethodGradient
	}
	if cfg.Scale == 0 {
		cfg.Scale = dataterm.DefaultScale
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 100
	}
	switch cfg.Method {
	case MethodGradient:
		if cfg.LearningRate == 0 {
			cfg.LearningRate = align.DefaultGradientConfig().LearningRate
		}
	case MethodMayfly:
		if cfg.PopSize <= 0 {
			cfg.PopSize = opt.MinPopSize
		}
		if cfg.MaxShift == 0 {
			cfg.MaxShift = 8
		}
	}
}

// Validate rejects configurations Run cannot execute.
func Validate(cfg store.RunConfig) error {
	if cfg.Method != MethodGradient && cfg.Method != MethodMayfly {
		return fmt.Errorf("unknown method: %s", cfg.Method)
	}
	if err := (dataterm.Config{Scale: cfg.Scale}).Validate(); err != nil {
		return err
	}
	if cfg.MaxIterations <= 0 {
		return fmt.Errorf("max iterations must be positive, got %d", cfg.MaxIterations)
	}
	if cfg.Method == MethodMayfly {
		if cfg.PopSize < opt.MinPopSize {
			return fmt.Errorf("population size must be at least %d, got %d", opt.MinPopSize, cfg.PopSize)
		}
		if cfg.MaxShift <= 0 {
			return fmt.Errorf("max shift must be positive, got %v", cfg.MaxShift)
		}
	}
	return nil
}

// LoadPair resolves the fields of a run: the inline pair if given, else the
// pair file at cfg.PairPath, else the generated reference pair.
func LoadPair(cfg store.RunConfig, inline *binding.FieldPair) (live, canonical *mat.Dense, err error) {
	switch {
	case inline != nil:
		return inline.Dense()
	case cfg.PairPath != "":
		pair, err := binding.LoadFieldPair(cfg.PairPath)
		if err != nil {
			return nil, nil, err
		}
		return pair.Dense()
	default:
		return tsdf.InitialPair(tsdf.DefaultPairConfig())
	}
}

// Run aligns live to canonical and saves the outcome under runID.
// progress, if not nil, is called for every traced iteration.
func Run(ctx context.Context, s *store.FSStore, runID string, cfg store.RunConfig, live, canonical *mat.Dense, progress align.Observer) (*store.Record, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}

	ev, err := dataterm.NewEvaluator(dataterm.Config{Scale: cfg.Scale})
	if err != nil {
		return nil, err
	}
	problem, err := align.NewProblem(live, canonical, ev)
	if err != nil {
		return nil, err
	}

	trace, err := store.NewTraceWriter(s.BaseDir(), runID, false)
	if err != nil {
		return nil, err
	}
	defer trace.Close()

	var energies []float64
	observe := func(it align.Iteration) {
		energies = append(energies, it.Energy)
		entry := store.TraceEntry{
			Iteration:   it.Index,
			Energy:      it.Energy,
			Translation: [2]float64{it.Translation.X, it.Translation.Y},
			Timestamp:   time.Now(),
		}
		if err := trace.Write(entry); err != nil {
			slog.Warn("Failed to write trace entry", "run_id", runID, "error", err)
		}
		if progress != nil {
			progress(it)
		}
	}

	slog.Info("Starting run", "run_id", runID, "method", cfg.Method, "scale", cfg.Scale)
	start := time.Now()

	var result *align.Result
	switch cfg.Method {
	case MethodGradient:
		gc := align.DefaultGradientConfig()
		gc.LearningRate = cfg.LearningRate
		gc.MaxIterations = cfg.MaxIterations
		result, err = align.GradientDescent(ctx, problem, gc, observe)
	case MethodMayfly:
		optimizer := opt.NewMayfly(cfg.MaxIterations, cfg.PopSize, cfg.Seed)
		result, err = align.Search(ctx, problem, optimizer, cfg.MaxShift, observe)
	}
	if err != nil {
		return nil, err
	}

	if err := trace.Flush(); err != nil {
		return nil, err
	}

	record := store.NewRecord(runID,
		[2]float64{result.Translation.X, result.Translation.Y},
		result.InitialEnergy, result.FinalEnergy,
		result.Iterations, result.Converged, cfg)
	if err := s.SaveRecord(runID, record); err != nil {
		return nil, err
	}

	if err := writeEnergyPlot(s.RunDir(runID), runID, energies); err != nil {
		slog.Warn("Failed to write energy plot", "run_id", runID, "error", err)
	}

	slog.Info("Run complete",
		"run_id", runID,
		"elapsed", time.Since(start),
		"iterations", result.Iterations,
		"initial_energy", result.InitialEnergy,
		"final_energy", result.FinalEnergy,
	)
	return record, nil
}

func writeEnergyPlot(dir, runID string, energies []float64) error {
	if len(energies) == 0 {
		return nil
	}
	f, err := os.Create(filepath.Join(dir, EnergyPlotName))
	if err != nil {
		return fmt.Errorf("failed to create energy plot: %w", err)
	}
	defer f.Close()
	return viz.EnergyPNG(f, energies, "run "+runID, viz.DefaultSize)
}
