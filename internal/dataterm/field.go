package dataterm

import (
	"context"
	"log/slog"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r2"
)

// FieldResult holds the data term evaluated over every cell of a grid.
type FieldResult struct {
	GradientX   *mat.Dense
	GradientY   *mat.Dense
	Energy      *mat.Dense
	TotalEnergy float64
}

// MeanGradient returns the average data gradient over all cells.
func (r *FieldResult) MeanGradient() r2.Vec {
	rows, cols := r.GradientX.Dims()
	n := float64(rows * cols)
	return r2.Vec{
		X: mat.Sum(r.GradientX) / n,
		Y: mat.Sum(r.GradientY) / n,
	}
}

// Evaluate applies the kernel at every cell. Rows are split across workers
// goroutines; workers <= 0 uses one per CPU. Cancellation is checked between rows.
func (e *Evaluator) Evaluate(ctx context.Context, f Fields, workers int) (*FieldResult, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	rows, cols := f.Dims()
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = min(workers, rows)

	result := &FieldResult{
		GradientX: mat.NewDense(rows, cols, nil),
		GradientY: mat.NewDense(rows, cols, nil),
		Energy:    mat.NewDense(rows, cols, nil),
	}

	// Each worker owns whole rows, so the output matrices need no locking
	rowCh := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for y := range rowCh {
				for x := 0; x < cols; x++ {
					gx, gy, energy := AtLocation(f.WarpedLive, f.Canonical, x, y, f.LiveGradientX, f.LiveGradientY, e.config.Scale)
					result.GradientX.Set(y, x, gx)
					result.GradientY.Set(y, x, gy)
					result.Energy.Set(y, x, energy)
				}
			}
		}()
	}

	var err error
feed:
	for y := 0; y < rows; y++ {
		if err = ctx.Err(); err != nil {
			break
		}
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break feed
		case rowCh <- y:
		}
	}
	close(rowCh)
	wg.Wait()

	if err != nil {
		return nil, err
	}

	result.TotalEnergy = mat.Sum(result.Energy)

	slog.Debug("Data term evaluated",
		"rows", rows,
		"cols", cols,
		"workers", workers,
		"total_energy", result.TotalEnergy,
	)

	return result, nil
}
