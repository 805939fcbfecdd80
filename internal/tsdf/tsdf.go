package tsdf

import (
	"errors"
	"fmt"
	"math"

	"github.com/cwbudde/sdfdataterm/internal/field"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r2"
)

// NoCutoff leaves the region behind the narrow band unbounded.
var NoCutoff = math.Inf(1)

var (
	// ErrSurfaceTooClose is returned when a surface leaves no room for a full narrow band above it.
	ErrSurfaceTooClose = errors.New("surface is too close to 0 in the y dimension for a full narrow band representation")

	// ErrOutsideField is returned when a surface polyline leaves the field horizontally.
	ErrOutsideField = errors.New("surface polyline extends outside the field")
)

// AddSurface writes a truncated signed distance profile for an orthographic
// camera looking down +y at the polyline through points.
//
// For every column covered by a segment the cells in front of the band are
// set to +1, cells inside the band to the clamped normalized distance, and
// cells behind it to -1 unless backCutoff voxels limits the band depth.
func AddSurface(f *mat.Dense, points []r2.Vec, narrowBandVoxels int, backCutoff float64) error {
	if narrowBandVoxels < 2 {
		return fmt.Errorf("narrow band must be at least 2 voxels, got %d", narrowBandVoxels)
	}
	rows, cols := f.Dims()
	halfWidth := narrowBandVoxels / 2
	behind := math.Min(float64(halfWidth), backCutoff)

	for i := 0; i+1 < len(points); i++ {
		a, b := points[i], points[i+1]
		xDist := b.X - a.X

		for x := int(a.X); x < int(b.X); x++ {
			if x < 0 || x >= cols {
				return fmt.Errorf("column %d: %w", x, ErrOutsideField)
			}

			ratio := (float64(x) - a.X) / xDist
			surfaceY := a.Y*(1.0-ratio) + b.Y*ratio
			if surfaceY-float64(narrowBandVoxels) < 0 {
				return fmt.Errorf("column %d: %w", x, ErrSurfaceTooClose)
			}

			start := int(surfaceY - float64(halfWidth))
			end := int(surfaceY + behind + 1)

			for y := 0; y < min(start, rows); y++ {
				f.Set(y, x, 1.0)
			}
			for y := start; y < min(end, rows); y++ {
				distance := (surfaceY - float64(y)) / float64(halfWidth)
				f.Set(y, x, math.Min(math.Max(distance, -1.0), 1.0))
			}

			if end < rows && float64(end) < backCutoff {
				for y := end; y < rows; y++ {
					f.Set(y, x, -1.0)
				}
			}
		}
	}

	return nil
}

// Sample creates a size x size field filled with defaultValue and adds the surface to it.
func Sample(points []r2.Vec, size, narrowBandVoxels int, backCutoff, defaultValue float64) (*mat.Dense, error) {
	if size <= 0 {
		return nil, fmt.Errorf("field size must be positive, got %d", size)
	}
	f := field.New(size, size, defaultValue)
	if err := AddSurface(f, points, narrowBandVoxels, backCutoff); err != nil {
		return nil, err
	}
	return f, nil
}
