package tsdf

import (
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r2"
)

// Vertices are specified on integer coordinates; surfaceOffset moves them
// off the voxel grid so the band never hits cells dead-on.
const (
	surfaceOffset   = -0.23
	canonicalShiftY = 5.0
	etaBackCutoff   = 3
)

var surfaceVertices = []r2.Vec{
	{X: 9, Y: 56},
	{X: 14, Y: 66},
	{X: 23, Y: 72},
	{X: 35, Y: 72},
	{X: 44, Y: 65},
	{X: 54, Y: 60},
	{X: 63, Y: 60},
	{X: 69, Y: 64},
	{X: 76, Y: 71},
	{X: 84, Y: 73},
	{X: 91, Y: 72},
	{X: 106, Y: 63},
	{X: 109, Y: 57},
}

var extraSurfaceVertices = []r2.Vec{
	{X: 32, Y: 65},
	{X: 36, Y: 65},
	{X: 41, Y: 61},
}

// PairConfig controls the synthetic live / canonical pair.
type PairConfig struct {
	FieldSize        int     `json:"fieldSize"`
	NarrowBandVoxels int     `json:"narrowBandVoxels"`
	DefaultValue     float64 `json:"defaultValue"`

	// MimicEta cuts the canonical band 3 voxels behind the surface,
	// replicating the eta parameter of SobolevFusion Sec. 3.1.
	MimicEta bool `json:"mimicEta"`

	// Gaussian smoothing kernel sizes, 0 disables
	LiveSmoothing      int `json:"liveSmoothing"`
	CanonicalSmoothing int `json:"canonicalSmoothing"`
}

// DefaultPairConfig returns the 128x128 reference setup.
func DefaultPairConfig() PairConfig {
	return PairConfig{
		FieldSize:        128,
		NarrowBandVoxels: 20,
		DefaultValue:     1,
	}
}

// InitialPair generates a live field from a fixed polyline and a canonical
// field from the same polyline shifted 5 voxels deeper.
func InitialPair(cfg PairConfig) (live, canonical *mat.Dense, err error) {
	liveMain := offsetPoints(surfaceVertices, surfaceOffset)
	liveExtra := offsetPoints(extraSurfaceVertices, surfaceOffset)

	live, err = Sample(liveMain, cfg.FieldSize, cfg.NarrowBandVoxels, NoCutoff, cfg.DefaultValue)
	if err != nil {
		return nil, nil, fmt.Errorf("live surface: %w", err)
	}
	if err := AddSurface(live, liveExtra, cfg.NarrowBandVoxels, NoCutoff); err != nil {
		return nil, nil, fmt.Errorf("live extra surface: %w", err)
	}

	backCutoff := NoCutoff
	if cfg.MimicEta {
		backCutoff = etaBackCutoff
	}

	canonical, err = Sample(offsetPoints(liveMain, canonicalShiftY), cfg.FieldSize, cfg.NarrowBandVoxels, backCutoff, cfg.DefaultValue)
	if err != nil {
		return nil, nil, fmt.Errorf("canonical surface: %w", err)
	}
	if err := AddSurface(canonical, offsetPoints(liveExtra, canonicalShiftY), cfg.NarrowBandVoxels, backCutoff); err != nil {
		return nil, nil, fmt.Errorf("canonical extra surface: %w", err)
	}

	if cfg.LiveSmoothing > 0 {
		if live, err = GaussianBlur(live, cfg.LiveSmoothing); err != nil {
			return nil, nil, err
		}
	}
	if cfg.CanonicalSmoothing > 0 {
		if canonical, err = GaussianBlur(canonical, cfg.CanonicalSmoothing); err != nil {
			return nil, nil, err
		}
	}

	slog.Debug("Generated initial TSDF pair",
		"field_size", cfg.FieldSize,
		"narrow_band_voxels", cfg.NarrowBandVoxels,
		"mimic_eta", cfg.MimicEta,
	)

	return live, canonical, nil
}

func offsetPoints(points []r2.Vec, dy float64) []r2.Vec {
	out := make([]r2.Vec, len(points))
	for i, p := range points {
		out[i] = r2.Add(p, r2.Vec{Y: dy})
	}
	return out
}
