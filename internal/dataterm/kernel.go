package dataterm

import "gonum.org/v1/gonum/mat"

// DefaultScale weights the data gradient relative to the raw SDF residual.
const DefaultScale = 10.0

// AtLocation computes the data term of a KillingFusion / SobolevFusion style
// energy at column x, row y of a 2D grid.
//
//	difference = warpedLive[y, x] - canonical[y, x]
//	gx         = difference * liveGradX[y, x] * scale
//	gy         = difference * liveGradY[y, x] * scale
//	energy     = 0.5 * difference^2
//
// The location must be inside all four fields. No check is made here; an
// out-of-range index panics inside gonum. Use Evaluator.At for a checked call.
func AtLocation(warpedLive, canonical mat.Matrix, x, y int, liveGradX, liveGradY mat.Matrix, scale float64) (gx, gy, energy float64) {
	difference := warpedLive.At(y, x) - canonical.At(y, x)

	gx = difference * liveGradX.At(y, x) * scale
	gy = difference * liveGradY.At(y, x) * scale
	energy = 0.5 * difference * difference
	return gx, gy, energy
}
