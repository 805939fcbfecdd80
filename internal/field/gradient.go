package field

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Gradient computes the spatial derivative of m along x (columns) and y (rows).
//
// Interior cells use central differences, border cells use one-sided
// differences. An axis of length 1 has zero derivative.
func Gradient(m mat.Matrix) (gx, gy *mat.Dense) {
	rows, cols := m.Dims()
	gx = mat.NewDense(rows, cols, nil)
	gy = mat.NewDense(rows, cols, nil)

	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			gx.Set(y, x, derivative(cols, x, func(i int) float64 { return m.At(y, i) }))
			gy.Set(y, x, derivative(rows, y, func(i int) float64 { return m.At(i, x) }))
		}
	}

	return gx, gy
}

func derivative(n, i int, at func(int) float64) float64 {
	switch {
	case n < 2:
		return 0
	case i == 0:
		return at(1) - at(0)
	case i == n-1:
		return at(n-1) - at(n-2)
	default:
		return (at(i+1) - at(i-1)) / 2
	}
}

// Sample reads m at a fractional location with bilinear interpolation.
// Locations outside the field take the value of the nearest border cell.
func Sample(m mat.Matrix, x, y float64) float64 {
	rows, cols := m.Dims()

	x = clamp(x, 0, float64(cols-1))
	y = clamp(y, 0, float64(rows-1))

	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	x1 := min(x0+1, cols-1)
	y1 := min(y0+1, rows-1)

	fx := x - float64(x0)
	fy := y - float64(y0)

	top := m.At(y0, x0)*(1-fx) + m.At(y0, x1)*fx
	bottom := m.At(y1, x0)*(1-fx) + m.At(y1, x1)*fx
	return top*(1-fy) + bottom*fy
}

// Shift resamples m under a rigid translation: out[y, x] = m(x+u, y+v).
func Shift(m mat.Matrix, u, v float64) *mat.Dense {
	rows, cols := m.Dims()
	out := mat.NewDense(rows, cols, nil)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			out.Set(y, x, Sample(m, float64(x)+u, float64(y)+v))
		}
	}
	return out
}

func clamp(val, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, val))
}
