package tsdf

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// GaussianBlur smooths m with a separable ksize x ksize Gaussian, replicating
// border cells. Weights follow OpenCV for a zero sigma argument: fixed
// tables up to size 7, the sigma rule above that.
func GaussianBlur(m mat.Matrix, ksize int) (*mat.Dense, error) {
	if ksize <= 0 || ksize%2 == 0 {
		return nil, fmt.Errorf("gaussian kernel size must be positive and odd, got %d", ksize)
	}

	kernel := gaussianKernel(ksize)
	half := ksize / 2
	rows, cols := m.Dims()

	horizontal := mat.NewDense(rows, cols, nil)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			var sum float64
			for k, w := range kernel {
				sum += w * m.At(y, clampIndex(x+k-half, cols))
			}
			horizontal.Set(y, x, sum)
		}
	}

	out := mat.NewDense(rows, cols, nil)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			var sum float64
			for k, w := range kernel {
				sum += w * horizontal.At(clampIndex(y+k-half, rows), x)
			}
			out.Set(y, x, sum)
		}
	}

	return out, nil
}

// smallGaussianKernels are OpenCV's fixed kernels for odd sizes up to 7
// with a zero sigma argument.
var smallGaussianKernels = map[int][]float64{
	1: {1},
	3: {0.25, 0.5, 0.25},
	5: {0.0625, 0.25, 0.375, 0.25, 0.0625},
	7: {0.03125, 0.109375, 0.21875, 0.28125, 0.21875, 0.109375, 0.03125},
}

func gaussianKernel(ksize int) []float64 {
	if k, ok := smallGaussianKernels[ksize]; ok {
		return append([]float64(nil), k...)
	}

	sigma := 0.3*(float64(ksize-1)*0.5-1) + 0.8
	half := ksize / 2

	kernel := make([]float64, ksize)
	for i := range kernel {
		d := float64(i - half)
		kernel[i] = math.Exp(-(d * d) / (2 * sigma * sigma))
	}
	floats.Scale(1/floats.Sum(kernel), kernel)
	return kernel
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
