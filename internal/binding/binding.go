// Package binding translates host-side values (nested slices, JSON, flat
// float32 buffers) into the gonum fields the data term works on, and packs
// the results back. It adds no semantics of its own.
package binding

import (
	"fmt"

	"github.com/cwbudde/sdfdataterm/internal/dataterm"
	"github.com/cwbudde/sdfdataterm/internal/field"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r2"
)

// Request carries the four fields by value plus the location to evaluate.
// Both gradient fields may be omitted, in which case they are derived from
// the warped live field.
type Request struct {
	WarpedLive    [][]float64 `json:"warpedLive"`
	Canonical     [][]float64 `json:"canonical"`
	LiveGradientX [][]float64 `json:"liveGradientX,omitempty"`
	LiveGradientY [][]float64 `json:"liveGradientY,omitempty"`
	X             int         `json:"x"`
	Y             int         `json:"y"`
}

// Response is the host-facing (gradient vector, energy) pair.
type Response struct {
	Gradient [2]float64 `json:"gradient"`
	Energy   float64    `json:"energy"`
}

// Tuple returns the response as a 2-vector and a scalar.
func (r Response) Tuple() (r2.Vec, float64) {
	return r2.Vec{X: r.Gradient[0], Y: r.Gradient[1]}, r.Energy
}

// Fields converts the request into evaluator inputs.
func (req Request) Fields() (dataterm.Fields, error) {
	live, err := convert("warpedLive", req.WarpedLive)
	if err != nil {
		return dataterm.Fields{}, err
	}
	canonical, err := convert("canonical", req.Canonical)
	if err != nil {
		return dataterm.Fields{}, err
	}

	if req.LiveGradientX == nil && req.LiveGradientY == nil {
		return dataterm.NewFields(live, canonical)
	}

	gx, err := convert("liveGradientX", req.LiveGradientX)
	if err != nil {
		return dataterm.Fields{}, err
	}
	gy, err := convert("liveGradientY", req.LiveGradientY)
	if err != nil {
		return dataterm.Fields{}, err
	}

	f := dataterm.Fields{
		WarpedLive:    live,
		Canonical:     canonical,
		LiveGradientX: gx,
		LiveGradientY: gy,
	}
	return f, f.Validate()
}

// DataTermAtLocation is the host entry point: convert, evaluate, pack.
func DataTermAtLocation(ev *dataterm.Evaluator, req Request) (Response, error) {
	f, err := req.Fields()
	if err != nil {
		return Response{}, err
	}

	res, err := ev.At(f, req.X, req.Y)
	if err != nil {
		return Response{}, err
	}

	return Response{
		Gradient: [2]float64{res.Gradient.X, res.Gradient.Y},
		Energy:   res.Energy,
	}, nil
}

func convert(name string, rows [][]float64) (*mat.Dense, error) {
	m, err := field.FromRows(rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return m, nil
}

// FromColumnMajor32 copies a column-major float32 buffer, the layout of an
// Eigen MatrixXf, into a dense field.
func FromColumnMajor32(rows, cols int, data []float32) (*mat.Dense, error) {
	if rows <= 0 || cols <= 0 {
		return nil, field.ErrEmpty
	}
	if len(data) != rows*cols {
		return nil, &field.ShapeError{
			Name:   "buffer",
			Reason: fmt.Sprintf("has %d values, expected %d for %dx%d", len(data), rows*cols, rows, cols),
		}
	}

	m := mat.NewDense(rows, cols, nil)
	for x := 0; x < cols; x++ {
		for y := 0; y < rows; y++ {
			m.Set(y, x, float64(data[x*rows+y]))
		}
	}
	return m, nil
}
