package field

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrEmpty is returned when a field has no rows or no columns.
var ErrEmpty = errors.New("field is empty")

// ShapeError reports fields whose dimensions do not line up.
type ShapeError struct {
	Name     string
	Rows     int
	Cols     int
	WantRows int
	WantCols int
	Reason   string
}

func (e *ShapeError) Error() string {
	if e.Reason != "" {
		return "shape error: " + e.Name + " " + e.Reason
	}
	return fmt.Sprintf("shape error: %s is %dx%d, expected %dx%d", e.Name, e.Rows, e.Cols, e.WantRows, e.WantCols)
}

// New creates a rows x cols field with every cell set to fill.
func New(rows, cols int, fill float64) *mat.Dense {
	data := make([]float64, rows*cols)
	if fill != 0 {
		for i := range data {
			data[i] = fill
		}
	}
	return mat.NewDense(rows, cols, data)
}

// FromRows copies a row-major nested slice into a dense field.
// All rows must have the same, non-zero length.
func FromRows(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, ErrEmpty
	}

	cols := len(rows[0])
	data := make([]float64, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			return nil, &ShapeError{
				Name:   fmt.Sprintf("row %d", i),
				Reason: fmt.Sprintf("has %d columns, expected %d", len(row), cols),
			}
		}
		data = append(data, row...)
	}

	return mat.NewDense(len(rows), cols, data), nil
}

// ToRows copies a field into a freshly allocated row-major nested slice.
func ToRows(m mat.Matrix) [][]float64 {
	r, c := m.Dims()
	out := make([][]float64, r)
	for y := 0; y < r; y++ {
		out[y] = make([]float64, c)
		for x := 0; x < c; x++ {
			out[y][x] = m.At(y, x)
		}
	}
	return out
}

// SameShape checks that every matrix is non-nil and shaped like the first one.
func SameShape(ms ...mat.Matrix) error {
	if len(ms) == 0 {
		return nil
	}
	if ms[0] == nil {
		return &ShapeError{Name: "field 0", Reason: "is nil"}
	}

	wantR, wantC := ms[0].Dims()
	for i, m := range ms[1:] {
		if m == nil {
			return &ShapeError{Name: fmt.Sprintf("field %d", i+1), Reason: "is nil"}
		}
		r, c := m.Dims()
		if r != wantR || c != wantC {
			return &ShapeError{
				Name:     fmt.Sprintf("field %d", i+1),
				Rows:     r,
				Cols:     c,
				WantRows: wantR,
				WantCols: wantC,
			}
		}
	}
	return nil
}

// InBounds reports whether column x and row y address a cell of m.
func InBounds(m mat.Matrix, x, y int) bool {
	r, c := m.Dims()
	return x >= 0 && y >= 0 && x < c && y < r
}
