package dataterm

import (
	"errors"
	"fmt"
	"math"

	"github.com/cwbudde/sdfdataterm/internal/field"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r2"
)

// ErrOutOfRange is matched by errors.Is for any IndexError.
var ErrOutOfRange = &IndexError{}

// IndexError reports a location outside the evaluated fields.
type IndexError struct {
	X, Y       int
	Rows, Cols int
}

func (e *IndexError) Error() string {
	if e.Rows == 0 && e.Cols == 0 {
		return "index out of range"
	}
	return fmt.Sprintf("index out of range: (x=%d, y=%d) outside %dx%d field", e.X, e.Y, e.Rows, e.Cols)
}

func (e *IndexError) Is(target error) bool {
	_, ok := target.(*IndexError)
	return ok
}

// ConfigError reports an unusable evaluator configuration.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return "config error: " + e.Field + " " + e.Reason
}

// Config holds the tunable constants of the data term.
type Config struct {
	// Scale multiplies the data gradient. 10.0 reproduces the reference formulation.
	Scale float64 `json:"scale"`
}

// DefaultConfig returns the reference data-term configuration.
func DefaultConfig() Config {
	return Config{Scale: DefaultScale}
}

// Validate checks that the configuration yields finite outputs.
func (c Config) Validate() error {
	if math.IsNaN(c.Scale) || math.IsInf(c.Scale, 0) {
		return &ConfigError{Field: "Scale", Reason: "must be finite"}
	}
	return nil
}

// Fields bundles the four same-shaped inputs of the data term.
type Fields struct {
	WarpedLive    mat.Matrix
	Canonical     mat.Matrix
	LiveGradientX mat.Matrix
	LiveGradientY mat.Matrix
}

// NewFields pairs a warped live field with a canonical field and derives the
// live gradients with field.Gradient.
func NewFields(warpedLive, canonical mat.Matrix) (Fields, error) {
	if err := field.SameShape(warpedLive, canonical); err != nil {
		return Fields{}, err
	}
	gx, gy := field.Gradient(warpedLive)
	return Fields{
		WarpedLive:    warpedLive,
		Canonical:     canonical,
		LiveGradientX: gx,
		LiveGradientY: gy,
	}, nil
}

// Validate checks that all four fields are present and share one shape.
func (f Fields) Validate() error {
	return field.SameShape(f.WarpedLive, f.Canonical, f.LiveGradientX, f.LiveGradientY)
}

// Dims returns the shared rows and columns of the fields.
func (f Fields) Dims() (rows, cols int) {
	return f.WarpedLive.Dims()
}

// Result is the data term at a single cell.
type Result struct {
	Gradient r2.Vec  `json:"gradient"`
	Energy   float64 `json:"energy"`
}

// Evaluator applies the data-term kernel with a fixed configuration.
type Evaluator struct {
	config Config
}

// NewEvaluator creates an evaluator after validating the configuration.
func NewEvaluator(config Config) (*Evaluator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Evaluator{config: config}, nil
}

// Config returns the evaluator configuration.
func (e *Evaluator) Config() Config {
	return e.config
}

// At evaluates the data term at column x, row y after checking shapes and bounds.
func (e *Evaluator) At(f Fields, x, y int) (Result, error) {
	if err := f.Validate(); err != nil {
		return Result{}, err
	}
	if !field.InBounds(f.WarpedLive, x, y) {
		rows, cols := f.Dims()
		return Result{}, &IndexError{X: x, Y: y, Rows: rows, Cols: cols}
	}

	gx, gy, energy := AtLocation(f.WarpedLive, f.Canonical, x, y, f.LiveGradientX, f.LiveGradientY, e.config.Scale)
	return Result{Gradient: r2.Vec{X: gx, Y: gy}, Energy: energy}, nil
}

// IsOutOfRange reports whether err was caused by an out-of-range location.
func IsOutOfRange(err error) bool {
	return errors.Is(err, ErrOutOfRange)
}
