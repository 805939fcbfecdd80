package dataterm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/cwbudde/sdfdataterm/internal/field"
	"gonum.org/v1/gonum/mat"
)

// ---------------------- Test Utilities ----------------------

// cellFields builds 3x3 fields that hold the given values at (x=1, y=1)
func cellFields(live, canonical, gradX, gradY float64) Fields {
	mk := func(v float64) *mat.Dense {
		m := field.New(3, 3, 0.25)
		m.Set(1, 1, v)
		return m
	}
	return Fields{
		WarpedLive:    mk(live),
		Canonical:     mk(canonical),
		LiveGradientX: mk(gradX),
		LiveGradientY: mk(gradY),
	}
}

// randomField creates a field with values in [-1, 1)
func randomField(rows, cols int, rng *rand.Rand) *mat.Dense {
	m := mat.NewDense(rows, cols, nil)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			m.Set(y, x, rng.Float64()*2-1)
		}
	}
	return m
}

func mustEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	ev, err := NewEvaluator(DefaultConfig())
	if err != nil {
		t.Fatalf("NewEvaluator failed: %v", err)
	}
	return ev
}

// ---------------------- Kernel ----------------------

func TestAtLocation_KnownValues(t *testing.T) {
	f := cellFields(1.0, 0.5, 2.0, -1.0)

	gx, gy, energy := AtLocation(f.WarpedLive, f.Canonical, 1, 1, f.LiveGradientX, f.LiveGradientY, DefaultScale)

	if gx != 10.0 {
		t.Errorf("Expected gradient x = 10.0, got %f", gx)
	}
	if gy != -5.0 {
		t.Errorf("Expected gradient y = -5.0, got %f", gy)
	}
	if energy != 0.125 {
		t.Errorf("Expected energy = 0.125, got %f", energy)
	}
}

func TestAtLocation_Formula(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 100; i++ {
		live := rng.Float64()*2 - 1
		canonical := rng.Float64()*2 - 1
		gradX := rng.Float64()*4 - 2
		gradY := rng.Float64()*4 - 2
		f := cellFields(live, canonical, gradX, gradY)

		gx, gy, energy := AtLocation(f.WarpedLive, f.Canonical, 1, 1, f.LiveGradientX, f.LiveGradientY, DefaultScale)

		diff := live - canonical
		if gx != diff*gradX*10.0 {
			t.Fatalf("gx = %v, expected %v", gx, diff*gradX*10.0)
		}
		if gy != diff*gradY*10.0 {
			t.Fatalf("gy = %v, expected %v", gy, diff*gradY*10.0)
		}
		if energy != 0.5*diff*diff {
			t.Fatalf("energy = %v, expected %v", energy, 0.5*diff*diff)
		}
	}
}

func TestAtLocation_EqualValuesGiveZero(t *testing.T) {
	f := cellFields(0.3, 0.3, 123.0, -77.0)

	gx, gy, energy := AtLocation(f.WarpedLive, f.Canonical, 1, 1, f.LiveGradientX, f.LiveGradientY, DefaultScale)

	if gx != 0 || gy != 0 || energy != 0 {
		t.Errorf("Expected all zero outputs, got gx=%f gy=%f energy=%f", gx, gy, energy)
	}
}

func TestAtLocation_SwapNegatesGradient(t *testing.T) {
	f := cellFields(0.8, -0.1, 1.5, 0.7)
	swapped := cellFields(-0.1, 0.8, 1.5, 0.7)

	gx1, gy1, e1 := AtLocation(f.WarpedLive, f.Canonical, 1, 1, f.LiveGradientX, f.LiveGradientY, DefaultScale)
	gx2, gy2, e2 := AtLocation(swapped.WarpedLive, swapped.Canonical, 1, 1, swapped.LiveGradientX, swapped.LiveGradientY, DefaultScale)

	if gx1 != -gx2 || gy1 != -gy2 {
		t.Errorf("Swapping fields should negate gradient: (%f, %f) vs (%f, %f)", gx1, gy1, gx2, gy2)
	}
	if e1 != e2 {
		t.Errorf("Swapping fields should keep energy: %f vs %f", e1, e2)
	}
}

func TestAtLocation_DoubleGradient(t *testing.T) {
	f := cellFields(0.6, 0.2, 0.75, -1.25)
	doubled := cellFields(0.6, 0.2, 1.5, -2.5)

	gx1, gy1, e1 := AtLocation(f.WarpedLive, f.Canonical, 1, 1, f.LiveGradientX, f.LiveGradientY, DefaultScale)
	gx2, gy2, e2 := AtLocation(doubled.WarpedLive, doubled.Canonical, 1, 1, doubled.LiveGradientX, doubled.LiveGradientY, DefaultScale)

	if gx2 != 2*gx1 || gy2 != 2*gy1 {
		t.Errorf("Doubling gradient fields should double output: (%f, %f) vs (%f, %f)", gx1, gy1, gx2, gy2)
	}
	if e1 != e2 {
		t.Errorf("Doubling gradient fields should keep energy: %f vs %f", e1, e2)
	}
}

func TestAtLocation_ScaleIsInjectable(t *testing.T) {
	f := cellFields(1.0, 0.5, 2.0, -1.0)

	gx, gy, energy := AtLocation(f.WarpedLive, f.Canonical, 1, 1, f.LiveGradientX, f.LiveGradientY, 1.0)

	if gx != 1.0 || gy != -0.5 {
		t.Errorf("Expected (1.0, -0.5) with unit scale, got (%f, %f)", gx, gy)
	}
	if energy != 0.125 {
		t.Errorf("Scale must not affect energy, got %f", energy)
	}
}

func TestAtLocation_RowIsY(t *testing.T) {
	// Non-square fields catch swapped indices
	live := mat.NewDense(2, 3, []float64{
		0, 0, 0,
		0, 0, 1,
	})
	canonical := field.New(2, 3, 0)
	ones := field.New(2, 3, 1)

	_, _, energy := AtLocation(live, canonical, 2, 1, ones, ones, DefaultScale)
	if energy != 0.5 {
		t.Errorf("Expected energy 0.5 at (x=2, y=1), got %f", energy)
	}
}

// ---------------------- Evaluator ----------------------

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		scale   float64
		wantErr bool
	}{
		{10, false},
		{0, false},
		{-3, false},
		{math.NaN(), true},
		{math.Inf(1), true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v", tt.scale), func(t *testing.T) {
			_, err := NewEvaluator(Config{Scale: tt.scale})
			if (err != nil) != tt.wantErr {
				t.Errorf("NewEvaluator(scale=%v) error = %v, wantErr %v", tt.scale, err, tt.wantErr)
			}
		})
	}
}

func TestEvaluatorAt(t *testing.T) {
	ev := mustEvaluator(t)
	f := cellFields(1.0, 0.5, 2.0, -1.0)

	res, err := ev.At(f, 1, 1)
	if err != nil {
		t.Fatalf("At failed: %v", err)
	}

	if res.Gradient.X != 10.0 || res.Gradient.Y != -5.0 {
		t.Errorf("Expected gradient (10, -5), got (%f, %f)", res.Gradient.X, res.Gradient.Y)
	}
	if res.Energy != 0.125 {
		t.Errorf("Expected energy 0.125, got %f", res.Energy)
	}
}

func TestEvaluatorAt_OutOfRange(t *testing.T) {
	ev := mustEvaluator(t)
	f := cellFields(1.0, 0.5, 2.0, -1.0)

	for _, loc := range [][2]int{{3, 0}, {0, 3}, {-1, 1}, {1, -1}} {
		_, err := ev.At(f, loc[0], loc[1])
		if !errors.Is(err, ErrOutOfRange) {
			t.Errorf("At(%d, %d): expected ErrOutOfRange, got %v", loc[0], loc[1], err)
		}
		if !IsOutOfRange(err) {
			t.Errorf("IsOutOfRange should report true for %v", err)
		}
	}
}

func TestEvaluatorAt_ShapeMismatch(t *testing.T) {
	ev := mustEvaluator(t)
	f := cellFields(1.0, 0.5, 2.0, -1.0)
	f.LiveGradientY = field.New(4, 3, 0)

	_, err := ev.At(f, 1, 1)
	var shapeErr *field.ShapeError
	if !errors.As(err, &shapeErr) {
		t.Errorf("Expected ShapeError, got %v", err)
	}
}

func TestNewFields_DerivesGradients(t *testing.T) {
	live := mat.NewDense(3, 3, []float64{
		0, 1, 2,
		0, 1, 2,
		0, 1, 2,
	})
	canonical := field.New(3, 3, 0)

	f, err := NewFields(live, canonical)
	if err != nil {
		t.Fatalf("NewFields failed: %v", err)
	}

	if f.LiveGradientX.At(1, 1) != 1 || f.LiveGradientY.At(1, 1) != 0 {
		t.Errorf("Unexpected derived gradient (%f, %f)", f.LiveGradientX.At(1, 1), f.LiveGradientY.At(1, 1))
	}
}

// ---------------------- Field-wide evaluation ----------------------

func TestEvaluate_MatchesKernel(t *testing.T) {
	ev := mustEvaluator(t)
	rng := rand.New(rand.NewSource(7))

	sizes := []struct{ rows, cols int }{
		{1, 1},
		{5, 3},
		{17, 23},
	}

	for _, sz := range sizes {
		t.Run(fmt.Sprintf("%dx%d", sz.rows, sz.cols), func(t *testing.T) {
			f, err := NewFields(randomField(sz.rows, sz.cols, rng), randomField(sz.rows, sz.cols, rng))
			if err != nil {
				t.Fatalf("NewFields failed: %v", err)
			}

			res, err := ev.Evaluate(context.Background(), f, 4)
			if err != nil {
				t.Fatalf("Evaluate failed: %v", err)
			}

			var total float64
			for y := 0; y < sz.rows; y++ {
				for x := 0; x < sz.cols; x++ {
					gx, gy, energy := AtLocation(f.WarpedLive, f.Canonical, x, y, f.LiveGradientX, f.LiveGradientY, DefaultScale)
					if res.GradientX.At(y, x) != gx || res.GradientY.At(y, x) != gy || res.Energy.At(y, x) != energy {
						t.Fatalf("Mismatch at (%d, %d)", x, y)
					}
					total += energy
				}
			}

			if math.Abs(res.TotalEnergy-total) > 1e-9 {
				t.Errorf("TotalEnergy = %f, expected %f", res.TotalEnergy, total)
			}
		})
	}
}

func TestEvaluate_Cancelled(t *testing.T) {
	ev := mustEvaluator(t)
	rng := rand.New(rand.NewSource(1))
	f, _ := NewFields(randomField(64, 64, rng), randomField(64, 64, rng))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ev.Evaluate(ctx, f, 2)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestFieldResult_MeanGradient(t *testing.T) {
	res := &FieldResult{
		GradientX: mat.NewDense(1, 2, []float64{1, 3}),
		GradientY: mat.NewDense(1, 2, []float64{-2, 0}),
	}

	mean := res.MeanGradient()
	if mean.X != 2 || mean.Y != -1 {
		t.Errorf("Expected mean (2, -1), got (%f, %f)", mean.X, mean.Y)
	}
}

func BenchmarkAtLocation(b *testing.B) {
	f := cellFields(1.0, 0.5, 2.0, -1.0)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		AtLocation(f.WarpedLive, f.Canonical, 1, 1, f.LiveGradientX, f.LiveGradientY, DefaultScale)
	}
}

func BenchmarkEvaluate128(b *testing.B) {
	ev, _ := NewEvaluator(DefaultConfig())
	rng := rand.New(rand.NewSource(3))
	f, _ := NewFields(randomField(128, 128, rng), randomField(128, 128, rng))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ev.Evaluate(context.Background(), f, 0)
	}
}
