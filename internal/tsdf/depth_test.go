package tsdf

import (
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/cwbudde/sdfdataterm/internal/field"
	"gonum.org/v1/gonum/mat"
)

// flatDepthImage is a 3x640 image seeing a wall at 1m everywhere
func flatDepthImage() *mat.Dense {
	return field.New(3, 640, 1000)
}

// wallConfig puts field row 8 exactly 1m in front of the camera
func wallConfig() DepthConfig {
	cfg := DefaultDepthConfig()
	cfg.FieldSize = 16
	cfg.ArrayOffset = [3]int{-8, 0, 242}
	cfg.NarrowBandVoxels = 10
	return cfg
}

func translation(tx, ty, tz float64) *mat.Dense {
	return mat.NewDense(4, 4, []float64{
		1, 0, 0, tx,
		0, 1, 0, ty,
		0, 0, 1, tz,
		0, 0, 0, 1,
	})
}

func TestFromDepthRow_FlatWall(t *testing.T) {
	for _, interp := range []DepthInterpolation{InterpolationNone, InterpolationBilinear} {
		t.Run(interp.String(), func(t *testing.T) {
			cfg := wallConfig()
			cfg.Interpolation = interp

			f, err := FromDepthRow(flatDepthImage(), DefaultCamera(), nil, 1, cfg)
			if err != nil {
				t.Fatalf("FromDepthRow failed: %v", err)
			}

			// distance to the wall is (8 - y) voxels, half band is 5 voxels
			for y := 0; y < cfg.FieldSize; y++ {
				want := math.Max(-1, math.Min(1, float64(8-y)/5))
				for x := 0; x < cfg.FieldSize; x++ {
					if math.Abs(f.At(y, x)-want) > 1e-9 {
						t.Fatalf("At (%d, %d): expected %f, got %f", x, y, want, f.At(y, x))
					}
				}
			}
		})
	}
}

func TestFromDepthRow_KeepsDefault(t *testing.T) {
	cfg := wallConfig()
	cfg.DefaultValue = 0.5

	tests := []struct {
		name      string
		depth     *mat.Dense
		extrinsic mat.Matrix
	}{
		{"no depth", field.New(3, 640, 0), nil},
		{"behind camera", flatDepthImage(), translation(0, 0, -2)},
		{"outside image", flatDepthImage(), translation(1, 0, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := FromDepthRow(tt.depth, DefaultCamera(), tt.extrinsic, 1, cfg)
			if err != nil {
				t.Fatalf("FromDepthRow failed: %v", err)
			}
			for y := 0; y < cfg.FieldSize; y++ {
				for x := 0; x < cfg.FieldSize; x++ {
					if f.At(y, x) != 0.5 {
						t.Fatalf("Expected default at (%d, %d), got %f", x, y, f.At(y, x))
					}
				}
			}
		})
	}
}

func TestFromDepthRow_ExtrinsicTranslation(t *testing.T) {
	cfg := wallConfig()
	base, err := FromDepthRow(flatDepthImage(), DefaultCamera(), nil, 1, cfg)
	if err != nil {
		t.Fatalf("FromDepthRow failed: %v", err)
	}

	// moving every voxel 2 voxels toward the camera shifts the surface 2 rows down
	moved, err := FromDepthRow(flatDepthImage(), DefaultCamera(), translation(0, 0, -2*cfg.VoxelSize), 1, cfg)
	if err != nil {
		t.Fatalf("FromDepthRow failed: %v", err)
	}

	for y := 2; y < cfg.FieldSize; y++ {
		if math.Abs(moved.At(y, 8)-base.At(y-2, 8)) > 1e-9 {
			t.Errorf("Row %d: expected %f, got %f", y, base.At(y-2, 8), moved.At(y, 8))
		}
	}
}

func TestFromDepthRow_Interpolation(t *testing.T) {
	// depth grows by one unit per pixel
	depth := mat.NewDense(3, 640, nil)
	for y := 0; y < 3; y++ {
		for x := 0; x < 640; x++ {
			depth.Set(y, x, 1000+float64(x))
		}
	}

	cfg := wallConfig()
	cfg.NarrowBandVoxels = 200 // half band 0.4m, nothing clamps

	// cell (9, 8) sits at x = 4mm, z = 1m and projects to column 322.8
	tests := []struct {
		interp   DepthInterpolation
		observed float64
	}{
		{InterpolationNone, 1.323},
		{InterpolationBilinear, 1.3228},
	}

	for _, tt := range tests {
		t.Run(tt.interp.String(), func(t *testing.T) {
			cfg.Interpolation = tt.interp
			f, err := FromDepthRow(depth, DefaultCamera(), nil, 1, cfg)
			if err != nil {
				t.Fatalf("FromDepthRow failed: %v", err)
			}
			want := (tt.observed - 1) / 0.4
			if math.Abs(f.At(8, 9)-want) > 1e-6 {
				t.Errorf("Expected %f, got %f", want, f.At(8, 9))
			}
		})
	}
}

func TestFromDepthRow_Errors(t *testing.T) {
	depth := flatDepthImage()
	cam := DefaultCamera()
	cfg := wallConfig()

	badVoxel := cfg
	badVoxel.VoxelSize = 0
	badInterp := cfg
	badInterp.Interpolation = DepthInterpolation(7)

	tests := []struct {
		name      string
		depth     mat.Matrix
		cam       Camera
		extrinsic mat.Matrix
		row       int
		cfg       DepthConfig
	}{
		{"row out of range", depth, cam, nil, 3, cfg},
		{"negative row", depth, cam, nil, -1, cfg},
		{"nil depth", nil, cam, nil, 0, cfg},
		{"missing intrinsics", depth, Camera{DepthUnitRatio: 0.001}, nil, 0, cfg},
		{"wrong intrinsics shape", depth, Camera{Intrinsics: mat.NewDense(2, 2, nil), DepthUnitRatio: 0.001}, nil, 0, cfg},
		{"zero depth ratio", depth, Camera{Intrinsics: cam.Intrinsics}, nil, 0, cfg},
		{"wrong extrinsic shape", depth, cam, mat.NewDense(3, 3, nil), 0, cfg},
		{"zero voxel size", depth, cam, nil, 0, badVoxel},
		{"unknown interpolation", depth, cam, nil, 0, badInterp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := FromDepthRow(tt.depth, tt.cam, tt.extrinsic, tt.row, tt.cfg); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestParseDepthInterpolation(t *testing.T) {
	for _, name := range []string{"none", "bilinear"} {
		interp, err := ParseDepthInterpolation(name)
		if err != nil {
			t.Fatalf("ParseDepthInterpolation(%q) failed: %v", name, err)
		}
		if interp.String() != name {
			t.Errorf("Expected %s, got %s", name, interp)
		}
	}
	if _, err := ParseDepthInterpolation("cubic"); err == nil {
		t.Error("Expected error for unknown interpolation")
	}
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("Failed to encode %s: %v", path, err)
	}
}

func TestLoadDepthPNG(t *testing.T) {
	dir := t.TempDir()

	img := image.NewGray16(image.Rect(0, 0, 3, 2))
	img.SetGray16(0, 0, color.Gray16{Y: 1000})
	img.SetGray16(2, 1, color.Gray16{Y: 65535})
	path := filepath.Join(dir, "depth.png")
	writePNG(t, path, img)

	m, err := LoadDepthPNG(path)
	if err != nil {
		t.Fatalf("LoadDepthPNG failed: %v", err)
	}
	if r, c := m.Dims(); r != 2 || c != 3 {
		t.Fatalf("Expected 2x3, got %dx%d", r, c)
	}
	if m.At(0, 0) != 1000 || m.At(1, 2) != 65535 || m.At(1, 0) != 0 {
		t.Errorf("Unexpected depth values %v", mat.Formatted(m))
	}

	gray := image.NewGray(image.Rect(0, 0, 1, 1))
	gray.SetGray(0, 0, color.Gray{Y: 255})
	grayPath := filepath.Join(dir, "gray.png")
	writePNG(t, grayPath, gray)

	m, err = LoadDepthPNG(grayPath)
	if err != nil {
		t.Fatalf("LoadDepthPNG failed: %v", err)
	}
	if m.At(0, 0) != 65535 {
		t.Errorf("Expected 8-bit white to widen to 65535, got %f", m.At(0, 0))
	}

	if _, err := LoadDepthPNG(filepath.Join(dir, "missing.png")); err == nil {
		t.Error("Expected error for missing file")
	}
}
