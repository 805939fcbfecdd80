package tsdf

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"

	"github.com/cwbudde/sdfdataterm/internal/field"
	"gonum.org/v1/gonum/mat"
)

// DepthInterpolation selects how a depth row is read at a projected column.
type DepthInterpolation int

const (
	// InterpolationNone reads the pixel nearest to the projected column.
	InterpolationNone DepthInterpolation = iota
	// InterpolationBilinear reads between pixels.
	InterpolationBilinear
)

func (d DepthInterpolation) String() string {
	switch d {
	case InterpolationNone:
		return "none"
	case InterpolationBilinear:
		return "bilinear"
	default:
		return fmt.Sprintf("DepthInterpolation(%d)", int(d))
	}
}

// ParseDepthInterpolation accepts "none" or "bilinear".
func ParseDepthInterpolation(s string) (DepthInterpolation, error) {
	switch s {
	case "none":
		return InterpolationNone, nil
	case "bilinear":
		return InterpolationBilinear, nil
	default:
		return 0, fmt.Errorf("unknown depth interpolation: %s", s)
	}
}

// Camera is a pinhole depth camera.
type Camera struct {
	// Intrinsics is the 3x3 projection matrix. Only fx (0,0) and cx (0,2)
	// matter for a single image row.
	Intrinsics mat.Matrix
	// DepthUnitRatio converts raw depth values to meters.
	DepthUnitRatio float64
}

// DefaultCamera returns a 640x480 camera with a 700 pixel focal length and
// millimeter depth.
func DefaultCamera() Camera {
	return Camera{
		Intrinsics: mat.NewDense(3, 3, []float64{
			700, 0, 320,
			0, 700, 240,
			0, 0, 1,
		}),
		DepthUnitRatio: 0.001,
	}
}

// DepthConfig controls FromDepthRow.
type DepthConfig struct {
	FieldSize    int     `json:"fieldSize"`
	DefaultValue float64 `json:"defaultValue"`
	// VoxelSize is the edge length of one cell in meters
	VoxelSize float64 `json:"voxelSize"`
	// ArrayOffset is the voxel position of cell (0, 0). The field spans the
	// x/z plane, so only the x and z components are used.
	ArrayOffset      [3]int             `json:"arrayOffset"`
	NarrowBandVoxels int                `json:"narrowBandVoxels"`
	Interpolation    DepthInterpolation `json:"interpolation"`
}

// DefaultDepthConfig returns a 128x128 field of 4mm voxels starting 64
// voxels in front of the camera.
func DefaultDepthConfig() DepthConfig {
	return DepthConfig{
		FieldSize:        128,
		DefaultValue:     1,
		VoxelSize:        0.004,
		ArrayOffset:      [3]int{-64, -64, 64},
		NarrowBandVoxels: 20,
		Interpolation:    InterpolationNone,
	}
}

func (c DepthConfig) validate() error {
	if c.FieldSize <= 0 {
		return fmt.Errorf("field size must be positive, got %d", c.FieldSize)
	}
	if c.VoxelSize <= 0 || math.IsInf(c.VoxelSize, 0) || math.IsNaN(c.VoxelSize) {
		return fmt.Errorf("voxel size must be positive and finite, got %v", c.VoxelSize)
	}
	if c.NarrowBandVoxels <= 0 {
		return fmt.Errorf("narrow band must be positive, got %d", c.NarrowBandVoxels)
	}
	if c.Interpolation != InterpolationNone && c.Interpolation != InterpolationBilinear {
		return fmt.Errorf("unknown depth interpolation: %v", c.Interpolation)
	}
	return nil
}

// FromDepthRow builds a TSDF over the x/z plane from one row of a depth
// image. Each cell center is moved into camera space by extrinsic (a 4x4
// [R|T] matrix, nil for identity), projected onto the image row and compared
// with the observed depth along the camera ray. Distances are normalized by
// half the narrow band and clamped to [-1, 1]. Cells behind the camera,
// projecting outside the image, or seeing no depth keep the default value.
func FromDepthRow(depth mat.Matrix, cam Camera, extrinsic mat.Matrix, row int, cfg DepthConfig) (*mat.Dense, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if depth == nil {
		return nil, fmt.Errorf("depth image cannot be nil")
	}
	depthRows, depthCols := depth.Dims()
	if row < 0 || row >= depthRows {
		return nil, fmt.Errorf("image row %d outside depth image with %d rows", row, depthRows)
	}
	if cam.Intrinsics == nil {
		return nil, fmt.Errorf("camera intrinsics cannot be nil")
	}
	if r, c := cam.Intrinsics.Dims(); r != 3 || c != 3 {
		return nil, fmt.Errorf("camera intrinsics must be 3x3, got %dx%d", r, c)
	}
	if cam.DepthUnitRatio <= 0 {
		return nil, fmt.Errorf("depth unit ratio must be positive, got %v", cam.DepthUnitRatio)
	}
	if extrinsic == nil {
		extrinsic = identity4
	}
	if r, c := extrinsic.Dims(); r != 4 || c != 4 {
		return nil, fmt.Errorf("camera extrinsics must be 4x4, got %dx%d", r, c)
	}

	fx := cam.Intrinsics.At(0, 0)
	cx := cam.Intrinsics.At(0, 2)
	halfWidth := float64(cfg.NarrowBandVoxels) / 2 * cfg.VoxelSize

	f := field.New(cfg.FieldSize, cfg.FieldSize, cfg.DefaultValue)
	voxel := mat.NewVecDense(4, []float64{0, 0, 0, 1})
	var point mat.VecDense

	for y := 0; y < cfg.FieldSize; y++ {
		for x := 0; x < cfg.FieldSize; x++ {
			// field rows run along the optical axis
			voxel.SetVec(0, float64(x+cfg.ArrayOffset[0])*cfg.VoxelSize)
			voxel.SetVec(2, float64(y+cfg.ArrayOffset[2])*cfg.VoxelSize)
			point.MulVec(extrinsic, voxel)

			z := point.AtVec(2)
			if z <= 0 {
				continue
			}
			imageX := fx*point.AtVec(0)/z + cx

			var raw float64
			switch cfg.Interpolation {
			case InterpolationNone:
				nearest := imageX + 0.5
				if nearest <= -1 || nearest >= float64(depthCols) {
					continue
				}
				raw = depth.At(row, int(nearest))
			case InterpolationBilinear:
				if imageX < 0 || imageX >= float64(depthCols) {
					continue
				}
				raw = field.Sample(depth, imageX, float64(row))
			}

			observed := raw * cam.DepthUnitRatio
			if observed <= 0 {
				continue
			}

			distance := observed - z
			switch {
			case distance < -halfWidth:
				f.Set(y, x, -1)
			case distance > halfWidth:
				f.Set(y, x, 1)
			default:
				f.Set(y, x, distance/halfWidth)
			}
		}
	}

	return f, nil
}

var identity4 = mat.NewDiagDense(4, []float64{1, 1, 1, 1})

// LoadDepthPNG reads a 16-bit grayscale PNG into a field of raw depth values.
// Other PNG color models are converted to 16-bit gray first.
func LoadDepthPNG(path string) (*mat.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open depth image: %w", err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode depth image: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, fmt.Errorf("depth image %s is empty", path)
	}
	m := mat.NewDense(bounds.Dy(), bounds.Dx(), nil)
	gray16, direct := img.(*image.Gray16)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			var v uint16
			if direct {
				v = gray16.Gray16At(x, y).Y
			} else {
				v = color.Gray16Model.Convert(img.At(x, y)).(color.Gray16).Y
			}
			m.Set(y-bounds.Min.Y, x-bounds.Min.X, float64(v))
		}
	}
	return m, nil
}
