package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/cwbudde/sdfdataterm/internal/binding"
	"github.com/cwbudde/sdfdataterm/internal/tsdf"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"
)

var (
	generateOut string
	generatePNG bool
	generateCfg = tsdf.DefaultPairConfig()

	// depth image input, replaces the fixed polyline when set
	generateDepth          string
	generateCanonicalDepth string
	generateDepthRow       int
	generateVoxelSize      float64
	generateInterpolation  string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a synthetic live / canonical TSDF pair",
	Long: `Generates the reference pair of truncated signed distance fields: a live
field from a fixed polyline surface and a canonical field from the same
surface shifted 5 voxels deeper. The pair is written as JSON.

With --depth the live field is instead built from one row of a 16-bit depth
PNG seen by a 640x480 camera (focal length 700, millimeter depth), and the
canonical field from the same row of --canonical-depth.`,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVar(&generateOut, "out", "pair.json", "Output field pair path")
	generateCmd.Flags().BoolVar(&generatePNG, "png", false, "Also write heat maps of both fields next to the output")
	generateCmd.Flags().IntVar(&generateCfg.FieldSize, "size", generateCfg.FieldSize, "Field edge length in voxels")
	generateCmd.Flags().IntVar(&generateCfg.NarrowBandVoxels, "narrow-band", generateCfg.NarrowBandVoxels, "Narrow band width in voxels")
	generateCmd.Flags().Float64Var(&generateCfg.DefaultValue, "default", generateCfg.DefaultValue, "Value of cells the surface never touches")
	generateCmd.Flags().BoolVar(&generateCfg.MimicEta, "mimic-eta", false, "Cut the canonical band 3 voxels behind the surface")
	generateCmd.Flags().IntVar(&generateCfg.LiveSmoothing, "live-smoothing", 0, "Gaussian kernel size for the live field (odd, 0 = off)")
	generateCmd.Flags().IntVar(&generateCfg.CanonicalSmoothing, "canonical-smoothing", 0, "Gaussian kernel size for the canonical field (odd, 0 = off)")
	generateCmd.Flags().StringVar(&generateDepth, "depth", "", "16-bit depth PNG for the live field")
	generateCmd.Flags().StringVar(&generateCanonicalDepth, "canonical-depth", "", "16-bit depth PNG for the canonical field (default: --depth)")
	generateCmd.Flags().IntVar(&generateDepthRow, "depth-row", 240, "Image row the field is built from")
	generateCmd.Flags().Float64Var(&generateVoxelSize, "voxel-size", tsdf.DefaultDepthConfig().VoxelSize, "Voxel size in meters for depth input")
	generateCmd.Flags().StringVar(&generateInterpolation, "interpolation", "none", "Depth lookup: none, bilinear")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	var live, canonical *mat.Dense
	var err error
	if generateDepth != "" {
		live, canonical, err = depthPair()
	} else {
		live, canonical, err = tsdf.InitialPair(generateCfg)
	}
	if err != nil {
		return fmt.Errorf("failed to generate pair: %w", err)
	}

	pair := binding.NewFieldPair(live, canonical)
	if err := binding.SaveFieldPair(generateOut, &pair); err != nil {
		return err
	}

	slog.Info("Generated field pair",
		"path", generateOut,
		"size", generateCfg.FieldSize,
		"narrow_band", generateCfg.NarrowBandVoxels,
		"mimic_eta", generateCfg.MimicEta,
	)

	if generatePNG {
		base := strings.TrimSuffix(generateOut, filepath.Ext(generateOut))
		if err := writeHeatmap(base+"_live.png", live, "live"); err != nil {
			return err
		}
		if err := writeHeatmap(base+"_canonical.png", canonical, "canonical"); err != nil {
			return err
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%dx%d)\n", generateOut, generateCfg.FieldSize, generateCfg.FieldSize)
	return nil
}

// depthPair builds both fields from depth images centered on the camera axis
func depthPair() (live, canonical *mat.Dense, err error) {
	interp, err := tsdf.ParseDepthInterpolation(generateInterpolation)
	if err != nil {
		return nil, nil, err
	}

	n := generateCfg.FieldSize
	cfg := tsdf.DepthConfig{
		FieldSize:        n,
		DefaultValue:     generateCfg.DefaultValue,
		VoxelSize:        generateVoxelSize,
		ArrayOffset:      [3]int{-n / 2, -n / 2, n / 2},
		NarrowBandVoxels: generateCfg.NarrowBandVoxels,
		Interpolation:    interp,
	}
	cam := tsdf.DefaultCamera()

	build := func(path string, smoothing int) (*mat.Dense, error) {
		depth, err := tsdf.LoadDepthPNG(path)
		if err != nil {
			return nil, err
		}
		f, err := tsdf.FromDepthRow(depth, cam, nil, generateDepthRow, cfg)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if smoothing > 0 {
			return tsdf.GaussianBlur(f, smoothing)
		}
		return f, nil
	}

	canonicalPath := generateCanonicalDepth
	if canonicalPath == "" {
		canonicalPath = generateDepth
	}

	if live, err = build(generateDepth, generateCfg.LiveSmoothing); err != nil {
		return nil, nil, err
	}
	if canonical, err = build(canonicalPath, generateCfg.CanonicalSmoothing); err != nil {
		return nil, nil, err
	}

	slog.Info("Built fields from depth images",
		"live", generateDepth,
		"canonical", canonicalPath,
		"row", generateDepthRow,
		"interpolation", interp.String(),
	)
	return live, canonical, nil
}
