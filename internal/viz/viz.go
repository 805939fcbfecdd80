// Package viz renders fields and energy traces as PNG images.
package viz

import (
	"fmt"
	"io"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// DefaultSize is the edge length of rendered images.
const DefaultSize = 4 * vg.Inch

// fieldGrid adapts a matrix to plotter.GridXYZ with x = column and y = row.
type fieldGrid struct {
	m mat.Matrix
}

func (g fieldGrid) Dims() (c, r int) {
	r, c = g.m.Dims()
	return c, r
}

func (g fieldGrid) Z(c, r int) float64 { return g.m.At(r, c) }
func (g fieldGrid) X(c int) float64    { return float64(c) }
func (g fieldGrid) Y(r int) float64    { return float64(r) }

// HeatmapPNG writes m as a heat map.
func HeatmapPNG(w io.Writer, m mat.Matrix, title string, size vg.Length) error {
	if m == nil {
		return fmt.Errorf("matrix cannot be nil")
	}
	r, c := m.Dims()
	if r == 0 || c == 0 {
		return fmt.Errorf("matrix is empty")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "x"
	p.Y.Label.Text = "y"

	hm := plotter.NewHeatMap(fieldGrid{m: m}, palette.Heat(64, 1))
	if hm.Min == hm.Max {
		// constant field, widen the range so the palette lookup stays valid
		hm.Min--
		hm.Max++
	}
	p.Add(hm)

	return writePNG(w, p, size)
}

// EnergyPNG writes the energy of each iteration as a line plot.
func EnergyPNG(w io.Writer, energies []float64, title string, size vg.Length) error {
	if len(energies) == 0 {
		return fmt.Errorf("no energies to plot")
	}

	pts := make(plotter.XYs, len(energies))
	for i, e := range energies {
		pts[i].X = float64(i)
		pts[i].Y = e
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "iteration"
	p.Y.Label.Text = "energy"
	p.Add(plotter.NewGrid())

	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("failed to build energy line: %w", err)
	}
	p.Add(line)

	return writePNG(w, p, size)
}

func writePNG(w io.Writer, p *plot.Plot, size vg.Length) error {
	if size <= 0 {
		size = DefaultSize
	}
	wt, err := p.WriterTo(size, size, "png")
	if err != nil {
		return fmt.Errorf("failed to create png writer: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write png: %w", err)
	}
	return nil
}
