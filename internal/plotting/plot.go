// Package plotting renders calibration results: a PNG scatter with the
// fitted line via gonum/plot, and an interactive HTML chart via go-echarts.
package plotting

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/flowcal/internal/calibration"
)

// Axis labels and sizes shared by both renderers.
const (
	XLabel    = "Frequência (Hz)"
	YLabel    = "Vazão (L/min)"
	Title     = "Calibração RLS: vazão x frequência"
	LineSteps = 100

	pngWidth  = 10 * vg.Inch
	pngHeight = 6 * vg.Inch
)

// ErrNoPoints is returned when there is nothing to plot.
var ErrNoPoints = errors.New("plotting: no points")

var (
	pointColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	lineColor  = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// FitLine samples y = a*x + b at LineSteps evenly spaced frequencies
// spanning the observed range.
func FitLine(points []calibration.Point, a, b float64) [][2]float64 {
	if len(points) == 0 {
		return nil
	}
	lo, hi := freqRange(points)
	line := make([][2]float64, LineSteps)
	step := (hi - lo) / float64(LineSteps-1)
	for i := range line {
		x := lo + step*float64(i)
		if i == LineSteps-1 {
			x = hi
		}
		line[i] = [2]float64{x, a*x + b}
	}
	return line
}

func freqRange(points []calibration.Point) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, p := range points {
		lo = math.Min(lo, p.Freq)
		hi = math.Max(hi, p.Freq)
	}
	return lo, hi
}

func newScatterPlot(points []calibration.Point, a, b float64) (*plot.Plot, error) {
	if len(points) == 0 {
		return nil, ErrNoPoints
	}

	p := plot.New()
	p.Title.Text = Title
	p.X.Label.Text = XLabel
	p.Y.Label.Text = YLabel
	p.Add(plotter.NewGrid())

	data := make(plotter.XYs, len(points))
	for i, pt := range points {
		data[i] = plotter.XY{X: pt.Freq, Y: pt.Flow}
	}
	scatter, err := plotter.NewScatter(data)
	if err != nil {
		return nil, fmt.Errorf("failed to build scatter: %w", err)
	}
	scatter.GlyphStyle.Color = pointColor
	scatter.GlyphStyle.Radius = vg.Points(2)

	fit := FitLine(points, a, b)
	lineXYs := make(plotter.XYs, len(fit))
	for i, xy := range fit {
		lineXYs[i] = plotter.XY{X: xy[0], Y: xy[1]}
	}
	line, err := plotter.NewLine(lineXYs)
	if err != nil {
		return nil, fmt.Errorf("failed to build fitted line: %w", err)
	}
	line.Color = lineColor
	line.Width = vg.Points(2)

	p.Add(scatter, line)
	p.Legend.Add("Dados filtrados", scatter)
	p.Legend.Add(fmt.Sprintf("Ajuste RLS: Q = %.4f·f + %.4f", a, b), line)
	p.Legend.Top = true
	p.Legend.Left = true
	return p, nil
}

// ScatterPNG writes the scatter plot with the fitted line to path. The
// file extension selects the image format, normally .png.
func ScatterPNG(path string, points []calibration.Point, a, b float64) error {
	p, err := newScatterPlot(points, a, b)
	if err != nil {
		return err
	}
	if err := p.Save(pngWidth, pngHeight, path); err != nil {
		return fmt.Errorf("failed to save plot %s: %w", filepath.Base(path), err)
	}
	return nil
}

// WritePNG streams the same plot as ScatterPNG to w.
func WritePNG(w io.Writer, points []calibration.Point, a, b float64) error {
	p, err := newScatterPlot(points, a, b)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(pngWidth, pngHeight, "png")
	if err != nil {
		return fmt.Errorf("failed to create png writer: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write png: %w", err)
	}
	return nil
}

// IsImagePath reports whether path has an extension gonum/plot can save.
func IsImagePath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg", ".svg", ".pdf", ".eps", ".tif", ".tiff":
		return true
	}
	return false
}
