package monitor

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// ErrNoPoints is returned when there is nothing to plot.
var ErrNoPoints = errors.New("no timeline points")

func newTimelinePlot(title string, points []Point) (*plot.Plot, error) {
	if len(points) == 0 {
		return nil, ErrNoPoints
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Time since first record (s)"
	p.Y.Label.Text = "Ratio"
	p.Y.Min = 0
	p.Y.Max = 1.05

	xs := offsetSeconds(points)
	ratioPts := make(plotter.XYs, len(points))
	visiblePts := make(plotter.XYs, len(points))
	for i, pt := range points {
		ratioPts[i] = plotter.XY{X: xs[i], Y: pt.Unobstructed}
		visiblePts[i] = plotter.XY{X: xs[i], Y: visibleValue(pt)}
	}

	ratioLine, err := plotter.NewLine(ratioPts)
	if err != nil {
		return nil, fmt.Errorf("unobstructed line: %w", err)
	}
	ratioLine.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	ratioLine.Width = vg.Points(1)

	visibleLine, err := plotter.NewLine(visiblePts)
	if err != nil {
		return nil, fmt.Errorf("visible line: %w", err)
	}
	visibleLine.StepStyle = plotter.PostStep
	visibleLine.Color = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	visibleLine.Width = vg.Points(1)

	p.Add(plotter.NewGrid(), ratioLine, visibleLine)
	p.Legend.Add("unobstructed", ratioLine)
	p.Legend.Add("visible", visibleLine)
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

// SaveTimelinePNG writes the timeline to path, creating parent
// directories. The format follows the file extension.
func SaveTimelinePNG(path, title string, points []Point) error {
	p, err := newTimelinePlot(title, points)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create plot directory: %w", err)
	}
	if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save timeline plot: %w", err)
	}
	return nil
}

// WriteTimelinePNG streams the timeline as PNG.
func WriteTimelinePNG(w io.Writer, title string, points []Point) error {
	p, err := newTimelinePlot(title, points)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(14*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("timeline plot writer: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}
