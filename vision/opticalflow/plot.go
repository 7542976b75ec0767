package opticalflow

import (
	"image/color"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// PlotConvergence saves a plot of the mean smoothness and brightness errors per iteration. The
// format follows the extension of path (png, svg, pdf, ...).
func PlotConvergence(trace []IterationStats, path string) error {
	if len(trace) == 0 {
		return errors.New("cannot plot an empty convergence trace")
	}
	p := plot.New()
	p.Title.Text = "Horn-Schunck convergence"
	p.X.Label.Text = "iteration"
	p.Y.Label.Text = "mean error"
	p.Add(plotter.NewGrid())

	smoothness := make(plotter.XYs, len(trace))
	brightness := make(plotter.XYs, len(trace))
	for i, s := range trace {
		smoothness[i].X, smoothness[i].Y = float64(s.Iteration), s.MeanSmoothness
		brightness[i].X, brightness[i].Y = float64(s.Iteration), s.MeanBrightness
	}

	for _, series := range []struct {
		name  string
		xys   plotter.XYs
		color color.Color
	}{
		{"smoothness (Ec^2)", smoothness, color.RGBA{B: 255, A: 255}},
		{"brightness (Eb^2)", brightness, color.RGBA{R: 255, A: 255}},
	} {
		line, err := plotter.NewLine(series.xys)
		if err != nil {
			return err
		}
		line.Color = series.color
		p.Add(line)
		p.Legend.Add(series.name, line)
	}
	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}
