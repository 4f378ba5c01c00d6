package telemetry

import (
	"errors"
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/cornercase/internal/db"
)

var ErrNoSamples = errors.New("no pedal samples")

var seriesColors = []color.Color{
	color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff},
	color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff},
	color.RGBA{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff},
	color.RGBA{R: 0xff, G: 0x7f, B: 0x0e, A: 0xff},
}

// WritePedalPlot renders the pedal trace as an image. format is any
// extension gonum/plot understands ("png", "svg", "pdf").
func WritePedalPlot(w io.Writer, samples []db.PedalSample, format string) error {
	series := PedalSeries(samples)
	if len(series) == 0 {
		return ErrNoSamples
	}

	p := plot.New()
	p.Title.Text = "Driving behaviour tracking"
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Deflection"
	p.Y.Min, p.Y.Max = -0.2, 1.2

	for i, s := range series {
		pts := make(plotter.XYs, len(s.X))
		for j := range s.X {
			pts[j] = plotter.XY{X: s.X[j], Y: s.Y[j]}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("%s: %w", s.Name, err)
		}
		line.Color = seriesColors[i%len(seriesColors)]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(s.Name, line)
	}
	p.Legend.Top = true
	p.Legend.Left = true
	p.Legend.XOffs = 10
	p.Legend.YOffs = -10

	wt, err := p.WriterTo(14*vg.Inch, 6*vg.Inch, format)
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}
