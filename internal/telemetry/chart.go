package telemetry

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/cornercase/internal/db"
)

// WritePedalChart renders the pedal trace as an interactive HTML page.
func WritePedalChart(w io.Writer, samples []db.PedalSample, subtitle string) error {
	if len(samples) == 0 {
		return ErrNoSamples
	}

	t0 := samples[0].AtNs
	xs := make([]string, len(samples))
	throttleP := make([]opts.LineData, len(samples))
	brakeP := make([]opts.LineData, len(samples))
	throttleO := make([]opts.LineData, len(samples))
	brakeO := make([]opts.LineData, len(samples))
	hasOverride := false
	for i, s := range samples {
		xs[i] = strconv.FormatFloat(float64(s.AtNs-t0)/1e9, 'f', 2, 64)
		throttleP[i] = opts.LineData{Value: s.ThrottlePrimary}
		brakeP[i] = opts.LineData{Value: s.BrakePrimary}
		if s.ThrottleOverride != nil {
			throttleO[i] = opts.LineData{Value: *s.ThrottleOverride}
			hasOverride = true
		}
		if s.BrakeOverride != nil {
			brakeO[i] = opts.LineData{Value: *s.BrakeOverride}
			hasOverride = true
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Pedal tracking", Width: "1200px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "Driving behaviour tracking", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "time (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "deflection", Min: -0.2, Max: 1.2}),
	)
	line.SetXAxis(xs).
		AddSeries("throttle primary", throttleP).
		AddSeries("brake primary", brakeP)
	if hasOverride {
		line.AddSeries("throttle override", throttleO).
			AddSeries("brake override", brakeO)
	}
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ConnectNulls: opts.Bool(true)}))

	if err := line.Render(w); err != nil {
		return fmt.Errorf("render pedal chart: %w", err)
	}
	return nil
}
