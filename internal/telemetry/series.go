package telemetry

import (
	"github.com/banshee-data/cornercase/internal/db"
)

// Series is one named pedal trace over time in seconds from the first
// sample.
type Series struct {
	Name string
	X    []float64
	Y    []float64
}

// PedalSeries splits samples into throttle and brake traces per driver.
// Override traces are omitted when no sample carries override values.
func PedalSeries(samples []db.PedalSample) []Series {
	if len(samples) == 0 {
		return nil
	}
	t0 := samples[0].AtNs
	throttleP := Series{Name: "throttle primary"}
	brakeP := Series{Name: "brake primary"}
	throttleO := Series{Name: "throttle override"}
	brakeO := Series{Name: "brake override"}

	for _, s := range samples {
		x := float64(s.AtNs-t0) / 1e9
		throttleP.X, throttleP.Y = append(throttleP.X, x), append(throttleP.Y, s.ThrottlePrimary)
		brakeP.X, brakeP.Y = append(brakeP.X, x), append(brakeP.Y, s.BrakePrimary)
		if s.ThrottleOverride != nil {
			throttleO.X, throttleO.Y = append(throttleO.X, x), append(throttleO.Y, *s.ThrottleOverride)
		}
		if s.BrakeOverride != nil {
			brakeO.X, brakeO.Y = append(brakeO.X, x), append(brakeO.Y, *s.BrakeOverride)
		}
	}

	out := []Series{throttleP, brakeP}
	for _, s := range []Series{throttleO, brakeO} {
		if len(s.X) > 0 {
			out = append(out, s)
		}
	}
	return out
}
