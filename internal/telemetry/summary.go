package telemetry

import (
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/cornercase/internal/db"
)

// Brake onset thresholds on the normalised pedal: a press starts when the
// pedal rises from at most brakeLow to at least brakeHigh.
const (
	brakeLow  = 0.05
	brakeHigh = 0.15
)

// Summary condenses a pedal trace.
type Summary struct {
	Samples  int           `json:"samples"`
	Duration time.Duration `json:"duration_ns"`

	MeanThrottle float64 `json:"mean_throttle"`
	MeanBrake    float64 `json:"mean_brake"`
	MaxBrake     float64 `json:"max_brake"`
	BrakeOnsets  int     `json:"brake_onsets"`

	// Override fields stay zero in single-driver runs.
	OverrideTicks       int `json:"override_ticks"`
	OverrideBrakeOnsets int `json:"override_brake_onsets"`
}

// Summarise computes primary pedal statistics and counts brake presses
// and ticks with any override pedal input.
func Summarise(samples []db.PedalSample) Summary {
	if len(samples) == 0 {
		return Summary{}
	}
	throttle := make([]float64, len(samples))
	brake := make([]float64, len(samples))
	var override []float64
	sum := Summary{
		Samples:  len(samples),
		Duration: time.Duration(samples[len(samples)-1].AtNs - samples[0].AtNs),
	}
	for i, s := range samples {
		throttle[i] = s.ThrottlePrimary
		brake[i] = s.BrakePrimary
		if s.BrakeOverride != nil {
			override = append(override, *s.BrakeOverride)
		}
		if overridePressed(s) {
			sum.OverrideTicks++
		}
	}

	sum.MeanThrottle = stat.Mean(throttle, nil)
	sum.MeanBrake = stat.Mean(brake, nil)
	sum.MaxBrake = floats.Max(brake)
	sum.BrakeOnsets = onsets(brake)
	sum.OverrideBrakeOnsets = onsets(override)
	return sum
}

func overridePressed(s db.PedalSample) bool {
	return (s.ThrottleOverride != nil && *s.ThrottleOverride > 0) ||
		(s.BrakeOverride != nil && *s.BrakeOverride > 0)
}

func onsets(trace []float64) int {
	n := 0
	armed := true
	for _, v := range trace {
		switch {
		case v <= brakeLow:
			armed = true
		case armed && v >= brakeHigh:
			n++
			armed = false
		}
	}
	return n
}
