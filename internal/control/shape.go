package control

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidAxisRange is returned when a raw reading falls outside the domain
// of its response curve.
var ErrInvalidAxisRange = errors.New("invalid axis range")

// Response curve constants for the G29-class wheels the rig uses.
const (
	steerGain = 0.55 // K1
	steerRate = 1.1
	pedalBias = 1.6 // K2
)

// ShapeSteer maps a raw steering reading to a steer command:
// 0.55 * tan(1.1 * r). The result is not clamped here.
func ShapeSteer(r float64) (float64, error) {
	v := steerGain * math.Tan(steerRate*r)
	if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(steerRate*r) >= math.Pi/2 {
		return 0, fmt.Errorf("steer reading %v: %w", r, ErrInvalidAxisRange)
	}
	return v, nil
}

// ShapePedalRaw applies the pedal response curve without clamping:
// 1.6 + (2.05*log10(-0.7*r + 1.4) - 1.2) / 0.92.
// A released pedal (r=1) maps slightly below zero, a floored one (r=-1)
// slightly above one.
func ShapePedalRaw(r float64) (float64, error) {
	arg := -0.7*r + 1.4
	if !(arg > 0) {
		return 0, fmt.Errorf("pedal reading %v: %w", r, ErrInvalidAxisRange)
	}
	return pedalBias + (2.05*math.Log10(arg)-1.2)/0.92, nil
}

// ShapePedal is ShapePedalRaw clamped to [0,1]; used for throttle and brake.
func ShapePedal(r float64) (float64, error) {
	v, err := ShapePedalRaw(r)
	if err != nil {
		return 0, err
	}
	return clamp(v, 0, 1), nil
}

// Shape shapes all three axes of one device. Each failing axis is reported
// in the joined error and left at zero in the result; callers decide what
// to hold in its place.
func Shape(raw Axes) (Axes, error) {
	var out Axes
	var errs []error
	var err error

	if out.Steer, err = ShapeSteer(raw.Steer); err != nil {
		errs = append(errs, err)
	}
	if out.Throttle, err = ShapePedal(raw.Throttle); err != nil {
		errs = append(errs, fmt.Errorf("throttle: %w", err))
	}
	if out.Brake, err = ShapePedal(raw.Brake); err != nil {
		errs = append(errs, fmt.Errorf("brake: %w", err))
	}
	return out, errors.Join(errs...)
}
