package control

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// DefaultHysteresisThreshold is the number of consecutive override steer
// changes tolerated as noise before a steer trigger is raised.
const DefaultHysteresisThreshold = 10

// ArbiterState persists across ticks and is only mutated by Step.
type ArbiterState struct {
	PreviousOverrideSteer float64 `json:"previous_override_steer"`
	HysteresisCounter     uint32  `json:"hysteresis_counter"`
}

// Inputs carries one tick of raw readings. Override is nil in
// single-driver mode.
type Inputs struct {
	Primary  Axes
	Override *Axes
	At       time.Time
	Tick     uint64
	Distance float64
}

// Output is the result of one arbitration step. Primary and Override hold
// the shaped values actually used (after any hold on shaping failure).
type Output struct {
	Command  VehicleCommand
	Trigger  *TriggerEvent
	Primary  Axes
	Override *Axes
}

// Arbiter merges the primary and override drivers into one command.
// It is not safe for concurrent use; the tick loop owns it.
type Arbiter struct {
	threshold uint32
	state     ArbiterState

	// last good shaped values per driver, held when a reading fails to shape
	lastPrimary  Axes
	lastOverride Axes
}

// NewArbiter creates an Arbiter that suppresses up to threshold
// consecutive override steer changes.
func NewArbiter(threshold int) *Arbiter {
	if threshold < 0 {
		threshold = DefaultHysteresisThreshold
	}
	return &Arbiter{threshold: uint32(threshold)}
}

// State returns a copy of the arbiter state.
func (a *Arbiter) State() ArbiterState {
	return a.state
}

// Step shapes both drivers' readings and applies the priority rules.
//
// A non-nil error reports axes that failed to shape (ErrInvalidAxisRange);
// those axes are held at their previous shaped value and the returned
// Output is still valid.
func (a *Arbiter) Step(in Inputs) (Output, error) {
	var errs []error

	p, err := shapeHeld(in.Primary, a.lastPrimary)
	if err != nil {
		errs = append(errs, fmt.Errorf("primary: %w", err))
	}
	a.lastPrimary = p

	out := Output{Primary: p}
	if in.Override == nil {
		out.Command = VehicleCommand{Steer: p.Steer, Throttle: p.Throttle, Brake: p.Brake}.Clamp()
		return out, errors.Join(errs...)
	}

	o, err := shapeHeld(*in.Override, a.lastOverride)
	if err != nil {
		errs = append(errs, fmt.Errorf("override: %w", err))
	}
	a.lastOverride = o
	out.Override = &o

	var cmd VehicleCommand
	var kind TriggerKind

	// steer: any change of the override wheel is an intervention; the first
	// few are treated as noise
	if math.Abs(o.Steer-a.state.PreviousOverrideSteer) > 0 {
		cmd.Steer = o.Steer
		a.state.PreviousOverrideSteer = o.Steer
		if a.state.HysteresisCounter > a.threshold {
			kind = TriggerSteer
			a.state.HysteresisCounter = 0
		} else {
			a.state.HysteresisCounter++
		}
	} else {
		cmd.Steer = p.Steer
		a.state.HysteresisCounter = 0
	}

	// brake: override always wins and always triggers
	if o.Brake > 0 {
		cmd.Brake = o.Brake
		kind = TriggerBrake
	} else {
		cmd.Brake = p.Brake
	}

	// throttle: override throttle against primary brake takes both pedals
	switch {
	case o.Throttle > 0 && p.Brake > 0:
		cmd.Throttle = o.Throttle
		cmd.Brake = o.Brake
	case o.Throttle > 0:
		cmd.Throttle = o.Throttle
	default:
		cmd.Throttle = p.Throttle
	}

	out.Command = cmd.Clamp()
	if kind != 0 {
		out.Trigger = &TriggerEvent{Kind: kind, At: in.At, Tick: in.Tick, Distance: in.Distance}
	}
	return out, errors.Join(errs...)
}

// shapeHeld shapes each axis, substituting prev for any axis that fails.
func shapeHeld(raw, prev Axes) (Axes, error) {
	out := prev
	var errs []error

	if v, err := ShapeSteer(raw.Steer); err != nil {
		errs = append(errs, err)
	} else {
		out.Steer = v
	}
	if v, err := ShapePedal(raw.Throttle); err != nil {
		errs = append(errs, fmt.Errorf("throttle: %w", err))
	} else {
		out.Throttle = v
	}
	if v, err := ShapePedal(raw.Brake); err != nil {
		errs = append(errs, fmt.Errorf("brake: %w", err))
	} else {
		out.Brake = v
	}
	return out, errors.Join(errs...)
}
