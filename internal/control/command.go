// Package control turns raw wheel and pedal readings from two drivers into a
// single vehicle command and classifies override interventions as triggers.
package control

import (
	"fmt"
	"time"
)

// Axes groups one device's readings for one tick. Raw readings are in the
// device range (nominally [-1,1], pedals at rest read 1); shaped values are
// physical commands.
type Axes struct {
	Steer    float64 `json:"steer"`
	Throttle float64 `json:"throttle"`
	Brake    float64 `json:"brake"`
}

// VehicleCommand is the effective command applied to the vehicle each tick.
type VehicleCommand struct {
	Steer    float64 `json:"steer"`
	Throttle float64 `json:"throttle"`
	Brake    float64 `json:"brake"`
}

// Clamp returns the command with steer in [-1,1] and pedals in [0,1].
func (c VehicleCommand) Clamp() VehicleCommand {
	return VehicleCommand{
		Steer:    clamp(c.Steer, -1, 1),
		Throttle: clamp(c.Throttle, 0, 1),
		Brake:    clamp(c.Brake, 0, 1),
	}
}

// TriggerKind classifies an override intervention.
type TriggerKind int

const (
	TriggerSteer TriggerKind = iota + 1
	TriggerBrake
)

func (k TriggerKind) String() string {
	switch k {
	case TriggerSteer:
		return "steer"
	case TriggerBrake:
		return "brake"
	default:
		return fmt.Sprintf("TriggerKind(%d)", int(k))
	}
}

// ParseTriggerKind is the inverse of TriggerKind.String.
func ParseTriggerKind(s string) (TriggerKind, error) {
	switch s {
	case "steer":
		return TriggerSteer, nil
	case "brake":
		return TriggerBrake, nil
	}
	return 0, fmt.Errorf("unknown trigger kind %q", s)
}

func (k TriggerKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *TriggerKind) UnmarshalText(b []byte) error {
	v, err := ParseTriggerKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// TriggerEvent is a detected intervention, consumed once by the incident
// lifecycle.
type TriggerEvent struct {
	Kind     TriggerKind `json:"kind"`
	At       time.Time   `json:"at"`
	Tick     uint64      `json:"tick"`
	Distance float64     `json:"distance"`
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
