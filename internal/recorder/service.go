// Package recorder manages the scene recording that accompanies each
// incident session: starting it, stopping it, and deleting it when the
// incident is rolled back.
package recorder

import (
	"github.com/banshee-data/cornercase/internal/control"
)

// Sample is one tick of vehicle state forwarded to the active recording.
type Sample struct {
	Tick     uint64                 `json:"tick"`
	AtNs     int64                  `json:"at_ns"`
	Command  control.VehicleCommand `json:"command"`
	Primary  control.Axes           `json:"primary"`
	Override *control.Axes          `json:"override,omitempty"`
	Position control.Vec3           `json:"position"`
	Distance float64                `json:"distance"`
}

// RecordingService is the contract of the external scene recorder. Begin
// opens an artifact at path, Record appends to it and End finalises it.
// Only one artifact is open at a time.
type RecordingService interface {
	Begin(path string) error
	Record(s Sample) error
	End() error
}
