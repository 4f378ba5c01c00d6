// Package incident turns override triggers into reviewed incident records.
// It owns the review state machine that coordinates the capture buffer and
// the scene recorder, and the append-only stores committed records go to.
package incident

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/cornercase/internal/control"
)

// Reason is the reviewer's classification of a committed incident.
type Reason int

const (
	Unspecified Reason = iota
	VehicleMissed
	PedestrianMissed
	TrafficRuleViolation
	BoredomIntervention
)

var reasonKeys = map[Reason]string{
	Unspecified:          "unspecified",
	VehicleMissed:        "vehicle_missed",
	PedestrianMissed:     "pedestrian_missed",
	TrafficRuleViolation: "traffic_rule_violation",
	BoredomIntervention:  "boredom_intervention",
}

// labels used in cc.csv
var reasonLabels = map[Reason]string{
	Unspecified:          "-",
	VehicleMissed:        "vehicle overlooked",
	PedestrianMissed:     "walker overlooked",
	TrafficRuleViolation: "disregard the traffic rules",
	BoredomIntervention:  "boredom intervention",
}

func (r Reason) String() string {
	if k, ok := reasonKeys[r]; ok {
		return k
	}
	return fmt.Sprintf("Reason(%d)", int(r))
}

// Label returns the human-readable reason written to the CSV log.
func (r Reason) Label() string {
	if l, ok := reasonLabels[r]; ok {
		return l
	}
	return "-"
}

// ParseReason accepts either the key ("vehicle_missed") or the CSV label
// ("vehicle overlooked"). The empty string is Unspecified.
func ParseReason(s string) (Reason, error) {
	if s == "" {
		return Unspecified, nil
	}
	for r, k := range reasonKeys {
		if s == k || s == reasonLabels[r] {
			return r, nil
		}
	}
	return Unspecified, fmt.Errorf("unknown incident reason %q", s)
}

func (r Reason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Reason) UnmarshalText(b []byte) error {
	v, err := ParseReason(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// Record is one committed incident.
type Record struct {
	ID            uuid.UUID           `json:"id"`
	SessionID     uint64              `json:"session_id"`
	Elapsed       time.Duration       `json:"elapsed_ns"`
	Distance      float64             `json:"distance_m"`
	Reason        Reason              `json:"reason"`
	TriggerKind   control.TriggerKind `json:"trigger_kind"`
	SensorName    string              `json:"sensor_name"`
	WeatherPreset string              `json:"weather_preset"`
	Comment       string              `json:"comment"`
	FramesWritten int                 `json:"frames_written"`
	CreatedAt     time.Time           `json:"created_at"`
}
