// Package units converts the vehicle speed for display. Speeds are stored
// and served in metres per second.
package units

import (
	"fmt"
	"strings"
)

const (
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
)

// ValidUnits lists the accepted unit names.
var ValidUnits = []string{MPS, MPH, KMPH, KPH}

func IsValid(unit string) bool {
	for _, u := range ValidUnits {
		if unit == u {
			return true
		}
	}
	return false
}

// Parse checks unit case-insensitively and returns its canonical name.
func Parse(unit string) (string, error) {
	u := strings.ToLower(unit)
	if !IsValid(u) {
		return "", fmt.Errorf("unknown speed unit %q, want one of %s", unit, strings.Join(ValidUnits, ", "))
	}
	return u, nil
}

// ConvertSpeed converts metres per second to unit. Unknown units return
// the input unchanged.
func ConvertSpeed(speedMPS float64, unit string) float64 {
	switch unit {
	case MPH:
		return speedMPS * 2.2369362920544
	case KMPH, KPH:
		return speedMPS * 3.6
	default:
		return speedMPS
	}
}

// Label is the short suffix printed after a converted speed.
func Label(unit string) string {
	switch unit {
	case MPH:
		return "mph"
	case KMPH, KPH:
		return "km/h"
	default:
		return "m/s"
	}
}

// FormatSpeed converts and labels a speed with one decimal.
func FormatSpeed(speedMPS float64, unit string) string {
	return fmt.Sprintf("%.1f %s", ConvertSpeed(speedMPS, unit), Label(unit))
}
