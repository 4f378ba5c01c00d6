package wheel

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// AxisMap gives the axis and button indices a wheel model reports.
type AxisMap struct {
	SteeringWheel int `toml:"steering_wheel"`
	Throttle      int `toml:"throttle"`
	Brake         int `toml:"brake"`
	ReverseLeft   int `toml:"reverse_left"`
	ReverseRight  int `toml:"reverse_right"`
}

// DefaultAxisMap is the Logitech G29 layout.
var DefaultAxisMap = AxisMap{
	SteeringWheel: 0,
	Throttle:      2,
	Brake:         3,
	ReverseLeft:   5,
	ReverseRight:  4,
}

type axisFile struct {
	Device struct {
		Model string `toml:"model"`
	} `toml:"device"`
}

// ParseAxisMap decodes a wheel map document. The [device] table names the
// model section to use.
func ParseAxisMap(data []byte) (AxisMap, error) {
	var head axisFile
	if err := toml.Unmarshal(data, &head); err != nil {
		return AxisMap{}, fmt.Errorf("parse wheel map: %w", err)
	}
	if head.Device.Model == "" {
		return AxisMap{}, fmt.Errorf("wheel map: [device] model is not set")
	}

	var sections map[string]AxisMap
	if err := toml.Unmarshal(data, &sections); err != nil {
		return AxisMap{}, fmt.Errorf("parse wheel map: %w", err)
	}
	m, ok := sections[head.Device.Model]
	if !ok {
		return AxisMap{}, fmt.Errorf("wheel map: no [%s] section", head.Device.Model)
	}
	if err := m.Validate(); err != nil {
		return AxisMap{}, fmt.Errorf("wheel map [%s]: %w", head.Device.Model, err)
	}
	return m, nil
}

// LoadAxisMap reads a wheel map file. An empty path yields DefaultAxisMap.
func LoadAxisMap(path string) (AxisMap, error) {
	if path == "" {
		return DefaultAxisMap, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return AxisMap{}, fmt.Errorf("read wheel map: %w", err)
	}
	return ParseAxisMap(data)
}

// Validate rejects negative indices and axes mapped to the same index.
func (m AxisMap) Validate() error {
	axes := map[string]int{
		"steering_wheel": m.SteeringWheel,
		"throttle":       m.Throttle,
		"brake":          m.Brake,
	}
	seen := make(map[int]string, len(axes))
	for name, idx := range axes {
		if idx < 0 {
			return fmt.Errorf("%s index %d is negative", name, idx)
		}
		if other, ok := seen[idx]; ok {
			return fmt.Errorf("%s and %s share index %d", name, other, idx)
		}
		seen[idx] = name
	}
	if m.ReverseLeft < 0 || m.ReverseRight < 0 {
		return fmt.Errorf("reverse button indices must be non-negative")
	}
	return nil
}

func (m AxisMap) maxAxis() int {
	return max(m.SteeringWheel, m.Throttle, m.Brake)
}
