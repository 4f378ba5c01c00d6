package incident

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/cornercase/internal/fsutil"
)

// Setup describes one capture run. It is written once at startup next to
// the CSV log so incidents can be traced back to their conditions.
type Setup struct {
	RunID          uuid.UUID `json:"run_id"`
	StartedAt      time.Time `json:"date_and_time"`
	PrimaryDriver  string    `json:"semantic_driver"`
	OverrideDriver string    `json:"safety_driver"`
	MapName        string    `json:"map"`
	WeatherPreset  string    `json:"weather_preset"`
	SensorName     string    `json:"network"`
	FPS            int       `json:"fps"`
	Stride         int       `json:"stride"`
	SecondsBefore  float64   `json:"seconds_before_event"`
}

// WriteSetup writes s to <root>/09_corner_cases/experimental_setup.json.
func WriteSetup(fs fsutil.FileSystem, root string, s Setup) (string, error) {
	dir := filepath.Join(root, CasesDir)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, "experimental_setup.json")
	if err := fs.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
