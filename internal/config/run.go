package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical run defaults file.
const DefaultConfigPath = "config/run.defaults.json"

// Cancel policies for a review window closed without a decision.
const (
	CancelRollback = "rollback"
	CancelPreserve = "preserve"
)

// Frame formats understood by the capture drain.
const (
	FormatPNG  = "png"
	FormatTIFF = "tiff"
)

// SerialOptions mirrors the wheel package's port options so the config
// package stays free of device imports.
type SerialOptions struct {
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`
}

// RunConfig is the root configuration of a capture run. Every field is a
// pointer so a partial file only overrides what it names; the Get*
// accessors supply defaults for the rest.
type RunConfig struct {
	// Capture window
	FPS                *int     `json:"fps,omitempty"`
	SecondsBeforeEvent *float64 `json:"seconds_before_event,omitempty"`
	Stride             *int     `json:"stride,omitempty"`
	FrameFormat        *string  `json:"frame_format,omitempty"`
	SyntheticFrames    *bool    `json:"synthetic_frames,omitempty"`

	// Arbitration and lifecycle
	HysteresisThreshold *int    `json:"hysteresis_threshold,omitempty"`
	MaxPendingTriggers  *int    `json:"max_pending_triggers,omitempty"`
	CancelPolicy        *string `json:"cancel_policy,omitempty"`

	// Run context recorded with each incident
	SensorName     *string `json:"sensor_name,omitempty"`
	WeatherPreset  *string `json:"weather_preset,omitempty"`
	MapName        *string `json:"map_name,omitempty"`
	PrimaryDriver  *string `json:"primary_driver,omitempty"`
	OverrideDriver *string `json:"override_driver,omitempty"`

	// Storage
	OutputDir       *string `json:"output_dir,omitempty"`
	DBPath          *string `json:"db_path,omitempty"`
	PedalFlushEvery *int    `json:"pedal_flush_every,omitempty"`

	// Devices
	WheelMap     *string        `json:"wheel_map,omitempty"`
	PrimaryPort  *string        `json:"primary_port,omitempty"`
	OverridePort *string        `json:"override_port,omitempty"`
	Serial       *SerialOptions `json:"serial,omitempty"`

	// HTTP
	Listen *string `json:"listen,omitempty"`
}

// EmptyRunConfig returns a RunConfig with all fields unset; every accessor
// reports its default.
func EmptyRunConfig() *RunConfig {
	return &RunConfig{}
}

// LoadRunConfig loads a RunConfig from a JSON file. The file must have a
// .json extension and be under 1MB. Omitted fields keep their defaults.
func LoadRunConfig(path string) (*RunConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyRunConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the current directory
// or one of its parents. Panics if the file cannot be loaded; intended for
// test setup.
func MustLoadDefaultConfig() *RunConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadRunConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks the values that are set.
func (c *RunConfig) Validate() error {
	if c.FPS != nil && *c.FPS <= 0 {
		return fmt.Errorf("fps must be positive, got %d", *c.FPS)
	}
	if c.SecondsBeforeEvent != nil && (*c.SecondsBeforeEvent < 0 || math.IsNaN(*c.SecondsBeforeEvent)) {
		return fmt.Errorf("seconds_before_event must be non-negative, got %f", *c.SecondsBeforeEvent)
	}
	if c.Stride != nil && *c.Stride < 1 {
		return fmt.Errorf("stride must be at least 1, got %d", *c.Stride)
	}
	if c.HysteresisThreshold != nil && *c.HysteresisThreshold < 0 {
		return fmt.Errorf("hysteresis_threshold must be non-negative, got %d", *c.HysteresisThreshold)
	}
	if c.MaxPendingTriggers != nil && *c.MaxPendingTriggers < 0 {
		return fmt.Errorf("max_pending_triggers must be non-negative, got %d", *c.MaxPendingTriggers)
	}
	if c.CancelPolicy != nil {
		switch *c.CancelPolicy {
		case CancelRollback, CancelPreserve:
		default:
			return fmt.Errorf("cancel_policy must be %q or %q, got %q", CancelRollback, CancelPreserve, *c.CancelPolicy)
		}
	}
	if c.FrameFormat != nil {
		switch *c.FrameFormat {
		case FormatPNG, FormatTIFF:
		default:
			return fmt.Errorf("frame_format must be %q or %q, got %q", FormatPNG, FormatTIFF, *c.FrameFormat)
		}
	}
	if c.PedalFlushEvery != nil && *c.PedalFlushEvery < 1 {
		return fmt.Errorf("pedal_flush_every must be at least 1, got %d", *c.PedalFlushEvery)
	}
	return nil
}

// Capacity returns the pre-event ring size:
// ceil(seconds_before_event * fps / stride) + 1.
func (c *RunConfig) Capacity() int {
	window := c.GetSecondsBeforeEvent() * float64(c.GetFPS()) / float64(c.GetStride())
	return int(math.Ceil(window)) + 1
}

func (c *RunConfig) GetFPS() int {
	if c.FPS == nil {
		return 20
	}
	return *c.FPS
}

func (c *RunConfig) GetSecondsBeforeEvent() float64 {
	if c.SecondsBeforeEvent == nil {
		return 7
	}
	return *c.SecondsBeforeEvent
}

func (c *RunConfig) GetStride() int {
	if c.Stride == nil {
		return 3
	}
	return *c.Stride
}

func (c *RunConfig) GetFrameFormat() string {
	if c.FrameFormat == nil {
		return FormatPNG
	}
	return *c.FrameFormat
}

func (c *RunConfig) GetSyntheticFrames() bool {
	if c.SyntheticFrames == nil {
		return false
	}
	return *c.SyntheticFrames
}

func (c *RunConfig) GetHysteresisThreshold() int {
	if c.HysteresisThreshold == nil {
		return 10
	}
	return *c.HysteresisThreshold
}

func (c *RunConfig) GetMaxPendingTriggers() int {
	if c.MaxPendingTriggers == nil {
		return 1
	}
	return *c.MaxPendingTriggers
}

func (c *RunConfig) GetCancelPolicy() string {
	if c.CancelPolicy == nil {
		return CancelRollback
	}
	return *c.CancelPolicy
}

func (c *RunConfig) GetSensorName() string {
	if c.SensorName == nil {
		return "semseg"
	}
	return *c.SensorName
}

func (c *RunConfig) GetWeatherPreset() string {
	if c.WeatherPreset == nil {
		return "clear"
	}
	return *c.WeatherPreset
}

func (c *RunConfig) GetMapName() string {
	if c.MapName == nil {
		return ""
	}
	return *c.MapName
}

func (c *RunConfig) GetPrimaryDriver() string {
	if c.PrimaryDriver == nil {
		return "primary"
	}
	return *c.PrimaryDriver
}

func (c *RunConfig) GetOverrideDriver() string {
	if c.OverrideDriver == nil {
		return "override"
	}
	return *c.OverrideDriver
}

func (c *RunConfig) GetOutputDir() string {
	if c.OutputDir == nil {
		return "output"
	}
	return *c.OutputDir
}

func (c *RunConfig) GetDBPath() string {
	if c.DBPath == nil {
		return "cornercase.db"
	}
	return *c.DBPath
}

func (c *RunConfig) GetPedalFlushEvery() int {
	if c.PedalFlushEvery == nil {
		return 50
	}
	return *c.PedalFlushEvery
}

func (c *RunConfig) GetWheelMap() string {
	if c.WheelMap == nil {
		return ""
	}
	return *c.WheelMap
}

func (c *RunConfig) GetPrimaryPort() string {
	if c.PrimaryPort == nil {
		return ""
	}
	return *c.PrimaryPort
}

func (c *RunConfig) GetOverridePort() string {
	if c.OverridePort == nil {
		return ""
	}
	return *c.OverridePort
}

func (c *RunConfig) GetSerial() SerialOptions {
	if c.Serial == nil {
		return SerialOptions{}
	}
	return *c.Serial
}

func (c *RunConfig) GetListen() string {
	if c.Listen == nil {
		return ":8080"
	}
	return *c.Listen
}
