// Package config loads the service configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/ld2450/internal/ld2450"
	"github.com/banshee-data/ld2450/internal/serialmux"
	"github.com/banshee-data/ld2450/internal/units"
)

// Defaults used when a field is absent from the file and not set by flag.
const (
	DefaultPort      = "/dev/ttyUSB0"
	DefaultListen    = ":8080"
	DefaultDBPath    = "ld2450.db"
	DefaultRetention = 7 * 24 * time.Hour
	DefaultUnits     = units.CMS
)

// maxFileSize guards against pointing -config at something that is not a
// config file.
const maxFileSize = 1 * 1024 * 1024 // 1MB

// Config is the root of the configuration file. Every field is optional;
// the Get* methods supply defaults for anything left out.
type Config struct {
	Serial       *SerialConfig `json:"serial,omitempty" yaml:"serial,omitempty"`
	Radar        *RadarConfig  `json:"radar,omitempty" yaml:"radar,omitempty"`
	ApplyOnStart *bool         `json:"apply_on_start,omitempty" yaml:"apply_on_start,omitempty"`
	DBPath       *string       `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	Listen       *string       `json:"listen,omitempty" yaml:"listen,omitempty"`
	MQTTURL      *string       `json:"mqtt_url,omitempty" yaml:"mqtt_url,omitempty"`
	Retention    *string       `json:"retention,omitempty" yaml:"retention,omitempty"` // duration string like "168h"
	RecordEmpty  *bool         `json:"record_empty,omitempty" yaml:"record_empty,omitempty"`
	Units        *string       `json:"units,omitempty" yaml:"units,omitempty"`
}

// SerialConfig is the serial section. Zero values fall back to the radar's
// factory line settings.
type SerialConfig struct {
	Port string `json:"port,omitempty" yaml:"port,omitempty"`
	serialmux.PortOptions `yaml:",inline"`
}

// RadarConfig is the radar section, written to the radar by Initialize.
type RadarConfig struct {
	Tracking  *string          `json:"tracking,omitempty" yaml:"tracking,omitempty"` // "single" or "multiple"
	Bluetooth *bool            `json:"bluetooth,omitempty" yaml:"bluetooth,omitempty"`
	Filtering *FilteringConfig `json:"filtering,omitempty" yaml:"filtering,omitempty"`
}

// FilteringConfig describes zone filtering. Mode "inside" ignores targets
// inside the regions, "outside" only reports targets inside them.
type FilteringConfig struct {
	Mode    string                  `json:"mode" yaml:"mode"`
	Regions []ld2450.FilteredRegion `json:"regions,omitempty" yaml:"regions,omitempty"`
}

// Load reads a configuration from a .json, .yaml or .yml file and
// validates it.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	switch ext {
	case ".json", ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if ext == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that every set field holds a usable value.
func (c *Config) Validate() error {
	if _, err := c.PortOptions(); err != nil {
		return fmt.Errorf("serial: %w", err)
	}
	rc, err := c.radarConfig()
	if err != nil {
		return fmt.Errorf("radar: %w", err)
	}
	if err := rc.Validate(); err != nil {
		return fmt.Errorf("radar: %w", err)
	}
	if c.Retention != nil && *c.Retention != "" {
		d, err := time.ParseDuration(*c.Retention)
		if err != nil {
			return fmt.Errorf("invalid retention '%s': %w", *c.Retention, err)
		}
		if d < 0 {
			return fmt.Errorf("retention must be non-negative, got %s", d)
		}
	}
	if c.Units != nil {
		if !units.IsValid(*c.Units) {
			return fmt.Errorf("units must be one of %s, got %q", units.ValidUnitsString(), *c.Units)
		}
	}
	return nil
}

// PortOptions returns the normalized serial line settings.
func (c *Config) PortOptions() (serialmux.PortOptions, error) {
	var opts serialmux.PortOptions
	if c.Serial != nil {
		opts = c.Serial.PortOptions
	}
	return opts.Normalize()
}

// RadarSettings returns the radar section as an ld2450.Config. Missing
// values come from ld2450.DefaultConfig.
func (c *Config) RadarSettings() ld2450.Config {
	rc, err := c.radarConfig()
	if err != nil {
		// Load has already rejected this
		return ld2450.DefaultConfig()
	}
	return rc
}

func (c *Config) radarConfig() (ld2450.Config, error) {
	rc := ld2450.DefaultConfig()
	if c.Radar == nil {
		return rc, nil
	}
	if c.Radar.Tracking != nil {
		m, err := ParseTrackingMode(*c.Radar.Tracking)
		if err != nil {
			return rc, err
		}
		rc.Tracking = m
	}
	if c.Radar.Bluetooth != nil {
		rc.BluetoothEnabled = *c.Radar.Bluetooth
	}
	if f := c.Radar.Filtering; f != nil {
		kind, err := ParseFilterKind(f.Mode)
		if err != nil {
			return rc, err
		}
		rc.Filtering = ld2450.FilteringMode{Kind: kind, Regions: f.Regions}
	}
	return rc, nil
}

// ParseTrackingMode accepts the names printed by ld2450.TrackingMode.
func ParseTrackingMode(s string) (ld2450.TrackingMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "single":
		return ld2450.TrackingSingle, nil
	case "multiple", "multi", "":
		return ld2450.TrackingMultiple, nil
	default:
		return 0, fmt.Errorf("unknown tracking mode %q: expected single or multiple", s)
	}
}

// ParseFilterKind accepts the names printed by ld2450.FilterKind.
func ParseFilterKind(s string) (ld2450.FilterKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "off", "":
		return ld2450.FilterNone, nil
	case "inside":
		return ld2450.FilterInside, nil
	case "outside":
		return ld2450.FilterOutside, nil
	default:
		return 0, fmt.Errorf("unknown filtering mode %q: expected none, inside or outside", s)
	}
}

// GetPort returns the serial device path or the default.
func (c *Config) GetPort() string {
	if c.Serial == nil || c.Serial.Port == "" {
		return DefaultPort
	}
	return c.Serial.Port
}

// GetApplyOnStart reports whether the radar section is written at start-up.
func (c *Config) GetApplyOnStart() bool {
	if c.ApplyOnStart == nil {
		return c.Radar != nil // default: apply when there is something to apply
	}
	return *c.ApplyOnStart
}

// GetDBPath returns the database path or the default.
func (c *Config) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return DefaultDBPath
	}
	return *c.DBPath
}

// GetListen returns the HTTP listen address or the default.
func (c *Config) GetListen() string {
	if c.Listen == nil || *c.Listen == "" {
		return DefaultListen
	}
	return *c.Listen
}

// GetMQTTURL returns the broker URL, empty when forwarding is off.
func (c *Config) GetMQTTURL() string {
	if c.MQTTURL == nil {
		return ""
	}
	return *c.MQTTURL
}

// GetRetention returns how long stored frames are kept. Zero keeps them
// forever.
func (c *Config) GetRetention() time.Duration {
	if c.Retention == nil || *c.Retention == "" {
		return DefaultRetention
	}
	d, err := time.ParseDuration(*c.Retention)
	if err != nil {
		return DefaultRetention // default on parse error
	}
	return d
}

// GetRecordEmpty reports whether frames without targets are stored.
func (c *Config) GetRecordEmpty() bool {
	if c.RecordEmpty == nil {
		return false
	}
	return *c.RecordEmpty
}

// GetUnits returns the speed unit used by the JSON API.
func (c *Config) GetUnits() string {
	if c.Units == nil || *c.Units == "" {
		return DefaultUnits
	}
	return *c.Units
}
