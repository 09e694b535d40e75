package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling from strings.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration strings like "5s" or "1m".
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return fmt.Errorf("duration value node is nil")
	}
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}
	if raw == "" {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = dur
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Valid ranges for connection and polling parameters.
const (
	MinPort = 1
	MaxPort = 65535

	MinUnitID = 1
	MaxUnitID = 255

	MinInterval = 1
	MaxInterval = 3600
)

// Defaults applied when the user or the stored entry leaves a value unset.
const (
	DefaultPort   = 502
	DefaultUnitID = 1

	DefaultHighInterval    = 5
	DefaultMediumInterval  = 30
	DefaultLowInterval     = 600
	DefaultVeryLowInterval = 3600

	// DefaultProbeRegister is a holding register present on all supported
	// device generations; the prober reads it to verify the unit id answers.
	DefaultProbeRegister = 32101
)

// SupportedDeviceVersions lists the device generations the integration knows
// register maps for. The first element is the default at setup time.
var SupportedDeviceVersions = []string{"venus_e_v1", "venus_e_v2", "venus_d"}

// Entry is the persisted shape of one configured device connection.
type Entry struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	UnitID        int    `yaml:"unit_id"`
	DeviceVersion string `yaml:"device_version,omitempty"`
}

// Options is the mutable options layer stored next to an entry. All fields
// are optional; unset fields fall back to the entry data and then to the
// package defaults.
type Options struct {
	UnitID  *int `yaml:"unit_id,omitempty"`
	High    *int `yaml:"high,omitempty"`
	Medium  *int `yaml:"medium,omitempty"`
	Low     *int `yaml:"low,omitempty"`
	VeryLow *int `yaml:"very_low,omitempty"`
}

// ProbeConfig bounds the two phases of a connection probe.
type ProbeConfig struct {
	ConnectTimeout Duration `yaml:"connect_timeout,omitempty"`
	ReadTimeout    Duration `yaml:"read_timeout,omitempty"`
	Register       uint16   `yaml:"register,omitempty"`
}

// Normalize fills unset probe settings with their defaults.
func (p ProbeConfig) Normalize() ProbeConfig {
	if p.ConnectTimeout.Duration <= 0 {
		p.ConnectTimeout.Duration = 3 * time.Second
	}
	if p.ReadTimeout.Duration <= 0 {
		p.ReadTimeout.Duration = 5 * time.Second
	}
	if p.Register == 0 {
		p.Register = DefaultProbeRegister
	}
	return p
}

// LokiConfig controls optional log shipping to a Loki endpoint.
type LokiConfig struct {
	Enabled bool              `yaml:"enabled"`
	URL     string            `yaml:"url"`
	Labels  map[string]string `yaml:"labels,omitempty"`
}

// LoggingConfig selects log level, output format and optional Loki shipping.
type LoggingConfig struct {
	Level  string     `yaml:"level,omitempty"`
	Format string     `yaml:"format,omitempty"`
	Loki   LokiConfig `yaml:"loki,omitempty"`
}

// TelemetryConfig toggles Prometheus metric registration.
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled"`
}

// ClampUnitID forces a unit id into [MinUnitID, MaxUnitID].
func ClampUnitID(v int) int {
	if v < MinUnitID {
		return MinUnitID
	}
	if v > MaxUnitID {
		return MaxUnitID
	}
	return v
}

// ClampInterval forces a polling interval into [MinInterval, MaxInterval].
func ClampInterval(v int) int {
	if v < MinInterval {
		return MinInterval
	}
	if v > MaxInterval {
		return MaxInterval
	}
	return v
}

// ValidPort reports whether p is a usable TCP port.
func ValidPort(p int) bool {
	return p >= MinPort && p <= MaxPort
}

// ValidUnitID reports whether u is a usable Modbus unit identifier.
func ValidUnitID(u int) bool {
	return u >= MinUnitID && u <= MaxUnitID
}

// ValidDeviceVersion reports whether v names a supported device generation.
func ValidDeviceVersion(v string) bool {
	for _, s := range SupportedDeviceVersions {
		if s == v {
			return true
		}
	}
	return false
}
