package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// EntryRecord couples a persisted entry with its options layer.
type EntryRecord struct {
	Entry   Entry   `yaml:"entry"`
	Options Options `yaml:"options,omitempty"`
}

// File is the on-disk shape consumed by the CLI host: the registered entries
// plus the ambient service settings.
type File struct {
	Entries   []EntryRecord   `yaml:"entries,omitempty"`
	Probe     ProbeConfig     `yaml:"probe,omitempty"`
	Logging   LoggingConfig   `yaml:"logging,omitempty"`
	Telemetry TelemetryConfig `yaml:"telemetry,omitempty"`
}

// Load reads and validates a store file. A missing file yields an empty
// store so a first run can create it.
func Load(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &File{}, nil
		}
		return nil, fmt.Errorf("read store %s: %w", path, err)
	}
	var file File
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse store %s: %w", path, err)
	}
	if err := file.Validate(); err != nil {
		return nil, fmt.Errorf("store %s: %w", path, err)
	}
	return &file, nil
}

// Save writes the store atomically next to its final location.
func Save(path string, file *File) error {
	if file == nil {
		return fmt.Errorf("store is nil")
	}
	if err := file.Validate(); err != nil {
		return err
	}
	raw, err := yaml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}
	tmp := filepath.Join(filepath.Dir(path), fmt.Sprintf(".%s.tmp", filepath.Base(path)))
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace store %s: %w", path, err)
	}
	return nil
}

// Validate checks declarative correctness. It MUST NOT mutate the store.
func (f *File) Validate() error {
	seen := make(map[string]int)
	for i, rec := range f.Entries {
		e := rec.Entry
		if e.Host == "" {
			return fmt.Errorf("entry %d: host must not be empty", i)
		}
		if !ValidPort(e.Port) {
			return fmt.Errorf("entry %d: port %d outside [%d,%d]", i, e.Port, MinPort, MaxPort)
		}
		if !ValidUnitID(e.UnitID) {
			return fmt.Errorf("entry %d: unit id %d outside [%d,%d]", i, e.UnitID, MinUnitID, MaxUnitID)
		}
		if e.DeviceVersion != "" && !ValidDeviceVersion(e.DeviceVersion) {
			return fmt.Errorf("entry %d: unsupported device version %q", i, e.DeviceVersion)
		}
		key := fmt.Sprintf("%s|%d", e.Host, e.UnitID)
		if prev, exists := seen[key]; exists {
			return fmt.Errorf("entry %d: duplicate host=%s unit_id=%d (already used by entry %d)", i, e.Host, e.UnitID, prev)
		}
		seen[key] = i
		if err := rec.Options.validate(i); err != nil {
			return err
		}
	}
	return nil
}

func (o Options) validate(index int) error {
	if o.UnitID != nil && !ValidUnitID(*o.UnitID) {
		return fmt.Errorf("entry %d options: unit id %d outside [%d,%d]", index, *o.UnitID, MinUnitID, MaxUnitID)
	}
	for name, v := range map[string]*int{"high": o.High, "medium": o.Medium, "low": o.Low, "very_low": o.VeryLow} {
		if v != nil && (*v < MinInterval || *v > MaxInterval) {
			return fmt.Errorf("entry %d options: %s interval %d outside [%d,%d]", index, name, *v, MinInterval, MaxInterval)
		}
	}
	return nil
}
