// Package setup implements the wizard-side flow for registering a Venus
// Modbus device: parameter validation, duplicate-identity rejection,
// connection probing and entry construction. Entry storage, translation
// rendering and scheduling stay with the embedding host.
package setup

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/marstek-tools/venus-setup/config"
	"github.com/marstek-tools/venus-setup/probe"
	"github.com/marstek-tools/venus-setup/telemetry"
)

// Registry exposes the host-owned collection of already-registered entries.
// The flow only scans it; it never mutates the collection.
type Registry interface {
	Entries() []config.Entry
}

// RegistryFunc adapts a plain function to the Registry interface.
type RegistryFunc func() []config.Entry

// Entries implements Registry.
func (f RegistryFunc) Entries() []config.Entry {
	return f()
}

// Request carries the user-supplied connection parameters for a new entry.
// Zero port, unit id and device version take the system defaults.
type Request struct {
	Host          string
	Port          int
	UnitID        int
	DeviceVersion string
}

// Prober is the connection-validation collaborator. *probe.Prober satisfies it.
type Prober interface {
	Probe(ctx context.Context, target probe.Target) probe.Outcome
}

// Service drives the setup flow against a host-owned registry.
type Service struct {
	registry  Registry
	prober    Prober
	logger    zerolog.Logger
	collector telemetry.Collector
}

// Option customises a Service.
type Option func(*Service)

// WithProber replaces the connection prober, enabling fakes in tests.
func WithProber(prober Prober) Option {
	return func(s *Service) {
		if prober != nil {
			s.prober = prober
		}
	}
}

// WithLogger provides a custom logger instance for the flow.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithTelemetry injects a collector counting flow events.
func WithTelemetry(collector telemetry.Collector) Option {
	return func(s *Service) {
		if collector != nil {
			s.collector = collector
		}
	}
}

// New builds a setup Service scanning the given registry.
func New(registry Registry, opts ...Option) *Service {
	s := &Service{
		registry:  registry,
		prober:    probe.New(config.ProbeConfig{}),
		logger:    zerolog.Nop(),
		collector: telemetry.Noop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateEntry validates the request, rejects duplicate (host, unit id)
// identities before touching the network, probes the target and, on
// success, returns the entry to persist. The outcome is the symbolic error
// key for the host's form; OutcomeSuccess means the entry is usable.
func (s *Service) CreateEntry(ctx context.Context, req Request) (config.Entry, probe.Outcome) {
	entry := s.normalize(req)

	if entry.Host == "" {
		return config.Entry{}, probe.OutcomeInvalidHost
	}
	if !config.ValidPort(entry.Port) || !config.ValidUnitID(entry.UnitID) {
		return config.Entry{}, probe.OutcomeInvalidParameter
	}

	if s.alreadyConfigured(entry.Host, entry.UnitID) {
		s.logger.Info().Str("host", entry.Host).Int("unit_id", entry.UnitID).Msg("setup aborted, identity already configured")
		s.collector.IncDuplicateRejected()
		return config.Entry{}, probe.OutcomeAlreadyConfigured
	}

	outcome := s.prober.Probe(ctx, probe.Target{Host: entry.Host, Port: entry.Port, UnitID: entry.UnitID})
	if !outcome.OK() {
		return config.Entry{}, outcome
	}
	s.logger.Info().Str("host", entry.Host).Int("port", entry.Port).Int("unit_id", entry.UnitID).Str("device_version", entry.DeviceVersion).Msg("device validated")
	return entry, probe.OutcomeSuccess
}

// SetDeviceVersion patches the device version of an existing entry, used
// when an entry predates version tracking and needs the field backfilled.
func (s *Service) SetDeviceVersion(entry config.Entry, version string) (config.Entry, error) {
	if !config.ValidDeviceVersion(version) {
		return entry, &UnsupportedVersionError{Version: version}
	}
	entry.DeviceVersion = version
	s.logger.Info().Str("host", entry.Host).Str("device_version", version).Msg("device version updated")
	return entry, nil
}

func (s *Service) normalize(req Request) config.Entry {
	entry := config.Entry{
		Host:          req.Host,
		Port:          req.Port,
		UnitID:        req.UnitID,
		DeviceVersion: req.DeviceVersion,
	}
	if entry.Port == 0 {
		entry.Port = config.DefaultPort
	}
	if entry.UnitID == 0 {
		entry.UnitID = config.DefaultUnitID
	}
	if entry.DeviceVersion == "" {
		entry.DeviceVersion = config.SupportedDeviceVersions[0]
	}
	return entry
}

// alreadyConfigured scans the registry for a matching (host, unit id) pair.
// The port is deliberately not part of the identity.
func (s *Service) alreadyConfigured(host string, unitID int) bool {
	if s.registry == nil {
		return false
	}
	for _, existing := range s.registry.Entries() {
		if existing.Host == host && existing.UnitID == unitID {
			return true
		}
	}
	return false
}

// UnsupportedVersionError reports a device version outside the supported set.
type UnsupportedVersionError struct {
	Version string
}

func (e *UnsupportedVersionError) Error() string {
	return "unsupported device version " + e.Version
}
