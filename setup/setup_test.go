package setup

import (
	"context"
	"errors"
	"testing"

	"github.com/marstek-tools/venus-setup/config"
	"github.com/marstek-tools/venus-setup/probe"
)

type fakeProber struct {
	outcome probe.Outcome
	targets []probe.Target
}

func (p *fakeProber) Probe(ctx context.Context, target probe.Target) probe.Outcome {
	p.targets = append(p.targets, target)
	return p.outcome
}

func registryWith(entries ...config.Entry) Registry {
	return RegistryFunc(func() []config.Entry {
		return entries
	})
}

func TestCreateEntrySuccessAppliesDefaults(t *testing.T) {
	prober := &fakeProber{outcome: probe.OutcomeSuccess}
	service := New(registryWith(), WithProber(prober))

	entry, outcome := service.CreateEntry(context.Background(), Request{Host: "battery.local"})
	if !outcome.OK() {
		t.Fatalf("unexpected outcome: %q", outcome)
	}
	if entry.Port != config.DefaultPort {
		t.Fatalf("unexpected port: got %d want %d", entry.Port, config.DefaultPort)
	}
	if entry.UnitID != config.DefaultUnitID {
		t.Fatalf("unexpected unit id: got %d want %d", entry.UnitID, config.DefaultUnitID)
	}
	if entry.DeviceVersion != config.SupportedDeviceVersions[0] {
		t.Fatalf("unexpected device version: got %q want %q", entry.DeviceVersion, config.SupportedDeviceVersions[0])
	}
	if len(prober.targets) != 1 {
		t.Fatalf("expected one probe, got %d", len(prober.targets))
	}
}

func TestCreateEntryRejectsDuplicateWithoutProbing(t *testing.T) {
	existing := config.Entry{Host: "battery.local", Port: 502, UnitID: 3}
	other := config.Entry{Host: "battery.local", Port: 1502, UnitID: 4}
	prober := &fakeProber{outcome: probe.OutcomeSuccess}
	service := New(registryWith(other, existing), WithProber(prober))

	// Same host and unit id on a different port is still the same identity.
	_, outcome := service.CreateEntry(context.Background(), Request{Host: "battery.local", Port: 8502, UnitID: 3})
	if outcome != probe.OutcomeAlreadyConfigured {
		t.Fatalf("unexpected outcome: got %q want %q", outcome, probe.OutcomeAlreadyConfigured)
	}
	if len(prober.targets) != 0 {
		t.Fatalf("expected no probe for a duplicate identity, got %d", len(prober.targets))
	}
}

func TestCreateEntryAllowsSameHostDifferentUnit(t *testing.T) {
	existing := config.Entry{Host: "battery.local", Port: 502, UnitID: 3}
	prober := &fakeProber{outcome: probe.OutcomeSuccess}
	service := New(registryWith(existing), WithProber(prober))

	_, outcome := service.CreateEntry(context.Background(), Request{Host: "battery.local", Port: 502, UnitID: 4})
	if !outcome.OK() {
		t.Fatalf("unexpected outcome: %q", outcome)
	}
	if len(prober.targets) != 1 {
		t.Fatalf("expected one probe, got %d", len(prober.targets))
	}
}

func TestCreateEntryPropagatesProbeFailure(t *testing.T) {
	prober := &fakeProber{outcome: probe.OutcomeUnitNoResponse}
	service := New(registryWith(), WithProber(prober))

	entry, outcome := service.CreateEntry(context.Background(), Request{Host: "battery.local"})
	if outcome != probe.OutcomeUnitNoResponse {
		t.Fatalf("unexpected outcome: got %q want %q", outcome, probe.OutcomeUnitNoResponse)
	}
	if entry != (config.Entry{}) {
		t.Fatalf("expected empty entry on failure, got %+v", entry)
	}
}

func TestCreateEntryValidatesRanges(t *testing.T) {
	prober := &fakeProber{outcome: probe.OutcomeSuccess}
	service := New(registryWith(), WithProber(prober))

	cases := []Request{
		{Host: "battery.local", Port: 70000},
		{Host: "battery.local", UnitID: 300},
	}
	for _, req := range cases {
		if _, outcome := service.CreateEntry(context.Background(), req); outcome != probe.OutcomeInvalidParameter {
			t.Fatalf("unexpected outcome for %+v: got %q want %q", req, outcome, probe.OutcomeInvalidParameter)
		}
	}
	if _, outcome := service.CreateEntry(context.Background(), Request{}); outcome != probe.OutcomeInvalidHost {
		t.Fatalf("unexpected outcome for empty host: got %q", outcome)
	}
	if len(prober.targets) != 0 {
		t.Fatalf("expected no probes for invalid requests, got %d", len(prober.targets))
	}
}

func TestSetDeviceVersion(t *testing.T) {
	service := New(registryWith())
	entry := config.Entry{Host: "battery.local", Port: 502, UnitID: 1}

	updated, err := service.SetDeviceVersion(entry, config.SupportedDeviceVersions[1])
	if err != nil {
		t.Fatalf("SetDeviceVersion: %v", err)
	}
	if updated.DeviceVersion != config.SupportedDeviceVersions[1] {
		t.Fatalf("unexpected device version: %q", updated.DeviceVersion)
	}

	_, err = service.SetDeviceVersion(entry, "venus_z")
	var unsupported *UnsupportedVersionError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedVersionError, got %v", err)
	}
	if unsupported.Version != "venus_z" {
		t.Fatalf("unexpected version in error: %q", unsupported.Version)
	}
}
