// Package reconcile merges persisted polling settings with user-submitted
// values and notifies the host's polling coordinator of the result. It owns
// no state: each reconciliation is a full read-modify-write against the
// entry's current stored profile.
package reconcile

import (
	"github.com/rs/zerolog"

	"github.com/marstek-tools/venus-setup/config"
	"github.com/marstek-tools/venus-setup/telemetry"
)

// Intervals holds the four polling-rate tiers in seconds.
type Intervals struct {
	High    int `yaml:"high"`
	Medium  int `yaml:"medium"`
	Low     int `yaml:"low"`
	VeryLow int `yaml:"very_low"`
}

// Lowest returns the smallest configured interval.
func (i Intervals) Lowest() int {
	lowest := i.High
	for _, v := range []int{i.Medium, i.Low, i.VeryLow} {
		if v < lowest {
			lowest = v
		}
	}
	return lowest
}

// Profile is the polling profile owned by one configuration entry.
type Profile struct {
	UnitID    int
	Intervals Intervals
}

// Submission carries the user-supplied option values. Nil fields keep the
// existing profile value.
type Submission struct {
	UnitID  *int
	High    *int
	Medium  *int
	Low     *int
	VeryLow *int
}

// Coordinator is the external scheduling collaborator. Notifications are
// fire-and-forget; no acknowledgement is expected.
type Coordinator interface {
	SetUnitID(unitID int)
	SetIntervals(intervals Intervals)
}

// Result is the output of one reconciliation.
type Result struct {
	Profile          Profile
	UnitIDChanged    bool
	IntervalsChanged bool
}

// Changed reports whether anything differs from the previous profile.
func (r Result) Changed() bool {
	return r.UnitIDChanged || r.IntervalsChanged
}

// Resolve derives the starting profile for an entry with options-then-data-
// then-default precedence.
func Resolve(entry config.Entry, options config.Options) Profile {
	profile := Profile{
		UnitID: config.ClampUnitID(fallback(options.UnitID, entry.UnitID, config.DefaultUnitID)),
		Intervals: Intervals{
			High:    config.ClampInterval(fallback(options.High, 0, config.DefaultHighInterval)),
			Medium:  config.ClampInterval(fallback(options.Medium, 0, config.DefaultMediumInterval)),
			Low:     config.ClampInterval(fallback(options.Low, 0, config.DefaultLowInterval)),
			VeryLow: config.ClampInterval(fallback(options.VeryLow, 0, config.DefaultVeryLowInterval)),
		},
	}
	return profile
}

func fallback(submitted *int, stored, def int) int {
	if submitted != nil {
		return *submitted
	}
	if stored != 0 {
		return stored
	}
	return def
}

// Reconcile merges submitted values into the existing profile, clamping each
// field to its valid range. It is pure and idempotent: reconciling the
// resulting profile with the same submission yields the same result.
func Reconcile(existing Profile, submitted Submission) Result {
	next := Profile{
		UnitID: config.ClampUnitID(fallback(submitted.UnitID, existing.UnitID, config.DefaultUnitID)),
		Intervals: Intervals{
			High:    config.ClampInterval(fallback(submitted.High, existing.Intervals.High, config.DefaultHighInterval)),
			Medium:  config.ClampInterval(fallback(submitted.Medium, existing.Intervals.Medium, config.DefaultMediumInterval)),
			Low:     config.ClampInterval(fallback(submitted.Low, existing.Intervals.Low, config.DefaultLowInterval)),
			VeryLow: config.ClampInterval(fallback(submitted.VeryLow, existing.Intervals.VeryLow, config.DefaultVeryLowInterval)),
		},
	}
	return Result{
		Profile:          next,
		UnitIDChanged:    next.UnitID != existing.UnitID,
		IntervalsChanged: next.Intervals != existing.Intervals,
	}
}

// Options renders the profile back into the persisted options layer.
func (p Profile) Options() config.Options {
	unitID := p.UnitID
	high := p.Intervals.High
	medium := p.Intervals.Medium
	low := p.Intervals.Low
	veryLow := p.Intervals.VeryLow
	return config.Options{UnitID: &unitID, High: &high, Medium: &medium, Low: &low, VeryLow: &veryLow}
}

// Reconciler applies reconciliations and notifies the coordinator.
type Reconciler struct {
	coordinator Coordinator
	logger      zerolog.Logger
	collector   telemetry.Collector
}

// Option customises a Reconciler.
type Option func(*Reconciler)

// WithLogger provides a custom logger instance for the reconciler.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

// WithTelemetry injects a collector counting reconciliations.
func WithTelemetry(collector telemetry.Collector) Option {
	return func(r *Reconciler) {
		if collector != nil {
			r.collector = collector
		}
	}
}

// NewReconciler builds a Reconciler bound to the host's coordinator. A nil
// coordinator is allowed; notifications are then dropped.
func NewReconciler(coordinator Coordinator, opts ...Option) *Reconciler {
	r := &Reconciler{
		coordinator: coordinator,
		logger:      zerolog.Nop(),
		collector:   telemetry.Noop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Apply reconciles the submission against the existing profile and, when the
// unit id or any interval differs, notifies the coordinator so it re-arms
// its timers and retargets subsequent reads. Redundant notifications for
// identical submissions are harmless.
func (r *Reconciler) Apply(existing Profile, submitted Submission) Result {
	result := Reconcile(existing, submitted)
	r.collector.IncReconcile(result.Changed())
	if r.coordinator == nil {
		return result
	}
	if result.UnitIDChanged {
		r.logger.Info().Int("unit_id", result.Profile.UnitID).Msg("updating coordinator unit id")
		r.coordinator.SetUnitID(result.Profile.UnitID)
	}
	if result.IntervalsChanged {
		r.logger.Info().
			Int("high", result.Profile.Intervals.High).
			Int("medium", result.Profile.Intervals.Medium).
			Int("low", result.Profile.Intervals.Low).
			Int("very_low", result.Profile.Intervals.VeryLow).
			Msg("re-arming coordinator intervals")
		r.coordinator.SetIntervals(result.Profile.Intervals)
	}
	return result
}
