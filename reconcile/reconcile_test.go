package reconcile

import (
	"testing"

	"github.com/marstek-tools/venus-setup/config"
)

func intPtr(v int) *int {
	return &v
}

type fakeCoordinator struct {
	unitIDs   []int
	intervals []Intervals
}

func (c *fakeCoordinator) SetUnitID(unitID int) {
	c.unitIDs = append(c.unitIDs, unitID)
}

func (c *fakeCoordinator) SetIntervals(intervals Intervals) {
	c.intervals = append(c.intervals, intervals)
}

func baseProfile() Profile {
	return Profile{
		UnitID: 1,
		Intervals: Intervals{
			High:    config.DefaultHighInterval,
			Medium:  config.DefaultMediumInterval,
			Low:     config.DefaultLowInterval,
			VeryLow: config.DefaultVeryLowInterval,
		},
	}
}

func TestReconcileKeepsExistingValuesWhenUnset(t *testing.T) {
	existing := baseProfile()
	result := Reconcile(existing, Submission{})
	if result.Profile != existing {
		t.Fatalf("unexpected profile: got %+v want %+v", result.Profile, existing)
	}
	if result.Changed() {
		t.Fatal("empty submission must not report a change")
	}
}

func TestReconcileClampsSubmittedValues(t *testing.T) {
	cases := []struct {
		name      string
		submitted Submission
		check     func(t *testing.T, p Profile)
	}{
		{
			name:      "interval above maximum",
			submitted: Submission{High: intPtr(5000)},
			check: func(t *testing.T, p Profile) {
				if p.Intervals.High != config.MaxInterval {
					t.Fatalf("unexpected high interval: got %d want %d", p.Intervals.High, config.MaxInterval)
				}
			},
		},
		{
			name:      "interval below minimum",
			submitted: Submission{Low: intPtr(0)},
			check: func(t *testing.T, p Profile) {
				if p.Intervals.Low != config.MinInterval {
					t.Fatalf("unexpected low interval: got %d want %d", p.Intervals.Low, config.MinInterval)
				}
			},
		},
		{
			name:      "unit id zero",
			submitted: Submission{UnitID: intPtr(0)},
			check: func(t *testing.T, p Profile) {
				if p.UnitID != config.MinUnitID {
					t.Fatalf("unexpected unit id: got %d want %d", p.UnitID, config.MinUnitID)
				}
			},
		},
		{
			name:      "unit id above maximum",
			submitted: Submission{UnitID: intPtr(400)},
			check: func(t *testing.T, p Profile) {
				if p.UnitID != config.MaxUnitID {
					t.Fatalf("unexpected unit id: got %d want %d", p.UnitID, config.MaxUnitID)
				}
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := Reconcile(baseProfile(), tc.submitted)
			tc.check(t, result.Profile)
		})
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	submitted := Submission{
		UnitID: intPtr(300),
		High:   intPtr(5000),
		Medium: intPtr(0),
		Low:    intPtr(45),
	}
	first := Reconcile(baseProfile(), submitted)
	second := Reconcile(first.Profile, submitted)
	if first.Profile != second.Profile {
		t.Fatalf("reconcile not idempotent: first %+v second %+v", first.Profile, second.Profile)
	}
	if second.Changed() {
		t.Fatal("second reconciliation must not report a change")
	}
}

func TestResolvePrecedence(t *testing.T) {
	entry := config.Entry{Host: "battery.local", Port: 502, UnitID: 7}

	profile := Resolve(entry, config.Options{})
	if profile.UnitID != 7 {
		t.Fatalf("expected entry unit id, got %d", profile.UnitID)
	}
	if profile.Intervals.Medium != config.DefaultMediumInterval {
		t.Fatalf("expected default medium interval, got %d", profile.Intervals.Medium)
	}

	profile = Resolve(entry, config.Options{UnitID: intPtr(9), High: intPtr(10)})
	if profile.UnitID != 9 {
		t.Fatalf("expected options unit id to win, got %d", profile.UnitID)
	}
	if profile.Intervals.High != 10 {
		t.Fatalf("expected options high interval to win, got %d", profile.Intervals.High)
	}

	profile = Resolve(config.Entry{Host: "battery.local", Port: 502}, config.Options{})
	if profile.UnitID != config.DefaultUnitID {
		t.Fatalf("expected default unit id, got %d", profile.UnitID)
	}
}

func TestApplyNotifiesCoordinatorOnChange(t *testing.T) {
	coordinator := &fakeCoordinator{}
	reconciler := NewReconciler(coordinator)

	result := reconciler.Apply(baseProfile(), Submission{UnitID: intPtr(3)})
	if !result.UnitIDChanged || result.IntervalsChanged {
		t.Fatalf("unexpected change flags: %+v", result)
	}
	if len(coordinator.unitIDs) != 1 || coordinator.unitIDs[0] != 3 {
		t.Fatalf("unexpected unit id notifications: %v", coordinator.unitIDs)
	}
	if len(coordinator.intervals) != 0 {
		t.Fatalf("unexpected interval notifications: %v", coordinator.intervals)
	}

	result = reconciler.Apply(result.Profile, Submission{High: intPtr(12)})
	if result.UnitIDChanged || !result.IntervalsChanged {
		t.Fatalf("unexpected change flags: %+v", result)
	}
	if len(coordinator.unitIDs) != 1 {
		t.Fatalf("unit id must not be re-notified: %v", coordinator.unitIDs)
	}
	if len(coordinator.intervals) != 1 || coordinator.intervals[0].High != 12 {
		t.Fatalf("unexpected interval notifications: %v", coordinator.intervals)
	}
}

func TestApplySilentWhenNothingChanges(t *testing.T) {
	coordinator := &fakeCoordinator{}
	reconciler := NewReconciler(coordinator)

	existing := baseProfile()
	result := reconciler.Apply(existing, Submission{UnitID: intPtr(existing.UnitID)})
	if result.Changed() {
		t.Fatalf("unexpected change: %+v", result)
	}
	if len(coordinator.unitIDs) != 0 || len(coordinator.intervals) != 0 {
		t.Fatal("coordinator must not be notified for an unchanged profile")
	}
}

func TestIntervalsLowest(t *testing.T) {
	intervals := Intervals{High: 5, Medium: 30, Low: 600, VeryLow: 3600}
	if lowest := intervals.Lowest(); lowest != 5 {
		t.Fatalf("unexpected lowest interval: got %d want 5", lowest)
	}
	intervals.High = 120
	if lowest := intervals.Lowest(); lowest != 30 {
		t.Fatalf("unexpected lowest interval: got %d want 30", lowest)
	}
}
