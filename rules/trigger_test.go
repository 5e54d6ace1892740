package rules

import (
	"testing"
	"time"
)

func activeRule(trigger Trigger) Rule {
	return Rule{
		ID:      "rule-1",
		Name:    "Test Rule",
		Trigger: trigger,
		Action:  Action{Kind: ActionSendNotification},
		Status:  StatusActive,
		Enabled: true,
	}
}

// TestShouldFireGuard verifies a rule never fires unless it is both
// enabled and active, regardless of how well the trigger matches.
func TestShouldFireGuard(t *testing.T) {
	ctx := Context{Metrics: map[string]float64{"healthScore": 65}}
	trigger := ThresholdTrigger{Metric: "healthScore", Operator: OpLess, Threshold: 70}

	tests := []struct {
		name    string
		enabled bool
		status  Status
		want    bool
	}{
		{"enabled and active", true, StatusActive, true},
		{"disabled flag", false, StatusActive, false},
		{"paused", true, StatusPaused, false},
		{"disabled status", true, StatusDisabled, false},
		{"disabled flag and paused", false, StatusPaused, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := activeRule(trigger)
			r.Enabled = tt.enabled
			r.Status = tt.status
			if got := ShouldFire(r, ctx, time.Now()); got != tt.want {
				t.Errorf("ShouldFire() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestShouldFireThreshold verifies operator handling and the
// fail-closed default for missing metrics and unknown operators.
func TestShouldFireThreshold(t *testing.T) {
	tests := []struct {
		name    string
		trigger ThresholdTrigger
		metrics map[string]float64
		want    bool
	}{
		{
			"less than matches",
			ThresholdTrigger{Metric: "healthScore", Operator: OpLess, Threshold: 70},
			map[string]float64{"healthScore": 65},
			true,
		},
		{
			"less than misses",
			ThresholdTrigger{Metric: "healthScore", Operator: OpLess, Threshold: 70},
			map[string]float64{"healthScore": 75},
			false,
		},
		{
			"metric absent",
			ThresholdTrigger{Metric: "healthScore", Operator: OpLess, Threshold: 70},
			map[string]float64{},
			false,
		},
		{
			"greater than",
			ThresholdTrigger{Metric: "soilMoisture", Operator: OpGreater, Threshold: 40},
			map[string]float64{"soilMoisture": 55.5},
			true,
		},
		{
			"greater or equal at boundary",
			ThresholdTrigger{Metric: "temp", Operator: OpGreaterEqual, Threshold: 30},
			map[string]float64{"temp": 30},
			true,
		},
		{
			"less or equal at boundary",
			ThresholdTrigger{Metric: "temp", Operator: OpLessEqual, Threshold: 30},
			map[string]float64{"temp": 30},
			true,
		},
		{
			"equal",
			ThresholdTrigger{Metric: "ph", Operator: OpEqual, Threshold: 6.5},
			map[string]float64{"ph": 6.5},
			true,
		},
		{
			"unknown operator",
			ThresholdTrigger{Metric: "ph", Operator: Operator("!="), Threshold: 6.5},
			map[string]float64{"ph": 7},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := activeRule(tt.trigger)
			got := ShouldFire(r, Context{Metrics: tt.metrics}, time.Now())
			if got != tt.want {
				t.Errorf("ShouldFire() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestShouldFireStageChange verifies both stage fields must match
// exactly, with missing fields failing closed.
func TestShouldFireStageChange(t *testing.T) {
	trigger := StageTrigger{FromStage: "planted", ToStage: "growing"}

	tests := []struct {
		name     string
		current  string
		previous string
		want     bool
	}{
		{"exact match", "growing", "planted", true},
		{"wrong previous stage", "growing", "harvested", false},
		{"wrong current stage", "flowering", "planted", false},
		{"both empty", "", "", false},
		{"missing previous", "growing", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := Context{CurrentStage: tt.current, PreviousStage: tt.previous}
			if got := ShouldFire(activeRule(trigger), ctx, time.Now()); got != tt.want {
				t.Errorf("ShouldFire() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestShouldFireTimeBased verifies schedule strings against fixed
// wall-clock instants. "daily" matches every call by design: no
// last-fired state is consulted, the caller's cadence sets frequency.
func TestShouldFireTimeBased(t *testing.T) {
	sunday := time.Date(2024, 1, 7, 12, 0, 0, 0, time.UTC)
	monday := time.Date(2024, 1, 8, 12, 0, 0, 0, time.UTC)
	firstOfMonth := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)
	nineAM := time.Date(2024, 1, 8, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		schedule string
		now      time.Time
		want     bool
	}{
		{"daily on a sunday", "daily", sunday, true},
		{"daily on a monday", "daily", monday, true},
		{"daily on the first", "daily", firstOfMonth, true},
		{"weekly on sunday", "weekly", sunday, true},
		{"weekly on monday", "weekly", monday, false},
		{"monthly on the first", "monthly", firstOfMonth, true},
		{"monthly mid-month", "monthly", monday, false},
		{"hourly match", "hourly-9", nineAM, true},
		{"hourly mismatch", "hourly-9", monday, false},
		{"hourly malformed", "hourly-x", nineAM, false},
		{"unknown schedule", "fortnightly", sunday, false},
		{"empty schedule", "", sunday, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := activeRule(TimeTrigger{Schedule: tt.schedule})
			if got := ShouldFire(r, Context{}, tt.now); got != tt.want {
				t.Errorf("ShouldFire(%q at %v) = %v, want %v", tt.schedule, tt.now, got, tt.want)
			}
		})
	}
}

// TestShouldFireFailClosedKinds verifies reserved and unknown trigger
// kinds evaluate false without error.
func TestShouldFireFailClosedKinds(t *testing.T) {
	ctx := Context{
		Metrics:       map[string]float64{"healthScore": 10},
		CurrentStage:  "growing",
		PreviousStage: "planted",
	}

	triggers := []Trigger{
		TaskCompletionTrigger{},
		EventTrigger{Event: "harvest_logged"},
		ConditionTrigger{Expression: "true"}, // needs a compiled program
		UnknownTrigger{Raw: TriggerKind("lunar_phase")},
	}

	for _, trigger := range triggers {
		if ShouldFire(activeRule(trigger), ctx, time.Now()) {
			t.Errorf("ShouldFire() = true for %T, want false", trigger)
		}
	}
}
