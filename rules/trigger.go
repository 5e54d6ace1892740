package rules

import (
	"strconv"
	"strings"
	"time"
)

// Context is the snapshot of farm state a trigger is evaluated against.
// Domain stores assemble one per evaluation call; the evaluator never
// reaches back into them.
type Context struct {
	Metrics       map[string]float64
	CurrentStage  string
	PreviousStage string
}

// Facts flattens the snapshot into the activation map used for CEL
// condition triggers.
func (c Context) Facts() map[string]any {
	metrics := make(map[string]any, len(c.Metrics))
	for k, v := range c.Metrics {
		metrics[k] = v
	}
	return map[string]any{
		"metrics":       metrics,
		"currentStage":  c.CurrentStage,
		"previousStage": c.PreviousStage,
	}
}

// ShouldFire reports whether the rule's trigger matches the snapshot at
// the given wall-clock instant. Pure: no side effects, never errors.
// Anything unrecognized (operator, schedule, trigger kind) or missing
// (metric, stage fields) evaluates false.
//
// ConditionTrigger rules also evaluate false here; they need a compiled
// program and are handled by Engine.ShouldFire.
func ShouldFire(r Rule, ctx Context, now time.Time) bool {
	if !r.Enabled || r.Status != StatusActive {
		return false
	}

	switch t := r.Trigger.(type) {
	case ThresholdTrigger:
		value, ok := ctx.Metrics[t.Metric]
		if !ok {
			return false
		}
		return compare(value, t.Operator, t.Threshold)
	case StageTrigger:
		return ctx.CurrentStage == t.ToStage && ctx.PreviousStage == t.FromStage
	case TimeTrigger:
		return scheduleMatches(t.Schedule, now)
	default:
		return false
	}
}

func compare(value float64, op Operator, threshold float64) bool {
	switch op {
	case OpGreater:
		return value > threshold
	case OpLess:
		return value < threshold
	case OpGreaterEqual:
		return value >= threshold
	case OpLessEqual:
		return value <= threshold
	case OpEqual:
		return value == threshold
	default:
		return false
	}
}

// scheduleMatches evaluates a schedule string against wall-clock time.
// "daily" matches every call; no last-fired state is consulted, so the
// caller's evaluation cadence determines firing frequency.
func scheduleMatches(schedule string, now time.Time) bool {
	switch {
	case schedule == "daily":
		return true
	case schedule == "weekly":
		return now.Weekday() == time.Sunday
	case schedule == "monthly":
		return now.Day() == 1
	case strings.HasPrefix(schedule, "hourly-"):
		hour, err := strconv.Atoi(strings.TrimPrefix(schedule, "hourly-"))
		if err != nil {
			return false
		}
		return now.Hour() == hour
	default:
		return false
	}
}
