package rules

import (
	"time"

	"github.com/google/uuid"
)

// NewRule builds a rule that starts active and enabled with zero
// executions.
func NewRule(name, description string, trigger Trigger, action Action) Rule {
	now := time.Now()
	return Rule{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Trigger:     trigger,
		Action:      action,
		Status:      StatusActive,
		Enabled:     true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Toggle flips Enabled and maps Status between active and paused.
// Toggling twice from the active/paused sub-lifecycle returns the
// original value. A disabled rule keeps StatusDisabled: Enabled still
// flips, but re-activation is an administrative store update, so the
// involution does not hold there.
func Toggle(r Rule) Rule {
	r.Enabled = !r.Enabled
	if r.Status != StatusDisabled {
		if r.Enabled {
			r.Status = StatusActive
		} else {
			r.Status = StatusPaused
		}
	}
	return r
}

// Execute records one firing: increments the execution counter and
// stamps LastExecuted. It does not perform the action; the caller
// invokes the executor and decides recording order relative to action
// success (see RecordMode on the Engine).
func Execute(r Rule, now time.Time) Rule {
	r.ExecutionCount++
	r.LastExecuted = &now
	return r
}

// ActiveRules filters to rules that can fire, preserving input order.
func ActiveRules(all []Rule) []Rule {
	var out []Rule
	for _, r := range all {
		if r.Enabled && r.Status == StatusActive {
			out = append(out, r)
		}
	}
	return out
}

// ByTrigger filters by trigger kind, preserving input order.
func ByTrigger(all []Rule, kind TriggerKind) []Rule {
	var out []Rule
	for _, r := range all {
		if r.Trigger != nil && r.Trigger.Kind() == kind {
			out = append(out, r)
		}
	}
	return out
}

// ByAction filters by action kind, preserving input order.
func ByAction(all []Rule, kind ActionKind) []Rule {
	var out []Rule
	for _, r := range all {
		if r.Action.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}

// Summary aggregates a rule set by status, trigger, and action.
type Summary struct {
	Total           int                 `json:"total"`
	ByStatus        map[Status]int      `json:"byStatus"`
	ByTrigger       map[TriggerKind]int `json:"byTrigger"`
	ByAction        map[ActionKind]int  `json:"byAction"`
	TotalExecutions int                 `json:"totalExecutions"`
}

// Summarize reduces a rule set to aggregate counts.
func Summarize(all []Rule) Summary {
	s := Summary{
		Total:     len(all),
		ByStatus:  make(map[Status]int),
		ByTrigger: make(map[TriggerKind]int),
		ByAction:  make(map[ActionKind]int),
	}
	for _, r := range all {
		s.ByStatus[r.Status]++
		if r.Trigger != nil {
			s.ByTrigger[r.Trigger.Kind()]++
		}
		s.ByAction[r.Action.Kind]++
		s.TotalExecutions += r.ExecutionCount
	}
	return s
}
