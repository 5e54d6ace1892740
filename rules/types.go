package rules

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the lifecycle state of a rule.
type Status string

const (
	StatusActive   Status = "active"
	StatusPaused   Status = "paused"
	StatusDisabled Status = "disabled"
)

// TriggerKind discriminates the trigger variants.
type TriggerKind string

const (
	TriggerTime           TriggerKind = "time_based"
	TriggerStageChange    TriggerKind = "stage_change"
	TriggerThreshold      TriggerKind = "threshold"
	TriggerTaskCompletion TriggerKind = "task_completion"
	TriggerEvent          TriggerKind = "event_based"
	TriggerCondition      TriggerKind = "condition"
)

// Operator is a comparison operator for threshold triggers.
type Operator string

const (
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
	OpEqual        Operator = "=="
)

// Trigger is the closed set of conditions that can fire a rule.
// Unrecognized kinds decode to a value that never fires rather than
// failing, so rows written by a newer version stay loadable.
type Trigger interface {
	Kind() TriggerKind
	isTrigger()
}

// TimeTrigger fires on a wall-clock schedule: "daily", "weekly",
// "monthly", or "hourly-N".
type TimeTrigger struct {
	Schedule string
}

// StageTrigger fires when a plantation advances from FromStage to ToStage.
type StageTrigger struct {
	FromStage string
	ToStage   string
}

// ThresholdTrigger fires when a context metric compares true against
// Threshold under Operator.
type ThresholdTrigger struct {
	Metric    string
	Operator  Operator
	Threshold float64
}

// TaskCompletionTrigger is reserved; it never fires from a context snapshot.
type TaskCompletionTrigger struct{}

// EventTrigger is reserved; it never fires from a context snapshot.
type EventTrigger struct {
	Event string
}

// ConditionTrigger fires when its CEL expression evaluates to true
// against the context snapshot. Requires compilation by the Engine.
type ConditionTrigger struct {
	Expression string
}

// UnknownTrigger is produced when decoding a trigger kind this version
// does not recognize. It never fires.
type UnknownTrigger struct {
	Raw TriggerKind
}

func (TimeTrigger) Kind() TriggerKind           { return TriggerTime }
func (StageTrigger) Kind() TriggerKind          { return TriggerStageChange }
func (ThresholdTrigger) Kind() TriggerKind      { return TriggerThreshold }
func (TaskCompletionTrigger) Kind() TriggerKind { return TriggerTaskCompletion }
func (EventTrigger) Kind() TriggerKind          { return TriggerEvent }
func (ConditionTrigger) Kind() TriggerKind      { return TriggerCondition }
func (u UnknownTrigger) Kind() TriggerKind      { return u.Raw }

func (TimeTrigger) isTrigger()           {}
func (StageTrigger) isTrigger()          {}
func (ThresholdTrigger) isTrigger()      {}
func (TaskCompletionTrigger) isTrigger() {}
func (EventTrigger) isTrigger()          {}
func (ConditionTrigger) isTrigger()      {}
func (UnknownTrigger) isTrigger()        {}

// ActionKind names the external effect a rule requests when it fires.
type ActionKind string

const (
	ActionCreateTask       ActionKind = "create_task"
	ActionSendNotification ActionKind = "send_notification"
	ActionGenerateReport   ActionKind = "generate_report"
	ActionAdjustSchedule   ActionKind = "adjust_schedule"
)

// Action binds an external effect to an opaque configuration map.
// The core never interprets Config beyond carrying it to the executor.
type Action struct {
	Kind   ActionKind     `json:"kind"`
	Config map[string]any `json:"config,omitempty"`
}

// Rule binds a trigger to an action with lifecycle and execution
// bookkeeping. Rules are passed by value; mutating operations return a
// new value and the owning store serializes write-back.
type Rule struct {
	ID             string
	Name           string
	Description    string
	Trigger        Trigger
	Action         Action
	Status         Status
	Enabled        bool
	ExecutionCount int
	LastExecuted   *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// triggerEnvelope is the wire/storage form of a Trigger.
type triggerEnvelope struct {
	Kind       TriggerKind `json:"kind"`
	Schedule   string      `json:"schedule,omitempty"`
	FromStage  string      `json:"fromStage,omitempty"`
	ToStage    string      `json:"toStage,omitempty"`
	Metric     string      `json:"metric,omitempty"`
	Operator   Operator    `json:"operator,omitempty"`
	Threshold  float64     `json:"threshold,omitempty"`
	Event      string      `json:"event,omitempty"`
	Expression string      `json:"expression,omitempty"`
}

// MarshalTrigger encodes a trigger as a kind-tagged JSON object.
func MarshalTrigger(t Trigger) ([]byte, error) {
	env := triggerEnvelope{Kind: t.Kind()}
	switch v := t.(type) {
	case TimeTrigger:
		env.Schedule = v.Schedule
	case StageTrigger:
		env.FromStage = v.FromStage
		env.ToStage = v.ToStage
	case ThresholdTrigger:
		env.Metric = v.Metric
		env.Operator = v.Operator
		env.Threshold = v.Threshold
	case TaskCompletionTrigger:
	case EventTrigger:
		env.Event = v.Event
	case ConditionTrigger:
		env.Expression = v.Expression
	case UnknownTrigger:
	default:
		return nil, fmt.Errorf("unsupported trigger type %T", t)
	}
	return json.Marshal(env)
}

// UnmarshalTrigger decodes a kind-tagged JSON object into a Trigger.
// Unrecognized kinds yield UnknownTrigger, preserving fail-closed
// evaluation for variants added by later versions.
func UnmarshalTrigger(data []byte) (Trigger, error) {
	var env triggerEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode trigger: %w", err)
	}
	switch env.Kind {
	case TriggerTime:
		return TimeTrigger{Schedule: env.Schedule}, nil
	case TriggerStageChange:
		return StageTrigger{FromStage: env.FromStage, ToStage: env.ToStage}, nil
	case TriggerThreshold:
		return ThresholdTrigger{Metric: env.Metric, Operator: env.Operator, Threshold: env.Threshold}, nil
	case TriggerTaskCompletion:
		return TaskCompletionTrigger{}, nil
	case TriggerEvent:
		return EventTrigger{Event: env.Event}, nil
	case TriggerCondition:
		return ConditionTrigger{Expression: env.Expression}, nil
	default:
		return UnknownTrigger{Raw: env.Kind}, nil
	}
}
