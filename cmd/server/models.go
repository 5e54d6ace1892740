package main

import (
	"encoding/json"
	"time"

	"github.com/farmstead/automation/rules"
)

// API request and response models.

// CreateRuleRequest is the body for creating a rule. Trigger is the
// kind-tagged envelope decoded by rules.UnmarshalTrigger.
type CreateRuleRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Trigger     json.RawMessage `json:"trigger"`
	Action      rules.Action    `json:"action"`
}

// UpdateRuleRequest is the body for updating a rule. Omitted fields
// keep their current values.
type UpdateRuleRequest struct {
	Name        *string         `json:"name,omitempty"`
	Description *string         `json:"description,omitempty"`
	Trigger     json.RawMessage `json:"trigger,omitempty"`
	Action      *rules.Action   `json:"action,omitempty"`
	Status      *rules.Status   `json:"status,omitempty"`
	Enabled     *bool           `json:"enabled,omitempty"`
}

// RuleResponse is a rule in API responses.
type RuleResponse struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Description    string          `json:"description,omitempty"`
	Trigger        json.RawMessage `json:"trigger"`
	Action         rules.Action    `json:"action"`
	Status         rules.Status    `json:"status"`
	Enabled        bool            `json:"enabled"`
	ExecutionCount int             `json:"executionCount"`
	LastExecuted   *time.Time      `json:"lastExecuted,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

func toRuleResponse(r rules.Rule) (RuleResponse, error) {
	triggerJSON, err := rules.MarshalTrigger(r.Trigger)
	if err != nil {
		return RuleResponse{}, err
	}
	return RuleResponse{
		ID:             r.ID,
		Name:           r.Name,
		Description:    r.Description,
		Trigger:        triggerJSON,
		Action:         r.Action,
		Status:         r.Status,
		Enabled:        r.Enabled,
		ExecutionCount: r.ExecutionCount,
		LastExecuted:   r.LastExecuted,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}, nil
}

// EvaluateRequest carries a context snapshot for an evaluation tick.
type EvaluateRequest struct {
	Metrics       map[string]float64 `json:"metrics"`
	CurrentStage  string             `json:"currentStage,omitempty"`
	PreviousStage string             `json:"previousStage,omitempty"`
}

// FireResultResponse is one rule's outcome in an evaluation tick.
type FireResultResponse struct {
	RuleID   string `json:"ruleId"`
	RuleName string `json:"ruleName"`
	Fired    bool   `json:"fired"`
	Executed bool   `json:"executed"`
	Error    string `json:"error,omitempty"`
}

func toFireResultResponse(r rules.FireResult) FireResultResponse {
	out := FireResultResponse{
		RuleID:   r.RuleID,
		RuleName: r.RuleName,
		Fired:    r.Fired,
		Executed: r.Executed,
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return out
}

// TaskDeadlineEvent is the body for a task deadline crossing.
type TaskDeadlineEvent struct {
	TaskID    string `json:"taskId"`
	TaskTitle string `json:"taskTitle"`
	Threshold string `json:"threshold"` // due_soon | overdue
	Days      int    `json:"days"`
}

// StageChangeEvent is the body for a growth-stage advance.
type StageChangeEvent struct {
	PlantationID   string `json:"plantationId"`
	PlantationName string `json:"plantationName"`
	FromStage      string `json:"fromStage"`
	ToStage        string `json:"toStage"`
}

// WalletEvent is the body for a wallet connectivity change.
type WalletEvent struct {
	Activity string `json:"activity"` // connected | disconnected | watch_added | watch_removed
	Address  string `json:"address"`
}

// ToastResponse is one visible presentation entry.
type ToastResponse struct {
	AlertID   string    `json:"alertId"`
	Title     string    `json:"title"`
	Severity  string    `json:"severity"`
	ExpiresAt time.Time `json:"expiresAt"`
}
