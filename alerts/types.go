package alerts

import (
	"errors"
	"time"
)

// ErrNotFound is returned when an alert ID does not resolve.
var ErrNotFound = errors.New("alert not found")

// Severity classifies an alert's urgency.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Channel is a delivery medium an alert is addressed to.
type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// DefaultChannels is the channel set applied when an event family does
// not override it.
func DefaultChannels() []Channel {
	return []Channel{ChannelInApp, ChannelEmail, ChannelSMS}
}

// Type categorizes the domain event an alert was normalized from.
type Type string

const (
	TypeTaskDue          Type = "task_due"
	TypeTaskOverdue      Type = "task_overdue"
	TypeStageChange      Type = "stage_change"
	TypeWalletActivity   Type = "wallet_activity"
	TypeRuleNotification Type = "rule_notification"
)

// SourceKind names the kind of domain entity an alert references.
type SourceKind string

const (
	SourceTask       SourceKind = "task"
	SourcePlantation SourceKind = "plantation"
	SourceWallet     SourceKind = "wallet"
	SourceRule       SourceKind = "rule"
)

// Source references the originating domain entity without owning it.
type Source struct {
	Kind SourceKind `json:"kind"`
	ID   string     `json:"id"`
}

// Request is an alert-construction request: fully populated except for
// identity and timestamp, which the dispatcher assigns.
type Request struct {
	Type        Type
	Title       string
	Description string
	Severity    Severity
	Metadata    map[string]string
	Source      Source
	Channels    []Channel
	DedupeKey   string
}

// Alert is a dispatched, identity-bearing alert. Two alerts sharing a
// DedupeKey while the earlier one is unacknowledged collapse to one.
type Alert struct {
	ID           string            `json:"id"`
	Type         Type              `json:"type"`
	Title        string            `json:"title"`
	Description  string            `json:"description"`
	Severity     Severity          `json:"severity"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Source       Source            `json:"source"`
	Channels     []Channel         `json:"channels"`
	DedupeKey    string            `json:"dedupeKey"`
	Acknowledged bool              `json:"acknowledged"`
	CreatedAt    time.Time         `json:"createdAt"`
}
