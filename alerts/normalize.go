package alerts

import "fmt"

// Normalizer builders: one pure function per domain event family, each
// returning a Request the dispatcher can create idempotently.

// DeadlineThreshold distinguishes the two task-deadline event shapes.
type DeadlineThreshold string

const (
	DueSoon DeadlineThreshold = "due_soon"
	Overdue DeadlineThreshold = "overdue"
)

// TaskDeadline normalizes a task deadline crossing. Due-soon events are
// warnings, overdue events are critical.
func TaskDeadline(taskID, taskTitle string, threshold DeadlineThreshold, days int) Request {
	req := Request{
		Metadata:  map[string]string{"taskId": taskID, "days": fmt.Sprintf("%d", days)},
		Source:    Source{Kind: SourceTask, ID: taskID},
		Channels:  DefaultChannels(),
		DedupeKey: fmt.Sprintf("task-%s-%s", taskID, threshold),
	}
	switch threshold {
	case Overdue:
		req.Type = TypeTaskOverdue
		req.Severity = SeverityCritical
		req.Title = "Task overdue"
		req.Description = fmt.Sprintf("%q is %s overdue", taskTitle, pluralDays(days))
	default:
		req.Type = TypeTaskDue
		req.Severity = SeverityWarning
		req.Title = "Task due soon"
		req.Description = fmt.Sprintf("%q is due in %s", taskTitle, pluralDays(days))
	}
	return req
}

// StageChange normalizes a plantation advancing between growth stages.
func StageChange(plantationID, plantationName, fromStage, toStage string) Request {
	return Request{
		Type:        TypeStageChange,
		Title:       "Growth stage advanced",
		Description: fmt.Sprintf("%s moved from %s to %s", plantationName, fromStage, toStage),
		Severity:    SeverityInfo,
		Metadata: map[string]string{
			"plantationId": plantationID,
			"fromStage":    fromStage,
			"toStage":      toStage,
		},
		Source:    Source{Kind: SourcePlantation, ID: plantationID},
		Channels:  DefaultChannels(),
		DedupeKey: fmt.Sprintf("stage-%s-%s", plantationID, toStage),
	}
}

// WalletActivityKind is the wallet connectivity event family.
type WalletActivityKind string

const (
	WalletConnected    WalletActivityKind = "connected"
	WalletDisconnected WalletActivityKind = "disconnected"
	WalletWatchAdded   WalletActivityKind = "watch_added"
	WalletWatchRemoved WalletActivityKind = "watch_removed"
)

// WalletActivity normalizes a wallet connectivity change. Disconnects
// are warnings, everything else informational.
func WalletActivity(activity WalletActivityKind, address string) Request {
	severity := SeverityInfo
	if activity == WalletDisconnected {
		severity = SeverityWarning
	}

	var title string
	switch activity {
	case WalletConnected:
		title = "Wallet connected"
	case WalletDisconnected:
		title = "Wallet disconnected"
	case WalletWatchAdded:
		title = "Watch address added"
	case WalletWatchRemoved:
		title = "Watch address removed"
	default:
		title = "Wallet activity"
	}

	return Request{
		Type:        TypeWalletActivity,
		Title:       title,
		Description: fmt.Sprintf("%s (%s)", title, ShortenAddress(address)),
		Severity:    severity,
		Metadata:    map[string]string{"activity": string(activity), "address": address},
		Source:      Source{Kind: SourceWallet, ID: address},
		Channels:    DefaultChannels(),
		DedupeKey:   fmt.Sprintf("wallet-%s-%s", activity, address),
	}
}

// ShortenAddress abbreviates a wallet address for display: first 6 and
// last 4 characters joined with an ellipsis. Addresses of 10 characters
// or fewer are returned unchanged.
func ShortenAddress(address string) string {
	if len(address) <= 10 {
		return address
	}
	return address[:6] + "…" + address[len(address)-4:]
}

func pluralDays(days int) string {
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}
