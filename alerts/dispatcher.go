package alerts

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// AlertStore persists alerts. Implementations must be safe for
// concurrent use; the dispatcher provides the check-then-insert
// atomicity for dedup on top.
type AlertStore interface {
	// Add stores a new alert.
	Add(alert Alert) error

	// Get retrieves an alert by ID. Wraps ErrNotFound for unknown IDs.
	Get(id string) (Alert, error)

	// List returns all alerts, newest first.
	List() ([]Alert, error)

	// FindUnacknowledged returns the unacknowledged alert carrying the
	// dedupe key, if any.
	FindUnacknowledged(dedupeKey string) (Alert, bool, error)

	// MarkAcknowledged sets the acknowledged flag. Acknowledging an
	// already-acknowledged alert is a no-op; an unknown ID wraps
	// ErrNotFound.
	MarkAcknowledged(id string) error
}

// Dispatcher is the process-wide alert store: it assigns identity,
// enforces dedup-by-key against unacknowledged alerts, and exposes the
// read views consumed by the UI and audit layers. One instance per
// process, constructed explicitly and passed to whoever needs it.
type Dispatcher struct {
	store AlertStore
	mu    sync.Mutex // serializes the dedupe check with the insert
}

// NewDispatcher creates a dispatcher over the given store.
func NewDispatcher(store AlertStore) *Dispatcher {
	return &Dispatcher{store: store}
}

// Dispatch creates an alert from the request, or returns the existing
// unacknowledged alert sharing its dedupe key (idempotent create).
func (d *Dispatcher) Dispatch(req Request) (Alert, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if req.DedupeKey != "" {
		existing, found, err := d.store.FindUnacknowledged(req.DedupeKey)
		if err != nil {
			return Alert{}, err
		}
		if found {
			return existing, nil
		}
	}

	channels := req.Channels
	if len(channels) == 0 {
		channels = DefaultChannels()
	}

	alert := Alert{
		ID:          uuid.NewString(),
		Type:        req.Type,
		Title:       req.Title,
		Description: req.Description,
		Severity:    req.Severity,
		Metadata:    req.Metadata,
		Source:      req.Source,
		Channels:    channels,
		DedupeKey:   req.DedupeKey,
		CreatedAt:   time.Now(),
	}
	if err := d.store.Add(alert); err != nil {
		return Alert{}, err
	}
	return alert, nil
}

// Acknowledge marks an alert resolved. Irreversible; acknowledging an
// already-acknowledged alert is a no-op, an unknown ID wraps
// ErrNotFound.
func (d *Dispatcher) Acknowledge(id string) error {
	return d.store.MarkAcknowledged(id)
}

// Get retrieves one alert.
func (d *Dispatcher) Get(id string) (Alert, error) {
	return d.store.Get(id)
}

// All returns every alert, newest first.
func (d *Dispatcher) All() ([]Alert, error) {
	return d.store.List()
}

// BySeverity returns alerts of the given severity, newest first.
func (d *Dispatcher) BySeverity(severity Severity) ([]Alert, error) {
	all, err := d.store.List()
	if err != nil {
		return nil, err
	}
	var out []Alert
	for _, a := range all {
		if a.Severity == severity {
			out = append(out, a)
		}
	}
	return out, nil
}

// Unacknowledged returns alerts not yet resolved, newest first.
func (d *Dispatcher) Unacknowledged() ([]Alert, error) {
	all, err := d.store.List()
	if err != nil {
		return nil, err
	}
	var out []Alert
	for _, a := range all {
		if !a.Acknowledged {
			out = append(out, a)
		}
	}
	return out, nil
}
