// Package toast schedules the on-screen life of dispatched alerts:
// staggered expiry, a bound on concurrently visible entries, and
// reconciliation of manual dismissal with automatic timeout. It owns
// display timing only; alert truth stays with the dispatcher.
package toast

import (
	"errors"
	"sync"
	"time"

	"github.com/farmstead/automation/alerts"
	"github.com/farmstead/automation/internal/logger"
)

// Acknowledger resolves an alert in the dispatcher. Satisfied by
// *alerts.Dispatcher.
type Acknowledger interface {
	Acknowledge(id string) error
}

// Config bounds the visible set and times entry expiry.
type Config struct {
	// Lifetime is how long an entry stays visible before auto-expiry.
	Lifetime time.Duration

	// Stagger is the extra delay added per entry within a discovered
	// batch, so simultaneous alerts do not vanish in one frame.
	Stagger time.Duration

	// MaxVisible caps concurrently visible entries.
	MaxVisible int
}

// DefaultConfig matches the dashboard's toast timing.
func DefaultConfig() Config {
	return Config{
		Lifetime:   6 * time.Second,
		Stagger:    250 * time.Millisecond,
		MaxVisible: 4,
	}
}

// Entry is the ephemeral on-screen representation of an alert. Never
// persisted; rebuilt from dispatcher state on each reconcile.
type Entry struct {
	Alert     alerts.Alert
	ExpiresAt time.Time
}

// Scheduler tracks which alerts have been presented and times their
// on-screen life. Per-alert states: unseen, presented, then dismissed
// or expired; both terminal states acknowledge the alert and leave the
// visible set. Removal and acknowledgment are idempotent, so late or
// duplicate timer fires are harmless.
type Scheduler struct {
	ack Acknowledger
	cfg Config

	mu      sync.Mutex
	seen    map[string]struct{} // alert IDs presented at least once; scheduler-lifetime only
	visible []Entry             // newest first
	timers  map[string]*time.Timer
	closed  bool
}

// New creates a scheduler acknowledging through ack, typically the
// process's alert dispatcher.
func New(ack Acknowledger, cfg Config) *Scheduler {
	if cfg.MaxVisible <= 0 {
		cfg.MaxVisible = DefaultConfig().MaxVisible
	}
	return &Scheduler{
		ack:    ack,
		cfg:    cfg,
		seen:   make(map[string]struct{}),
		timers: make(map[string]*time.Timer),
	}
}

// Reconcile merges alerts not yet presented into the visible set,
// assigns each a staggered expiry, enforces the capacity bound, and
// schedules expiry timers. Call it on every relevant state change with
// the dispatcher's unacknowledged alerts. Returns the visible entries,
// newest first.
func (s *Scheduler) Reconcile(all []alerts.Alert, now time.Time) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	var fresh []Entry
	for _, a := range all {
		if a.Acknowledged {
			continue
		}
		if _, presented := s.seen[a.ID]; presented {
			continue
		}
		s.seen[a.ID] = struct{}{}
		fresh = append(fresh, Entry{
			Alert:     a,
			ExpiresAt: now.Add(s.cfg.Lifetime + time.Duration(len(fresh))*s.cfg.Stagger),
		})
	}

	// New entries take priority over older still-visible ones.
	merged := append(fresh, s.visible...)
	if len(merged) > s.cfg.MaxVisible {
		for _, dropped := range merged[s.cfg.MaxVisible:] {
			// Dropped from view only; the alert stays unacknowledged
			// in the dispatcher.
			s.cancelTimerLocked(dropped.Alert.ID)
		}
		merged = merged[:s.cfg.MaxVisible]
	}
	s.visible = merged

	for _, e := range fresh {
		if !s.isVisibleLocked(e.Alert.ID) {
			continue
		}
		id := e.Alert.ID
		s.timers[id] = time.AfterFunc(e.ExpiresAt.Sub(now), func() {
			s.expire(id)
		})
	}

	return s.snapshotLocked()
}

// Dismiss removes an entry and acknowledges its alert immediately. The
// entry's timer is cancelled; dismissing an absent ID is a no-op.
func (s *Scheduler) Dismiss(id string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.cancelTimerLocked(id)
	removed := s.removeLocked(id)
	s.mu.Unlock()

	if removed {
		s.acknowledge(id)
	}
}

// Visible returns the current visible entries, newest first.
func (s *Scheduler) Visible() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Close cancels every outstanding timer and empties the visible set.
// Pending auto-acknowledgments are cancelled with their timers: the
// alerts stay unacknowledged in the dispatcher, so a later scheduler
// can present them again. Safe to call more than once.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.visible = nil
}

// expire is the timer callback: remove from view and acknowledge. A
// timer that fires after its entry was dismissed or dropped finds
// nothing to remove and does nothing.
func (s *Scheduler) expire(id string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	delete(s.timers, id)
	removed := s.removeLocked(id)
	s.mu.Unlock()

	if removed {
		s.acknowledge(id)
	}
}

// acknowledge resolves the alert in the dispatcher. A NotFound means
// the alert already disappeared; that is a no-op, not an error.
func (s *Scheduler) acknowledge(id string) {
	if err := s.ack.Acknowledge(id); err != nil && !errors.Is(err, alerts.ErrNotFound) {
		logger.Warn("failed to acknowledge alert", "alertId", id, "error", err)
	}
}

func (s *Scheduler) cancelTimerLocked(id string) {
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
}

func (s *Scheduler) removeLocked(id string) bool {
	for i, e := range s.visible {
		if e.Alert.ID == id {
			s.visible = append(s.visible[:i], s.visible[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Scheduler) isVisibleLocked(id string) bool {
	for _, e := range s.visible {
		if e.Alert.ID == id {
			return true
		}
	}
	return false
}

func (s *Scheduler) snapshotLocked() []Entry {
	out := make([]Entry, len(s.visible))
	copy(out, s.visible)
	return out
}
