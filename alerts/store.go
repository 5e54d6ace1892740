package alerts

import (
	"fmt"
	"sync"
)

// InMemoryAlertStore implements AlertStore with a slice (creation
// order) plus an ID index.
type InMemoryAlertStore struct {
	order []string
	byID  map[string]Alert
	mu    sync.RWMutex
}

// NewInMemoryAlertStore creates an empty in-memory alert store.
func NewInMemoryAlertStore() *InMemoryAlertStore {
	return &InMemoryAlertStore{byID: make(map[string]Alert)}
}

// Add stores a new alert.
func (s *InMemoryAlertStore) Add(alert Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[alert.ID]; exists {
		return fmt.Errorf("alert %s already exists", alert.ID)
	}
	s.byID[alert.ID] = alert
	s.order = append(s.order, alert.ID)
	return nil
}

// Get retrieves an alert by ID.
func (s *InMemoryAlertStore) Get(id string) (Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	alert, exists := s.byID[id]
	if !exists {
		return Alert{}, fmt.Errorf("alert %s: %w", id, ErrNotFound)
	}
	return alert, nil
}

// List returns all alerts, newest first.
func (s *InMemoryAlertStore) List() ([]Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Alert, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, s.byID[s.order[i]])
	}
	return out, nil
}

// FindUnacknowledged returns the unacknowledged alert with the dedupe
// key, if any.
func (s *InMemoryAlertStore) FindUnacknowledged(dedupeKey string) (Alert, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.order {
		a := s.byID[id]
		if a.DedupeKey == dedupeKey && !a.Acknowledged {
			return a, true, nil
		}
	}
	return Alert{}, false, nil
}

// MarkAcknowledged sets the acknowledged flag; a second call is a no-op.
func (s *InMemoryAlertStore) MarkAcknowledged(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	alert, exists := s.byID[id]
	if !exists {
		return fmt.Errorf("alert %s: %w", id, ErrNotFound)
	}
	if alert.Acknowledged {
		return nil
	}
	alert.Acknowledged = true
	s.byID[id] = alert
	return nil
}
