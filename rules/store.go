package rules

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned when a rule ID does not resolve. Callers hold
// a stale reference; evaluators themselves never error.
var ErrNotFound = errors.New("rule not found")

// RuleStore manages rule persistence and retrieval. Implementations
// must be safe for concurrent use; rules cross the boundary by value.
type RuleStore interface {
	// Add a new rule. Fails if the ID already exists.
	Add(rule Rule) error

	// Get a rule by ID. Wraps ErrNotFound for unknown IDs.
	Get(id string) (Rule, error)

	// List all rules in creation order.
	List() ([]Rule, error)

	// ListActive returns rules that are enabled and active, in creation order.
	ListActive() ([]Rule, error)

	// Update an existing rule, preserving CreatedAt.
	Update(rule Rule) error

	// Delete a rule.
	Delete(id string) error
}

// InMemoryRuleStore implements RuleStore with a map and RWMutex.
type InMemoryRuleStore struct {
	rules map[string]Rule
	mu    sync.RWMutex
}

// NewInMemoryRuleStore creates an empty in-memory rule store.
func NewInMemoryRuleStore() *InMemoryRuleStore {
	return &InMemoryRuleStore{rules: make(map[string]Rule)}
}

// Add stores a new rule, stamping CreatedAt/UpdatedAt.
func (s *InMemoryRuleStore) Add(rule Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[rule.ID]; exists {
		return fmt.Errorf("rule %s already exists", rule.ID)
	}

	now := time.Now()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now
	s.rules[rule.ID] = rule
	return nil
}

// Get retrieves a rule by ID.
func (s *InMemoryRuleStore) Get(id string) (Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, exists := s.rules[id]
	if !exists {
		return Rule{}, fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	return rule, nil
}

// List returns all rules ordered by creation time.
func (s *InMemoryRuleStore) List() ([]Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot(func(Rule) bool { return true }), nil
}

// ListActive returns rules eligible to fire, ordered by creation time.
func (s *InMemoryRuleStore) ListActive() ([]Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot(func(r Rule) bool {
		return r.Enabled && r.Status == StatusActive
	}), nil
}

func (s *InMemoryRuleStore) snapshot(keep func(Rule) bool) []Rule {
	out := make([]Rule, 0, len(s.rules))
	for _, r := range s.rules {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Update replaces an existing rule, preserving its CreatedAt.
func (s *InMemoryRuleStore) Update(rule Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.rules[rule.ID]
	if !exists {
		return fmt.Errorf("rule %s: %w", rule.ID, ErrNotFound)
	}

	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now()
	s.rules[rule.ID] = rule
	return nil
}

// Delete removes a rule.
func (s *InMemoryRuleStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[id]; !exists {
		return fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	delete(s.rules, id)
	return nil
}
