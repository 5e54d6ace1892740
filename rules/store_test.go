package rules

import (
	"errors"
	"testing"
	"time"
)

func storeRule(id, name string) Rule {
	return Rule{
		ID:      id,
		Name:    name,
		Trigger: TimeTrigger{Schedule: "daily"},
		Action:  Action{Kind: ActionSendNotification},
		Status:  StatusActive,
		Enabled: true,
	}
}

// TestInMemoryStoreAddGet verifies basic persistence and the duplicate
// ID guard.
func TestInMemoryStoreAddGet(t *testing.T) {
	store := NewInMemoryRuleStore()

	r := storeRule("rule-1", "Rule 1")
	if err := store.Add(r); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	got, err := store.Get("rule-1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Name != "Rule 1" {
		t.Errorf("Name = %q, want %q", got.Name, "Rule 1")
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("Add() should stamp CreatedAt and UpdatedAt")
	}

	if err := store.Add(r); err == nil {
		t.Error("Add() should reject a duplicate ID")
	}
}

// TestInMemoryStoreNotFound verifies unknown IDs wrap ErrNotFound on
// every lookup path.
func TestInMemoryStoreNotFound(t *testing.T) {
	store := NewInMemoryRuleStore()

	if _, err := store.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
	if err := store.Update(storeRule("missing", "x")); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update() error = %v, want ErrNotFound", err)
	}
	if err := store.Delete("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete() error = %v, want ErrNotFound", err)
	}
}

// TestInMemoryStoreListActive verifies the active filter and creation
// ordering.
func TestInMemoryStoreListActive(t *testing.T) {
	store := NewInMemoryRuleStore()

	active := storeRule("a", "active")
	paused := storeRule("b", "paused")
	paused.Status = StatusPaused
	paused.Enabled = false
	disabledFlag := storeRule("c", "enabled false")
	disabledFlag.Enabled = false

	for i, r := range []Rule{active, paused, disabledFlag} {
		r.CreatedAt = time.Now().Add(time.Duration(i) * time.Millisecond)
		if err := store.Add(r); err != nil {
			t.Fatalf("Add() failed: %v", err)
		}
	}

	got, err := store.ListActive()
	if err != nil {
		t.Fatalf("ListActive() failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "a" {
		t.Errorf("ListActive() = %d rules, want just rule a", len(got))
	}

	all, err := store.List()
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("List() = %d rules, want 3", len(all))
	}
	for i, want := range []string{"a", "b", "c"} {
		if all[i].ID != want {
			t.Errorf("List()[%d].ID = %q, want %q", i, all[i].ID, want)
		}
	}
}

// TestInMemoryStoreUpdatePreservesCreatedAt verifies updates keep the
// original creation timestamp.
func TestInMemoryStoreUpdatePreservesCreatedAt(t *testing.T) {
	store := NewInMemoryRuleStore()

	if err := store.Add(storeRule("rule-1", "before")); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	original, _ := store.Get("rule-1")

	updated := storeRule("rule-1", "after")
	updated.CreatedAt = time.Now().Add(time.Hour) // must be ignored
	if err := store.Update(updated); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}

	got, _ := store.Get("rule-1")
	if got.Name != "after" {
		t.Errorf("Name = %q, want %q", got.Name, "after")
	}
	if !got.CreatedAt.Equal(original.CreatedAt) {
		t.Errorf("CreatedAt changed on update: %v -> %v", original.CreatedAt, got.CreatedAt)
	}
}

// TestInMemoryStoreDelete verifies deletion removes the rule.
func TestInMemoryStoreDelete(t *testing.T) {
	store := NewInMemoryRuleStore()

	if err := store.Add(storeRule("rule-1", "r")); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if err := store.Delete("rule-1"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := store.Get("rule-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after delete = %v, want ErrNotFound", err)
	}
}
