package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := NewServer(Config{}) // no DATABASE_URL: in-memory stores
	if err != nil {
		t.Fatalf("NewServer() failed: %v", err)
	}
	t.Cleanup(s.toasts.Close)
	return s
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return out
}

// TestHealthEndpoint verifies the health check with in-memory stores.
func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

// TestRuleLifecycle walks create, get, toggle, and delete through the
// HTTP surface.
func TestRuleLifecycle(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/rules", map[string]any{
		"name": "Low health alert",
		"trigger": map[string]any{
			"kind":      "threshold",
			"metric":    "healthScore",
			"operator":  "<",
			"threshold": 70,
		},
		"action": map[string]any{"kind": "send_notification"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	created := decode[RuleResponse](t, rec)
	if created.ID == "" || created.Status != "active" || !created.Enabled {
		t.Errorf("created rule = %+v", created)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/v1/rules/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec = doJSON(t, s, http.MethodPost, "/api/v1/rules/"+created.ID+"/toggle", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("toggle status = %d", rec.Code)
	}
	toggled := decode[RuleResponse](t, rec)
	if toggled.Status != "paused" || toggled.Enabled {
		t.Errorf("toggled rule = %+v", toggled)
	}

	rec = doJSON(t, s, http.MethodDelete, "/api/v1/rules/"+created.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/v1/rules/"+created.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", rec.Code)
	}
}

// TestCreateRuleValidation verifies required fields and trigger
// validation at the boundary.
func TestCreateRuleValidation(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing name", map[string]any{
			"trigger": map[string]any{"kind": "time_based", "schedule": "daily"},
			"action":  map[string]any{"kind": "create_task"},
		}},
		{"missing trigger", map[string]any{
			"name":   "r",
			"action": map[string]any{"kind": "create_task"},
		}},
		{"missing action", map[string]any{
			"name":    "r",
			"trigger": map[string]any{"kind": "time_based", "schedule": "daily"},
		}},
		{"bad condition expression", map[string]any{
			"name":    "r",
			"trigger": map[string]any{"kind": "condition", "expression": "metrics["},
			"action":  map[string]any{"kind": "create_task"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, s, http.MethodPost, "/api/v1/rules", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

// TestEvaluateFiresNotification verifies an evaluation tick fires a
// matching rule and its notification action lands in the alert store.
func TestEvaluateFiresNotification(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/rules", map[string]any{
		"name": "Low health alert",
		"trigger": map[string]any{
			"kind":      "threshold",
			"metric":    "healthScore",
			"operator":  "<",
			"threshold": 70,
		},
		"action": map[string]any{
			"kind":   "send_notification",
			"config": map[string]any{"severity": "critical", "message": "health is dropping"},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}
	created := decode[RuleResponse](t, rec)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/evaluate", map[string]any{
		"metrics": map[string]float64{"healthScore": 55},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("evaluate status = %d, body %s", rec.Code, rec.Body.String())
	}
	eval := decode[struct {
		Results []FireResultResponse `json:"results"`
	}](t, rec)
	if len(eval.Results) != 1 || !eval.Results[0].Fired || !eval.Results[0].Executed {
		t.Fatalf("results = %+v", eval.Results)
	}

	// Execution bookkeeping is visible through the API.
	rec = doJSON(t, s, http.MethodGet, "/api/v1/rules/"+created.ID, nil)
	rule := decode[RuleResponse](t, rec)
	if rule.ExecutionCount != 1 || rule.LastExecuted == nil {
		t.Errorf("rule after firing = %+v", rule)
	}

	// The notification action dispatched a critical alert.
	rec = doJSON(t, s, http.MethodGet, "/api/v1/alerts?severity=critical", nil)
	alertsResp := decode[struct {
		Alerts []map[string]any `json:"alerts"`
	}](t, rec)
	if len(alertsResp.Alerts) != 1 {
		t.Fatalf("critical alerts = %d, want 1", len(alertsResp.Alerts))
	}

	// Firing the same rule again dedupes on the rule-scoped key.
	doJSON(t, s, http.MethodPost, "/api/v1/evaluate", map[string]any{
		"metrics": map[string]float64{"healthScore": 50},
	})
	rec = doJSON(t, s, http.MethodGet, "/api/v1/alerts/unacknowledged", nil)
	unacked := decode[struct {
		Alerts []map[string]any `json:"alerts"`
	}](t, rec)
	if len(unacked.Alerts) != 1 {
		t.Errorf("unacknowledged after second firing = %d, want 1", len(unacked.Alerts))
	}
}

// TestEventEndpointsAndAcknowledge verifies the normalizer endpoints,
// dedup on dispatch, and the acknowledge path.
func TestEventEndpointsAndAcknowledge(t *testing.T) {
	s := newTestServer(t)

	body := map[string]any{
		"taskId":    "42",
		"taskTitle": "Prune mango trees",
		"threshold": "overdue",
		"days":      2,
	}
	rec := doJSON(t, s, http.MethodPost, "/api/v1/events/task-deadline", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("event status = %d, body %s", rec.Code, rec.Body.String())
	}
	first := decode[map[string]any](t, rec)

	// Same event again: idempotent create.
	rec = doJSON(t, s, http.MethodPost, "/api/v1/events/task-deadline", body)
	second := decode[map[string]any](t, rec)
	if first["id"] != second["id"] {
		t.Error("duplicate event created a second alert")
	}

	id := fmt.Sprintf("%v", first["id"])
	rec = doJSON(t, s, http.MethodPost, "/api/v1/alerts/"+id+"/ack", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("ack status = %d", rec.Code)
	}
	rec = doJSON(t, s, http.MethodPost, "/api/v1/alerts/missing/ack", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("ack missing status = %d, want 404", rec.Code)
	}
}

// TestToastEndpoints verifies the presentation surface: reconciliation
// caps visibility at four and dismissal acknowledges.
func TestToastEndpoints(t *testing.T) {
	s := newTestServer(t)

	for i := 0; i < 6; i++ {
		rec := doJSON(t, s, http.MethodPost, "/api/v1/events/stage-change", map[string]any{
			"plantationId":   fmt.Sprintf("p-%d", i),
			"plantationName": fmt.Sprintf("Field %d", i),
			"fromStage":      "planted",
			"toStage":        "growing",
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("event status = %d", rec.Code)
		}
	}

	rec := doJSON(t, s, http.MethodGet, "/api/v1/toasts", nil)
	toasts := decode[struct {
		Toasts []ToastResponse `json:"toasts"`
	}](t, rec)
	if len(toasts.Toasts) != 4 {
		t.Fatalf("visible toasts = %d, want 4", len(toasts.Toasts))
	}

	id := toasts.Toasts[0].AlertID
	rec = doJSON(t, s, http.MethodPost, "/api/v1/toasts/"+id+"/dismiss", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("dismiss status = %d", rec.Code)
	}

	// Dismissal acknowledged the alert in the dispatcher.
	rec = doJSON(t, s, http.MethodGet, "/api/v1/alerts/unacknowledged", nil)
	unacked := decode[struct {
		Alerts []map[string]any `json:"alerts"`
	}](t, rec)
	if len(unacked.Alerts) != 5 {
		t.Errorf("unacknowledged after dismiss = %d, want 5", len(unacked.Alerts))
	}
}
