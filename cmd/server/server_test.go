package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mbaylor/formrules/validation"
)

const signupRules = `[
	{"id": "name-required",
	 "conditions": {"field": "student.type", "operator": "==", "value": "enrolled"},
	 "actions": [{"type": "set-required", "target": "student.name", "value": true,
		"options": {"message": "Student name is required"}}]},
	{"id": "hide-company",
	 "conditions": {"field": "student.type", "operator": "!=", "value": "employee"},
	 "actions": [{"type": "hide", "target": "student.company"}]}
]`

// TestServerAPI exercises the HTTP surface end to end against the in-memory
// store: publish a rule set, open a session, send field changes, read state,
// run the validation pipeline, and close the session.
//
// One server instance is shared by all steps; the metrics collector registers
// on the process-wide Prometheus registry and can only do so once.
func TestServerAPI(t *testing.T) {
	server, err := NewServer(Config{MaxSweeps: 10, MaxMessages: 20})
	if err != nil {
		t.Fatalf("NewServer() failed: %v", err)
	}
	ts := httptest.NewServer(server)
	defer ts.Close()

	var sessionID string

	t.Run("health", func(t *testing.T) {
		body := getJSON(t, ts, "/api/v1/health", http.StatusOK)
		if body["status"] != "healthy" {
			t.Errorf("status = %v", body["status"])
		}
	})

	t.Run("create rule set", func(t *testing.T) {
		body := postJSON(t, ts, "/api/v1/forms/signup/rulesets", map[string]any{
			"name":     "signup rules",
			"document": json.RawMessage(signupRules),
		}, http.StatusCreated)
		if body["formId"] != "signup" {
			t.Errorf("formId = %v", body["formId"])
		}
		if body["id"] == "" {
			t.Error("rule set should get an id")
		}
	})

	t.Run("create rule set rejects invalid document", func(t *testing.T) {
		postJSON(t, ts, "/api/v1/forms/signup/rulesets", map[string]any{
			"document": json.RawMessage(`[{"id": "broken"}]`),
		}, http.StatusBadRequest)
	})

	t.Run("get rule set", func(t *testing.T) {
		body := getJSON(t, ts, "/api/v1/forms/signup/rulesets", http.StatusOK)
		if body["formId"] != "signup" {
			t.Errorf("formId = %v", body["formId"])
		}
	})

	t.Run("get rule set for unknown form", func(t *testing.T) {
		getJSON(t, ts, "/api/v1/forms/nope/rulesets", http.StatusNotFound)
	})

	t.Run("create session", func(t *testing.T) {
		body := postJSON(t, ts, "/api/v1/sessions", map[string]any{
			"formId": "signup",
			"values": map[string]any{
				"student": map[string]any{"type": "enrolled"},
			},
		}, http.StatusCreated)

		sessionID, _ = body["id"].(string)
		if sessionID == "" {
			t.Fatal("session should get an id")
		}

		// The initial pass already marked the name required.
		state := body["state"].(map[string]any)
		derived := state["derived"].(map[string]any)
		name := derived["student.name"].(map[string]any)
		if name["required"] != true {
			t.Errorf("student.name meta = %v", name)
		}
		if name["requiredMessage"] != "Student name is required" {
			t.Errorf("requiredMessage = %v", name["requiredMessage"])
		}
	})

	t.Run("create session for unknown form", func(t *testing.T) {
		postJSON(t, ts, "/api/v1/sessions", map[string]any{
			"formId": "nope",
		}, http.StatusNotFound)
	})

	t.Run("field change", func(t *testing.T) {
		body := postJSON(t, ts, "/api/v1/sessions/"+sessionID+"/events", map[string]any{
			"field": "student.type",
			"value": "employee",
		}, http.StatusOK)

		// The type is now employee, so the hide rule no longer applies to
		// this event; the earlier hidden flag simply persists.
		if body["pass"] == nil {
			t.Error("response should carry the pass result")
		}
		state := body["state"].(map[string]any)
		if state["values"].(map[string]any)["student"].(map[string]any)["type"] != "employee" {
			t.Error("field change not recorded in values")
		}
	})

	t.Run("get state", func(t *testing.T) {
		body := getJSON(t, ts, "/api/v1/sessions/"+sessionID+"/state", http.StatusOK)
		if body["values"] == nil || body["derived"] == nil {
			t.Errorf("state = %v", body)
		}
	})

	t.Run("validate", func(t *testing.T) {
		body := postJSON(t, ts, "/api/v1/validate", map[string]any{
			"document": validation.ValidTestData(),
			"schema":   json.RawMessage(validation.SampleSchema()),
			"rules":    validation.BusinessRules(),
		}, http.StatusOK)

		// No API key is configured, so the semantic stage is skipped and
		// structural validity decides the report.
		if body["overall_valid"] != true {
			t.Errorf("overall_valid = %v", body["overall_valid"])
		}
		sem := body["semantic_validation"].(map[string]any)
		if sem["skipped"] != true {
			t.Errorf("semantic_validation = %v", sem)
		}
	})

	t.Run("validate schema failure", func(t *testing.T) {
		body := postJSON(t, ts, "/api/v1/validate", map[string]any{
			"document": validation.InvalidSchemaData(),
			"schema":   json.RawMessage(validation.SampleSchema()),
			"rules":    validation.BusinessRules(),
		}, http.StatusOK)
		if body["overall_valid"] != false {
			t.Errorf("overall_valid = %v", body["overall_valid"])
		}
	})

	t.Run("end session", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/sessions/"+sessionID, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("DELETE failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNoContent {
			t.Errorf("status = %d, want 204", resp.StatusCode)
		}

		getJSON(t, ts, "/api/v1/sessions/"+sessionID+"/state", http.StatusNotFound)
	})

	t.Run("metrics endpoint", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/metrics")
		if err != nil {
			t.Fatalf("GET /metrics failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d", resp.StatusCode)
		}
		body, _ := io.ReadAll(resp.Body)
		if !bytes.Contains(body, []byte("formrules_active_sessions")) {
			t.Error("expected session gauge in metrics output")
		}
	})
}

func postJSON(t *testing.T, ts *httptest.Server, path string, payload any, wantStatus int) map[string]any {
	t.Helper()

	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s failed: %v", path, err)
	}
	defer resp.Body.Close()

	return decodeResponse(t, resp, path, wantStatus)
}

func getJSON(t *testing.T, ts *httptest.Server, path string, wantStatus int) map[string]any {
	t.Helper()

	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	defer resp.Body.Close()

	return decodeResponse(t, resp, path, wantStatus)
}

func decodeResponse(t *testing.T, resp *http.Response, path string, wantStatus int) map[string]any {
	t.Helper()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response from %s: %v", path, err)
	}
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s returned status %d, want %d: %s", path, resp.StatusCode, wantStatus, raw)
	}

	var body map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Fatalf("decode response from %s: %v\n%s", path, err, raw)
		}
	}
	return body
}
