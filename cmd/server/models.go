package main

import (
	"encoding/json"
	"time"

	"github.com/mbaylor/formrules/rules"
)

// API request and response models.

// CreateRuleSetRequest carries a new rule document for a form.
type CreateRuleSetRequest struct {
	Name     string          `json:"name"`
	Document json.RawMessage `json:"document"`
}

// RuleSetResponse represents a stored rule set in API responses.
type RuleSetResponse struct {
	ID        string          `json:"id"`
	FormID    string          `json:"formId"`
	Name      string          `json:"name"`
	Document  json.RawMessage `json:"document"`
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func toRuleSetResponse(rs *rules.RuleSet) RuleSetResponse {
	return RuleSetResponse{
		ID:        rs.ID,
		FormID:    rs.FormID,
		Name:      rs.Name,
		Document:  rs.Document,
		Active:    rs.Active,
		CreatedAt: rs.CreatedAt,
		UpdatedAt: rs.UpdatedAt,
	}
}

// CreateSessionRequest opens a session for a form, optionally seeding
// initial field values.
type CreateSessionRequest struct {
	FormID string         `json:"formId"`
	Values map[string]any `json:"values,omitempty"`
}

// SessionResponse returns the new session, the initial evaluation pass, and
// the resulting state. State is pre-rendered JSON so handlers can snapshot
// it under the session lock before encoding the response.
type SessionResponse struct {
	ID        string            `json:"id"`
	FormID    string            `json:"formId"`
	CreatedAt time.Time         `json:"createdAt"`
	Pass      *rules.PassResult `json:"pass"`
	State     json.RawMessage   `json:"state"`
}

// FieldChangeRequest records one field-change event.
type FieldChangeRequest struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

// FieldChangeResponse returns the pass the event triggered and the state
// after it.
type FieldChangeResponse struct {
	Pass           *rules.PassResult `json:"pass"`
	State          json.RawMessage   `json:"state"`
	EvaluationTime string            `json:"evaluationTime"`
}

// ValidateRequest runs the document validation pipeline.
type ValidateRequest struct {
	Document any             `json:"document"`
	Schema   json.RawMessage `json:"schema"`
	Rules    []string        `json:"rules,omitempty"`
}
