package validation

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// Result is the outcome of one validation stage.
type Result struct {
	Passed  bool     `json:"passed"`
	Skipped bool     `json:"skipped,omitempty"`
	Errors  []string `json:"errors"`
}

// SchemaValidator checks a document's structure. Implementations report
// failures in the Result; they do not raise.
type SchemaValidator interface {
	ValidateSchema(document any) Result
}

// JSONSchemaValidator validates documents against a JSON Schema.
type JSONSchemaValidator struct {
	resolved *jsonschema.Resolved
}

// NewJSONSchemaValidator parses and resolves a JSON Schema document.
func NewJSONSchemaValidator(schemaJSON []byte) (*JSONSchemaValidator, error) {
	var schema jsonschema.Schema
	if err := json.Unmarshal(schemaJSON, &schema); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}

	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolve schema: %w", err)
	}

	return &JSONSchemaValidator{resolved: resolved}, nil
}

// ValidateSchema validates the document. Validator errors are reported in
// the result, never propagated.
func (v *JSONSchemaValidator) ValidateSchema(document any) Result {
	if err := v.resolved.Validate(document); err != nil {
		return Result{Passed: false, Errors: []string{err.Error()}}
	}
	return Result{Passed: true, Errors: []string{}}
}
