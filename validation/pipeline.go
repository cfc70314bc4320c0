// Package validation runs the two-stage document validation pipeline:
// structural JSON-Schema validation first, then LLM-backed semantic
// validation of natural-language rules. A schema failure short-circuits the
// semantic stage, and an unconfigured semantic validator skips it; skipped
// is an explicit state distinct from failed.
package validation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Report is the combined outcome of both validation stages.
type Report struct {
	OverallValid       bool   `json:"overall_valid"`
	SchemaValidation   Result `json:"schema_validation"`
	SemanticValidation Result `json:"semantic_validation"`
	Summary            string `json:"summary"`
}

// Pipeline wires a schema validator and a semantic validator.
type Pipeline struct {
	schema   SchemaValidator
	semantic SemanticValidator
	logger   *slog.Logger
}

// NewPipeline creates a validation pipeline. The semantic validator may be
// nil; semantic validation is then always skipped.
func NewPipeline(schema SchemaValidator, semantic SemanticValidator, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{schema: schema, semantic: semantic, logger: logger}
}

// Validate runs both stages over the document and produces the report.
// overall_valid is true iff the schema stage passed and the semantic stage
// passed or was skipped.
func (p *Pipeline) Validate(ctx context.Context, document any, rules []string) Report {
	report := Report{
		SchemaValidation: p.schema.ValidateSchema(document),
	}

	switch {
	case !report.SchemaValidation.Passed:
		// Skip the expensive stage entirely when the structure is
		// already known to be broken.
		report.SemanticValidation = Result{
			Skipped: true,
			Errors:  []string{"Skipped due to schema validation failure"},
		}

	case p.semantic == nil || !p.semantic.Configured():
		p.logger.Info("semantic validation skipped: no validator configured")
		report.SemanticValidation = Result{
			Skipped: true,
			Errors:  []string{"Skipped: semantic validator not configured"},
		}

	default:
		result, err := p.semantic.ValidateSemantic(ctx, document, rules)
		if err != nil {
			p.logger.Error("semantic validation failed", "error", err)
			result = Result{
				Passed: false,
				Errors: []string{fmt.Sprintf("Semantic validation error: %v", err)},
			}
		}
		report.SemanticValidation = result
	}

	report.OverallValid = report.SchemaValidation.Passed &&
		(report.SemanticValidation.Passed || report.SemanticValidation.Skipped)
	report.Summary = summarize(report)
	return report
}

func summarize(r Report) string {
	if r.OverallValid {
		if r.SemanticValidation.Skipped {
			return "JSON data is structurally valid; semantic validation was skipped."
		}
		return "JSON data is valid according to both schema and semantic rules."
	}

	var issues []string
	if !r.SchemaValidation.Passed && len(r.SchemaValidation.Errors) > 0 {
		issues = append(issues,
			fmt.Sprintf("Schema validation failed: %s", strings.Join(r.SchemaValidation.Errors, "; ")))
	}
	if !r.SemanticValidation.Passed && !r.SemanticValidation.Skipped && len(r.SemanticValidation.Errors) > 0 {
		issues = append(issues,
			fmt.Sprintf("Semantic validation failed: %s", strings.Join(r.SemanticValidation.Errors, "; ")))
	}

	return fmt.Sprintf("JSON data is invalid. Issues found: %s", strings.Join(issues, " | "))
}
