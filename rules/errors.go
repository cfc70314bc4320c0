package rules

import (
	"fmt"
	"strings"
)

// MalformedRuleError reports a structurally invalid rule at load time.
// Loading is the only strict step: condition evaluation and action
// application are total and never fail for data-shape reasons.
type MalformedRuleError struct {
	Index  int    // position in the document
	RuleID string // may be empty when the id itself is missing
	Reason string
}

func (e *MalformedRuleError) Error() string {
	if e.RuleID != "" {
		return fmt.Sprintf("malformed rule %q (index %d): %s", e.RuleID, e.Index, e.Reason)
	}
	return fmt.Sprintf("malformed rule at index %d: %s", e.Index, e.Reason)
}

// DuplicateRuleIDError reports two rules sharing an id. Duplicate ids are a
// load-time failure, never a silent overwrite.
type DuplicateRuleIDError struct {
	ID string
}

func (e *DuplicateRuleIDError) Error() string {
	return fmt.Sprintf("duplicate rule id %q", e.ID)
}

// CycleWarning reports that an evaluation pass hit the sweep bound before
// reaching a fixed point, usually because two rules keep re-triggering each
// other. It is advisory: the pass still returns the last computed state.
type CycleWarning struct {
	Sweeps int      `json:"sweeps"`
	Rules  []string `json:"rules"` // ids of rules still armed when the bound was hit
}

func (w *CycleWarning) Error() string {
	return fmt.Sprintf("rule evaluation did not settle after %d sweeps (rules still firing: %s)",
		w.Sweeps, strings.Join(w.Rules, ", "))
}
