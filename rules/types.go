package rules

import (
	"encoding/json"
	"regexp"
	"time"
)

// Condition operators. The set is closed: anything else is rejected at load time.
const (
	OpIsEmpty  = "isEmpty"
	OpHasValue = "hasValue"
	OpEquals   = "=="
	OpNotEqual = "!="
	OpIn       = "in"
	OpContains = "contains"
	OpMatches  = "matches"
)

// Action kinds. The set is closed: anything else is rejected at load time.
const (
	ActionSetRequired  = "set-required"
	ActionSetVisible   = "set-visible"
	ActionHide         = "hide"
	ActionAddValidator = "add-validator"
	ActionAddClass     = "add-class"
	ActionRemoveClass  = "remove-class"
	ActionShowMessage  = "show-message"
	ActionCalculate    = "calculate"
)

// Rule is a single declarative form rule: fire the actions when the
// conditions hold. Rules are immutable once loaded.
type Rule struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Enabled    bool       `json:"enabled"`
	Priority   int        `json:"priority"`
	Conditions *Condition `json:"conditions"`
	Actions    []Action   `json:"actions"`

	// seq is the declaration order within the document, the tie-break
	// for rules with equal priority.
	seq int

	// refs are the field paths the condition tree reads, used for
	// cascade re-arming during an evaluation pass.
	refs []string
}

// Condition is a tagged expression node: either a field/operator/value leaf
// or exactly one of the AllOf/AnyOf/Not combinators.
type Condition struct {
	Field    string `json:"field,omitempty"`
	Operator string `json:"operator,omitempty"`
	Value    any    `json:"value,omitempty"`

	AllOf []*Condition `json:"allOf,omitempty"`
	AnyOf []*Condition `json:"anyOf,omitempty"`
	Not   *Condition   `json:"not,omitempty"`

	// re is the precompiled pattern for the matches operator.
	re *regexp.Regexp
}

// UnmarshalJSON accepts either a condition object or a JSON array, which is
// shorthand for allOf over its elements.
func (c *Condition) UnmarshalJSON(data []byte) error {
	if firstNonSpace(data) == '[' {
		var subs []*Condition
		if err := json.Unmarshal(data, &subs); err != nil {
			return err
		}
		*c = Condition{AllOf: subs}
		return nil
	}

	type plain Condition
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = Condition(p)
	return nil
}

func firstNonSpace(data []byte) byte {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return b
	}
	return 0
}

// Action describes a single state mutation performed when a rule fires.
type Action struct {
	Type    string         `json:"type"`
	Target  string         `json:"target"`
	Value   any            `json:"value,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

// StringOption returns the named option as a string, or the empty string.
func (a Action) StringOption(name string) string {
	if a.Options == nil {
		return ""
	}
	s, _ := a.Options[name].(string)
	return s
}

// ValidatorSpec is a validator attached to a field by an add-validator
// action. Validators are deduplicated by (Type, Params), so repeated rule
// firings are idempotent.
type ValidatorSpec struct {
	Type    string         `json:"type"`
	Message string         `json:"message,omitempty"`
	Params  map[string]any `json:"params,omitempty"`
}

// dedupeKey identifies a validator for idempotent insertion. The message is
// deliberately excluded: two validators that check the same thing are the
// same validator.
func (v ValidatorSpec) dedupeKey() string {
	if len(v.Params) == 0 {
		return v.Type
	}
	params, _ := json.Marshal(v.Params)
	return v.Type + "\x00" + string(params)
}

// Message is a user-facing message attached to a field by show-message.
type Message struct {
	Text  string `json:"text"`
	Level string `json:"level"`
}

// FiredRule records one rule firing within an evaluation pass.
type FiredRule struct {
	RuleID   string `json:"ruleId"`
	RuleName string `json:"ruleName"`
	Sweep    int    `json:"sweep"`
}

// StateDelta records a single change to derived state produced by an action.
type StateDelta struct {
	Field  string `json:"field"`
	Aspect string `json:"aspect"` // required, visible, validators, classes, messages, computed
	Value  any    `json:"value"`
}

// PassResult is the outcome of one evaluation pass.
type PassResult struct {
	Fired  []FiredRule   `json:"fired"`
	Deltas []StateDelta  `json:"deltas"`
	Sweeps int           `json:"sweeps"`
	Cycle  *CycleWarning `json:"cycle,omitempty"`
}

// RuleSet is a persisted rule document for a form.
type RuleSet struct {
	ID        string          `json:"id"`
	FormID    string          `json:"formId"`
	Name      string          `json:"name"`
	Document  json.RawMessage `json:"document"`
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}
