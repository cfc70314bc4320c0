package rules

import (
	"encoding/json"
	"fmt"
	"regexp"
)

var validOperators = map[string]bool{
	OpIsEmpty:  true,
	OpHasValue: true,
	OpEquals:   true,
	OpNotEqual: true,
	OpIn:       true,
	OpContains: true,
	OpMatches:  true,
}

var validActions = map[string]bool{
	ActionSetRequired:  true,
	ActionSetVisible:   true,
	ActionHide:         true,
	ActionAddValidator: true,
	ActionAddClass:     true,
	ActionRemoveClass:  true,
	ActionShowMessage:  true,
	ActionCalculate:    true,
}

// ruleWire is the authoring shape of a rule. Enabled defaults to true when
// the document omits it.
type ruleWire struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Enabled    *bool      `json:"enabled"`
	Priority   int        `json:"priority"`
	Conditions *Condition `json:"conditions"`
	Actions    []Action   `json:"actions"`
}

// LoadRules parses and validates a rule document (a JSON array of rule
// objects). The document is validated strictly here, converting runtime
// dynamic-typing hazards into load-time contract failures: unknown
// operators or action kinds, invalid match patterns, and missing required
// fields all fail with MalformedRuleError; duplicate ids fail with
// DuplicateRuleIDError. Declaration order is preserved.
func LoadRules(data []byte) ([]*Rule, error) {
	var wires []ruleWire
	if err := json.Unmarshal(data, &wires); err != nil {
		return nil, fmt.Errorf("parse rule document: %w", err)
	}

	seen := make(map[string]bool, len(wires))
	out := make([]*Rule, 0, len(wires))
	for i, w := range wires {
		if w.ID == "" {
			return nil, &MalformedRuleError{Index: i, Reason: "missing id"}
		}
		if seen[w.ID] {
			return nil, &DuplicateRuleIDError{ID: w.ID}
		}
		seen[w.ID] = true

		if w.Conditions == nil {
			return nil, &MalformedRuleError{Index: i, RuleID: w.ID, Reason: "missing conditions"}
		}
		if len(w.Actions) == 0 {
			return nil, &MalformedRuleError{Index: i, RuleID: w.ID, Reason: "missing actions"}
		}

		if err := validateCondition(w.Conditions); err != nil {
			return nil, &MalformedRuleError{Index: i, RuleID: w.ID, Reason: err.Error()}
		}
		for j, a := range w.Actions {
			if err := validateAction(a); err != nil {
				return nil, &MalformedRuleError{Index: i, RuleID: w.ID,
					Reason: fmt.Sprintf("action %d: %v", j, err)}
			}
		}

		enabled := true
		if w.Enabled != nil {
			enabled = *w.Enabled
		}

		rule := &Rule{
			ID:         w.ID,
			Name:       w.Name,
			Enabled:    enabled,
			Priority:   w.Priority,
			Conditions: w.Conditions,
			Actions:    w.Actions,
			seq:        i,
		}
		rule.refs = conditionRefs(rule.Conditions)
		out = append(out, rule)
	}

	return out, nil
}

// validateCondition checks the closed condition grammar and precompiles
// matches patterns so evaluation never has to fail.
func validateCondition(c *Condition) error {
	variants := 0
	if c.Field != "" {
		variants++
	}
	if len(c.AllOf) > 0 {
		variants++
	}
	if len(c.AnyOf) > 0 {
		variants++
	}
	if c.Not != nil {
		variants++
	}
	if variants > 1 {
		return fmt.Errorf("condition mixes leaf and combinator forms")
	}
	if variants == 0 && c.AllOf == nil {
		return fmt.Errorf("condition has neither field nor combinator")
	}

	if c.Field != "" {
		if !validOperators[c.Operator] {
			return fmt.Errorf("unknown operator %q", c.Operator)
		}
		if c.Operator == OpMatches {
			pattern, ok := c.Value.(string)
			if !ok {
				return fmt.Errorf("matches operator needs a string pattern")
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				return fmt.Errorf("invalid pattern %q: %v", pattern, err)
			}
			c.re = re
		}
		return nil
	}

	for _, sub := range c.AllOf {
		if err := validateCondition(sub); err != nil {
			return err
		}
	}
	for _, sub := range c.AnyOf {
		if err := validateCondition(sub); err != nil {
			return err
		}
	}
	if c.Not != nil {
		return validateCondition(c.Not)
	}
	return nil
}

func validateAction(a Action) error {
	if !validActions[a.Type] {
		return fmt.Errorf("unknown action type %q", a.Type)
	}
	if a.Target == "" {
		return fmt.Errorf("%s action missing target", a.Type)
	}
	switch a.Type {
	case ActionAddValidator:
		if a.Options == nil || a.Options["validator"] == nil {
			return fmt.Errorf("add-validator needs options.validator")
		}
	case ActionAddClass, ActionRemoveClass:
		if _, ok := a.Value.(string); !ok {
			return fmt.Errorf("%s needs a string class name in value", a.Type)
		}
	case ActionShowMessage:
		if _, ok := a.Value.(string); !ok {
			return fmt.Errorf("show-message needs a string value")
		}
	case ActionCalculate:
		if a.StringOption("expression") == "" {
			return fmt.Errorf("calculate needs options.expression")
		}
	}
	return nil
}
