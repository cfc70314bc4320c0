package rules

import (
	"errors"
	"testing"
)

func TestLoadRulesValidDocument(t *testing.T) {
	doc := `[
		{
			"id": "name-required",
			"name": "Student name is required",
			"enabled": true,
			"priority": 100,
			"conditions": {"field": "student.name", "operator": "isEmpty"},
			"actions": [
				{"type": "set-required", "target": "student.name", "value": true,
				 "options": {"message": "Student name is required"}}
			]
		},
		{
			"id": "grade-major",
			"priority": 200,
			"conditions": {"field": "student.grade", "operator": "in", "value": ["9", "10", "11", "12"]},
			"actions": [{"type": "set-required", "target": "student.major", "value": true}]
		}
	]`

	loaded, err := LoadRules([]byte(doc))
	if err != nil {
		t.Fatalf("LoadRules() failed: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("LoadRules() returned %d rules, want 2", len(loaded))
	}

	// Declaration order is preserved
	if loaded[0].ID != "name-required" || loaded[1].ID != "grade-major" {
		t.Errorf("declaration order not preserved: %s, %s", loaded[0].ID, loaded[1].ID)
	}

	// Enabled defaults to true when omitted
	if !loaded[1].Enabled {
		t.Error("rule without enabled field should default to enabled")
	}

	// Condition refs are collected for cascade detection
	if len(loaded[0].refs) != 1 || loaded[0].refs[0] != "student.name" {
		t.Errorf("refs = %v, want [student.name]", loaded[0].refs)
	}
}

func TestLoadRulesDuplicateID(t *testing.T) {
	doc := `[
		{"id": "r1", "conditions": {"field": "a", "operator": "isEmpty"},
		 "actions": [{"type": "hide", "target": "b"}]},
		{"id": "r1", "conditions": {"field": "c", "operator": "isEmpty"},
		 "actions": [{"type": "hide", "target": "d"}]}
	]`

	_, err := LoadRules([]byte(doc))
	if err == nil {
		t.Fatal("LoadRules() should fail on duplicate ids")
	}

	var dup *DuplicateRuleIDError
	if !errors.As(err, &dup) {
		t.Fatalf("error = %T, want *DuplicateRuleIDError", err)
	}
	if dup.ID != "r1" {
		t.Errorf("duplicate id = %q, want r1", dup.ID)
	}
}

func TestLoadRulesMalformed(t *testing.T) {
	testCases := []struct {
		name string
		doc  string
	}{
		{
			"missing id",
			`[{"conditions": {"field": "a", "operator": "isEmpty"},
			   "actions": [{"type": "hide", "target": "b"}]}]`,
		},
		{
			"missing conditions",
			`[{"id": "r1", "actions": [{"type": "hide", "target": "b"}]}]`,
		},
		{
			"missing actions",
			`[{"id": "r1", "conditions": {"field": "a", "operator": "isEmpty"}}]`,
		},
		{
			"unknown operator",
			`[{"id": "r1", "conditions": {"field": "a", "operator": "startsWith", "value": "x"},
			   "actions": [{"type": "hide", "target": "b"}]}]`,
		},
		{
			"unknown action type",
			`[{"id": "r1", "conditions": {"field": "a", "operator": "isEmpty"},
			   "actions": [{"type": "explode", "target": "b"}]}]`,
		},
		{
			"action missing target",
			`[{"id": "r1", "conditions": {"field": "a", "operator": "isEmpty"},
			   "actions": [{"type": "hide"}]}]`,
		},
		{
			"invalid matches pattern",
			`[{"id": "r1", "conditions": {"field": "a", "operator": "matches", "value": "["},
			   "actions": [{"type": "hide", "target": "b"}]}]`,
		},
		{
			"calculate without expression",
			`[{"id": "r1", "conditions": {"field": "a", "operator": "hasValue"},
			   "actions": [{"type": "calculate", "target": "b"}]}]`,
		},
		{
			"condition mixing leaf and combinator",
			`[{"id": "r1",
			   "conditions": {"field": "a", "operator": "isEmpty",
			                  "allOf": [{"field": "b", "operator": "isEmpty"}]},
			   "actions": [{"type": "hide", "target": "b"}]}]`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadRules([]byte(tc.doc))
			if err == nil {
				t.Fatal("LoadRules() should fail")
			}
			var malformed *MalformedRuleError
			if !errors.As(err, &malformed) {
				t.Fatalf("error = %T (%v), want *MalformedRuleError", err, err)
			}
		})
	}
}

func TestLoadRulesConditionsArrayShorthand(t *testing.T) {
	doc := `[{
		"id": "r1",
		"conditions": [
			{"field": "a", "operator": "hasValue"},
			{"field": "b", "operator": "==", "value": "x"}
		],
		"actions": [{"type": "hide", "target": "c"}]
	}]`

	loaded, err := LoadRules([]byte(doc))
	if err != nil {
		t.Fatalf("LoadRules() failed: %v", err)
	}

	cond := loaded[0].Conditions
	if len(cond.AllOf) != 2 {
		t.Fatalf("array shorthand should become allOf with 2 children, got %d", len(cond.AllOf))
	}
	if cond.AllOf[1].Operator != OpEquals {
		t.Errorf("second child operator = %q, want ==", cond.AllOf[1].Operator)
	}
}

func TestLoadRulesDisabledRule(t *testing.T) {
	doc := `[{
		"id": "r1",
		"enabled": false,
		"conditions": {"field": "a", "operator": "hasValue"},
		"actions": [{"type": "hide", "target": "b"}]
	}]`

	loaded, err := LoadRules([]byte(doc))
	if err != nil {
		t.Fatalf("LoadRules() failed: %v", err)
	}
	if loaded[0].Enabled {
		t.Error("explicitly disabled rule should stay disabled")
	}
}
