package rules

import (
	"encoding/json"
	"regexp"
	"strings"
)

// EvaluateCondition evaluates a condition tree against the current state.
// It is a pure function and total: missing fields and type mismatches make
// the governing leaf false, they never produce an error. allOf and anyOf
// short-circuit left to right.
func EvaluateCondition(c *Condition, state *FormState) bool {
	if c == nil {
		return false
	}

	switch {
	case len(c.AllOf) > 0 || (c.Field == "" && c.Not == nil && len(c.AnyOf) == 0):
		// An empty allOf is vacuously true.
		for _, sub := range c.AllOf {
			if !EvaluateCondition(sub, state) {
				return false
			}
		}
		return true

	case len(c.AnyOf) > 0:
		for _, sub := range c.AnyOf {
			if EvaluateCondition(sub, state) {
				return true
			}
		}
		return false

	case c.Not != nil:
		return !EvaluateCondition(c.Not, state)

	default:
		return evaluateLeaf(c, state)
	}
}

func evaluateLeaf(c *Condition, state *FormState) bool {
	value, ok := state.Lookup(c.Field)
	if !ok {
		return false
	}

	switch c.Operator {
	case OpIsEmpty:
		return isEmptyValue(value)
	case OpHasValue:
		return !isEmptyValue(value)
	case OpEquals:
		eq, comparable := looseEqual(value, c.Value)
		return comparable && eq
	case OpNotEqual:
		eq, comparable := looseEqual(value, c.Value)
		return comparable && !eq
	case OpIn:
		list, ok := c.Value.([]any)
		if !ok {
			return false
		}
		for _, item := range list {
			if eq, comparable := looseEqual(value, item); comparable && eq {
				return true
			}
		}
		return false
	case OpContains:
		return containsValue(value, c.Value)
	case OpMatches:
		s, ok := value.(string)
		if !ok {
			return false
		}
		re := c.re
		if re == nil {
			pattern, ok := c.Value.(string)
			if !ok {
				return false
			}
			var err error
			re, err = regexp.Compile(pattern)
			if err != nil {
				return false
			}
		}
		return re.MatchString(s)
	default:
		return false
	}
}

// isEmptyValue mirrors the form notion of emptiness: nil, blank string, or
// an empty collection.
func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}

// looseEqual compares two runtime values. JSON numbers compare numerically
// regardless of their Go representation; otherwise the types must agree.
// The second return is false for incomparable pairs, which makes both ==
// and != leaves evaluate to false on a type mismatch.
func looseEqual(a, b any) (equal, comparable bool) {
	if a == nil || b == nil {
		return a == nil && b == nil, true
	}

	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	if aNum && bNum {
		return af == bf, true
	}
	if aNum != bNum {
		return false, false
	}

	switch at := a.(type) {
	case string:
		bt, ok := b.(string)
		return ok && at == bt, ok
	case bool:
		bt, ok := b.(bool)
		return ok && at == bt, ok
	default:
		return false, false
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// containsValue implements the contains operator: substring for strings,
// membership for arrays, anything else is false.
func containsValue(haystack, needle any) bool {
	switch h := haystack.(type) {
	case string:
		n, ok := needle.(string)
		return ok && strings.Contains(h, n)
	case []any:
		for _, item := range h {
			if eq, comparable := looseEqual(item, needle); comparable && eq {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// conditionRefs collects the field paths a condition tree reads, in
// declaration order with duplicates removed.
func conditionRefs(c *Condition) []string {
	var refs []string
	seen := make(map[string]bool)
	var walk func(*Condition)
	walk = func(c *Condition) {
		if c == nil {
			return
		}
		if c.Field != "" && !seen[c.Field] {
			seen[c.Field] = true
			refs = append(refs, c.Field)
		}
		for _, sub := range c.AllOf {
			walk(sub)
		}
		for _, sub := range c.AnyOf {
			walk(sub)
		}
		walk(c.Not)
	}
	walk(c)
	return refs
}

// refTouched reports whether a condition's field reference is affected by a
// touched path. A write to a parent object affects references into it, and
// a write to a nested field affects references to the enclosing object.
func refTouched(ref, touched string) bool {
	return ref == touched ||
		strings.HasPrefix(ref, touched+".") ||
		strings.HasPrefix(touched, ref+".")
}
