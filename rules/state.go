package rules

import (
	"sort"
	"strings"
)

// FormState is the per-session snapshot conditions read and actions write.
// Values holds user-entered or externally-set data only; Derived holds
// engine-produced metadata only. A FormState belongs to exactly one session
// and is never shared across sessions.
type FormState struct {
	Values  map[string]any        `json:"values"`
	Derived map[string]*FieldMeta `json:"derived"`
}

// FieldMeta is the derived metadata the engine maintains for one field.
type FieldMeta struct {
	Required        bool            `json:"required"`
	RequiredMessage string          `json:"requiredMessage,omitempty"`
	Visible         bool            `json:"visible"`
	Validators      []ValidatorSpec `json:"validators,omitempty"`
	Classes         []string        `json:"classes,omitempty"`
	Messages        []Message       `json:"messages,omitempty"`
	Computed        map[string]any  `json:"computed,omitempty"`
}

// Enforced reports whether the field's required flag should actually be
// enforced. A field that one rule requires and another rule hides keeps both
// flags as written, but requiredness is not enforced while hidden.
func (m *FieldMeta) Enforced() bool {
	return m.Required && m.Visible
}

// NewFormState creates a session state seeded with the given values. The
// map is used directly; callers hand over ownership.
func NewFormState(values map[string]any) *FormState {
	if values == nil {
		values = make(map[string]any)
	}
	return &FormState{
		Values:  values,
		Derived: make(map[string]*FieldMeta),
	}
}

// Meta returns the derived metadata for a field path, creating it on first
// access. Fields are visible by default.
func (s *FormState) Meta(path string) *FieldMeta {
	if m, ok := s.Derived[path]; ok {
		return m
	}
	m := &FieldMeta{Visible: true}
	s.Derived[path] = m
	return m
}

// SetValue writes a user/externally-set value at a dot path, creating
// intermediate objects as needed. Only field-change events call this; rule
// actions never write Values.
func (s *FormState) SetValue(path string, value any) {
	parts := strings.Split(path, ".")
	node := s.Values
	for _, p := range parts[:len(parts)-1] {
		child, ok := node[p].(map[string]any)
		if !ok {
			child = make(map[string]any)
			node[p] = child
		}
		node = child
	}
	node[parts[len(parts)-1]] = value
}

// Lookup resolves a field path against the state's key space. Resolution
// order: user values by dot path, then computed results written by
// calculate actions, then derived flags via the .required / .visible
// suffixes. Unresolvable paths return ok=false; conditions treat that as a
// false leaf rather than an error.
func (s *FormState) Lookup(path string) (any, bool) {
	if path == "" {
		return nil, false
	}

	if v, ok := lookupPath(s.Values, path); ok {
		return v, true
	}

	if m, ok := s.Derived[path]; ok && m.Computed != nil {
		if v, ok := m.Computed[computedValueKey]; ok {
			return v, true
		}
	}

	if i := strings.LastIndex(path, "."); i > 0 {
		prefix, leaf := path[:i], path[i+1:]
		if m, ok := s.Derived[prefix]; ok {
			switch leaf {
			case "required":
				return m.Required, true
			case "visible":
				return m.Visible, true
			default:
				if m.Computed != nil {
					if v, ok := m.Computed[leaf]; ok {
						return v, true
					}
				}
			}
		}
	}

	return nil, false
}

func lookupPath(values map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var node any = values
	for _, p := range parts {
		obj, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		node, ok = obj[p]
		if !ok {
			return nil, false
		}
	}
	return node, true
}

// addClass inserts a class keeping the slice sorted and deduplicated.
// Returns false when the class was already present.
func (m *FieldMeta) addClass(class string) bool {
	i := sort.SearchStrings(m.Classes, class)
	if i < len(m.Classes) && m.Classes[i] == class {
		return false
	}
	m.Classes = append(m.Classes, "")
	copy(m.Classes[i+1:], m.Classes[i:])
	m.Classes[i] = class
	return true
}

// removeClass deletes a class. Returns false when it was not present.
func (m *FieldMeta) removeClass(class string) bool {
	i := sort.SearchStrings(m.Classes, class)
	if i >= len(m.Classes) || m.Classes[i] != class {
		return false
	}
	m.Classes = append(m.Classes[:i], m.Classes[i+1:]...)
	return true
}
