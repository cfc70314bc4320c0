package rules

import "reflect"

const computedValueKey = "value"

// apply performs one action against the state and returns the deltas it
// actually produced. An action that changes nothing produces no deltas,
// which is what makes repeated firings idempotent. Actions only ever write
// derived state; user values are untouchable from here.
func (en *Engine) apply(ruleID string, actionIndex int, a Action, state *FormState) []StateDelta {
	meta := state.Meta(a.Target)

	switch a.Type {
	case ActionSetRequired:
		required := true
		if b, ok := a.Value.(bool); ok {
			required = b
		}
		message := a.StringOption("message")
		if meta.Required == required && meta.RequiredMessage == message {
			return nil
		}
		meta.Required = required
		meta.RequiredMessage = message
		return []StateDelta{{Field: a.Target, Aspect: "required", Value: required}}

	case ActionSetVisible:
		visible := true
		if b, ok := a.Value.(bool); ok {
			visible = b
		}
		return en.setVisible(a.Target, meta, visible)

	case ActionHide:
		// Hiding never clears the field's value; it is retained for a
		// later re-show.
		return en.setVisible(a.Target, meta, false)

	case ActionAddValidator:
		spec, ok := validatorFromOptions(a.Options)
		if !ok {
			return nil
		}
		key := spec.dedupeKey()
		for _, existing := range meta.Validators {
			if existing.dedupeKey() == key {
				return nil
			}
		}
		meta.Validators = append(meta.Validators, spec)
		return []StateDelta{{Field: a.Target, Aspect: "validators", Value: spec}}

	case ActionAddClass:
		class, _ := a.Value.(string)
		if class == "" || !meta.addClass(class) {
			return nil
		}
		return []StateDelta{{Field: a.Target, Aspect: "classes", Value: class}}

	case ActionRemoveClass:
		class, _ := a.Value.(string)
		if class == "" || !meta.removeClass(class) {
			return nil
		}
		return []StateDelta{{Field: a.Target, Aspect: "classes", Value: class}}

	case ActionShowMessage:
		text, _ := a.Value.(string)
		if text == "" || len(meta.Messages) >= en.cfg.MaxMessages {
			return nil
		}
		level := a.StringOption("level")
		if level == "" {
			level = "info"
		}
		msg := Message{Text: text, Level: level}
		meta.Messages = append(meta.Messages, msg)
		return []StateDelta{{Field: a.Target, Aspect: "messages", Value: msg}}

	case ActionCalculate:
		prog, ok := en.programs[calcKey(ruleID, actionIndex)]
		if !ok {
			return nil
		}
		out, _, err := prog.Eval(calcActivation(state, en.calcVars))
		if err != nil {
			// Evaluation stays total: an expression over missing or
			// mistyped values is a no-op, not a failure.
			en.logger.Debug("calculate evaluation failed",
				"rule", ruleID, "target", a.Target, "error", err)
			return nil
		}
		name := a.StringOption("name")
		if name == "" {
			name = computedValueKey
		}
		value := out.Value()
		if meta.Computed == nil {
			meta.Computed = make(map[string]any)
		}
		if prev, ok := meta.Computed[name]; ok && reflect.DeepEqual(prev, value) {
			return nil
		}
		meta.Computed[name] = value
		return []StateDelta{{Field: a.Target, Aspect: "computed", Value: value}}
	}

	return nil
}

func (en *Engine) setVisible(target string, meta *FieldMeta, visible bool) []StateDelta {
	if meta.Visible == visible {
		return nil
	}
	meta.Visible = visible
	return []StateDelta{{Field: target, Aspect: "visible", Value: visible}}
}

func validatorFromOptions(options map[string]any) (ValidatorSpec, bool) {
	raw, ok := options["validator"].(map[string]any)
	if !ok {
		return ValidatorSpec{}, false
	}

	spec := ValidatorSpec{}
	spec.Type, _ = raw["type"].(string)
	if spec.Type == "" {
		return ValidatorSpec{}, false
	}
	spec.Message, _ = raw["message"].(string)

	for k, v := range raw {
		if k == "type" || k == "message" {
			continue
		}
		if spec.Params == nil {
			spec.Params = make(map[string]any)
		}
		spec.Params[k] = v
	}
	return spec, true
}
