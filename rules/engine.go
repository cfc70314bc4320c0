package rules

import (
	"log/slog"
	"sort"

	"github.com/google/cel-go/cel"
)

// Config holds the engine's evaluation knobs.
type Config struct {
	// MaxSweeps bounds cascade re-evaluation within one pass. Hitting the
	// bound produces a CycleWarning instead of looping forever.
	MaxSweeps int

	// MaxMessages caps per-field messages so cyclic re-firing cannot grow
	// state without bound.
	MaxMessages int
}

// DefaultConfig returns sensible defaults for interactive forms.
func DefaultConfig() Config {
	return Config{
		MaxSweeps:   10,
		MaxMessages: 20,
	}
}

// Engine evaluates a loaded rule document against per-session form state.
// An Engine is immutable after construction and safe to share across any
// number of concurrent sessions; all mutable state lives in the FormState
// passed to each call.
type Engine struct {
	rules    []*Rule
	cfg      Config
	programs map[string]cel.Program // calcKey -> compiled calculate expression
	calcVars []string
	logger   *slog.Logger
}

// NewEngine creates an engine for a rule document with default config.
func NewEngine(ruleList []*Rule) (*Engine, error) {
	return NewEngineWithConfig(ruleList, DefaultConfig())
}

// NewEngineWithConfig creates an engine with explicit config. Calculate
// expressions are compiled here; a failure surfaces as MalformedRuleError
// so a bad document is rejected before any session uses it.
func NewEngineWithConfig(ruleList []*Rule, cfg Config) (*Engine, error) {
	if cfg.MaxSweeps <= 0 {
		cfg.MaxSweeps = DefaultConfig().MaxSweeps
	}
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = DefaultConfig().MaxMessages
	}

	vars := calcVarNames(ruleList)
	env, err := calcEnv(vars)
	if err != nil {
		return nil, err
	}
	programs, err := compileCalculations(env, ruleList)
	if err != nil {
		return nil, err
	}

	return &Engine{
		rules:    ruleList,
		cfg:      cfg,
		programs: programs,
		calcVars: vars,
		logger:   slog.Default(),
	}, nil
}

// SetLogger replaces the engine's logger. Intended for wiring during setup,
// before the engine is shared.
func (en *Engine) SetLogger(l *slog.Logger) {
	if l != nil {
		en.logger = l
	}
}

// Rules returns the loaded rules in declaration order.
func (en *Engine) Rules() []*Rule {
	return en.rules
}

// OnFieldChange records a field-change event and runs an evaluation pass.
func (en *Engine) OnFieldChange(state *FormState, path string, value any) *PassResult {
	state.SetValue(path, value)
	return en.EvaluatePass(state)
}

// EvaluatePass runs one evaluation pass: select the enabled rules whose
// conditions hold, fire them in priority order (descending, declaration
// order breaking ties), merge their deltas into the state immediately, and
// re-check any rule whose condition reads a field a delta touched. The pass
// ends when a sweep fires nothing, or at the sweep bound, in which case the
// result carries a CycleWarning and the last computed state stands.
//
// Later rules in a sweep observe earlier rules' effects, so dependent
// chains resolve within a single pass. Given identical state and rules the
// pass is deterministic: no outcome depends on map iteration order.
func (en *Engine) EvaluatePass(state *FormState) *PassResult {
	result := &PassResult{}

	// armed marks rules whose conditions need (re-)checking.
	armed := make([]bool, len(en.rules))
	for i, r := range en.rules {
		armed[i] = r.Enabled
	}

	for {
		candidates := en.eligible(state, armed)
		if len(candidates) == 0 {
			break
		}

		if result.Sweeps == en.cfg.MaxSweeps {
			result.Cycle = &CycleWarning{
				Sweeps: result.Sweeps,
				Rules:  en.ruleIDs(candidates),
			}
			en.logger.Warn("rule evaluation hit sweep bound",
				"sweeps", result.Sweeps,
				"rules", result.Cycle.Rules)
			break
		}
		result.Sweeps++

		firedAny := false
		for _, idx := range candidates {
			rule := en.rules[idx]

			// Earlier firings in this sweep may have flipped the
			// condition; re-check at fire time.
			if !EvaluateCondition(rule.Conditions, state) {
				armed[idx] = false
				continue
			}

			armed[idx] = false
			firedAny = true
			result.Fired = append(result.Fired, FiredRule{
				RuleID:   rule.ID,
				RuleName: rule.Name,
				Sweep:    result.Sweeps,
			})

			for i, action := range rule.Actions {
				deltas := en.apply(rule.ID, i, action, state)
				for _, d := range deltas {
					result.Deltas = append(result.Deltas, d)
					en.rearm(armed, d)
				}
			}
		}

		if !firedAny {
			break
		}
	}

	return result
}

// eligible returns the armed rules whose conditions currently hold, ordered
// by priority descending with declaration order as the stable tie-break.
// Rules that evaluate false are disarmed; a later delta touching their
// condition fields re-arms them.
func (en *Engine) eligible(state *FormState, armed []bool) []int {
	var out []int
	for i, r := range en.rules {
		if !armed[i] {
			continue
		}
		if EvaluateCondition(r.Conditions, state) {
			out = append(out, i)
		} else {
			armed[i] = false
		}
	}

	sort.SliceStable(out, func(a, b int) bool {
		ra, rb := en.rules[out[a]], en.rules[out[b]]
		if ra.Priority != rb.Priority {
			return ra.Priority > rb.Priority
		}
		return ra.seq < rb.seq
	})
	return out
}

// rearm re-checks any rule whose condition reads a path the delta touched.
// This includes rules that already fired: a rule whose firing re-triggers
// itself or a partner loops until the sweep bound reports it.
func (en *Engine) rearm(armed []bool, d StateDelta) {
	touched := d.Field
	switch d.Aspect {
	case "required", "visible":
		touched = d.Field + "." + d.Aspect
	}

	for i, r := range en.rules {
		if !r.Enabled || armed[i] {
			continue
		}
		for _, ref := range r.refs {
			if refTouched(ref, touched) {
				armed[i] = true
				break
			}
		}
	}
}

func (en *Engine) ruleIDs(indices []int) []string {
	ids := make([]string, 0, len(indices))
	for _, i := range indices {
		ids = append(ids, en.rules[i].ID)
	}
	return ids
}
