package rules

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
	celast "github.com/google/cel-go/common/ast"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// calcEnv builds the CEL environment calculate expressions compile against.
// Only the value space is declared: every top-level segment of a field path
// mentioned anywhere in the document becomes a dynamic variable. Derived
// state is not declared at all, so calculations cannot read engine output
// and calculation cycles cannot form.
func calcEnv(names []string) (*cel.Env, error) {
	opts := []cel.EnvOption{daysBetweenFunc()}
	for _, name := range names {
		opts = append(opts, cel.Variable(name, cel.DynType))
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("create calc environment: %w", err)
	}
	return env, nil
}

// calcVarNames collects the top-level path segments mentioned anywhere in
// the document, sorted for a stable environment. Condition refs, action
// targets, and the identifiers inside calculate expressions all count: a
// calculation may read fields that no condition or target mentions.
func calcVarNames(ruleList []*Rule) []string {
	names := make(map[string]bool)
	parseEnv, parseErr := cel.NewEnv(daysBetweenFunc())
	for _, r := range ruleList {
		for _, ref := range r.refs {
			names[topSegment(ref)] = true
		}
		for _, a := range r.Actions {
			names[topSegment(a.Target)] = true
			if a.Type == ActionCalculate && parseErr == nil {
				for _, id := range calcExprIdents(parseEnv, a.StringOption("expression")) {
					names[topSegment(id)] = true
				}
			}
		}
	}

	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)
	return sorted
}

// calcExprIdents returns the identifiers a calculate expression references.
// Parse failures are ignored here; compileCalculations reports them with
// the rule context attached.
func calcExprIdents(parseEnv *cel.Env, expr string) []string {
	parsed, issues := parseEnv.Parse(expr)
	if issues != nil && issues.Err() != nil {
		return nil
	}

	var idents []string
	celast.PostOrderVisit(parsed.NativeRep().Expr(), celast.NewExprVisitor(func(e celast.Expr) {
		if e.Kind() == celast.IdentKind {
			idents = append(idents, e.AsIdent())
		}
	}))
	return idents
}

func topSegment(path string) string {
	if i := strings.Index(path, "."); i > 0 {
		return path[:i]
	}
	return path
}

// daysBetweenFunc registers daysBetween(from, to): whole days between two
// dates given as "2006-01-02" or RFC 3339 strings. Negative when to is
// before from.
func daysBetweenFunc() cel.EnvOption {
	return cel.Function("daysBetween",
		cel.Overload("daysBetween_string_string",
			[]*cel.Type{cel.StringType, cel.StringType}, cel.IntType,
			cel.BinaryBinding(func(lhs, rhs ref.Val) ref.Val {
				from, ok1 := lhs.Value().(string)
				to, ok2 := rhs.Value().(string)
				if !ok1 || !ok2 {
					return types.NewErr("daysBetween expects string dates")
				}
				ft, err1 := parseCalcDate(from)
				tt, err2 := parseCalcDate(to)
				if err1 != nil || err2 != nil {
					return types.NewErr("daysBetween: unparseable date")
				}
				return types.Int(int64(tt.Sub(ft).Hours() / 24))
			}),
		),
	)
}

func parseCalcDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// compileCalculations compiles every calculate expression in the document.
// A compile failure is a MalformedRuleError: bad expressions are rejected
// when the document is loaded, not when a rule fires. The cost limit keeps
// untrusted documents from smuggling in runaway expressions.
func compileCalculations(env *cel.Env, ruleList []*Rule) (map[string]cel.Program, error) {
	programs := make(map[string]cel.Program)
	for _, r := range ruleList {
		for i, a := range r.Actions {
			if a.Type != ActionCalculate {
				continue
			}
			expr := a.StringOption("expression")
			ast, issues := env.Compile(expr)
			if issues != nil && issues.Err() != nil {
				return nil, &MalformedRuleError{
					Index:  r.seq,
					RuleID: r.ID,
					Reason: fmt.Sprintf("action %d: compile %q: %v", i, expr, issues.Err()),
				}
			}
			prog, err := env.Program(ast, cel.CostLimit(1000000))
			if err != nil {
				return nil, &MalformedRuleError{
					Index:  r.seq,
					RuleID: r.ID,
					Reason: fmt.Sprintf("action %d: program for %q: %v", i, expr, err),
				}
			}
			programs[calcKey(r.ID, i)] = prog
		}
	}
	return programs, nil
}

func calcKey(ruleID string, actionIndex int) string {
	return fmt.Sprintf("%s#%d", ruleID, actionIndex)
}

// calcActivation maps every declared variable to its current value. Fields
// with no value yet resolve to an empty object so evaluation stays total.
func calcActivation(state *FormState, names []string) map[string]any {
	activation := make(map[string]any, len(names))
	for _, name := range names {
		if v, ok := state.Values[name]; ok {
			activation[name] = v
		} else {
			activation[name] = map[string]any{}
		}
	}
	return activation
}
