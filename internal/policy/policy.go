// Package policy evaluates configurable business rules as govaluate
// expressions. Rules are compiled once at construction and evaluated with a
// parameter map per call, so new rules ship as configuration rather than
// code changes.
package policy

import (
	"fmt"

	"github.com/Knetic/govaluate"
)

// RuleConfig names one rule and its boolean expression.
type RuleConfig struct {
	Name       string
	Expression string
}

// Decision is the outcome of evaluating a rule set. When Allow is false,
// Rule names the first rule that rejected.
type Decision struct {
	Allow  bool
	Rule   string
	Reason string
}

type compiledRule struct {
	name string
	expr *govaluate.EvaluableExpression
}

// Engine holds a compiled rule set. All rules must pass for a decision to
// allow.
type Engine struct {
	rules []compiledRule
}

// NewEngine compiles the rule set. A rule that does not parse fails
// construction.
func NewEngine(rules []RuleConfig) (*Engine, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		expr, err := govaluate.NewEvaluableExpression(r.Expression)
		if err != nil {
			return nil, fmt.Errorf("policy: compiling rule %q: %w", r.Name, err)
		}
		compiled = append(compiled, compiledRule{name: r.Name, expr: expr})
	}
	return &Engine{rules: compiled}, nil
}

// Evaluate runs every rule against the parameters. The first rule that
// evaluates false (or errors, or yields a non-boolean) rejects.
func (e *Engine) Evaluate(params map[string]interface{}) (Decision, error) {
	for _, r := range e.rules {
		result, err := r.expr.Evaluate(params)
		if err != nil {
			return Decision{Allow: false, Rule: r.name, Reason: err.Error()},
				fmt.Errorf("policy: evaluating rule %q: %w", r.name, err)
		}
		ok, isBool := result.(bool)
		if !isBool {
			return Decision{Allow: false, Rule: r.name, Reason: "rule did not evaluate to a boolean"},
				fmt.Errorf("policy: rule %q evaluated to %T, want bool", r.name, result)
		}
		if !ok {
			return Decision{Allow: false, Rule: r.name, Reason: fmt.Sprintf("rule %q rejected", r.name)}, nil
		}
	}
	return Decision{Allow: true}, nil
}

// DefaultRefundRules bound refund requests: only completed orders, positive
// amounts, never more than the original charge.
func DefaultRefundRules() []RuleConfig {
	return []RuleConfig{
		{Name: "refund_requires_completed_order", Expression: "order_status == 'completed'"},
		{Name: "refund_amount_positive", Expression: "refund_amount > 0"},
		{Name: "refund_within_order_amount", Expression: "refund_amount <= order_amount"},
	}
}
