package decision

import (
	"github.com/flowkernel/kernel/internal/kernelerr"
	"github.com/flowkernel/kernel/internal/workflow"
)

// Result is the outcome of evaluating a decision table against a
// context map.
type Result struct {
	Matched      bool
	OutputEdgeID string
	// Outputs holds, per output column name, either a single matched
	// value (unique/first/priority/any) or a []any of matched values in
	// rule order (collect/rule_order).
	Outputs map[string]any
}

// Evaluate runs table against context, selecting and combining matching
// rules per table.HitPolicy. If table declares the "any" hit policy and
// more than one rule matches with differing outputs, an error is
// returned: the spec states output equality as an invariant an
// implementation may enforce.
func Evaluate(table workflow.DecisionTable, context map[string]any) (Result, error) {
	var matches []workflow.Rule
	for _, rule := range table.Rules {
		if ruleMatches(rule, table.Inputs, context) {
			matches = append(matches, rule)
			if table.HitPolicy == workflow.HitUnique || table.HitPolicy == workflow.HitFirst || table.HitPolicy == workflow.HitPriority {
				break
			}
		}
	}

	if len(matches) == 0 {
		return Result{Matched: false, Outputs: map[string]any{}}, nil
	}

	switch table.HitPolicy {
	case workflow.HitUnique, workflow.HitFirst, workflow.HitPriority:
		return singleResult(table, matches[0]), nil
	case workflow.HitAny:
		first := singleResult(table, matches[0])
		for _, rule := range matches[1:] {
			r := singleResult(table, rule)
			for _, col := range table.Outputs {
				if r.Outputs[col.Name] != first.Outputs[col.Name] {
					return Result{}, kernelerr.New(kernelerr.Validation,
						"decision table hit policy 'any' requires equal outputs across matched rules, but column %q differs", col.Name)
				}
			}
		}
		return first, nil
	case workflow.HitCollect, workflow.HitRuleOrder:
		return collectResult(table, matches), nil
	default:
		return singleResult(table, matches[0]), nil
	}
}

func ruleMatches(rule workflow.Rule, inputs []workflow.Column, context map[string]any) bool {
	for i, col := range inputs {
		var expr string
		if i < len(rule.InputEntries) {
			expr = rule.InputEntries[i]
		}
		if !EvaluateExpr(expr, context[col.Name]) {
			return false
		}
	}
	return true
}

func singleResult(table workflow.DecisionTable, rule workflow.Rule) Result {
	outputs := make(map[string]any, len(table.Outputs))
	for i, col := range table.Outputs {
		if i < len(rule.OutputEntries) {
			outputs[col.Name] = rule.OutputEntries[i]
		}
	}
	return Result{Matched: true, OutputEdgeID: rule.OutputEdgeID, Outputs: outputs}
}

func collectResult(table workflow.DecisionTable, rules []workflow.Rule) Result {
	outputs := make(map[string]any, len(table.Outputs))
	for i, col := range table.Outputs {
		values := make([]any, 0, len(rules))
		for _, rule := range rules {
			if i < len(rule.OutputEntries) {
				values = append(values, rule.OutputEntries[i])
			} else {
				values = append(values, nil)
			}
		}
		outputs[col.Name] = values
	}
	return Result{Matched: true, OutputEdgeID: rules[0].OutputEdgeID, Outputs: outputs}
}
