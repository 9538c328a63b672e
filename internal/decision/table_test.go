package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowkernel/kernel/internal/workflow"
)

func TestEvaluateExprDashAlwaysMatches(t *testing.T) {
	for _, v := range []any{nil, 1, "x", true} {
		assert.True(t, EvaluateExpr("-", v))
	}
}

func TestEvaluateExprComparisonsAndRanges(t *testing.T) {
	assert.True(t, EvaluateExpr(">=80", 80.0))
	assert.False(t, EvaluateExpr(">=80", 79.9))
	assert.True(t, EvaluateExpr("[50..79]", 79.0))
	assert.False(t, EvaluateExpr("[50..79]", 80.0))
	assert.True(t, EvaluateExpr(`"approved"`, "approved"))
	assert.True(t, EvaluateExpr("in(1,2,3)", 2.0))
	assert.False(t, EvaluateExpr("not in(1,2,3)", 2.0))
}

func classifyTable() workflow.DecisionTable {
	return workflow.DecisionTable{
		HitPolicy: workflow.HitFirst,
		Inputs:    []workflow.Column{{Name: "score"}},
		Outputs:   []workflow.Column{{Name: "result"}},
		Rules: []workflow.Rule{
			{InputEntries: []string{">=80"}, OutputEntries: []any{"A"}, OutputEdgeID: "edge-a"},
			{InputEntries: []string{"[50..79]"}, OutputEntries: []any{"B"}, OutputEdgeID: "edge-b"},
			{InputEntries: []string{"-"}, OutputEntries: []any{"C"}, OutputEdgeID: "edge-c"},
		},
	}
}

func TestEvaluateFirstHitPolicyCardinalityOne(t *testing.T) {
	res, err := Evaluate(classifyTable(), map[string]any{"score": 75.0})
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.Equal(t, "B", res.Outputs["result"])
	assert.Equal(t, "edge-b", res.OutputEdgeID)
}

func TestCollectHitPolicyLengthMatchesRuleCount(t *testing.T) {
	table := workflow.DecisionTable{
		HitPolicy: workflow.HitCollect,
		Inputs:    []workflow.Column{{Name: "x"}},
		Outputs:   []workflow.Column{{Name: "tag"}},
		Rules: []workflow.Rule{
			{InputEntries: []string{">=0"}, OutputEntries: []any{"one"}},
			{InputEntries: []string{">=0"}, OutputEntries: []any{"two"}},
		},
	}
	res, err := Evaluate(table, map[string]any{"x": 5.0})
	require.NoError(t, err)
	tags, ok := res.Outputs["tag"].([]any)
	require.True(t, ok)
	assert.Len(t, tags, 2)
}

func TestAnyHitPolicyRejectsUnequalOutputs(t *testing.T) {
	table := workflow.DecisionTable{
		HitPolicy: workflow.HitAny,
		Inputs:    []workflow.Column{{Name: "x"}},
		Outputs:   []workflow.Column{{Name: "tag"}},
		Rules: []workflow.Rule{
			{InputEntries: []string{">=0"}, OutputEntries: []any{"one"}},
			{InputEntries: []string{">=0"}, OutputEntries: []any{"two"}},
		},
	}
	_, err := Evaluate(table, map[string]any{"x": 5.0})
	assert.Error(t, err)
}

func TestNoRulesMatchReturnsUnmatched(t *testing.T) {
	table := workflow.DecisionTable{
		HitPolicy: workflow.HitFirst,
		Inputs:    []workflow.Column{{Name: "x"}},
		Outputs:   []workflow.Column{{Name: "tag"}},
		Rules: []workflow.Rule{
			{InputEntries: []string{">100"}, OutputEntries: []any{"one"}},
		},
	}
	res, err := Evaluate(table, map[string]any{"x": 5.0})
	require.NoError(t, err)
	assert.False(t, res.Matched)
}
