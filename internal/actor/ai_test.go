package actor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowkernel/kernel/internal/workflow"
)

type fakeProvider struct {
	response string
	err      error
}

func (f *fakeProvider) Complete(ctx context.Context, systemPrompt, userContent string, cfg ModelParams) (string, error) {
	return f.response, f.err
}

func TestAIActorParsesJSONResponse(t *testing.T) {
	provider := &fakeProvider{response: `{"approved": true}`}
	ai := NewAI(map[string]Provider{"anthropic": provider})

	role := workflow.Role{ID: "r1", Model: &workflow.ModelConfig{Provider: "anthropic", ModelID: "claude"}}
	activity := workflow.Activity{ID: "a1", Name: "Review"}

	out, err := ai.Execute(context.Background(), activity, role, map[string]any{"x": 1})
	require.NoError(t, err)
	assert.Equal(t, true, out["approved"])
}

func TestAIActorFallsBackToComplexCompletedOnNonJSON(t *testing.T) {
	provider := &fakeProvider{response: "plain text answer"}
	ai := NewAI(map[string]Provider{"anthropic": provider})

	role := workflow.Role{ID: "r1", Model: &workflow.ModelConfig{Provider: "anthropic", ModelID: "claude"}}
	activity := workflow.Activity{ID: "a1", Name: "Review"}

	out, err := ai.Execute(context.Background(), activity, role, nil)
	require.NoError(t, err)
	assert.Equal(t, "plain text answer", out["output"])
	assert.Equal(t, "complex_completed", out["status"])
}

func TestAIActorFailsWithoutModelCredential(t *testing.T) {
	ai := NewAI(map[string]Provider{})
	role := workflow.Role{ID: "r1"}
	activity := workflow.Activity{ID: "a1", Name: "Review"}

	_, err := ai.Execute(context.Background(), activity, role, nil)
	assert.Error(t, err)
}
