package actor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/flowkernel/kernel/internal/kernelerr"
	"github.com/flowkernel/kernel/internal/workflow"
)

// Provider is the narrow contract every generative-model backend
// implements: a single prompt/system-message round trip returning raw
// text. Provider-specific request shaping (tool use, streaming,
// thinking budgets) lives in the provider's own adapter, not here — the
// actor only needs a text completion.
type Provider interface {
	Complete(ctx context.Context, systemPrompt, userContent string, cfg ModelParams) (string, error)
}

// ModelParams carries the per-role dispatch configuration declared on
// the workflow's Role.Model.
type ModelParams struct {
	ModelID     string
	Temperature float64
	MaxTokens   int
}

// AI is the AI actor. It composes a system prompt from the role and
// activity, attaches inputs as JSON user content, and dispatches to the
// provider registered for the role's declared provider name.
type AI struct {
	Providers map[string]Provider
}

// NewAI constructs an AI actor with the given provider registry, keyed
// by the lowercase provider name as it appears in Role.Model.Provider
// (e.g. "anthropic", "openai", "bedrock").
func NewAI(providers map[string]Provider) *AI {
	return &AI{Providers: providers}
}

func (a *AI) Execute(ctx context.Context, activity workflow.Activity, role workflow.Role, inputs map[string]any) (map[string]any, error) {
	if role.Model == nil || role.Model.Provider == "" {
		return nil, kernelerr.New(kernelerr.Config, "activity %q has no model credential configured for role %q", activity.ID, role.ID)
	}
	provider, ok := a.Providers[strings.ToLower(role.Model.Provider)]
	if !ok || provider == nil {
		return nil, kernelerr.New(kernelerr.Config, "no provider wired for %q", role.Model.Provider)
	}

	systemPrompt := composeSystemPrompt(role, activity)
	if role.Model.SystemPromptOverride != "" {
		systemPrompt = role.Model.SystemPromptOverride
	}

	inputsJSON, err := json.Marshal(inputs)
	if err != nil {
		return nil, kernelerr.Wrap(kernelerr.Integration, err, "marshal activity inputs for AI actor")
	}

	params := ModelParams{
		ModelID:     role.Model.ModelID,
		Temperature: role.Model.Temperature,
		MaxTokens:   role.Model.MaxTokens,
	}

	text, err := provider.Complete(ctx, systemPrompt, string(inputsJSON), params)
	if err != nil {
		return nil, kernelerr.Wrap(kernelerr.Integration, err, "AI actor call failed for role %q", role.ID)
	}

	var parsed map[string]any
	if json.Unmarshal([]byte(strings.TrimSpace(text)), &parsed) == nil && parsed != nil {
		return parsed, nil
	}
	return map[string]any{"output": text, "status": "complex_completed"}, nil
}

func composeSystemPrompt(role workflow.Role, activity workflow.Activity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are acting as role %q.", role.Name)
	if role.Description != "" {
		fmt.Fprintf(&b, " %s", role.Description)
	}
	if len(role.Capabilities) > 0 {
		fmt.Fprintf(&b, " Capabilities: %s.", strings.Join(role.Capabilities, ", "))
	}
	fmt.Fprintf(&b, "\nPerform activity %q.", activity.Name)
	if activity.Description != "" {
		fmt.Fprintf(&b, " %s", activity.Description)
	}
	for _, c := range activity.Controls {
		fmt.Fprintf(&b, "\nControl %q: %s", c.Name, c.Enforcement)
	}
	b.WriteString("\nRespond with a single JSON object when possible.")
	return b.String()
}
