// Package checkpoint serializes engine and token state into a versioned
// envelope and persists it through an abstract Store, so a run can be
// suspended and later reconstituted without replaying history.
package checkpoint

import (
	"time"

	"github.com/flowkernel/kernel/internal/clock"
	"github.com/flowkernel/kernel/internal/token"
)

const envelopeVersion = "1.0"

// TokenState is the persisted projection of a token.Token.
type TokenState struct {
	ID          string               `json:"id"`
	WorkflowID  string               `json:"workflow_id"`
	ActivityID  string               `json:"activity_id"`
	Status      token.Status         `json:"status"`
	ContextData map[string]any       `json:"context_data"`
	History     []token.HistoryEntry `json:"history"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// FromToken projects a live token into its persisted state. activityID is
// the token's current node id at the moment of capture.
func FromToken(t *token.Token) TokenState {
	return TokenState{
		ID:          t.ID(),
		WorkflowID:  t.WorkflowID(),
		ActivityID:  t.CurrentNodeID(),
		Status:      t.Status(),
		ContextData: t.ContextData(),
		History:     t.History(),
		CreatedAt:   t.CreatedAt(),
		UpdatedAt:   t.UpdatedAt(),
	}
}

// Restore reconstitutes a token.Token from its persisted state, preserving
// its original id.
func (s TokenState) Restore(c clock.Clock) *token.Token {
	return token.Restore(s.ID, s.WorkflowID, s.ActivityID, s.Status, s.ContextData, s.History, s.CreatedAt, s.UpdatedAt, c)
}

// Envelope is the versioned snapshot of an engine run: its workflow
// identity, engine status, every token, and every context slot value.
type Envelope struct {
	Version         string         `json:"version"`
	WorkflowID      string         `json:"workflow_id"`
	WorkflowName    string         `json:"workflow_name"`
	WorkflowVersion string         `json:"workflow_version"`
	EngineStatus    string         `json:"engine_status"`
	Tokens          []TokenState   `json:"tokens"`
	Contexts        map[string]any `json:"contexts"`
	CheckpointAt    time.Time      `json:"checkpoint_at"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// NewEnvelope stamps version and checkpoint_at on a fresh Envelope.
func NewEnvelope(workflowID, workflowName, workflowVersion, engineStatus string, tokens []TokenState, contexts map[string]any, at time.Time, metadata map[string]any) Envelope {
	return Envelope{
		Version:         envelopeVersion,
		WorkflowID:      workflowID,
		WorkflowName:    workflowName,
		WorkflowVersion: workflowVersion,
		EngineStatus:    engineStatus,
		Tokens:          tokens,
		Contexts:        contexts,
		CheckpointAt:    at,
		Metadata:        metadata,
	}
}
