package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowkernel/kernel/internal/clock"
)

func TestNewAppendsSingleCreatedEntry(t *testing.T) {
	tok := New("A", map[string]any{"x": 1}, "wf-1", clock.NewFixed(time.Unix(0, 0)))
	h := tok.History()
	require.Len(t, h, 1)
	assert.Equal(t, ActionCreated, h[0].Action)
	assert.Equal(t, "A", h[0].NodeID)
	assert.Equal(t, StatusActive, tok.Status())
}

func TestMoveAppendsExitedThenEntered(t *testing.T) {
	tok := New("A", nil, "wf-1", clock.NewFixed(time.Unix(0, 0)))
	tok.Move("B", nil)
	h := tok.History()
	require.Len(t, h, 3)
	assert.Equal(t, ActionExited, h[1].Action)
	assert.Equal(t, "A", h[1].NodeID)
	assert.Equal(t, ActionEntered, h[2].Action)
	assert.Equal(t, "B", h[2].NodeID)
	assert.Equal(t, "B", tok.CurrentNodeID())
}

func TestUpdateStatusFailsSilentlyWhenTerminal(t *testing.T) {
	tok := New("A", nil, "wf-1", clock.NewFixed(time.Unix(0, 0)))
	tok.UpdateStatus(StatusCompleted, nil)
	before := len(tok.History())
	tok.UpdateStatus(StatusFailed, nil)
	assert.Len(t, tok.History(), before, "mutation after terminal status must be a no-op")
	assert.Equal(t, StatusCompleted, tok.Status())
}

func TestMergeDataIsTopLevelShallow(t *testing.T) {
	tok := New("A", map[string]any{"nested": map[string]any{"a": 1}}, "wf-1", clock.NewFixed(time.Unix(0, 0)))
	tok.MergeData(map[string]any{"nested": map[string]any{"b": 2}})
	v, ok := tok.GetData("nested")
	require.True(t, ok)
	m := v.(map[string]any)
	_, hasA := m["a"]
	assert.False(t, hasA, "nested merge must not be performed")
	assert.Equal(t, 2, m["b"])
}

func TestHistorySinkReceivesEntriesInOrder(t *testing.T) {
	tok := New("A", nil, "wf-1", clock.NewFixed(time.Unix(0, 0)))
	var seen []Action
	tok.SetHistorySink(func(e HistoryEntry) { seen = append(seen, e.Action) })
	tok.Move("B", nil)
	tok.UpdateStatus(StatusCompleted, nil)
	require.Len(t, seen, 3)
	assert.Equal(t, []Action{ActionExited, ActionEntered, StatusChangeAction(StatusCompleted)}, seen)
}
