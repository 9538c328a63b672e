package deadletter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowkernel/kernel/internal/clock"
)

func TestAddAssignsIDAndTimestamp(t *testing.T) {
	q := New(clock.NewFixed(time.Unix(100, 0)))
	e := q.Add(Entry{WorkflowID: "wf-1", TokenID: "tok-1"})
	require.NotEmpty(t, e.ID)
	assert.Equal(t, time.Unix(100, 0), e.CreatedAt)
}

func TestStatsCountsByWorkflow(t *testing.T) {
	q := New(nil)
	q.Add(Entry{WorkflowID: "wf-1"})
	q.Add(Entry{WorkflowID: "wf-1"})
	q.Add(Entry{WorkflowID: "wf-2"})
	stats := q.Stats()
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.ByWorkflow["wf-1"])
	assert.Equal(t, 1, stats.ByWorkflow["wf-2"])
}

func TestListByWorkflowFiltersEntries(t *testing.T) {
	q := New(nil)
	q.Add(Entry{WorkflowID: "wf-1", TokenID: "a"})
	q.Add(Entry{WorkflowID: "wf-2", TokenID: "b"})
	entries := q.ListByWorkflow("wf-1")
	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].TokenID)
}

func TestRemoveAndClear(t *testing.T) {
	q := New(nil)
	e := q.Add(Entry{WorkflowID: "wf-1"})
	q.Remove(e.ID)
	assert.Equal(t, 0, q.Stats().Total)
	q.Add(Entry{WorkflowID: "wf-1"})
	q.Add(Entry{WorkflowID: "wf-2"})
	q.Clear()
	assert.Equal(t, 0, q.Stats().Total)
}
