// Package deadletter quarantines tokens that have exhausted retries or
// otherwise failed terminally, keyed for later inspection or replay.
package deadletter

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowkernel/kernel/internal/clock"
)

// ErrorInfo captures the terminal failure that quarantined a token.
type ErrorInfo struct {
	Message string `json:"message"`
	Kind    string `json:"kind"`
	Stack   string `json:"stack,omitempty"`
}

// RetryState records the retry attempts made before quarantine.
type RetryState struct {
	Attempt   int        `json:"attempt"`
	StartedAt time.Time  `json:"started_at"`
	LastError string     `json:"last_error,omitempty"`
}

// Entry is one quarantined token.
type Entry struct {
	ID         string         `json:"id"`
	TokenID    string         `json:"token_id"`
	WorkflowID string         `json:"workflow_id"`
	ActivityID string         `json:"activity_id"`
	TokenData  map[string]any `json:"token_snapshot"`
	Error      ErrorInfo      `json:"error"`
	RetryState RetryState     `json:"retry_state"`
	CreatedAt  time.Time      `json:"created_at"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Stats summarizes the queue's current contents.
type Stats struct {
	Total      int            `json:"total"`
	ByWorkflow map[string]int `json:"by_workflow"`
}

// Queue is an in-memory, keyed store of dead-letter entries with a
// per-workflow index.
type Queue struct {
	mu      sync.RWMutex
	entries map[string]Entry
	clock   clock.Clock
}

// New constructs an empty Queue.
func New(c clock.Clock) *Queue {
	if c == nil {
		c = clock.Real{}
	}
	return &Queue{entries: make(map[string]Entry), clock: c}
}

// Add quarantines entry, assigning an id if Entry.ID is empty.
func (q *Queue) Add(e Entry) Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = q.clock.Now()
	}
	q.entries[e.ID] = e
	return e
}

// List returns every entry, unordered.
func (q *Queue) List() []Entry {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]Entry, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, e)
	}
	return out
}

// ListByWorkflow returns every entry quarantined under workflowID.
func (q *Queue) ListByWorkflow(workflowID string) []Entry {
	q.mu.RLock()
	defer q.mu.RUnlock()
	var out []Entry
	for _, e := range q.entries {
		if e.WorkflowID == workflowID {
			out = append(out, e)
		}
	}
	return out
}

// Remove deletes an entry by id. Removing a missing id is a no-op.
func (q *Queue) Remove(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.entries, id)
}

// Clear empties the queue.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = make(map[string]Entry)
}

// Stats reports the total entry count and a per-workflow breakdown.
func (q *Queue) Stats() Stats {
	q.mu.RLock()
	defer q.mu.RUnlock()
	s := Stats{Total: len(q.entries), ByWorkflow: make(map[string]int)}
	for _, e := range q.entries {
		s.ByWorkflow[e.WorkflowID]++
	}
	return s
}
