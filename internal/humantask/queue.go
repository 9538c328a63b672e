// Package humantask implements the in-memory human task priority queue:
// materialized side effects of human activities, ordered by
// (priority_rank, created_at) with completion waiters the human actor
// adapter can block on.
package humantask

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowkernel/kernel/internal/clock"
	"github.com/flowkernel/kernel/internal/kernelerr"
)

// Priority is a human task's urgency band. Lower rank is more urgent.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
)

var priorityRank = map[Priority]int{
	PriorityCritical: 0,
	PriorityHigh:     1,
	PriorityNormal:   2,
	PriorityLow:      3,
}

// Status is a human task's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusRejected   Status = "rejected"
	StatusExpired    Status = "expired"
)

func isTerminal(s Status) bool {
	return s == StatusCompleted || s == StatusRejected || s == StatusExpired
}

// Task is a materialized human-actor side effect.
type Task struct {
	ID          string         `json:"id"`
	ActivityID  string         `json:"activity_id"`
	TokenID     string         `json:"token_id"`
	RoleID      string         `json:"role_id"`
	Priority    Priority       `json:"priority"`
	Status      Status         `json:"status"`
	AssigneeID  string         `json:"assignee_id,omitempty"`
	Inputs      map[string]any `json:"inputs,omitempty"`
	Outputs     map[string]any `json:"outputs,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DueAt       *time.Time     `json:"due_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	RejectReason string        `json:"reject_reason,omitempty"`
}

// Stats summarizes queue counts by status.
type Stats struct {
	ByStatus map[Status]int `json:"by_status"`
	Total    int            `json:"total"`
}

type waiter struct {
	ch chan Task
}

// Queue is the in-memory human-task collaborator; alternative stores
// can implement the same method set.
type Queue struct {
	mu      sync.Mutex
	tasks   map[string]*Task
	byToken map[string][]string
	waiters map[string][]waiter
	clock   clock.Clock
	sinks   []func(Task)
}

// New constructs an empty Queue.
func New(c clock.Clock) *Queue {
	if c == nil {
		c = clock.Real{}
	}
	return &Queue{
		tasks:   make(map[string]*Task),
		byToken: make(map[string][]string),
		waiters: make(map[string][]waiter),
		clock:   c,
	}
}

// Subscribe registers fn to be called, outside any lock, with a copy of
// every task whose state changes (enqueue, assign, start, complete,
// reject). Used by the engine to republish human-task events onto its
// event bus.
func (q *Queue) Subscribe(fn func(Task)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sinks = append(q.sinks, fn)
}

func (q *Queue) notify(t Task) {
	q.mu.Lock()
	sinks := make([]func(Task), len(q.sinks))
	copy(sinks, q.sinks)
	q.mu.Unlock()
	for _, fn := range sinks {
		fn(t)
	}
}

// Enqueue creates a pending task and returns it.
func (q *Queue) Enqueue(activityID, tokenID, roleID string, priority Priority, inputs map[string]any, dueAt *time.Time) Task {
	q.mu.Lock()
	now := q.clock.Now()
	t := &Task{
		ID:         uuid.NewString(),
		ActivityID: activityID,
		TokenID:    tokenID,
		RoleID:     roleID,
		Priority:   priority,
		Status:     StatusPending,
		Inputs:     inputs,
		CreatedAt:  now,
		UpdatedAt:  now,
		DueAt:      dueAt,
	}
	q.tasks[t.ID] = t
	q.byToken[tokenID] = append(q.byToken[tokenID], t.ID)
	done := *t
	q.mu.Unlock()
	q.notify(done)
	return done
}

// Get returns the task with id.
func (q *Queue) Get(id string) (Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[id]
	if !ok {
		return Task{}, kernelerr.New(kernelerr.NotFound, "human task %q not found", id)
	}
	return *t, nil
}

// GetByToken returns every task created for tokenID that the queue still
// holds; tasks removed by ClearCompleted are not returned.
func (q *Queue) GetByToken(tokenID string) []Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []Task
	for _, id := range q.byToken[tokenID] {
		if t, ok := q.tasks[id]; ok {
			out = append(out, *t)
		}
	}
	return out
}

// GetPendingByRole returns pending tasks for roleID ordered by
// (priority_rank, created_at_asc); ties resolve by creation time, never
// by assignment time.
func (q *Queue) GetPendingByRole(roleID string) []Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []Task
	for _, t := range q.tasks {
		if t.RoleID == roleID && t.Status == StatusPending {
			out = append(out, *t)
		}
	}
	sortByPriorityThenCreated(out)
	return out
}

// GetByStatus returns every task currently in status.
func (q *Queue) GetByStatus(status Status) []Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []Task
	for _, t := range q.tasks {
		if t.Status == status {
			out = append(out, *t)
		}
	}
	sortByPriorityThenCreated(out)
	return out
}

// List returns every task, optionally filtered by roleID and/or
// assigneeID (either left empty matches all).
func (q *Queue) List(roleID, assigneeID string) []Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []Task
	for _, t := range q.tasks {
		if roleID != "" && t.RoleID != roleID {
			continue
		}
		if assigneeID != "" && t.AssigneeID != assigneeID {
			continue
		}
		out = append(out, *t)
	}
	sortByPriorityThenCreated(out)
	return out
}

func sortByPriorityThenCreated(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		pi, pj := priorityRank[tasks[i].Priority], priorityRank[tasks[j].Priority]
		if pi != pj {
			return pi < pj
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
}

// Assign sets a task's assignee and moves it to "assigned".
func (q *Queue) Assign(id, userID string) error {
	q.mu.Lock()
	t, ok := q.tasks[id]
	if !ok {
		q.mu.Unlock()
		return kernelerr.New(kernelerr.NotFound, "human task %q not found", id)
	}
	t.AssigneeID = userID
	t.Status = StatusAssigned
	t.UpdatedAt = q.clock.Now()
	done := *t
	q.mu.Unlock()
	q.notify(done)
	return nil
}

// Start transitions a task to "in_progress".
func (q *Queue) Start(id string) error {
	q.mu.Lock()
	t, ok := q.tasks[id]
	if !ok {
		q.mu.Unlock()
		return kernelerr.New(kernelerr.NotFound, "human task %q not found", id)
	}
	t.Status = StatusInProgress
	t.UpdatedAt = q.clock.Now()
	done := *t
	q.mu.Unlock()
	q.notify(done)
	return nil
}

// Complete marks a task completed with outputs and resolves any
// registered completion waiters.
func (q *Queue) Complete(id string, outputs map[string]any) error {
	return q.finish(id, StatusCompleted, outputs, "")
}

// Reject marks a task rejected with reason and resolves any registered
// completion waiters.
func (q *Queue) Reject(id string, reason string) error {
	return q.finish(id, StatusRejected, nil, reason)
}

func (q *Queue) finish(id string, status Status, outputs map[string]any, reason string) error {
	q.mu.Lock()
	t, ok := q.tasks[id]
	if !ok {
		q.mu.Unlock()
		return kernelerr.New(kernelerr.NotFound, "human task %q not found", id)
	}
	now := q.clock.Now()
	t.Status = status
	t.Outputs = outputs
	t.RejectReason = reason
	t.UpdatedAt = now
	t.CompletedAt = &now
	done := *t
	ws := q.waiters[id]
	delete(q.waiters, id)
	q.mu.Unlock()

	for _, w := range ws {
		w.ch <- done
		close(w.ch)
	}
	q.notify(done)
	return nil
}

// WaitForCompletion blocks until the task reaches a terminal status,
// resolving immediately if it already has.
func (q *Queue) WaitForCompletion(ctx context.Context, id string) (Task, error) {
	q.mu.Lock()
	t, ok := q.tasks[id]
	if !ok {
		q.mu.Unlock()
		return Task{}, kernelerr.New(kernelerr.NotFound, "human task %q not found", id)
	}
	if isTerminal(t.Status) {
		done := *t
		q.mu.Unlock()
		return done, nil
	}
	ch := make(chan Task, 1)
	q.waiters[id] = append(q.waiters[id], waiter{ch: ch})
	q.mu.Unlock()

	select {
	case task := <-ch:
		return task, nil
	case <-ctx.Done():
		return Task{}, ctx.Err()
	}
}

// ClearCompleted removes every task in a terminal status.
func (q *Queue) ClearCompleted() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for id, t := range q.tasks {
		if isTerminal(t.Status) {
			delete(q.tasks, id)
		}
	}
}

// Stats reports queue counts by status.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := Stats{ByStatus: make(map[Status]int)}
	for _, t := range q.tasks {
		s.ByStatus[t.Status]++
		s.Total++
	}
	return s
}
