// Package token implements the per-flow execution state the engine
// threads through a workflow graph. A Token owns its own history and
// context data; all mutation happens under the token's own mutex so
// status transitions are synchronous with respect to concurrent readers.
package token

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowkernel/kernel/internal/clock"
)

// Status is the token-level lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusWaiting   Status = "waiting"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Action identifies the kind of history entry. Status-change entries
// carry the destination status appended after a colon, e.g.
// "status_change:waiting".
type Action string

const (
	ActionCreated Action = "created"
	ActionEntered Action = "entered"
	ActionExited  Action = "exited"
)

// StatusChangeAction formats the "status_change:<new>" action label.
func StatusChangeAction(s Status) Action { return Action("status_change:" + string(s)) }

// WasteCategory is a DOWNTIME label attached to an analytics entry.
type WasteCategory string

const (
	WasteDefects            WasteCategory = "defects"
	WasteOverproduction     WasteCategory = "overproduction"
	WasteWaiting            WasteCategory = "waiting"
	WasteNonUtilizedTalent  WasteCategory = "non_utilized_talent"
	WasteTransport          WasteCategory = "transport"
	WasteInventory          WasteCategory = "inventory"
	WasteMotion             WasteCategory = "motion"
	WasteExtraProcessing    WasteCategory = "extra_processing"
)

// Analytics is the optional throughput/waste payload carried on a
// history entry.
type Analytics struct {
	ProcessTime     string          `json:"process_time,omitempty"`
	WaitTime        string          `json:"wait_time,omitempty"`
	LeadTime        string          `json:"lead_time,omitempty"`
	CycleTime       string          `json:"cycle_time,omitempty"`
	ValueAdded      *bool           `json:"value_added,omitempty"`
	WasteCategories []WasteCategory `json:"waste_categories,omitempty"`
	ErrorRate       *float64        `json:"error_rate,omitempty"`
}

// HistoryEntry is one append-only log record.
type HistoryEntry struct {
	NodeID    string     `json:"node_id"`
	Action    Action     `json:"action"`
	Timestamp time.Time  `json:"timestamp"`
	Analytics *Analytics `json:"analytics,omitempty"`
}

// Token is a single thread of execution through the workflow graph.
type Token struct {
	mu sync.Mutex

	id              string
	workflowID      string
	currentNodeID   string
	status          Status
	contextData     map[string]any
	history         []HistoryEntry
	createdAt       time.Time
	updatedAt       time.Time
	clock           clock.Clock

	// onHistory, if set, is invoked (outside the token's own lock) every
	// time a history entry is appended, so the engine can forward it to
	// the event bus. Errors are not propagated to callers of Move/etc.
	onHistory func(HistoryEntry)
}

// New constructs a Token at nodeID with initialData seeded into its
// context and appends the single "created" history entry. workflowID is
// stored so downstream consumers (checkpoints, DLQ entries) can group
// tokens without a back-reference to the engine.
func New(nodeID string, initialData map[string]any, workflowID string, c clock.Clock) *Token {
	if c == nil {
		c = clock.Real{}
	}
	now := c.Now()
	data := make(map[string]any, len(initialData))
	for k, v := range initialData {
		data[k] = v
	}
	t := &Token{
		id:            uuid.NewString(),
		workflowID:    workflowID,
		currentNodeID: nodeID,
		status:        StatusActive,
		contextData:   data,
		createdAt:     now,
		updatedAt:     now,
		clock:         c,
	}
	entry := HistoryEntry{NodeID: nodeID, Action: ActionCreated, Timestamp: now}
	t.history = append(t.history, entry)
	t.notify(entry)
	return t
}

// notify invokes the history sink, if any, synchronously and outside
// any lock so subscribers observe entries in append order without risking
// reentrant deadlocks on t.mu.
func (t *Token) notify(entry HistoryEntry) {
	if t.onHistory != nil {
		t.onHistory(entry)
	}
}

// SetHistorySink registers a callback invoked after every history
// append. Not safe to call concurrently with token mutation.
func (t *Token) SetHistorySink(fn func(HistoryEntry)) { t.onHistory = fn }

// ID returns the token's stable identity.
func (t *Token) ID() string { return t.id }

// WorkflowID returns the workflow this token belongs to.
func (t *Token) WorkflowID() string { return t.workflowID }

// CurrentNodeID returns the node the token is entering/in.
func (t *Token) CurrentNodeID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.currentNodeID
}

// Status returns the token's current lifecycle status.
func (t *Token) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// IsTerminal reports whether the token is in a terminal status.
func (t *Token) IsTerminal() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return isTerminal(t.status)
}

func isTerminal(s Status) bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// CreatedAt returns the token's creation timestamp.
func (t *Token) CreatedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.createdAt
}

// UpdatedAt returns the timestamp of the token's last mutation.
func (t *Token) UpdatedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.updatedAt
}

// History returns a copy of the token's append-only event log.
func (t *Token) History() []HistoryEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]HistoryEntry, len(t.history))
	copy(out, t.history)
	return out
}

// ContextData returns a shallow copy of the token's context data.
func (t *Token) ContextData() map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]any, len(t.contextData))
	for k, v := range t.contextData {
		out[k] = v
	}
	return out
}

// GetData returns the value stored at key and whether it was present.
func (t *Token) GetData(key string) (any, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.contextData[key]
	return v, ok
}

// SetData sets a single context key, shallow-overwriting any existing
// value.
func (t *Token) SetData(key string, value any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.contextData[key] = value
	t.updatedAt = t.clock.Now()
}

// MergeData performs a top-level shallow merge: keys in data overwrite
// the token's existing context_data; nested merges are not performed.
func (t *Token) MergeData(data map[string]any) {
	if len(data) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, v := range data {
		t.contextData[k] = v
	}
	t.updatedAt = t.clock.Now()
}

// Move appends an "exited" entry for the current node (carrying
// analytics if given) followed by an "entered" entry for nextNodeID,
// then updates the token's current node and updatedAt. Does nothing if
// the token is already terminal.
func (t *Token) Move(nextNodeID string, analytics *Analytics) {
	t.mu.Lock()
	if isTerminal(t.status) {
		t.mu.Unlock()
		return
	}
	now := t.clock.Now()
	exited := HistoryEntry{NodeID: t.currentNodeID, Action: ActionExited, Timestamp: now, Analytics: analytics}
	t.history = append(t.history, exited)
	t.currentNodeID = nextNodeID
	entered := HistoryEntry{NodeID: nextNodeID, Action: ActionEntered, Timestamp: now}
	t.history = append(t.history, entered)
	t.updatedAt = now
	t.mu.Unlock()

	t.notify(exited)
	t.notify(entered)
}

// Exit appends an "exited" entry for the current node without moving to
// a new one, used when a token terminates at its final node rather than
// traversing an edge. Does nothing if the token is already terminal.
func (t *Token) Exit(analytics *Analytics) {
	t.mu.Lock()
	if isTerminal(t.status) {
		t.mu.Unlock()
		return
	}
	now := t.clock.Now()
	exited := HistoryEntry{NodeID: t.currentNodeID, Action: ActionExited, Timestamp: now, Analytics: analytics}
	t.history = append(t.history, exited)
	t.updatedAt = now
	t.mu.Unlock()

	t.notify(exited)
}

// UpdateStatus transitions the token to newStatus and appends a
// "status_change:<new>" history entry. Fails silently if the token is
// already in a terminal status.
func (t *Token) UpdateStatus(newStatus Status, analytics *Analytics) {
	t.mu.Lock()
	if isTerminal(t.status) {
		t.mu.Unlock()
		return
	}
	now := t.clock.Now()
	t.status = newStatus
	entry := HistoryEntry{NodeID: t.currentNodeID, Action: StatusChangeAction(newStatus), Timestamp: now, Analytics: analytics}
	t.history = append(t.history, entry)
	t.updatedAt = now
	t.mu.Unlock()

	t.notify(entry)
}

// Restore reconstitutes a Token from persisted fields (checkpoint
// restore), overriding the generated id with the persisted one.
func Restore(id, workflowID, currentNodeID string, status Status, contextData map[string]any, history []HistoryEntry, createdAt, updatedAt time.Time, c clock.Clock) *Token {
	if c == nil {
		c = clock.Real{}
	}
	data := make(map[string]any, len(contextData))
	for k, v := range contextData {
		data[k] = v
	}
	h := make([]HistoryEntry, len(history))
	copy(h, history)
	return &Token{
		id:            id,
		workflowID:    workflowID,
		currentNodeID: currentNodeID,
		status:        status,
		contextData:   data,
		history:       h,
		createdAt:     createdAt,
		updatedAt:     updatedAt,
		clock:         c,
	}
}
