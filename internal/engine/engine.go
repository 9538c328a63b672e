// Package engine implements the token-threaded scheduler that drives a
// workflow graph to completion: it pops active tokens, dispatches
// decision nodes to the decision evaluator and activity nodes to the
// actor registry, applies edge-selection to advance tokens, and tracks
// engine-level status through idle/running/waiting_human/completed/
// failed/paused.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/flowkernel/kernel/internal/actor"
	"github.com/flowkernel/kernel/internal/checkpoint"
	"github.com/flowkernel/kernel/internal/clock"
	"github.com/flowkernel/kernel/internal/contextmgr"
	"github.com/flowkernel/kernel/internal/deadletter"
	"github.com/flowkernel/kernel/internal/decision"
	"github.com/flowkernel/kernel/internal/hooks"
	"github.com/flowkernel/kernel/internal/humantask"
	"github.com/flowkernel/kernel/internal/kernelerr"
	"github.com/flowkernel/kernel/internal/retry"
	"github.com/flowkernel/kernel/internal/telemetry"
	"github.com/flowkernel/kernel/internal/token"
	"github.com/flowkernel/kernel/internal/workflow"
)

// Status is the engine-level lifecycle state.
type Status string

const (
	StatusIdle         Status = "idle"
	StatusRunning      Status = "running"
	StatusWaitingHuman Status = "waiting_human"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusPaused       Status = "paused"
)

// DefaultMaxSteps bounds Run to prevent runaway cycles.
const DefaultMaxSteps = 1000

// Options configures an Engine's collaborators. A nil TaskQueue, Bus,
// Logger or Metrics falls back to a fresh in-memory or no-op default; a
// nil DeadLetter disables quarantine; a nil RetryConfig applies
// retry.DefaultConfig to every actor kind, human included. The zero
// Options value is usable for tests.
type Options struct {
	Actors            actor.Registry
	TaskQueue         *humantask.Queue
	DeadLetter        *deadletter.Queue
	RetryConfig       *retry.Config
	WaitForHumanTasks bool
	MaxSteps          int
	Clock             clock.Clock

	// Bus receives token-history, engine-status, and dead-letter events
	// as they occur. Defaults to a fresh in-memory hooks.Bus with no
	// subscribers registered.
	Bus hooks.Bus
	// Logger and Metrics instrument activity dispatch, decision
	// evaluation, and failure handling. Default to no-op implementations.
	Logger  telemetry.Logger
	Metrics telemetry.Metrics
}

// Engine is the cooperative, single-logical-scheduler token-threaded
// workflow executor. One Engine instance drives one workflow document;
// run_step processes every token observed active at tick start.
type Engine struct {
	mu sync.Mutex

	wf  *workflow.Workflow
	opt Options

	activitiesByID map[string]workflow.Activity
	decisionsByID  map[string]workflow.DecisionNode
	rolesByID      map[string]workflow.Role
	outgoingEdges  map[string][]workflow.Edge

	contexts *contextmgr.Manager
	tokens   map[string]*token.Token
	order    []string

	status   Status
	clock    clock.Clock
}

// New constructs an Engine for wf, validating structural integrity and
// refusing construction on error (dangling edges, missing roles,
// malformed ids are caught by workflow.Validate).
func New(wf *workflow.Workflow, opts Options) (*Engine, error) {
	if wf == nil {
		return nil, kernelerr.New(kernelerr.Validation, "workflow is nil")
	}
	if err := workflow.Validate(wf); err != nil {
		return nil, err
	}
	c := opts.Clock
	if c == nil {
		c = clock.Real{}
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	if opts.TaskQueue == nil {
		opts.TaskQueue = humantask.New(c)
	}
	if opts.Bus == nil {
		opts.Bus = hooks.NewBus()
	}
	if opts.Logger == nil {
		opts.Logger = telemetry.NewNoopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = telemetry.NewNoopMetrics()
	}
	opts.TaskQueue.Subscribe(func(t humantask.Task) {
		_ = opts.Bus.Publish(context.Background(), hooks.Event{
			Kind:       hooks.EventHumanTask,
			WorkflowID: wf.ID,
			Timestamp:  t.UpdatedAt,
			Payload:    t,
		})
	})

	e := &Engine{
		wf:             wf,
		opt:            opts,
		activitiesByID: make(map[string]workflow.Activity, len(wf.Activities)),
		decisionsByID:  make(map[string]workflow.DecisionNode, len(wf.DecisionNodes)),
		rolesByID:      make(map[string]workflow.Role, len(wf.Roles)),
		outgoingEdges:  make(map[string][]workflow.Edge),
		contexts:       contextmgr.New(),
		tokens:         make(map[string]*token.Token),
		status:         StatusIdle,
		clock:          c,
	}
	for _, a := range wf.Activities {
		e.activitiesByID[a.ID] = a
	}
	for _, d := range wf.DecisionNodes {
		e.decisionsByID[d.ID] = d
	}
	for _, r := range wf.Roles {
		e.rolesByID[r.ID] = r
	}
	for _, edge := range wf.Edges {
		e.outgoingEdges[edge.SourceID] = append(e.outgoingEdges[edge.SourceID], edge)
	}
	for _, ctxDef := range wf.Contexts {
		e.contexts.Register(ctxDef)
	}
	return e, nil
}

// Status returns the engine's current lifecycle state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Tokens returns every token currently tracked by the engine, in
// creation order.
func (e *Engine) Tokens() []*token.Token {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*token.Token, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.tokens[id])
	}
	return out
}

// Token returns the token with id, or ok=false if untracked.
func (e *Engine) Token(id string) (*token.Token, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.tokens[id]
	return t, ok
}

// Contexts exposes the engine's context manager for direct inspection.
func (e *Engine) Contexts() *contextmgr.Manager { return e.contexts }

// TokenRollup computes the waste/time analytics rollup for the token
// with id, or ok=false if untracked.
func (e *Engine) TokenRollup(tokenID string) (token.Rollup, bool) {
	t, ok := e.Token(tokenID)
	if !ok {
		return token.Rollup{}, false
	}
	return token.ComputeRollup(t.History()), true
}

// entryNode picks the first activity with no incoming edges; falling
// back to the first declared activity when the graph is a pure cycle.
func (e *Engine) entryNode() (string, error) {
	if len(e.wf.Activities) == 0 {
		return "", kernelerr.New(kernelerr.Validation, "workflow has no activities")
	}
	hasIncoming := make(map[string]bool, len(e.wf.Edges))
	for _, edge := range e.wf.Edges {
		hasIncoming[edge.TargetID] = true
	}
	for _, a := range e.wf.Activities {
		if !hasIncoming[a.ID] {
			return a.ID, nil
		}
	}
	return e.wf.Activities[0].ID, nil
}

// Start creates the single entry-point token seeded with initialData
// plus the workflow identity triple, and transitions the engine to
// running.
func (e *Engine) Start(initialData map[string]any) (*token.Token, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != StatusIdle {
		return nil, kernelerr.New(kernelerr.Validation, "engine already started (status=%s)", e.status)
	}
	nodeID, err := e.entryNode()
	if err != nil {
		return nil, err
	}
	seed := make(map[string]any, len(initialData)+3)
	for k, v := range initialData {
		seed[k] = v
	}
	seed["_workflow_id"] = e.wf.ID
	seed["_workflow_name"] = e.wf.Name
	seed["_started_at"] = e.clock.Now().Format(time.RFC3339Nano)

	t := token.New(nodeID, seed, e.wf.ID, e.clock)
	e.wireToken(t)
	e.tokens[t.ID()] = t
	e.order = append(e.order, t.ID())
	e.status = StatusRunning
	e.opt.Logger.Info(context.Background(), "workflow started", "workflow_id", e.wf.ID, "token_id", t.ID(), "entry_node", nodeID)
	return t, nil
}

// AddToken tracks an externally constructed token (used by checkpoint
// restore) under this engine.
func (e *Engine) AddToken(t *token.Token) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.wireToken(t)
	e.tokens[t.ID()] = t
	e.order = append(e.order, t.ID())
}

// wireToken registers a history sink that republishes every history
// entry the token appends onto the engine's event bus. Must be called
// with e.mu held.
func (e *Engine) wireToken(t *token.Token) {
	t.SetHistorySink(func(entry token.HistoryEntry) {
		_ = e.opt.Bus.Publish(context.Background(), hooks.Event{
			Kind:       hooks.EventTokenHistory,
			WorkflowID: e.wf.ID,
			Timestamp:  entry.Timestamp,
			Payload:    entry,
		})
	})
}

// SetStatus forces the engine's status (used by checkpoint restore).
func (e *Engine) SetStatus(s Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status = s
}

// RunStep processes every token observed active at the start of the
// tick. Tokens created mid-step (there are none in this single-process
// kernel) are deferred to the next step. After processing, the engine
// transitions to waiting_human if no tokens remain active but some are
// waiting, or to completed if every token is terminal.
func (e *Engine) RunStep(ctx context.Context) error {
	e.mu.Lock()
	if e.status != StatusRunning {
		e.mu.Unlock()
		return nil
	}
	active := make([]*token.Token, 0, len(e.order))
	for _, id := range e.order {
		t := e.tokens[id]
		if t.Status() == token.StatusActive {
			active = append(active, t)
		}
	}
	e.mu.Unlock()

	// Independent tokens are processed concurrently: each token's history
	// and context_data are mutated under the token's own mutex, and
	// shared context slots under their own per-slot mutex, so the
	// resulting total order is equivalent to sequential processing.
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range active {
		t := t
		g.Go(func() error {
			e.processToken(gctx, t)
			return nil
		})
	}
	_ = g.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.reconcileStatus()
	return nil
}

func (e *Engine) reconcileStatus() {
	if e.status != StatusRunning && e.status != StatusWaitingHuman {
		return
	}
	anyActive, anyWaiting, anyFailed, allTerminal := false, false, false, true
	for _, id := range e.order {
		t := e.tokens[id]
		switch t.Status() {
		case token.StatusActive:
			anyActive = true
			allTerminal = false
		case token.StatusWaiting:
			anyWaiting = true
			allTerminal = false
		case token.StatusFailed:
			// terminal, but a failed token alone doesn't fail the whole
			// engine when other tokens are still progressing.
			anyFailed = true
		default:
		}
	}
	prev := e.status
	switch {
	case allTerminal && anyFailed:
		e.status = StatusFailed
	case allTerminal:
		e.status = StatusCompleted
		e.contexts.ClearTransient()
	case !anyActive && anyWaiting:
		e.status = StatusWaitingHuman
	case anyActive:
		e.status = StatusRunning
	}
	if e.status != prev {
		e.opt.Metrics.IncCounter("engine.status_transition", 1, "workflow_id", e.wf.ID, "status", string(e.status))
		_ = e.opt.Bus.Publish(context.Background(), hooks.Event{
			Kind:       hooks.EventEngineStatus,
			WorkflowID: e.wf.ID,
			Timestamp:  e.clock.Now(),
			Payload:    e.status,
		})
	}
}

// processToken advances a single active token by one node.
func (e *Engine) processToken(ctx context.Context, t *token.Token) {
	nodeID := t.CurrentNodeID()

	e.mu.Lock()
	activity, isActivity := e.activitiesByID[nodeID]
	decisionNode, isDecision := e.decisionsByID[nodeID]
	e.mu.Unlock()

	switch {
	case isDecision:
		e.processDecisionNode(t, decisionNode)
	case isActivity:
		e.processActivity(ctx, t, activity)
	default:
		t.MergeData(map[string]any{"_error": fmt.Sprintf("unknown node %q", nodeID)})
		t.UpdateStatus(token.StatusFailed, &token.Analytics{
			WasteCategories: []token.WasteCategory{token.WasteDefects},
			ErrorRate:       floatPtr(1),
		})
	}
}

func (e *Engine) processDecisionNode(t *token.Token, node workflow.DecisionNode) {
	result, err := decision.Evaluate(node.DecisionTable, t.ContextData())
	if err != nil {
		t.MergeData(map[string]any{"_error": err.Error()})
		t.UpdateStatus(token.StatusFailed, &token.Analytics{
			WasteCategories: []token.WasteCategory{token.WasteDefects},
			ErrorRate:       floatPtr(1),
		})
		return
	}
	t.MergeData(map[string]any{
		"_decision_node_id": node.ID,
		"_decision_matched": result.Matched,
		"_decision_outputs": result.Outputs,
	})

	edgeID := result.OutputEdgeID
	if edgeID == "" {
		edgeID = node.DefaultOutputEdgeID
	}
	if edgeID == "" {
		t.MergeData(map[string]any{"_error": "no matching decision rule and no default edge"})
		t.UpdateStatus(token.StatusFailed, &token.Analytics{
			WasteCategories: []token.WasteCategory{token.WasteDefects},
			ErrorRate:       floatPtr(1),
		})
		return
	}

	e.mu.Lock()
	target, ok := e.findEdgeTarget(edgeID)
	e.mu.Unlock()
	if !ok {
		t.MergeData(map[string]any{"_error": fmt.Sprintf("decision output edge %q not found", edgeID)})
		t.UpdateStatus(token.StatusFailed, &token.Analytics{
			WasteCategories: []token.WasteCategory{token.WasteDefects},
			ErrorRate:       floatPtr(1),
		})
		return
	}
	t.Move(target, nil)
}

func (e *Engine) findEdgeTarget(edgeID string) (string, bool) {
	for _, edges := range e.outgoingEdges {
		for _, edge := range edges {
			if edge.ID == edgeID {
				return edge.TargetID, true
			}
		}
	}
	return "", false
}

func (e *Engine) processActivity(ctx context.Context, t *token.Token, activity workflow.Activity) {
	e.mu.Lock()
	role := e.rolesByID[activity.RoleID]
	act, err := e.opt.Actors.For(activity.ActorType)
	e.mu.Unlock()
	if err != nil {
		e.failToken(t, err, 0)
		return
	}

	enterTime := e.clock.Now()
	inputs := t.ContextData()
	inputs["_token_id"] = t.ID()
	inputs["_workflow_id"] = e.wf.ID
	inputs["_activity_id"] = activity.ID
	inputs["_activity_name"] = activity.Name

	cfg := retry.DefaultConfig()
	if e.opt.RetryConfig != nil {
		cfg = *e.opt.RetryConfig
	}
	calls := 0
	output, err := retry.Do(ctx, cfg, func(ctx context.Context) (map[string]any, error) {
		calls++
		return act.Execute(ctx, activity, role, inputs)
	})
	if err != nil {
		e.opt.Logger.Error(ctx, "activity execution failed", "workflow_id", e.wf.ID, "activity_id", activity.ID, "token_id", t.ID(), "error", err.Error())
		e.opt.Metrics.IncCounter("engine.activity_failed", 1, "actor_type", string(activity.ActorType))
		e.failToken(t, err, max(calls-1, 0))
		return
	}
	e.opt.Metrics.IncCounter("engine.activity_executed", 1, "actor_type", string(activity.ActorType))

	if truthy(output["_requires_human_action"]) && e.opt.WaitForHumanTasks {
		t.MergeData(output)
		t.MergeData(map[string]any{"_waiting_since": e.clock.Now().Format(time.RFC3339Nano)})
		t.UpdateStatus(token.StatusWaiting, &token.Analytics{
			WasteCategories: []token.WasteCategory{token.WasteWaiting},
		})
		return
	}

	t.MergeData(output)
	exitTime := e.clock.Now()
	processDuration := exitTime.Sub(enterTime)
	elapsed := clock.FormatDuration(processDuration)
	valueAdded := activity.ValueAddedOrDefault()
	e.opt.Metrics.RecordTimer("engine.activity_process_time", processDuration, "actor_type", string(activity.ActorType))
	e.advance(t, &token.Analytics{
		ProcessTime: elapsed,
		LeadTime:    elapsed,
		CycleTime:   elapsed,
		ValueAdded:  &valueAdded,
	})
}

// failToken marks t failed and, when a dead-letter queue is configured,
// quarantines it with retries as the number of retries made.
func (e *Engine) failToken(t *token.Token, err error, retries int) {
	kind, _ := kernelerr.KindOf(err)
	t.MergeData(map[string]any{"_error": err.Error(), "_stack": string(kind)})
	t.UpdateStatus(token.StatusFailed, &token.Analytics{
		WasteCategories: []token.WasteCategory{token.WasteDefects},
		ErrorRate:       floatPtr(1),
	})
	if e.opt.DeadLetter != nil {
		entry := e.opt.DeadLetter.Add(deadletter.Entry{
			TokenID:    t.ID(),
			WorkflowID: e.wf.ID,
			ActivityID: t.CurrentNodeID(),
			TokenData:  t.ContextData(),
			Error: deadletter.ErrorInfo{
				Message: err.Error(),
				Kind:    string(kind),
			},
			RetryState: deadletter.RetryState{
				Attempt:   retries,
				StartedAt: e.clock.Now(),
				LastError: err.Error(),
			},
		})
		e.opt.Metrics.IncCounter("engine.dead_letter", 1, "workflow_id", e.wf.ID)
		_ = e.opt.Bus.Publish(context.Background(), hooks.Event{
			Kind:       hooks.EventDeadLetter,
			WorkflowID: e.wf.ID,
			Timestamp:  entry.CreatedAt,
			Payload:    entry,
		})
	}
}

// advance implements edge selection: first truthy condition-guarded edge
// in declaration order, else the explicit default edge, else the first
// edge; no outgoing edges completes the token.
func (e *Engine) advance(t *token.Token, analytics *token.Analytics) {
	e.mu.Lock()
	edges := e.outgoingEdges[t.CurrentNodeID()]
	e.mu.Unlock()

	if len(edges) == 0 {
		t.Exit(analytics)
		t.UpdateStatus(token.StatusCompleted, nil)
		return
	}

	data := t.ContextData()
	var defaultEdge *workflow.Edge
	for i := range edges {
		edge := edges[i]
		if edge.IsDefault && defaultEdge == nil {
			defaultEdge = &edges[i]
		}
		if edge.Condition == "" {
			continue
		}
		if evaluateGuard(edge.Condition, data) {
			t.Move(edge.TargetID, analytics)
			return
		}
	}
	if defaultEdge != nil {
		t.Move(defaultEdge.TargetID, analytics)
		return
	}
	// No guarded edge matched and no explicit default: take the first
	// edge declared.
	t.Move(edges[0].TargetID, analytics)
}

// ResumeToken requires the token to be waiting; merges output, computes
// wait_time, and transitions it back to active. A no-op (per the
// idempotency invariant) if the token is not currently waiting.
func (e *Engine) ResumeToken(tokenID string, output map[string]any) error {
	e.mu.Lock()
	t, ok := e.tokens[tokenID]
	e.mu.Unlock()
	if !ok {
		return kernelerr.New(kernelerr.NotFound, "token %q not found", tokenID)
	}
	if t.Status() != token.StatusWaiting {
		return nil
	}
	t.MergeData(output)
	var waitTime string
	if since, ok := t.GetData("_waiting_since"); ok {
		if s, ok := since.(string); ok {
			if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
				waitTime = clock.FormatDuration(e.clock.Now().Sub(parsed))
			}
		}
	}
	t.UpdateStatus(token.StatusActive, &token.Analytics{
		WaitTime:        waitTime,
		WasteCategories: []token.WasteCategory{token.WasteWaiting},
	})

	e.mu.Lock()
	if e.status == StatusWaitingHuman {
		e.status = StatusRunning
	}
	e.mu.Unlock()

	// The activity's human-facing work is already done (its output was
	// just merged above); advance past it rather than waiting for a
	// future run_step to re-dispatch it to the actor.
	e.advance(t, nil)
	return nil
}

// Run repeatedly calls RunStep while the engine is running, bounded by
// opt.MaxSteps to prevent non-terminating cycles.
func (e *Engine) Run(ctx context.Context) error {
	max := e.opt.MaxSteps
	if max <= 0 {
		max = DefaultMaxSteps
	}
	for i := 0; i < max; i++ {
		if e.Status() != StatusRunning {
			return nil
		}
		if err := e.RunStep(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Checkpoint captures the engine's full state as a versioned envelope.
func (e *Engine) Checkpoint(metadata map[string]any) checkpoint.Envelope {
	e.mu.Lock()
	defer e.mu.Unlock()
	states := make([]checkpoint.TokenState, 0, len(e.order))
	for _, id := range e.order {
		states = append(states, checkpoint.FromToken(e.tokens[id]))
	}
	return checkpoint.NewEnvelope(e.wf.ID, e.wf.Name, e.wf.Version, string(e.status), states, e.contexts.Snapshot(), e.clock.Now(), metadata)
}

// Restore reconstitutes engine state (tokens, contexts, status) from a
// checkpoint envelope captured from a workflow with the same definition.
func (e *Engine) Restore(env checkpoint.Envelope) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tokens = make(map[string]*token.Token, len(env.Tokens))
	e.order = e.order[:0]
	for _, ts := range env.Tokens {
		t := ts.Restore(e.clock)
		e.wireToken(t)
		e.tokens[t.ID()] = t
		e.order = append(e.order, t.ID())
	}
	e.contexts.Restore(env.Contexts)
	e.status = Status(env.EngineStatus)
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	default:
		return true
	}
}

func floatPtr(f float64) *float64 { return &f }

// NewRunID returns a fresh identifier suitable for correlating a Start
// call with downstream observability (checkpoints, logs).
func NewRunID() string { return uuid.NewString() }
