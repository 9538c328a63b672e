package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowkernel/kernel/internal/actor"
	"github.com/flowkernel/kernel/internal/clock"
	"github.com/flowkernel/kernel/internal/deadletter"
	"github.com/flowkernel/kernel/internal/humantask"
	"github.com/flowkernel/kernel/internal/kernelerr"
	"github.com/flowkernel/kernel/internal/retry"
	"github.com/flowkernel/kernel/internal/token"
	"github.com/flowkernel/kernel/internal/workflow"
)

const (
	wfID = "11111111-1111-4111-8111-111111111111"
	actA = "aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa"
	actB = "bbbbbbbb-bbbb-4bbb-8bbb-bbbbbbbbbbbb"
	actC = "cccccccc-cccc-4ccc-8ccc-cccccccccccc"
	edgeAB = "aaaaaaaa-0000-4000-8000-000000000001"
	edgeBC = "aaaaaaaa-0000-4000-8000-000000000002"
	roleID = "dddddddd-dddd-4ddd-8ddd-dddddddddddd"
)

func softwareActivity(id, name string) workflow.Activity {
	return workflow.Activity{
		ID:        id,
		Name:      name,
		RoleID:    roleID,
		ActorType: workflow.ActorApplication,
	}
}

func linearWorkflow() *workflow.Workflow {
	return &workflow.Workflow{
		ID:      wfID,
		Name:    "Linear Demo",
		Version: "1.0",
		Roles:   []workflow.Role{{ID: roleID, Name: "system"}},
		Activities: []workflow.Activity{
			softwareActivity(actA, "A"),
			softwareActivity(actB, "B"),
			softwareActivity(actC, "C"),
		},
		Edges: []workflow.Edge{
			{ID: edgeAB, SourceID: actA, TargetID: actB},
			{ID: edgeBC, SourceID: actB, TargetID: actC},
		},
	}
}

func TestS1LinearCompletion(t *testing.T) {
	wf := linearWorkflow()
	e, err := New(wf, Options{Actors: actor.Registry{Software: actor.NewSoftware()}})
	require.NoError(t, err)

	tok, err := e.Start(map[string]any{})
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, e.RunStep(ctx))
	}

	assert.Equal(t, StatusCompleted, e.Status())
	history := tok.History()
	require.Len(t, history, 7)

	wantNodes := []string{actA, actA, actB, actB, actC, actC, actC}
	wantActions := []token.Action{
		token.ActionCreated,
		token.ActionExited,
		token.ActionEntered,
		token.ActionExited,
		token.ActionEntered,
		token.ActionExited,
		token.StatusChangeAction(token.StatusCompleted),
	}
	for i, h := range history {
		assert.Equal(t, wantNodes[i], h.NodeID, "entry %d node", i)
		assert.Equal(t, wantActions[i], h.Action, "entry %d action", i)
	}
}

func decisionWorkflow() *workflow.Workflow {
	decisionID := "eeeeeeee-eeee-4eee-8eee-eeeeeeeeeeee"
	edgeApprove := "ffffffff-0000-4000-8000-000000000001"
	edgeReject := "ffffffff-0000-4000-8000-000000000002"
	return &workflow.Workflow{
		ID:      wfID,
		Name:    "Branching Demo",
		Version: "1.0",
		Roles:   []workflow.Role{{ID: roleID, Name: "system"}},
		Activities: []workflow.Activity{
			softwareActivity(actA, "Intake"),
			softwareActivity(actB, "Approved Path"),
			softwareActivity(actC, "Rejected Path"),
		},
		DecisionNodes: []workflow.DecisionNode{
			{
				ID: decisionID,
				DecisionTable: workflow.DecisionTable{
					HitPolicy: workflow.HitFirst,
					Inputs:    []workflow.Column{{Name: "amount"}},
					Outputs:   []workflow.Column{{Name: "route"}},
					Rules: []workflow.Rule{
						{InputEntries: []string{"<=1000"}, OutputEntries: []any{"approve"}, OutputEdgeID: edgeApprove},
						{InputEntries: []string{"-"}, OutputEntries: []any{"reject"}, OutputEdgeID: edgeReject},
					},
				},
			},
		},
		Edges: []workflow.Edge{
			{ID: "ffffffff-0000-4000-8000-000000000000", SourceID: actA, TargetID: decisionID},
			{ID: edgeApprove, SourceID: decisionID, TargetID: actB},
			{ID: edgeReject, SourceID: decisionID, TargetID: actC},
		},
	}
}

func TestS2DecisionBranching(t *testing.T) {
	wf := decisionWorkflow()
	e, err := New(wf, Options{Actors: actor.Registry{Software: actor.NewSoftware()}})
	require.NoError(t, err)

	tok, err := e.Start(map[string]any{"amount": 500})
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, e.RunStep(ctx))
	}

	assert.Equal(t, StatusCompleted, e.Status())
	assert.Equal(t, token.StatusCompleted, tok.Status())
	data := tok.ContextData()
	assert.Equal(t, "approve", data["_decision_outputs"].(map[string]any)["route"])
}

func humanWorkflow() *workflow.Workflow {
	return &workflow.Workflow{
		ID:      wfID,
		Name:    "Human Approval",
		Version: "1.0",
		Roles:   []workflow.Role{{ID: roleID, Name: "reviewer"}},
		Activities: []workflow.Activity{
			{ID: actA, Name: "Review", RoleID: roleID, ActorType: workflow.ActorHuman},
		},
	}
}

func TestS3HumanPauseResume(t *testing.T) {
	wf := humanWorkflow()
	c := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	queue := humantask.New(c)
	e, err := New(wf, Options{
		Actors:            actor.Registry{Human: actor.NewHuman(queue)},
		TaskQueue:         queue,
		WaitForHumanTasks: true,
		Clock:             c,
	})
	require.NoError(t, err)

	tok, err := e.Start(map[string]any{})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, e.RunStep(ctx))

	assert.Equal(t, token.StatusWaiting, tok.Status())
	assert.Equal(t, StatusWaitingHuman, e.Status())

	taskID, ok := tok.GetData("_human_task_id")
	require.True(t, ok)

	require.NoError(t, queue.Complete(taskID.(string), map[string]any{"approved": true}))
	c.Advance(5 * time.Second)
	require.NoError(t, e.ResumeToken(tok.ID(), map[string]any{"approved": true}))

	require.NoError(t, e.RunStep(ctx))

	assert.Equal(t, StatusCompleted, e.Status())
	assert.Equal(t, token.StatusCompleted, tok.Status())

	var sawWaiting, sawActive bool
	for _, h := range tok.History() {
		if h.Action == token.StatusChangeAction(token.StatusWaiting) {
			sawWaiting = true
			require.NotNil(t, h.Analytics)
			assert.Contains(t, h.Analytics.WasteCategories, token.WasteWaiting)
		}
		if h.Action == token.StatusChangeAction(token.StatusActive) {
			sawActive = true
			require.NotNil(t, h.Analytics)
			assert.Equal(t, "PT5S", h.Analytics.WaitTime)
		}
	}
	assert.True(t, sawWaiting)
	assert.True(t, sawActive)
}

type alwaysFailActor struct{}

func (alwaysFailActor) Execute(ctx context.Context, activity workflow.Activity, role workflow.Role, inputs map[string]any) (map[string]any, error) {
	return nil, kernelerr.New(kernelerr.Integration, "downstream system unavailable")
}

func TestS4RetryExhaustionDeadLetters(t *testing.T) {
	wf := &workflow.Workflow{
		ID:      wfID,
		Name:    "Always Fails",
		Version: "1.0",
		Roles:   []workflow.Role{{ID: roleID, Name: "system"}},
		Activities: []workflow.Activity{
			softwareActivity(actA, "Flaky"),
		},
	}
	dlq := deadletter.New(clock.Real{})
	cfg := retry.Config{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
	e, err := New(wf, Options{
		Actors:      actor.Registry{Software: alwaysFailActor{}},
		DeadLetter:  dlq,
		RetryConfig: &cfg,
	})
	require.NoError(t, err)

	tok, err := e.Start(map[string]any{})
	require.NoError(t, err)

	require.NoError(t, e.RunStep(context.Background()))

	assert.Equal(t, token.StatusFailed, tok.Status())
	entries := dlq.ListByWorkflow(wfID)
	require.Len(t, entries, 1)
	assert.Equal(t, 3, entries[0].RetryState.Attempt)
	assert.Equal(t, string(kernelerr.Integration), entries[0].Error.Kind)
}

func TestS5CheckpointRoundTrip(t *testing.T) {
	wf := linearWorkflow()
	e, err := New(wf, Options{Actors: actor.Registry{Software: actor.NewSoftware()}})
	require.NoError(t, err)

	tokActive, err := e.Start(map[string]any{})
	require.NoError(t, err)
	require.NoError(t, e.RunStep(context.Background()))

	tokWaiting := token.New(actB, map[string]any{"_waiting_since": "2026-01-01T00:00:00Z"}, wfID, clock.Real{})
	tokWaiting.UpdateStatus(token.StatusWaiting, &token.Analytics{WasteCategories: []token.WasteCategory{token.WasteWaiting}})
	e.AddToken(tokWaiting)

	env := e.Checkpoint(nil)
	require.Len(t, env.Tokens, 2)

	restored, err := New(linearWorkflow(), Options{Actors: actor.Registry{Software: actor.NewSoftware()}})
	require.NoError(t, err)
	restored.Restore(env)

	for _, id := range []string{tokActive.ID(), tokWaiting.ID()} {
		orig, ok := e.Token(id)
		require.True(t, ok)
		got, ok := restored.Token(id)
		require.True(t, ok)
		assert.Equal(t, orig.Status(), got.Status())
		assert.Equal(t, orig.ContextData(), got.ContextData())
		assert.Len(t, got.History(), len(orig.History()))
	}
}

func TestS6RobotNonSimulationDefectWaste(t *testing.T) {
	wf := &workflow.Workflow{
		ID:      wfID,
		Name:    "Robot Defect",
		Version: "1.0",
		Roles:   []workflow.Role{{ID: roleID, Name: "arm"}},
		Activities: []workflow.Activity{
			{ID: actA, Name: "Pick Item", RoleID: roleID, ActorType: workflow.ActorRobot},
		},
	}
	cfg := retry.Config{MaxRetries: 0, InitialDelay: time.Millisecond, Multiplier: 1}
	e, err := New(wf, Options{
		Actors:      actor.Registry{Robot: &actor.Robot{Simulation: false}},
		RetryConfig: &cfg,
	})
	require.NoError(t, err)

	tok, err := e.Start(map[string]any{})
	require.NoError(t, err)
	require.NoError(t, e.RunStep(context.Background()))

	assert.Equal(t, token.StatusFailed, tok.Status())
	history := tok.History()
	last := history[len(history)-1]
	require.NotNil(t, last.Analytics)
	assert.Contains(t, last.Analytics.WasteCategories, token.WasteDefects)
	require.NotNil(t, last.Analytics.ErrorRate)
	assert.Equal(t, float64(1), *last.Analytics.ErrorRate)
}

func TestResumeTokenIsNoOpWhenNotWaiting(t *testing.T) {
	wf := linearWorkflow()
	e, err := New(wf, Options{Actors: actor.Registry{Software: actor.NewSoftware()}})
	require.NoError(t, err)
	tok, err := e.Start(map[string]any{})
	require.NoError(t, err)

	err = e.ResumeToken(tok.ID(), map[string]any{"x": 1})
	assert.NoError(t, err)
	assert.Equal(t, token.StatusActive, tok.Status())
}

func TestResumeTokenUnknownTokenReturnsNotFound(t *testing.T) {
	wf := linearWorkflow()
	e, err := New(wf, Options{Actors: actor.Registry{Software: actor.NewSoftware()}})
	require.NoError(t, err)

	err = e.ResumeToken("does-not-exist", nil)
	require.Error(t, err)
	kind, ok := kernelerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, kernelerr.NotFound, kind)
}

func TestEntryNodePicksActivityWithNoIncomingEdges(t *testing.T) {
	wf := linearWorkflow()
	e, err := New(wf, Options{Actors: actor.Registry{Software: actor.NewSoftware()}})
	require.NoError(t, err)
	tok, err := e.Start(nil)
	require.NoError(t, err)
	assert.Equal(t, actA, tok.CurrentNodeID())
}

func TestCheckpointEnvelopeMatchesRunningEngine(t *testing.T) {
	wf := linearWorkflow()
	e, err := New(wf, Options{Actors: actor.Registry{Software: actor.NewSoftware()}})
	require.NoError(t, err)
	_, err = e.Start(map[string]any{})
	require.NoError(t, err)
	require.NoError(t, e.RunStep(context.Background()))

	env := e.Checkpoint(map[string]any{"reason": "manual"})
	assert.Equal(t, wfID, env.WorkflowID)
	assert.Equal(t, string(StatusRunning), env.EngineStatus)
	assert.NotEmpty(t, env.Version)
}
