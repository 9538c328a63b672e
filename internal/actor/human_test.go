package actor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowkernel/kernel/internal/humantask"
	"github.com/flowkernel/kernel/internal/kernelerr"
	"github.com/flowkernel/kernel/internal/workflow"
)

func TestHumanDeferredModeReturnsPendingMarker(t *testing.T) {
	queue := humantask.New(nil)
	h := NewHuman(queue)
	activity := workflow.Activity{ID: "act-1", RoleID: "role-1"}

	out, err := h.Execute(context.Background(), activity, workflow.Role{}, map[string]any{"_token_id": "tok-1"})
	require.NoError(t, err)
	assert.Equal(t, true, out["_requires_human_action"])
	assert.Equal(t, "pending", out["_human_task_status"])
}

func TestHumanInlineModeBlocksThenReturnsOutputs(t *testing.T) {
	queue := humantask.New(nil)
	h := &Human{Queue: queue, WaitInline: true}
	activity := workflow.Activity{ID: "act-1", RoleID: "role-1"}

	done := make(chan map[string]any, 1)
	errCh := make(chan error, 1)
	go func() {
		out, err := h.Execute(context.Background(), activity, workflow.Role{}, map[string]any{"_token_id": "tok-1"})
		done <- out
		errCh <- err
	}()

	tasks := queue.GetPendingByRole("role-1")
	require.Len(t, tasks, 1)
	require.NoError(t, queue.Complete(tasks[0].ID, map[string]any{"approved": true}))

	out := <-done
	require.NoError(t, <-errCh)
	assert.Equal(t, true, out["approved"])
}

func TestHumanInlineModeFailsOnRejection(t *testing.T) {
	queue := humantask.New(nil)
	h := &Human{Queue: queue, WaitInline: true}
	activity := workflow.Activity{ID: "act-1", RoleID: "role-1"}

	errCh := make(chan error, 1)
	go func() {
		_, err := h.Execute(context.Background(), activity, workflow.Role{}, map[string]any{"_token_id": "tok-1"})
		errCh <- err
	}()

	tasks := queue.GetPendingByRole("role-1")
	require.Len(t, tasks, 1)
	require.NoError(t, queue.Reject(tasks[0].ID, "no"))

	err := <-errCh
	require.Error(t, err)
	kind, ok := kernelerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, kernelerr.RejectedByHuman, kind)
}

func TestHumanEscalatesPriorityOnSLAEscalation(t *testing.T) {
	queue := humantask.New(nil)
	h := NewHuman(queue)
	activity := workflow.Activity{ID: "act-1", RoleID: "role-1", SLA: &workflow.SLAHint{Escalation: true}}

	_, err := h.Execute(context.Background(), activity, workflow.Role{}, map[string]any{"_token_id": "tok-1"})
	require.NoError(t, err)
	tasks := queue.GetPendingByRole("role-1")
	require.Len(t, tasks, 1)
	assert.Equal(t, humantask.PriorityHigh, tasks[0].Priority)
}
