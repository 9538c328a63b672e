package actor

import (
	"context"
	"time"

	"github.com/flowkernel/kernel/internal/clock"
	"github.com/flowkernel/kernel/internal/humantask"
	"github.com/flowkernel/kernel/internal/kernelerr"
	"github.com/flowkernel/kernel/internal/workflow"
)

// PriorityPolicy decides the priority of a human task derived from an
// activity. The default policy escalates to "high" when the activity
// declares an SLA escalation; a layered policy (e.g. considering load or
// due-date proximity) can be substituted.
type PriorityPolicy func(activity workflow.Activity) humantask.Priority

// DefaultPriorityPolicy implements the escalation-aware default: normal
// priority unless the activity's SLA hint requests escalation.
func DefaultPriorityPolicy(activity workflow.Activity) humantask.Priority {
	if activity.SLA != nil && activity.SLA.Escalation {
		return humantask.PriorityHigh
	}
	return humantask.PriorityNormal
}

// Human is the human actor. It enqueues a human task derived from the
// activity and, depending on WaitInline, either blocks for completion or
// returns immediately so the engine can park the token in "waiting".
type Human struct {
	Queue      *humantask.Queue
	WaitInline bool
	Priority   PriorityPolicy
}

// NewHuman constructs a Human actor backed by queue. WaitInline false
// (the default) returns immediately after enqueueing so the engine can
// park the token and resume later rather than blocking a worker.
func NewHuman(queue *humantask.Queue) *Human {
	return &Human{Queue: queue, Priority: DefaultPriorityPolicy}
}

func (h *Human) Execute(ctx context.Context, activity workflow.Activity, role workflow.Role, inputs map[string]any) (map[string]any, error) {
	policy := h.Priority
	if policy == nil {
		policy = DefaultPriorityPolicy
	}
	priority := policy(activity)

	tokenID, _ := inputs["_token_id"].(string)

	var dueAt *time.Time
	if activity.SLA != nil && activity.SLA.Max != "" {
		if d, err := clock.ParseDuration(activity.SLA.Max); err == nil {
			t := clock.Real{}.Now().Add(d)
			dueAt = &t
		}
	}

	for _, slot := range activity.Inputs {
		if err := workflow.ValidatePayload(slot, inputs[slot.Name]); err != nil {
			return nil, err
		}
	}

	task := h.Queue.Enqueue(activity.ID, tokenID, activity.RoleID, priority, inputs, dueAt)

	if !h.WaitInline {
		return map[string]any{
			"_human_task_id":         task.ID,
			"_human_task_status":     string(humantask.StatusPending),
			"_requires_human_action": true,
		}, nil
	}

	completed, err := h.Queue.WaitForCompletion(ctx, task.ID)
	if err != nil {
		return nil, kernelerr.Wrap(kernelerr.Integration, err, "waiting for human task %q", task.ID)
	}
	if completed.Status == humantask.StatusRejected {
		return nil, kernelerr.New(kernelerr.RejectedByHuman, "human task %q was rejected: %s", task.ID, completed.RejectReason)
	}

	out := map[string]any{
		"_human_task_id":     task.ID,
		"_human_task_status": string(humantask.StatusCompleted),
	}
	for k, v := range inputs {
		out[k] = v
	}
	for k, v := range completed.Outputs {
		out[k] = v
	}
	return out, nil
}
