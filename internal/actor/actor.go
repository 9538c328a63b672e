// Package actor implements the uniform effect interface the engine
// dispatches an activity to, with one variant per actor kind: software,
// AI, robot, and human. Route selection is a tag-dispatch on the
// activity's declared ActorType.
package actor

import (
	"context"

	"github.com/flowkernel/kernel/internal/kernelerr"
	"github.com/flowkernel/kernel/internal/workflow"
)

// Actor is the single contract every actor kind implements: take an
// activity and its resolved inputs, return an output map or a
// kernelerr-classified failure.
type Actor interface {
	Execute(ctx context.Context, activity workflow.Activity, role workflow.Role, inputs map[string]any) (map[string]any, error)
}

// Registry resolves the Actor for an activity's declared kind.
type Registry struct {
	Software Actor
	AI       Actor
	Robot    Actor
	Human    Actor
}

// For returns the Actor registered for kind, or a config-error if no
// actor is wired for it.
func (r Registry) For(kind workflow.ActorType) (Actor, error) {
	switch kind {
	case workflow.ActorApplication:
		if r.Software != nil {
			return r.Software, nil
		}
	case workflow.ActorAIAgent:
		if r.AI != nil {
			return r.AI, nil
		}
	case workflow.ActorRobot:
		if r.Robot != nil {
			return r.Robot, nil
		}
	case workflow.ActorHuman:
		if r.Human != nil {
			return r.Human, nil
		}
	}
	return nil, kernelerr.New(kernelerr.Config, "no actor wired for actor_type %q", kind)
}
