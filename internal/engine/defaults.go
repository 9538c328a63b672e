package engine

import (
	"github.com/flowkernel/kernel/internal/actor"
	"github.com/flowkernel/kernel/internal/clock"
	"github.com/flowkernel/kernel/internal/deadletter"
	"github.com/flowkernel/kernel/internal/humantask"
)

// DefaultCollaborators wires process-wide default collaborators (an
// in-memory task queue, dead-letter queue, and the four in-process actor
// implementations) for CLI-driven single-run use. Construction code that
// wants to inject its own queues, AI providers, or retry policy should
// build Options directly instead.
func DefaultCollaborators(aiProviders map[string]actor.Provider) Options {
	c := clock.Real{}
	queue := humantask.New(c)
	dlq := deadletter.New(c)
	return Options{
		TaskQueue:  queue,
		DeadLetter: dlq,
		Actors: actor.Registry{
			Software: actor.NewSoftware(),
			Robot:    actor.NewRobot(),
			Human:    actor.NewHuman(queue),
			AI:       actor.NewAI(aiProviders),
		},
	}
}
