package actor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowkernel/kernel/internal/kernelerr"
	"github.com/flowkernel/kernel/internal/workflow"
)

func TestRobotSimulationClassifiesKeyword(t *testing.T) {
	r := NewRobot()
	out, err := r.Execute(context.Background(), workflow.Activity{Name: "Pick up the part"}, workflow.Role{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "pick", out["action"])
	assert.Equal(t, "completed", out["status"])
}

func TestRobotSimulationFallsBackToGeneric(t *testing.T) {
	r := NewRobot()
	out, err := r.Execute(context.Background(), workflow.Activity{Name: "Do the thing"}, workflow.Role{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "generic", out["action"])
}

func TestRobotNonSimulationFailsNotImplemented(t *testing.T) {
	r := &Robot{Simulation: false}
	_, err := r.Execute(context.Background(), workflow.Activity{Name: "Move"}, workflow.Role{}, nil)
	require.Error(t, err)
	kind, ok := kernelerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, kernelerr.NotImplemented, kind)
}
