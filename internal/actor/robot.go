package actor

import (
	"context"
	"strings"

	"github.com/flowkernel/kernel/internal/kernelerr"
	"github.com/flowkernel/kernel/internal/workflow"
)

// robotKeywords classifies an activity name/description against a fixed
// vocabulary of simulated physical actions.
var robotKeywords = []struct {
	action   string
	keywords []string
}{
	{"pick", []string{"pick", "grab", "grasp"}},
	{"place", []string{"place", "put", "drop", "deposit"}},
	{"move", []string{"move", "transport", "navigate", "travel"}},
	{"scan", []string{"scan", "inspect", "detect", "read"}},
	{"assemble", []string{"assemble", "build", "attach", "join"}},
}

// Robot is the robot actor. In simulation mode (the default) it
// classifies the activity and synthesizes a plausible result; in
// non-simulation mode it fails fast since no real robot protocol is
// wired into this kernel.
type Robot struct {
	Simulation bool
}

// NewRobot constructs a Robot actor in simulation mode.
func NewRobot() *Robot {
	return &Robot{Simulation: true}
}

func (r *Robot) Execute(ctx context.Context, activity workflow.Activity, role workflow.Role, inputs map[string]any) (map[string]any, error) {
	if !r.Simulation {
		protocol, connection := "", ""
		if role.Robot != nil {
			protocol = role.Robot.Protocol
			connection = role.Robot.Connection
		}
		return nil, kernelerr.New(kernelerr.NotImplemented,
			"robot actor requires non-simulation protocol %q connection %q, which this kernel does not drive", protocol, connection)
	}

	action := classify(activity.Name + " " + activity.Description)
	executionMS := 150 + len(activity.Name)*5

	out := map[string]any{
		"status":            "completed",
		"action":            action,
		"execution_time_ms": executionMS,
		"result":            action + " completed successfully",
	}
	for k, v := range inputs {
		out[k] = v
	}
	return out, nil
}

func classify(text string) string {
	lower := strings.ToLower(text)
	for _, entry := range robotKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.action
			}
		}
	}
	return "generic"
}
