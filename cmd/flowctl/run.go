package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"goa.design/clue/log"

	"github.com/flowkernel/kernel/internal/actor"
	"github.com/flowkernel/kernel/internal/checkpoint"
	"github.com/flowkernel/kernel/internal/engine"
	"github.com/flowkernel/kernel/internal/telemetry"
	"github.com/flowkernel/kernel/internal/workflow"
)

type runCmd struct {
	File          string `arg:"" type:"existingfile" help:"Workflow definition file to load."`
	Verbose       bool   `help:"Enable debug-level logging."`
	Key           string `help:"API key for AI actor providers. Currently unused: run wires no AI providers."`
	ValidateOnly  bool   `name:"validate-only" help:"Validate the workflow document and exit without executing it."`
	CheckpointDir string `name:"checkpoint-dir" help:"Directory to periodically persist checkpoint envelopes to; disabled when empty."`
}

func (c *runCmd) Run() error {
	ctx := telemetry.Configure(context.Background())
	if c.Verbose {
		ctx = log.Context(ctx, log.WithDebug())
	}
	logger := telemetry.NewClueLogger()

	raw, err := os.ReadFile(c.File)
	if err != nil {
		return fmt.Errorf("read workflow file: %w", err)
	}
	wf, err := workflow.Load(raw)
	if err != nil {
		return fmt.Errorf("load workflow: %w", err)
	}
	logger.Info(ctx, "workflow loaded", "workflow_id", wf.ID, "name", wf.Name, "version", wf.Version)
	if c.ValidateOnly {
		logger.Info(ctx, "workflow is valid")
		return nil
	}

	providers := aiProvidersFromEnv(c.Key)
	opts := engine.DefaultCollaborators(providers)
	opts.WaitForHumanTasks = true
	opts.Logger = logger
	opts.Metrics = telemetry.NewMetricsFromEnv("github.com/flowkernel/kernel/flowctl")

	eng, err := engine.New(wf, opts)
	if err != nil {
		return fmt.Errorf("construct engine: %w", err)
	}
	if _, err := eng.Start(nil); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	if c.CheckpointDir != "" {
		store := checkpoint.NewFileStore(c.CheckpointDir)
		autosaveCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go checkpoint.AutoSave(autosaveCtx, store, wf.ID, 5*time.Second, func() (checkpoint.Envelope, bool) {
			if eng.Status() == engine.StatusCompleted || eng.Status() == engine.StatusFailed {
				return checkpoint.Envelope{}, false
			}
			return eng.Checkpoint(nil), true
		})
	}

	if err := eng.Run(ctx); err != nil {
		return fmt.Errorf("run workflow: %w", err)
	}

	status := eng.Status()
	logger.Info(ctx, "workflow finished", "status", string(status))
	for _, t := range eng.Tokens() {
		logger.Info(ctx, "token final state", "token_id", t.ID(), "status", string(t.Status()), "node_id", t.CurrentNodeID())
		if rollup, ok := eng.TokenRollup(t.ID()); ok {
			logger.Info(ctx, "token analytics rollup",
				"token_id", t.ID(),
				"total_process_time_s", rollup.TotalProcessTime,
				"total_wait_time_s", rollup.TotalWaitTime,
				"value_added_steps", rollup.ValueAddedSteps,
				"non_value_added_steps", rollup.NonValueAddedSteps,
				"waste_counts", rollup.WasteCounts,
			)
		}
	}
	if status == engine.StatusFailed {
		return fmt.Errorf("workflow %q finished with status failed", wf.ID)
	}
	return nil
}

// aiProvidersFromEnv returns the AI actor's provider registry. It is
// always empty: no credentials are read from the environment and
// apiKeyOverride is not used, so AI activities fail with config-error.
func aiProvidersFromEnv(apiKeyOverride string) map[string]actor.Provider {
	// Provider clients require live SDK credentials (ANTHROPIC_API_KEY,
	// OPENAI_API_KEY, AWS credentials) that are not available in this
	// process by default; workflows that declare AI activities must be
	// run against a process that constructs engine.Options directly with
	// configured actor.Provider implementations. The CLI wires an empty
	// registry so non-AI workflows still run, and AI activities fail with
	// a clear config-error instead of a nil-pointer panic.
	return map[string]actor.Provider{}
}
