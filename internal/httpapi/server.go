// Package httpapi implements the kernel's HTTP control-plane boundary:
// triggering a workflow run and inspecting/acting on the human task
// queue, per the external interface contract. It is a thin wrapper over
// internal/engine and internal/humantask — no scheduling logic lives
// here.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/flowkernel/kernel/internal/actor"
	"github.com/flowkernel/kernel/internal/engine"
	"github.com/flowkernel/kernel/internal/humantask"
	"github.com/flowkernel/kernel/internal/kernelerr"
	"github.com/flowkernel/kernel/internal/telemetry"
	"github.com/flowkernel/kernel/internal/token"
	"github.com/flowkernel/kernel/internal/workflow"
)

// Config configures the control-plane router.
type Config struct {
	Queue     *humantask.Queue
	Auth      *Authenticator
	RateLimit int
	Logger    telemetry.Logger
	Metrics   telemetry.Metrics
	// AIProviders wires the AI actor's provider registry for workflows
	// triggered over HTTP, keyed as Role.Model.Provider names it.
	AIProviders map[string]actor.Provider
}

// Server is the control-plane HTTP boundary. Construct with NewServer.
type Server struct {
	queue   *humantask.Queue
	auth    *Authenticator
	logger  telemetry.Logger
	metrics telemetry.Metrics

	providers map[string]actor.Provider

	runsMu sync.Mutex
	runs   map[string]*runState
}

type runState struct {
	eng *engine.Engine
}

// NewServer builds the chi router implementing the control-plane
// contract: auth and rate-limit middleware wrap every route except
// /health.
func NewServer(cfg Config) http.Handler {
	if cfg.Auth == nil {
		cfg.Auth = NoAuth()
	}
	if cfg.Logger == nil {
		cfg.Logger = telemetry.NewNoopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = telemetry.NewNoopMetrics()
	}
	if cfg.Queue == nil {
		cfg.Queue = humantask.New(nil)
	}
	s := &Server{
		queue:     cfg.Queue,
		auth:      cfg.Auth,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		providers: cfg.AIProviders,
		runs:      make(map[string]*runState),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(cfg.Auth.Middleware)
		r.Use(NewRateLimiter(cfg.RateLimit).Middleware)

		r.Post("/api/v1/workflows/run", s.handleRunWorkflow)

		r.Get("/api/v1/tasks", s.handleListTasks)
		r.Get("/api/v1/tasks/pending", s.handlePendingTasks)
		r.Get("/api/v1/tasks/{id}", s.handleGetTask)
		r.Post("/api/v1/tasks/{id}/assign", s.handleAssignTask)
		r.Post("/api/v1/tasks/{id}/complete", s.handleCompleteTask)
		r.Post("/api/v1/tasks/{id}/reject", s.handleRejectTask)
		r.Get("/api/v1/tasks/queue/stats", s.handleQueueStats)

		r.Get("/api/v1/runs/{id}", s.handleGetRun)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type runWorkflowRequest struct {
	FilePath string `json:"filePath"`
	APIKey   string `json:"apiKey,omitempty"`
}

type runWorkflowResponse struct {
	RunID   string `json:"runId"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (s *Server) handleRunWorkflow(w http.ResponseWriter, r *http.Request) {
	var req runWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, kernelerr.Wrap(kernelerr.Validation, err, "decode request body"))
		return
	}
	raw, err := os.ReadFile(req.FilePath)
	if err != nil {
		writeError(w, kernelerr.Wrap(kernelerr.Validation, err, "read workflow file %q", req.FilePath))
		return
	}
	wf, err := workflow.Load(raw)
	if err != nil {
		writeError(w, err)
		return
	}

	opts := engine.DefaultCollaborators(s.providers)
	opts.TaskQueue = s.queue
	opts.Actors.Human = actor.NewHuman(s.queue)
	opts.WaitForHumanTasks = true
	opts.Logger = s.logger
	opts.Metrics = s.metrics
	eng, err := engine.New(wf, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := eng.Start(nil); err != nil {
		writeError(w, err)
		return
	}

	runID := uuid.NewString()
	s.runsMu.Lock()
	s.runs[runID] = &runState{eng: eng}
	s.runsMu.Unlock()

	go func() {
		ctx := context.Background()
		if err := eng.Run(ctx); err != nil {
			s.logger.Error(ctx, "workflow run failed", "run_id", runID, "workflow_id", wf.ID, "error", err.Error())
		}
	}()

	writeJSON(w, http.StatusAccepted, runWorkflowResponse{
		RunID:   runID,
		Status:  string(eng.Status()),
		Message: "workflow started",
	})
}

type tokenSummary struct {
	TokenID     string       `json:"tokenId"`
	Status      string       `json:"status"`
	CurrentNode string       `json:"currentNodeId"`
	Rollup      token.Rollup `json:"rollup"`
}

type getRunResponse struct {
	RunID  string         `json:"runId"`
	Status string         `json:"status"`
	Tokens []tokenSummary `json:"tokens"`
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.runsMu.Lock()
	run, ok := s.runs[id]
	s.runsMu.Unlock()
	if !ok {
		writeError(w, kernelerr.New(kernelerr.NotFound, "run %q not found", id))
		return
	}

	tokens := run.eng.Tokens()
	summaries := make([]tokenSummary, 0, len(tokens))
	for _, t := range tokens {
		rollup, _ := run.eng.TokenRollup(t.ID())
		summaries = append(summaries, tokenSummary{
			TokenID:     t.ID(),
			Status:      string(t.Status()),
			CurrentNode: t.CurrentNodeID(),
			Rollup:      rollup,
		})
	}
	writeJSON(w, http.StatusOK, getRunResponse{
		RunID:  id,
		Status: string(run.eng.Status()),
		Tokens: summaries,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	kind, ok := kernelerr.KindOf(err)
	status := http.StatusInternalServerError
	if ok {
		switch kind {
		case kernelerr.Validation:
			status = http.StatusBadRequest
		case kernelerr.NotFound:
			status = http.StatusNotFound
		case kernelerr.Authentication:
			status = http.StatusUnauthorized
		case kernelerr.PermissionDenied:
			status = http.StatusForbidden
		case kernelerr.Config, kernelerr.Integration:
			status = http.StatusBadGateway
		}
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
