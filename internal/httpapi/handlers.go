package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flowkernel/kernel/internal/kernelerr"
)

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	roleID := r.URL.Query().Get("role_id")
	assignee := r.URL.Query().Get("assignee")
	writeJSON(w, http.StatusOK, s.queue.List(roleID, assignee))
}

func (s *Server) handlePendingTasks(w http.ResponseWriter, r *http.Request) {
	roleID := r.URL.Query().Get("role_id")
	writeJSON(w, http.StatusOK, s.queue.GetPendingByRole(roleID))
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	task, err := s.queue.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

type assignTaskRequest struct {
	UserID string `json:"user_id"`
}

func (s *Server) handleAssignTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req assignTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, kernelerr.Wrap(kernelerr.Validation, err, "decode request body"))
		return
	}
	if err := s.authorizeForTask(r, id); err != nil {
		writeError(w, err)
		return
	}
	if err := s.queue.Assign(id, req.UserID); err != nil {
		writeError(w, err)
		return
	}
	task, err := s.queue.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

type completeTaskRequest struct {
	Result map[string]any `json:"result"`
}

func (s *Server) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req completeTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, kernelerr.Wrap(kernelerr.Validation, err, "decode request body"))
		return
	}
	if err := s.authorizeForTask(r, id); err != nil {
		writeError(w, err)
		return
	}
	if err := s.queue.Complete(id, req.Result); err != nil {
		writeError(w, err)
		return
	}
	task, err := s.queue.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

type rejectTaskRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleRejectTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req rejectTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, kernelerr.Wrap(kernelerr.Validation, err, "decode request body"))
		return
	}
	if err := s.authorizeForTask(r, id); err != nil {
		writeError(w, err)
		return
	}
	if err := s.queue.Reject(id, req.Reason); err != nil {
		writeError(w, err)
		return
	}
	task, err := s.queue.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.queue.Stats())
}

// authorizeForTask rejects the request unless the caller's authenticated
// role either matches the task's role_id or is "admin". An empty role
// (no-auth mode, or a bearer token carrying none) is left unrestricted.
func (s *Server) authorizeForTask(r *http.Request, taskID string) error {
	role := roleFromContext(r.Context())
	if role == "" || role == "admin" {
		return nil
	}
	task, err := s.queue.Get(taskID)
	if err != nil {
		return err
	}
	if task.RoleID != "" && task.RoleID != role {
		return kernelerr.New(kernelerr.PermissionDenied, "role %q is not authorized for task %q", role, taskID)
	}
	return nil
}
