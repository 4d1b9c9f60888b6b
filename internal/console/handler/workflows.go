package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/workflow-acl/internal/console/service"
	"github.com/xela07ax/workflow-acl/internal/workflows"
)

type WorkflowHandler struct {
	service *service.WorkflowService
}

func NewWorkflowHandler(s *service.WorkflowService) *WorkflowHandler {
	return &WorkflowHandler{service: s}
}

// Me GET /v1/me
func (h *WorkflowHandler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.service.Profile(id))
}

// List GET /v1/workflows[?group=tag]
func (h *WorkflowHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	if r.URL.Query().Get("group") == "tag" {
		groups, err := h.service.Grouped(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, groups)
		return
	}

	wfs, err := h.service.List(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wfs)
}

// Get GET /v1/workflows/{id}
func (h *WorkflowHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	wf, err := h.service.Get(r.Context(), id, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

// Executions GET /v1/workflows/{id}/executions[?limit=n]
func (h *WorkflowHandler) Executions(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	limit, err := intParam(r, "limit", workflows.DefaultExecutionsLimit)
	if err != nil {
		http.Error(w, "limit must be a number", http.StatusBadRequest)
		return
	}

	execs, err := h.service.Executions(r.Context(), id, chi.URLParam(r, "id"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, execs)
}

// Activate POST /v1/workflows/{id}/activate
func (h *WorkflowHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

// Deactivate POST /v1/workflows/{id}/deactivate
func (h *WorkflowHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *WorkflowHandler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	if err := h.service.SetActive(r.Context(), id, chi.URLParam(r, "id"), active); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Execute POST /v1/workflows/{id}/execute
func (h *WorkflowHandler) Execute(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	if err := h.service.Execute(r.Context(), id, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
