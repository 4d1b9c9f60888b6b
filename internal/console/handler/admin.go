package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/workflow-acl/internal/console/service"
	"github.com/xela07ax/workflow-acl/internal/domain"
)

type AdminHandler struct {
	service       *service.AdminService
	retentionDays int
}

// NewAdminHandler: retentionDays is used by Prune when the request does not name one.
func NewAdminHandler(s *service.AdminService, retentionDays int) *AdminHandler {
	return &AdminHandler{service: s, retentionDays: retentionDays}
}

type grantRequest struct {
	Role        domain.Role `json:"role"`
	AllowedTags []string    `json:"allowed_tags"`
}

type pruneRequest struct {
	RetentionDays *int `json:"retention_days"`
}

type pruneResponse struct {
	Removed       int `json:"removed"`
	RetentionDays int `json:"retention_days"`
}

// ListIdentities GET /v1/admin/identities
func (h *AdminHandler) ListIdentities(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}
	entries, err := h.service.ListIdentities(actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// GetIdentity GET /v1/admin/identities/{identity}
func (h *AdminHandler) GetIdentity(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}
	entry, err := h.service.GetIdentity(actor, chi.URLParam(r, "identity"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// PutIdentity PUT /v1/admin/identities/{identity}
func (h *AdminHandler) PutIdentity(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}
	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.service.Grant(r.Context(), actor, chi.URLParam(r, "identity"), req.AllowedTags, req.Role); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteIdentity DELETE /v1/admin/identities/{identity}
func (h *AdminHandler) DeleteIdentity(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}
	if err := h.service.Revoke(r.Context(), actor, chi.URLParam(r, "identity")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Audit GET /v1/admin/audit?username=&action=&limit=
func (h *AdminHandler) Audit(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		http.Error(w, "limit must be a number", http.StatusBadRequest)
		return
	}
	filter := domain.AuditFilter{
		Username: r.URL.Query().Get("username"),
		Action:   domain.AuditAction(r.URL.Query().Get("action")),
	}

	records, err := h.service.QueryAudit(r.Context(), actor, filter, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// Summary GET /v1/admin/audit/summary/{username}?days=
func (h *AdminHandler) Summary(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}
	days, err := intParam(r, "days", 0)
	if err != nil {
		http.Error(w, "days must be a number", http.StatusBadRequest)
		return
	}

	sum, err := h.service.Summary(r.Context(), actor, chi.URLParam(r, "username"), days)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// Prune POST /v1/admin/audit/prune {"retention_days": n}; an empty body uses the configured retention.
func (h *AdminHandler) Prune(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}
	var req pruneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	days := h.retentionDays
	if req.RetentionDays != nil {
		days = *req.RetentionDays
	}
	if days < 0 {
		http.Error(w, "retention_days must not be negative", http.StatusBadRequest)
		return
	}

	removed, err := h.service.Prune(r.Context(), actor, days)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pruneResponse{Removed: removed, RetentionDays: days})
}
