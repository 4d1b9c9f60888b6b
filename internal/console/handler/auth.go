package handler

import (
	"encoding/json"
	"net/http"

	"github.com/xela07ax/workflow-acl/internal/console/service"
	"github.com/xela07ax/workflow-acl/internal/domain"
)

type AuthHandler struct {
	service *service.AuthService
}

func NewAuthHandler(s *service.AuthService) *AuthHandler {
	return &AuthHandler{service: s}
}

// Login POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	resp, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		// Same answer for unknown user and wrong password.
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Logout POST /auth/logout (authenticated)
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	h.service.Logout(r.Context(), id)
	w.WriteHeader(http.StatusNoContent)
}
