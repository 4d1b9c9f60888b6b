package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/xela07ax/workflow-acl/internal/domain"
	"github.com/xela07ax/workflow-acl/internal/infra/auth"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to HTTP statuses. Anything unknown is a 500 without details.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrAccessDenied):
		http.Error(w, "Forbidden", http.StatusForbidden)
	case errors.Is(err, domain.ErrWorkflowNotFound):
		http.Error(w, "Workflow not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidCredentials):
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	case errors.Is(err, domain.ErrTriggerUnsupported):
		http.Error(w, "Workflow cannot be triggered manually", http.StatusNotImplemented)
	default:
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}

// identity is set by auth.NewMiddleware; routes without it are a wiring bug.
func identity(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	}
	return id, ok
}

// intParam reads an optional integer query parameter.
func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
