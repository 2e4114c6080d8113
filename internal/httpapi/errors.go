package httpapi

import (
	"encoding/json"
	"net/http"

	"inferd/internal/component"
	"inferd/internal/download"
	"inferd/internal/lifecycle"
	"inferd/internal/registry"

	"inferd/pkg/types"
)

// statusFor maps domain error predicates onto HTTP status codes. Anything
// unrecognized is a 500.
func statusFor(err error) int {
	switch {
	case component.IsBadRequest(err):
		return http.StatusBadRequest
	case registry.IsNotFound(err), download.IsTaskNotFound(err):
		return http.StatusNotFound
	case registry.IsAlreadyRegistered(err), lifecycle.IsInvalidState(err), lifecycle.IsNotLoaded(err):
		return http.StatusConflict
	case registry.IsNoCapableProvider(err), component.IsNotSupported(err):
		return http.StatusUnprocessableEntity
	case download.IsPaused(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes a consistent JSON error payload.
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg})
}

// writeDomainError maps err to a status and writes it.
func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}
