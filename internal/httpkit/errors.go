// Package httpkit centralizes how the ingestion and query API surfaces
// turn domain errors into HTTP responses, so each handler need not
// re-derive a status code from an error's type.
package httpkit

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/retailpulse/eventpipeline/internal/store"
	"github.com/retailpulse/eventpipeline/internal/tenancy"
)

// WriteJSON writes v as a JSON response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteError maps err to the response shape and status code spec.md §7
// assigns its error kind, writing a JSON body of {"error": "..."}.
// Duplicate-key collisions are not errors and never reach this function —
// the store layer counts them inline.
func WriteError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, tenancy.ErrScopeViolation):
		status = http.StatusForbidden
	case errors.Is(err, tenancy.ErrInvalidCredential):
		status = http.StatusUnauthorized
	case isValidationError(err):
		status = http.StatusBadRequest
	}
	WriteJSON(w, status, map[string]string{"error": err.Error()})
}

func isValidationError(err error) bool {
	var ve *store.ValidationError
	return errors.As(err, &ve)
}
