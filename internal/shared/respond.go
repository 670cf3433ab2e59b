package shared

import (
	"encoding/json"
	"errors"
	"net/http"
)

type errorBody struct {
	Error string `json:"error"`
}

// RespondJSON writes v as a JSON response body.
func RespondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// RespondError maps a failure to its HTTP status and a uniform JSON body.
// Authentication failures collapse to one message regardless of root cause.
func RespondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "internal error"
	switch {
	case errors.Is(err, ErrAuthRequired):
		status, message = http.StatusUnauthorized, ErrAuthRequired.Error()
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrSessionInvalid):
		status, message = http.StatusUnauthorized, ErrInvalidToken.Error()
	case errors.Is(err, ErrPermissionDenied):
		status, message = http.StatusForbidden, ErrPermissionDenied.Error()
	case errors.Is(err, ErrNotFound):
		status, message = http.StatusNotFound, ErrNotFound.Error()
	case errors.Is(err, ErrConflict):
		status, message = http.StatusConflict, ErrConflict.Error()
	}
	RespondJSON(w, status, errorBody{Error: message})
}

// RespondValidationError reports malformed input for a named field set.
func RespondValidationError(w http.ResponseWriter, fields map[string]string) {
	RespondJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"error":  "validation failed",
		"fields": fields,
	})
}
