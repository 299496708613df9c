package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/laurabot-hal/internal/gesture"
	"github.com/nerrad567/laurabot-hal/internal/hal"
	"github.com/nerrad567/laurabot-hal/internal/router"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeNotFound    = "not_found"
	ErrCodeConflict    = "conflict"
	ErrCodeInternal    = "internal_error"
	ErrCodeUnavailable = "unavailable"
	ErrCodeNoData      = "no_data"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeUnavailable writes a 503 error response for an unconfigured component.
func writeUnavailable(w http.ResponseWriter, message string) {
	writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, message)
}

// writeResult writes a routed command result.
//
// Listen timeouts and "nothing seen" are ordinary outcomes (200). Invalid
// input is 400. Anything else means every tier failed (503).
func writeResult[T any](w http.ResponseWriter, res hal.Result[T]) {
	status := http.StatusOK
	switch {
	case res.Success,
		errors.Is(res.Err, hal.ErrListenTimeout),
		errors.Is(res.Err, router.ErrNoGesture):
	case errors.Is(res.Err, hal.ErrInvalidPosition),
		errors.Is(res.Err, hal.ErrUnknownPose),
		errors.Is(res.Err, gesture.ErrUnknownGesture):
		status = http.StatusBadRequest
	default:
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}
