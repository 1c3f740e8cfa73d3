// Package handler adapts the services to HTTP.
//
// Handlers decode the request, call one service method and encode the
// result. They hold no business rules; every domain error is translated to a
// status code in exactly one place, writeError.
package handler

// CONSISTENT ERROR FORMAT:
// Every error response from the API has the same shape:
//
//	{"error": "validation_error", "message": "Content is required", "field": "content"}
//
// so a client can branch on "error" without caring about the status code.

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/accomplo/internal/apperror"
	"github.com/sakif/accomplo/internal/auth"
)

// maxBodyBytes caps every JSON request body.
const maxBodyBytes = 1 << 20

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`           // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"`         // Human-readable description
	Field   string `json:"field,omitempty"` // Offending request field, when known
}

// MessageResponse is the body of endpoints that have nothing else to return.
type MessageResponse struct {
	Message string `json:"message"`
}

// writeJSON sends a JSON response with the given status code.
//
// Headers and status must be written BEFORE the body; once Encode calls
// w.Write the headers are on the wire and later changes are ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to an HTTP status and sends it.
//
// errors.Is walks the whole chain, so a service error wrapped as
// fmt.Errorf("...: %w", apperror.NotFound(...)) still maps to 404.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		errorType := "internal_error"

		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest // 400
			errorType = "validation_error"
		case errors.Is(err, apperror.ErrUnauthorized):
			status = http.StatusUnauthorized // 401
			errorType = "unauthorized"
		case errors.Is(err, apperror.ErrForbidden):
			status = http.StatusForbidden // 403
			errorType = "forbidden"
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound // 404
			errorType = "not_found"
		case errors.Is(err, apperror.ErrConflict):
			status = http.StatusConflict // 409
			errorType = "conflict"
		}

		writeJSON(w, status, ErrorResponse{
			Error:   errorType,
			Message: appErr.Message,
			Field:   appErr.Field,
		})
		return
	}

	// Unknown error: log it, never echo it. Raw messages can carry SQL,
	// file paths or DSNs.
	slog.Error("unhandled error", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

// decodeJSON reads a single JSON object from the request body into v.
// Unknown fields are rejected so a typo in a field name is a 400 rather
// than a silently ignored value.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return apperror.ValidationFailed("body", "Request body is too large")
		case errors.Is(err, io.EOF):
			return apperror.ValidationFailed("body", "Request body is required")
		default:
			return apperror.ValidationFailed("body", "Invalid JSON body")
		}
	}
	if dec.More() {
		return apperror.ValidationFailed("body", "Request body must be a single JSON object")
	}
	return nil
}

// requireUser returns the authenticated user ID. On routes behind
// auth.RequireAuth it always succeeds.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("Valid authentication required"))
		return "", false
	}
	return userID, true
}
