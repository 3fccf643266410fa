// Package api provides the HTTP and WebSocket surface of the assistant gateway.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/ashureev/scrum-ai/internal/backend"
	"github.com/ashureev/scrum-ai/internal/conversation"
	"github.com/ashureev/scrum-ai/internal/form"
)

// maxBodyBytes caps request bodies; chat messages and form values are small.
const maxBodyBytes = 1 << 20

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to encode response", "error", err)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// decodeBody decodes a JSON request body into dst. An empty body leaves dst untouched.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// statusFor maps manager and backend errors to HTTP status codes.
func statusFor(err error) int {
	var be *backend.Error
	switch {
	case errors.Is(err, conversation.ErrEmptyMessage),
		errors.Is(err, conversation.ErrNoProduct),
		errors.Is(err, conversation.ErrNoDirective),
		errors.Is(err, conversation.ErrNoForm):
		return http.StatusBadRequest
	case errors.Is(err, conversation.ErrFormEmpty),
		errors.Is(err, form.ErrUnknownField),
		errors.Is(err, form.ErrNotMultiSelect),
		errors.Is(err, form.ErrIsMultiSelect):
		return http.StatusUnprocessableEntity
	case errors.Is(err, conversation.ErrBusy),
		errors.Is(err, conversation.ErrStaleProduct):
		return http.StatusConflict
	case errors.Is(err, conversation.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.As(err, &be):
		if be.Status == http.StatusNotFound {
			return http.StatusNotFound
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs unexpected failures and writes the mapped status.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "path", r.URL.Path, "status", status, "error", err)
	}
	Error(w, status, err.Error())
}
