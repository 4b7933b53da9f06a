package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// APIError represents a structured API error
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.cause
}

// NewAPIError creates a new API error
func NewAPIError(code string, message string) *APIError {
	return &APIError{Code: code, Message: message}
}

// WithDetails adds details to the error
func (e *APIError) WithDetails(details any) *APIError {
	e.Details = details
	return e
}

// WithCause wraps an underlying error
func (e *APIError) WithCause(err error) *APIError {
	e.cause = err
	return e
}

// ErrorResponse is the JSON structure for error responses
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

// WriteError writes an error response to the response writer
func WriteError(w http.ResponseWriter, r *http.Request, statusCode int, apiErr *APIError) {
	logger := slog.Default()
	logAttrs := []any{
		"code", apiErr.Code,
		"message", apiErr.Message,
		"status", statusCode,
		"method", r.Method,
		"path", r.URL.Path,
	}

	if apiErr.cause != nil {
		logAttrs = append(logAttrs, "cause", apiErr.cause.Error())
	}

	if requestID := r.Header.Get("X-Request-ID"); requestID != "" {
		logAttrs = append(logAttrs, "request_id", requestID)
	}

	// Log at appropriate level based on status code
	if statusCode >= 500 {
		logger.Error("api error", logAttrs...)
	} else if statusCode >= 400 {
		logger.Warn("api error", logAttrs...)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: apiErr})
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// Helper functions for common responses
func BadRequest(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusBadRequest, NewAPIError("BAD_REQUEST", message))
}

func NotFound(w http.ResponseWriter, r *http.Request, resource string) {
	WriteError(w, r, http.StatusNotFound, NewAPIError("NOT_FOUND", resource+" not found"))
}

func Unauthorized(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusUnauthorized, NewAPIError("UNAUTHORIZED", message))
}

func InternalError(w http.ResponseWriter, r *http.Request, message string, cause error) {
	WriteError(w, r, http.StatusInternalServerError, NewAPIError("INTERNAL_ERROR", message).WithCause(cause))
}
