// Package api provides the HTTP surface of the election counting core:
// handlers, standardized error responses and request wiring.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/uniwahl/zaehlwerk/internal/middleware"
)

// Common error codes used throughout the API.
const (
	// ErrCodeValidation indicates input validation failure.
	ErrCodeValidation = "validation_error"

	// ErrCodeAuthFailed indicates authentication failure.
	ErrCodeAuthFailed = "auth_failed"

	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound = "not_found"

	// ErrCodeRateLimited indicates rate limit exceeded.
	ErrCodeRateLimited = "rate_limited"

	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal = "internal_error"

	// ErrCodeForbidden indicates the request is forbidden.
	ErrCodeForbidden = "forbidden"

	// ErrCodeBadRequest indicates a malformed request.
	ErrCodeBadRequest = "bad_request"

	// ErrCodeInvalidInput indicates tallies or election parameters that no
	// counting engine can accept.
	ErrCodeInvalidInput = "invalid_input"

	// ErrCodeUnknownMethod indicates a counting method outside the supported set.
	ErrCodeUnknownMethod = "unknown_method"

	// ErrCodeMethodMismatch indicates a counting method that does not fit the
	// election type.
	ErrCodeMethodMismatch = "method_mismatch"

	// ErrCodeElectionNotClosed indicates a counting request for an election
	// that is still open.
	ErrCodeElectionNotClosed = "election_not_closed"

	// ErrCodeNoTallies indicates an election without any aggregated tallies.
	ErrCodeNoTallies = "no_tallies"

	// ErrCodeBusy indicates a concurrent counting run holds the election lock.
	ErrCodeBusy = "busy"

	// ErrCodeAlreadyFinalized indicates a result version that is already final.
	ErrCodeAlreadyFinalized = "already_finalized"

	// ErrCodeInternalInconsistency indicates a counting engine self-check failure.
	ErrCodeInternalInconsistency = "internal_inconsistency"
)

// ErrorResponse represents the standard error response format.
// All API errors return JSON in this structure: {"error": {"code": "...", "message": "..."}}
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error code and human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes a standardized JSON error response.
// It writes the appropriate HTTP status code and returns a JSON error body.
//
// Format: {"error": {"code": "error_code", "message": "Error description"}}
//
// The error_code will be automatically logged by the logging middleware
// for all 4xx and 5xx responses if you call SetErrorCode on the context
// and pass the updated context to WriteError.
//
// Example:
//
//	ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeNotFound)
//	api.WriteError(w, ctx, http.StatusNotFound, api.ErrCodeNotFound, "Election not found")
func WriteError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	// Update the context in the response writer if supported (for logging middleware)
	middleware.UpdateResponseContext(w, ctx)

	errResp := ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	}

	data, err := json.Marshal(errResp)
	if err != nil {
		// Fallback to plain text if JSON marshaling fails
		slog.ErrorContext(ctx, "failed to marshal error response", "error", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}

// StatusCodeMapping returns the recommended HTTP status code for common error codes.
// This is a convenience function to map error codes to HTTP status codes.
func StatusCodeMapping(code string) int {
	switch code {
	case ErrCodeValidation, ErrCodeBadRequest,
		ErrCodeUnknownMethod, ErrCodeMethodMismatch,
		ErrCodeElectionNotClosed:
		return http.StatusBadRequest
	// An election without aggregated tallies is the empty-tally case of
	// invalid input, not a state conflict.
	case ErrCodeInvalidInput, ErrCodeNoTallies:
		return http.StatusUnprocessableEntity
	case ErrCodeAuthFailed:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeNotFound:
		return http.StatusNotFound
	// Busy signals a concurrent count holding the election lock; clients
	// retry against a 409 like they do for finalize races.
	case ErrCodeBusy, ErrCodeAlreadyFinalized:
		return http.StatusConflict
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeInternal, ErrCodeInternalInconsistency:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
