package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/uniwahl/zaehlwerk/internal/counting"
	"github.com/uniwahl/zaehlwerk/internal/election"
	"github.com/uniwahl/zaehlwerk/internal/middleware"
	"github.com/uniwahl/zaehlwerk/internal/result"
)

// CountingHandlers provides the counting endpoints: run a count, read result
// versions, and finalize one.
type CountingHandlers struct {
	service *counting.Service
	logger  *slog.Logger
}

// NewCountingHandlers creates a new counting handler.
func NewCountingHandlers(service *counting.Service, logger *slog.Logger) *CountingHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &CountingHandlers{service: service, logger: logger}
}

// ResultResponse is the JSON shape of one stored counting result.
type ResultResponse struct {
	ResultID     string          `json:"result_id"`
	ElectionID   string          `json:"election_id"`
	Version      int             `json:"version"`
	Algorithm    string          `json:"algorithm"`
	CountedAt    time.Time       `json:"counted_at"`
	Finalized    bool            `json:"finalized"`
	TiesDetected bool            `json:"ties_detected"`
	Result       json.RawMessage `json:"result"`
}

// FinalizeRequest is the JSON body for POST /counting/{id}/finalize.
type FinalizeRequest struct {
	Version int `json:"version"`
}

// SuccessResponse is the envelope for successful counting responses.
type SuccessResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

func resultResponse(rec *result.Record) ResultResponse {
	return ResultResponse{
		ResultID:     rec.ResultID,
		ElectionID:   rec.ElectionID,
		Version:      rec.Version,
		Algorithm:    rec.Algorithm,
		CountedAt:    rec.CountedAt,
		Finalized:    rec.Finalized,
		TiesDetected: rec.TiesDetected,
		Result:       rec.Data,
	}
}

// Handle dispatches /counting/{id}/count, /counting/{id}/results and
// /counting/{id}/finalize. Register it on the "/counting/" prefix.
func (h *CountingHandlers) Handle(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/counting/"), "/")
	if len(parts) != 2 || parts[0] == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
		return
	}
	electionID := parts[0]

	switch parts[1] {
	case "count":
		if r.Method != http.MethodPost {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
			WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
			return
		}
		h.count(w, r, electionID)
	case "results":
		if r.Method != http.MethodGet {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
			WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
			return
		}
		h.results(w, r, electionID)
	case "finalize":
		if r.Method != http.MethodPost {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
			WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
			return
		}
		h.finalize(w, r, electionID)
	default:
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
	}
}

func (h *CountingHandlers) actor(r *http.Request) counting.Actor {
	return counting.Actor{
		ID:   middleware.GetActorID(r.Context()),
		Role: middleware.GetActorRole(r.Context()),
	}
}

// count handles POST /counting/{id}/count.
func (h *CountingHandlers) count(w http.ResponseWriter, r *http.Request, electionID string) {
	rec, err := h.service.Count(r.Context(), electionID, h.actor(r))
	if err != nil {
		h.writeCountingError(w, r.Context(), err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(SuccessResponse{Success: true, Data: resultResponse(rec)}); err != nil {
		h.logger.Error("failed to encode counting response", slog.String("error", err.Error()))
	}
}

// results handles GET /counting/{id}/results. The optional version query
// parameter selects a historical version; the default is the latest.
func (h *CountingHandlers) results(w http.ResponseWriter, r *http.Request, electionID string) {
	version := 0
	if v := r.URL.Query().Get("version"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "version must be a positive integer")
			return
		}
		version = parsed
	}

	rec, err := h.service.GetResult(r.Context(), electionID, version)
	if err != nil {
		h.writeCountingError(w, r.Context(), err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(SuccessResponse{Success: true, Data: resultResponse(rec)}); err != nil {
		h.logger.Error("failed to encode results response", slog.String("error", err.Error()))
	}
}

// finalize handles POST /counting/{id}/finalize.
func (h *CountingHandlers) finalize(w http.ResponseWriter, r *http.Request, electionID string) {
	var req FinalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}
	if req.Version < 1 {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "version must be a positive integer")
		return
	}

	if err := h.service.Finalize(r.Context(), electionID, req.Version, h.actor(r)); err != nil {
		h.writeCountingError(w, r.Context(), err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	data := map[string]any{
		"election_id": electionID,
		"version":     req.Version,
		"finalized":   true,
	}
	if err := json.NewEncoder(w).Encode(SuccessResponse{Success: true, Data: data}); err != nil {
		h.logger.Error("failed to encode finalize response", slog.String("error", err.Error()))
	}
}

// writeCountingError maps service errors to API error codes.
func (h *CountingHandlers) writeCountingError(w http.ResponseWriter, ctx context.Context, err error) {
	var code string
	var message string

	switch {
	case errors.Is(err, election.ErrNotFound), errors.Is(err, result.ErrNotFound):
		code, message = ErrCodeNotFound, "The requested resource was not found"
	case errors.Is(err, counting.ErrElectionNotClosed):
		code, message = ErrCodeElectionNotClosed, "Election must be closed before counting"
	case errors.Is(err, election.ErrMethodMismatch):
		code, message = ErrCodeMethodMismatch, "Counting method does not fit the election type"
	case errors.Is(err, counting.ErrUnknownMethod):
		code, message = ErrCodeUnknownMethod, "Unknown counting method"
	case errors.Is(err, result.ErrNoTallies):
		code, message = ErrCodeNoTallies, "No tallies recorded for this election"
	case errors.Is(err, counting.ErrInvalidInput):
		code, message = ErrCodeInvalidInput, "Tallies or election parameters are invalid"
	case errors.Is(err, counting.ErrBusy), errors.Is(err, result.ErrBusy):
		code, message = ErrCodeBusy, "A counting run is already in progress for this election"
	case errors.Is(err, result.ErrAlreadyFinalized):
		code, message = ErrCodeAlreadyFinalized, "This result version is already finalized"
	case errors.Is(err, counting.ErrInternalInconsistency):
		code, message = ErrCodeInternalInconsistency, "Counting self-check failed, no result was stored"
	default:
		code, message = ErrCodeInternal, "Internal server error"
	}

	status := StatusCodeMapping(code)
	if status >= 500 {
		h.logger.Error("counting request failed",
			slog.String("error", err.Error()),
			slog.String("code", code))
	}
	ctx = middleware.SetErrorCode(ctx, code)
	WriteError(w, ctx, status, code, message)
}
