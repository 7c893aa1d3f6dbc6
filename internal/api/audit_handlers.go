package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/uniwahl/zaehlwerk/internal/audit"
	"github.com/uniwahl/zaehlwerk/internal/counting"
	"github.com/uniwahl/zaehlwerk/internal/middleware"
)

const defaultLogLimit = 100

// AuditHandlers exposes the audit log and the on-demand chain verifiers.
type AuditHandlers struct {
	chain   audit.Chain
	ballots audit.BallotChains
	genesis string
	metrics *counting.Metrics
	logger  *slog.Logger
}

// AuditHandlersConfig holds dependencies for the audit endpoints.
type AuditHandlersConfig struct {
	Chain       audit.Chain
	BallotChain audit.BallotChains
	Genesis     string
	Metrics     *counting.Metrics
	Logger      *slog.Logger
}

// NewAuditHandlers creates a new audit handler.
func NewAuditHandlers(cfg AuditHandlersConfig) *AuditHandlers {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	genesis := cfg.Genesis
	if genesis == "" {
		genesis = audit.GenesisHash
	}
	return &AuditHandlers{
		chain:   cfg.Chain,
		ballots: cfg.BallotChain,
		genesis: genesis,
		metrics: cfg.Metrics,
		logger:  logger,
	}
}

// Logs handles GET /audit/logs. With from/to query parameters it returns that
// id range in ascending order; otherwise the newest entries first, capped by
// limit. The body is a plain JSON array of entries; the current chain tip is
// exposed in the X-Audit-Tip-Id and X-Audit-Tip-Hash headers.
func (h *AuditHandlers) Logs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	query := r.URL.Query()
	var entries []*audit.Entry
	var err error

	if query.Get("from") != "" || query.Get("to") != "" {
		from, to, perr := parseRange(query.Get("from"), query.Get("to"))
		if perr != nil {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, perr.Error())
			return
		}
		entries, err = h.chain.Range(r.Context(), from, to)
	} else {
		limit := defaultLogLimit
		if v := query.Get("limit"); v != "" {
			parsed, perr := strconv.Atoi(v)
			if perr != nil || parsed < 1 {
				ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
				WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "limit must be a positive integer")
				return
			}
			limit = parsed
		}
		entries, err = h.chain.List(r.Context(), limit)
	}
	if err != nil {
		if errors.Is(err, audit.ErrInvalidRange) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "from and to must satisfy 1 <= from <= to")
			return
		}
		h.logger.Error("failed to read audit log", slog.String("error", err.Error()))
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
		return
	}

	tipID, tipHash, err := h.chain.Tip(r.Context())
	if err != nil {
		h.logger.Error("failed to read audit chain tip", slog.String("error", err.Error()))
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
		return
	}

	if entries == nil {
		entries = []*audit.Entry{}
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Audit-Tip-Id", strconv.FormatInt(tipID, 10))
	w.Header().Set("X-Audit-Tip-Hash", tipHash)
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(entries); err != nil {
		h.logger.Error("failed to encode audit log response", slog.String("error", err.Error()))
	}
}

// VerifyResponse is the JSON shape of GET /audit/verify.
type VerifyResponse struct {
	Valid      bool   `json:"valid"`
	FirstBreak *int64 `json:"first_break,omitempty"`
	Checked    int    `json:"checked"`
	From       int64  `json:"from"`
	To         int64  `json:"to"`
}

// Verify handles GET /audit/verify. Without query parameters the whole chain
// is checked. The verification run itself is recorded in the chain.
func (h *AuditHandlers) Verify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	tipID, _, err := h.chain.Tip(r.Context())
	if err != nil {
		h.logger.Error("failed to read audit chain tip", slog.String("error", err.Error()))
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
		return
	}

	query := r.URL.Query()
	from, to := int64(1), tipID
	if query.Get("from") != "" || query.Get("to") != "" {
		from, to, err = parseRange(query.Get("from"), query.Get("to"))
		if err != nil {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
			return
		}
	}

	resp := VerifyResponse{Valid: true, From: from, To: to}
	if tipID > 0 {
		report, err := audit.VerifyRange(r.Context(), h.chain, h.genesis, from, to)
		if err != nil {
			if errors.Is(err, audit.ErrInvalidRange) {
				ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
				WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "from and to must satisfy 1 <= from <= to")
				return
			}
			h.logger.Error("audit chain verification failed to run", slog.String("error", err.Error()))
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
			WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
			return
		}
		resp.Valid = report.Valid
		resp.FirstBreak = report.FirstBreak
		resp.Checked = report.Checked
	}

	if !resp.Valid {
		h.logger.Error("audit chain verification found a broken link",
			slog.Int64("first_break", *resp.FirstBreak),
			slog.Int64("from", from),
			slog.Int64("to", to))
		if h.metrics != nil {
			h.metrics.IncVerifyFailures("audit")
		}
	}

	h.recordVerification(r, map[string]any{
		"chain":   "audit",
		"from":    from,
		"to":      to,
		"valid":   resp.Valid,
		"checked": resp.Checked,
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode verification response", slog.String("error", err.Error()))
	}
}

// VerifyBallots handles GET /audit/verify-ballots and checks every
// per-election ballot chain.
func (h *AuditHandlers) VerifyBallots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	report, err := audit.VerifyBallotChains(r.Context(), h.ballots, h.genesis)
	if err != nil {
		h.logger.Error("ballot chain verification failed to run", slog.String("error", err.Error()))
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
		return
	}

	if !report.Valid {
		h.logger.Error("ballot chain verification found broken links",
			slog.Int("errors", len(report.Errors)),
			slog.Int("elections_checked", report.ElectionsChecked))
		if h.metrics != nil {
			h.metrics.IncVerifyFailures("ballot")
		}
	}

	h.recordVerification(r, map[string]any{
		"chain":             "ballot",
		"valid":             report.Valid,
		"total_ballots":     report.TotalBallots,
		"elections_checked": report.ElectionsChecked,
		"errors":            len(report.Errors),
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(report); err != nil {
		h.logger.Error("failed to encode ballot verification response", slog.String("error", err.Error()))
	}
}

// recordVerification appends an AUDIT_VERIFIED entry for the run. A failed
// append does not fail the request; verification is read-only for the caller.
func (h *AuditHandlers) recordVerification(r *http.Request, details map[string]any) {
	entry := audit.NewEntry{
		ActionType: audit.ActionAuditVerified,
		Level:      audit.LevelInfo,
		ActorID:    middleware.GetActorID(r.Context()),
		ActorRole:  middleware.GetActorRole(r.Context()),
		Details:    details,
	}
	if _, err := h.chain.Append(r.Context(), entry); err != nil {
		h.logger.Error("failed to record verification in audit chain",
			slog.String("error", err.Error()))
		return
	}
	if h.metrics != nil {
		h.metrics.IncAuditEntries(string(audit.ActionAuditVerified))
	}
}

func parseRange(fromStr, toStr string) (int64, int64, error) {
	from, err := strconv.ParseInt(fromStr, 10, 64)
	if err != nil {
		return 0, 0, errors.New("from must be a positive integer")
	}
	to, err := strconv.ParseInt(toStr, 10, 64)
	if err != nil {
		return 0, 0, errors.New("to must be a positive integer")
	}
	if from < 1 || to < from {
		return 0, 0, errors.New("from and to must satisfy 1 <= from <= to")
	}
	return from, to, nil
}
