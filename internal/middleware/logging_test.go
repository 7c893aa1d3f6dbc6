package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type accessLogLine struct {
	Level     string `json:"level"`
	Msg       string `json:"msg"`
	Method    string `json:"method"`
	Path      string `json:"path"`
	Status    int    `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
	Size      int    `json:"size"`
	RequestID string `json:"request_id"`
	ActorID   string `json:"actor_id"`
	ActorRole string `json:"actor_role"`
	ErrorCode string `json:"error_code"`
}

// logOneRequest sends req through the logging middleware wrapped around
// handler and returns the parsed access log line.
func logOneRequest(t *testing.T, handler http.HandlerFunc, req *http.Request) accessLogLine {
	t.Helper()

	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	Logging(logger)(handler).ServeHTTP(httptest.NewRecorder(), req)

	var entry accessLogLine
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v, log: %s", err, buf.String())
	}
	return entry
}

func TestLogging_BasicFields(t *testing.T) {
	body := `{"entries":[]}`
	entry := logOneRequest(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(body))
	}, httptest.NewRequest(http.MethodGet, "/audit/logs", nil))

	if entry.Method != "GET" {
		t.Errorf("method = %q, want GET", entry.Method)
	}
	if entry.Path != "/audit/logs" {
		t.Errorf("path = %q, want /audit/logs", entry.Path)
	}
	if entry.Status != 200 {
		t.Errorf("status = %d, want 200", entry.Status)
	}
	if entry.Level != "INFO" {
		t.Errorf("level = %q, want INFO", entry.Level)
	}
	if entry.LatencyMS < 0 {
		t.Errorf("latency_ms = %d, want >= 0", entry.LatencyMS)
	}
	if entry.Size != len(body) {
		t.Errorf("size = %d, want %d", entry.Size, len(body))
	}
}

// An unset status must be logged as the implicit 200 net/http sends.
func TestLogging_ImplicitStatus(t *testing.T) {
	entry := logOneRequest(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}, httptest.NewRequest(http.MethodGet, "/health", nil))

	if entry.Status != 200 {
		t.Errorf("status = %d, want 200", entry.Status)
	}
}

func TestLogging_LevelTracksStatus(t *testing.T) {
	tests := []struct {
		status    int
		errorCode string
		wantLevel string
	}{
		{http.StatusBadRequest, "validation_error", "WARN"},
		{http.StatusConflict, "already_finalized", "WARN"},
		{http.StatusInternalServerError, "internal_error", "ERROR"},
	}

	for _, tt := range tests {
		entry := logOneRequest(t, func(w http.ResponseWriter, r *http.Request) {
			*r = *r.WithContext(SetErrorCode(r.Context(), tt.errorCode))
			w.WriteHeader(tt.status)
		}, httptest.NewRequest(http.MethodPost, "/counting/sp-2026/finalize", nil))

		if entry.Level != tt.wantLevel {
			t.Errorf("status %d: level = %q, want %q", tt.status, entry.Level, tt.wantLevel)
		}
		if entry.ErrorCode != tt.errorCode {
			t.Errorf("status %d: error_code = %q, want %q", tt.status, entry.ErrorCode, tt.errorCode)
		}
	}
}

func TestLogging_ActorFromContext(t *testing.T) {
	entry := logOneRequest(t, func(w http.ResponseWriter, r *http.Request) {
		// The auth middleware normally sets this after token validation.
		*r = *r.WithContext(SetActor(r.Context(), "wahlleitung", "admin"))
		w.WriteHeader(http.StatusOK)
	}, httptest.NewRequest(http.MethodGet, "/counting/sp-2026/results", nil))

	if entry.ActorID != "wahlleitung" {
		t.Errorf("actor_id = %q, want wahlleitung", entry.ActorID)
	}
	if entry.ActorRole != "admin" {
		t.Errorf("actor_role = %q, want admin", entry.ActorRole)
	}
}

func TestLogging_FullyAnnotatedRequest(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	body := `{"error":"forbidden"}`
	handler := RequestID(Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := SetActor(r.Context(), "fsr-physik-wahl", "committee")
		ctx = SetErrorCode(ctx, "forbidden")
		*r = *r.WithContext(ctx)
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(body))
	})))

	req := httptest.NewRequest(http.MethodPost, "/counting/sp-2026/finalize", nil)
	req.Header.Set(RequestIDHeader, "gw-7c2f1a")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var entry accessLogLine
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v", err)
	}

	if entry.Method != "POST" || entry.Path != "/counting/sp-2026/finalize" {
		t.Errorf("method/path = %q %q", entry.Method, entry.Path)
	}
	if entry.Status != 403 {
		t.Errorf("status = %d, want 403", entry.Status)
	}
	if entry.RequestID != "gw-7c2f1a" {
		t.Errorf("request_id = %q, want gw-7c2f1a", entry.RequestID)
	}
	if entry.ActorID != "fsr-physik-wahl" || entry.ActorRole != "committee" {
		t.Errorf("actor = %q/%q, want fsr-physik-wahl/committee", entry.ActorID, entry.ActorRole)
	}
	if entry.ErrorCode != "forbidden" {
		t.Errorf("error_code = %q, want forbidden", entry.ErrorCode)
	}
	if entry.Size != len(body) {
		t.Errorf("size = %d, want %d", entry.Size, len(body))
	}
}

// A stale error code in the context must not leak into the log line when the
// handler ends up succeeding.
func TestLogging_NoErrorCodeOnSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	handler := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*r = *r.WithContext(SetErrorCode(r.Context(), "not_found"))
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/counting/sp-2026", nil))

	if strings.Contains(buf.String(), "error_code") {
		t.Error("error_code logged for a 2xx response")
	}
}

func TestNewLogger(t *testing.T) {
	for _, env := range []string{"production", "development"} {
		if NewLogger(env) == nil {
			t.Errorf("NewLogger(%q) returned nil", env)
		}
	}
}

func TestActorContextRoundTrip(t *testing.T) {
	ctx := context.Background()

	if id, role := GetActorID(ctx), GetActorRole(ctx); id != "" || role != "" {
		t.Errorf("empty context returned actor %q/%q", id, role)
	}

	ctx = SetActor(ctx, "wahlleitung", "admin")
	if id := GetActorID(ctx); id != "wahlleitung" {
		t.Errorf("GetActorID = %q, want wahlleitung", id)
	}
	if role := GetActorRole(ctx); role != "admin" {
		t.Errorf("GetActorRole = %q, want admin", role)
	}
}

func TestErrorCodeContextRoundTrip(t *testing.T) {
	ctx := context.Background()

	if code := GetErrorCode(ctx); code != "" {
		t.Errorf("empty context returned error code %q", code)
	}
	if code := GetErrorCode(SetErrorCode(ctx, "no_tallies")); code != "no_tallies" {
		t.Errorf("GetErrorCode = %q, want no_tallies", code)
	}
}

func TestResponseWriter_CapturesStatusAndSize(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newResponseWriter(rec)

	rw.WriteHeader(http.StatusCreated)
	data := []byte(`{"result_id":"b1c2"}`)
	n, err := rw.Write(data)

	if err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	if n != len(data) {
		t.Errorf("Write() = %d, want %d", n, len(data))
	}
	if rw.statusCode != http.StatusCreated {
		t.Errorf("statusCode = %d, want 201", rw.statusCode)
	}
	if rw.size != len(data) {
		t.Errorf("size = %d, want %d", rw.size, len(data))
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("underlying recorder code = %d, want 201", rec.Code)
	}
}
