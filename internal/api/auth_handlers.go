package api

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/uniwahl/zaehlwerk/internal/auth"
	"github.com/uniwahl/zaehlwerk/internal/middleware"
)

// AuthHandlers provides the login endpoint for election administrators.
type AuthHandlers struct {
	jwtService    *auth.JWTService
	adminPassword []byte
	logger        *slog.Logger
}

// NewAuthHandlers creates a new auth handler.
func NewAuthHandlers(jwtService *auth.JWTService, adminPassword string, logger *slog.Logger) *AuthHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandlers{
		jwtService:    jwtService,
		adminPassword: []byte(adminPassword),
		logger:        logger,
	}
}

// LoginRequest is the JSON body for POST /auth/login.
type LoginRequest struct {
	Password string `json:"password"`
}

// LoginResponse is the JSON response for a successful login.
type LoginResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	ExpiresIn int    `json:"expires_in"`
	Role      string `json:"role"`
}

// Login handles POST /auth/login - exchanges the admin password for a JWT.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	if subtle.ConstantTimeCompare([]byte(req.Password), h.adminPassword) != 1 {
		h.logger.Warn("failed admin login attempt",
			slog.String("request_id", middleware.GetRequestID(r.Context())))
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Invalid credentials")
		return
	}

	token, err := h.jwtService.GenerateAccessToken("wahlleitung", auth.RoleAdmin)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to issue token")
		return
	}

	resp := LoginResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresIn: int(auth.AccessTokenExpiry.Seconds()),
		Role:      auth.RoleAdmin,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode login response", slog.String("error", err.Error()))
	}
}
