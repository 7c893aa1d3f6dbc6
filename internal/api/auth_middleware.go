package api

import (
	"net/http"
	"strings"

	"github.com/uniwahl/zaehlwerk/internal/auth"
	"github.com/uniwahl/zaehlwerk/internal/middleware"
)

// RequireRole returns middleware that rejects requests without a valid access
// token carrying one of the allowed roles. The authenticated actor is stored
// in the request context for handlers and the logging middleware.
func RequireRole(jwtService *auth.JWTService, roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
				WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Missing bearer token")
				return
			}

			claims, err := jwtService.ValidateToken(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
				WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Invalid or expired token")
				return
			}
			if claims.Type != auth.TokenTypeAccess {
				ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
				WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Access token required")
				return
			}

			if len(allowed) > 0 && !allowed[claims.Role] {
				ctx := middleware.SetActor(r.Context(), claims.Subject, claims.Role)
				ctx = middleware.SetErrorCode(ctx, ErrCodeForbidden)
				WriteError(w, ctx, http.StatusForbidden, ErrCodeForbidden, "Insufficient role")
				return
			}

			ctx := middleware.SetActor(r.Context(), claims.Subject, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
