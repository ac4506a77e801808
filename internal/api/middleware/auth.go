package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/example/ec-order-sync/internal/identity"
	"go.uber.org/zap"
)

// respondError writes a JSON error response
func respondError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// ExtractToken extracts the bearer token from cookie or Authorization header
func ExtractToken(r *http.Request) string {
	// Try cookie first (for browser)
	if cookie, err := r.Cookie("access_token"); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

type contextKey string

const (
	IdentityContextKey  contextKey = "identity"
	RequestIDContextKey contextKey = "request_id"
)

// VerifyMiddleware asks verifier about the caller's token and stores the
// verified identity in the request context. Anything but a valid answer is 401.
func VerifyMiddleware(verifier identity.Verifier, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractToken(r)
			if token == "" {
				respondError(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			v, err := verifier.Verify(r.Context(), token)
			if err != nil {
				logger.Warn("token verification failed",
					zap.String("request_id", GetRequestID(r.Context())),
					zap.Error(err),
				)
				respondError(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if !v.Valid {
				respondError(w, "invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), IdentityContextKey, v)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole checks if the verified caller has one of the required roles
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			v, ok := GetIdentity(r.Context())
			if !ok {
				respondError(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			for _, role := range roles {
				if v.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}

			respondError(w, "forbidden", http.StatusForbidden)
		})
	}
}

// GetIdentity retrieves the verified caller from the request context
func GetIdentity(ctx context.Context) (identity.Verification, bool) {
	v, ok := ctx.Value(IdentityContextKey).(identity.Verification)
	return v, ok && v.Valid
}

// GetUserID is a helper to get just the user ID from context
func GetUserID(ctx context.Context) string {
	v, ok := GetIdentity(ctx)
	if !ok {
		return ""
	}
	return v.UserID
}

// WithIdentity stores v in ctx. Used by tests and in-process verification.
func WithIdentity(ctx context.Context, v identity.Verification) context.Context {
	return context.WithValue(ctx, IdentityContextKey, v)
}
