package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Abdillah-Ali/biz-compas/internal/token"
)

type contextKey string

const userIDContextKey contextKey = "userID"
const userEmailContextKey contextKey = "userEmail"

// TokenParser verifies bearer tokens.
type TokenParser interface {
	Parse(raw string) (*token.Claims, error)
}

// AuthMiddleware requires a valid bearer token and injects the caller's user ID
// into the request context.
func AuthMiddleware(parser TokenParser, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
			if authHeader == "" {
				writeJSON(w, http.StatusUnauthorized, messageResponse{Message: "No token, authorization denied"})
				return
			}
			raw, ok := bearerToken(authHeader)
			if !ok {
				writeJSON(w, http.StatusUnauthorized, messageResponse{Message: "Token is not valid"})
				return
			}
			claims, err := parser.Parse(raw)
			if err != nil {
				logger.Debug("bearer token rejected", "component", "api", "path", r.URL.Path, "err", err)
				writeJSON(w, http.StatusUnauthorized, messageResponse{Message: "Token is not valid"})
				return
			}

			ctx := WithUserID(r.Context(), claims.UserID)
			if claims.Email != "" {
				ctx = context.WithValue(ctx, userEmailContextKey, claims.Email)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithUserID stores the authenticated user ID on ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// UserIDFromContext returns the authenticated user ID, if any.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	return userID, ok && userID != ""
}

// UserEmailFromContext returns the email claim of the bearer token, if present.
func UserEmailFromContext(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(userEmailContextKey).(string)
	return email, ok && email != ""
}

func bearerToken(authHeader string) (string, bool) {
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}

	raw := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if raw == "" {
		return "", false
	}

	return raw, true
}
