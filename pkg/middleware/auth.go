package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/soukly/storefront-checkout/pkg/httputil"
)

type contextKey string

const (
	userIDContextKey      contextKey = "auth_user_id"
	bearerTokenContextKey contextKey = "auth_bearer_token"
)

// BearerAuth extracts the bearer token and the authenticated user ID from the
// incoming request and stores both in context. Token verification is owned by
// the upstream gateway; this subsystem only forwards the token to its
// collaborators and keys its caches by the user ID.
//
// Requests without a token or user ID are rejected with 401.
func BearerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			httputil.WriteJSON(w, http.StatusUnauthorized, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "UNAUTHORIZED", Message: "missing bearer token"},
			})
			return
		}

		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			httputil.WriteJSON(w, http.StatusUnauthorized, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "UNAUTHORIZED", Message: "missing user identity"},
			})
			return
		}

		ctx := context.WithValue(r.Context(), bearerTokenContextKey, token)
		ctx = context.WithValue(ctx, userIDContextKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserIDFromContext returns the authenticated user ID, or "".
func UserIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(userIDContextKey).(string); ok {
		return id
	}
	return ""
}

// BearerTokenFromContext returns the bearer token carried by the request, or "".
func BearerTokenFromContext(ctx context.Context) string {
	if token, ok := ctx.Value(bearerTokenContextKey).(string); ok {
		return token
	}
	return ""
}

// WithBearerToken returns a context carrying the given bearer token. Intended
// for tests and non-HTTP callers.
func WithBearerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, bearerTokenContextKey, token)
}
