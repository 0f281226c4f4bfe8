package httpserver

import (
	"context"
	"net/http"
	"strings"

	"github.com/TIGERVENENO/persona-feedback-engine/internal/adapter/security"
)

type userIDKey struct{}

// UserIDFromContext returns the authenticated user's id, or "" if the
// request reached this point without passing through RequireAuth
// (which should never happen on a protected route).
func UserIDFromContext(ctx context.Context) string {
	if v := ctx.Value(userIDKey{}); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// RequireAuth enforces a Bearer JWT issued by /auth/login or
// /auth/register and injects the validated subject (user id) into the
// request context (§6 "Auth: Bearer JWT").
func RequireAuth(tm *security.TokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := strings.TrimSpace(r.Header.Get("Authorization"))
			if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				writeError(w, r, errUnauthorized)
				return
			}
			token := strings.TrimSpace(authz[len("Bearer "):])
			userID, err := tm.Validate(token)
			if err != nil || userID == "" {
				writeError(w, r, errUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), userIDKey{}, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
