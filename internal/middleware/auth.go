// Package middleware provides the HTTP middleware shared by the routes:
// query-token authentication and per-endpoint rate limiting.
package middleware

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/loom-ai/loom/internal/services/token"
	"github.com/loom-ai/loom/pkg/httpext"
)

type contextKey string

const userIDKey contextKey = "userID"

// UserID returns the authenticated user's id from the request context, or
// "" when the request carried no valid token.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// WithUserID returns a context carrying the given user id. Exported for
// handler tests.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// PopulateUser resolves the `token` query parameter into a user id on the
// request context but never rejects the request. WebSocket routes use it:
// their protocol reports missing auth as an in-band frame after the
// handshake, not as an HTTP status.
func PopulateUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tokenString := r.URL.Query().Get("token"); tokenString != "" {
			userID, err := token.Validate(tokenString)
			if err == nil {
				r = r.WithContext(WithUserID(r.Context(), userID))
			} else {
				log.Debug().Err(err).Msg("Ignoring invalid query token")
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequireQueryToken rejects requests whose `token` query parameter is
// missing or invalid. SSE and plain HTTP routes use it.
func RequireQueryToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.URL.Query().Get("token")
		if tokenString == "" {
			log.Warn().Str("path", r.URL.Path).Msg("Missing query token")
			httpext.JsonError(w, "Authentication required", http.StatusUnauthorized)
			return
		}

		userID, err := token.Validate(tokenString)
		if err != nil {
			log.Warn().Str("path", r.URL.Path).Msg("Invalid query token")
			httpext.JsonError(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}
