// Package auth — middleware.go provides HTTP middleware that extracts and
// verifies the Bearer token from the Authorization header and injects the
// authenticated identity into the request context for downstream handlers.
package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/boreal-chat/boreal/internal/api/apiutil"
	"github.com/boreal-chat/boreal/internal/corerr"
	"github.com/boreal-chat/boreal/internal/federation"
)

type contextKey string

const (
	// ContextKeyUserID is the context key for the authenticated user's ID.
	ContextKeyUserID contextKey = "user_id"
	// ContextKeyUsername is the context key for the authenticated username.
	ContextKeyUsername contextKey = "username"
)

// UserIDFromContext retrieves the authenticated user ID from the request
// context. Returns empty string if no user is authenticated.
func UserIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ContextKeyUserID).(string)
	return v
}

// UsernameFromContext retrieves the authenticated username from the request
// context. Returns empty string if not present.
func UsernameFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ContextKeyUsername).(string)
	return v
}

// RequireAuth returns middleware that verifies the Bearer token and injects
// the authenticated identity into the request context. Requests without a
// valid token receive a 401 response.
func RequireAuth(verifier *federation.Verifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearerToken(r)
			if token == "" {
				apiutil.WriteCoreError(w, logger, corerr.Unauthorized("missing bearer token"))
				return
			}

			result, err := verifier.Verify(r.Context(), token)
			if err != nil {
				apiutil.WriteCoreError(w, logger, err)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyUserID, result.UserID)
			ctx = context.WithValue(ctx, ContextKeyUsername, result.Username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth returns middleware that verifies a Bearer token if present
// but lets the request through unauthenticated otherwise.
func OptionalAuth(verifier *federation.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			if result, err := verifier.Verify(r.Context(), token); err == nil {
				ctx := context.WithValue(r.Context(), ContextKeyUserID, result.UserID)
				ctx = context.WithValue(ctx, ContextKeyUsername, result.Username)
				r = r.WithContext(ctx)
			}

			next.ServeHTTP(w, r)
		})
	}
}

// extractBearerToken extracts the token from "Authorization: Bearer <token>".
func extractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
