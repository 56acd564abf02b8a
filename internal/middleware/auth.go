package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/AnshRaj112/mystery-message-backend/internal/services"
	"github.com/AnshRaj112/mystery-message-backend/pkg/logger"
)

// SessionValidator resolves a session token to its identity.
type SessionValidator interface {
	Validate(ctx context.Context, token string) (*services.Identity, error)
}

type identityKey struct{}
type tokenKey struct{}

// RequireSession rejects requests without a valid session token and stores the
// caller's identity in the request context.
func RequireSession(sessions SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token := SessionToken(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "Not authenticated")
				return
			}

			id, err := sessions.Validate(ctx, token)
			if err != nil {
				if errors.Is(err, services.ErrSessionNotFound) {
					writeError(w, http.StatusUnauthorized, "Session expired or invalid")
					return
				}
				logger.Log(ctx).Error(ctx, "session lookup failed", zap.Error(err))
				writeError(w, http.StatusServiceUnavailable, "Service temporarily unavailable")
				return
			}

			ctx = context.WithValue(ctx, identityKey{}, *id)
			ctx = context.WithValue(ctx, tokenKey{}, token)
			ctx = logger.NewContext(ctx, logger.Log(ctx).With(zap.String("user_id", id.UserID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionToken reads a bearer token, falling back to the token query parameter
// that browsers use for WebSocket upgrades.
func SessionToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// IdentityFrom returns the identity set by RequireSession.
func IdentityFrom(ctx context.Context) (services.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(services.Identity)
	return id, ok
}

// TokenFrom returns the session token set by RequireSession.
func TokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}
