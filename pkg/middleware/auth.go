package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"site-settings-backend/pkg/models"
	"site-settings-backend/pkg/utils"
)

// ContextKey 用于在context中存储用户信息的键
type ContextKey string

const (
	IdentityContextKey ContextKey = "identity"
)

// TokenResolver turns a bearer token into the caller's identity. The
// Supabase-delegating resolver and utils.JWTService both satisfy it.
type TokenResolver interface {
	ResolveToken(ctx context.Context, token string) (*models.Identity, error)
}

// RequireAuth 认证中间件: rejects with 401 unless the Authorization header
// resolves to an identity, which is then stored in the request context.
func RequireAuth(resolver TokenResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				utils.WriteUnauthorizedResponse(w, "Missing Authorization header")
				return
			}

			// a header without the prefix is passed through as the token itself
			token := strings.Replace(authHeader, "Bearer ", "", 1)

			identity, err := resolver.ResolveToken(r.Context(), token)
			if err != nil || identity == nil || identity.Sub == "" {
				attrs := []any{"path", r.URL.Path}
				if err != nil {
					attrs = append(attrs, "error", err)
				}
				slog.WarnContext(r.Context(), "token resolution failed", attrs...)
				utils.WriteUnauthorizedResponse(w, "Invalid token")
				return
			}

			annotateUser(r.Context(), identity.Sub)
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// WithIdentity returns a copy of ctx carrying identity.
func WithIdentity(ctx context.Context, identity *models.Identity) context.Context {
	return context.WithValue(ctx, IdentityContextKey, identity)
}

// IdentityFromContext 从context中获取用户身份
func IdentityFromContext(ctx context.Context) (*models.Identity, bool) {
	identity, ok := ctx.Value(IdentityContextKey).(*models.Identity)
	return identity, ok && identity != nil
}
