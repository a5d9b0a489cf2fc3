package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"site-settings-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
)

// MembershipChecker reports whether a user belongs to a site.
type MembershipChecker interface {
	HasMembership(ctx context.Context, siteID, userID string) (bool, error)
}

// RequireSiteAccess 站点访问中间件. Must run after RequireAuth; the site id is
// read from the named URL parameter. Only the existence of a membership is
// checked, not its role.
func RequireSiteAccess(checker MembershipChecker, param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			siteID := chi.URLParam(r, param)
			identity, ok := IdentityFromContext(r.Context())
			if siteID == "" || !ok {
				utils.WriteBadRequestResponse(w, "Missing siteId or user")
				return
			}

			member, err := checker.HasMembership(r.Context(), siteID, identity.Sub)
			if err != nil {
				slog.ErrorContext(r.Context(), "membership lookup failed",
					"site_id", siteID, "user_id", identity.Sub, "error", err)
			}
			if err != nil || !member {
				utils.WriteForbiddenResponse(w, "No access to this site")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
