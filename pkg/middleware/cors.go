package middleware

import (
	"net/http"
	"strings"

	"site-settings-backend/pkg/utils"

	"github.com/go-chi/cors"
)

// CORS 创建CORS中间件. Requests without an Origin header (curl, server to
// server) pass through; a browser origin outside allowedOrigins is refused
// with 403 before reaching any route.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := func(_ *http.Request, origin string) bool {
		return isOriginAllowed(origin, allowedOrigins)
	}

	corsHandler := cors.Handler(cors.Options{
		AllowOriginFunc: allowed,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPatch,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-Requested-With",
		},
		ExposedHeaders: []string{"Retry-After", "X-Request-Id"},
		MaxAge:         300, // 5分钟
	})

	return func(next http.Handler) http.Handler {
		withCORS := corsHandler(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && !allowed(r, origin) {
				utils.WriteForbiddenResponse(w, "Not allowed by CORS")
				return
			}
			withCORS.ServeHTTP(w, r)
		})
	}
}

// isOriginAllowed 检查来源是否被允许
func isOriginAllowed(origin string, allowedOrigins []string) bool {
	origin = strings.TrimRight(origin, "/")
	for _, allowed := range allowedOrigins {
		switch {
		case allowed == "*":
			return true
		case allowed == origin:
			return true
		// 简单的通配符支持: "https://*.example.com"
		case strings.Contains(allowed, "*"):
			prefix, suffix, _ := strings.Cut(allowed, "*")
			if len(origin) > len(prefix)+len(suffix) &&
				strings.HasPrefix(origin, prefix) && strings.HasSuffix(origin, suffix) {
				return true
			}
		}
	}
	return false
}
