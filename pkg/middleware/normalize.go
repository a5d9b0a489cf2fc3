package middleware

import (
	"net/http"
	"strings"
)

// Normalize trims stray whitespace that some proxies leave around the path
// (e.g. "/api/sites/acme/settings%20") so routing and slug lookups see the
// real value, and restores the forwarded scheme and host.
func Normalize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p := r.URL.Path; strings.TrimSpace(p) != p {
			r.URL.Path = strings.TrimSpace(p)
			r.URL.RawPath = ""
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			r.URL.Scheme = proto
		}
		if host := r.Header.Get("X-Forwarded-Host"); host != "" {
			r.Host = host
		}
		next.ServeHTTP(w, r)
	})
}
