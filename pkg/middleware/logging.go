package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

type logFieldsKey struct{}

// logFields collects values learned deeper in the chain (the caller's
// identity) so the access log line written on the way out can include them.
type logFields struct {
	userID string
}

func annotateUser(ctx context.Context, userID string) {
	if f, ok := ctx.Value(logFieldsKey{}).(*logFields); ok {
		f.userID = userID
	}
}

// Logger 请求日志中间件
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			fields := &logFields{}
			reqID := middleware.GetReqID(r.Context())
			if reqID != "" {
				w.Header().Set("X-Request-Id", reqID)
			}
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), logFieldsKey{}, fields)))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"duration", time.Since(start),
				"bytes", ww.BytesWritten(),
				"ip", r.RemoteAddr,
			}
			if reqID != "" {
				attrs = append(attrs, "request_id", reqID)
			}
			if fields.userID != "" {
				attrs = append(attrs, "user_id", fields.userID)
			}

			level := slog.LevelInfo
			switch {
			case status >= 500:
				level = slog.LevelError
			case status >= 400:
				level = slog.LevelWarn
			}
			logger.Log(r.Context(), level, "request", attrs...)
		})
	}
}
