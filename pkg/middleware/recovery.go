package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"site-settings-backend/pkg/utils"
)

// Recovery 恢复中间件，处理panic并返回统一的错误信息
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logger.ErrorContext(r.Context(), "panic recovered",
					"panic", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)
				utils.WriteInternalServerErrorResponse(w, "Internal server error")
			}()

			next.ServeHTTP(w, r)
		})
	}
}
