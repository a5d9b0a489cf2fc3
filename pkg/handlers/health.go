package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"site-settings-backend/pkg/utils"
)

// HealthChecker is satisfied by every database.Store.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler 健康检查处理器
type HealthHandler struct {
	backend HealthChecker
}

func NewHealthHandler(backend HealthChecker) *HealthHandler {
	return &HealthHandler{backend: backend}
}

// Health GET /health: liveness only, never touches the backend.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	utils.WriteOKResponse(w)
}

// Ready GET /health/ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.backend.HealthCheck(r.Context()); err != nil {
		slog.WarnContext(r.Context(), "readiness check failed", "error", err)
		utils.WriteErrorResponse(w, http.StatusServiceUnavailable, "Backend unavailable")
		return
	}
	utils.WriteOKResponse(w)
}
