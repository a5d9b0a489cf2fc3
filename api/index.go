package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"site-settings-backend/pkg/config"
	"site-settings-backend/pkg/logger"
	"site-settings-backend/pkg/server"
	"site-settings-backend/pkg/utils"
)

var (
	appMu sync.Mutex
	app   *server.App
)

// Handler 是Vercel函数的入口点
// 所有API端点集中在一个Chi路由器中, built on the first successful invocation
// and reused while the instance stays warm.
func Handler(w http.ResponseWriter, r *http.Request) {
	current, err := loadApp(context.WithoutCancel(r.Context()))
	if err != nil {
		slog.ErrorContext(r.Context(), "backend not configured", "error", err)
		utils.WriteInternalServerErrorResponse(w, "Internal server error")
		return
	}

	current.Handler.ServeHTTP(w, r)
}

// loadApp returns the cached app, building it if needed. Failed builds are
// not cached, so a corrected environment is picked up by the next request.
func loadApp(ctx context.Context) (*server.App, error) {
	appMu.Lock()
	defer appMu.Unlock()

	if app != nil {
		return app, nil
	}
	built, err := buildApp(ctx)
	if err != nil {
		return nil, err
	}
	app = built
	return app, nil
}

var buildApp = func(ctx context.Context) (*server.App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	log := logger.New(cfg.Environment, cfg.LogLevel)
	slog.SetDefault(log)

	return server.Build(ctx, cfg, log)
}
