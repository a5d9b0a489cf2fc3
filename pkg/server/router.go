// Package server 组装路由: every dependency is passed in explicitly so the
// long-running process and the serverless entrypoint share one router.
package server

import (
	"fmt"
	"log/slog"
	"net/http"

	"site-settings-backend/pkg/config"
	"site-settings-backend/pkg/database"
	"site-settings-backend/pkg/handlers"
	customMiddleware "site-settings-backend/pkg/middleware"
	"site-settings-backend/pkg/settings"
	"site-settings-backend/pkg/supabase"
	"site-settings-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Deps is everything the router needs.
type Deps struct {
	Config   *config.Config
	Logger   *slog.Logger
	Store    database.Store
	Resolver customMiddleware.TokenResolver
	Sender   handlers.MagicLinkSender

	// MagicLinkLimiter is built from Config when nil; with a zero rate
	// configured the magic-link endpoint is not limited.
	MagicLinkLimiter *customMiddleware.IPRateLimiter
}

// NewResolver 根据AUTH_VERIFIER选择令牌解析方式
func NewResolver(cfg *config.Config, client *supabase.Client) customMiddleware.TokenResolver {
	if cfg.AuthVerifier == config.VerifierJWT {
		return utils.NewJWTService(cfg.SupabaseJWTSecret)
	}
	return customMiddleware.NewSupabaseResolver(client)
}

// NewRouter builds the chi router with global middleware and all routes.
func NewRouter(deps Deps) (http.Handler, error) {
	if deps.Config == nil || deps.Store == nil || deps.Resolver == nil || deps.Sender == nil {
		return nil, fmt.Errorf("server: config, store, resolver and sender are required")
	}
	mergeMode, err := settings.ParseMergeMode(deps.Config.SettingsMergeMode)
	if err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.MagicLinkLimiter == nil && deps.Config.MagicLinkRatePerMinute > 0 {
		deps.MagicLinkLimiter = customMiddleware.NewIPRateLimiter(
			deps.Config.MagicLinkRatePerMinute, deps.Config.MagicLinkRateBurst)
	}

	router := chi.NewRouter()
	setupMiddleware(router, deps)
	setupRoutes(router, deps, mergeMode)
	return router, nil
}

// setupMiddleware 设置全局中间件
func setupMiddleware(router *chi.Mux, deps Deps) {
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(customMiddleware.Normalize)
	router.Use(customMiddleware.Logger(deps.Logger))
	router.Use(customMiddleware.Recovery(deps.Logger))
	router.Use(customMiddleware.CORS(deps.Config.AllowedOrigins))

	// 开发环境额外中间件
	if deps.Config.IsDevelopment() {
		router.Use(middleware.Heartbeat("/ping"))
	}
}

// setupRoutes 设置所有API路由
func setupRoutes(router *chi.Mux, deps Deps, mergeMode settings.MergeMode) {
	authHandler := handlers.NewAuthHandler(deps.Sender, deps.Config.MagicLinkRedirectURL)
	sitesHandler := handlers.NewSitesHandler(deps.Store, mergeMode)
	healthHandler := handlers.NewHealthHandler(deps.Store)

	requireAuth := customMiddleware.RequireAuth(deps.Resolver)

	// 404/405处理, registered first so mounted sub-routers inherit them
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteNotFoundResponse(w, "Route not found")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	// 健康检查端点
	router.Get("/health", healthHandler.Health)
	router.Get("/health/ready", healthHandler.Ready)

	router.Route("/api", func(r chi.Router) {
		r.Use(customMiddleware.MaxBodySize(customMiddleware.DefaultMaxBodyBytes))

		// 公开路由
		var magicLinkLimits []func(http.Handler) http.Handler
		if deps.MagicLinkLimiter != nil {
			magicLinkLimits = append(magicLinkLimits, customMiddleware.RateLimitByIP(deps.MagicLinkLimiter))
		}
		r.With(magicLinkLimits...).Post("/auth/magic-link", authHandler.SendMagicLink)

		r.With(requireAuth).Get("/me/sites", sitesHandler.ListMySites)

		r.Route("/sites/{"+handlers.SiteParam+"}/settings", func(r chi.Router) {
			r.Get("/", sitesHandler.GetPublicSettings)
			r.With(
				requireAuth,
				customMiddleware.RequireSiteAccess(deps.Store, handlers.SiteParam),
			).Patch("/", sitesHandler.PatchSettings)
		})
	})
}
