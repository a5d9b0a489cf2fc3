package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"site-settings-backend/pkg/database"
	"site-settings-backend/pkg/middleware"
	"site-settings-backend/pkg/models"
	"site-settings-backend/pkg/settings"
	"site-settings-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
)

// SiteParam names the URL parameter of /api/sites/{site}/settings. It carries
// the public slug on GET and the site id on PATCH.
const SiteParam = "site"

// SitesResponse GET /api/me/sites
type SitesResponse struct {
	Sites []models.Site `json:"sites"`
}

// PublicSettingsResponse GET /api/sites/{site}/settings
type PublicSettingsResponse struct {
	Site     models.Site    `json:"site"`
	Settings map[string]any `json:"settings"`
}

// SettingsResponse PATCH /api/sites/{site}/settings
type SettingsResponse struct {
	Settings map[string]any `json:"settings"`
}

// SitesHandler 站点处理器
type SitesHandler struct {
	store     database.Store
	mergeMode settings.MergeMode
}

// NewSitesHandler 创建站点处理器
func NewSitesHandler(store database.Store, mergeMode settings.MergeMode) *SitesHandler {
	return &SitesHandler{store: store, mergeMode: mergeMode}
}

// ListMySites GET /api/me/sites
func (h *SitesHandler) ListMySites(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		utils.WriteUnauthorizedResponse(w, "Invalid token")
		return
	}

	sites, err := h.store.ListUserSites(r.Context(), identity.Sub)
	if err != nil {
		slog.ErrorContext(r.Context(), "list user sites failed", "user_id", identity.Sub, "error", err)
		utils.WriteInternalServerErrorResponse(w, "Could not load sites")
		return
	}
	if sites == nil {
		sites = []models.Site{}
	}

	utils.WriteSuccessResponse(w, SitesResponse{Sites: sites})
}

// GetPublicSettings GET /api/sites/{site}/settings, site being the slug
func (h *SitesHandler) GetPublicSettings(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, SiteParam)

	site, err := h.store.GetSiteBySlug(r.Context(), slug)
	switch {
	case errors.Is(err, database.ErrNotFound):
		utils.WriteNotFoundResponse(w, "Site not found")
		return
	case err != nil:
		slog.ErrorContext(r.Context(), "get site by slug failed", "slug", slug, "error", err)
		utils.WriteInternalServerErrorResponse(w, "Could not load site settings")
		return
	}

	row, err := h.store.GetSiteSettings(r.Context(), site.ID)
	switch {
	case errors.Is(err, database.ErrNotFound):
		utils.WriteNotFoundResponse(w, "Settings not found")
		return
	case err != nil:
		slog.ErrorContext(r.Context(), "get site settings failed", "site_id", site.ID, "error", err)
		utils.WriteInternalServerErrorResponse(w, "Could not load site settings")
		return
	}

	utils.WriteSuccessResponse(w, PublicSettingsResponse{Site: *site, Settings: row.Settings})
}

// PatchSettings PATCH /api/sites/{site}/settings, site being the id
func (h *SitesHandler) PatchSettings(w http.ResponseWriter, r *http.Request) {
	siteID := chi.URLParam(r, SiteParam)

	// a non-JSON body is treated as an invalid payload, after auth has run
	body, err := utils.ReadJSONBody(r)
	if errors.Is(err, utils.ErrBodyTooLarge) {
		utils.WriteBodyTooLargeResponse(w)
		return
	}
	if err != nil {
		utils.WriteBadRequestResponse(w, "Invalid settings payload")
		return
	}

	patch, err := settings.Decode(body)
	if err != nil {
		slog.DebugContext(r.Context(), "rejected settings payload", "site_id", siteID, "error", err)
		utils.WriteBadRequestResponse(w, "Invalid settings payload")
		return
	}

	merged, err := h.store.MergeSiteSettings(r.Context(), siteID, patch, h.mergeMode)
	switch {
	case errors.Is(err, database.ErrNotFound):
		utils.WriteNotFoundResponse(w, "Settings not found")
		return
	case errors.Is(err, database.ErrConflict):
		utils.WriteErrorResponse(w, http.StatusConflict, "Settings were modified concurrently")
		return
	case err != nil:
		slog.ErrorContext(r.Context(), "update site settings failed", "site_id", siteID, "error", err)
		utils.WriteInternalServerErrorResponse(w, "Could not update settings")
		return
	}

	utils.WriteSuccessResponse(w, SettingsResponse{Settings: merged})
}
