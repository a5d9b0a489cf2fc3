package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"site-settings-backend/pkg/models"
	"site-settings-backend/pkg/settings"
	"site-settings-backend/pkg/supabase"
)

// DefaultMergeAttempts bounds the compare-and-swap loop in MergeSiteSettings.
const DefaultMergeAttempts = 3

// SupabaseStore Supabase REST实现
type SupabaseStore struct {
	client      *supabase.Client
	maxAttempts int
	now         func() time.Time
}

// NewSupabaseStore 创建Supabase存储实例
func NewSupabaseStore(client *supabase.Client) *SupabaseStore {
	return &SupabaseStore{
		client:      client,
		maxAttempts: DefaultMergeAttempts,
		now:         time.Now,
	}
}

// settingsRow mirrors a site_settings row. UpdatedAt is kept as the exact
// text PostgREST returned so it can be echoed back as a CAS filter.
type settingsRow struct {
	SiteID    string         `json:"site_id"`
	Settings  map[string]any `json:"settings"`
	UpdatedAt *string        `json:"updated_at"`
}

func (r settingsRow) model() *models.SiteSettings {
	out := &models.SiteSettings{SiteID: r.SiteID, Settings: r.Settings}
	if out.Settings == nil {
		out.Settings = map[string]any{}
	}
	if r.UpdatedAt != nil {
		if t, err := time.Parse(time.RFC3339Nano, *r.UpdatedAt); err == nil {
			out.UpdatedAt = t
		}
	}
	return out
}

// GetSiteBySlug 根据slug获取站点
func (s *SupabaseStore) GetSiteBySlug(ctx context.Context, slug string) (*models.Site, error) {
	var site models.Site
	found, err := s.client.From("sites").
		Select("id,name,slug").
		Eq("slug", slug).
		MaybeSingle(ctx, &site)
	if err != nil {
		return nil, fmt.Errorf("failed to get site by slug: %w", err)
	}
	if !found {
		return nil, ErrNotFound
	}
	return &site, nil
}

// ListUserSites 获取用户所属站点
func (s *SupabaseStore) ListUserSites(ctx context.Context, userID string) ([]models.Site, error) {
	var rows []struct {
		Site *models.Site `json:"site"`
	}
	err := s.client.From("memberships").
		Select("site:sites(id,name,slug)").
		Eq("user_id", userID).
		Execute(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to list user sites: %w", err)
	}

	sites := make([]models.Site, 0, len(rows))
	for _, row := range rows {
		// a membership whose site row is gone embeds null
		if row.Site != nil {
			sites = append(sites, *row.Site)
		}
	}
	return sites, nil
}

// HasMembership 检查成员关系
func (s *SupabaseStore) HasMembership(ctx context.Context, siteID, userID string) (bool, error) {
	var m models.Membership
	found, err := s.client.From("memberships").
		Select("id,role").
		Eq("site_id", siteID).
		Eq("user_id", userID).
		MaybeSingle(ctx, &m)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return found, nil
}

// GetSiteSettings 获取站点设置
func (s *SupabaseStore) GetSiteSettings(ctx context.Context, siteID string) (*models.SiteSettings, error) {
	row, err := s.loadSettings(ctx, siteID)
	if err != nil {
		return nil, err
	}
	return row.model(), nil
}

func (s *SupabaseStore) loadSettings(ctx context.Context, siteID string) (*settingsRow, error) {
	var row settingsRow
	found, err := s.client.From("site_settings").
		Select("site_id,settings,updated_at").
		Eq("site_id", siteID).
		MaybeSingle(ctx, &row)
	if err != nil {
		return nil, fmt.Errorf("failed to get site settings: %w", err)
	}
	if !found {
		return nil, ErrNotFound
	}
	return &row, nil
}

// MergeSiteSettings reads the row, merges, and writes back only if updated_at
// is unchanged. A lost race re-reads and tries again.
func (s *SupabaseStore) MergeSiteSettings(ctx context.Context, siteID string, patch map[string]any, mode settings.MergeMode) (map[string]any, error) {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		current, err := s.loadSettings(ctx, siteID)
		if err != nil {
			return nil, err
		}

		merged := settings.Merge(current.Settings, patch, mode)

		q := s.client.From("site_settings").
			Select("settings").
			Eq("site_id", siteID)
		if current.UpdatedAt == nil {
			q = q.Is("updated_at", "null")
		} else {
			q = q.Eq("updated_at", *current.UpdatedAt)
		}

		var updated struct {
			Settings map[string]any `json:"settings"`
		}
		found, err := q.Update(map[string]any{
			"settings":   merged,
			"updated_at": s.now().UTC().Format(time.RFC3339Nano),
		}).MaybeSingle(ctx, &updated)
		if err != nil {
			return nil, fmt.Errorf("failed to update site settings: %w", err)
		}
		if found {
			if updated.Settings == nil {
				updated.Settings = map[string]any{}
			}
			return updated.Settings, nil
		}

		slog.WarnContext(ctx, "site settings changed during update, retrying",
			"site_id", siteID, "attempt", attempt)
	}
	return nil, ErrConflict
}

// HealthCheck 健康检查
func (s *SupabaseStore) HealthCheck(ctx context.Context) error {
	var rows []json.RawMessage
	if err := s.client.From("sites").Select("id").Limit(1).Execute(ctx, &rows); err != nil {
		return fmt.Errorf("supabase health check failed: %w", err)
	}
	return nil
}

// Close 关闭连接 (HTTP客户端无需关闭)
func (s *SupabaseStore) Close() error {
	return nil
}
