package database

import (
	"context"
	"errors"
	"log/slog"

	"site-settings-backend/pkg/config"
	"site-settings-backend/pkg/models"
	"site-settings-backend/pkg/settings"
	"site-settings-backend/pkg/supabase"
)

var (
	// ErrNotFound means the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict means a settings update kept losing to concurrent writers.
	ErrConflict = errors.New("concurrent modification")
)

// Store 定义站点数据访问接口
type Store interface {
	// 站点
	GetSiteBySlug(ctx context.Context, slug string) (*models.Site, error)
	// ListUserSites returns the sites the user is a member of; never nil.
	ListUserSites(ctx context.Context, userID string) ([]models.Site, error)

	// 成员关系: existence is the only authorization signal
	HasMembership(ctx context.Context, siteID, userID string) (bool, error)

	// 站点设置
	GetSiteSettings(ctx context.Context, siteID string) (*models.SiteSettings, error)
	// MergeSiteSettings folds patch into the stored settings atomically and
	// returns the persisted result. It never creates a settings row.
	MergeSiteSettings(ctx context.Context, siteID string, patch map[string]any, mode settings.MergeMode) (map[string]any, error)

	// 健康检查
	HealthCheck(ctx context.Context) error

	// 关闭连接
	Close() error
}

// NewStore picks the store implementation for cfg: a direct Postgres
// connection when DATABASE_URL is set, the Supabase REST API otherwise.
func NewStore(ctx context.Context, cfg *config.Config, client *supabase.Client) (Store, error) {
	if cfg.PostgresDSN != "" {
		slog.Info("using PostgreSQL store")
		return NewPostgresStore(ctx, cfg.PostgresDSN)
	}

	slog.Info("using Supabase REST store")
	return NewSupabaseStore(client), nil
}
