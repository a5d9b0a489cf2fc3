package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"site-settings-backend/pkg/models"
	"site-settings-backend/pkg/settings"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// PostgresStore PostgreSQL直连实现
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a pool against dsn. Serverless hosts sometimes
// cannot reach the database over the default settings, so a few connection
// variants are tried in order before giving up.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	// Sanitize DSN to avoid stray CR/LF from env values
	dsn = strings.TrimSpace(dsn)
	strategies := []string{
		dsn,
		addConnectionParams(dsn, "connect_timeout=10"),
		addConnectionParams(dsn, "sslmode=require&connect_timeout=10"),
	}

	var lastErr error
	for i, strategy := range strategies {
		db, err := sql.Open("postgres", strategy)
		if err != nil {
			lastErr = err
			slog.Warn("postgres open failed", "strategy", i+1, "error", err)
			continue
		}

		// 设置连接池参数，适合无服务器环境
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.PingContext(ctx); err != nil {
			lastErr = err
			slog.Warn("postgres ping failed", "strategy", i+1, "error", err)
			db.Close()
			continue
		}

		slog.Info("postgres connection established", "strategy", i+1)
		return NewPostgresStoreFromDB(db), nil
	}

	return nil, fmt.Errorf("failed to connect to PostgreSQL with all strategies: %w", lastErr)
}

// NewPostgresStoreFromDB wraps an existing pool.
func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// addConnectionParams 添加连接参数到DSN
func addConnectionParams(dsn, params string) string {
	if params == "" {
		return dsn
	}
	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return dsn + separator + params
}

// ids in this schema are uuid columns; anything else can never match and
// would only make Postgres raise invalid_text_representation.
func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// GetSiteBySlug 根据slug获取站点
func (p *PostgresStore) GetSiteBySlug(ctx context.Context, slug string) (*models.Site, error) {
	var site models.Site
	err := p.db.QueryRowContext(ctx,
		`SELECT id, name, slug FROM sites WHERE slug = $1 LIMIT 1`, slug).
		Scan(&site.ID, &site.Name, &site.Slug)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get site by slug: %w", err)
	}
	return &site, nil
}

// ListUserSites 获取用户所属站点
func (p *PostgresStore) ListUserSites(ctx context.Context, userID string) ([]models.Site, error) {
	sites := []models.Site{}
	if !isUUID(userID) {
		return sites, nil
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT s.id, s.name, s.slug
		FROM memberships m
		JOIN sites s ON s.id = m.site_id
		WHERE m.user_id = $1
		ORDER BY s.name`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user sites: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var site models.Site
		if err := rows.Scan(&site.ID, &site.Name, &site.Slug); err != nil {
			return nil, fmt.Errorf("failed to scan site: %w", err)
		}
		sites = append(sites, site)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list user sites: %w", err)
	}
	return sites, nil
}

// HasMembership 检查成员关系
func (p *PostgresStore) HasMembership(ctx context.Context, siteID, userID string) (bool, error) {
	if !isUUID(siteID) || !isUUID(userID) {
		return false, nil
	}

	var exists bool
	err := p.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM memberships WHERE site_id = $1 AND user_id = $2)`,
		siteID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return exists, nil
}

// GetSiteSettings 获取站点设置
func (p *PostgresStore) GetSiteSettings(ctx context.Context, siteID string) (*models.SiteSettings, error) {
	if !isUUID(siteID) {
		return nil, ErrNotFound
	}

	var (
		raw       []byte
		updatedAt sql.NullTime
	)
	out := &models.SiteSettings{}
	err := p.db.QueryRowContext(ctx, `
		SELECT site_id, COALESCE(settings, '{}'::jsonb), updated_at
		FROM site_settings WHERE site_id = $1 LIMIT 1`, siteID).
		Scan(&out.SiteID, &raw, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get site settings: %w", err)
	}

	if out.Settings, err = decodeSettings(raw); err != nil {
		return nil, err
	}
	if updatedAt.Valid {
		out.UpdatedAt = updatedAt.Time
	}
	return out, nil
}

// MergeSiteSettings applies patch inside Postgres. A shallow merge is a single
// jsonb concatenation; a deep merge locks the row for the read-merge-write.
func (p *PostgresStore) MergeSiteSettings(ctx context.Context, siteID string, patch map[string]any, mode settings.MergeMode) (map[string]any, error) {
	if !isUUID(siteID) {
		return nil, ErrNotFound
	}
	if mode == settings.Deep {
		return p.deepMerge(ctx, siteID, patch)
	}

	patchJSON, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal settings patch: %w", err)
	}

	var raw []byte
	err = p.db.QueryRowContext(ctx, `
		UPDATE site_settings
		SET settings = COALESCE(settings, '{}'::jsonb) || $1::jsonb, updated_at = NOW()
		WHERE site_id = $2
		RETURNING settings`, string(patchJSON), siteID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update site settings: %w", err)
	}
	return decodeSettings(raw)
}

func (p *PostgresStore) deepMerge(ctx context.Context, siteID string, patch map[string]any) (map[string]any, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var raw []byte
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(settings, '{}'::jsonb) FROM site_settings WHERE site_id = $1 FOR UPDATE`,
		siteID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock site settings: %w", err)
	}

	current, err := decodeSettings(raw)
	if err != nil {
		return nil, err
	}
	mergedJSON, err := json.Marshal(settings.Merge(current, patch, settings.Deep))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal merged settings: %w", err)
	}

	err = tx.QueryRowContext(ctx, `
		UPDATE site_settings SET settings = $1::jsonb, updated_at = NOW()
		WHERE site_id = $2
		RETURNING settings`, string(mergedJSON), siteID).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("failed to update site settings: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit site settings: %w", err)
	}
	return decodeSettings(raw)
}

func decodeSettings(raw []byte) (map[string]any, error) {
	out := map[string]any{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// HealthCheck 健康检查
func (p *PostgresStore) HealthCheck(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close 关闭连接
func (p *PostgresStore) Close() error {
	return p.db.Close()
}
