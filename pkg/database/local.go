package database

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"site-settings-backend/pkg/models"
	"site-settings-backend/pkg/settings"

	"github.com/google/uuid"
)

// MemoryStore 本地内存实现, for local development and tests.
type MemoryStore struct {
	mu          sync.RWMutex
	sites       map[string]models.Site
	settings    map[string]models.SiteSettings
	memberships []models.Membership

	calls   atomic.Int64
	failErr error
	now     func() time.Time
}

// NewMemoryStore 创建内存存储实例
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sites:    make(map[string]models.Site),
		settings: make(map[string]models.SiteSettings),
		now:      time.Now,
	}
}

// AddSite creates a site with a fresh id.
func (m *MemoryStore) AddSite(name, slug string) models.Site {
	m.mu.Lock()
	defer m.mu.Unlock()

	site := models.Site{ID: uuid.New().String(), Name: name, Slug: slug}
	m.sites[site.ID] = site
	return site
}

// PutSettings creates or replaces the settings row of siteID.
func (m *MemoryStore) PutSettings(siteID string, doc map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.settings[siteID] = models.SiteSettings{
		SiteID:    siteID,
		Settings:  settings.Merge(nil, doc, settings.Shallow),
		UpdatedAt: m.now(),
	}
}

// AddMembership grants userID access to siteID.
func (m *MemoryStore) AddMembership(siteID, userID string, role models.MemberRole) models.Membership {
	m.mu.Lock()
	defer m.mu.Unlock()

	mem := models.Membership{ID: uuid.New().String(), SiteID: siteID, UserID: userID, Role: role}
	m.memberships = append(m.memberships, mem)
	return mem
}

// FailWith makes every subsequent Store call return err. Pass nil to recover.
func (m *MemoryStore) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

// Calls reports how many Store methods have been invoked.
func (m *MemoryStore) Calls() int {
	return int(m.calls.Load())
}

func (m *MemoryStore) enter() error {
	m.calls.Add(1)
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.failErr
}

// GetSiteBySlug 根据slug获取站点
func (m *MemoryStore) GetSiteBySlug(_ context.Context, slug string) (*models.Site, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, site := range m.sites {
		if site.Slug == slug {
			s := site
			return &s, nil
		}
	}
	return nil, ErrNotFound
}

// ListUserSites 获取用户所属站点
func (m *MemoryStore) ListUserSites(_ context.Context, userID string) ([]models.Site, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	sites := []models.Site{}
	for _, mem := range m.memberships {
		if mem.UserID != userID {
			continue
		}
		if site, ok := m.sites[mem.SiteID]; ok {
			sites = append(sites, site)
		}
	}
	sort.Slice(sites, func(i, j int) bool { return sites[i].Name < sites[j].Name })
	return sites, nil
}

// HasMembership 检查成员关系
func (m *MemoryStore) HasMembership(_ context.Context, siteID, userID string) (bool, error) {
	if err := m.enter(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, mem := range m.memberships {
		if mem.SiteID == siteID && mem.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

// GetSiteSettings 获取站点设置
func (m *MemoryStore) GetSiteSettings(_ context.Context, siteID string) (*models.SiteSettings, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	row, ok := m.settings[siteID]
	if !ok {
		return nil, ErrNotFound
	}
	row.Settings = settings.Merge(nil, row.Settings, settings.Shallow)
	return &row, nil
}

// MergeSiteSettings 合并站点设置; the write lock makes it atomic.
func (m *MemoryStore) MergeSiteSettings(_ context.Context, siteID string, patch map[string]any, mode settings.MergeMode) (map[string]any, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.settings[siteID]
	if !ok {
		return nil, ErrNotFound
	}
	row.Settings = settings.Merge(row.Settings, patch, mode)
	row.UpdatedAt = m.now()
	m.settings[siteID] = row

	return settings.Merge(nil, row.Settings, settings.Shallow), nil
}

// HealthCheck 健康检查
func (m *MemoryStore) HealthCheck(context.Context) error {
	return m.enter()
}

// Close 关闭连接
func (m *MemoryStore) Close() error {
	return nil
}
