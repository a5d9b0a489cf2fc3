package models

import "time"

// Site is a tenant website. Slug is the public lookup key, ID the internal one.
type Site struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
	Slug string `json:"slug" db:"slug"`
}

// SiteSettings holds the free-form settings document for one site.
type SiteSettings struct {
	SiteID    string         `json:"site_id" db:"site_id"`
	Settings  map[string]any `json:"settings" db:"settings"`
	UpdatedAt time.Time      `json:"updated_at" db:"updated_at"`
}

type MemberRole string

const (
	RoleOwner  MemberRole = "owner"
	RoleAdmin  MemberRole = "admin"
	RoleEditor MemberRole = "editor"
)

// Membership grants a user access to a site. Only its existence is checked
// when authorizing requests; Role is informational.
type Membership struct {
	ID     string     `json:"id" db:"id"`
	SiteID string     `json:"site_id" db:"site_id"`
	UserID string     `json:"user_id" db:"user_id"`
	Role   MemberRole `json:"role" db:"role"`
}
