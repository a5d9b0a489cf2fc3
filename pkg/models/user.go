package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// Identity is the caller resolved from a bearer token. It lives for one request.
type Identity struct {
	Sub   string `json:"sub"`
	Email string `json:"email,omitempty"`
}

// MagicLinkRequest represents the request payload for a passwordless login
type MagicLinkRequest struct {
	Email string `json:"email"`
}

// SupabaseClaims are the claims carried by a Supabase access token.
type SupabaseClaims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Identity projects the claims onto the request identity.
func (c *SupabaseClaims) Identity() *Identity {
	return &Identity{Sub: c.Subject, Email: c.Email}
}
