package middleware

import (
	"context"

	"site-settings-backend/pkg/models"
	"site-settings-backend/pkg/supabase"
)

// UserGetter is the slice of the Supabase client used to verify tokens.
type UserGetter interface {
	GetUser(ctx context.Context, accessToken string) (*supabase.User, error)
}

// SupabaseResolver delegates token verification to the Supabase auth service.
type SupabaseResolver struct {
	client UserGetter
}

func NewSupabaseResolver(client UserGetter) *SupabaseResolver {
	return &SupabaseResolver{client: client}
}

func (s *SupabaseResolver) ResolveToken(ctx context.Context, token string) (*models.Identity, error) {
	user, err := s.client.GetUser(ctx, token)
	if err != nil {
		return nil, err
	}
	return &models.Identity{Sub: user.ID, Email: user.Email}, nil
}
