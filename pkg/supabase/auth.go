package supabase

import (
	"context"
	"errors"
	"net/http"
	"net/url"
)

// ErrNoUser is returned when the auth service accepts a token but reports no user for it.
var ErrNoUser = errors.New("supabase: no user for token")

// User is the subset of the GoTrue user object the backend reads.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
	Aud   string `json:"aud"`
}

// GetUser resolves an end-user access token to the user it was issued for.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	if accessToken == "" {
		return nil, ErrNoUser
	}

	var user User
	err := c.do(ctx, request{
		method:  http.MethodGet,
		path:    "/auth/v1/user",
		headers: map[string]string{"Authorization": "Bearer " + accessToken},
	}, &user)
	if err != nil {
		return nil, err
	}
	if user.ID == "" {
		return nil, ErrNoUser
	}
	return &user, nil
}

// OTPRequest asks the auth service to email a one-time login link.
type OTPRequest struct {
	Email string
	// CreateUser lets the auth service sign up unknown addresses.
	CreateUser bool
	// RedirectTo is where the link lands after verification; empty uses the project default.
	RedirectTo string
}

// SignInWithOTP triggers a passwordless (magic link) email.
func (c *Client) SignInWithOTP(ctx context.Context, req OTPRequest) error {
	query := url.Values{}
	if req.RedirectTo != "" {
		query.Set("redirect_to", req.RedirectTo)
	}

	return c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/otp",
		query:  query,
		body: map[string]any{
			"email":       req.Email,
			"create_user": req.CreateUser,
		},
	}, nil)
}
