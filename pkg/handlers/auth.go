package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"site-settings-backend/pkg/models"
	"site-settings-backend/pkg/supabase"
	"site-settings-backend/pkg/utils"
)

// MagicLinkSender is the auth capability that emails one-time login links.
type MagicLinkSender interface {
	SignInWithOTP(ctx context.Context, req supabase.OTPRequest) error
}

// AuthHandler 认证处理器
type AuthHandler struct {
	sender      MagicLinkSender
	redirectURL string
}

// NewAuthHandler 创建认证处理器. redirectURL may be empty to use the auth
// service's configured site URL.
func NewAuthHandler(sender MagicLinkSender, redirectURL string) *AuthHandler {
	return &AuthHandler{sender: sender, redirectURL: redirectURL}
}

// SendMagicLink POST /api/auth/magic-link
func (h *AuthHandler) SendMagicLink(w http.ResponseWriter, r *http.Request) {
	var req models.MagicLinkRequest
	err := utils.ParseJSONBody(r, &req)
	if errors.Is(err, utils.ErrBodyTooLarge) {
		utils.WriteBodyTooLargeResponse(w)
		return
	}
	if err != nil || !utils.IsValidEmail(req.Email) {
		utils.WriteBadRequestResponse(w, "Invalid email")
		return
	}

	// unknown addresses are signed up on first login
	err = h.sender.SignInWithOTP(r.Context(), supabase.OTPRequest{
		Email:      req.Email,
		CreateUser: true,
		RedirectTo: h.redirectURL,
	})
	if err != nil {
		slog.ErrorContext(r.Context(), "magic link send failed", "error", err)
		utils.WriteInternalServerErrorResponse(w, "Could not send magic link")
		return
	}

	utils.WriteOKResponse(w)
}
