package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"site-settings-backend/pkg/models"
)

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("invalid token")

// JWTService verifies Supabase access tokens locally with the project's JWT secret.
type JWTService struct {
	secretKey []byte
	now       func() time.Time
}

// NewJWTService 创建JWT服务
func NewJWTService(secretKey string) *JWTService {
	return &JWTService{
		secretKey: []byte(secretKey),
		now:       time.Now,
	}
}

// IssueToken signs an access token for identity, the way the auth service
// would. Used by tests and local tooling.
func (j *JWTService) IssueToken(identity models.Identity, ttl time.Duration) (string, error) {
	now := j.now()
	claims := &models.SupabaseClaims{
		Email: identity.Email,
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.Sub,
			Audience:  jwt.ClaimStrings{"authenticated"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(j.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ResolveToken 验证令牌并返回身份
func (j *JWTService) ResolveToken(_ context.Context, tokenString string) (*models.Identity, error) {
	claims := &models.SupabaseClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// 验证签名方法
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secretKey, nil
	},
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return claims.Identity(), nil
}
