package service

import (
	"context"

	"grc-core/internal/domain"
	"grc-core/internal/dto"
)

type TokenService interface {
	// Issue signs an access/refresh pair and records the access token as the
	// principal's server-side session token.
	Issue(ctx context.Context, user *domain.User) (*dto.TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*dto.AccessTokenResponse, *domain.User, error)
	Revoke(ctx context.Context, user *domain.User) error
	TenantClaim(token string) (tenantID string, ok bool, err error)
}
