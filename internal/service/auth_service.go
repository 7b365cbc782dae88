package service

import (
	"context"

	"grc-core/internal/domain"
	"grc-core/internal/dto"
)

// Principal is the authenticated caller of a protected request.
type Principal struct {
	User     *domain.User
	TenantID string
	Token    string
	TokenID  string
}

type AuthService interface {
	Login(ctx context.Context, r dto.LoginRequest, ip, ua string) (dto.LoginStep1Result, error)
	VerifyOTP(ctx context.Context, r dto.VerifyOTPRequest, ip, ua string) (*dto.TokenResponse, error)
	ResendOTP(ctx context.Context, r dto.ResendOTPRequest, ip, ua string) error
	Refresh(ctx context.Context, r dto.RefreshRequest, ip, ua string) (*dto.AccessTokenResponse, error)
	Logout(ctx context.Context, p *Principal, ip, ua string) error
	Authenticate(ctx context.Context, token string) (*Principal, error)
	ForgotPassword(ctx context.Context, r dto.ForgotPasswordRequest, ip, ua string) error
	ResetPassword(ctx context.Context, r dto.ResetPasswordRequest, ip, ua string) error
	ChangePassword(ctx context.Context, p *Principal, r dto.ChangePasswordRequest, ip, ua string) error
	PasswordStatus(ctx context.Context, p *Principal) (*dto.PasswordStatus, error)
	Deactivate(ctx context.Context, userID string) error
}
