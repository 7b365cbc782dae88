package service

import (
	"context"

	"grc-core/internal/domain"
)

type MFAService interface {
	// Issue expires the user's pending challenges, stores a new one and
	// hands the code to the mail dispatcher.
	Issue(ctx context.Context, user *domain.User, purpose domain.ChallengePurpose, ip, ua string) (*domain.MfaChallenge, error)
	Verify(ctx context.Context, user *domain.User, purpose domain.ChallengePurpose, otp, ip, ua string) error
}
