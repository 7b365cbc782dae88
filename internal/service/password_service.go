package service

import (
	"context"

	"grc-core/internal/domain"
	"grc-core/internal/dto"
)

// PasswordHasher produces self-describing slow hashes.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
}

// PasswordPolicy is the password lifecycle. CheckHistory and Status are read
// only; writes go through the implementation's SetPassword.
type PasswordPolicy interface {
	CheckHistory(ctx context.Context, user *domain.User, candidate string) error
	Status(ctx context.Context, user *domain.User) (*dto.PasswordStatus, error)
}
