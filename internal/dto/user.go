package dto

import (
	"sort"

	"grc-core/internal/domain"
)

type UserView struct {
	UserID    string  `json:"user_id"`
	TenantID  *string `json:"tenant_id"`
	Username  string  `json:"username"`
	Email     string  `json:"email"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	IsActive  bool    `json:"is_active"`
	// DecryptionFailed lists fields whose stored value could not be decrypted.
	DecryptionFailed []string `json:"decryption_failed,omitempty"`
}

func NewUserView(u *domain.User) *UserView {
	return &UserView{
		UserID:           u.ID,
		TenantID:         u.TenantID,
		Username:         u.Username,
		Email:            u.Email,
		FirstName:        u.FirstName,
		LastName:         u.LastName,
		IsActive:         u.IsActive,
		DecryptionFailed: failedFields(&u.FieldFlags),
	}
}

type ValidateResponse struct {
	User *UserView `json:"user"`
}

func failedFields(f *domain.FieldFlags) []string {
	if !f.AnyDecryptionFailed() {
		return nil
	}
	out := f.FailedFields()
	sort.Strings(out)
	return out
}
