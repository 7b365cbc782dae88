package dto

import "time"

type ForgotPasswordRequest struct {
	Username string `json:"username"`
}

type ResetPasswordRequest struct {
	Username    string `json:"username"`
	OTP         string `json:"otp"`
	NewPassword string `json:"new_password"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// PasswordStatus is the expiry computation for one principal.
type PasswordStatus struct {
	LastChangedAt   time.Time `json:"last_changed_at"`
	DaysSinceChange int       `json:"days_since_change"`
	DaysUntilExpiry int       `json:"days_until_expiry"`
	ExpiryDays      int       `json:"expiry_days"`
	WarningDays     int       `json:"warning_days"`
	IsExpired       bool      `json:"is_expired"`
	IsWarning       bool      `json:"is_warning"`
}
