package domain

import (
	"errors"
	"fmt"
)

var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrMfaChallengeInvalid  = errors.New("mfa challenge invalid or expired")
	ErrMaxAttemptsExceeded  = errors.New("max_attempts_exceeded")
	ErrChallengeActive      = errors.New("a valid challenge is already pending")
	ErrTokenInvalid         = errors.New("token invalid")
	ErrTenantRequired       = errors.New("tenant required")
	ErrTenantMismatch       = errors.New("tenant mismatch")
	ErrPasswordReused       = errors.New("password reused")
	ErrPasswordPolicy       = errors.New("password does not meet policy")
	ErrDecrypt              = errors.New("decrypt failed")
	ErrKeyUnavailable       = errors.New("key unavailable")
	ErrTransportFailed      = errors.New("transport failed")
	ErrUserNotFound         = errors.New("user not found")
	ErrInvalidInput         = errors.New("invalid input")
	ErrNotFound             = errors.New("not found")
	ErrMfaDisabled          = errors.New("mfa disabled")
	ErrAccountLocked        = errors.New("account temporarily locked")
)

// PasswordReusedError names the history depth without revealing which past
// password matched.
type PasswordReusedError struct {
	Depth int
}

func (e *PasswordReusedError) Error() string {
	return fmt.Sprintf("password was used within the last %d passwords", e.Depth)
}

func (e *PasswordReusedError) Unwrap() error { return ErrPasswordReused }

// OTPMismatchError is returned for a wrong OTP while attempts remain.
type OTPMismatchError struct {
	Remaining int
}

func (e *OTPMismatchError) Error() string {
	return fmt.Sprintf("invalid code, %d attempt(s) remaining", e.Remaining)
}

func (e *OTPMismatchError) Unwrap() error { return ErrAuthenticationFailed }
