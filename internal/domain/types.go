package domain

import "github.com/google/uuid"

type TenantStatus string

const (
	TenantActive    TenantStatus = "active"
	TenantSuspended TenantStatus = "suspended"
	TenantDeleted   TenantStatus = "deleted"
)

type ChallengeStatus string

const (
	ChallengePending   ChallengeStatus = "pending"
	ChallengeSatisfied ChallengeStatus = "satisfied"
	ChallengeExpired   ChallengeStatus = "expired"
	ChallengeFailed    ChallengeStatus = "failed"
)

// ChallengePurpose separates login OTPs from password reset OTPs. Both share
// the one-pending-challenge-per-user rule.
type ChallengePurpose string

const (
	PurposeLogin         ChallengePurpose = "login"
	PurposePasswordReset ChallengePurpose = "password_reset"
)

type MfaEventType string

const (
	MfaChallengeIssued MfaEventType = "challenge_issued"
	MfaChallengeOK     MfaEventType = "challenge_ok"
	MfaChallengeFail   MfaEventType = "challenge_fail"
)

type PasswordAction string

const (
	PasswordCreated PasswordAction = "created"
	PasswordChanged PasswordAction = "changed"
	PasswordReset   PasswordAction = "reset"
)

// NewID returns a time-ordered identifier so that rows created within the
// same timestamp still sort in insertion order.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// FieldFlags records read-path outcomes for individual columns. It is never
// persisted.
type FieldFlags struct {
	decryptFailed map[string]string
}

// MarkDecryptFailed flags field and remembers the stored value that could not
// be decrypted so that a later save writes it back untouched.
func (f *FieldFlags) MarkDecryptFailed(field, stored string) {
	if f.decryptFailed == nil {
		f.decryptFailed = make(map[string]string)
	}
	f.decryptFailed[field] = stored
}

func (f *FieldFlags) DecryptionFailed(field string) bool {
	_, ok := f.decryptFailed[field]
	return ok
}

// StoredValue returns the undecryptable stored value for a flagged field.
func (f *FieldFlags) StoredValue(field string) (string, bool) {
	v, ok := f.decryptFailed[field]
	return v, ok
}

// FailedFields lists the flagged columns.
func (f *FieldFlags) FailedFields() []string {
	out := make([]string, 0, len(f.decryptFailed))
	for k := range f.decryptFailed {
		out = append(out, k)
	}
	return out
}

// AnyDecryptionFailed reports whether any field failed to decrypt on load.
func (f *FieldFlags) AnyDecryptionFailed() bool {
	return len(f.decryptFailed) > 0
}

// ClearDecryptFailed drops the flag after the field was overwritten.
func (f *FieldFlags) ClearDecryptFailed(field string) {
	delete(f.decryptFailed, field)
}

func derefString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func stringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
