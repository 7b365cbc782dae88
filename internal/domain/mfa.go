package domain

import "time"

type MfaChallenge struct {
	ID        string           `gorm:"type:varchar(64);primaryKey" db:"id"`
	UserID    string           `gorm:"type:varchar(64);not null;index:ix_mfa_user_status,priority:1" db:"user_id"`
	TenantID  *string          `gorm:"type:varchar(64);index" db:"tenant_id"`
	Purpose   ChallengePurpose `gorm:"type:varchar(32);not null" db:"purpose"`
	OTPHash   string           `gorm:"column:otp_hash;type:text;not null" db:"otp_hash"`
	ExpiresAt time.Time        `gorm:"not null" db:"expires_at"`
	Attempts  int              `gorm:"not null;default:0" db:"attempts"`
	Status    ChallengeStatus  `gorm:"type:varchar(16);not null;index:ix_mfa_user_status,priority:2" db:"status"`
	IPAddress string           `gorm:"type:text" db:"ip_address"`
	UserAgent string           `gorm:"type:text" db:"user_agent"`
	CreatedAt time.Time        `gorm:"not null" db:"created_at"`
	UsedAt    *time.Time       `db:"used_at"`
}

func (MfaChallenge) TableName() string { return "mfa_email_challenges" }

func (c *MfaChallenge) GetTenantID() string   { return derefString(c.TenantID) }
func (c *MfaChallenge) SetTenantID(id string) { c.TenantID = stringPtr(id) }

// IsExpired reports whether the challenge TTL has elapsed at now.
func (c *MfaChallenge) IsExpired(now time.Time) bool { return now.After(c.ExpiresAt) }

// MfaAuditLog is append-only.
type MfaAuditLog struct {
	ID        string       `gorm:"type:varchar(64);primaryKey" db:"id"`
	UserID    string       `gorm:"type:varchar(64);not null;index" db:"user_id"`
	TenantID  *string      `gorm:"type:varchar(64);index" db:"tenant_id"`
	EventType MfaEventType `gorm:"type:varchar(32);not null" db:"event_type"`
	Detail    string       `gorm:"type:text" db:"detail"`
	IP        string       `gorm:"type:text" db:"ip"`
	UserAgent string       `gorm:"type:text" db:"user_agent"`
	CreatedAt time.Time    `gorm:"not null" db:"created_at"`

	FieldFlags `gorm:"-" json:"-"`
}

func (MfaAuditLog) TableName() string { return "mfa_audit_log" }

func (l *MfaAuditLog) GetTenantID() string   { return derefString(l.TenantID) }
func (l *MfaAuditLog) SetTenantID(id string) { l.TenantID = stringPtr(id) }

func (l *MfaAuditLog) GetID() string { return l.ID }

func (l *MfaAuditLog) EncryptedFields() map[string]*string {
	return map[string]*string{
		"ip":         &l.IP,
		"user_agent": &l.UserAgent,
	}
}
