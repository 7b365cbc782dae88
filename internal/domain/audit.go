package domain

import "time"

// AuditLog is the general security audit trail (logins, logouts, refreshes,
// password events). It is separate from PasswordLog.
type AuditLog struct {
	ID        string    `gorm:"type:varchar(64);primaryKey" db:"id"`
	TenantID  *string   `gorm:"type:varchar(64);index" db:"tenant_id"`
	UserID    *string   `gorm:"type:varchar(64);index" db:"user_id"`
	Action    string    `gorm:"type:varchar(64);not null" db:"action"`
	Metadata  string    `gorm:"type:text" db:"metadata"` // json
	IP        string    `gorm:"type:text" db:"ip"`
	UserAgent string    `gorm:"type:text" db:"user_agent"`
	CreatedAt time.Time `gorm:"not null" db:"created_at"`

	FieldFlags `gorm:"-" json:"-"`
}

func (AuditLog) TableName() string { return "audit_logs" }

func (l *AuditLog) GetTenantID() string   { return derefString(l.TenantID) }
func (l *AuditLog) SetTenantID(id string) { l.TenantID = stringPtr(id) }

func (l *AuditLog) GetID() string { return l.ID }

func (l *AuditLog) EncryptedFields() map[string]*string {
	return map[string]*string{
		"ip":         &l.IP,
		"user_agent": &l.UserAgent,
	}
}

// RevokedToken blacklists a refresh token id once it has been rotated.
type RevokedToken struct {
	JTI       string    `gorm:"column:jti;type:varchar(64);primaryKey" db:"jti"`
	UserID    string    `gorm:"type:varchar(64);not null;index" db:"user_id"`
	ExpiresAt time.Time `gorm:"not null" db:"expires_at"`
	CreatedAt time.Time `gorm:"not null" db:"created_at"`
}

func (RevokedToken) TableName() string { return "revoked_tokens" }
