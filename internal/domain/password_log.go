package domain

import "time"

// PasswordLog is append-only. Login events never land here.
type PasswordLog struct {
	ID              string         `gorm:"type:varchar(64);primaryKey" db:"id"`
	UserID          string         `gorm:"type:varchar(64);not null;index:ix_password_logs_user_created,priority:1" db:"user_id"`
	TenantID        *string        `gorm:"type:varchar(64);index" db:"tenant_id"`
	Username        string         `gorm:"type:varchar(150);not null" db:"username"`
	OldPasswordHash *string        `gorm:"type:text" db:"old_password_hash"`
	NewPasswordHash string         `gorm:"type:text;not null" db:"new_password_hash"`
	Action          PasswordAction `gorm:"type:varchar(16);not null" db:"action"`
	IP              string         `gorm:"type:text" db:"ip"`
	UserAgent       string         `gorm:"type:text" db:"user_agent"`
	CreatedAt       time.Time      `gorm:"not null;index:ix_password_logs_user_created,priority:2" db:"created_at"`
	Extra           string         `gorm:"type:text" db:"extra"`

	FieldFlags `gorm:"-" json:"-"`
}

func (PasswordLog) TableName() string { return "password_logs" }

func (l *PasswordLog) GetTenantID() string   { return derefString(l.TenantID) }
func (l *PasswordLog) SetTenantID(id string) { l.TenantID = stringPtr(id) }

func (l *PasswordLog) GetID() string { return l.ID }

func (l *PasswordLog) EncryptedFields() map[string]*string {
	fields := map[string]*string{
		"new_password_hash": &l.NewPasswordHash,
		"ip":                &l.IP,
		"user_agent":        &l.UserAgent,
		"extra":             &l.Extra,
	}
	if l.OldPasswordHash != nil {
		fields["old_password_hash"] = l.OldPasswordHash
	}
	return fields
}
