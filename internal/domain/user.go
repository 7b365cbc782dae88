package domain

import "time"

// User is a principal. TenantID is nil only for bootstrap principals, which
// never see tenant-scoped data.
type User struct {
	ID              string    `gorm:"type:varchar(64);primaryKey" db:"id" json:"user_id"`
	TenantID        *string   `gorm:"type:varchar(64);index;uniqueIndex:ux_users_tenant_username,priority:1" db:"tenant_id" json:"tenant_id"`
	Username        string    `gorm:"type:varchar(150);not null;uniqueIndex:ux_users_tenant_username,priority:2" db:"username" json:"username"`
	Email           string    `gorm:"type:text" db:"email" json:"email"`
	PasswordHash    string    `gorm:"type:text;not null" db:"password_hash" json:"-"`
	IsActive        bool      `gorm:"not null" db:"is_active" json:"is_active"`
	FirstName       string    `gorm:"type:text" db:"first_name" json:"first_name"`
	LastName        string    `gorm:"type:text" db:"last_name" json:"last_name"`
	SessionToken    *string   `gorm:"column:server_side_session_token;type:text" db:"server_side_session_token" json:"-"`
	ConsentAccepted bool      `gorm:"not null;default:false" db:"consent_accepted" json:"consent_accepted"`
	CreatedAt       time.Time `gorm:"not null" db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `gorm:"not null" db:"updated_at" json:"updated_at"`

	FieldFlags `gorm:"-" json:"-"`
}

func (User) TableName() string { return "users" }

func (u *User) GetTenantID() string   { return derefString(u.TenantID) }
func (u *User) SetTenantID(id string) { u.TenantID = stringPtr(id) }

func (u *User) GetID() string { return u.ID }

func (u *User) EncryptedFields() map[string]*string {
	return map[string]*string{
		"email":      &u.Email,
		"first_name": &u.FirstName,
		"last_name":  &u.LastName,
	}
}

func (u *User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.Username
	}
}
