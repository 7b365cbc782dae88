package domain

import "time"

// Policy is a compliance policy document owned by one tenant. It stands in for
// the CRUD entities that live outside the security core.
type Policy struct {
	ID          string    `gorm:"type:varchar(64);primaryKey" db:"id" json:"id"`
	TenantID    string    `gorm:"type:varchar(64);not null;index" db:"tenant_id" json:"tenant_id"`
	Name        string    `gorm:"type:varchar(255);not null" db:"name" json:"name"`
	Description string    `gorm:"type:text" db:"description" json:"description"`
	CreatedBy   string    `gorm:"type:varchar(64)" db:"created_by" json:"created_by"`
	CreatedAt   time.Time `gorm:"not null" db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null" db:"updated_at" json:"updated_at"`

	FieldFlags `gorm:"-" json:"-"`
}

func (Policy) TableName() string { return "policies" }

func (p *Policy) GetTenantID() string   { return p.TenantID }
func (p *Policy) SetTenantID(id string) { p.TenantID = id }

func (p *Policy) GetID() string { return p.ID }

func (p *Policy) EncryptedFields() map[string]*string {
	return map[string]*string{"description": &p.Description}
}
