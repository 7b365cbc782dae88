package domain

import "time"

// Tenant is the top-level partition. Rows are created by provisioning and are
// never hard-deleted while referenced.
type Tenant struct {
	ID        string       `gorm:"type:varchar(64);primaryKey" db:"id" json:"tenant_id"`
	Name      string       `gorm:"type:text;not null" db:"name" json:"name"`
	Subdomain string       `gorm:"type:varchar(63);not null;uniqueIndex:ux_tenants_subdomain" db:"subdomain" json:"subdomain"`
	Status    TenantStatus `gorm:"type:varchar(16);not null" db:"status" json:"status"`
	CreatedAt time.Time    `gorm:"not null" db:"created_at" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" db:"updated_at" json:"updated_at"`
}

func (Tenant) TableName() string { return "tenants" }

func (t *Tenant) IsActive() bool { return t.Status == TenantActive }
