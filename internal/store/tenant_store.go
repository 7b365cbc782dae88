package store

import (
	"context"
	"strings"
	"time"

	"grc-core/internal/domain"

	"gorm.io/gorm"
)

type TenantStore struct{ s *Store }

func (s *Store) Tenants() *TenantStore { return &TenantStore{s} }

func (ts *TenantStore) Create(ctx context.Context, t *domain.Tenant) error {
	if t.ID == "" {
		t.ID = domain.NewID()
	}
	t.Subdomain = strings.ToLower(strings.TrimSpace(t.Subdomain))
	if t.Status == "" {
		t.Status = domain.TenantActive
	}
	return ts.s.run(ctx, func(db *gorm.DB) error { return db.Create(t).Error })
}

func (ts *TenantStore) GetByID(ctx context.Context, id string) (*domain.Tenant, error) {
	var t domain.Tenant
	err := ts.s.run(ctx, func(db *gorm.DB) error { return db.First(&t, "id = ?", id).Error })
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (ts *TenantStore) GetBySubdomain(ctx context.Context, sub string) (*domain.Tenant, error) {
	var t domain.Tenant
	err := ts.s.run(ctx, func(db *gorm.DB) error {
		return db.First(&t, "subdomain = ?", strings.ToLower(sub)).Error
	})
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (ts *TenantStore) SetStatus(ctx context.Context, id string, status domain.TenantStatus) error {
	return ts.s.run(ctx, func(db *gorm.DB) error {
		res := db.Model(&domain.Tenant{}).Where("id = ?", id).
			Updates(map[string]any{"status": status, "updated_at": time.Now().UTC()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrRecordNotFound
		}
		return nil
	})
}

func (ts *TenantStore) List(ctx context.Context) ([]domain.Tenant, error) {
	var out []domain.Tenant
	err := ts.s.run(ctx, func(db *gorm.DB) error { return db.Order("subdomain").Find(&out).Error })
	return out, err
}

// ActiveByID and ActiveBySubdomain make TenantStore a tenant.Lookup.
func (ts *TenantStore) ActiveByID(ctx context.Context, id string) (*domain.Tenant, error) {
	t, err := ts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !t.IsActive() {
		return nil, ErrRecordNotFound
	}
	return t, nil
}

func (ts *TenantStore) ActiveBySubdomain(ctx context.Context, sub string) (*domain.Tenant, error) {
	t, err := ts.GetBySubdomain(ctx, sub)
	if err != nil {
		return nil, err
	}
	if !t.IsActive() {
		return nil, ErrRecordNotFound
	}
	return t, nil
}
