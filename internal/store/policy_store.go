package store

import (
	"context"

	"grc-core/internal/domain"

	"gorm.io/gorm"
)

type PolicyStore struct{ s *Store }

func (s *Store) Policies() *PolicyStore { return &PolicyStore{s} }

func (ps *PolicyStore) Create(ctx context.Context, p *domain.Policy) error {
	if p.ID == "" {
		p.ID = domain.NewID()
	}
	return ps.s.create(ctx, p)
}

func (ps *PolicyStore) Get(ctx context.Context, id string) (*domain.Policy, error) {
	var p domain.Policy
	err := ps.s.run(ctx, func(db *gorm.DB) error { return db.First(&p, "id = ?", id).Error })
	if err != nil {
		return nil, notFound(err)
	}
	ps.s.open(ctx, &p)
	return &p, nil
}

func (ps *PolicyStore) List(ctx context.Context) ([]*domain.Policy, error) {
	var out []*domain.Policy
	err := ps.s.run(ctx, func(db *gorm.DB) error {
		return db.Order("created_at, id").Find(&out).Error
	})
	if err != nil {
		return nil, err
	}
	for _, p := range out {
		ps.s.open(ctx, p)
	}
	return out, nil
}
