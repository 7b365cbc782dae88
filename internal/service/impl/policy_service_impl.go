package impl

import (
	"context"
	"fmt"
	"strings"
	"time"

	"grc-core/internal/domain"
	"grc-core/internal/dto"
	"grc-core/internal/service"
	"grc-core/internal/store"
)

type PolicyServiceImpl struct {
	store *store.Store
}

func NewPolicyService(st *store.Store) *PolicyServiceImpl {
	return &PolicyServiceImpl{store: st}
}

func (s *PolicyServiceImpl) Create(ctx context.Context, p *service.Principal, r dto.CreatePolicyRequest) (*domain.Policy, error) {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return nil, fmt.Errorf("policy name is required: %w", domain.ErrInvalidInput)
	}
	now := time.Now().UTC()
	pol := &domain.Policy{
		Name:        name,
		Description: r.Description,
		CreatedBy:   p.User.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Policies().Create(ctx, pol); err != nil {
		return nil, err
	}
	return pol, nil
}

func (s *PolicyServiceImpl) Get(ctx context.Context, id string) (*domain.Policy, error) {
	return s.store.Policies().Get(ctx, id)
}

func (s *PolicyServiceImpl) List(ctx context.Context) ([]*domain.Policy, error) {
	return s.store.Policies().List(ctx)
}
