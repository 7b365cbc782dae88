package service

import (
	"context"

	"grc-core/internal/domain"
	"grc-core/internal/dto"
)

// PolicyService manages tenant-owned compliance policies. The tenant comes
// from ctx.
type PolicyService interface {
	Create(ctx context.Context, p *Principal, r dto.CreatePolicyRequest) (*domain.Policy, error)
	Get(ctx context.Context, id string) (*domain.Policy, error)
	List(ctx context.Context) ([]*domain.Policy, error)
}
