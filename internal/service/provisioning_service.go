package service

import (
	"context"

	"grc-core/internal/domain"
)

type NewUser struct {
	TenantID  string
	Username  string
	Email     string
	FirstName string
	LastName  string
	Password  string
}

type ProvisioningService interface {
	CreateTenant(ctx context.Context, name, subdomain string) (*domain.Tenant, error)
	CreateUser(ctx context.Context, u NewUser) (*domain.User, error)
}
