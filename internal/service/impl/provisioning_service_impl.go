package impl

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"grc-core/internal/domain"
	"grc-core/internal/service"
	"grc-core/internal/store"
	"grc-core/internal/tenant"
)

var subdomainRe = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// ProvisioningServiceImpl creates tenants and principals for operators.
type ProvisioningServiceImpl struct {
	store  *store.Store
	policy *PasswordPolicyImpl
	log    *slog.Logger
}

func NewProvisioningService(st *store.Store, policy *PasswordPolicyImpl, log *slog.Logger) *ProvisioningServiceImpl {
	if log == nil {
		log = slog.Default()
	}
	return &ProvisioningServiceImpl{store: st, policy: policy, log: log}
}

func (p *ProvisioningServiceImpl) CreateTenant(ctx context.Context, name, subdomain string) (*domain.Tenant, error) {
	name = strings.TrimSpace(name)
	subdomain = strings.ToLower(strings.TrimSpace(subdomain))
	if name == "" || !subdomainRe.MatchString(subdomain) {
		return nil, fmt.Errorf("tenant needs a name and a DNS label subdomain: %w", domain.ErrInvalidInput)
	}
	now := time.Now().UTC()
	t := &domain.Tenant{
		Name:      name,
		Subdomain: subdomain,
		Status:    domain.TenantActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := p.store.Tenants().Create(tenant.AsSystem(ctx), t); err != nil {
		return nil, err
	}
	p.log.Info("tenant created", logAttrs(ctx, "tenant_id", t.ID, "subdomain", t.Subdomain)...)
	return t, nil
}

// CreateUser creates an active principal. The initial password goes through
// SetPassword with action created. An empty TenantID creates a bootstrap
// principal.
func (p *ProvisioningServiceImpl) CreateUser(ctx context.Context, in service.NewUser) (*domain.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" || in.Password == "" {
		return nil, fmt.Errorf("username and password are required: %w", domain.ErrInvalidInput)
	}
	ctx = scopeTo(ctx, in.TenantID)
	now := time.Now().UTC()
	u := &domain.User{
		Username:  in.Username,
		Email:     strings.TrimSpace(in.Email),
		FirstName: in.FirstName,
		LastName:  in.LastName,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	u.SetTenantID(in.TenantID)

	err := p.store.WithTx(ctx, func(tx *store.Store) error {
		if err := tx.Users().Create(ctx, u); err != nil {
			return err
		}
		return p.policy.SetPassword(ctx, tx, u, in.Password, PasswordChange{Action: domain.PasswordCreated})
	})
	if err != nil {
		return nil, err
	}
	p.log.Info("user created", logAttrs(ctx, "tenant_id", in.TenantID, "user_id", u.ID)...)
	return u, nil
}
