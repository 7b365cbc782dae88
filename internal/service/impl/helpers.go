package impl

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"grc-core/internal/domain"
	"grc-core/internal/observability/middleware"
	"grc-core/internal/service"
	"grc-core/internal/store"
	"grc-core/internal/tenant"
)

// scopeTo binds ctx to the principal's tenant. Bootstrap principals have no
// tenant and run as system.
func scopeTo(ctx context.Context, tenantID string) context.Context {
	if tenantID == "" {
		return tenant.AsSystem(ctx)
	}
	return tenant.WithTenant(ctx, tenantID)
}

// findUser looks a username up in the bound tenant, or across tenants when
// none is bound. A name that exists in more than one tenant is not resolved.
func findUser(ctx context.Context, st *store.Store, log *slog.Logger, username string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, domain.ErrUserNotFound
	}
	lookupCtx := ctx
	if _, ok := tenant.FromContext(ctx); !ok {
		lookupCtx = tenant.AsSystem(ctx)
	}
	users, err := st.Users().FindByUsername(lookupCtx, username)
	if err != nil {
		return nil, err
	}
	switch len(users) {
	case 0:
		return nil, domain.ErrUserNotFound
	case 1:
		return users[0], nil
	default:
		log.Warn("username exists in several tenants, tenant context required",
			"request_id", middleware.RequestIDFromContext(ctx),
		)
		return nil, domain.ErrUserNotFound
	}
}

func logAttrs(ctx context.Context, args ...any) []any {
	return append([]any{
		"request_id", middleware.RequestIDFromContext(ctx),
		"trace_id", middleware.TraceIDFromContext(ctx),
	}, args...)
}

var (
	dummyOnce sync.Once
	dummy     string
)

// dummyHash is verified against when there is no real hash to check.
func dummyHash(h service.PasswordHasher) string {
	dummyOnce.Do(func() {
		dummy, _ = h.Hash("timing-equalizer-not-a-password")
	})
	return dummy
}
