package http

import (
	"context"
	"net/http"

	"grc-core/internal/domain"
	"grc-core/internal/service"
	"grc-core/internal/tenant"
)

type principalKey struct{}

func withPrincipal(ctx context.Context, p *service.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal bound by requireAuth.
func PrincipalFrom(ctx context.Context) (*service.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*service.Principal)
	return p, ok && p != nil
}

// requireAuth validates the bearer token and binds the principal. A request
// that resolved no tenant is bound to the principal's own tenant.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := tenant.BearerToken(r)
		if tok == "" {
			writeError(w, r, h.log, domain.ErrTokenInvalid)
			return
		}
		p, err := h.auth.Authenticate(r.Context(), tok)
		if err != nil {
			writeError(w, r, h.log, err)
			return
		}
		ctx := withPrincipal(r.Context(), p)
		if _, bound := tenant.FromContext(ctx); !bound && p.TenantID != "" {
			ctx = tenant.WithTenant(ctx, p.TenantID)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func mustPrincipal(r *http.Request) *service.Principal {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		panic("transport/http: handler mounted without requireAuth")
	}
	return p
}
