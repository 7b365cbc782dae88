package tenant

import (
	"context"
	"log/slog"
	"net/http"

	"grc-core/internal/httpx"
	"grc-core/internal/observability/metrics"
	"grc-core/internal/observability/middleware"
)

func withResolution(ctx context.Context, r *Resolution) context.Context {
	return context.WithValue(ctx, keyResolution, r)
}

// ResolutionFromContext returns what the middleware resolved for the request.
func ResolutionFromContext(ctx context.Context) *Resolution {
	r, _ := ctx.Value(keyResolution).(*Resolution)
	return r
}

// Middleware resolves the tenant and binds it to the request context. The
// binding lives only in the derived request context, so nothing outlives the
// request. Unresolved requests continue unbound.
func Middleware(res *Resolver, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			resolution, err := res.Resolve(r)
			if err != nil {
				log.Error("tenant resolution failed",
					"request_id", middleware.RequestIDFromContext(r.Context()),
					"error", err,
				)
				httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "internal error")
				return
			}

			ctx := withResolution(r.Context(), resolution)
			if resolution.Resolved() {
				ctx = WithTenant(ctx, resolution.TenantID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireTenant rejects requests that reach it without a bound tenant.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := FromContext(r.Context()); !ok {
			metrics.TenantRejectionsTotal.WithLabelValues("tenant_required").Inc()
			httpx.WriteError(w, http.StatusForbidden, "tenant_required", "tenant required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// StripPathPrefix removes /t/<slug> so routes are mounted once.
func StripPathPrefix(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if slug := PathSlug(r.URL.Path); slug != "" {
			r2 := r.Clone(r.Context())
			rest := r.URL.Path[len(pathPrefix)+len(slug):]
			if rest == "" {
				rest = "/"
			}
			r2.URL.Path = rest
			r2.URL.RawPath = ""
			next.ServeHTTP(w, r2)
			return
		}
		next.ServeHTTP(w, r)
	})
}
