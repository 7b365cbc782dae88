// Package tenant binds requests to a tenant and enforces tenant isolation on
// every gorm query issued with that request's context.
package tenant

import (
	"context"

	"grc-core/internal/observability/middleware"
)

type ctxKey int

const (
	keyTenant ctxKey = iota
	keySystem
	keyResolution
)

// WithTenant binds ctx to tenantID and drops any system opt-out.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	ctx = context.WithValue(ctx, keySystem, false)
	return context.WithValue(ctx, keyTenant, tenantID)
}

// FromContext returns the bound tenant, if any.
func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(keyTenant).(string)
	return id, ok && id != ""
}

// AsSystem opts ctx out of tenant filtering. Only bootstrap code, login
// lookups and background writers use it.
func AsSystem(ctx context.Context) context.Context {
	return context.WithValue(ctx, keySystem, true)
}

func IsSystem(ctx context.Context) bool {
	v, _ := ctx.Value(keySystem).(bool)
	return v
}

// Detach returns a context that outlives the request but keeps its tenant,
// system flag and correlation ids. Dispatchers call it at enqueue time.
func Detach(ctx context.Context) context.Context {
	out := middleware.WithIDs(context.Background(),
		middleware.RequestIDFromContext(ctx),
		middleware.TraceIDFromContext(ctx),
	)
	if id, ok := FromContext(ctx); ok {
		out = WithTenant(out, id)
	}
	if IsSystem(ctx) {
		out = AsSystem(out)
	}
	return out
}
