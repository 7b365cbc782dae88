// Package audit records security events (logins, logouts, refreshes,
// password changes) asynchronously.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"grc-core/internal/domain"
	"grc-core/internal/fieldcrypt"
	"grc-core/internal/tenant"
)

type Action string

const (
	LoginOK         Action = "login_ok"
	LoginFail       Action = "login_fail"
	LoginLocked     Action = "login_locked"
	Logout          Action = "logout"
	Refresh         Action = "refresh"
	PasswordChanged Action = "password_changed"
	PasswordReset   Action = "password_reset"
	UserDeactivated Action = "user_deactivated"
	DecryptFailed   Action = "decrypt_failed"
)

type Event struct {
	Action    Action
	TenantID  string
	UserID    string
	IP        string
	UserAgent string
	Metadata  map[string]any
	At        time.Time
}

// Sink persists one event.
type Sink interface {
	Write(ctx context.Context, ev Event) error
}

// Emitter is what services depend on.
type Emitter interface {
	Emit(ctx context.Context, ev Event)
}

// Repository appends rows to audit_logs.
type Repository interface {
	AppendAudit(ctx context.Context, row *domain.AuditLog) error
}

// RepoSink writes events as domain.AuditLog rows under the event's tenant,
// or as system rows when the event has none.
type RepoSink struct {
	Repo Repository
}

func (s RepoSink) Write(ctx context.Context, ev Event) error {
	row := &domain.AuditLog{
		ID:        domain.NewID(),
		Action:    string(ev.Action),
		IP:        ev.IP,
		UserAgent: ev.UserAgent,
		CreatedAt: ev.At,
	}
	if ev.UserID != "" {
		row.UserID = &ev.UserID
	}
	if len(ev.Metadata) > 0 {
		b, err := json.Marshal(ev.Metadata)
		if err != nil {
			return err
		}
		row.Metadata = string(b)
	}

	if ev.TenantID != "" {
		ctx = tenant.WithTenant(ctx, ev.TenantID)
	} else {
		ctx = tenant.AsSystem(ctx)
	}
	return s.Repo.AppendAudit(ctx, row)
}

// DecryptFailureHook turns field decryption failures into DecryptFailed
// events. The tenant falls back to the one bound in ctx.
func DecryptFailureHook(em Emitter) func(ctx context.Context, f fieldcrypt.DecryptFailure) {
	return func(ctx context.Context, f fieldcrypt.DecryptFailure) {
		tenantID := f.TenantID
		if tenantID == "" {
			tenantID, _ = tenant.FromContext(ctx)
		}
		em.Emit(ctx, Event{
			Action:   DecryptFailed,
			TenantID: tenantID,
			Metadata: map[string]any{
				"table":     f.Table,
				"field":     f.Field,
				"record_id": f.RecordID,
			},
		})
	}
}
