package mailer

import (
	"context"
	"log/slog"

	"grc-core/internal/netutil"
)

// LogTransport writes notifications to the log instead of sending them. The
// OTP itself is only logged when ShowSecrets is set, which is limited to
// development.
type LogTransport struct {
	Log         *slog.Logger
	ShowSecrets bool
}

func (t *LogTransport) Name() string { return "log" }

func (t *LogTransport) Send(_ context.Context, n Notification) error {
	log := t.Log
	if log == nil {
		log = slog.Default()
	}
	attrs := []any{
		"kind", n.Kind,
		"to", netutil.MaskEmail(n.To),
		"purpose", n.Purpose,
		"ttl_minutes", n.TTLMinutes,
	}
	if t.ShowSecrets {
		attrs = append(attrs, "otp", n.OTP)
	}
	log.Info("notification (log transport)", attrs...)
	return nil
}
