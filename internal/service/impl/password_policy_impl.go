package impl

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"grc-core/internal/domain"
	"grc-core/internal/dto"
	"grc-core/internal/netutil"
	"grc-core/internal/observability/metrics"
	"grc-core/internal/service"
	"grc-core/internal/store"
)

type PasswordPolicyConfig struct {
	HistoryCount int
	ExpiryDays   int
	WarningDays  int
	MinLength    int
	// HistoryFailOpen allows the write when the history lookup fails.
	HistoryFailOpen bool
}

// PasswordChange describes who changed a password and how.
type PasswordChange struct {
	Action    domain.PasswordAction
	IP        string
	UserAgent string
	Extra     map[string]any
}

type PasswordPolicyImpl struct {
	cfg    PasswordPolicyConfig
	store  *store.Store
	hasher service.PasswordHasher
	log    *slog.Logger
	now    func() time.Time
}

func NewPasswordPolicy(cfg PasswordPolicyConfig, st *store.Store, hasher service.PasswordHasher, log *slog.Logger) *PasswordPolicyImpl {
	if log == nil {
		log = slog.Default()
	}
	return &PasswordPolicyImpl{cfg: cfg, store: st, hasher: hasher, log: log, now: time.Now}
}

func (p *PasswordPolicyImpl) Hasher() service.PasswordHasher { return p.hasher }

// SetPassword is the only password write path. It checks length and history,
// hashes, updates the user row and appends a PasswordLog entry. The log entry
// is written in a savepoint; failing to write it never fails the change.
// tx should be a transaction that holds the user row.
func (p *PasswordPolicyImpl) SetPassword(ctx context.Context, tx *store.Store, u *domain.User, password string, ch PasswordChange) (err error) {
	defer func() {
		result := "success"
		if err != nil {
			result = "failure"
		}
		metrics.PasswordWritesTotal.WithLabelValues(string(ch.Action), result).Inc()
	}()

	if len(password) < p.cfg.MinLength {
		return fmt.Errorf("password must be at least %d characters: %w", p.cfg.MinLength, domain.ErrPasswordPolicy)
	}
	if ch.Action != domain.PasswordCreated {
		if err := p.checkHistory(ctx, tx, u, password); err != nil {
			return err
		}
	}

	hash, err := p.hasher.Hash(password)
	if err != nil {
		return err
	}
	old := u.PasswordHash
	if err := tx.Users().UpdatePasswordHash(ctx, u.ID, hash); err != nil {
		return err
	}
	u.PasswordHash = hash

	entry := &domain.PasswordLog{
		UserID:          u.ID,
		TenantID:        u.TenantID,
		Username:        u.Username,
		NewPasswordHash: hash,
		Action:          ch.Action,
		IP:              normalizeIP(ch.IP),
		UserAgent:       netutil.TruncateUserAgent(ch.UserAgent),
		CreatedAt:       p.now().UTC(),
	}
	if old != "" {
		entry.OldPasswordHash = &old
	}
	if len(ch.Extra) > 0 {
		if b, jerr := json.Marshal(ch.Extra); jerr == nil {
			entry.Extra = string(b)
		}
	}
	if lerr := tx.WithTx(ctx, func(sp *store.Store) error {
		return sp.PasswordLogs().Append(ctx, entry)
	}); lerr != nil {
		metrics.PasswordLogFailuresTotal.Inc()
		p.log.Error("password log write failed", logAttrs(ctx,
			"user_id", u.ID, "action", ch.Action, "error", lerr)...)
	}
	return nil
}

// CheckHistory reports PasswordReused when candidate matches the current hash
// or one of the last HistoryCount entries.
func (p *PasswordPolicyImpl) CheckHistory(ctx context.Context, u *domain.User, candidate string) error {
	return p.checkHistory(ctx, p.store, u, candidate)
}

// The lookup runs in a savepoint so that a failed read does not abort the
// enclosing transaction.
func (p *PasswordPolicyImpl) checkHistory(ctx context.Context, st *store.Store, u *domain.User, candidate string) error {
	depth := p.cfg.HistoryCount
	if depth <= 0 {
		return nil
	}
	reused := &domain.PasswordReusedError{Depth: depth}

	if u.PasswordHash != "" && p.matches(ctx, u.ID, candidate, u.PasswordHash) {
		return reused
	}
	var rows []*domain.PasswordLog
	err := st.WithTx(ctx, func(sp *store.Store) error {
		var err error
		rows, err = sp.PasswordLogs().Recent(ctx, u.ID, depth)
		return err
	})
	if err != nil {
		p.log.Error("password history lookup failed", logAttrs(ctx,
			"user_id", u.ID, "fail_open", p.cfg.HistoryFailOpen, "error", err)...)
		if p.cfg.HistoryFailOpen {
			return nil
		}
		return fmt.Errorf("password history unavailable: %w", err)
	}
	for _, row := range rows {
		if p.matches(ctx, u.ID, candidate, row.NewPasswordHash) {
			return reused
		}
		if row.OldPasswordHash != nil && p.matches(ctx, u.ID, candidate, *row.OldPasswordHash) {
			return reused
		}
	}
	return nil
}

func (p *PasswordPolicyImpl) matches(ctx context.Context, userID, candidate, encoded string) bool {
	if encoded == "" {
		return false
	}
	ok, err := p.hasher.Verify(candidate, encoded)
	if err != nil {
		// Entries that failed to decrypt surface as placeholders.
		p.log.Warn("unreadable password history entry", logAttrs(ctx, "user_id", userID, "error", err)...)
		return false
	}
	return ok
}

// Status computes expiry from the newest history entry, or the account
// creation time when there is none.
func (p *PasswordPolicyImpl) Status(ctx context.Context, u *domain.User) (*dto.PasswordStatus, error) {
	last := u.CreatedAt
	latest, err := p.store.PasswordLogs().Latest(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	if latest != nil {
		last = latest.CreatedAt
	}
	st := ComputeExpiry(last, p.now(), p.cfg.ExpiryDays, p.cfg.WarningDays)
	return &st, nil
}

// ComputeExpiry counts whole elapsed days since lastChange.
func ComputeExpiry(lastChange, now time.Time, expiryDays, warningDays int) dto.PasswordStatus {
	days := int(now.Sub(lastChange).Hours() / 24)
	if days < 0 {
		days = 0
	}
	left := expiryDays - days
	return dto.PasswordStatus{
		LastChangedAt:   lastChange.UTC(),
		DaysSinceChange: days,
		DaysUntilExpiry: left,
		ExpiryDays:      expiryDays,
		WarningDays:     warningDays,
		IsExpired:       days >= expiryDays,
		IsWarning:       left > 0 && left <= warningDays,
	}
}

func normalizeIP(ip string) string {
	if normalized, ok := netutil.NormalizeIP(ip); ok {
		return normalized
	}
	return ""
}
