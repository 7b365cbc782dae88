package impl

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"grc-core/internal/domain"
	"grc-core/internal/mailer"
	"grc-core/internal/netutil"
	"grc-core/internal/observability/metrics"
	"grc-core/internal/store"
	"grc-core/internal/tenant"
)

type MFAConfig struct {
	TTL          time.Duration
	MaxAttempts  int
	PlatformName string
	// HashKey keys the OTP HMAC. The JWT signing key is used in production.
	HashKey []byte
}

type MFAServiceImpl struct {
	cfg   MFAConfig
	store *store.Store
	mail  mailer.Sender
	log   *slog.Logger
	now   func() time.Time
	otp   func() (string, error)
}

func NewMFAService(cfg MFAConfig, st *store.Store, mail mailer.Sender, log *slog.Logger) *MFAServiceImpl {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &MFAServiceImpl{cfg: cfg, store: st, mail: mail, log: log, now: time.Now, otp: generateOTP}
}

// HasActive reports whether the user already has a pending challenge that has
// not expired.
func (m *MFAServiceImpl) HasActive(ctx context.Context, u *domain.User) (bool, error) {
	return m.store.Challenges().HasActivePending(ctx, u.ID, m.now().UTC())
}

// Issue replaces any pending challenge of the user with a new one. The code
// is handed to the mail dispatcher after the transaction commits.
func (m *MFAServiceImpl) Issue(ctx context.Context, u *domain.User, purpose domain.ChallengePurpose, ip, ua string) (*domain.MfaChallenge, error) {
	code, err := m.otp()
	if err != nil {
		return nil, fmt.Errorf("generate otp: %w", err)
	}
	now := m.now().UTC()
	ch := &domain.MfaChallenge{
		ID:        domain.NewID(),
		UserID:    u.ID,
		TenantID:  u.TenantID,
		Purpose:   purpose,
		ExpiresAt: now.Add(m.cfg.TTL),
		Status:    domain.ChallengePending,
		IPAddress: normalizeIP(ip),
		UserAgent: netutil.TruncateUserAgent(ua),
		CreatedAt: now,
	}
	ch.OTPHash = m.hash(ch.ID, code)

	err = m.store.WithTx(ctx, func(tx *store.Store) error {
		if _, err := tx.Challenges().ExpirePending(ctx, u.ID); err != nil {
			return err
		}
		if err := tx.Challenges().Create(ctx, ch); err != nil {
			return err
		}
		return m.audit(ctx, tx, ch, domain.MfaChallengeIssued, "", ip, ua)
	})
	if err != nil {
		return nil, err
	}
	metrics.OTPChallengesTotal.WithLabelValues(string(purpose), "issued").Inc()

	queued := m.mail.Submit(tenant.Detach(ctx), mailer.Notification{
		Kind:            mailer.KindOTP,
		To:              u.Email,
		OTP:             code,
		TTLMinutes:      int(m.cfg.TTL / time.Minute),
		UserDisplayName: u.DisplayName(),
		PlatformName:    m.cfg.PlatformName,
		Purpose:         string(purpose),
	})
	if !queued {
		m.log.Error("otp email not queued", logAttrs(ctx, "user_id", u.ID, "challenge_id", ch.ID)...)
	}
	m.log.Info("mfa challenge issued", logAttrs(ctx,
		"user_id", u.ID, "tenant_id", u.GetTenantID(), "purpose", purpose, "challenge_id", ch.ID)...)
	return ch, nil
}

// Verify checks otp against the newest pending challenge.
func (m *MFAServiceImpl) Verify(ctx context.Context, u *domain.User, purpose domain.ChallengePurpose, otp, ip, ua string) error {
	return m.VerifyThen(ctx, u, purpose, otp, ip, ua, nil)
}

// VerifyThen checks otp under a row lock. On a match, then runs in the same
// transaction; an error from it rolls the whole attempt back and leaves the
// challenge pending. Failed attempts are committed before the error is
// returned.
func (m *MFAServiceImpl) VerifyThen(ctx context.Context, u *domain.User, purpose domain.ChallengePurpose, otp, ip, ua string, then func(tx *store.Store) error) error {
	var outcome error
	err := m.store.WithTx(ctx, func(tx *store.Store) error {
		ch, err := tx.Challenges().LatestPendingForUpdate(ctx, u.ID, purpose)
		if errors.Is(err, store.ErrRecordNotFound) {
			outcome = domain.ErrMfaChallengeInvalid
			return nil
		}
		if err != nil {
			return err
		}

		outcome = m.advance(ch, otp)
		if err := tx.Challenges().SaveState(ctx, ch); err != nil {
			return err
		}
		event, detail := domain.MfaChallengeOK, ""
		if outcome != nil {
			event, detail = domain.MfaChallengeFail, outcome.Error()
		}
		if ch.Status != domain.ChallengeExpired {
			if err := m.audit(ctx, tx, ch, event, detail, ip, ua); err != nil {
				return err
			}
		}
		if outcome == nil && then != nil {
			return then(tx)
		}
		return nil
	})
	if err != nil {
		return err
	}
	m.record(purpose, outcome)
	return outcome
}

// advance applies one attempt to a locked pending challenge.
func (m *MFAServiceImpl) advance(ch *domain.MfaChallenge, otp string) error {
	now := m.now().UTC()
	if ch.IsExpired(now) {
		ch.Status = domain.ChallengeExpired
		return domain.ErrMfaChallengeInvalid
	}

	ch.Attempts++
	if ch.Attempts > m.cfg.MaxAttempts {
		ch.Status = domain.ChallengeFailed
		return domain.ErrMaxAttemptsExceeded
	}
	if !hmac.Equal([]byte(m.hash(ch.ID, otp)), []byte(ch.OTPHash)) {
		if ch.Attempts >= m.cfg.MaxAttempts {
			ch.Status = domain.ChallengeFailed
			return domain.ErrMaxAttemptsExceeded
		}
		return &domain.OTPMismatchError{Remaining: m.cfg.MaxAttempts - ch.Attempts}
	}
	ch.Status = domain.ChallengeSatisfied
	ch.UsedAt = &now
	return nil
}

func (m *MFAServiceImpl) hash(challengeID, otp string) string {
	mac := hmac.New(sha256.New, m.cfg.HashKey)
	mac.Write([]byte(challengeID + ":" + otp))
	return hex.EncodeToString(mac.Sum(nil))
}

func (m *MFAServiceImpl) audit(ctx context.Context, tx *store.Store, ch *domain.MfaChallenge, event domain.MfaEventType, detail, ip, ua string) error {
	return tx.MfaAudit().Append(ctx, &domain.MfaAuditLog{
		UserID:    ch.UserID,
		TenantID:  ch.TenantID,
		EventType: event,
		Detail:    detail,
		IP:        normalizeIP(ip),
		UserAgent: netutil.TruncateUserAgent(ua),
		CreatedAt: m.now().UTC(),
	})
}

func (m *MFAServiceImpl) record(purpose domain.ChallengePurpose, outcome error) {
	label := "satisfied"
	switch {
	case outcome == nil:
	case errors.Is(outcome, domain.ErrMaxAttemptsExceeded):
		label = "failed"
	case errors.Is(outcome, domain.ErrMfaChallengeInvalid):
		label = "invalid"
	default:
		label = "mismatch"
	}
	metrics.OTPChallengesTotal.WithLabelValues(string(purpose), label).Inc()
}

var otpMax = big.NewInt(1_000_000)

func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, otpMax)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
