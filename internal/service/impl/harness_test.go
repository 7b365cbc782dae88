package impl

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"grc-core/internal/audit"
	"grc-core/internal/domain"
	"grc-core/internal/fieldcrypt"
	"grc-core/internal/jwtsigner"
	"grc-core/internal/lockout"
	"grc-core/internal/mailer"
	"grc-core/internal/service"
	"grc-core/internal/store"
	"grc-core/internal/tenant"
	"grc-core/pkg/db"

	"github.com/google/uuid"
)

// fastArgon2 keeps tests quick; production uses DefaultArgon2Params.
var fastArgon2 = Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

var signingKey = bytes.Repeat([]byte("s"), 32)

type harnessOpts struct {
	mfa         bool
	rotate      bool
	strict      bool
	history     int
	maxAttempts int
	failOpen    bool
}

func defaultOpts() harnessOpts {
	return harnessOpts{mfa: true, strict: true, history: 5, maxAttempts: 3, failOpen: true}
}

type harness struct {
	store  *store.Store
	auth   *AuthServiceImpl
	tokens *TokenServiceImpl
	mfa    *MFAServiceImpl
	policy *PasswordPolicyImpl
	prov   *ProvisioningServiceImpl
	mail   *mailer.Capture
	audit  *audit.Recorder
	locks  *lockout.Memory
	signer *jwtsigner.Signer
}

func newHarness(t *testing.T, o harnessOpts) *harness {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	gdb, err := db.OpenGorm(db.Config{
		Driver: db.DriverSQLite,
		DSN:    "file:" + uuid.NewString() + "?mode=memory&cache=shared",
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, _ := gdb.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := store.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	c, err := fieldcrypt.NewCipher(bytes.Repeat([]byte{9}, 32))
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}
	st := store.New(gdb, fieldcrypt.NewSealer(c, fieldcrypt.DefaultConfig(), fieldcrypt.FailPlaceholder, log))

	signer, err := jwtsigner.New(signingKey, "grc-core")
	if err != nil {
		t.Fatalf("signer: %v", err)
	}

	h := &harness{
		store:  st,
		mail:   &mailer.Capture{},
		audit:  &audit.Recorder{},
		locks:  lockout.NewMemory(lockout.Config{Threshold: 3, Duration: time.Minute}),
		signer: signer,
	}
	h.policy = NewPasswordPolicy(PasswordPolicyConfig{
		HistoryCount:    o.history,
		ExpiryDays:      90,
		WarningDays:     7,
		MinLength:       8,
		HistoryFailOpen: o.failOpen,
	}, st, NewArgon2Hasher(fastArgon2), log)
	h.tokens = NewTokenServiceHS256(TokenConfig{
		AccessTTL:  time.Hour,
		RefreshTTL: 7 * 24 * time.Hour,
		Rotate:     o.rotate,
	}, signer, st, log)
	h.mfa = NewMFAService(MFAConfig{
		TTL:          10 * time.Minute,
		MaxAttempts:  o.maxAttempts,
		PlatformName: "GRC Platform",
		HashKey:      signingKey,
	}, st, h.mail, log)
	h.prov = NewProvisioningService(st, h.policy, log)
	h.auth = NewAuthServiceImpl(AuthConfig{MFAEnabled: o.mfa, StrictRevocation: o.strict}, AuthDeps{
		Store:    st,
		Tokens:   h.tokens,
		MFA:      h.mfa,
		Policy:   h.policy,
		Lockouts: h.locks,
		Audit:    h.audit,
		Log:      log,
	})
	return h
}

func (h *harness) tenant(t *testing.T, name, sub string) *domain.Tenant {
	t.Helper()
	tn, err := h.prov.CreateTenant(context.Background(), name, sub)
	if err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	return tn
}

func (h *harness) user(t *testing.T, tenantID, username, email, password string) *domain.User {
	t.Helper()
	u, err := h.prov.CreateUser(context.Background(), service.NewUser{
		TenantID: tenantID,
		Username: username,
		Email:    email,
		Password: password,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

// reload reads the user row as the system.
func (h *harness) reload(t *testing.T, id string) *domain.User {
	t.Helper()
	u, err := h.store.Users().GetByID(tenant.AsSystem(context.Background()), id)
	if err != nil {
		t.Fatalf("reload user: %v", err)
	}
	return u
}

func (h *harness) lastOTP(t *testing.T, email string) string {
	t.Helper()
	n, ok := h.mail.Last(email)
	if !ok {
		t.Fatalf("no otp sent to %s", email)
	}
	return n.OTP
}

func (h *harness) challenges(t *testing.T, userID string) []domain.MfaChallenge {
	t.Helper()
	out, err := h.store.Challenges().ListForUser(tenant.AsSystem(context.Background()), userID)
	if err != nil {
		t.Fatalf("list challenges: %v", err)
	}
	return out
}

// wrongOTP returns a six digit code different from otp.
func wrongOTP(otp string) string {
	if otp == "000000" {
		return "000001"
	}
	return "000000"
}
