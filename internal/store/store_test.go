package store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"grc-core/internal/audit"
	"grc-core/internal/domain"
	"grc-core/internal/fieldcrypt"
	"grc-core/internal/tenant"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupStore(t *testing.T) *Store {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.Use(tenant.NewPlugin()); err != nil {
		t.Fatalf("tenant plugin: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	c, err := fieldcrypt.NewCipher(bytes.Repeat([]byte{7}, 32))
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}
	sealer := fieldcrypt.NewSealer(c, fieldcrypt.DefaultConfig(), fieldcrypt.FailPlaceholder,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	return New(db, sealer)
}

func sys() context.Context { return tenant.AsSystem(context.Background()) }

func seedTenant(t *testing.T, s *Store, id, sub string) {
	t.Helper()
	if err := s.Tenants().Create(sys(), &domain.Tenant{ID: id, Name: sub, Subdomain: sub}); err != nil {
		t.Fatalf("seed tenant: %v", err)
	}
}

func TestUser_EmailEncryptedAtRest(t *testing.T) {
	s := setupStore(t)
	seedTenant(t, s, "t1", "acme")
	ctx := tenant.WithTenant(context.Background(), "t1")

	u := &domain.User{Username: "alice", Email: "alice@acme.test", PasswordHash: "h", IsActive: true}
	if err := s.Users().Create(ctx, u); err != nil {
		t.Fatalf("create: %v", err)
	}
	if u.Email != "alice@acme.test" {
		t.Fatalf("in-memory value should stay plaintext after save, got %q", u.Email)
	}

	var stored string
	if err := s.DB.Table("users").Select("email").Where("id = ?", u.ID).Scan(&stored).Error; err != nil {
		t.Fatalf("raw read: %v", err)
	}
	if stored == "alice@acme.test" || !fieldcrypt.IsEncrypted(stored) {
		t.Fatalf("stored email is not a token: %q", stored)
	}

	loaded, err := s.Users().GetByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.Email != "alice@acme.test" || loaded.AnyDecryptionFailed() {
		t.Fatalf("loaded email = %q flagged=%v", loaded.Email, loaded.AnyDecryptionFailed())
	}

	// Damage the stored token: the load is flagged instead of failing.
	b := []byte(stored)
	i := len(b) - 6
	if b[i] == 'A' {
		b[i] = 'B'
	} else {
		b[i] = 'A'
	}
	if err := s.DB.Table("users").Where("id = ?", u.ID).Update("email", string(b)).Error; err != nil {
		t.Fatalf("corrupt: %v", err)
	}

	loaded, err = s.Users().GetByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("get after corruption: %v", err)
	}
	if !loaded.DecryptionFailed("email") || loaded.Email != fieldcrypt.Placeholder {
		t.Fatalf("expected flagged placeholder, got %q", loaded.Email)
	}
	if loaded.FirstName != "" || loaded.DecryptionFailed("first_name") {
		t.Fatalf("other fields must be unaffected")
	}
}

func TestUser_TenantScopedLookup(t *testing.T) {
	s := setupStore(t)
	seedTenant(t, s, "t1", "acme")
	seedTenant(t, s, "t2", "globex")

	for _, tid := range []string{"t1", "t2"} {
		ctx := tenant.WithTenant(context.Background(), tid)
		if err := s.Users().Create(ctx, &domain.User{Username: "sam", PasswordHash: "h", IsActive: true}); err != nil {
			t.Fatalf("create in %s: %v", tid, err)
		}
	}

	got, err := s.Users().FindByUsername(tenant.WithTenant(context.Background(), "t2"), "sam")
	if err != nil || len(got) != 1 || got[0].GetTenantID() != "t2" {
		t.Fatalf("tenant lookup: %v %v", got, err)
	}

	got, err = s.Users().FindByUsername(sys(), "sam")
	if err != nil || len(got) != 2 {
		t.Fatalf("system lookup should see both, got %d %v", len(got), err)
	}
}

func TestUser_UpdatesAndSessionToken(t *testing.T) {
	s := setupStore(t)
	seedTenant(t, s, "t1", "acme")
	ctx := tenant.WithTenant(context.Background(), "t1")

	u := &domain.User{Username: "bob", PasswordHash: "h1", IsActive: true}
	if err := s.Users().Create(ctx, u); err != nil {
		t.Fatalf("create: %v", err)
	}

	tok := "access-token"
	if err := s.Users().SetSessionToken(ctx, u.ID, &tok); err != nil {
		t.Fatalf("set token: %v", err)
	}
	if err := s.Users().UpdatePasswordHash(ctx, u.ID, "h2"); err != nil {
		t.Fatalf("update hash: %v", err)
	}
	got, _ := s.Users().GetByID(ctx, u.ID)
	if got.SessionToken == nil || *got.SessionToken != tok || got.PasswordHash != "h2" {
		t.Fatalf("unexpected user: %+v", got)
	}

	if err := s.Users().SetActive(ctx, u.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	got, _ = s.Users().GetByID(ctx, u.ID)
	if got.IsActive || got.SessionToken != nil {
		t.Fatalf("deactivation must clear the session: %+v", got)
	}

	other := tenant.WithTenant(context.Background(), "t2")
	if err := s.Users().UpdatePasswordHash(other, u.ID, "x"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("cross-tenant update must miss, got %v", err)
	}
}

func TestChallenges_PendingLifecycle(t *testing.T) {
	s := setupStore(t)
	seedTenant(t, s, "t1", "acme")
	ctx := tenant.WithTenant(context.Background(), "t1")
	now := time.Now().UTC()

	mk := func() *domain.MfaChallenge {
		return &domain.MfaChallenge{
			UserID: "u1", Purpose: domain.PurposeLogin, OTPHash: "x",
			ExpiresAt: now.Add(10 * time.Minute), Status: domain.ChallengePending,
		}
	}

	first := mk()
	if err := s.Challenges().Create(ctx, first); err != nil {
		t.Fatalf("create: %v", err)
	}
	if ok, _ := s.Challenges().HasActivePending(ctx, "u1", now); !ok {
		t.Fatalf("expected active pending challenge")
	}

	err := s.WithTx(ctx, func(tx *Store) error {
		if _, err := tx.Challenges().ExpirePending(ctx, "u1"); err != nil {
			return err
		}
		return tx.Challenges().Create(ctx, mk())
	})
	if err != nil {
		t.Fatalf("reissue: %v", err)
	}

	all, _ := s.Challenges().ListForUser(ctx, "u1")
	pending := 0
	for _, c := range all {
		if c.Status == domain.ChallengePending {
			pending++
		}
	}
	if len(all) != 2 || pending != 1 {
		t.Fatalf("expected exactly one pending of two, got %d of %d", pending, len(all))
	}

	var latest *domain.MfaChallenge
	err = s.WithTx(ctx, func(tx *Store) error {
		c, err := tx.Challenges().LatestPendingForUpdate(ctx, "u1", domain.PurposeLogin)
		if err != nil {
			return err
		}
		c.Attempts++
		c.Status = domain.ChallengeFailed
		latest = c
		return tx.Challenges().SaveState(ctx, c)
	})
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if latest.ID == first.ID {
		t.Fatalf("latest pending should be the reissued challenge")
	}
	got, _ := s.Challenges().GetByID(ctx, latest.ID)
	if got.Attempts != 1 || got.Status != domain.ChallengeFailed {
		t.Fatalf("state not saved: %+v", got)
	}

	if _, err := s.Challenges().LatestPendingForUpdate(ctx, "u1", domain.PurposeLogin); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected no pending challenge, got %v", err)
	}
}

func TestPasswordLogs_RecentAndLatest(t *testing.T) {
	s := setupStore(t)
	seedTenant(t, s, "t1", "acme")
	ctx := tenant.WithTenant(context.Background(), "t1")

	if l, err := s.PasswordLogs().Latest(ctx, "u1"); err != nil || l != nil {
		t.Fatalf("expected no history, got %v %v", l, err)
	}

	base := time.Now().UTC().Add(-time.Hour)
	for i, h := range []string{"h0", "h1", "h2", "h3"} {
		old := "prev-" + h
		l := &domain.PasswordLog{
			UserID: "u1", Username: "carol", NewPasswordHash: h, Action: domain.PasswordChanged,
			OldPasswordHash: &old, IP: "10.0.0.1", CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.PasswordLogs().Append(ctx, l); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	var raw string
	s.DB.Table("password_logs").Select("new_password_hash").Where("user_id = ?", "u1").Limit(1).Scan(&raw)
	if !fieldcrypt.IsEncrypted(raw) {
		t.Fatalf("password log hash stored in clear: %q", raw)
	}

	recent, err := s.PasswordLogs().Recent(ctx, "u1", 3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 3 || recent[0].NewPasswordHash != "h3" || recent[2].NewPasswordHash != "h1" {
		t.Fatalf("unexpected order: %+v", recent)
	}
	if recent[0].OldPasswordHash == nil || *recent[0].OldPasswordHash != "prev-h3" {
		t.Fatalf("old hash not decrypted")
	}

	latest, _ := s.PasswordLogs().Latest(ctx, "u1")
	if latest == nil || latest.NewPasswordHash != "h3" {
		t.Fatalf("latest = %+v", latest)
	}
}

func TestPolicies_Isolation(t *testing.T) {
	s := setupStore(t)
	seedTenant(t, s, "t1", "acme")
	seedTenant(t, s, "t2", "globex")
	ctx1 := tenant.WithTenant(context.Background(), "t1")
	ctx2 := tenant.WithTenant(context.Background(), "t2")

	p := &domain.Policy{Name: "P-A", Description: "confidential"}
	if err := s.Policies().Create(ctx1, p); err != nil {
		t.Fatalf("create: %v", err)
	}

	list, err := s.Policies().List(ctx2)
	if err != nil || len(list) != 0 {
		t.Fatalf("tenant 2 sees %d policies (%v)", len(list), err)
	}
	if _, err := s.Policies().Get(ctx2, p.ID); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("cross-tenant get: %v", err)
	}

	got, err := s.Policies().Get(ctx1, p.ID)
	if err != nil || got.Description != "confidential" {
		t.Fatalf("own get: %+v %v", got, err)
	}
}

func TestRevokedTokens(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	if err := s.RevokedTokens().Add(ctx, "jti-1", "u1", exp); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.RevokedTokens().Add(ctx, "jti-1", "u1", exp); err != nil {
		t.Fatalf("duplicate add: %v", err)
	}
	if claimed, err := s.RevokedTokens().Claim(ctx, "jti-1", "u1", exp); err != nil || claimed {
		t.Fatalf("second claim of jti-1: claimed=%v err=%v", claimed, err)
	}
	if claimed, err := s.RevokedTokens().Claim(ctx, "jti-3", "u1", exp); err != nil || !claimed {
		t.Fatalf("first claim of jti-3: claimed=%v err=%v", claimed, err)
	}
	if ok, _ := s.RevokedTokens().IsRevoked(ctx, "jti-1"); !ok {
		t.Fatalf("expected revoked")
	}
	if ok, _ := s.RevokedTokens().IsRevoked(ctx, "jti-2"); ok {
		t.Fatalf("unexpected revoked")
	}
	n, err := s.RevokedTokens().PurgeExpired(ctx, exp.Add(time.Minute))
	if err != nil || n != 2 {
		t.Fatalf("purge: %d %v", n, err)
	}
}

func TestTenantLookup(t *testing.T) {
	s := setupStore(t)
	seedTenant(t, s, "t1", "Acme")
	if err := s.Tenants().Create(sys(), &domain.Tenant{ID: "t2", Name: "x", Subdomain: "frozen", Status: domain.TenantSuspended}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	got, err := s.Tenants().ActiveBySubdomain(context.Background(), "ACME")
	if err != nil || got.ID != "t1" {
		t.Fatalf("lookup by subdomain: %+v %v", got, err)
	}
	if _, err := s.Tenants().ActiveByID(context.Background(), "t2"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("suspended tenant must not resolve, got %v", err)
	}
}

func TestAuditLog_SystemAndTenantRows(t *testing.T) {
	s := setupStore(t)
	seedTenant(t, s, "t1", "acme")

	uid := "u1"
	if err := s.AppendAudit(tenant.WithTenant(context.Background(), "t1"), &domain.AuditLog{UserID: &uid, Action: "login_ok", IP: "10.0.0.1"}); err != nil {
		t.Fatalf("tenant row: %v", err)
	}
	if err := s.AppendAudit(sys(), &domain.AuditLog{Action: "login_fail"}); err != nil {
		t.Fatalf("system row: %v", err)
	}

	rows, err := s.ListAudit(sys(), 10)
	if err != nil || len(rows) != 2 {
		t.Fatalf("list: %d %v", len(rows), err)
	}
	for _, r := range rows {
		if r.Action == "login_ok" && (r.IP != "10.0.0.1" || r.GetTenantID() != "t1") {
			t.Fatalf("unexpected row: %+v", r)
		}
	}
}

// syncEmitter writes events as they are emitted.
type syncEmitter struct{ sink audit.Sink }

func (e syncEmitter) Emit(ctx context.Context, ev audit.Event) { _ = e.sink.Write(ctx, ev) }

func TestDecryptFailureIsAudited(t *testing.T) {
	s := setupStore(t)
	seedTenant(t, s, "t1", "acme")
	s.Sealer().OnDecryptFailure(audit.DecryptFailureHook(syncEmitter{sink: audit.RepoSink{Repo: s}}))
	ctx := tenant.WithTenant(context.Background(), "t1")

	p := &domain.Policy{Name: "retention", Description: "keep logs for 7 years"}
	if err := s.Policies().Create(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}
	var stored string
	if err := s.DB.Table("policies").Select("description").Where("id = ?", p.ID).Scan(&stored).Error; err != nil {
		t.Fatalf("raw read: %v", err)
	}
	b := []byte(stored)
	i := len(b) - 6
	if b[i] == 'A' {
		b[i] = 'B'
	} else {
		b[i] = 'A'
	}
	if err := s.DB.Table("policies").Where("id = ?", p.ID).Update("description", string(b)).Error; err != nil {
		t.Fatalf("corrupt: %v", err)
	}

	loaded, err := s.Policies().Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !loaded.DecryptionFailed("description") {
		t.Fatalf("description should be flagged")
	}

	rows, err := s.ListAudit(sys(), 10)
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	var found *domain.AuditLog
	for _, r := range rows {
		if r.Action == string(audit.DecryptFailed) {
			found = r
		}
	}
	if found == nil {
		t.Fatalf("no decrypt_failed row in %d audit rows", len(rows))
	}
	if found.GetTenantID() != "t1" {
		t.Fatalf("audit row tenant = %q", found.GetTenantID())
	}
	for _, want := range []string{`"table":"policies"`, `"field":"description"`, `"record_id":"` + p.ID + `"`} {
		if !strings.Contains(found.Metadata, want) {
			t.Fatalf("metadata %s missing %s", found.Metadata, want)
		}
	}
}
