package impl

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"grc-core/internal/audit"
	"grc-core/internal/domain"
	"grc-core/internal/dto"
	"grc-core/internal/lockout"
	"grc-core/internal/netutil"
	"grc-core/internal/observability/metrics"
	"grc-core/internal/service"
	"grc-core/internal/store"
	"grc-core/internal/tenant"
)

type AuthConfig struct {
	MFAEnabled bool
	// StrictRevocation requires the presented access token to be the
	// principal's current server-side session token.
	StrictRevocation bool
}

type AuthServiceImpl struct {
	cfg      AuthConfig
	store    *store.Store
	hasher   service.PasswordHasher
	tokens   *TokenServiceImpl
	mfa      *MFAServiceImpl
	policy   *PasswordPolicyImpl
	lockouts lockout.Store
	audit    audit.Emitter
	log      *slog.Logger
}

type AuthDeps struct {
	Store    *store.Store
	Tokens   *TokenServiceImpl
	MFA      *MFAServiceImpl
	Policy   *PasswordPolicyImpl
	Lockouts lockout.Store
	Audit    audit.Emitter
	Log      *slog.Logger
}

func NewAuthServiceImpl(cfg AuthConfig, d AuthDeps) *AuthServiceImpl {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	return &AuthServiceImpl{
		cfg:      cfg,
		store:    d.Store,
		hasher:   d.Policy.Hasher(),
		tokens:   d.Tokens,
		mfa:      d.MFA,
		policy:   d.Policy,
		lockouts: d.Lockouts,
		audit:    d.Audit,
		log:      d.Log,
	}
}

// Login verifies credentials. With MFA on it issues an email challenge and
// returns RequiresOTP; otherwise it returns the token pair.
func (a *AuthServiceImpl) Login(ctx context.Context, r dto.LoginRequest, ip, ua string) (dto.LoginStep1Result, error) {
	result := "failure"
	defer func() {
		metrics.AuthLoginsTotal.WithLabelValues(result).Inc()
	}()

	username := strings.TrimSpace(r.Username)
	if username == "" || r.Password == "" {
		result = "invalid"
		return nil, fmt.Errorf("username and password are required: %w", domain.ErrInvalidInput)
	}

	boundTenant, _ := tenant.FromContext(ctx)
	nameKey := lockout.UsernameKey(boundTenant, username)
	if locked, err := a.isLocked(ctx, nameKey); err != nil {
		return nil, err
	} else if locked {
		result = "locked"
		a.emit(ctx, audit.Event{Action: audit.LoginLocked, TenantID: boundTenant, IP: ip, UserAgent: ua})
		return nil, domain.ErrAccountLocked
	}

	u, err := findUser(ctx, a.store, a.log, username)
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}
	if u != nil {
		keys := lockout.Keys(u.ID, u.GetTenantID(), u.Username)
		if locked, err := a.isLocked(ctx, keys...); err != nil {
			return nil, err
		} else if locked {
			result = "locked"
			a.emit(ctx, audit.Event{Action: audit.LoginLocked, TenantID: u.GetTenantID(), UserID: u.ID, IP: ip, UserAgent: ua})
			return nil, domain.ErrAccountLocked
		}
	}

	if !a.credentialsOK(u, r.Password) {
		a.recordFailure(ctx, u, nameKey)
		ev := audit.Event{Action: audit.LoginFail, TenantID: boundTenant, IP: ip, UserAgent: ua}
		if u != nil {
			ev.TenantID, ev.UserID = u.GetTenantID(), u.ID
		}
		a.emit(ctx, ev)
		a.log.Info("login failed", logAttrs(ctx, "tenant_id", ev.TenantID, "user_id", ev.UserID)...)
		return nil, domain.ErrAuthenticationFailed
	}

	ctx = scopeTo(ctx, u.GetTenantID())
	a.clearLockout(ctx, u)

	if a.cfg.MFAEnabled {
		if _, err := a.mfa.Issue(ctx, u, domain.PurposeLogin, ip, ua); err != nil {
			return nil, err
		}
		result = "challenge"
		return dto.RequiresOTP{RequiresOTP: true, MaskedEmail: netutil.MaskEmail(u.Email)}, nil
	}

	resp, err := a.issue(ctx, u, ip, ua)
	if err != nil {
		return nil, err
	}
	result = "success"
	return resp, nil
}

// VerifyOTP completes an MFA login.
func (a *AuthServiceImpl) VerifyOTP(ctx context.Context, r dto.VerifyOTPRequest, ip, ua string) (*dto.TokenResponse, error) {
	if !a.cfg.MFAEnabled {
		return nil, domain.ErrMfaDisabled
	}
	if strings.TrimSpace(r.Username) == "" || strings.TrimSpace(r.OTP) == "" {
		return nil, fmt.Errorf("username and otp are required: %w", domain.ErrInvalidInput)
	}
	u, err := findUser(ctx, a.store, a.log, r.Username)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, domain.ErrMfaChallengeInvalid
	}
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, domain.ErrMfaChallengeInvalid
	}
	ctx = scopeTo(ctx, u.GetTenantID())

	if err := a.mfa.Verify(ctx, u, domain.PurposeLogin, strings.TrimSpace(r.OTP), ip, ua); err != nil {
		a.emit(ctx, audit.Event{Action: audit.LoginFail, TenantID: u.GetTenantID(), UserID: u.ID, IP: ip, UserAgent: ua,
			Metadata: map[string]any{"stage": "otp"}})
		return nil, err
	}
	metrics.AuthLoginsTotal.WithLabelValues("success").Inc()
	return a.issue(ctx, u, ip, ua)
}

// ResendOTP issues a fresh login challenge unless an unexpired one is still
// pending.
func (a *AuthServiceImpl) ResendOTP(ctx context.Context, r dto.ResendOTPRequest, ip, ua string) error {
	if !a.cfg.MFAEnabled {
		return domain.ErrMfaDisabled
	}
	u, err := findUser(ctx, a.store, a.log, r.Username)
	if err != nil {
		return err
	}
	if !u.IsActive {
		return domain.ErrUserNotFound
	}
	ctx = scopeTo(ctx, u.GetTenantID())
	active, err := a.mfa.HasActive(ctx, u)
	if err != nil {
		return err
	}
	if active {
		return domain.ErrChallengeActive
	}
	_, err = a.mfa.Issue(ctx, u, domain.PurposeLogin, ip, ua)
	return err
}

func (a *AuthServiceImpl) Refresh(ctx context.Context, r dto.RefreshRequest, ip, ua string) (*dto.AccessTokenResponse, error) {
	if strings.TrimSpace(r.RefreshToken) == "" {
		return nil, domain.ErrTokenInvalid
	}
	claims, err := a.tokens.Parse(r.RefreshToken, TokenTypeRefresh)
	if err != nil {
		return nil, err
	}
	if err := checkTenant(ctx, claims.Tenant()); err != nil {
		return nil, err
	}
	out, u, err := a.tokens.Refresh(ctx, r.RefreshToken)
	if err != nil {
		return nil, err
	}
	a.emit(ctx, audit.Event{Action: audit.Refresh, TenantID: u.GetTenantID(), UserID: u.ID, IP: ip, UserAgent: ua})
	return out, nil
}

func (a *AuthServiceImpl) Logout(ctx context.Context, p *service.Principal, ip, ua string) error {
	ctx = scopeTo(ctx, p.TenantID)
	if err := a.tokens.Revoke(ctx, p.User); err != nil {
		return err
	}
	a.emit(ctx, audit.Event{Action: audit.Logout, TenantID: p.TenantID, UserID: p.User.ID, IP: ip, UserAgent: ua})
	a.log.Info("logout", logAttrs(ctx, "tenant_id", p.TenantID, "user_id", p.User.ID)...)
	return nil
}

// Authenticate validates an access token: signature, type and expiry, then
// the principal row, revocation, and agreement between the token's tenant
// and any tenant resolved from the request.
func (a *AuthServiceImpl) Authenticate(ctx context.Context, token string) (*service.Principal, error) {
	claims, err := a.tokens.Parse(token, TokenTypeAccess)
	if err != nil {
		return nil, err
	}
	claimTenant := claims.Tenant()
	if err := checkTenant(ctx, claimTenant); err != nil {
		return nil, err
	}

	u, err := a.store.Users().GetByID(scopeTo(ctx, claimTenant), claims.UserID)
	if errors.Is(err, store.ErrRecordNotFound) {
		return nil, fmt.Errorf("unknown principal: %w", domain.ErrTokenInvalid)
	}
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, fmt.Errorf("inactive principal: %w", domain.ErrTokenInvalid)
	}
	if u.GetTenantID() != claimTenant {
		return nil, fmt.Errorf("principal tenant differs from token: %w", domain.ErrTenantMismatch)
	}
	if a.cfg.StrictRevocation {
		if u.SessionToken == nil || subtle.ConstantTimeCompare([]byte(*u.SessionToken), []byte(token)) != 1 {
			return nil, fmt.Errorf("token is not the current session: %w", domain.ErrTokenInvalid)
		}
	}
	return &service.Principal{User: u, TenantID: claimTenant, Token: token, TokenID: claims.ID}, nil
}

// ForgotPassword issues a reset challenge when the account exists. The
// caller always reports success.
func (a *AuthServiceImpl) ForgotPassword(ctx context.Context, r dto.ForgotPasswordRequest, ip, ua string) error {
	u, err := findUser(ctx, a.store, a.log, r.Username)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !u.IsActive {
		return nil
	}
	ctx = scopeTo(ctx, u.GetTenantID())
	active, err := a.mfa.HasActive(ctx, u)
	if err != nil {
		return err
	}
	if active {
		a.log.Info("reset requested while a challenge is pending", logAttrs(ctx, "user_id", u.ID)...)
		return nil
	}
	_, err = a.mfa.Issue(ctx, u, domain.PurposePasswordReset, ip, ua)
	return err
}

// ResetPassword verifies the reset OTP and sets the new password in one
// transaction; that transaction also expires pending challenges and ends
// the current session. Lockout state is cleared after commit.
func (a *AuthServiceImpl) ResetPassword(ctx context.Context, r dto.ResetPasswordRequest, ip, ua string) error {
	if strings.TrimSpace(r.Username) == "" || strings.TrimSpace(r.OTP) == "" || r.NewPassword == "" {
		return fmt.Errorf("username, otp and new_password are required: %w", domain.ErrInvalidInput)
	}
	u, err := findUser(ctx, a.store, a.log, r.Username)
	if errors.Is(err, domain.ErrUserNotFound) {
		return domain.ErrMfaChallengeInvalid
	}
	if err != nil {
		return err
	}
	ctx = scopeTo(ctx, u.GetTenantID())

	err = a.mfa.VerifyThen(ctx, u, domain.PurposePasswordReset, strings.TrimSpace(r.OTP), ip, ua, func(tx *store.Store) error {
		locked, err := tx.Users().GetByIDForUpdate(ctx, u.ID)
		if err != nil {
			return err
		}
		if err := a.policy.SetPassword(ctx, tx, locked, r.NewPassword, PasswordChange{
			Action: domain.PasswordReset, IP: ip, UserAgent: ua,
		}); err != nil {
			return err
		}
		if _, err := tx.Challenges().ExpirePending(ctx, u.ID); err != nil {
			return err
		}
		return tx.Users().SetSessionToken(ctx, u.ID, nil)
	})
	if err != nil {
		return err
	}

	a.clearLockout(ctx, u)
	a.emit(ctx, audit.Event{Action: audit.PasswordReset, TenantID: u.GetTenantID(), UserID: u.ID, IP: ip, UserAgent: ua})
	a.log.Info("password reset", logAttrs(ctx, "tenant_id", u.GetTenantID(), "user_id", u.ID)...)
	return nil
}

func (a *AuthServiceImpl) ChangePassword(ctx context.Context, p *service.Principal, r dto.ChangePasswordRequest, ip, ua string) error {
	if r.CurrentPassword == "" || r.NewPassword == "" {
		return fmt.Errorf("current_password and new_password are required: %w", domain.ErrInvalidInput)
	}
	ctx = scopeTo(ctx, p.TenantID)
	err := a.store.WithTx(ctx, func(tx *store.Store) error {
		u, err := tx.Users().GetByIDForUpdate(ctx, p.User.ID)
		if err != nil {
			return err
		}
		if ok, err := a.hasher.Verify(r.CurrentPassword, u.PasswordHash); err != nil || !ok {
			return domain.ErrAuthenticationFailed
		}
		return a.policy.SetPassword(ctx, tx, u, r.NewPassword, PasswordChange{
			Action: domain.PasswordChanged, IP: ip, UserAgent: ua,
		})
	})
	if err != nil {
		return err
	}
	a.emit(ctx, audit.Event{Action: audit.PasswordChanged, TenantID: p.TenantID, UserID: p.User.ID, IP: ip, UserAgent: ua})
	return nil
}

func (a *AuthServiceImpl) PasswordStatus(ctx context.Context, p *service.Principal) (*dto.PasswordStatus, error) {
	return a.policy.Status(scopeTo(ctx, p.TenantID), p.User)
}

// Deactivate disables a principal, ends its session and expires its pending
// challenges. ctx decides which tenant the user must belong to.
func (a *AuthServiceImpl) Deactivate(ctx context.Context, userID string) error {
	var u *domain.User
	err := a.store.WithTx(ctx, func(tx *store.Store) error {
		var err error
		u, err = tx.Users().GetByIDForUpdate(ctx, userID)
		if errors.Is(err, store.ErrRecordNotFound) {
			return domain.ErrUserNotFound
		}
		if err != nil {
			return err
		}
		if err := tx.Users().SetActive(ctx, userID, false); err != nil {
			return err
		}
		_, err = tx.Challenges().ExpirePending(ctx, userID)
		return err
	})
	if err != nil {
		return err
	}
	a.emit(ctx, audit.Event{Action: audit.UserDeactivated, TenantID: u.GetTenantID(), UserID: u.ID})
	return nil
}

// ====== Helpers ======

// checkTenant rejects a token whose tenant differs from the tenant the
// request resolved to.
func checkTenant(ctx context.Context, claimTenant string) error {
	if err := tenant.ResolutionFromContext(ctx).CheckClaim(claimTenant); err != nil {
		return err
	}
	if bound, ok := tenant.FromContext(ctx); ok && bound != claimTenant {
		return fmt.Errorf("request tenant %q, token tenant %q: %w", bound, claimTenant, domain.ErrTenantMismatch)
	}
	return nil
}

func (a *AuthServiceImpl) issue(ctx context.Context, u *domain.User, ip, ua string) (*dto.TokenResponse, error) {
	resp, err := a.tokens.Issue(ctx, u)
	if err != nil {
		return nil, err
	}
	resp.User = dto.NewUserView(u)
	a.emit(ctx, audit.Event{Action: audit.LoginOK, TenantID: u.GetTenantID(), UserID: u.ID, IP: ip, UserAgent: ua})
	return resp, nil
}

// credentialsOK runs the hash even for unknown users so response time does
// not reveal which usernames exist.
func (a *AuthServiceImpl) credentialsOK(u *domain.User, password string) bool {
	if u == nil || !u.IsActive || u.PasswordHash == "" {
		_, _ = a.hasher.Verify(password, dummyHash(a.hasher))
		return false
	}
	ok, err := a.hasher.Verify(password, u.PasswordHash)
	return err == nil && ok
}

func (a *AuthServiceImpl) isLocked(ctx context.Context, keys ...string) (bool, error) {
	if a.lockouts == nil {
		return false, nil
	}
	locked, err := lockout.AnyLocked(ctx, a.lockouts, keys...)
	if err != nil {
		// An unreachable lockout backend must not lock everybody out.
		a.log.Error("lockout check failed", logAttrs(ctx, "error", err)...)
		return false, nil
	}
	return locked, nil
}

func (a *AuthServiceImpl) recordFailure(ctx context.Context, u *domain.User, nameKey string) {
	if a.lockouts == nil {
		return
	}
	keys := []string{nameKey}
	if u != nil {
		keys = lockout.Keys(u.ID, u.GetTenantID(), u.Username)
	}
	for _, k := range keys {
		if _, err := a.lockouts.RecordFailure(ctx, k); err != nil {
			a.log.Error("lockout record failed", logAttrs(ctx, "error", err)...)
		}
	}
}

func (a *AuthServiceImpl) clearLockout(ctx context.Context, u *domain.User) {
	if a.lockouts == nil {
		return
	}
	if err := a.lockouts.Clear(ctx, lockout.Keys(u.ID, u.GetTenantID(), u.Username)...); err != nil {
		a.log.Error("lockout clear failed", logAttrs(ctx, "user_id", u.ID, "error", err)...)
	}
}

func (a *AuthServiceImpl) emit(ctx context.Context, ev audit.Event) {
	if a.audit == nil {
		return
	}
	a.audit.Emit(ctx, ev)
}
