package impl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"grc-core/internal/domain"
	"grc-core/internal/dto"
	"grc-core/internal/jwtsigner"
	"grc-core/internal/observability/metrics"
	"grc-core/internal/store"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// ====== Config ======

type TokenConfig struct {
	AccessTTL  time.Duration // e.g. 1h
	RefreshTTL time.Duration // e.g. 7 * 24h
	// Rotate issues a new refresh token on every refresh and blacklists the
	// presented one.
	Rotate bool
}

// ====== Claims ======

// Claims is shared by access and refresh tokens. Email is only set on access
// tokens; TenantID is null for bootstrap principals.
type Claims struct {
	UserID   string  `json:"user_id"`
	Username string  `json:"username"`
	Email    string  `json:"email,omitempty"`
	TenantID *string `json:"tenant_id"`
	Type     string  `json:"type"`
	jwt.RegisteredClaims
}

func (c *Claims) Tenant() string {
	if c.TenantID == nil {
		return ""
	}
	return *c.TenantID
}

// ====== Service ======

type TokenServiceImpl struct {
	cfg    TokenConfig
	signer *jwtsigner.Signer
	store  *store.Store
	log    *slog.Logger
	now    func() time.Time
}

func NewTokenServiceHS256(cfg TokenConfig, signer *jwtsigner.Signer, st *store.Store, log *slog.Logger) *TokenServiceImpl {
	if log == nil {
		log = slog.Default()
	}
	return &TokenServiceImpl{cfg: cfg, signer: signer, store: st, log: log, now: time.Now}
}

// Issue signs access + refresh tokens and records the access token on the
// user row. A previous access token stops validating under strict revocation.
func (t *TokenServiceImpl) Issue(ctx context.Context, u *domain.User) (*dto.TokenResponse, error) {
	result := "success"
	defer func() {
		metrics.TokensIssuedTotal.WithLabelValues("issue", result).Inc()
	}()
	now := t.now().UTC()

	access, err := t.sign(u, TokenTypeAccess, now, t.cfg.AccessTTL)
	if err != nil {
		result = "failure"
		return nil, err
	}
	refresh, err := t.sign(u, TokenTypeRefresh, now, t.cfg.RefreshTTL)
	if err != nil {
		result = "failure"
		return nil, err
	}
	if err := t.store.Users().SetSessionToken(ctx, u.ID, &access); err != nil {
		result = "failure"
		return nil, err
	}
	u.SessionToken = &access

	t.log.Info("issued tokens", logAttrs(ctx, "user_id", u.ID, "tenant_id", u.GetTenantID())...)
	return &dto.TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(t.cfg.AccessTTL.Seconds()),
		TokenType:    "Bearer",
	}, nil
}

// Refresh mints a new access token for the principal named by a valid
// refresh token and makes it the current session.
func (t *TokenServiceImpl) Refresh(ctx context.Context, refreshToken string) (*dto.AccessTokenResponse, *domain.User, error) {
	result := "success"
	defer func() {
		metrics.TokensIssuedTotal.WithLabelValues("refresh", result).Inc()
	}()
	fail := func(err error) (*dto.AccessTokenResponse, *domain.User, error) {
		result = "failure"
		return nil, nil, err
	}

	claims, err := t.Parse(refreshToken, TokenTypeRefresh)
	if err != nil {
		return fail(err)
	}
	ctx = scopeTo(ctx, claims.Tenant())

	u, err := t.store.Users().GetByID(ctx, claims.UserID)
	if errors.Is(err, store.ErrRecordNotFound) {
		return fail(domain.ErrTokenInvalid)
	}
	if err != nil {
		return fail(err)
	}
	if !u.IsActive || u.GetTenantID() != claims.Tenant() {
		return fail(domain.ErrTokenInvalid)
	}

	now := t.now().UTC()
	access, err := t.sign(u, TokenTypeAccess, now, t.cfg.AccessTTL)
	if err != nil {
		return fail(err)
	}
	out := &dto.AccessTokenResponse{
		AccessToken: access,
		ExpiresIn:   int64(t.cfg.AccessTTL.Seconds()),
		TokenType:   "Bearer",
	}

	// With rotation the blacklist insert is the redemption: only the caller
	// that inserts the jti gets tokens.
	err = t.store.WithTx(ctx, func(tx *store.Store) error {
		if t.cfg.Rotate {
			claimed, err := tx.RevokedTokens().Claim(ctx, claims.ID, u.ID, claims.ExpiresAt.Time)
			if err != nil {
				return err
			}
			if !claimed {
				return fmt.Errorf("refresh token already used: %w", domain.ErrTokenInvalid)
			}
			refresh, err := t.sign(u, TokenTypeRefresh, now, t.cfg.RefreshTTL)
			if err != nil {
				return err
			}
			out.RefreshToken = refresh
		}
		return tx.Users().SetSessionToken(ctx, u.ID, &access)
	})
	if err != nil {
		return fail(err)
	}
	u.SessionToken = &access

	t.log.Info("refreshed tokens", logAttrs(ctx, "user_id", u.ID, "tenant_id", u.GetTenantID(), "rotated", t.cfg.Rotate)...)
	return out, u, nil
}

// Revoke clears the server-side session so every outstanding access token
// of the user stops validating.
func (t *TokenServiceImpl) Revoke(ctx context.Context, u *domain.User) error {
	if err := t.store.Users().SetSessionToken(ctx, u.ID, nil); err != nil {
		return err
	}
	u.SessionToken = nil
	return nil
}

// Parse verifies a token and checks its type. Every failure is reported as
// ErrTokenInvalid.
func (t *TokenServiceImpl) Parse(token, wantType string) (*Claims, error) {
	var c Claims
	if err := t.signer.Parse(token, &c); err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrTokenInvalid)
	}
	if c.Type != wantType {
		return nil, fmt.Errorf("token type %q, want %q: %w", c.Type, wantType, domain.ErrTokenInvalid)
	}
	if c.UserID == "" || c.ID == "" {
		return nil, fmt.Errorf("token without subject: %w", domain.ErrTokenInvalid)
	}
	return &c, nil
}

// TenantClaim lets the tenant resolver read the tenant from an access token.
func (t *TokenServiceImpl) TenantClaim(token string) (string, bool, error) {
	c, err := t.Parse(token, TokenTypeAccess)
	if err != nil {
		return "", false, err
	}
	if c.TenantID == nil || *c.TenantID == "" {
		return "", false, nil
	}
	return *c.TenantID, true, nil
}

// ====== Helpers ======

func (t *TokenServiceImpl) sign(u *domain.User, typ string, now time.Time, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID:           u.ID,
		Username:         u.Username,
		TenantID:         u.TenantID,
		Type:             typ,
		RegisteredClaims: t.signer.Registered(uuid.NewString(), now, ttl),
	}
	claims.Subject = u.ID
	if typ == TokenTypeAccess {
		claims.Email = u.Email
	}
	return t.signer.Sign(claims)
}
