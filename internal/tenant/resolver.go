package tenant

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"grc-core/internal/domain"
)

const (
	StrategyJWT       = "jwt"
	StrategyHeader    = "header"
	StrategySubdomain = "subdomain"
	StrategyPath      = "path"

	HeaderTenantID   = "X-Tenant-Id"
	HeaderServiceKey = "X-Service-Key"

	pathPrefix = "/t/"
)

// DefaultOrder is the resolution order when none is configured.
var DefaultOrder = []string{StrategyJWT, StrategyHeader, StrategySubdomain, StrategyPath}

// Lookup finds active tenants. Implementations must not apply tenant
// filtering.
type Lookup interface {
	ActiveByID(ctx context.Context, id string) (*domain.Tenant, error)
	ActiveBySubdomain(ctx context.Context, subdomain string) (*domain.Tenant, error)
}

// ClaimParser extracts the tenant claim from a bearer token. It only checks
// signature, type and expiry; revocation is checked later by authentication.
type ClaimParser interface {
	TenantClaim(token string) (tenantID string, ok bool, err error)
}

// Resolution is the outcome of running the strategies on one request.
type Resolution struct {
	TenantID string
	Source   string
	// Hints holds every strategy that produced a tenant, winner included.
	Hints map[string]string
}

func (r *Resolution) Resolved() bool { return r != nil && r.TenantID != "" }

// CheckClaim compares the token claim against tenants resolved from the
// request itself (header, subdomain, path).
func (r *Resolution) CheckClaim(claimTenant string) error {
	if r == nil {
		return nil
	}
	for src, id := range r.Hints {
		if src == StrategyJWT {
			continue
		}
		if id != claimTenant {
			return fmt.Errorf("%s resolved %q, token claims %q: %w", src, id, claimTenant, domain.ErrTenantMismatch)
		}
	}
	return nil
}

type ResolverConfig struct {
	Order []string
	// BaseHost is the host suffix for subdomain resolution, e.g. "grc.example.com".
	BaseHost string
	// ServiceKey authorises the X-Tenant-Id header. Empty disables the header.
	ServiceKey []byte
}

type Resolver struct {
	cfg    ResolverConfig
	lookup Lookup
	claims ClaimParser
}

func NewResolver(cfg ResolverConfig, lookup Lookup, claims ClaimParser) (*Resolver, error) {
	if len(cfg.Order) == 0 {
		cfg.Order = DefaultOrder
	}
	for _, s := range cfg.Order {
		switch s {
		case StrategyJWT, StrategyHeader, StrategySubdomain, StrategyPath:
		default:
			return nil, fmt.Errorf("unknown tenant resolution strategy %q", s)
		}
	}
	cfg.BaseHost = strings.ToLower(strings.TrimPrefix(cfg.BaseHost, "."))
	return &Resolver{cfg: cfg, lookup: lookup, claims: claims}, nil
}

// Resolve runs every configured strategy. The first one to produce an active
// tenant wins. A token that fails to parse is ignored here and rejected by
// authentication on protected routes.
func (r *Resolver) Resolve(req *http.Request) (*Resolution, error) {
	res := &Resolution{Hints: map[string]string{}}
	ctx := req.Context()

	for _, s := range r.cfg.Order {
		var (
			id  string
			err error
		)
		switch s {
		case StrategyJWT:
			id = r.fromJWT(req)
		case StrategyHeader:
			id, err = r.fromHeader(ctx, req)
		case StrategySubdomain:
			id, err = r.fromSubdomain(ctx, req)
		case StrategyPath:
			id, err = r.fromPath(ctx, req)
		}
		if err != nil {
			return nil, err
		}
		if id == "" {
			continue
		}
		res.Hints[s] = id
		if res.TenantID == "" {
			res.TenantID, res.Source = id, s
		}
	}
	return res, nil
}

func (r *Resolver) fromJWT(req *http.Request) string {
	if r.claims == nil {
		return ""
	}
	tok := BearerToken(req)
	if tok == "" {
		return ""
	}
	id, ok, err := r.claims.TenantClaim(tok)
	if err != nil || !ok {
		return ""
	}
	return id
}

func (r *Resolver) fromHeader(ctx context.Context, req *http.Request) (string, error) {
	id := strings.TrimSpace(req.Header.Get(HeaderTenantID))
	if id == "" {
		return "", nil
	}
	key := req.Header.Get(HeaderServiceKey)
	if len(r.cfg.ServiceKey) == 0 || subtle.ConstantTimeCompare([]byte(key), r.cfg.ServiceKey) != 1 {
		return "", nil
	}
	return r.active(r.lookup.ActiveByID(ctx, id))
}

func (r *Resolver) fromSubdomain(ctx context.Context, req *http.Request) (string, error) {
	sub := Subdomain(req.Host, r.cfg.BaseHost)
	if sub == "" {
		return "", nil
	}
	return r.active(r.lookup.ActiveBySubdomain(ctx, sub))
}

func (r *Resolver) fromPath(ctx context.Context, req *http.Request) (string, error) {
	slug := PathSlug(req.URL.Path)
	if slug == "" {
		return "", nil
	}
	return r.active(r.lookup.ActiveBySubdomain(ctx, slug))
}

func (r *Resolver) active(t *domain.Tenant, err error) (string, error) {
	if errors.Is(err, domain.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if t == nil || !t.IsActive() {
		return "", nil
	}
	return t.ID, nil
}

// Subdomain returns the single leftmost label of host below baseHost, lower
// cased. Ports are ignored.
func Subdomain(host, baseHost string) string {
	if baseHost == "" {
		return ""
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	suffix := "." + baseHost
	if !strings.HasSuffix(host, suffix) {
		return ""
	}
	label := strings.TrimSuffix(host, suffix)
	if label == "" || strings.Contains(label, ".") {
		return ""
	}
	return label
}

// PathSlug extracts <slug> from /t/<slug>/...
func PathSlug(path string) string {
	if !strings.HasPrefix(path, pathPrefix) {
		return ""
	}
	rest := path[len(pathPrefix):]
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	return strings.ToLower(rest)
}

// BearerToken returns the token from an Authorization: Bearer header.
func BearerToken(req *http.Request) string {
	h := req.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}
