package tenant

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"grc-core/internal/domain"
)

type fakeLookup struct {
	byID  map[string]*domain.Tenant
	bySub map[string]*domain.Tenant
}

func (f *fakeLookup) ActiveByID(_ context.Context, id string) (*domain.Tenant, error) {
	if t, ok := f.byID[id]; ok {
		return t, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeLookup) ActiveBySubdomain(_ context.Context, sub string) (*domain.Tenant, error) {
	if t, ok := f.bySub[sub]; ok {
		return t, nil
	}
	return nil, domain.ErrNotFound
}

type fakeClaims map[string]string

func (f fakeClaims) TenantClaim(tok string) (string, bool, error) {
	id, ok := f[tok]
	if !ok {
		return "", false, errors.New("bad token")
	}
	return id, id != "", nil
}

func newLookup() *fakeLookup {
	acme := &domain.Tenant{ID: "t1", Subdomain: "acme", Status: domain.TenantActive}
	globex := &domain.Tenant{ID: "t2", Subdomain: "globex", Status: domain.TenantActive}
	frozen := &domain.Tenant{ID: "t3", Subdomain: "frozen", Status: domain.TenantSuspended}
	return &fakeLookup{
		byID:  map[string]*domain.Tenant{"t1": acme, "t2": globex, "t3": frozen},
		bySub: map[string]*domain.Tenant{"acme": acme, "globex": globex, "frozen": frozen},
	}
}

func TestResolve(t *testing.T) {
	claims := fakeClaims{"tok-t1": "t1", "tok-t2": "t2"}
	r, err := NewResolver(ResolverConfig{BaseHost: "grc.test", ServiceKey: []byte("svc-key")}, newLookup(), claims)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	cases := []struct {
		name    string
		host    string
		path    string
		headers map[string]string
		want    string
		source  string
	}{
		{name: "nothing", host: "grc.test", path: "/auth/login"},
		{name: "subdomain", host: "acme.grc.test:8080", path: "/policies", want: "t1", source: StrategySubdomain},
		{name: "subdomain case", host: "ACME.grc.test", path: "/", want: "t1", source: StrategySubdomain},
		{name: "nested subdomain ignored", host: "x.acme.grc.test", path: "/"},
		{name: "suspended tenant ignored", host: "frozen.grc.test", path: "/"},
		{name: "path", host: "grc.test", path: "/t/globex/policies", want: "t2", source: StrategyPath},
		{name: "jwt wins over subdomain", host: "acme.grc.test", path: "/",
			headers: map[string]string{"Authorization": "Bearer tok-t2"}, want: "t2", source: StrategyJWT},
		{name: "invalid jwt falls through", host: "acme.grc.test", path: "/",
			headers: map[string]string{"Authorization": "Bearer garbage"}, want: "t1", source: StrategySubdomain},
		{name: "header without service key ignored", host: "grc.test", path: "/",
			headers: map[string]string{HeaderTenantID: "t2"}},
		{name: "header with wrong service key ignored", host: "grc.test", path: "/",
			headers: map[string]string{HeaderTenantID: "t2", HeaderServiceKey: "nope"}},
		{name: "header with service key", host: "acme.grc.test", path: "/",
			headers: map[string]string{HeaderTenantID: "t2", HeaderServiceKey: "svc-key"}, want: "t2", source: StrategyHeader},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "http://"+tc.host+tc.path, nil)
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			res, err := r.Resolve(req)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if res.TenantID != tc.want || res.Source != tc.source {
				t.Fatalf("got (%q, %q), want (%q, %q)", res.TenantID, res.Source, tc.want, tc.source)
			}
		})
	}
}

func TestResolve_CustomOrder(t *testing.T) {
	r, err := NewResolver(ResolverConfig{Order: []string{StrategySubdomain, StrategyJWT}, BaseHost: "grc.test"},
		newLookup(), fakeClaims{"tok-t2": "t2"})
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "http://acme.grc.test/", nil)
	req.Header.Set("Authorization", "Bearer tok-t2")

	res, err := r.Resolve(req)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.TenantID != "t1" {
		t.Fatalf("subdomain should win when listed first, got %q", res.TenantID)
	}
	if res.Hints[StrategyJWT] != "t2" {
		t.Fatalf("jwt hint not recorded: %v", res.Hints)
	}
	if err := res.CheckClaim("t2"); !errors.Is(err, domain.ErrTenantMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	if err := res.CheckClaim("t1"); err != nil {
		t.Fatalf("matching claim rejected: %v", err)
	}
}

func TestNewResolver_UnknownStrategy(t *testing.T) {
	if _, err := NewResolver(ResolverConfig{Order: []string{"cookie"}}, newLookup(), nil); err == nil {
		t.Fatalf("expected error")
	}
}

func TestMiddleware_BindsAndRequires(t *testing.T) {
	r, _ := NewResolver(ResolverConfig{BaseHost: "grc.test"}, newLookup(), nil)

	var seen string
	h := Middleware(r, nil)(RequireTenant(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		seen, _ = FromContext(req.Context())
		w.WriteHeader(http.StatusOK)
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://acme.grc.test/policies", nil))
	if rec.Code != http.StatusOK || seen != "t1" {
		t.Fatalf("expected bound request, got %d tenant=%q", rec.Code, seen)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://grc.test/policies", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestStripPathPrefix(t *testing.T) {
	var got string
	h := StripPathPrefix(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Path
	}))
	for in, want := range map[string]string{
		"/t/acme/policies/1": "/policies/1",
		"/t/acme":            "/",
		"/policies":          "/policies",
	} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, in, nil))
		if got != want {
			t.Fatalf("%s: got %q want %q", in, got, want)
		}
	}
}
