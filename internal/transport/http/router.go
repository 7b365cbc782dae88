package http

import (
	"log/slog"
	"net/http"
	"time"

	"grc-core/internal/httpx"
	"grc-core/internal/netutil"
	obsmw "grc-core/internal/observability/middleware"
	"grc-core/internal/service"
	"grc-core/internal/tenant"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterConfig struct {
	CORSOrigins []string
	// AuthRateLimit is the per-IP request budget per minute on public /auth
	// routes. Zero disables limiting.
	AuthRateLimit  int
	RequestTimeout time.Duration
	// TrustedProxies are the peers allowed to report the client address in
	// X-Forwarded-For or X-Real-IP.
	TrustedProxies netutil.TrustedProxies
}

func NewRouter(cfg RouterConfig, resolver *tenant.Resolver, auth service.AuthService, policies service.PolicyService, log *slog.Logger) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	h := &Handler{auth: auth, policies: policies, proxies: cfg.TrustedProxies, log: log}

	r := chi.NewRouter()

	// --- Middlewares ---
	r.Use(obsmw.WithRequestAndTrace)
	r.Use(chimw.Recoverer)
	r.Use(obsmw.WithMetrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   originsIfSet(cfg.CORSOrigins),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID", "X-Trace-ID", tenant.HeaderTenantID, tenant.HeaderServiceKey},
		ExposedHeaders:   []string{"X-Request-ID", "X-Trace-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(chimw.Timeout(cfg.RequestTimeout))
	// Resolution reads the /t/<slug> prefix before it is stripped.
	r.Use(tenant.Middleware(resolver, log))
	r.Use(tenant.StripPathPrefix)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.Use(httpx.NoStore)

		r.Group(func(pub chi.Router) {
			if cfg.AuthRateLimit > 0 {
				pub.Use(httprate.Limit(cfg.AuthRateLimit, time.Minute, httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
					return cfg.TrustedProxies.ClientIP(r), nil
				})))
			}
			pub.Post("/login", h.login)
			pub.Post("/verify-otp", h.verifyOTP)
			pub.Post("/resend-otp", h.resendOTP)
			pub.Post("/refresh", h.refresh)
			pub.Post("/forgot-password", h.forgotPassword)
			pub.Post("/reset-password", h.resetPassword)
		})

		r.Group(func(pr chi.Router) {
			pr.Use(h.requireAuth)
			pr.Post("/logout", h.logout)
			pr.Get("/validate", h.validate)
			pr.Post("/change-password", h.changePassword)
			pr.Get("/password-status", h.passwordStatus)
		})
	})

	r.Route("/policies", func(r chi.Router) {
		r.Use(h.requireAuth, tenant.RequireTenant)
		r.Get("/", h.listPolicies)
		r.Post("/", h.createPolicy)
		r.Get("/{id}", h.getPolicy)
	})

	return r
}

func originsIfSet(in []string) []string {
	if len(in) == 0 {
		return []string{"*"}
	}
	return in
}
