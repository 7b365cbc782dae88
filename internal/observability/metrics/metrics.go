package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	AuthLoginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Total number of step-1 login attempts.",
		},
		[]string{"result"},
	)

	OTPChallengesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_otp_challenges_total",
			Help: "OTP challenge transitions by purpose and outcome.",
		},
		[]string{"purpose", "outcome"},
	)

	TokensIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_tokens_issued_total",
			Help: "Total number of tokens issued or refreshed.",
		},
		[]string{"flow", "result"},
	)

	PasswordWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_password_writes_total",
			Help: "Password writes by action and result.",
		},
		[]string{"action", "result"},
	)

	PasswordLogFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "auth_password_log_failures_total",
			Help: "Password log rows that could not be written.",
		},
	)

	DecryptFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldcrypt_decrypt_failures_total",
			Help: "Stored values that failed to decrypt on load.",
		},
		[]string{"entity", "field"},
	)

	TenantRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenant_rejections_total",
			Help: "Requests or writes rejected by tenant enforcement.",
		},
		[]string{"reason"},
	)

	MailDispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mail_dispatch_total",
			Help: "Outbound notification results.",
		},
		[]string{"kind", "result"},
	)

	AuditEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_events_total",
			Help: "General audit events by result.",
		},
		[]string{"result"},
	)
)

// MustRegister registers every collector with the default registry, labelled
// with the service name.
func MustRegister(serviceName string) {
	reg := prometheus.WrapRegistererWith(prometheus.Labels{"service": serviceName}, prometheus.DefaultRegisterer)
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
		AuthLoginsTotal,
		OTPChallengesTotal,
		TokensIssuedTotal,
		PasswordWritesTotal,
		PasswordLogFailuresTotal,
		DecryptFailuresTotal,
		TenantRejectionsTotal,
		MailDispatchTotal,
		AuditEventsTotal,
	)
}
