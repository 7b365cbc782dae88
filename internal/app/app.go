// Package app assembles the core from configuration: key manager, database,
// field sealer, services, dispatchers and the HTTP router.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"grc-core/internal/audit"
	"grc-core/internal/config"
	"grc-core/internal/fieldcrypt"
	"grc-core/internal/jwtsigner"
	"grc-core/internal/keymgr"
	"grc-core/internal/lockout"
	"grc-core/internal/mailer"
	"grc-core/internal/netutil"
	impl "grc-core/internal/service/impl"
	"grc-core/internal/store"
	"grc-core/internal/tenant"
	httpx "grc-core/internal/transport/http"
	"grc-core/pkg/db"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Keys builds the secret backend chain named by the configuration.
func Keys(cfg config.CoreConfig, log *slog.Logger) (*keymgr.Manager, error) {
	return keymgr.FromOptions(keymgr.Options{
		Priority:   cfg.KeyBackendPriority,
		Production: cfg.Production(),
		Vault: keymgr.VaultConfig{
			Addr:    cfg.VaultAddr,
			Token:   cfg.VaultToken,
			Mount:   cfg.VaultMount,
			Path:    cfg.VaultPath,
			Timeout: cfg.VaultTimeout,
		},
		FileDir: cfg.KeyFileDir,
	}, log)
}

// OpenStore connects to the database and installs the field sealer. The
// encryption config is checked against the model schemas before use.
func OpenStore(ctx context.Context, cfg config.CoreConfig, keys *keymgr.Manager, log *slog.Logger) (*store.Store, *gorm.DB, error) {
	enc := fieldcrypt.DefaultConfig()
	if cfg.EncryptionConfigFile != "" {
		loaded, err := fieldcrypt.LoadConfig(cfg.EncryptionConfigFile)
		if err != nil {
			return nil, nil, err
		}
		enc = loaded
	}
	if err := fieldcrypt.Validate(enc, store.Models()...); err != nil {
		return nil, nil, err
	}
	mode, err := fieldcrypt.ParseFailureMode(cfg.DecryptFailureMode)
	if err != nil {
		return nil, nil, err
	}

	key, err := keys.EncryptionKey(ctx)
	if err != nil {
		return nil, nil, err
	}
	previous, err := keys.PreviousEncryptionKeys(ctx)
	if err != nil {
		return nil, nil, err
	}
	cipher, err := fieldcrypt.NewCipher(key, previous...)
	if err != nil {
		return nil, nil, err
	}

	gdb, err := db.OpenGorm(db.Config{
		Driver:       cfg.DatabaseDriver,
		DSN:          cfg.DatabaseURL,
		LogSQL:       cfg.LogSQL,
		MaxOpenConns: cfg.DBMaxOpenConns,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	st := store.New(gdb, fieldcrypt.NewSealer(cipher, enc, mode, log)).WithQueryTimeout(cfg.DBQueryTimeout)
	log.Info("store ready",
		"driver", cfg.DatabaseDriver,
		"encrypted_tables", enc.Tables(),
		"decrypt_failure_mode", mode,
		"previous_keys", len(previous),
	)
	return st, gdb, nil
}

// Services holds the concrete service graph.
type Services struct {
	Auth         *impl.AuthServiceImpl
	Tokens       *impl.TokenServiceImpl
	MFA          *impl.MFAServiceImpl
	Policy       *impl.PasswordPolicyImpl
	Provisioning *impl.ProvisioningServiceImpl
	Policies     *impl.PolicyServiceImpl
}

// Collaborators are the side channels the services write to.
type Collaborators struct {
	Mail     mailer.Sender
	Audit    audit.Emitter
	Lockouts lockout.Store
}

func BuildServices(cfg config.CoreConfig, st *store.Store, signingKey []byte, c Collaborators, log *slog.Logger) (*Services, error) {
	signer, err := jwtsigner.New(signingKey, cfg.Issuer)
	if err != nil {
		return nil, err
	}

	policy := impl.NewPasswordPolicy(impl.PasswordPolicyConfig{
		HistoryCount:    cfg.PasswordHistoryCount,
		ExpiryDays:      cfg.PasswordExpiryDays,
		WarningDays:     cfg.PasswordWarningDays,
		MinLength:       cfg.PasswordMinLength,
		HistoryFailOpen: cfg.PasswordHistoryFailOpen,
	}, st, impl.NewPasswordServiceArgon2id(), log)

	tokens := impl.NewTokenServiceHS256(impl.TokenConfig{
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
		Rotate:     cfg.RefreshTokenRotation,
	}, signer, st, log)

	mfa := impl.NewMFAService(impl.MFAConfig{
		TTL:          cfg.OTPTTL,
		MaxAttempts:  cfg.OTPMaxAttempts,
		PlatformName: cfg.PlatformName,
		HashKey:      signingKey,
	}, st, c.Mail, log)

	auth := impl.NewAuthServiceImpl(impl.AuthConfig{
		MFAEnabled:       cfg.MFAEnabled,
		StrictRevocation: cfg.StrictTokenRevocation,
	}, impl.AuthDeps{
		Store:    st,
		Tokens:   tokens,
		MFA:      mfa,
		Policy:   policy,
		Lockouts: c.Lockouts,
		Audit:    c.Audit,
		Log:      log,
	})

	return &Services{
		Auth:         auth,
		Tokens:       tokens,
		MFA:          mfa,
		Policy:       policy,
		Provisioning: impl.NewProvisioningService(st, policy, log),
		Policies:     impl.NewPolicyService(st),
	}, nil
}

// NewLockoutStore returns the configured lockout backend. The returned close
// func releases the redis client, if any.
func NewLockoutStore(ctx context.Context, cfg config.CoreConfig, log *slog.Logger) (lockout.Store, func() error, error) {
	lc := lockout.Config{Threshold: cfg.LockoutThreshold, Duration: cfg.LockoutDuration}
	if cfg.LockoutBackend != "redis" {
		return lockout.NewMemory(lc), func() error { return nil }, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		// Lockout checks fail open.
		log.Warn("redis unreachable at startup", "addr", opts.Addr, "error", err)
	}
	return lockout.NewRedis(client, lc), client.Close, nil
}

// NewMailTransport picks the transport named by MAIL_TRANSPORT.
func NewMailTransport(cfg config.CoreConfig, log *slog.Logger) mailer.Transport {
	if cfg.MailTransport == "smtp" {
		return mailer.NewSMTPTransport(mailer.SMTPConfig{
			Addr:     cfg.SMTPAddr,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	}
	return &mailer.LogTransport{Log: log, ShowSecrets: !cfg.Production()}
}

// App is the running HTTP service.
type App struct {
	Handler  http.Handler
	Store    *store.Store
	Services *Services

	closers []func() error
	log     *slog.Logger
}

func New(ctx context.Context, cfg config.CoreConfig, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	a := &App{log: log}

	keys, err := Keys(cfg, log)
	if err != nil {
		return nil, err
	}
	signingKey, err := keys.SigningKey(ctx)
	if err != nil {
		return nil, err
	}
	serviceKey, _ := keys.GetSecret(ctx, keymgr.SecretServiceAPIKey)

	st, gdb, err := OpenStore(ctx, cfg, keys, log)
	if err != nil {
		return nil, err
	}
	a.Store = st
	a.closers = append(a.closers, func() error {
		sqlDB, err := gdb.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})

	locks, closeLocks, err := NewLockoutStore(ctx, cfg, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	mail := mailer.NewDispatcher(mailer.Config{
		QueueSize:   cfg.MailQueueSize,
		Workers:     cfg.MailWorkers,
		SendTimeout: cfg.MailSendTimeout,
	}, NewMailTransport(cfg, log), log)
	auditor := audit.NewDispatcher(audit.Config{}, audit.RepoSink{Repo: st}, log)
	st.Sealer().OnDecryptFailure(audit.DecryptFailureHook(auditor))
	// Dispatchers drain before the database closes.
	a.closers = append([]func() error{
		func() error {
			mail.Close()
			if n := mail.Dropped(); n > 0 {
				log.Warn("mail dropped during run", "count", n)
			}
			return nil
		},
		func() error {
			auditor.Close()
			if n := auditor.Dropped(); n > 0 {
				log.Warn("audit events dropped during run", "count", n)
			}
			return nil
		},
		closeLocks,
	}, a.closers...)

	svcs, err := BuildServices(cfg, st, signingKey, Collaborators{Mail: mail, Audit: auditor, Lockouts: locks}, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Services = svcs

	resolver, err := tenant.NewResolver(tenant.ResolverConfig{
		Order:      cfg.TenantResolutionOrder,
		BaseHost:   cfg.BaseHost,
		ServiceKey: serviceKey,
	}, st.Tenants(), svcs.Tokens)
	if err != nil {
		a.Close()
		return nil, err
	}

	proxies, err := netutil.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Handler = httpx.NewRouter(httpx.RouterConfig{
		CORSOrigins:    cfg.CORSOrigins,
		AuthRateLimit:  cfg.AuthRateLimit,
		TrustedProxies: proxies,
	}, resolver, svcs.Auth, svcs.Policies, log)
	return a, nil
}

// Close stops the dispatchers and releases connections.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
