package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"grc-core/internal/app"
	"grc-core/internal/audit"
	"grc-core/internal/config"
	"grc-core/internal/keymgr"
	"grc-core/internal/lockout"
	"grc-core/internal/mailer"
	"grc-core/internal/observability/logging"
	"grc-core/internal/service"
	"grc-core/internal/store"
	"grc-core/internal/tenant"
	"grc-core/pkg/db"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	cmd := os.Args[1]
	args := os.Args[2:]
	sub := ""
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		sub, args = args[0], args[1:]
	}

	var err error
	switch cmd + " " + sub {
	case "genkey ":
		err = runGenKey(args)
	case "migrate ":
		err = runMigrate(args)
	case "tenant create":
		err = runTenantCreate(args)
	case "user create":
		err = runUserCreate(args)
	case "user deactivate":
		err = runUserDeactivate(args)
	case "secret set":
		err = runSecretSet(args)
	case "secret get":
		err = runSecretGet(args)
	default:
		usage()
	}

	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s <command> [options]\n", os.Args[0])
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  genkey            Print a random base64 key for ENCRYPTION_KEY or JWT_SIGNING_KEY")
	fmt.Fprintln(os.Stderr, "  migrate           Create or update the database schema")
	fmt.Fprintln(os.Stderr, "  tenant create     Create a tenant")
	fmt.Fprintln(os.Stderr, "  user create       Create a user in a tenant, or a bootstrap user without one")
	fmt.Fprintln(os.Stderr, "  user deactivate   Deactivate a user and end its session")
	fmt.Fprintln(os.Stderr, "  secret set        Write a secret to one of the configured key backends")
	fmt.Fprintln(os.Stderr, "  secret get        Check which secrets resolve through the backend chain")
	os.Exit(2)
}

// common are the flags every command that touches configuration accepts.
type common struct {
	envFile string
	sqlite  string
	verbose bool
}

func (c *common) register(fs *pflag.FlagSet) {
	fs.StringVar(&c.envFile, "env-file", "", "load environment variables from this file first")
	fs.StringVar(&c.sqlite, "sqlite", "", "use a local sqlite database file instead of DATABASE_URL")
	fs.BoolVarP(&c.verbose, "verbose", "v", false, "log at debug level to stderr")
}

func (c *common) load() (config.CoreConfig, *slog.Logger, error) {
	if c.envFile != "" {
		if err := godotenv.Load(c.envFile); err != nil {
			return config.CoreConfig{}, nil, fmt.Errorf("load %s: %w", c.envFile, err)
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return config.CoreConfig{}, nil, err
	}
	if c.sqlite != "" {
		cfg.DatabaseDriver = db.DriverSQLite
		cfg.DatabaseURL = c.sqlite
	}
	level := "warn"
	if c.verbose {
		level = "debug"
	}
	logger := logging.NewLogger(logging.Config{
		ServiceName: "grcctl",
		Environment: cfg.Environment,
		Level:       level,
		Output:      os.Stderr,
		Format:      "text",
	})
	return cfg, logger, nil
}

func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

func runGenKey(args []string) error {
	fs := newFlagSet("genkey")
	size := fs.Int("bytes", 32, "key size in bytes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *size < 32 {
		return fmt.Errorf("bytes must be at least 32")
	}
	buf := make([]byte, *size)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return err
	}
	fmt.Println(base64.StdEncoding.EncodeToString(buf))
	return nil
}

// session is an opened store plus the services built on it. close drains the
// audit queue before the database is released.
type session struct {
	cfg   config.CoreConfig
	log   *slog.Logger
	keys  *keymgr.Manager
	store *store.Store
	svcs  *app.Services
	close func()
}

func open(ctx context.Context, c *common, withServices bool) (*session, error) {
	cfg, logger, err := c.load()
	if err != nil {
		return nil, err
	}
	keys, err := app.Keys(cfg, logger)
	if err != nil {
		return nil, err
	}
	st, gdb, err := app.OpenStore(ctx, cfg, keys, logger)
	if err != nil {
		return nil, err
	}
	closeDB := func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	s := &session{cfg: cfg, log: logger, keys: keys, store: st, close: closeDB}
	if !withServices {
		return s, nil
	}

	signingKey, err := keys.SigningKey(ctx)
	if err != nil {
		closeDB()
		return nil, err
	}
	auditor := audit.NewDispatcher(audit.Config{}, audit.RepoSink{Repo: st}, logger)
	st.Sealer().OnDecryptFailure(audit.DecryptFailureHook(auditor))
	svcs, err := app.BuildServices(cfg, st, signingKey, app.Collaborators{
		Mail:     &mailer.Capture{},
		Audit:    auditor,
		Lockouts: lockout.NewMemory(lockout.Config{}),
	}, logger)
	if err != nil {
		auditor.Close()
		closeDB()
		return nil, err
	}
	s.svcs = svcs
	s.close = func() {
		auditor.Close()
		closeDB()
	}
	return s, nil
}

func runMigrate(args []string) error {
	fs := newFlagSet("migrate")
	var c common
	c.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := open(context.Background(), &c, false)
	if err != nil {
		return err
	}
	defer s.close()
	if err := store.AutoMigrate(s.store.DB); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "migrated %d tables on %s\n", len(store.Models()), s.cfg.DatabaseDriver)
	return nil
}

func runTenantCreate(args []string) error {
	fs := newFlagSet("tenant create")
	var c common
	c.register(fs)
	name := fs.String("name", "", "display name")
	subdomain := fs.String("subdomain", "", "DNS label the tenant is reached under")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ctx := context.Background()
	s, err := open(ctx, &c, true)
	if err != nil {
		return err
	}
	defer s.close()

	t, err := s.svcs.Provisioning.CreateTenant(ctx, *name, *subdomain)
	if err != nil {
		return err
	}
	return printJSON(map[string]string{
		"id":        t.ID,
		"name":      t.Name,
		"subdomain": t.Subdomain,
		"status":    string(t.Status),
	})
}

func runUserCreate(args []string) error {
	fs := newFlagSet("user create")
	var c common
	c.register(fs)
	var in service.NewUser
	fs.StringVar(&in.TenantID, "tenant", "", "tenant id (empty creates a bootstrap user)")
	fs.StringVar(&in.Username, "username", "", "login name")
	fs.StringVar(&in.Email, "email", "", "email address, receives one-time codes")
	fs.StringVar(&in.FirstName, "first-name", "", "")
	fs.StringVar(&in.LastName, "last-name", "", "")
	passwordEnv := fs.String("password-env", "GRC_NEW_PASSWORD", "environment variable holding the initial password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	in.Password = os.Getenv(*passwordEnv)
	if in.Password == "" {
		return fmt.Errorf("%s is empty", *passwordEnv)
	}

	ctx := context.Background()
	s, err := open(ctx, &c, true)
	if err != nil {
		return err
	}
	defer s.close()

	u, err := s.svcs.Provisioning.CreateUser(ctx, in)
	if err != nil {
		return err
	}
	return printJSON(map[string]string{
		"id":        u.ID,
		"tenant_id": u.GetTenantID(),
		"username":  u.Username,
	})
}

func runUserDeactivate(args []string) error {
	fs := newFlagSet("user deactivate")
	var c common
	c.register(fs)
	tenantID := fs.String("tenant", "", "tenant id of the user (empty for bootstrap users)")
	userID := fs.String("user", "", "user id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID == "" {
		return fmt.Errorf("--user is required")
	}

	ctx := context.Background()
	s, err := open(ctx, &c, true)
	if err != nil {
		return err
	}
	defer s.close()

	if *tenantID == "" {
		ctx = tenant.AsSystem(ctx)
	} else {
		ctx = tenant.WithTenant(ctx, *tenantID)
	}
	if err := s.svcs.Auth.Deactivate(ctx, *userID); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "user %s deactivated\n", *userID)
	return nil
}

func runSecretSet(args []string) error {
	fs := newFlagSet("secret set")
	var c common
	c.register(fs)
	name := fs.String("name", "", "secret name, e.g. encryption_key")
	backend := fs.Int("backend", 0, "index into KEY_BACKEND_PRIORITY to write to")
	fromStdin := fs.Bool("stdin", false, "read the value from stdin instead of --value")
	value := fs.String("value", "", "secret value")
	if err := fs.Parse(args); err != nil {
		return err
	}
	v := []byte(*value)
	if *fromStdin {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return err
		}
		v = []byte(strings.TrimRight(string(data), "\r\n"))
	}
	if len(v) == 0 {
		return fmt.Errorf("empty secret value")
	}

	cfg, logger, err := c.load()
	if err != nil {
		return err
	}
	keys, err := app.Keys(cfg, logger)
	if err != nil {
		return err
	}
	if err := keys.SetSecret(context.Background(), *name, v, *backend); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "%s written to %s\n", *name, keys.Backends()[*backend])
	return nil
}

func runSecretGet(args []string) error {
	fs := newFlagSet("secret get")
	var c common
	c.register(fs)
	reveal := fs.Bool("reveal", false, "print secret values instead of their lengths")
	if err := fs.Parse(args); err != nil {
		return err
	}
	names := fs.Args()
	if len(names) == 0 {
		names = []string{
			keymgr.SecretEncryptionKey,
			keymgr.SecretEncryptionKeyPrevious,
			keymgr.SecretSigningKey,
			keymgr.SecretServiceAPIKey,
		}
	}

	cfg, logger, err := c.load()
	if err != nil {
		return err
	}
	keys, err := app.Keys(cfg, logger)
	if err != nil {
		return err
	}

	type row struct {
		Name  string `json:"name"`
		Found bool   `json:"found"`
		Bytes int    `json:"bytes,omitempty"`
		Value string `json:"value,omitempty"`
	}
	out := struct {
		Backends []string `json:"backends"`
		Secrets  []row    `json:"secrets"`
	}{Backends: keys.Backends()}
	for _, n := range names {
		v, ok := keys.GetSecret(context.Background(), n)
		r := row{Name: n, Found: ok, Bytes: len(v)}
		if ok && *reveal {
			r.Value = string(v)
		}
		out.Secrets = append(out.Secrets, r)
	}
	return printJSON(out)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
