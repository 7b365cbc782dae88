package keymgr

import (
	"fmt"
	"log/slog"
	"strings"
)

const (
	BackendVault = "remote_vault"
	BackendEnv   = "env"
	BackendFile  = "file"
)

type Options struct {
	// Priority lists backend names in lookup order.
	Priority   []string
	Production bool
	Vault      VaultConfig
	FileDir    string
}

// FromOptions builds the backend chain. The file backend is dropped in
// production and the vault backend is dropped when it is not configured.
func FromOptions(opts Options, log *slog.Logger) (*Manager, error) {
	if log == nil {
		log = slog.Default()
	}
	priority := opts.Priority
	if len(priority) == 0 {
		priority = []string{BackendVault, BackendEnv, BackendFile}
	}

	var backends []Backend
	seen := map[string]bool{}
	for _, name := range priority {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		switch name {
		case BackendVault:
			if opts.Vault.Addr == "" {
				log.Info("vault backend not configured, skipping")
				continue
			}
			vb, err := NewVaultBackend(opts.Vault)
			if err != nil {
				return nil, err
			}
			backends = append(backends, vb)
		case BackendEnv:
			backends = append(backends, EnvBackend{})
		case BackendFile:
			if opts.Production {
				log.Warn("file secret backend disabled in production")
				continue
			}
			fb, err := NewFileBackend(opts.FileDir, log)
			if err != nil {
				return nil, err
			}
			backends = append(backends, fb)
		default:
			return nil, fmt.Errorf("unknown key backend %q", name)
		}
	}
	if len(backends) == 0 {
		return nil, fmt.Errorf("no key backends enabled (priority %v)", priority)
	}

	m := New(log, backends...)
	log.Info("key manager ready", "backends", m.Backends())
	return m, nil
}
