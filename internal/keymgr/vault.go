package keymgr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	vault "github.com/hashicorp/vault/api"
)

type VaultConfig struct {
	Addr    string
	Token   string
	Mount   string
	Path    string
	Timeout time.Duration
}

// VaultBackend reads and writes a single KV v2 document. Each secret name is a
// key inside that document.
type VaultBackend struct {
	cfg VaultConfig
	kv  *vault.KVv2
}

func NewVaultBackend(cfg VaultConfig) (*VaultBackend, error) {
	if cfg.Addr == "" || cfg.Token == "" {
		return nil, errors.New("vault backend: address and token are required")
	}
	if cfg.Mount == "" {
		cfg.Mount = "secret"
	}
	if cfg.Path == "" {
		cfg.Path = "grc-core"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	cfg.Addr = strings.TrimRight(cfg.Addr, "/")
	cfg.Mount = strings.Trim(cfg.Mount, "/")
	cfg.Path = strings.Trim(cfg.Path, "/")

	vc := vault.DefaultConfig()
	if vc.Error != nil {
		return nil, fmt.Errorf("vault backend: %w", vc.Error)
	}
	vc.Address = cfg.Addr
	vc.Timeout = cfg.Timeout
	// The chain falls through to the next backend instead of retrying.
	vc.MaxRetries = 0

	client, err := vault.NewClient(vc)
	if err != nil {
		return nil, fmt.Errorf("vault backend: %w", err)
	}
	client.SetToken(cfg.Token)
	return &VaultBackend{cfg: cfg, kv: client.KVv2(cfg.Mount)}, nil
}

func (b *VaultBackend) Name() string { return "remote_vault" }

func (b *VaultBackend) read(ctx context.Context) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	secret, err := b.kv.Get(ctx, b.cfg.Path)
	if errors.Is(err, vault.ErrSecretNotFound) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("vault read: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return map[string]any{}, nil
	}
	return secret.Data, nil
}

func (b *VaultBackend) Get(ctx context.Context, name string) ([]byte, error) {
	data, err := b.read(ctx)
	if err != nil {
		return nil, err
	}
	v, ok := data[name].(string)
	if !ok || v == "" {
		return nil, nil
	}
	return []byte(v), nil
}

// Set merges name into the document and writes a new version.
func (b *VaultBackend) Set(ctx context.Context, name string, value []byte) error {
	data, err := b.read(ctx)
	if err != nil {
		return err
	}
	data[name] = string(value)

	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()
	if _, err := b.kv.Put(ctx, b.cfg.Path, data); err != nil {
		return fmt.Errorf("vault write: %w", err)
	}
	return nil
}
