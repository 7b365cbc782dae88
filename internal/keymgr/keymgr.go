// Package keymgr resolves secrets by logical name from an ordered chain of
// backends fixed at startup.
package keymgr

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"grc-core/internal/domain"
)

// Well-known secret names.
const (
	SecretEncryptionKey         = "encryption_key"
	SecretEncryptionKeyPrevious = "encryption_key_previous"
	SecretSigningKey            = "jwt_signing_key"
	SecretServiceAPIKey         = "service_api_key"
)

const (
	encryptionKeySize = 32
	minSigningKeySize = 32
)

// Backend is one secret source. Get returns (nil, nil) when the backend has no
// value for name.
type Backend interface {
	Name() string
	Get(ctx context.Context, name string) ([]byte, error)
	Set(ctx context.Context, name string, value []byte) error
}

type Manager struct {
	backends []Backend
	log      *slog.Logger
}

func New(log *slog.Logger, backends ...Backend) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{backends: backends, log: log}
}

// Backends returns the backend names in priority order.
func (m *Manager) Backends() []string {
	out := make([]string, len(m.backends))
	for i, b := range m.backends {
		out[i] = b.Name()
	}
	return out
}

// GetSecret returns the first non-empty value in priority order. Backends
// that fail are skipped.
func (m *Manager) GetSecret(ctx context.Context, name string) ([]byte, bool) {
	for _, b := range m.backends {
		v, err := b.Get(ctx, name)
		if err != nil {
			m.log.Warn("secret backend failed, trying next",
				"backend", b.Name(),
				"secret", name,
				"error", err,
			)
			continue
		}
		if len(v) > 0 {
			return v, true
		}
	}
	return nil, false
}

// SetSecret writes value to the backend at backendIndex.
func (m *Manager) SetSecret(ctx context.Context, name string, value []byte, backendIndex int) error {
	if backendIndex < 0 || backendIndex >= len(m.backends) {
		return fmt.Errorf("backend index %d out of range (have %d)", backendIndex, len(m.backends))
	}
	if err := validName(name); err != nil {
		return err
	}
	b := m.backends[backendIndex]
	if err := b.Set(ctx, name, value); err != nil {
		return fmt.Errorf("set secret %q on %s: %w", name, b.Name(), err)
	}
	m.log.Info("secret written", "backend", b.Name(), "secret", name)
	return nil
}

// EncryptionKey returns the current 256-bit data-encryption key.
func (m *Manager) EncryptionKey(ctx context.Context) ([]byte, error) {
	raw, ok := m.GetSecret(ctx, SecretEncryptionKey)
	if !ok {
		return nil, fmt.Errorf("%s: %w", SecretEncryptionKey, domain.ErrKeyUnavailable)
	}
	return DecodeKey(string(raw))
}

// PreviousEncryptionKeys returns keys accepted for decryption only. The
// secret is a comma separated list; absence is not an error.
func (m *Manager) PreviousEncryptionKeys(ctx context.Context) ([][]byte, error) {
	raw, ok := m.GetSecret(ctx, SecretEncryptionKeyPrevious)
	if !ok {
		return nil, nil
	}
	var keys [][]byte
	for _, part := range strings.Split(string(raw), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, err := DecodeKey(part)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", SecretEncryptionKeyPrevious, err)
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// SigningKey returns the HMAC key for bearer tokens.
func (m *Manager) SigningKey(ctx context.Context) ([]byte, error) {
	raw, ok := m.GetSecret(ctx, SecretSigningKey)
	if !ok {
		return nil, fmt.Errorf("%s: %w", SecretSigningKey, domain.ErrKeyUnavailable)
	}
	if len(raw) < minSigningKeySize {
		return nil, fmt.Errorf("%s shorter than %d bytes: %w", SecretSigningKey, minSigningKeySize, domain.ErrKeyUnavailable)
	}
	return raw, nil
}

// DecodeKey accepts standard or URL-safe base64, padded or not.
func DecodeKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding,
	} {
		k, err := enc.DecodeString(s)
		if err != nil {
			continue
		}
		if len(k) != encryptionKeySize {
			return nil, fmt.Errorf("key must be %d bytes, got %d: %w", encryptionKeySize, len(k), domain.ErrKeyUnavailable)
		}
		return k, nil
	}
	return nil, fmt.Errorf("key is not valid base64: %w", domain.ErrKeyUnavailable)
}

var errInvalidName = errors.New("invalid secret name")

func validName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q", errInvalidName, name)
	}
	return nil
}
