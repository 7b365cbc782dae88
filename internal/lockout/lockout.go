// Package lockout counts failed logins per key and reports when a key is
// locked out.
package lockout

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrUnavailable indicates the lockout backend is unreachable.
var ErrUnavailable = errors.New("lockout backend unavailable")

type Config struct {
	Threshold int
	// Duration is both the failure counting window and the lockout length.
	Duration time.Duration
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = 5
	}
	if c.Duration <= 0 {
		c.Duration = 15 * time.Minute
	}
	return c
}

// Store is a lockout counter backend.
type Store interface {
	// RecordFailure counts one failure and returns the failure count in the
	// current window.
	RecordFailure(ctx context.Context, key string) (int, error)
	IsLocked(ctx context.Context, key string) (bool, error)
	Clear(ctx context.Context, keys ...string) error
}

// Keys returns every key a principal can be locked out under.
func Keys(userID, tenantID, username string) []string {
	keys := make([]string, 0, 2)
	if userID != "" {
		keys = append(keys, "user:"+userID)
	}
	if username != "" {
		keys = append(keys, UsernameKey(tenantID, username))
	}
	return keys
}

// UsernameKey is the key used before the principal is known.
func UsernameKey(tenantID, username string) string {
	return "username:" + tenantID + ":" + strings.ToLower(username)
}

// AnyLocked reports whether any of keys is locked.
func AnyLocked(ctx context.Context, s Store, keys ...string) (bool, error) {
	for _, k := range keys {
		locked, err := s.IsLocked(ctx, k)
		if err != nil {
			return false, err
		}
		if locked {
			return true, nil
		}
	}
	return false, nil
}
