package keymgr

import (
	"context"
	"os"
	"strings"
)

// EnvBackend reads upper-cased names from the process environment. Set only
// changes process-local state.
type EnvBackend struct{}

func (EnvBackend) Name() string { return "env" }

func (EnvBackend) Get(_ context.Context, name string) ([]byte, error) {
	v := os.Getenv(envName(name))
	if v == "" {
		return nil, nil
	}
	return []byte(v), nil
}

func (EnvBackend) Set(_ context.Context, name string, value []byte) error {
	return os.Setenv(envName(name), string(value))
}

func envName(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}
