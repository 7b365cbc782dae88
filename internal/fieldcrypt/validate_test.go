package fieldcrypt

import (
	"strings"
	"testing"

	"grc-core/internal/domain"
)

func allModels() []any {
	return []any{
		&domain.Tenant{}, &domain.User{}, &domain.MfaChallenge{}, &domain.MfaAuditLog{},
		&domain.PasswordLog{}, &domain.AuditLog{}, &domain.Policy{},
	}
}

func TestValidate_DefaultConfig(t *testing.T) {
	if err := Validate(DefaultConfig(), allModels()...); err != nil {
		t.Fatalf("default config rejected: %v", err)
	}
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name  string
		table string
		col   string
		want  string
	}{
		{"primary key", "users", "id", "primary key"},
		{"indexed", "users", "tenant_id", "indexed"},
		{"sized", "policies", "name", "length-limited"},
		{"not a string", "users", "is_active", "not a string"},
		{"missing column", "users", "ssn", "no such column"},
		{"unique", "tenants", "subdomain", "indexed"},
		{"unknown table", "vendors", "name", "unknown table"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Config{Entities: map[string][]string{tc.table: {tc.col}}}
			err := Validate(cfg, allModels()...)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}
