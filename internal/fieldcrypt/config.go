package fieldcrypt

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Config declares which columns are encrypted, keyed by table name.
type Config struct {
	Entities map[string][]string `yaml:"entities"`
}

// DefaultConfig is used when no configuration file is provided.
func DefaultConfig() Config {
	return Config{Entities: map[string][]string{
		"users":         {"email", "first_name", "last_name"},
		"password_logs": {"old_password_hash", "new_password_hash", "ip", "user_agent", "extra"},
		"mfa_audit_log": {"ip", "user_agent"},
		"audit_logs":    {"ip", "user_agent"},
		"policies":      {"description"},
	}}
}

// LoadConfig reads a YAML document of the form:
//
//	entities:
//	  users: [email, first_name, last_name]
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read encryption config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse encryption config: %w", err)
	}
	if cfg.Entities == nil {
		cfg.Entities = map[string][]string{}
	}
	return cfg, nil
}

func (c Config) Fields(table string) []string {
	return c.Entities[table]
}

func (c Config) Has(table, column string) bool {
	for _, f := range c.Entities[table] {
		if f == column {
			return true
		}
	}
	return false
}

// Tables returns the configured table names in sorted order.
func (c Config) Tables() []string {
	out := make([]string, 0, len(c.Entities))
	for t := range c.Entities {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
