package fieldcrypt

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"gorm.io/gorm/schema"
)

// Validate checks cfg against the gorm models. Every configured column must
// exist and be an unsized, unindexed, non-key string column, since tokens are
// longer than their plaintext and never equal across writes.
func Validate(cfg Config, models ...any) error {
	cache := &sync.Map{}
	known := map[string]*schema.Schema{}
	for _, m := range models {
		s, err := schema.Parse(m, cache, schema.NamingStrategy{})
		if err != nil {
			return fmt.Errorf("parse model %T: %w", m, err)
		}
		known[s.Table] = s
	}

	var errs []error
	for _, table := range cfg.Tables() {
		s, ok := known[table]
		if !ok {
			errs = append(errs, fmt.Errorf("encryption config: unknown table %q", table))
			continue
		}
		for _, col := range cfg.Fields(table) {
			if err := checkColumn(s, col); err != nil {
				errs = append(errs, fmt.Errorf("encryption config: %s.%s: %w", table, col, err))
			}
		}
	}
	return errors.Join(errs...)
}

func checkColumn(s *schema.Schema, col string) error {
	f := s.LookUpField(col)
	if f == nil {
		return errors.New("no such column")
	}
	switch {
	case f.PrimaryKey:
		return errors.New("primary key cannot be encrypted")
	case f.Unique:
		return errors.New("unique column cannot be encrypted")
	case f.IndirectFieldType.Kind() != reflect.String:
		return fmt.Errorf("column type %s is not a string", f.IndirectFieldType.Kind())
	case f.Size > 0:
		return fmt.Errorf("column is sized (%d); use a text column", f.Size)
	}
	for _, key := range []string{"INDEX", "UNIQUEINDEX", "UNIQUE"} {
		if _, ok := f.TagSettings[key]; ok {
			return errors.New("indexed column cannot be encrypted")
		}
	}
	if t := strings.ToLower(f.TagSettings["TYPE"]); strings.Contains(t, "char(") {
		return fmt.Errorf("column type %q is length-limited; use text", t)
	}
	return nil
}
