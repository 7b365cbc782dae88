package fieldcrypt

import (
	"context"
	"fmt"
	"log/slog"

	"grc-core/internal/observability/metrics"
)

// Entity exposes its encryptable columns by name.
type Entity interface {
	TableName() string
	EncryptedFields() map[string]*string
}

// Flagged entities record decrypt failures. domain.FieldFlags implements it.
type Flagged interface {
	MarkDecryptFailed(field, stored string)
	StoredValue(field string) (string, bool)
	ClearDecryptFailed(field string)
}

// FailureMode selects what application code sees for a field that failed to
// decrypt. The flag is set in every mode.
type FailureMode string

const (
	FailRaw         FailureMode = "raw"
	FailPlaceholder FailureMode = "placeholder"
	FailNull        FailureMode = "null"
)

const Placeholder = "[decryption failed]"

func ParseFailureMode(s string) (FailureMode, error) {
	switch m := FailureMode(s); m {
	case FailRaw, FailPlaceholder, FailNull:
		return m, nil
	default:
		return "", fmt.Errorf("unknown decrypt failure mode %q", s)
	}
}

// Sealer is the persistence interceptor: repositories call Seal before a write
// and Open after a read.
type Sealer struct {
	cipher    *Cipher
	cfg       Config
	mode      FailureMode
	log       *slog.Logger
	onFailure func(ctx context.Context, f DecryptFailure)
}

// DecryptFailure identifies one field that could not be decrypted on load.
type DecryptFailure struct {
	Table    string
	Field    string
	RecordID string
	TenantID string
}

func NewSealer(c *Cipher, cfg Config, mode FailureMode, log *slog.Logger) *Sealer {
	if log == nil {
		log = slog.Default()
	}
	if mode == "" {
		mode = FailPlaceholder
	}
	return &Sealer{cipher: c, cfg: cfg, mode: mode, log: log}
}

func (s *Sealer) Config() Config  { return s.cfg }
func (s *Sealer) Cipher() *Cipher { return s.cipher }

// OnDecryptFailure registers fn to be called once per failed field. Set it
// before the sealer is used concurrently.
func (s *Sealer) OnDecryptFailure(fn func(ctx context.Context, f DecryptFailure)) {
	s.onFailure = fn
}

// Seal replaces configured plaintext fields with tokens in place. The
// returned func puts the in-memory values back and must be called once the
// write is done, whether it succeeded or not. An error leaves e unchanged.
func (s *Sealer) Seal(e Entity) (restore func(), err error) {
	table := e.TableName()
	fields := e.EncryptedFields()
	flags, _ := e.(Flagged)

	saved := make(map[*string]string)
	restore = func() {
		for p, v := range saved {
			*p = v
		}
	}

	for _, col := range s.cfg.Fields(table) {
		p, ok := fields[col]
		if !ok || p == nil {
			continue
		}
		v := *p

		if flags != nil {
			if stored, failed := flags.StoredValue(col); failed {
				if v == s.surfaced(stored) {
					saved[p] = v
					*p = stored
					continue
				}
				flags.ClearDecryptFailed(col)
			}
		}

		if v == "" || IsEncrypted(v) {
			continue
		}
		token, err := s.cipher.Encrypt(v)
		if err != nil {
			restore()
			return func() {}, fmt.Errorf("encrypt %s.%s: %w", table, col, err)
		}
		saved[p] = v
		*p = token
	}
	return restore, nil
}

// Open decrypts configured fields in place. Failures never abort the load;
// they are logged, counted, flagged on the entity and reported to the
// failure hook.
func (s *Sealer) Open(ctx context.Context, e Entity) {
	table := e.TableName()
	fields := e.EncryptedFields()
	flags, _ := e.(Flagged)

	for _, col := range s.cfg.Fields(table) {
		p, ok := fields[col]
		if !ok || p == nil || *p == "" {
			continue
		}
		stored := *p
		if !IsEncrypted(stored) && !LooksLikeToken(stored) {
			continue
		}

		pt, err := s.cipher.Decrypt(stored)
		if err == nil {
			*p = pt
			continue
		}

		metrics.DecryptFailuresTotal.WithLabelValues(table, col).Inc()
		f := describe(e, table, col)
		s.log.Error("field decryption failed",
			"table", table,
			"field", col,
			"record_id", f.RecordID,
			"tenant_id", f.TenantID,
			"error", err,
		)
		if flags != nil {
			flags.MarkDecryptFailed(col, stored)
		}
		*p = s.surfaced(stored)
		if s.onFailure != nil {
			s.onFailure(ctx, f)
		}
	}
}

func describe(e Entity, table, col string) DecryptFailure {
	f := DecryptFailure{Table: table, Field: col}
	if v, ok := e.(interface{ GetID() string }); ok {
		f.RecordID = v.GetID()
	}
	if v, ok := e.(interface{ GetTenantID() string }); ok {
		f.TenantID = v.GetTenantID()
	}
	return f
}

func (s *Sealer) surfaced(stored string) string {
	switch s.mode {
	case FailRaw:
		return stored
	case FailNull:
		return ""
	default:
		return Placeholder
	}
}
