package store

import (
	"context"
	"errors"
	"time"

	"grc-core/internal/domain"
	"grc-core/internal/fieldcrypt"

	"gorm.io/gorm"
)

// ErrRecordNotFound is returned by single-row getters on a miss.
var ErrRecordNotFound = domain.ErrNotFound

// Store wraps a gorm handle. Writes of entities with encrypted columns go
// through the sealer; loads are opened before they are returned.
type Store struct {
	DB      *gorm.DB
	sealer  *fieldcrypt.Sealer
	timeout time.Duration
}

func New(db *gorm.DB, sealer *fieldcrypt.Sealer) *Store {
	return &Store{DB: db, sealer: sealer}
}

// WithQueryTimeout bounds every call made through the store.
func (s *Store) WithQueryTimeout(d time.Duration) *Store {
	cp := *s
	cp.timeout = d
	return &cp
}

func (s *Store) Sealer() *fieldcrypt.Sealer { return s.sealer }

// WithTx runs fn in a transaction. Called on a store that is already in a
// transaction it opens a savepoint.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{DB: tx, sealer: s.sealer, timeout: s.timeout})
	})
}

// Models lists every persisted type in migration order.
func Models() []any {
	return []any{
		&domain.Tenant{},
		&domain.User{},
		&domain.MfaChallenge{},
		&domain.MfaAuditLog{},
		&domain.PasswordLog{},
		&domain.AuditLog{},
		&domain.RevokedToken{},
		&domain.Policy{},
	}
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}

func (s *Store) run(ctx context.Context, fn func(db *gorm.DB) error) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return fn(s.DB.WithContext(ctx))
}

func (s *Store) create(ctx context.Context, e fieldcrypt.Entity) error {
	restore, err := s.seal(e)
	if err != nil {
		return err
	}
	defer restore()
	return s.run(ctx, func(db *gorm.DB) error { return db.Create(e).Error })
}

func (s *Store) seal(e fieldcrypt.Entity) (func(), error) {
	if s.sealer == nil {
		return func() {}, nil
	}
	return s.sealer.Seal(e)
}

func (s *Store) open(ctx context.Context, e fieldcrypt.Entity) {
	if s.sealer != nil {
		s.sealer.Open(ctx, e)
	}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrRecordNotFound
	}
	return err
}
