package store

import (
	"context"
	"time"

	"grc-core/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AppendAudit writes one audit_logs row. It makes *Store an audit repository.
func (s *Store) AppendAudit(ctx context.Context, row *domain.AuditLog) error {
	if row.ID == "" {
		row.ID = domain.NewID()
	}
	return s.create(ctx, row)
}

func (s *Store) ListAudit(ctx context.Context, limit int) ([]*domain.AuditLog, error) {
	var out []*domain.AuditLog
	err := s.run(ctx, func(db *gorm.DB) error {
		return db.Order("created_at desc, id desc").Limit(limit).Find(&out).Error
	})
	for _, l := range out {
		s.open(ctx, l)
	}
	return out, err
}

type RevokedTokenStore struct{ s *Store }

func (s *Store) RevokedTokens() *RevokedTokenStore { return &RevokedTokenStore{s} }

// Add blacklists jti. Adding the same jti twice is not an error.
func (rs *RevokedTokenStore) Add(ctx context.Context, jti, userID string, expiresAt time.Time) error {
	_, err := rs.Claim(ctx, jti, userID, expiresAt)
	return err
}

// Claim blacklists jti and reports whether this call inserted it. Exactly one
// of several concurrent callers gets true.
func (rs *RevokedTokenStore) Claim(ctx context.Context, jti, userID string, expiresAt time.Time) (bool, error) {
	row := &domain.RevokedToken{JTI: jti, UserID: userID, ExpiresAt: expiresAt, CreatedAt: time.Now().UTC()}
	var inserted int64
	err := rs.s.run(ctx, func(db *gorm.DB) error {
		res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(row)
		inserted = res.RowsAffected
		return res.Error
	})
	return inserted == 1, err
}

func (rs *RevokedTokenStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var n int64
	err := rs.s.run(ctx, func(db *gorm.DB) error {
		return db.Model(&domain.RevokedToken{}).Where("jti = ?", jti).Count(&n).Error
	})
	return n > 0, err
}

// PurgeExpired deletes entries whose tokens can no longer be presented.
func (rs *RevokedTokenStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := rs.s.run(ctx, func(db *gorm.DB) error {
		res := db.Where("expires_at < ?", now).Delete(&domain.RevokedToken{})
		n = res.RowsAffected
		return res.Error
	})
	return n, err
}
