package store

import (
	"context"
	"time"

	"grc-core/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ChallengeStore struct{ s *Store }

func (s *Store) Challenges() *ChallengeStore { return &ChallengeStore{s} }

// ExpirePending moves every pending challenge of the user to expired,
// whatever its purpose.
func (cs *ChallengeStore) ExpirePending(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := cs.s.run(ctx, func(db *gorm.DB) error {
		res := db.Model(&domain.MfaChallenge{}).
			Where("user_id = ? AND status = ?", userID, domain.ChallengePending).
			Update("status", domain.ChallengeExpired)
		n = res.RowsAffected
		return res.Error
	})
	return n, err
}

func (cs *ChallengeStore) Create(ctx context.Context, c *domain.MfaChallenge) error {
	if c.ID == "" {
		c.ID = domain.NewID()
	}
	return cs.s.run(ctx, func(db *gorm.DB) error { return db.Create(c).Error })
}

// LatestPendingForUpdate locks the newest pending challenge of the given
// purpose.
func (cs *ChallengeStore) LatestPendingForUpdate(ctx context.Context, userID string, purpose domain.ChallengePurpose) (*domain.MfaChallenge, error) {
	var c domain.MfaChallenge
	err := cs.s.run(ctx, func(db *gorm.DB) error {
		return db.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND status = ? AND purpose = ?", userID, domain.ChallengePending, purpose).
			Order("created_at desc, id desc").
			First(&c).Error
	})
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// HasActivePending reports whether a pending, unexpired challenge exists.
func (cs *ChallengeStore) HasActivePending(ctx context.Context, userID string, now time.Time) (bool, error) {
	var n int64
	err := cs.s.run(ctx, func(db *gorm.DB) error {
		return db.Model(&domain.MfaChallenge{}).
			Where("user_id = ? AND status = ? AND expires_at > ?", userID, domain.ChallengePending, now).
			Count(&n).Error
	})
	return n > 0, err
}

// SaveState persists the mutable columns of a challenge.
func (cs *ChallengeStore) SaveState(ctx context.Context, c *domain.MfaChallenge) error {
	return cs.s.run(ctx, func(db *gorm.DB) error {
		return db.Model(c).Select("attempts", "status", "used_at").Updates(c).Error
	})
}

func (cs *ChallengeStore) GetByID(ctx context.Context, id string) (*domain.MfaChallenge, error) {
	var c domain.MfaChallenge
	err := cs.s.run(ctx, func(db *gorm.DB) error { return db.First(&c, "id = ?", id).Error })
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (cs *ChallengeStore) ListForUser(ctx context.Context, userID string) ([]domain.MfaChallenge, error) {
	var out []domain.MfaChallenge
	err := cs.s.run(ctx, func(db *gorm.DB) error {
		return db.Where("user_id = ?", userID).Order("created_at, id").Find(&out).Error
	})
	return out, err
}

type MfaAuditStore struct{ s *Store }

func (s *Store) MfaAudit() *MfaAuditStore { return &MfaAuditStore{s} }

func (ms *MfaAuditStore) Append(ctx context.Context, l *domain.MfaAuditLog) error {
	if l.ID == "" {
		l.ID = domain.NewID()
	}
	return ms.s.create(ctx, l)
}

func (ms *MfaAuditStore) ListForUser(ctx context.Context, userID string) ([]*domain.MfaAuditLog, error) {
	var out []*domain.MfaAuditLog
	err := ms.s.run(ctx, func(db *gorm.DB) error {
		return db.Where("user_id = ?", userID).Order("created_at, id").Find(&out).Error
	})
	for _, l := range out {
		ms.s.open(ctx, l)
	}
	return out, err
}
