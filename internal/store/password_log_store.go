package store

import (
	"context"
	"errors"

	"grc-core/internal/domain"

	"gorm.io/gorm"
)

var historyActions = []domain.PasswordAction{domain.PasswordCreated, domain.PasswordChanged, domain.PasswordReset}

type PasswordLogStore struct{ s *Store }

func (s *Store) PasswordLogs() *PasswordLogStore { return &PasswordLogStore{s} }

func (ps *PasswordLogStore) Append(ctx context.Context, l *domain.PasswordLog) error {
	if l.ID == "" {
		l.ID = domain.NewID()
	}
	return ps.s.create(ctx, l)
}

// Recent returns up to n history rows, newest first.
func (ps *PasswordLogStore) Recent(ctx context.Context, userID string, n int) ([]*domain.PasswordLog, error) {
	if n <= 0 {
		return nil, nil
	}
	var out []*domain.PasswordLog
	err := ps.s.run(ctx, func(db *gorm.DB) error {
		return db.Where("user_id = ? AND action IN ?", userID, historyActions).
			Order("created_at desc, id desc").
			Limit(n).
			Find(&out).Error
	})
	if err != nil {
		return nil, err
	}
	for _, l := range out {
		ps.s.open(ctx, l)
	}
	return out, nil
}

// Latest returns the newest history row, or nil when there is none.
func (ps *PasswordLogStore) Latest(ctx context.Context, userID string) (*domain.PasswordLog, error) {
	var l domain.PasswordLog
	err := ps.s.run(ctx, func(db *gorm.DB) error {
		return db.Where("user_id = ? AND action IN ?", userID, historyActions).
			Order("created_at desc, id desc").
			First(&l).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ps.s.open(ctx, &l)
	return &l, nil
}
