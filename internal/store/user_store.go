package store

import (
	"context"
	"time"

	"grc-core/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserStore struct{ s *Store }

func (s *Store) Users() *UserStore { return &UserStore{s} }

func (us *UserStore) Create(ctx context.Context, u *domain.User) error {
	if u.ID == "" {
		u.ID = domain.NewID()
	}
	return us.s.create(ctx, u)
}

func (us *UserStore) GetByID(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	err := us.s.run(ctx, func(db *gorm.DB) error {
		return db.First(&u, "id = ?", id).Error
	})
	if err != nil {
		return nil, notFound(err)
	}
	us.s.open(ctx, &u)
	return &u, nil
}

// GetByIDForUpdate locks the row until the enclosing transaction ends.
func (us *UserStore) GetByIDForUpdate(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	err := us.s.run(ctx, func(db *gorm.DB) error {
		return db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&u, "id = ?", id).Error
	})
	if err != nil {
		return nil, notFound(err)
	}
	us.s.open(ctx, &u)
	return &u, nil
}

// FindByUsername returns at most two matches so callers can detect a name
// that is ambiguous across tenants.
func (us *UserStore) FindByUsername(ctx context.Context, username string) ([]*domain.User, error) {
	var out []*domain.User
	err := us.s.run(ctx, func(db *gorm.DB) error {
		return db.Where("username = ?", username).Order("id").Limit(2).Find(&out).Error
	})
	if err != nil {
		return nil, err
	}
	for _, u := range out {
		us.s.open(ctx, u)
	}
	return out, nil
}

func (us *UserStore) update(ctx context.Context, id string, values map[string]any) error {
	values["updated_at"] = time.Now().UTC()
	return us.s.run(ctx, func(db *gorm.DB) error {
		res := db.Model(&domain.User{}).Where("id = ?", id).Updates(values)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrRecordNotFound
		}
		return nil
	})
}

func (us *UserStore) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return us.update(ctx, id, map[string]any{"password_hash": hash})
}

// SetSessionToken stores the latest access token; nil clears it.
func (us *UserStore) SetSessionToken(ctx context.Context, id string, token *string) error {
	return us.update(ctx, id, map[string]any{"server_side_session_token": token})
}

func (us *UserStore) SetActive(ctx context.Context, id string, active bool) error {
	values := map[string]any{"is_active": active}
	if !active {
		values["server_side_session_token"] = nil
	}
	return us.update(ctx, id, values)
}
