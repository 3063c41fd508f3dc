package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opensmile/internal/auth/domain"
	"gorm.io/gorm"
)

// repo backs both users and sessions. Users are global rather than
// practice-scoped, so it talks to gorm directly instead of the tenant store.
type repo struct {
	db *gorm.DB
}

func New(db *gorm.DB) (domain.Repository, domain.SessionRepository) {
	r := &repo{db: db}
	return r, r
}

func (r *repo) WithTx(tx *gorm.DB) domain.Repository {
	return &repo{db: tx}
}

// first loads one row matching query or returns notFound.
func first[T any](ctx context.Context, db *gorm.DB, notFound error, query string, args ...any) (*T, error) {
	var row T
	err := db.WithContext(ctx).Where(query, args...).Take(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, notFound
	case err != nil:
		return nil, err
	}
	return &row, nil
}

// update applies fields to the row with id, reporting notFound when no row matched.
func update[T any](ctx context.Context, db *gorm.DB, notFound error, id snowflake.ID, fields map[string]any) error {
	res := db.WithContext(ctx).Model(new(T)).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return notFound
	}
	return nil
}

func (r *repo) Create(ctx context.Context, user *domain.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *repo) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return first[domain.User](ctx, r.db, domain.ErrUserNotFound, "email = ?", email)
}

func (r *repo) FindByID(ctx context.Context, id snowflake.ID) (*domain.User, error) {
	return first[domain.User](ctx, r.db, domain.ErrUserNotFound, "id = ?", id)
}

func (r *repo) UpdateFields(ctx context.Context, id snowflake.ID, fields map[string]any) error {
	return update[domain.User](ctx, r.db, domain.ErrUserNotFound, id, fields)
}

func (r *repo) CreateSession(ctx context.Context, session *domain.Session) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *repo) GetSessionByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	return first[domain.Session](ctx, r.db, domain.ErrSessionNotFound, "session_token_hash = ?", tokenHash)
}

func (r *repo) UpdateLastSeen(ctx context.Context, sessionID snowflake.ID, lastSeen time.Time) error {
	return update[domain.Session](ctx, r.db, domain.ErrSessionNotFound, sessionID, map[string]any{"last_seen_at": lastSeen})
}

// RevokeSession is idempotent for sessions already revoked.
func (r *repo) RevokeSession(ctx context.Context, sessionID snowflake.ID, revokedAt time.Time) error {
	res := r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("id = ? AND revoked_at IS NULL", sessionID).
		Update("revoked_at", revokedAt)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var n int64
		if err := r.db.WithContext(ctx).Model(&domain.Session{}).Where("id = ?", sessionID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return domain.ErrSessionNotFound
		}
	}
	return nil
}
