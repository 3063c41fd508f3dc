package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opensmile/internal/webhook/domain"
	"github.com/smallbiznis/opensmile/pkg/db"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func Provide(conn *gorm.DB) domain.Repository {
	return &repo{db: conn}
}

// Claim inserts the ledger row. The unique index on event_id is the only
// arbiter of whether an event was already processed.
func (r *repo) Claim(ctx context.Context, event *domain.WebhookEvent) error {
	err := r.db.WithContext(ctx).Create(event).Error
	if err != nil && db.IsDuplicateKeyErr(err) {
		return domain.ErrDuplicateEvent
	}
	return err
}

func (r *repo) FindByEventID(ctx context.Context, eventID string) (*domain.WebhookEvent, error) {
	var ev domain.WebhookEvent
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&ev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func (r *repo) AttachLead(ctx context.Context, tx *gorm.DB, eventID string, leadID snowflake.ID) error {
	if tx == nil {
		tx = r.db
	}
	res := tx.WithContext(ctx).
		Model(&domain.WebhookEvent{}).
		Where("event_id = ? AND lead_id IS NULL", eventID).
		Update("lead_id", leadID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrEventNotFound
	}
	return nil
}

// ListUnresolved returns claimed events that never produced a lead.
func (r *repo) ListUnresolved(ctx context.Context, olderThan time.Time, limit int) ([]*domain.WebhookEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var events []*domain.WebhookEvent
	err := r.db.WithContext(ctx).
		Where("lead_id IS NULL AND processed_at < ?", olderThan).
		Order("processed_at ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}
