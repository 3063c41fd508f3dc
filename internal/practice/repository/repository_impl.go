package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opensmile/internal/practice/domain"
	"github.com/smallbiznis/opensmile/internal/tenant"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func Provide(db *gorm.DB) domain.Repository {
	return &repo{db: db}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, p *domain.Practice) error {
	if db == nil {
		db = r.db
	}
	return db.WithContext(ctx).Create(p).Error
}

func (r *repo) FindByID(ctx context.Context, id snowflake.ID) (*domain.Practice, error) {
	var p domain.Practice
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrPracticeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repo) SlugExists(ctx context.Context, db *gorm.DB, slug string) (bool, error) {
	if db == nil {
		db = r.db
	}
	var n int64
	err := db.WithContext(ctx).Model(&domain.Practice{}).Where("slug = ?", slug).Count(&n).Error
	return n > 0, err
}

func (r *repo) AssignedTo(ctx context.Context, salespersonID snowflake.ID) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := r.db.WithContext(ctx).
		Model(&domain.Practice{}).
		Where("assigned_salesperson_id = ?", salespersonID).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

func (r *repo) ListVisible(ctx context.Context, filter tenant.Filter) ([]domain.Practice, error) {
	var out []domain.Practice
	q := filter.Apply(r.db.WithContext(ctx).Model(&domain.Practice{}), "id")
	err := q.Order("name ASC").Find(&out).Error
	return out, err
}

// FindCampaign is the one unscoped campaign read. The webhook pipeline uses it
// to discover which practice an inbound lead belongs to.
func (r *repo) FindCampaign(ctx context.Context, id snowflake.ID) (*domain.Campaign, error) {
	var c domain.Campaign
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrCampaignNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
