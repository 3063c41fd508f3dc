package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opensmile/internal/tenant"
	"gorm.io/gorm"
)

// Directory answers which practices a salesperson is assigned to. It is read
// on every request; nothing is cached.
type Directory interface {
	AssignedTo(ctx context.Context, salespersonID snowflake.ID) ([]snowflake.ID, error)
}

type Repository interface {
	Directory
	Create(ctx context.Context, db *gorm.DB, p *Practice) error
	FindByID(ctx context.Context, id snowflake.ID) (*Practice, error)
	SlugExists(ctx context.Context, db *gorm.DB, slug string) (bool, error)
	ListVisible(ctx context.Context, filter tenant.Filter) ([]Practice, error)
	FindCampaign(ctx context.Context, id snowflake.ID) (*Campaign, error)
}

type Service interface {
	Directory
	Create(ctx context.Context, tx *gorm.DB, req CreatePracticeRequest) (*Practice, error)
	Get(ctx context.Context, id snowflake.ID) (*Practice, error)
	List(ctx context.Context, filter tenant.Filter) ([]Practice, error)
	ResolveCampaign(ctx context.Context, campaignID snowflake.ID) (*Campaign, *Practice, error)
	ListTreatmentTypes(ctx context.Context, scope tenant.Scope) ([]*TreatmentType, error)
	FindTreatmentType(ctx context.Context, scope tenant.Scope, id snowflake.ID) (*TreatmentType, error)
	ListCampaigns(ctx context.Context, filter tenant.Filter) ([]*Campaign, error)
}

type CreatePracticeRequest struct {
	Name                  string
	Email                 string
	Phone                 string
	City                  string
	Postcode              string
	AssignedSalespersonID *snowflake.ID
}
