package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/opensmile/internal/clock"
	"github.com/smallbiznis/opensmile/internal/practice/domain"
	"github.com/smallbiznis/opensmile/internal/tenant"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	treatments *tenant.Store[domain.TreatmentType, *domain.TreatmentType]
	campaigns  *tenant.Store[domain.Campaign, *domain.Campaign]
}

func New(p Params) domain.Service {
	return &Service{
		log:        p.Log.Named("practice.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		treatments: tenant.NewStore[domain.TreatmentType](p.DB),
		campaigns:  tenant.NewStore[domain.Campaign](p.DB),
	}
}

func (s *Service) Create(ctx context.Context, tx *gorm.DB, req domain.CreatePracticeRequest) (*domain.Practice, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	id := s.genID.Generate()
	practiceSlug, err := s.uniqueSlug(ctx, tx, name, id)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	p := &domain.Practice{
		ID:                    id,
		Name:                  name,
		Slug:                  practiceSlug,
		Email:                 strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:                 strings.TrimSpace(req.Phone),
		City:                  strings.TrimSpace(req.City),
		Postcode:              strings.TrimSpace(req.Postcode),
		Status:                domain.StatusActive,
		SubscriptionTier:      domain.TierStarter,
		AssignedSalespersonID: req.AssignedSalespersonID,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := s.repo.Create(ctx, tx, p); err != nil {
		return nil, fmt.Errorf("create practice: %w", err)
	}
	return p, nil
}

func (s *Service) uniqueSlug(ctx context.Context, tx *gorm.DB, name string, id snowflake.ID) (string, error) {
	base := slug.Make(name)
	if base == "" {
		base = "practice"
	}
	exists, err := s.repo.SlugExists(ctx, tx, base)
	if err != nil {
		return "", err
	}
	if !exists {
		return base, nil
	}
	return fmt.Sprintf("%s-%s", base, id.Base36()), nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Practice, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *Service) AssignedTo(ctx context.Context, salespersonID snowflake.ID) ([]snowflake.ID, error) {
	return s.repo.AssignedTo(ctx, salespersonID)
}

func (s *Service) List(ctx context.Context, filter tenant.Filter) ([]domain.Practice, error) {
	return s.repo.ListVisible(ctx, filter)
}

// ResolveCampaign maps an inbound campaign id to its owning practice.
func (s *Service) ResolveCampaign(ctx context.Context, campaignID snowflake.ID) (*domain.Campaign, *domain.Practice, error) {
	if campaignID == 0 {
		return nil, nil, domain.ErrCampaignNotFound
	}
	campaign, err := s.repo.FindCampaign(ctx, campaignID)
	if err != nil {
		return nil, nil, err
	}
	p, err := s.repo.FindByID(ctx, campaign.PracticeID)
	if errors.Is(err, domain.ErrPracticeNotFound) {
		return nil, nil, domain.ErrCampaignNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	return campaign, p, nil
}

func (s *Service) ListTreatmentTypes(ctx context.Context, scope tenant.Scope) ([]*domain.TreatmentType, error) {
	return s.treatments.Find(ctx, scope, tenant.Query{Order: "name ASC"})
}

func (s *Service) FindTreatmentType(ctx context.Context, scope tenant.Scope, id snowflake.ID) (*domain.TreatmentType, error) {
	return s.treatments.FindByID(ctx, scope, id)
}

func (s *Service) ListCampaigns(ctx context.Context, filter tenant.Filter) ([]*domain.Campaign, error) {
	rows, _, err := s.campaigns.FindVisible(ctx, filter, tenant.Query{Order: "created_at DESC"})
	return rows, err
}
