package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opensmile/internal/audit/redact"
	"github.com/smallbiznis/opensmile/internal/clock"
	"github.com/smallbiznis/opensmile/internal/config"
	"github.com/smallbiznis/opensmile/internal/contact"
	leaddomain "github.com/smallbiznis/opensmile/internal/lead/domain"
	obsmetrics "github.com/smallbiznis/opensmile/internal/observability/metrics"
	practicedomain "github.com/smallbiznis/opensmile/internal/practice/domain"
	"github.com/smallbiznis/opensmile/internal/ratelimit"
	"github.com/smallbiznis/opensmile/internal/tenant"
	"github.com/smallbiznis/opensmile/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const defaultLeadName = "Unknown"

type Params struct {
	fx.In

	Config    config.Config
	Log       *zap.Logger
	Audit     *redact.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	Gateway   *tenant.Gateway
	Limiter   *ratelimit.Limiter
	Practices practicedomain.Service
	Leads     leaddomain.Service
	Metrics   *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	secret    []byte
	log       *zap.Logger
	audit     *redact.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	gateway   *tenant.Gateway
	limiter   *ratelimit.Limiter
	practices practicedomain.Service
	leads     leaddomain.Service
	metrics   *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		secret:    []byte(p.Config.MetaAppSecret),
		log:       p.Log.Named("webhook.service"),
		audit:     p.Audit,
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		gateway:   p.Gateway,
		limiter:   p.Limiter,
		practices: p.Practices,
		leads:     p.Leads,
		metrics:   p.Metrics,
	}
}

// Ingest runs one Meta lead delivery through the pipeline. Each step either
// passes or ends the request with its own error.
func (s *Service) Ingest(ctx context.Context, d domain.Delivery) (*domain.Result, error) {
	res, err := s.ingest(ctx, d)
	outcome := outcomeOf(err)
	if err == nil {
		outcome = res.Status
	}
	s.metrics.RecordWebhookEvent(ctx, domain.ProviderMeta, outcome)
	return res, err
}

func (s *Service) ingest(ctx context.Context, d domain.Delivery) (*domain.Result, error) {
	if d.ContentLength > domain.MaxBodyBytes {
		return nil, domain.ErrPayloadTooLarge
	}

	decision, err := s.limiter.Allow(ctx, config.RateLimitWebhook, d.SourceIP)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, &ratelimit.LimitedError{Decision: decision}
	}

	body, err := readBody(d.Body)
	if err != nil {
		return nil, err
	}

	if err := Verify(s.secret, body, d.Signature); err != nil {
		s.audit.Log(ctx, "webhook:"+err.Error(), map[string]any{"source": domain.ProviderMeta})
		return nil, err
	}

	payload, err := parseMetaLead(body)
	if err != nil {
		s.audit.Log(ctx, "webhook:invalid_payload", map[string]any{"source": domain.ProviderMeta})
		return nil, err
	}

	eventID := domain.EventID(domain.ProviderMeta, payload.LeadID)
	now := s.clock.Now()
	event := &domain.WebhookEvent{
		ID:          s.genID.Generate(),
		EventID:     eventID,
		Provider:    domain.ProviderMeta,
		EventType:   domain.EventTypeLeadCreated,
		Payload:     datatypes.JSON(body),
		ProcessedAt: now,
	}
	if err := s.repo.Claim(ctx, event); err != nil {
		if errors.Is(err, domain.ErrDuplicateEvent) {
			return s.duplicate(ctx, eventID)
		}
		return nil, fmt.Errorf("claim webhook event: %w", err)
	}

	lead, err := s.materialize(ctx, eventID, payload)
	if err != nil {
		s.audit.Error(ctx, "webhook:rejected", err, map[string]any{"eventId": eventID})
		return nil, err
	}

	s.audit.Log(ctx, "webhook:lead_created", map[string]any{
		"id":         lead.ID.String(),
		"practiceId": lead.PracticeID.String(),
		"source":     string(lead.Source),
	})
	return &domain.Result{Status: domain.StatusCreated, LeadID: &lead.ID}, nil
}

func (s *Service) duplicate(ctx context.Context, eventID string) (*domain.Result, error) {
	prior, err := s.repo.FindByEventID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("load prior webhook event: %w", err)
	}
	processedAt := prior.ProcessedAt
	return &domain.Result{
		Status:      domain.StatusDuplicate,
		LeadID:      prior.LeadID,
		ProcessedAt: &processedAt,
	}, nil
}

func (s *Service) materialize(ctx context.Context, eventID string, payload *metaLeadPayload) (*leaddomain.Lead, error) {
	name, _ := payload.field("full_name")
	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultLeadName
	}

	rawPhone, _ := payload.field("phone_number")
	phone, err := contact.NormalizePhone(rawPhone)
	if err != nil {
		return nil, err
	}

	rawEmail, _ := payload.field("email")
	email, err := contact.NormalizeEmail(rawEmail)
	if err != nil {
		return nil, err
	}

	campaignID, err := snowflake.ParseString(strings.TrimSpace(payload.CampaignID))
	if err != nil {
		return nil, domain.ErrCampaignNotFound
	}
	campaign, practice, err := s.practices.ResolveCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	lead := &leaddomain.Lead{
		CampaignID:            &campaign.ID,
		AssignedSalespersonID: practice.AssignedSalespersonID,
		Name:                  name,
		Email:                 email,
		Phone:                 phone,
		Source:                leaddomain.SourceFacebookAd,
		Status:                leaddomain.StatusEnquiry,
		Urgency:               leaddomain.UrgencyMedium,
		PainPoints:            datatypes.JSONSlice[string]{},
		Motivations:           datatypes.JSONSlice[string]{},
		Objections:            datatypes.JSONSlice[string]{},
		InterestedTreatments:  datatypes.JSONSlice[string]{},
	}

	scope := tenant.System(practice.ID)
	err = s.gateway.InTx(ctx, scope, func(tx *gorm.DB) error {
		if err := s.leads.Materialize(ctx, tx, scope, lead); err != nil {
			return err
		}
		return s.repo.AttachLead(ctx, tx, eventID, lead.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("materialize lead: %w", err)
	}
	return lead, nil
}

func (s *Service) Unresolved(ctx context.Context, olderThan time.Time, limit int) ([]*domain.WebhookEvent, error) {
	return s.repo.ListUnresolved(ctx, olderThan, limit)
}

func readBody(r io.Reader) ([]byte, error) {
	if r == nil {
		return nil, domain.ErrInvalidPayload
	}
	body, err := io.ReadAll(io.LimitReader(r, domain.MaxBodyBytes+1))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, domain.ErrPayloadTooLarge
		}
		return nil, fmt.Errorf("read webhook body: %w", err)
	}
	if len(body) > domain.MaxBodyBytes {
		return nil, domain.ErrPayloadTooLarge
	}
	return body, nil
}

func outcomeOf(err error) string {
	var limited *ratelimit.LimitedError
	switch {
	case errors.As(err, &limited):
		return "rate_limited"
	case errors.Is(err, domain.ErrMissingSignature), errors.Is(err, domain.ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, domain.ErrPayloadTooLarge):
		return domain.ErrPayloadTooLarge.Error()
	case errors.Is(err, domain.ErrInvalidPayload):
		return domain.ErrInvalidPayload.Error()
	case errors.Is(err, domain.ErrInvalidPhone):
		return domain.ErrInvalidPhone.Error()
	case errors.Is(err, domain.ErrInvalidEmail):
		return domain.ErrInvalidEmail.Error()
	case errors.Is(err, domain.ErrCampaignNotFound):
		return domain.ErrCampaignNotFound.Error()
	default:
		return "error"
	}
}
