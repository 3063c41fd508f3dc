package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opensmile/internal/access"
	"github.com/smallbiznis/opensmile/internal/audit/redact"
	authdomain "github.com/smallbiznis/opensmile/internal/auth/domain"
	"github.com/smallbiznis/opensmile/internal/clock"
	"github.com/smallbiznis/opensmile/internal/contact"
	interactiondomain "github.com/smallbiznis/opensmile/internal/interaction/domain"
	"github.com/smallbiznis/opensmile/internal/lead/domain"
	"github.com/smallbiznis/opensmile/internal/tenant"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Audit   *redact.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Policy  *access.Policy
	Gateway *tenant.Gateway
}

type Service struct {
	log          *zap.Logger
	audit        *redact.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	policy       *access.Policy
	gateway      *tenant.Gateway
	leads        *tenant.Store[domain.Lead, *domain.Lead]
	interactions *tenant.Store[interactiondomain.Interaction, *interactiondomain.Interaction]
}

func New(p Params) domain.Service {
	return &Service{
		log:          p.Log.Named("lead.service"),
		audit:        p.Audit,
		genID:        p.GenID,
		clock:        p.Clock,
		policy:       p.Policy,
		gateway:      p.Gateway,
		leads:        tenant.NewStore[domain.Lead](p.DB),
		interactions: tenant.NewStore[interactiondomain.Interaction](p.DB),
	}
}

func (s *Service) List(ctx context.Context, user *authdomain.User, req domain.ListLeadRequest) (*domain.ListLeadResponse, error) {
	if err := s.policy.Can(user, access.ObjectLead, access.ActionRead); err != nil {
		return nil, err
	}
	filter, err := s.policy.ResolveVisibility(ctx, user, req.PracticeID)
	if err != nil {
		return nil, err
	}

	page := req.Page.Normalize()
	q := tenant.Query{
		Order:  "created_at DESC",
		Limit:  page.Limit,
		Offset: page.Offset(),
	}
	if status := strings.TrimSpace(req.Status); status != "" {
		parsed, err := domain.ParseStatus(status)
		if err != nil {
			return nil, err
		}
		q.Conds = append(q.Conds, tenant.Where("status = ?", parsed))
	}
	if search := strings.ToLower(strings.TrimSpace(req.Search)); search != "" {
		like := "%" + search + "%"
		q.Conds = append(q.Conds, tenant.Where(
			"(LOWER(name) LIKE ? OR LOWER(email) LIKE ? OR phone LIKE ?)", like, like, like,
		))
	}

	leads, total, err := s.leads.FindVisible(ctx, filter, q)
	if err != nil {
		return nil, err
	}
	if leads == nil {
		leads = []*domain.Lead{}
	}
	return &domain.ListLeadResponse{
		Leads: leads,
		Total: total,
		Page:  page.Page,
		Limit: page.Limit,
	}, nil
}

// Resolve never distinguishes a missing lead from one in another practice.
func (s *Service) Resolve(ctx context.Context, user *authdomain.User, id snowflake.ID) (*domain.Lead, tenant.Scope, error) {
	filter, err := s.policy.ResolveVisibility(ctx, user, nil)
	if err != nil {
		return nil, tenant.Scope{}, err
	}
	practiceID, err := s.leads.PracticeOf(ctx, id)
	if errors.Is(err, tenant.ErrNotFound) {
		return nil, tenant.Scope{}, domain.ErrLeadNotFound
	}
	if err != nil {
		return nil, tenant.Scope{}, err
	}
	scope, err := filter.Scope(practiceID)
	if err != nil {
		return nil, tenant.Scope{}, domain.ErrLeadNotFound
	}
	lead, err := s.leads.FindByID(ctx, scope, id)
	if errors.Is(err, tenant.ErrNotFound) {
		return nil, tenant.Scope{}, domain.ErrLeadNotFound
	}
	if err != nil {
		return nil, tenant.Scope{}, err
	}
	return lead, scope, nil
}

func (s *Service) Get(ctx context.Context, user *authdomain.User, id snowflake.ID) (*domain.Lead, error) {
	if err := s.policy.Can(user, access.ObjectLead, access.ActionRead); err != nil {
		return nil, err
	}
	lead, _, err := s.Resolve(ctx, user, id)
	return lead, err
}

func (s *Service) Create(ctx context.Context, user *authdomain.User, req domain.CreateLeadRequest) (*domain.Lead, error) {
	if err := s.policy.Can(user, access.ObjectLead, access.ActionCreate); err != nil {
		return nil, err
	}
	if req.PracticeID == 0 {
		return nil, domain.ErrInvalidPractice
	}
	scope, err := s.policy.PracticeScope(ctx, user, req.PracticeID)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	email, err := contact.NormalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	var phone string
	if strings.TrimSpace(req.Phone) != "" {
		if phone, err = contact.NormalizePhone(req.Phone); err != nil {
			return nil, err
		}
	}

	source := domain.SourceManualEntry
	if raw := strings.TrimSpace(req.Source); raw != "" {
		if source, err = domain.ParseSource(raw); err != nil {
			return nil, err
		}
	}
	urgency := domain.UrgencyMedium
	if raw := strings.TrimSpace(req.Urgency); raw != "" {
		if urgency, err = domain.ParseUrgency(raw); err != nil {
			return nil, err
		}
	}

	userID := user.ID
	now := s.clock.Now()
	lead := &domain.Lead{
		ID:                    s.genID.Generate(),
		AssignedSalespersonID: &userID,
		Name:                  name,
		Email:                 email,
		Phone:                 phone,
		Source:                source,
		Status:                domain.StatusNew,
		Urgency:               urgency,
		PainPoints:            datatypes.JSONSlice[string]{},
		Motivations:           datatypes.JSONSlice[string]{},
		Objections:            datatypes.JSONSlice[string]{},
		InterestedTreatments:  datatypes.JSONSlice[string](domain.MergeUnique(nil, req.InterestedTreatments)),
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	err = s.gateway.InTx(ctx, scope, func(tx *gorm.DB) error {
		if err := s.leads.WithTx(tx).Create(ctx, scope, lead); err != nil {
			return err
		}
		notes := strings.TrimSpace(req.Notes)
		if notes == "" {
			return nil
		}
		return s.writeInteraction(ctx, tx, scope, lead.ID, &userID, interactiondomain.TypeNote, notes, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("create lead: %w", err)
	}

	s.audit.Log(ctx, "lead:created", map[string]any{
		"id":         lead.ID.String(),
		"practiceId": lead.PracticeID.String(),
		"source":     string(lead.Source),
		"userId":     userID.String(),
	})
	return lead, nil
}

func (s *Service) ChangeStatus(ctx context.Context, user *authdomain.User, id snowflake.ID, req domain.ChangeStatusRequest) (*domain.Lead, error) {
	if err := s.policy.Can(user, access.ObjectLead, access.ActionUpdate); err != nil {
		return nil, err
	}
	next, err := domain.ParseStatus(strings.TrimSpace(req.Status))
	if err != nil {
		return nil, err
	}
	var reason *domain.LostReason
	if raw := strings.TrimSpace(req.LostReason); raw != "" {
		parsed, err := domain.ParseLostReason(raw)
		if err != nil {
			return nil, err
		}
		reason = &parsed
	}

	lead, scope, err := s.Resolve(ctx, user, id)
	if err != nil {
		return nil, err
	}
	// Writes re-check the practice through the write path.
	if scope, err = s.policy.PracticeScope(ctx, user, scope.PracticeID()); err != nil {
		return nil, err
	}

	userID := user.ID
	var updated *domain.Lead
	err = s.gateway.InTx(ctx, scope, func(tx *gorm.DB) error {
		var err error
		updated, err = s.Transition(ctx, tx, scope, lead, domain.TransitionRequest{
			Status:     next,
			ActorID:    &userID,
			Notes:      strings.TrimSpace(req.Notes),
			LostReason: reason,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, "lead:status_changed", map[string]any{
		"id":         updated.ID.String(),
		"practiceId": updated.PracticeID.String(),
		"status":     string(updated.Status),
		"userId":     userID.String(),
	})
	return updated, nil
}

// Transition applies a status change and writes the STATUS_CHANGE interaction.
func (s *Service) Transition(ctx context.Context, tx *gorm.DB, scope tenant.Scope, lead *domain.Lead, req domain.TransitionRequest) (*domain.Lead, error) {
	leads := s.leads.WithTx(tx)
	current, err := leads.FindForUpdate(ctx, scope, lead.ID)
	if err != nil {
		return nil, err
	}
	old := current.Status

	fields := domain.TransitionFields(current, req.Status, s.clock.Now(), req.LostReason)
	if err := leads.Update(ctx, scope, lead.ID, setOnce(fields)); err != nil {
		return nil, err
	}

	body := fmt.Sprintf("Status changed from %s to %s", old, req.Status)
	if req.Notes != "" {
		body += ": " + req.Notes
	}
	meta := datatypes.JSONMap{"oldStatus": string(old), "newStatus": string(req.Status)}
	if err := s.writeInteraction(ctx, tx, scope, lead.ID, req.ActorID, interactiondomain.TypeStatusChange, body, meta); err != nil {
		return nil, err
	}

	return leads.FindByID(ctx, scope, lead.ID)
}

func (s *Service) Update(ctx context.Context, user *authdomain.User, id snowflake.ID, req domain.UpdateLeadRequest) (*domain.Lead, error) {
	if err := s.policy.Can(user, access.ObjectLead, access.ActionUpdate); err != nil {
		return nil, err
	}
	_, scope, err := s.Resolve(ctx, user, id)
	if err != nil {
		return nil, err
	}
	if scope, err = s.policy.PracticeScope(ctx, user, scope.PracticeID()); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	fields := map[string]any{"updated_at": now}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		fields["name"] = name
	}
	if req.Email != nil {
		email, err := contact.NormalizeEmail(*req.Email)
		if err != nil {
			return nil, err
		}
		fields["email"] = email
	}
	if req.Phone != nil {
		phone, err := contact.NormalizePhone(*req.Phone)
		if err != nil {
			return nil, err
		}
		fields["phone"] = phone
	}
	if req.Urgency != nil {
		urgency, err := domain.ParseUrgency(strings.TrimSpace(*req.Urgency))
		if err != nil {
			return nil, err
		}
		fields["urgency"] = urgency
	}
	if req.EstimatedBudget != nil {
		fields["estimated_budget"] = *req.EstimatedBudget
	}

	// Array merges and the consent stamp read the row under lock so
	// concurrent edits append rather than overwrite each other.
	err = s.gateway.InTx(ctx, scope, func(tx *gorm.DB) error {
		leads := s.leads.WithTx(tx)
		current, err := leads.FindForUpdate(ctx, scope, id)
		if err != nil {
			return err
		}
		merge := func(column string, existing, additions []string) {
			if additions != nil {
				fields[column] = datatypes.JSONSlice[string](domain.MergeUnique(existing, additions))
			}
		}
		merge("interested_treatments", current.InterestedTreatments, req.InterestedTreatments)
		merge("pain_points", current.PainPoints, req.PainPoints)
		merge("motivations", current.Motivations, req.Motivations)
		merge("objections", current.Objections, req.Objections)

		if req.RecordingConsent != nil {
			fields["recording_consent"] = *req.RecordingConsent
			if *req.RecordingConsent && current.RecordingConsentDate == nil {
				fields["recording_consent_date"] = now
				method := strings.TrimSpace(req.ConsentMethod)
				if method == "" {
					method = "VERBAL"
				}
				fields["recording_consent_method"] = method
			}
		}
		return leads.Update(ctx, scope, id, fields)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, "lead:updated", map[string]any{
		"id":         id.String(),
		"practiceId": scope.PracticeID().String(),
		"userId":     user.ID.String(),
	})
	return s.leads.FindByID(ctx, scope, id)
}

// Materialize inserts a lead built by the webhook pipeline.
func (s *Service) Materialize(ctx context.Context, tx *gorm.DB, scope tenant.Scope, lead *domain.Lead) error {
	if lead.ID == 0 {
		lead.ID = s.genID.Generate()
	}
	now := s.clock.Now()
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = now
	}
	lead.UpdatedAt = now
	return s.store(tx).Create(ctx, scope, lead)
}

// MergeContext appends enrichment findings without dropping existing values.
func (s *Service) MergeContext(ctx context.Context, tx *gorm.DB, scope tenant.Scope, id snowflake.ID, objections, motivations []string) error {
	if len(objections) == 0 && len(motivations) == 0 {
		return nil
	}
	if tx == nil {
		return s.gateway.InTx(ctx, scope, func(tx *gorm.DB) error {
			return s.MergeContext(ctx, tx, scope, id, objections, motivations)
		})
	}
	leads := s.leads.WithTx(tx)
	lead, err := leads.FindForUpdate(ctx, scope, id)
	if err != nil {
		return err
	}
	return leads.Update(ctx, scope, id, map[string]any{
		"objections":  datatypes.JSONSlice[string](domain.MergeUnique(lead.Objections, objections)),
		"motivations": datatypes.JSONSlice[string](domain.MergeUnique(lead.Motivations, motivations)),
		"updated_at":  s.clock.Now(),
	})
}

func (s *Service) RecordFirstContact(ctx context.Context, tx *gorm.DB, scope tenant.Scope, id snowflake.ID) error {
	leads := s.store(tx)
	lead, err := leads.FindByID(ctx, scope, id)
	if err != nil {
		return err
	}
	fields := domain.FirstContactFields(lead, s.clock.Now())
	if len(fields) == 0 {
		return nil
	}
	return leads.Update(ctx, scope, id, setOnce(fields))
}

// setOnce turns write-once columns into COALESCE assignments, so a value
// committed by a concurrent writer survives this UPDATE.
func setOnce(fields map[string]any) map[string]any {
	for _, column := range domain.WriteOnceColumns {
		if v, ok := fields[column]; ok {
			fields[column] = gorm.Expr("COALESCE("+column+", ?)", v)
		}
	}
	return fields
}

func (s *Service) SetConversationSummary(ctx context.Context, scope tenant.Scope, id snowflake.ID, summary string) error {
	return s.leads.Update(ctx, scope, id, map[string]any{
		"conversation_summary": summary,
		"updated_at":           s.clock.Now(),
	})
}

func (s *Service) store(tx *gorm.DB) *tenant.Store[domain.Lead, *domain.Lead] {
	if tx == nil {
		return s.leads
	}
	return s.leads.WithTx(tx)
}

func (s *Service) writeInteraction(ctx context.Context, tx *gorm.DB, scope tenant.Scope, leadID snowflake.ID, userID *snowflake.ID, kind interactiondomain.Type, body string, meta datatypes.JSONMap) error {
	if meta == nil {
		meta = datatypes.JSONMap{}
	}
	return s.interactions.WithTx(tx).Create(ctx, scope, &interactiondomain.Interaction{
		ID:               s.genID.Generate(),
		LeadID:           leadID,
		UserID:           userID,
		Type:             kind,
		Direction:        interactiondomain.DirectionOf(kind),
		Body:             body,
		Metadata:         meta,
		Topics:           datatypes.JSONSlice[string]{},
		Objections:       datatypes.JSONSlice[string]{},
		Motivations:      datatypes.JSONSlice[string]{},
		EnrichmentStatus: interactiondomain.EnrichmentCompleted,
		CreatedAt:        s.clock.Now(),
	})
}
