package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opensmile/internal/access"
	"github.com/smallbiznis/opensmile/internal/appointment/domain"
	"github.com/smallbiznis/opensmile/internal/audit/redact"
	authdomain "github.com/smallbiznis/opensmile/internal/auth/domain"
	"github.com/smallbiznis/opensmile/internal/clock"
	interactiondomain "github.com/smallbiznis/opensmile/internal/interaction/domain"
	leaddomain "github.com/smallbiznis/opensmile/internal/lead/domain"
	practicedomain "github.com/smallbiznis/opensmile/internal/practice/domain"
	"github.com/smallbiznis/opensmile/internal/tenant"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const defaultDurationMinutes = 30

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Audit     *redact.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Policy    *access.Policy
	Gateway   *tenant.Gateway
	Leads     leaddomain.Service
	Practices practicedomain.Service
}

type Service struct {
	log          *zap.Logger
	audit        *redact.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	policy       *access.Policy
	gateway      *tenant.Gateway
	leads        leaddomain.Service
	practices    practicedomain.Service
	appointments *tenant.Store[domain.Appointment, *domain.Appointment]
	leadsStore   *tenant.Store[leaddomain.Lead, *leaddomain.Lead]
	interactions *tenant.Store[interactiondomain.Interaction, *interactiondomain.Interaction]
}

func New(p Params) domain.Service {
	return &Service{
		log:          p.Log.Named("appointment.service"),
		audit:        p.Audit,
		genID:        p.GenID,
		clock:        p.Clock,
		policy:       p.Policy,
		gateway:      p.Gateway,
		leads:        p.Leads,
		practices:    p.Practices,
		appointments: tenant.NewStore[domain.Appointment](p.DB),
		leadsStore:   tenant.NewStore[leaddomain.Lead](p.DB),
		interactions: tenant.NewStore[interactiondomain.Interaction](p.DB),
	}
}

func (s *Service) List(ctx context.Context, user *authdomain.User, req domain.ListRequest) ([]*domain.Appointment, error) {
	if err := s.policy.Can(user, access.ObjectAppointment, access.ActionRead); err != nil {
		return nil, err
	}
	filter, err := s.policy.ResolveVisibility(ctx, user, req.PracticeID)
	if err != nil {
		return nil, err
	}

	q := tenant.Query{Order: "scheduled_at ASC"}
	if raw := strings.TrimSpace(req.Status); raw != "" {
		status, err := domain.ParseStatus(raw)
		if err != nil {
			return nil, err
		}
		q.Conds = append(q.Conds, tenant.Where("status = ?", status))
	}
	if req.From != nil && req.To != nil && req.To.Before(*req.From) {
		return nil, domain.ErrInvalidDateRange
	}
	if req.From != nil {
		q.Conds = append(q.Conds, tenant.Where("scheduled_at >= ?", req.From.UTC()))
	}
	if req.To != nil {
		q.Conds = append(q.Conds, tenant.Where("scheduled_at <= ?", req.To.UTC()))
	}

	rows, _, err := s.appointments.FindVisible(ctx, filter, q)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []*domain.Appointment{}
	}
	return rows, nil
}

// Create books an appointment in the lead's practice and moves the lead to
// APPOINTMENT_BOOKED in the same transaction.
func (s *Service) Create(ctx context.Context, user *authdomain.User, req domain.CreateRequest) (*domain.Appointment, error) {
	if err := s.policy.Can(user, access.ObjectAppointment, access.ActionCreate); err != nil {
		return nil, err
	}
	if req.ScheduledAt.IsZero() {
		return nil, domain.ErrInvalidSchedule
	}
	kind := domain.KindConsultation
	if raw := strings.TrimSpace(req.Kind); raw != "" {
		var err error
		if kind, err = domain.ParseKind(raw); err != nil {
			return nil, err
		}
	}
	duration := req.DurationMinutes
	if duration <= 0 {
		duration = defaultDurationMinutes
	}

	lead, scope, err := s.leads.Resolve(ctx, user, req.LeadID)
	if err != nil {
		return nil, err
	}
	if scope, err = s.policy.PracticeScope(ctx, user, scope.PracticeID()); err != nil {
		return nil, err
	}

	treatment, err := s.practices.FindTreatmentType(ctx, scope, req.TreatmentTypeID)
	if errors.Is(err, tenant.ErrNotFound) {
		return nil, domain.ErrTreatmentTypeMismatch
	}
	if err != nil {
		return nil, err
	}

	userID := user.ID
	now := s.clock.Now()
	appt := &domain.Appointment{
		ID:              s.genID.Generate(),
		LeadID:          lead.ID,
		TreatmentTypeID: treatment.ID,
		BookedByUserID:  &userID,
		Kind:            kind,
		Status:          domain.StatusScheduled,
		ScheduledAt:     req.ScheduledAt.UTC(),
		DurationMinutes: duration,
		DepositAmount:   req.DepositAmount,
		Notes:           strings.TrimSpace(req.Notes),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = s.gateway.InTx(ctx, scope, func(tx *gorm.DB) error {
		if err := s.appointments.WithTx(tx).Create(ctx, scope, appt); err != nil {
			return err
		}
		if _, err := s.leads.Transition(ctx, tx, scope, lead, leaddomain.TransitionRequest{
			Status:  leaddomain.StatusAppointmentBooked,
			ActorID: &userID,
		}); err != nil {
			return err
		}
		return s.interactions.WithTx(tx).Create(ctx, scope, &interactiondomain.Interaction{
			ID:               s.genID.Generate(),
			LeadID:           lead.ID,
			UserID:           &userID,
			Type:             interactiondomain.TypeAppointmentCreated,
			Direction:        interactiondomain.DirectionInternal,
			Body:             "Appointment booked for " + appt.ScheduledAt.Format("2006-01-02"),
			Metadata:         datatypes.JSONMap{"appointmentId": appt.ID.String()},
			Topics:           datatypes.JSONSlice[string]{},
			Objections:       datatypes.JSONSlice[string]{},
			Motivations:      datatypes.JSONSlice[string]{},
			EnrichmentStatus: interactiondomain.EnrichmentCompleted,
			CreatedAt:        now,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	s.audit.Log(ctx, "appointment:created", map[string]any{
		"id":         appt.ID.String(),
		"leadId":     appt.LeadID.String(),
		"practiceId": appt.PracticeID.String(),
		"userId":     userID.String(),
	})
	return appt, nil
}

// RecordOutcome writes the attendance result exactly once.
func (s *Service) RecordOutcome(ctx context.Context, user *authdomain.User, id snowflake.ID, req domain.OutcomeRequest) (*domain.Appointment, error) {
	if err := s.policy.Can(user, access.ObjectAppointment, access.ActionRecordOutcome); err != nil {
		return nil, err
	}
	source := domain.ConfirmationManualSalesperson
	if raw := strings.TrimSpace(req.ConfirmationSource); raw != "" {
		var err error
		if source, err = domain.ParseConfirmationSource(raw); err != nil {
			return nil, err
		}
	}

	scope, err := s.scopeFor(ctx, user, id)
	if err != nil {
		return nil, err
	}

	userID := user.ID
	now := s.clock.Now()
	status := domain.StatusNoShow
	if req.ShowedUp {
		status = domain.StatusAttended
	}
	showedUp := req.ShowedUp

	var appt *domain.Appointment
	err = s.gateway.InTx(ctx, scope, func(tx *gorm.DB) error {
		appointments := s.appointments.WithTx(tx)
		current, err := appointments.FindByID(ctx, scope, id)
		if err != nil {
			return err
		}
		if current.OutcomeRecorded() {
			return domain.ErrOutcomeAlreadyRecorded
		}

		err = appointments.UpdateIf(ctx, scope, id, map[string]any{
			"status":               status,
			"showed_up":            showedUp,
			"no_show_reason":       strings.TrimSpace(req.NoShowReason),
			"outcome_notes":        strings.TrimSpace(req.Notes),
			"converted":            req.Converted,
			"estimated_value":      req.EstimatedValue,
			"confirmed_at":         now,
			"confirmation_source":  source,
			"confirmed_by_user_id": userID,
			"updated_at":           now,
		}, tenant.Where("confirmed_at IS NULL"))
		if errors.Is(err, tenant.ErrNotFound) {
			// lost a race with a concurrent confirmation
			return domain.ErrOutcomeAlreadyRecorded
		}
		if err != nil {
			return err
		}

		if req.ShowedUp {
			next := leaddomain.StatusConsultationCompleted
			if req.Converted {
				next = leaddomain.StatusTreatmentStarted
			}
			lead, err := s.leadInTx(ctx, tx, scope, current.LeadID)
			if err != nil {
				return err
			}
			if _, err := s.leads.Transition(ctx, tx, scope, lead, leaddomain.TransitionRequest{
				Status:  next,
				ActorID: &userID,
			}); err != nil {
				return err
			}
		}

		appt, err = appointments.FindByID(ctx, scope, id)
		return err
	})
	if errors.Is(err, tenant.ErrNotFound) {
		return nil, domain.ErrAppointmentNotFound
	}
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, "appointment:outcome_recorded", map[string]any{
		"id":         appt.ID.String(),
		"practiceId": appt.PracticeID.String(),
		"status":     string(appt.Status),
		"userId":     userID.String(),
	})
	return appt, nil
}

// scopeFor resolves the write scope for an appointment. Appointments outside
// the caller's visibility are reported as missing.
func (s *Service) scopeFor(ctx context.Context, user *authdomain.User, id snowflake.ID) (tenant.Scope, error) {
	practiceID, err := s.appointments.PracticeOf(ctx, id)
	if errors.Is(err, tenant.ErrNotFound) {
		return tenant.Scope{}, domain.ErrAppointmentNotFound
	}
	if err != nil {
		return tenant.Scope{}, err
	}
	filter, err := s.policy.ResolveVisibility(ctx, user, nil)
	if err != nil {
		return tenant.Scope{}, err
	}
	if !filter.Allows(practiceID) {
		return tenant.Scope{}, domain.ErrAppointmentNotFound
	}
	return s.policy.PracticeScope(ctx, user, practiceID)
}

func (s *Service) leadInTx(ctx context.Context, tx *gorm.DB, scope tenant.Scope, id snowflake.ID) (*leaddomain.Lead, error) {
	return s.leadsStore.WithTx(tx).FindByID(ctx, scope, id)
}
