package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/opensmile/internal/auth/domain"
)

type Service interface {
	List(ctx context.Context, user *authdomain.User, req ListRequest) ([]*Appointment, error)
	Create(ctx context.Context, user *authdomain.User, req CreateRequest) (*Appointment, error)
	RecordOutcome(ctx context.Context, user *authdomain.User, id snowflake.ID, req OutcomeRequest) (*Appointment, error)
}

type ListRequest struct {
	PracticeID *snowflake.ID
	Status     string
	From       *time.Time
	To         *time.Time
}

type CreateRequest struct {
	LeadID          snowflake.ID
	TreatmentTypeID snowflake.ID
	ScheduledAt     time.Time
	Kind            string
	DurationMinutes int
	DepositAmount   *float64
	Notes           string
}

type OutcomeRequest struct {
	ShowedUp           bool
	NoShowReason       string
	Notes              string
	Converted          bool
	EstimatedValue     *float64
	ConfirmationSource string
}
