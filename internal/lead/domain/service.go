package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/opensmile/internal/auth/domain"
	"github.com/smallbiznis/opensmile/internal/tenant"
	"github.com/smallbiznis/opensmile/pkg/db/pagination"
	"gorm.io/gorm"
)

type Service interface {
	List(ctx context.Context, user *authdomain.User, req ListLeadRequest) (*ListLeadResponse, error)
	Get(ctx context.Context, user *authdomain.User, id snowflake.ID) (*Lead, error)
	Create(ctx context.Context, user *authdomain.User, req CreateLeadRequest) (*Lead, error)
	ChangeStatus(ctx context.Context, user *authdomain.User, id snowflake.ID, req ChangeStatusRequest) (*Lead, error)
	Update(ctx context.Context, user *authdomain.User, id snowflake.ID, req UpdateLeadRequest) (*Lead, error)

	// Resolve returns the lead together with a scope for its practice, or
	// ErrLeadNotFound when the lead is outside the user's visibility.
	Resolve(ctx context.Context, user *authdomain.User, id snowflake.ID) (*Lead, tenant.Scope, error)
	Transition(ctx context.Context, tx *gorm.DB, scope tenant.Scope, lead *Lead, req TransitionRequest) (*Lead, error)
	Materialize(ctx context.Context, tx *gorm.DB, scope tenant.Scope, lead *Lead) error
	MergeContext(ctx context.Context, tx *gorm.DB, scope tenant.Scope, id snowflake.ID, objections, motivations []string) error
	RecordFirstContact(ctx context.Context, tx *gorm.DB, scope tenant.Scope, id snowflake.ID) error
	SetConversationSummary(ctx context.Context, scope tenant.Scope, id snowflake.ID, summary string) error
}

type ListLeadRequest struct {
	PracticeID *snowflake.ID
	Status     string
	Search     string
	Page       pagination.Page
}

type ListLeadResponse struct {
	Leads []*Lead `json:"leads"`
	Total int64   `json:"total"`
	Page  int     `json:"page"`
	Limit int     `json:"limit"`
}

type CreateLeadRequest struct {
	PracticeID           snowflake.ID
	Name                 string
	Email                string
	Phone                string
	Source               string
	Urgency              string
	InterestedTreatments []string
	Notes                string
}

type ChangeStatusRequest struct {
	Status     string
	Notes      string
	LostReason string
}

// TransitionRequest is a validated status change applied inside a transaction.
type TransitionRequest struct {
	Status     Status
	ActorID    *snowflake.ID
	Notes      string
	LostReason *LostReason
}

type UpdateLeadRequest struct {
	Name                 *string
	Email                *string
	Phone                *string
	Urgency              *string
	EstimatedBudget      *float64
	InterestedTreatments []string
	PainPoints           []string
	Motivations          []string
	Objections           []string
	RecordingConsent     *bool
	ConsentMethod        string
}
