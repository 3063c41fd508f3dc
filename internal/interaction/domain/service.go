package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/opensmile/internal/auth/domain"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
	SummaryWindow    = 10
)

type Service interface {
	ListByLead(ctx context.Context, user *authdomain.User, leadID snowflake.ID, limit int) ([]*Interaction, error)
	Create(ctx context.Context, user *authdomain.User, req CreateRequest) (*Interaction, error)
	GenerateSummary(ctx context.Context, user *authdomain.User, leadID snowflake.ID) (*SummaryResult, error)
}

// Enqueuer hands a committed interaction to the post-processing job.
type Enqueuer interface {
	Enqueue(ctx context.Context, interactionID snowflake.ID) error
}

type CreateRequest struct {
	LeadID           snowflake.ID
	Type             string
	Subject          string
	Body             string
	CallDuration     *int
	CallRecordingURL string
}

type SummaryResult struct {
	Summary string `json:"summary"`
}
