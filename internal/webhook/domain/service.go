package domain

import (
	"context"
	"io"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

const (
	// MaxBodyBytes bounds a delivery before any parsing.
	MaxBodyBytes = 1 << 20

	StatusCreated   = "created"
	StatusDuplicate = "duplicate"
)

type Repository interface {
	Claim(ctx context.Context, event *WebhookEvent) error
	FindByEventID(ctx context.Context, eventID string) (*WebhookEvent, error)
	AttachLead(ctx context.Context, tx *gorm.DB, eventID string, leadID snowflake.ID) error
	ListUnresolved(ctx context.Context, olderThan time.Time, limit int) ([]*WebhookEvent, error)
}

type Service interface {
	Ingest(ctx context.Context, d Delivery) (*Result, error)
	Unresolved(ctx context.Context, olderThan time.Time, limit int) ([]*WebhookEvent, error)
}

// Delivery is one inbound request exactly as received.
type Delivery struct {
	Body          io.Reader
	ContentLength int64
	Signature     string
	SourceIP      string
}

type Result struct {
	Status      string        `json:"status"`
	LeadID      *snowflake.ID `json:"leadId"`
	ProcessedAt *time.Time    `json:"processedAt,omitempty"`
}
