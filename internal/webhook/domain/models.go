package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	ProviderMeta         = "META"
	EventTypeLeadCreated = "lead_created"
)

// WebhookEvent is the idempotency ledger. The unique event_id is the claim.
type WebhookEvent struct {
	ID          snowflake.ID   `gorm:"primaryKey" json:"id"`
	EventID     string         `gorm:"type:text;not null;uniqueIndex" json:"eventId"`
	Provider    string         `gorm:"type:text;not null" json:"provider"`
	EventType   string         `gorm:"type:text;not null" json:"eventType"`
	Payload     datatypes.JSON `json:"payload"`
	ProcessedAt time.Time      `gorm:"not null;index" json:"processedAt"`
	LeadID      *snowflake.ID  `gorm:"index" json:"leadId"`
}

func (WebhookEvent) TableName() string { return "webhook_events" }

// EventID derives the ledger key for a provider event.
func EventID(provider, externalID string) string {
	switch provider {
	case ProviderMeta:
		return "meta:" + externalID
	default:
		return provider + ":" + externalID
	}
}
