package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Type string

const (
	TypeCallInbound        Type = "CALL_INBOUND"
	TypeCallOutbound       Type = "CALL_OUTBOUND"
	TypeEmailSent          Type = "EMAIL_SENT"
	TypeEmailReceived      Type = "EMAIL_RECEIVED"
	TypeSMSSent            Type = "SMS_SENT"
	TypeSMSReceived        Type = "SMS_RECEIVED"
	TypeNote               Type = "NOTE"
	TypeStatusChange       Type = "STATUS_CHANGE"
	TypeAppointmentCreated Type = "APPOINTMENT_CREATED"
)

func ParseType(raw string) (Type, error) {
	switch t := Type(raw); t {
	case TypeCallInbound, TypeCallOutbound, TypeEmailSent, TypeEmailReceived,
		TypeSMSSent, TypeSMSReceived, TypeNote, TypeStatusChange, TypeAppointmentCreated:
		return t, nil
	default:
		return "", ErrInvalidType
	}
}

// IsOutboundContact reports types that count as reaching out to the lead.
func (t Type) IsOutboundContact() bool {
	switch t {
	case TypeCallOutbound, TypeEmailSent, TypeSMSSent:
		return true
	case TypeCallInbound, TypeEmailReceived, TypeSMSReceived, TypeNote,
		TypeStatusChange, TypeAppointmentCreated:
		return false
	}
	return false
}

type Direction string

const (
	DirectionInbound  Direction = "INBOUND"
	DirectionOutbound Direction = "OUTBOUND"
	DirectionInternal Direction = "INTERNAL"
)

// DirectionOf derives the direction recorded for t.
func DirectionOf(t Type) Direction {
	switch t {
	case TypeCallInbound, TypeEmailReceived, TypeSMSReceived:
		return DirectionInbound
	case TypeCallOutbound, TypeEmailSent, TypeSMSSent:
		return DirectionOutbound
	case TypeNote, TypeStatusChange, TypeAppointmentCreated:
		return DirectionInternal
	}
	return DirectionInternal
}

type EnrichmentStatus string

const (
	EnrichmentPending   EnrichmentStatus = "PENDING"
	EnrichmentCompleted EnrichmentStatus = "COMPLETED"
	EnrichmentFailed    EnrichmentStatus = "FAILED"
)

// Interaction is immutable once written except for the enrichment columns
// and the recording URL, which retention clears.
type Interaction struct {
	ID               snowflake.ID      `gorm:"primaryKey" json:"id"`
	PracticeID       snowflake.ID      `gorm:"not null;index" json:"practiceId"`
	LeadID           snowflake.ID      `gorm:"not null;index" json:"leadId"`
	UserID           *snowflake.ID     `gorm:"index" json:"userId,omitempty"`
	Type             Type              `gorm:"type:text;not null" json:"type"`
	Direction        Direction         `gorm:"type:text;not null" json:"direction"`
	Subject          string            `gorm:"type:text" json:"subject,omitempty"`
	Body             string            `gorm:"type:text" json:"body,omitempty"`
	CallDuration     *int              `json:"callDuration,omitempty"`
	CallRecordingURL *string           `gorm:"column:call_recording_url;type:text" json:"callRecordingUrl,omitempty"`
	CallTranscript   *string           `gorm:"type:text" json:"callTranscript,omitempty"`
	Metadata         datatypes.JSONMap `json:"metadata"`

	AISummary          string                      `gorm:"column:ai_summary;type:text" json:"aiSummary,omitempty"`
	SentimentScore     *float64                    `json:"sentimentScore,omitempty"`
	Topics             datatypes.JSONSlice[string] `json:"topics"`
	Objections         datatypes.JSONSlice[string] `json:"objections"`
	Motivations        datatypes.JSONSlice[string] `json:"motivations"`
	NextBestAction     string                      `gorm:"type:text" json:"nextBestAction,omitempty"`
	EnrichmentStatus   EnrichmentStatus            `gorm:"type:text;not null;index" json:"enrichmentStatus"`
	EnrichmentAttempts int                         `gorm:"not null;default:0" json:"enrichmentAttempts"`
	EnrichedAt         *time.Time                  `json:"enrichedAt,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"createdAt"`
}

func (Interaction) TableName() string { return "interactions" }

func (i *Interaction) GetPracticeID() snowflake.ID   { return i.PracticeID }
func (i *Interaction) SetPracticeID(id snowflake.ID) { i.PracticeID = id }
