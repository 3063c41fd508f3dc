package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusScheduled Status = "SCHEDULED"
	StatusAttended  Status = "ATTENDED"
	StatusNoShow    Status = "NO_SHOW"
	StatusCancelled Status = "CANCELLED"
)

func ParseStatus(raw string) (Status, error) {
	switch s := Status(raw); s {
	case StatusScheduled, StatusAttended, StatusNoShow, StatusCancelled:
		return s, nil
	default:
		return "", ErrInvalidStatus
	}
}

type Kind string

const (
	KindConsultation Kind = "CONSULTATION"
	KindTreatment    Kind = "TREATMENT"
	KindFollowUp     Kind = "FOLLOW_UP"
)

func ParseKind(raw string) (Kind, error) {
	switch k := Kind(raw); k {
	case KindConsultation, KindTreatment, KindFollowUp:
		return k, nil
	default:
		return "", ErrInvalidKind
	}
}

type ConfirmationSource string

const (
	ConfirmationManualSalesperson ConfirmationSource = "MANUAL_SALESPERSON"
	ConfirmationManualPractice    ConfirmationSource = "MANUAL_PRACTICE"
	ConfirmationPracticeSystem    ConfirmationSource = "PRACTICE_SYSTEM"
)

func ParseConfirmationSource(raw string) (ConfirmationSource, error) {
	switch c := ConfirmationSource(raw); c {
	case ConfirmationManualSalesperson, ConfirmationManualPractice, ConfirmationPracticeSystem:
		return c, nil
	default:
		return "", ErrInvalidConfirmationSource
	}
}

// Appointment outcome fields are written once, by RecordOutcome.
type Appointment struct {
	ID              snowflake.ID  `gorm:"primaryKey" json:"id"`
	PracticeID      snowflake.ID  `gorm:"not null;index" json:"practiceId"`
	LeadID          snowflake.ID  `gorm:"not null;index" json:"leadId"`
	TreatmentTypeID snowflake.ID  `gorm:"not null" json:"treatmentTypeId"`
	BookedByUserID  *snowflake.ID `json:"bookedByUserId,omitempty"`
	Kind            Kind          `gorm:"column:type;type:text;not null" json:"type"`
	Status          Status        `gorm:"type:text;not null;index" json:"status"`
	ScheduledAt     time.Time     `gorm:"not null;index" json:"scheduledAt"`
	DurationMinutes int           `gorm:"not null;default:30" json:"durationMinutes"`
	DepositAmount   *float64      `json:"depositAmount,omitempty"`
	Notes           string        `gorm:"type:text" json:"notes,omitempty"`

	ShowedUp           *bool               `json:"showedUp,omitempty"`
	NoShowReason       string              `gorm:"type:text" json:"noShowReason,omitempty"`
	Converted          bool                `gorm:"not null;default:false" json:"converted"`
	EstimatedValue     *float64            `json:"estimatedValue,omitempty"`
	OutcomeNotes       string              `gorm:"type:text" json:"outcomeNotes,omitempty"`
	ConfirmedAt        *time.Time          `json:"confirmedAt,omitempty"`
	ConfirmationSource *ConfirmationSource `gorm:"type:text" json:"confirmationSource,omitempty"`
	ConfirmedByUserID  *snowflake.ID       `json:"confirmedByUserId,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null" json:"updatedAt"`
}

func (Appointment) TableName() string { return "appointments" }

func (a *Appointment) GetPracticeID() snowflake.ID   { return a.PracticeID }
func (a *Appointment) SetPracticeID(id snowflake.ID) { a.PracticeID = id }

func (a *Appointment) OutcomeRecorded() bool { return a.ConfirmedAt != nil }
