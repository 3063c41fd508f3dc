package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusEnquiry               Status = "ENQUIRY"
	StatusNew                   Status = "NEW"
	StatusContacted             Status = "CONTACTED"
	StatusQualified             Status = "QUALIFIED"
	StatusNurturing             Status = "NURTURING"
	StatusAppointmentBooked     Status = "APPOINTMENT_BOOKED"
	StatusConsultationCompleted Status = "CONSULTATION_COMPLETED"
	StatusTreatmentStarted      Status = "TREATMENT_STARTED"
	StatusLost                  Status = "LOST"
	StatusUnqualified           Status = "UNQUALIFIED"
)

// Statuses lists the pipeline in order, followed by the terminal side states.
var Statuses = []Status{
	StatusEnquiry,
	StatusNew,
	StatusContacted,
	StatusQualified,
	StatusNurturing,
	StatusAppointmentBooked,
	StatusConsultationCompleted,
	StatusTreatmentStarted,
	StatusLost,
	StatusUnqualified,
}

func ParseStatus(raw string) (Status, error) {
	for _, s := range Statuses {
		if string(s) == raw {
			return s, nil
		}
	}
	return "", ErrInvalidStatus
}

type Source string

const (
	SourceManualEntry Source = "MANUAL_ENTRY"
	SourceFacebookAd  Source = "FACEBOOK_AD"
	SourceInstagramAd Source = "INSTAGRAM_AD"
	SourceGoogleAd    Source = "GOOGLE_AD"
	SourceReferral    Source = "REFERRAL"
	SourceOrganic     Source = "ORGANIC"
	SourceWebsiteForm Source = "WEBSITE_FORM"
)

func ParseSource(raw string) (Source, error) {
	switch s := Source(raw); s {
	case SourceManualEntry, SourceFacebookAd, SourceInstagramAd, SourceGoogleAd,
		SourceReferral, SourceOrganic, SourceWebsiteForm:
		return s, nil
	default:
		return "", ErrInvalidSource
	}
}

type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

func ParseUrgency(raw string) (Urgency, error) {
	switch u := Urgency(raw); u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh:
		return u, nil
	default:
		return "", ErrInvalidUrgency
	}
}

type LostReason string

const (
	LostReasonPrice       LostReason = "PRICE"
	LostReasonTiming      LostReason = "TIMING"
	LostReasonCompetitor  LostReason = "CHOSE_COMPETITOR"
	LostReasonNoResponse  LostReason = "NO_RESPONSE"
	LostReasonNotSuitable LostReason = "NOT_SUITABLE"
	LostReasonOther       LostReason = "OTHER"
)

func ParseLostReason(raw string) (LostReason, error) {
	switch r := LostReason(raw); r {
	case LostReasonPrice, LostReasonTiming, LostReasonCompetitor,
		LostReasonNoResponse, LostReasonNotSuitable, LostReasonOther:
		return r, nil
	default:
		return "", ErrInvalidLostReason
	}
}

// Lead is a prospective patient. Lifecycle timestamps are written at most once.
type Lead struct {
	ID                     snowflake.ID                `gorm:"primaryKey" json:"id"`
	PracticeID             snowflake.ID                `gorm:"not null;index" json:"practiceId"`
	CampaignID             *snowflake.ID               `gorm:"index" json:"campaignId,omitempty"`
	AssignedSalespersonID  *snowflake.ID               `gorm:"index" json:"assignedSalespersonId,omitempty"`
	Name                   string                      `gorm:"type:text;not null" json:"name"`
	Email                  string                      `gorm:"type:text;index" json:"email,omitempty"`
	Phone                  string                      `gorm:"type:text" json:"phone,omitempty"`
	Source                 Source                      `gorm:"type:text;not null" json:"source"`
	Status                 Status                      `gorm:"type:text;not null;index" json:"status"`
	Urgency                Urgency                     `gorm:"type:text;not null" json:"urgency"`
	EstimatedBudget        *float64                    `json:"estimatedBudget,omitempty"`
	PainPoints             datatypes.JSONSlice[string] `json:"painPoints"`
	Motivations            datatypes.JSONSlice[string] `json:"motivations"`
	Objections             datatypes.JSONSlice[string] `json:"objections"`
	InterestedTreatments   datatypes.JSONSlice[string] `json:"interestedTreatments"`
	RecordingConsent       bool                        `gorm:"not null;default:false" json:"recordingConsent"`
	RecordingConsentDate   *time.Time                  `json:"recordingConsentDate,omitempty"`
	RecordingConsentMethod string                      `gorm:"type:text" json:"recordingConsentMethod,omitempty"`
	ConversationSummary    string                      `gorm:"type:text" json:"conversationSummary,omitempty"`
	FirstContactAt         *time.Time                  `json:"firstContactAt,omitempty"`
	SpeedToFirstContactMs  *int64                      `json:"speedToFirstContactMs,omitempty"`
	QualifiedAt            *time.Time                  `json:"qualifiedAt,omitempty"`
	AppointmentBookedAt    *time.Time                  `json:"appointmentBookedAt,omitempty"`
	LostAt                 *time.Time                  `json:"lostAt,omitempty"`
	LostReason             *LostReason                 `gorm:"type:text" json:"lostReason,omitempty"`
	PromotedToLeadAt       *time.Time                  `json:"promotedToLeadAt,omitempty"`
	CreatedAt              time.Time                   `gorm:"not null;index" json:"createdAt"`
	UpdatedAt              time.Time                   `gorm:"not null" json:"updatedAt"`
}

func (Lead) TableName() string { return "leads" }

func (l *Lead) GetPracticeID() snowflake.ID   { return l.PracticeID }
func (l *Lead) SetPracticeID(id snowflake.ID) { l.PracticeID = id }
