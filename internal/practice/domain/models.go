package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusActive     Status = "ACTIVE"
	StatusOnboarding Status = "ONBOARDING"
	StatusPaused     Status = "PAUSED"
	StatusChurned    Status = "CHURNED"
)

type Tier string

const (
	TierStarter      Tier = "STARTER"
	TierGrowth       Tier = "GROWTH"
	TierProfessional Tier = "PROFESSIONAL"
)

// Practice is the tenant: every lead, interaction, appointment and campaign
// belongs to exactly one practice.
type Practice struct {
	ID                    snowflake.ID  `gorm:"primaryKey" json:"id"`
	Name                  string        `gorm:"type:text;not null" json:"name"`
	Slug                  string        `gorm:"type:text;not null;uniqueIndex" json:"slug"`
	Email                 string        `gorm:"type:text" json:"email,omitempty"`
	Phone                 string        `gorm:"type:text" json:"phone,omitempty"`
	City                  string        `gorm:"type:text" json:"city,omitempty"`
	Postcode              string        `gorm:"type:text" json:"postcode,omitempty"`
	Status                Status        `gorm:"type:text;not null" json:"status"`
	SubscriptionTier      Tier          `gorm:"type:text;not null" json:"subscriptionTier"`
	AssignedSalespersonID *snowflake.ID `gorm:"index" json:"assignedSalespersonId,omitempty"`
	CreatedAt             time.Time     `gorm:"not null" json:"createdAt"`
	UpdatedAt             time.Time     `gorm:"not null" json:"updatedAt"`
}

func (Practice) TableName() string { return "practices" }

type Campaign struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	PracticeID snowflake.ID `gorm:"not null;index" json:"practiceId"`
	Name       string       `gorm:"type:text;not null" json:"name"`
	Platform   string       `gorm:"type:text;not null" json:"platform"`
	ExternalID string       `gorm:"type:text" json:"externalId,omitempty"`
	Budget     float64      `gorm:"not null;default:0" json:"budget"`
	Spent      float64      `gorm:"not null;default:0" json:"spent"`
	CreatedAt  time.Time    `gorm:"not null" json:"createdAt"`
	UpdatedAt  time.Time    `gorm:"not null" json:"updatedAt"`
}

func (Campaign) TableName() string { return "campaigns" }

func (c *Campaign) GetPracticeID() snowflake.ID   { return c.PracticeID }
func (c *Campaign) SetPracticeID(id snowflake.ID) { c.PracticeID = id }

type TreatmentType struct {
	ID                   snowflake.ID `gorm:"primaryKey" json:"id"`
	PracticeID           snowflake.ID `gorm:"not null;index" json:"practiceId"`
	Name                 string       `gorm:"type:text;not null" json:"name"`
	Category             string       `gorm:"type:text" json:"category,omitempty"`
	AveragePrice         float64      `gorm:"not null;default:0" json:"averagePrice"`
	ConsultationDuration int          `gorm:"not null;default:30" json:"consultationDuration"`
}

func (TreatmentType) TableName() string { return "treatment_types" }

func (t *TreatmentType) GetPracticeID() snowflake.ID   { return t.PracticeID }
func (t *TreatmentType) SetPracticeID(id snowflake.ID) { t.PracticeID = id }
