package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/opensmile/internal/auth/domain"
)

const DefaultRange = 30 * 24 * time.Hour

var ErrInvalidDateRange = errors.New("invalid_date_range")

type Service interface {
	Metrics(ctx context.Context, user *authdomain.User, req RangeRequest) (*PracticeMetrics, error)
	Funnel(ctx context.Context, user *authdomain.User, req RangeRequest) ([]FunnelStage, error)
	Dashboard(ctx context.Context, user *authdomain.User) (*DashboardSummary, error)
}

// RangeRequest filters by lead creation time. Missing bounds default to the
// last thirty days.
type RangeRequest struct {
	PracticeID *snowflake.ID
	From       *time.Time
	To         *time.Time
}

type PracticeMetrics struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`

	StatusCounts           map[string]int64 `json:"statusCounts"`
	TotalLeads             int64            `json:"totalLeads"`
	NewLeads               int64            `json:"newLeads"`
	Contacted              int64            `json:"contacted"`
	Qualified              int64            `json:"qualified"`
	AppointmentsBooked     int64            `json:"appointmentsBooked"`
	ConsultationsCompleted int64            `json:"consultationsCompleted"`
	TreatmentsStarted      int64            `json:"treatmentsStarted"`
	LostLeads              int64            `json:"lostLeads"`

	ContactRate       float64 `json:"contactRate"`
	QualificationRate float64 `json:"qualificationRate"`
	BookingRate       float64 `json:"bookingRate"`
	ShowRate          float64 `json:"showRate"`
	ConversionRate    float64 `json:"conversionRate"`

	TotalSpend         float64 `json:"totalSpend"`
	TotalRevenue       float64 `json:"totalRevenue"`
	ROI                float64 `json:"roi"`
	CostPerLead        float64 `json:"costPerLead"`
	CostPerAppointment float64 `json:"costPerAppointment"`

	TotalCalls  int64 `json:"totalCalls"`
	TotalEmails int64 `json:"totalEmails"`
	TotalSMS    int64 `json:"totalSMS"`
}

type FunnelStage struct {
	Stage string `json:"stage"`
	Count int64  `json:"count"`
}

type DashboardSummary struct {
	TotalLeads30d         int64 `json:"totalLeads30d"`
	NewLeads7d            int64 `json:"newLeads7d"`
	AppointmentsThisMonth int64 `json:"appointmentsThisMonth"`
	UpcomingAppointments  int64 `json:"upcomingAppointments"`
	TotalPractices        int64 `json:"totalPractices"`
}
