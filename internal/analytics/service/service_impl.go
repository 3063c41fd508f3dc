package service

import (
	"context"
	"time"

	"github.com/smallbiznis/opensmile/internal/access"
	"github.com/smallbiznis/opensmile/internal/analytics/domain"
	appointmentdomain "github.com/smallbiznis/opensmile/internal/appointment/domain"
	authdomain "github.com/smallbiznis/opensmile/internal/auth/domain"
	"github.com/smallbiznis/opensmile/internal/clock"
	interactiondomain "github.com/smallbiznis/opensmile/internal/interaction/domain"
	leaddomain "github.com/smallbiznis/opensmile/internal/lead/domain"
	practicedomain "github.com/smallbiznis/opensmile/internal/practice/domain"
	"github.com/smallbiznis/opensmile/internal/tenant"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	contactedStatuses = []leaddomain.Status{
		leaddomain.StatusContacted,
		leaddomain.StatusQualified,
		leaddomain.StatusNurturing,
		leaddomain.StatusAppointmentBooked,
		leaddomain.StatusConsultationCompleted,
		leaddomain.StatusTreatmentStarted,
	}
	qualifiedStatuses = contactedStatuses[1:]
	bookedStatuses    = contactedStatuses[3:]
	completedStatuses = contactedStatuses[4:]
)

var funnelStages = []struct {
	name   string
	status leaddomain.Status
}{
	{"Enquiry", leaddomain.StatusEnquiry},
	{"New", leaddomain.StatusNew},
	{"Contacted", leaddomain.StatusContacted},
	{"Qualified", leaddomain.StatusQualified},
	{"Booked", leaddomain.StatusAppointmentBooked},
	{"Attended", leaddomain.StatusConsultationCompleted},
	{"Converted", leaddomain.StatusTreatmentStarted},
}

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Clock  clock.Clock
	Policy *access.Policy
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	clock  clock.Clock
	policy *access.Policy
}

func New(p Params) domain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("analytics.service"),
		clock:  p.Clock,
		policy: p.Policy,
	}
}

func (s *Service) Metrics(ctx context.Context, user *authdomain.User, req domain.RangeRequest) (*domain.PracticeMetrics, error) {
	filter, from, to, err := s.resolve(ctx, user, req)
	if err != nil {
		return nil, err
	}

	counts, err := s.leadCountsByStatus(ctx, filter, from, to)
	if err != nil {
		return nil, err
	}

	m := &domain.PracticeMetrics{
		From:         from,
		To:           to,
		StatusCounts: make(map[string]int64, len(leaddomain.Statuses)),
	}
	for _, st := range leaddomain.Statuses {
		n := counts[st]
		m.StatusCounts[string(st)] = n
		m.TotalLeads += n
	}
	m.NewLeads = counts[leaddomain.StatusEnquiry] + counts[leaddomain.StatusNew]
	m.Contacted = sum(counts, contactedStatuses)
	m.Qualified = sum(counts, qualifiedStatuses)
	m.AppointmentsBooked = sum(counts, bookedStatuses)
	m.ConsultationsCompleted = sum(counts, completedStatuses)
	m.TreatmentsStarted = counts[leaddomain.StatusTreatmentStarted]
	m.LostLeads = counts[leaddomain.StatusLost]

	m.ContactRate = ratio(float64(m.Contacted), m.TotalLeads)
	m.QualificationRate = ratio(float64(m.Qualified), m.Contacted)
	m.BookingRate = ratio(float64(m.AppointmentsBooked), m.Qualified)
	m.ShowRate = ratio(float64(m.ConsultationsCompleted), m.AppointmentsBooked)
	m.ConversionRate = ratio(float64(m.TreatmentsStarted), m.ConsultationsCompleted)

	if m.TotalSpend, err = s.campaignSpend(ctx, filter); err != nil {
		return nil, err
	}
	if m.TotalRevenue, err = s.convertedRevenue(ctx, filter, from, to); err != nil {
		return nil, err
	}
	if m.TotalSpend > 0 {
		m.ROI = m.TotalRevenue / m.TotalSpend
	}
	m.CostPerLead = ratio(m.TotalSpend, m.TotalLeads)
	m.CostPerAppointment = ratio(m.TotalSpend, m.AppointmentsBooked)

	activity, err := s.interactionCounts(ctx, filter, from, to)
	if err != nil {
		return nil, err
	}
	m.TotalCalls = activity[interactiondomain.TypeCallInbound] + activity[interactiondomain.TypeCallOutbound]
	m.TotalEmails = activity[interactiondomain.TypeEmailSent] + activity[interactiondomain.TypeEmailReceived]
	m.TotalSMS = activity[interactiondomain.TypeSMSSent] + activity[interactiondomain.TypeSMSReceived]
	return m, nil
}

func (s *Service) Funnel(ctx context.Context, user *authdomain.User, req domain.RangeRequest) ([]domain.FunnelStage, error) {
	filter, from, to, err := s.resolve(ctx, user, req)
	if err != nil {
		return nil, err
	}
	counts, err := s.leadCountsByStatus(ctx, filter, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]domain.FunnelStage, 0, len(funnelStages))
	for _, st := range funnelStages {
		out = append(out, domain.FunnelStage{Stage: st.name, Count: counts[st.status]})
	}
	return out, nil
}

func (s *Service) Dashboard(ctx context.Context, user *authdomain.User) (*domain.DashboardSummary, error) {
	if err := s.policy.Can(user, access.ObjectAnalytics, access.ActionRead); err != nil {
		return nil, err
	}
	filter, err := s.policy.ResolveVisibility(ctx, user, nil)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	out := &domain.DashboardSummary{}

	leads := func() *gorm.DB { return filter.Apply(s.db.WithContext(ctx).Model(&leaddomain.Lead{}), "practice_id") }
	appts := func() *gorm.DB {
		return filter.Apply(s.db.WithContext(ctx).Model(&appointmentdomain.Appointment{}), "practice_id")
	}

	if err := leads().Where("created_at >= ?", now.Add(-30*24*time.Hour)).Count(&out.TotalLeads30d).Error; err != nil {
		return nil, err
	}
	if err := leads().Where("created_at >= ?", now.Add(-7*24*time.Hour)).Count(&out.NewLeads7d).Error; err != nil {
		return nil, err
	}
	if err := appts().Where("created_at >= ?", now.Add(-30*24*time.Hour)).Count(&out.AppointmentsThisMonth).Error; err != nil {
		return nil, err
	}
	if err := appts().
		Where("scheduled_at >= ? AND status = ?", now, appointmentdomain.StatusScheduled).
		Count(&out.UpcomingAppointments).Error; err != nil {
		return nil, err
	}
	if err := filter.Apply(s.db.WithContext(ctx).Model(&practicedomain.Practice{}), "id").
		Count(&out.TotalPractices).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) resolve(ctx context.Context, user *authdomain.User, req domain.RangeRequest) (tenant.Filter, time.Time, time.Time, error) {
	if err := s.policy.Can(user, access.ObjectAnalytics, access.ActionRead); err != nil {
		return tenant.Filter{}, time.Time{}, time.Time{}, err
	}
	filter, err := s.policy.ResolveVisibility(ctx, user, req.PracticeID)
	if err != nil {
		return tenant.Filter{}, time.Time{}, time.Time{}, err
	}

	to := s.clock.Now()
	if req.To != nil {
		to = req.To.UTC()
	}
	from := to.Add(-domain.DefaultRange)
	if req.From != nil {
		from = req.From.UTC()
	}
	if to.Before(from) {
		return tenant.Filter{}, time.Time{}, time.Time{}, domain.ErrInvalidDateRange
	}
	return filter, from, to, nil
}

func (s *Service) leadCountsByStatus(ctx context.Context, filter tenant.Filter, from, to time.Time) (map[leaddomain.Status]int64, error) {
	var rows []struct {
		Status leaddomain.Status
		N      int64
	}
	err := filter.Apply(s.db.WithContext(ctx).Model(&leaddomain.Lead{}), "practice_id").
		Select("status, COUNT(*) AS n").
		Where("created_at >= ? AND created_at <= ?", from, to).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[leaddomain.Status]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}

func (s *Service) interactionCounts(ctx context.Context, filter tenant.Filter, from, to time.Time) (map[interactiondomain.Type]int64, error) {
	var rows []struct {
		Type interactiondomain.Type
		N    int64
	}
	err := filter.Apply(s.db.WithContext(ctx).Model(&interactiondomain.Interaction{}), "practice_id").
		Select("type, COUNT(*) AS n").
		Where("created_at >= ? AND created_at <= ?", from, to).
		Group("type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[interactiondomain.Type]int64, len(rows))
	for _, r := range rows {
		out[r.Type] = r.N
	}
	return out, nil
}

// campaignSpend is lifetime spend; campaigns are not bucketed by date.
func (s *Service) campaignSpend(ctx context.Context, filter tenant.Filter) (float64, error) {
	var total float64
	err := filter.Apply(s.db.WithContext(ctx).Model(&practicedomain.Campaign{}), "practice_id").
		Select("COALESCE(SUM(spent), 0)").
		Scan(&total).Error
	return total, err
}

func (s *Service) convertedRevenue(ctx context.Context, filter tenant.Filter, from, to time.Time) (float64, error) {
	var total float64
	err := filter.Apply(s.db.WithContext(ctx).Model(&appointmentdomain.Appointment{}), "practice_id").
		Select("COALESCE(SUM(estimated_value), 0)").
		Where("converted = ? AND created_at >= ? AND created_at <= ?", true, from, to).
		Scan(&total).Error
	return total, err
}

func sum(counts map[leaddomain.Status]int64, statuses []leaddomain.Status) int64 {
	var n int64
	for _, st := range statuses {
		n += counts[st]
	}
	return n
}

func ratio(num float64, den int64) float64 {
	if den <= 0 {
		return 0
	}
	return num / float64(den)
}
