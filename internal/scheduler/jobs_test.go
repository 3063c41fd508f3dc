package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/opensmile/internal/enrichment"
	interactiondomain "github.com/smallbiznis/opensmile/internal/interaction/domain"
	leaddomain "github.com/smallbiznis/opensmile/internal/lead/domain"
	obsmetrics "github.com/smallbiznis/opensmile/internal/observability/metrics"
	"github.com/smallbiznis/opensmile/internal/ratelimit"
	"github.com/smallbiznis/opensmile/internal/testkit"
	webhookdomain "github.com/smallbiznis/opensmile/internal/webhook/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWebhooks struct {
	events []*webhookdomain.WebhookEvent
	cutoff time.Time
}

func (f *fakeWebhooks) Ingest(context.Context, webhookdomain.Delivery) (*webhookdomain.Result, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeWebhooks) Unresolved(_ context.Context, olderThan time.Time, _ int) ([]*webhookdomain.WebhookEvent, error) {
	f.cutoff = olderThan
	return f.events, nil
}

type recordingEnqueuer struct {
	mu  sync.Mutex
	ids []snowflake.ID
	err error
}

func (r *recordingEnqueuer) Enqueue(_ context.Context, id snowflake.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.ids = append(r.ids, id)
	return nil
}

type heldLocker struct{}

func (heldLocker) Claim(context.Context, string, time.Duration) (bool, error) { return false, nil }

type schedEnv struct {
	*testkit.Env
	sched    *Scheduler
	webhooks *fakeWebhooks
	enqueuer *recordingEnqueuer
	lead     *leaddomain.Lead
}

func newSchedEnv(t *testing.T, locker ratelimit.JobLocker) *schedEnv {
	t.Helper()
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	t.Cleanup(restore)
	obsmetrics.ResetSchedulerMetricsForTest()

	env := testkit.New(t)
	webhooks := &fakeWebhooks{}
	enqueuer := &recordingEnqueuer{}
	sched, err := New(Params{
		DB:        env.DB,
		Log:       env.Log,
		Audit:     env.Audit,
		GenID:     env.Node,
		Clock:     env.Clock,
		Locker:    locker,
		Retention: enrichment.NewRetention(env.DB, env.Audit),
		Webhooks:  webhooks,
		Enqueuer:  enqueuer,
		Config:    Config{RetentionDays: 30, MaxAttempts: 3},
	})
	require.NoError(t, err)

	practice := env.Practice(t, "Bright Smiles", nil)
	now := env.Clock.Now()
	lead := &leaddomain.Lead{
		ID:         env.Node.Generate(),
		PracticeID: practice.ID,
		Name:       "Pat Doe",
		Email:      "pat@example.com",
		Source:     leaddomain.SourceManualEntry,
		Status:     leaddomain.StatusNew,
		Urgency:    leaddomain.UrgencyMedium,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, env.DB.Create(lead).Error)

	return &schedEnv{Env: env, sched: sched, webhooks: webhooks, enqueuer: enqueuer, lead: lead}
}

func (e *schedEnv) interaction(t *testing.T, createdAt time.Time, status interactiondomain.EnrichmentStatus, attempts int, recording *string) *interactiondomain.Interaction {
	t.Helper()
	return e.interactionFor(t, e.lead, createdAt, status, attempts, recording)
}

func (e *schedEnv) interactionFor(t *testing.T, lead *leaddomain.Lead, createdAt time.Time, status interactiondomain.EnrichmentStatus, attempts int, recording *string) *interactiondomain.Interaction {
	t.Helper()
	i := &interactiondomain.Interaction{
		ID:                 e.Node.Generate(),
		PracticeID:         lead.PracticeID,
		LeadID:             lead.ID,
		Type:               interactiondomain.TypeCallOutbound,
		Direction:          interactiondomain.DirectionOutbound,
		Body:               "called about veneers",
		CallRecordingURL:   recording,
		EnrichmentStatus:   status,
		EnrichmentAttempts: attempts,
		CreatedAt:          createdAt,
	}
	require.NoError(t, e.DB.Create(i).Error)
	return i
}

func (e *schedEnv) reload(t *testing.T, id snowflake.ID) *interactiondomain.Interaction {
	t.Helper()
	var i interactiondomain.Interaction
	require.NoError(t, e.DB.First(&i, "id = ?", id).Error)
	return &i
}

func strPtr(s string) *string { return &s }

func TestDataRetentionJobClearsOldRecordings(t *testing.T) {
	env := newSchedEnv(t, ratelimit.LocalLocker{})
	now := env.Clock.Now()

	old := env.interaction(t, now.AddDate(0, 0, -31), interactiondomain.EnrichmentCompleted, 1, strPtr("https://rec.example/old"))
	fresh := env.interaction(t, now.AddDate(0, 0, -5), interactiondomain.EnrichmentCompleted, 1, strPtr("https://rec.example/new"))

	require.NoError(t, env.sched.DataRetentionJob(context.Background()))

	assert.Nil(t, env.reload(t, old.ID).CallRecordingURL)
	got := env.reload(t, fresh.ID).CallRecordingURL
	require.NotNil(t, got)
	assert.Equal(t, "https://rec.example/new", *got)
}

func TestEnrichmentRetryJobRequeuesStalePending(t *testing.T) {
	env := newSchedEnv(t, ratelimit.LocalLocker{})
	now := env.Clock.Now()

	stale := env.interaction(t, now.Add(-time.Hour), interactiondomain.EnrichmentPending, 1, nil)
	recent := env.interaction(t, now.Add(-time.Minute), interactiondomain.EnrichmentPending, 0, nil)
	exhausted := env.interaction(t, now.Add(-time.Hour), interactiondomain.EnrichmentPending, 3, nil)
	done := env.interaction(t, now.Add(-time.Hour), interactiondomain.EnrichmentCompleted, 1, nil)

	require.NoError(t, env.sched.EnrichmentRetryJob(context.Background()))

	assert.Equal(t, []snowflake.ID{stale.ID}, env.enqueuer.ids)
	assert.Equal(t, interactiondomain.EnrichmentFailed, env.reload(t, exhausted.ID).EnrichmentStatus)
	assert.Equal(t, interactiondomain.EnrichmentPending, env.reload(t, recent.ID).EnrichmentStatus)
	assert.Equal(t, interactiondomain.EnrichmentCompleted, env.reload(t, done.ID).EnrichmentStatus)
}

func TestEnrichmentRetryJobSpansPractices(t *testing.T) {
	env := newSchedEnv(t, ratelimit.LocalLocker{})
	now := env.Clock.Now()

	other := env.Practice(t, "Other Dental", nil)
	otherLead := &leaddomain.Lead{
		ID:         env.Node.Generate(),
		PracticeID: other.ID,
		Name:       "Sam Roe",
		Email:      "sam@example.com",
		Source:     leaddomain.SourceManualEntry,
		Status:     leaddomain.StatusNew,
		Urgency:    leaddomain.UrgencyMedium,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, env.DB.Create(otherLead).Error)

	here := env.interaction(t, now.Add(-2*time.Hour), interactiondomain.EnrichmentPending, 0, nil)
	there := env.interactionFor(t, otherLead, now.Add(-time.Hour), interactiondomain.EnrichmentPending, 2, nil)
	spent := env.interactionFor(t, otherLead, now.Add(-time.Hour), interactiondomain.EnrichmentPending, 3, nil)

	require.NoError(t, env.sched.EnrichmentRetryJob(context.Background()))

	assert.Equal(t, []snowflake.ID{here.ID, there.ID}, env.enqueuer.ids)
	failed := env.reload(t, spent.ID)
	assert.Equal(t, interactiondomain.EnrichmentFailed, failed.EnrichmentStatus)
	assert.Equal(t, other.ID, failed.PracticeID)
}

func TestEnrichmentRetryJobJoinsEnqueueErrors(t *testing.T) {
	env := newSchedEnv(t, ratelimit.LocalLocker{})
	env.enqueuer.err = enrichment.ErrQueueFull
	env.interaction(t, env.Clock.Now().Add(-time.Hour), interactiondomain.EnrichmentPending, 0, nil)

	err := env.sched.EnrichmentRetryJob(context.Background())
	assert.ErrorIs(t, err, enrichment.ErrQueueFull)
}

func TestWebhookLedgerRepairUsesThreshold(t *testing.T) {
	env := newSchedEnv(t, ratelimit.LocalLocker{})
	env.webhooks.events = []*webhookdomain.WebhookEvent{
		{EventID: "meta:1", Provider: webhookdomain.ProviderMeta, ProcessedAt: env.Clock.Now().Add(-time.Hour)},
	}

	require.NoError(t, env.sched.WebhookLedgerRepairJob(context.Background()))
	assert.Equal(t, env.Clock.Now().Add(-5*time.Minute), env.webhooks.cutoff)
}

func TestRunOnceHonoursJobInterval(t *testing.T) {
	env := newSchedEnv(t, ratelimit.LocalLocker{})
	env.sched.cfg.EnabledJobs = []string{JobEnrichmentRetry}
	env.interaction(t, env.Clock.Now().Add(-time.Hour), interactiondomain.EnrichmentPending, 0, nil)

	require.NoError(t, env.sched.RunOnce(context.Background()))
	require.NoError(t, env.sched.RunOnce(context.Background()))
	assert.Len(t, env.enqueuer.ids, 1)

	env.Clock.Advance(env.sched.cfg.RetryEvery)
	require.NoError(t, env.sched.RunOnce(context.Background()))
	assert.Len(t, env.enqueuer.ids, 2)
}

func TestRunOnceSkipsWhenLockHeldElsewhere(t *testing.T) {
	env := newSchedEnv(t, heldLocker{})
	env.interaction(t, env.Clock.Now().Add(-time.Hour), interactiondomain.EnrichmentPending, 0, nil)

	require.NoError(t, env.sched.RunOnce(context.Background()))
	assert.Empty(t, env.enqueuer.ids)
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	_, err := New(Params{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
