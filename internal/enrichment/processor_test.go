package enrichment

import (
	"context"
	"errors"
	"testing"
	"time"

	authdomain "github.com/smallbiznis/opensmile/internal/auth/domain"
	"github.com/smallbiznis/opensmile/internal/config"
	interactiondomain "github.com/smallbiznis/opensmile/internal/interaction/domain"
	leaddomain "github.com/smallbiznis/opensmile/internal/lead/domain"
	leadsvc "github.com/smallbiznis/opensmile/internal/lead/service"
	"github.com/smallbiznis/opensmile/internal/testkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type failingAnalyzer struct {
	calls int
}

func (f *failingAnalyzer) Analyze(context.Context, string) (Analysis, error) {
	f.calls++
	return Analysis{}, errors.New("model unavailable")
}

type processorEnv struct {
	*testkit.Env
	leads leaddomain.Service
	lead  *leaddomain.Lead
}

func newProcessorEnv(t *testing.T) *processorEnv {
	t.Helper()
	env := testkit.New(t)
	sales := env.User(t, authdomain.RoleSalesperson, 0)
	practice := env.Practice(t, "Bright Smiles", sales)

	leads := leadsvc.New(leadsvc.Params{
		DB:      env.DB,
		Log:     env.Log,
		Audit:   env.Audit,
		GenID:   env.Node,
		Clock:   env.Clock,
		Policy:  env.Policy,
		Gateway: env.Gateway,
	})
	lead, err := leads.Create(context.Background(), sales, leaddomain.CreateLeadRequest{
		PracticeID: practice.ID,
		Name:       "Robin Hart",
		Email:      "robin@example.com",
	})
	require.NoError(t, err)
	require.NoError(t, env.DB.Model(&leaddomain.Lead{}).Where("id = ?", lead.ID).
		Update("objections", datatypes.JSONSlice[string]{"too far to travel"}).Error)

	return &processorEnv{Env: env, leads: leads, lead: lead}
}

func (e *processorEnv) processor(analyzer Analyzer, maxAttempts int) *Processor {
	p := NewProcessor(ProcessorParams{
		DB:          e.DB,
		Config:      config.Config{EnrichmentMaxAttempts: maxAttempts},
		Log:         e.Log,
		Audit:       e.Audit,
		Clock:       e.Clock,
		Gateway:     e.Gateway,
		Leads:       e.leads,
		Analyzer:    analyzer,
		Transcriber: NewStubTranscriber(),
	})
	p.retry.InitialInterval = time.Millisecond
	p.retry.MaxInterval = 2 * time.Millisecond
	return p
}

func (e *processorEnv) interaction(t *testing.T, body string, recording *string) *interactiondomain.Interaction {
	t.Helper()
	in := &interactiondomain.Interaction{
		ID:               e.Node.Generate(),
		PracticeID:       e.lead.PracticeID,
		LeadID:           e.lead.ID,
		Type:             interactiondomain.TypeCallInbound,
		Direction:        interactiondomain.DirectionInbound,
		Body:             body,
		CallRecordingURL: recording,
		Metadata:         datatypes.JSONMap{},
		Topics:           datatypes.JSONSlice[string]{},
		Objections:       datatypes.JSONSlice[string]{},
		Motivations:      datatypes.JSONSlice[string]{},
		EnrichmentStatus: interactiondomain.EnrichmentPending,
		CreatedAt:        e.Clock.Now(),
	}
	require.NoError(t, e.DB.Create(in).Error)
	return in
}

func (e *processorEnv) reload(t *testing.T, in *interactiondomain.Interaction) *interactiondomain.Interaction {
	t.Helper()
	var got interactiondomain.Interaction
	require.NoError(t, e.DB.First(&got, "id = ?", in.ID).Error)
	return &got
}

func TestProcessTranscribesAndMergesLeadContext(t *testing.T) {
	env := newProcessorEnv(t)
	url := "https://recordings.example.com/call.mp3"
	in := env.interaction(t, "", &url)
	p := env.processor(NewStubAnalyzer(), 3)

	require.NoError(t, p.Handle(context.Background(), NewJob(in.ID, env.Clock.Now())))

	got := env.reload(t, in)
	assert.Equal(t, interactiondomain.EnrichmentCompleted, got.EnrichmentStatus)
	assert.Equal(t, 1, got.EnrichmentAttempts)
	require.NotNil(t, got.CallTranscript)
	assert.Contains(t, *got.CallTranscript, "Invisalign")
	require.NotNil(t, got.SentimentScore)
	assert.InDelta(t, 0.7, *got.SentimentScore, 1e-9)
	assert.Equal(t, []string{"pricing", "invisalign", "timeline"}, []string(got.Topics))
	assert.Equal(t, "Send pricing breakdown email", got.NextBestAction)
	require.NotNil(t, got.EnrichedAt)

	var lead leaddomain.Lead
	require.NoError(t, env.DB.First(&lead, "id = ?", env.lead.ID).Error)
	assert.Equal(t, []string{"too far to travel", "concerned about cost"}, []string(lead.Objections))
	assert.Equal(t, []string{"wedding in 6 months"}, []string(lead.Motivations))
}

func TestProcessIsIdempotentOnceCompleted(t *testing.T) {
	env := newProcessorEnv(t)
	in := env.interaction(t, "wants a quote", nil)
	p := env.processor(NewStubAnalyzer(), 3)

	require.NoError(t, p.Process(context.Background(), in.ID))
	require.NoError(t, p.Process(context.Background(), in.ID))

	got := env.reload(t, in)
	assert.Equal(t, 1, got.EnrichmentAttempts)

	var lead leaddomain.Lead
	require.NoError(t, env.DB.First(&lead, "id = ?", env.lead.ID).Error)
	assert.Len(t, lead.Objections, 2)
}

func TestHandleMarksFailedAfterRetries(t *testing.T) {
	env := newProcessorEnv(t)
	in := env.interaction(t, "call me back", nil)
	analyzer := &failingAnalyzer{}
	p := env.processor(analyzer, 2)

	err := p.Handle(context.Background(), NewJob(in.ID, env.Clock.Now()))
	require.Error(t, err)
	assert.Equal(t, 2, analyzer.calls)

	got := env.reload(t, in)
	assert.Equal(t, interactiondomain.EnrichmentFailed, got.EnrichmentStatus)
	assert.Equal(t, 2, got.EnrichmentAttempts)
	assert.Empty(t, got.AISummary)
}

func TestHandleStopsOnPermanentError(t *testing.T) {
	env := newProcessorEnv(t)
	in := env.interaction(t, "   ", nil)
	p := env.processor(NewStubAnalyzer(), 3)

	err := p.Handle(context.Background(), NewJob(in.ID, env.Clock.Now()))
	assert.ErrorIs(t, err, ErrNothingToAnalyze)
	assert.Equal(t, 1, env.reload(t, in).EnrichmentAttempts)

	err = p.Handle(context.Background(), NewJob(env.Node.Generate(), env.Clock.Now()))
	assert.ErrorIs(t, err, interactiondomain.ErrInteractionNotFound)
}

func TestMemoryQueue(t *testing.T) {
	q := NewMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	job := NewJob(42, testkit.Epoch)
	require.NoError(t, q.Publish(ctx, job))
	assert.Equal(t, 1, q.Len())

	handled := make(chan Job, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		q.Run(ctx, zap.NewNop(), func(_ context.Context, j Job) error {
			handled <- j
			return nil
		})
	}()

	select {
	case got := <-handled:
		assert.Equal(t, job.ID, got.ID)
	case <-time.After(time.Second):
		t.Fatal("job was not handled")
	}

	q.Close()
	<-done
	assert.ErrorIs(t, q.Publish(ctx, job), ErrQueueClosed)
}

func TestMemoryQueueFull(t *testing.T) {
	q := &MemoryQueue{jobs: make(chan Job, 1)}
	require.NoError(t, q.Publish(context.Background(), NewJob(1, testkit.Epoch)))
	assert.ErrorIs(t, q.Publish(context.Background(), NewJob(2, testkit.Epoch)), ErrQueueFull)
}

func TestDecodeJob(t *testing.T) {
	job, err := decodeJob([]byte(`{"id":"01J","interactionId":"77","enqueuedAt":"2026-03-02T09:00:00Z"}`))
	require.NoError(t, err)
	assert.EqualValues(t, 77, job.InteractionID)

	_, err = decodeJob([]byte(`{"id":"01J"}`))
	assert.ErrorIs(t, err, ErrInvalidJob)
	_, err = decodeJob([]byte(`not json`))
	assert.ErrorIs(t, err, ErrInvalidJob)
}

func TestRetentionClearsOldRecordings(t *testing.T) {
	env := newProcessorEnv(t)
	url := "https://recordings.example.com/old.mp3"
	old := env.interaction(t, "old call", &url)

	env.Clock.Advance(100 * 24 * time.Hour)
	fresh := env.interaction(t, "new call", &url)

	r := NewRetention(env.DB, env.Audit)
	n, err := r.Enforce(context.Background(), env.Clock.Now(), 90)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Nil(t, env.reload(t, old).CallRecordingURL)
	assert.NotNil(t, env.reload(t, fresh).CallRecordingURL)

	n, err = r.Enforce(context.Background(), env.Clock.Now(), 0)
	require.NoError(t, err)
	assert.Zero(t, n)
}
