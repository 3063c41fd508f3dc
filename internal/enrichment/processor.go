package enrichment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v5"
	"github.com/smallbiznis/opensmile/internal/audit/redact"
	"github.com/smallbiznis/opensmile/internal/clock"
	"github.com/smallbiznis/opensmile/internal/config"
	interactiondomain "github.com/smallbiznis/opensmile/internal/interaction/domain"
	leaddomain "github.com/smallbiznis/opensmile/internal/lead/domain"
	obsmetrics "github.com/smallbiznis/opensmile/internal/observability/metrics"
	"github.com/smallbiznis/opensmile/internal/tenant"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultMaxAttempts     = 3
	defaultInitialInterval = 500 * time.Millisecond
	defaultMaxInterval     = 10 * time.Second
)

// RetryPolicy bounds how hard one job is retried before it is dead-lettered.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     defaultMaxAttempts,
		InitialInterval: defaultInitialInterval,
		MaxInterval:     defaultMaxInterval,
	}
}

type ProcessorParams struct {
	fx.In

	DB          *gorm.DB
	Config      config.Config
	Log         *zap.Logger
	Audit       *redact.Logger
	Clock       clock.Clock
	Gateway     *tenant.Gateway
	Leads       leaddomain.Service
	Analyzer    Analyzer
	Transcriber Transcriber
	Metrics     *obsmetrics.Metrics `optional:"true"`
}

// Processor runs the post-processing job for one interaction. It only ever
// writes transcript and AI fields, never the interaction's core fields.
type Processor struct {
	log          *zap.Logger
	audit        *redact.Logger
	clock        clock.Clock
	gateway      *tenant.Gateway
	leads        leaddomain.Service
	analyzer     Analyzer
	transcriber  Transcriber
	metrics      *obsmetrics.Metrics
	retry        RetryPolicy
	interactions *tenant.Store[interactiondomain.Interaction, *interactiondomain.Interaction]
}

func NewProcessor(p ProcessorParams) *Processor {
	retry := DefaultRetryPolicy()
	if p.Config.EnrichmentMaxAttempts > 0 {
		retry.MaxAttempts = p.Config.EnrichmentMaxAttempts
	}
	return &Processor{
		log:          p.Log.Named("enrichment.processor"),
		audit:        p.Audit,
		clock:        p.Clock,
		gateway:      p.Gateway,
		leads:        p.Leads,
		analyzer:     p.Analyzer,
		transcriber:  p.Transcriber,
		metrics:      p.Metrics,
		retry:        retry,
		interactions: tenant.NewStore[interactiondomain.Interaction](p.DB),
	}
}

func (p *Processor) MaxAttempts() int { return p.retry.MaxAttempts }

// Handle retries Process with exponential backoff. When the budget is spent
// the interaction is marked FAILED and the error is returned so the caller
// dead-letters the message.
func (p *Processor) Handle(ctx context.Context, job Job) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.retry.InitialInterval
	b.MaxInterval = p.retry.MaxInterval

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := p.Process(ctx, job.InteractionID)
		if err != nil && isPermanent(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(p.retry.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			p.metrics.RecordEnrichment(ctx, "retry")
			p.log.Info("enrichment attempt failed, retrying",
				zap.String("job_id", job.ID),
				zap.Int("attempt", attempt),
				zap.Duration("next", next),
			)
		}),
	)
	if err == nil {
		p.metrics.RecordEnrichment(ctx, "completed")
		return nil
	}
	if ctx.Err() != nil {
		// shutting down; the job stays PENDING for redelivery
		return ctx.Err()
	}

	p.metrics.RecordEnrichment(ctx, "failed")
	p.audit.Error(ctx, "interaction:enrichment_failed", err, map[string]any{
		"interactionId": job.InteractionID.String(),
		"attempt":       attempt,
	})
	if markErr := p.markFailed(context.WithoutCancel(ctx), job.InteractionID); markErr != nil {
		p.log.Warn("mark enrichment failed", zap.String("interaction_id", job.InteractionID.String()), zap.Error(markErr))
	}
	return err
}

// Process enriches one interaction. Redelivery of a completed interaction is
// a no-op.
func (p *Processor) Process(ctx context.Context, interactionID snowflake.ID) error {
	practiceID, err := p.interactions.PracticeOf(ctx, interactionID)
	if errors.Is(err, tenant.ErrNotFound) {
		return interactiondomain.ErrInteractionNotFound
	}
	if err != nil {
		return err
	}
	scope := tenant.System(practiceID)

	in, err := p.interactions.FindByID(ctx, scope, interactionID)
	if err != nil {
		return err
	}
	if in.EnrichmentStatus == interactiondomain.EnrichmentCompleted {
		return nil
	}

	if err := p.interactions.Update(ctx, scope, in.ID, map[string]any{
		"enrichment_attempts": in.EnrichmentAttempts + 1,
	}); err != nil {
		return err
	}

	transcript := ""
	if in.CallTranscript != nil {
		transcript = *in.CallTranscript
	}
	if in.CallRecordingURL != nil && in.CallTranscript == nil {
		transcript, err = p.transcriber.Transcribe(ctx, *in.CallRecordingURL)
		if err != nil {
			return fmt.Errorf("transcribe: %w", err)
		}
		if err := p.interactions.Update(ctx, scope, in.ID, map[string]any{"call_transcript": transcript}); err != nil {
			return err
		}
	}

	text := transcript
	if strings.TrimSpace(text) == "" {
		text = in.Body
	}
	if strings.TrimSpace(text) == "" {
		return ErrNothingToAnalyze
	}

	analysis, err := p.analyzer.Analyze(ctx, text)
	if err != nil {
		return fmt.Errorf("analyze: %w", err)
	}

	now := p.clock.Now()
	sentiment := analysis.Sentiment
	err = p.gateway.InTx(ctx, scope, func(tx *gorm.DB) error {
		if err := p.interactions.WithTx(tx).Update(ctx, scope, in.ID, map[string]any{
			"ai_summary":        analysis.Summary,
			"sentiment_score":   sentiment,
			"topics":            datatypes.JSONSlice[string](nonNil(analysis.Topics)),
			"objections":        datatypes.JSONSlice[string](nonNil(analysis.Objections)),
			"motivations":       datatypes.JSONSlice[string](nonNil(analysis.Motivations)),
			"next_best_action":  analysis.NextBestAction,
			"enrichment_status": interactiondomain.EnrichmentCompleted,
			"enriched_at":       now,
		}); err != nil {
			return err
		}
		return p.leads.MergeContext(ctx, tx, scope, in.LeadID, analysis.Objections, analysis.Motivations)
	})
	if err != nil {
		return fmt.Errorf("store enrichment: %w", err)
	}

	p.audit.Log(ctx, "interaction:enriched", map[string]any{
		"interactionId": in.ID.String(),
		"leadId":        in.LeadID.String(),
		"practiceId":    practiceID.String(),
	})
	return nil
}

func (p *Processor) markFailed(ctx context.Context, interactionID snowflake.ID) error {
	practiceID, err := p.interactions.PracticeOf(ctx, interactionID)
	if errors.Is(err, tenant.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	err = p.interactions.UpdateIf(ctx, tenant.System(practiceID), interactionID,
		map[string]any{"enrichment_status": interactiondomain.EnrichmentFailed},
		tenant.Where("enrichment_status = ?", interactiondomain.EnrichmentPending),
	)
	if errors.Is(err, tenant.ErrNotFound) {
		return nil
	}
	return err
}

func isPermanent(err error) bool {
	return errors.Is(err, interactiondomain.ErrInteractionNotFound) ||
		errors.Is(err, ErrNothingToAnalyze) ||
		errors.Is(err, ErrEmptyText) ||
		errors.Is(err, ErrInvalidJob)
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
