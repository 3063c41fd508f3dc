package scheduler

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	interactiondomain "github.com/smallbiznis/opensmile/internal/interaction/domain"
	obsmetrics "github.com/smallbiznis/opensmile/internal/observability/metrics"
	"github.com/smallbiznis/opensmile/internal/tenant"
	"go.uber.org/zap"
)

// DataRetentionJob clears call recording links older than the retention
// period.
func (s *Scheduler) DataRetentionJob(ctx context.Context) error {
	run := s.currentRun(ctx)
	cleared, err := s.retention.Enforce(ctx, s.clock.Now(), s.cfg.RetentionDays)
	if err != nil {
		run.fail("scheduler.retention.failed", err)
		return err
	}
	run.processed += int(cleared)
	obsmetrics.Scheduler().AddBatchProcessed(JobDataRetention, "interactions", int(cleared))
	return nil
}

// WebhookLedgerRepairJob reports webhook events that were claimed but never
// produced a lead. They are not replayed: the provider redelivers on its
// own schedule, and a replay would need the original signature.
func (s *Scheduler) WebhookLedgerRepairJob(ctx context.Context) error {
	run := s.currentRun(ctx)
	cutoff := s.clock.Now().Add(-s.cfg.RepairThreshold)
	events, err := s.webhooks.Unresolved(ctx, cutoff, s.cfg.BatchSize)
	if err != nil {
		run.fail("scheduler.webhook_repair.failed", err)
		return err
	}
	for _, event := range events {
		run.log.Warn("scheduler.webhook.unresolved",
			zap.String("event_id", event.EventID),
			zap.String("provider", event.Provider),
			zap.Time("processed_at", event.ProcessedAt),
		)
	}
	run.processed += len(events)
	obsmetrics.Scheduler().AddBatchProcessed(JobWebhookRepair, "webhook_events", len(events))
	if len(events) > 0 {
		s.audit.Log(ctx, "webhook:unresolved", map[string]any{"count": len(events)})
	}
	return nil
}

// EnrichmentRetryJob re-enqueues interactions still PENDING after the retry
// threshold, and fails the ones that have used up their attempts. It reads
// across every practice through the interaction store.
func (s *Scheduler) EnrichmentRetryJob(ctx context.Context) error {
	run := s.currentRun(ctx)
	cutoff := s.clock.Now().Add(-s.cfg.RetryThreshold)
	pending := tenant.Where("enrichment_status = ?", interactiondomain.EnrichmentPending)
	stale := tenant.Where("created_at < ?", cutoff)

	exhausted, _, err := s.interactions.FindVisible(ctx, tenant.Unrestricted(), tenant.Query{
		Conds: []tenant.Cond{pending, stale, tenant.Where("enrichment_attempts >= ?", s.cfg.MaxAttempts)},
		Order: "created_at ASC",
		Limit: s.cfg.BatchSize,
	})
	if err != nil {
		run.fail("scheduler.enrichment_retry.failed", err)
		return err
	}
	failed := 0
	for _, in := range exhausted {
		err := s.interactions.UpdateIf(ctx, tenant.System(in.PracticeID), in.ID,
			map[string]any{"enrichment_status": interactiondomain.EnrichmentFailed},
			pending,
		)
		switch {
		case errors.Is(err, tenant.ErrNotFound):
			// completed by a worker in the meantime
		case err != nil:
			run.fail("scheduler.enrichment_retry.failed", err)
			return err
		default:
			failed++
		}
	}
	if failed > 0 {
		s.audit.Log(ctx, "interaction:enrichment_failed", map[string]any{"count": failed})
	}

	retry, _, err := s.interactions.FindVisible(ctx, tenant.Unrestricted(), tenant.Query{
		Conds: []tenant.Cond{pending, stale, tenant.Where("enrichment_attempts < ?", s.cfg.MaxAttempts)},
		Order: "created_at ASC",
		Limit: s.cfg.BatchSize,
	})
	if err != nil {
		run.fail("scheduler.enrichment_retry.failed", err)
		return err
	}
	ids := make([]snowflake.ID, 0, len(retry))
	for _, in := range retry {
		ids = append(ids, in.ID)
	}

	var jobErr error
	enqueued := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return errors.Join(jobErr, err)
		}
		if err := s.enqueuer.Enqueue(ctx, id); err != nil {
			jobErr = errors.Join(jobErr, err)
			run.fail("scheduler.enrichment_retry.enqueue_failed", err,
				zap.String("interaction_id", id.String()),
			)
			continue
		}
		enqueued++
	}
	run.processed += enqueued
	obsmetrics.Scheduler().AddBatchProcessed(JobEnrichmentRetry, "interactions", enqueued)
	return jobErr
}
