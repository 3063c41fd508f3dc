package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opensmile/internal/audit/redact"
	"github.com/smallbiznis/opensmile/internal/clock"
	"github.com/smallbiznis/opensmile/internal/enrichment"
	interactiondomain "github.com/smallbiznis/opensmile/internal/interaction/domain"
	obscontext "github.com/smallbiznis/opensmile/internal/observability/context"
	obsmetrics "github.com/smallbiznis/opensmile/internal/observability/metrics"
	"github.com/smallbiznis/opensmile/internal/ratelimit"
	"github.com/smallbiznis/opensmile/internal/tenant"
	webhookdomain "github.com/smallbiznis/opensmile/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const lockPrefix = "opensmile:scheduler:"

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Audit     *redact.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Locker    ratelimit.JobLocker
	Retention *enrichment.Retention
	Webhooks  webhookdomain.Service
	Enqueuer  interactiondomain.Enqueuer
	Config    Config `optional:"true"`
}

// Scheduler runs the maintenance jobs: recording retention, webhook ledger
// repair and enrichment re-delivery. Each job runs at most once per its
// interval across every process sharing the lock backend.
type Scheduler struct {
	interactions *tenant.Store[interactiondomain.Interaction, *interactiondomain.Interaction]
	log          *zap.Logger
	audit        *redact.Logger
	cfg          Config
	genID        *snowflake.Node
	clock        clock.Clock
	locker       ratelimit.JobLocker
	retention    *enrichment.Retention
	webhooks     webhookdomain.Service
	enqueuer     interactiondomain.Enqueuer

	mu      sync.Mutex
	lastRun map[string]time.Time
}

type job struct {
	name      string
	every     time.Duration
	batchSize int
	timeout   time.Duration
	run       func(context.Context) error
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil || p.Locker == nil || p.Retention == nil || p.Webhooks == nil || p.Enqueuer == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		interactions: tenant.NewStore[interactiondomain.Interaction](p.DB),
		log:          p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		audit:        p.Audit,
		cfg:          p.Config.withDefaults(),
		genID:        p.GenID,
		clock:        p.Clock,
		locker:       p.Locker,
		retention:    p.Retention,
		webhooks:     p.Webhooks,
		enqueuer:     p.Enqueuer,
		lastRun:      make(map[string]time.Time),
	}, nil
}

func (s *Scheduler) jobs() []job {
	return []job{
		{JobDataRetention, s.cfg.RetentionEvery, 0, 5 * time.Minute, s.DataRetentionJob},
		{JobWebhookRepair, s.cfg.RepairEvery, s.cfg.BatchSize, 30 * time.Second, s.WebhookLedgerRepairJob},
		{JobEnrichmentRetry, s.cfg.RetryEvery, s.cfg.BatchSize, 30 * time.Second, s.EnrichmentRetryJob},
	}
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx = obscontext.WithActor(ctx, obscontext.ActorSystem, "scheduler")
	ctx, run := s.beginRun(ctx, name, batchSize)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if err != nil && run.failures == 0 {
		run.failures++
	}
	s.endRun(run)
	if err == nil {
		return nil
	}

	// deadline is a soft timeout; the next tick picks up the rest
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
		run.log.Warn("scheduler.job.timeout", zap.Duration("timeout", timeout))
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce runs every enabled job whose interval has elapsed.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error
	for _, j := range s.jobs() {
		if !s.isJobEnabled(j.name) || !s.due(parent, j) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, j.name, j.batchSize, j.timeout, j.run))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := s.clock.Now().Sub(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// due reports whether the job should run now. The lock is taken for the
// job's whole interval and never released, so it doubles as the fleet-wide
// "last ran" marker.
func (s *Scheduler) due(ctx context.Context, j job) bool {
	now := s.clock.Now()
	s.mu.Lock()
	last, seen := s.lastRun[j.name]
	s.mu.Unlock()
	if seen && now.Sub(last) < j.every {
		return false
	}

	ok, err := s.locker.Claim(ctx, lockPrefix+j.name, j.every)
	if err != nil {
		s.log.Warn("scheduler lock unavailable", zap.String("job", j.name), zap.Error(err))
		return false
	}
	if !ok {
		obsmetrics.Scheduler().IncBatchDeferred(j.name, obsmetrics.SchedulerBatchDeferredReasonLockHeld)
		return false
	}

	s.mu.Lock()
	s.lastRun[j.name] = now
	s.mu.Unlock()
	return true
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}
