package scheduler

import (
	"context"
	"time"

	obslogger "github.com/smallbiznis/opensmile/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/opensmile/internal/observability/metrics"
	"go.uber.org/zap"
)

// jobRun tallies one execution of a job. Jobs find it through their context.
type jobRun struct {
	job       string
	id        string
	started   time.Time
	log       *zap.Logger
	processed int
	failures  int
}

type jobRunKey struct{}

func (s *Scheduler) beginRun(ctx context.Context, job string, batchSize int) (context.Context, *jobRun) {
	run := &jobRun{
		job:     job,
		id:      s.genID.Generate().String(),
		started: s.clock.Now(),
	}
	run.log = obslogger.WithContext(ctx, s.log).With(
		zap.String("job", job),
		zap.String("run_id", run.id),
	)
	run.log.Info("scheduler.job.start", zap.Int("batch_size", batchSize))
	return context.WithValue(ctx, jobRunKey{}, run), run
}

func (s *Scheduler) endRun(run *jobRun) {
	fields := []zap.Field{
		zap.Int64("duration_ms", s.clock.Now().Sub(run.started).Milliseconds()),
		zap.Int("processed_count", run.processed),
		zap.Int("error_count", run.failures),
	}
	if run.failures > 0 {
		run.log.Warn("scheduler.job.finish", fields...)
		return
	}
	run.log.Info("scheduler.job.finish", fields...)
}

// currentRun returns the run carried by ctx, or a detached one so jobs can
// be invoked directly.
func (s *Scheduler) currentRun(ctx context.Context) *jobRun {
	if run, ok := ctx.Value(jobRunKey{}).(*jobRun); ok {
		return run
	}
	return &jobRun{log: obslogger.WithContext(ctx, s.log)}
}

// fail records a failure by error class. Driver messages can echo row
// values, so the raw string stays out of the log.
func (r *jobRun) fail(msg string, err error, fields ...zap.Field) {
	r.failures++
	r.log.Error(msg, append(fields, zap.String("reason", obsmetrics.ClassifySchedulerJobReason(err)))...)
}
