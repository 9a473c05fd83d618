package scheduler

import (
	"context"
	"time"

	"github.com/smallbiznis/clinicbilling/internal/escalation"
	obscontext "github.com/smallbiznis/clinicbilling/internal/observability/context"
	obslogger "github.com/smallbiznis/clinicbilling/internal/observability/logger"
	"github.com/smallbiznis/clinicbilling/internal/observability/metrics"
	"go.uber.org/zap"
)

// jobRun tracks a single scheduled job execution. Its logger already carries
// the job name and run id, and its context is tagged as the system actor.
type jobRun struct {
	job     string
	id      string
	started time.Time
	failed  int
	log     *zap.Logger
	metrics *metrics.BillingMetrics
}

func (s *Scheduler) beginRun(ctx context.Context, job string) (context.Context, *jobRun) {
	id := s.genID.Generate().String()
	ctx = obscontext.WithActor(ctx, obscontext.ActorTypeSystem, "scheduler")
	ctx = obscontext.WithRequestID(ctx, id)

	s.metrics.IncJobRun(job)
	return ctx, &jobRun{
		job:     job,
		id:      id,
		started: time.Now(),
		log:     obslogger.WithContext(ctx, s.log).With(zap.String("job", job), zap.String("run_id", id)),
		metrics: s.metrics,
	}
}

func (r *jobRun) skip(reason string) {
	r.metrics.IncJobSkipped(r.job)
	r.log.Info("scheduler.job.skipped", zap.String("reason", reason))
}

func (r *jobRun) fail(msg string, err error) {
	r.failed++
	r.metrics.IncJobError(r.job, err)
	r.log.Error(msg, zap.String("error_type", metrics.ClassifyJobReason(err)), zap.Error(err))
}

// finish logs the sweep summary. Per-invoice failures inside the sweep count
// toward error_count so a partially failed run is raised to WARN.
func (r *jobRun) finish(res escalation.Result) {
	failures := r.failed + res.Failed
	fields := []zap.Field{
		zap.String("escalation_run_id", res.RunID),
		zap.Int64("duration_ms", time.Since(r.started).Milliseconds()),
		zap.Int("processed_count", res.Evaluated),
		zap.Int("mutated_count", res.Mutated),
		zap.Int("marked_overdue_count", res.MarkedOverdue),
		zap.Int("error_count", failures),
	}
	if failures > 0 {
		r.log.Warn("scheduler.job.finish", fields...)
		return
	}
	r.log.Info("scheduler.job.finish", fields...)
}
