// Package scheduler runs the daily escalation sweep.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/robfig/cron/v3"
	"github.com/smallbiznis/clinicbilling/internal/clock"
	"github.com/smallbiznis/clinicbilling/internal/escalation"
	"github.com/smallbiznis/clinicbilling/internal/lock"
	"github.com/smallbiznis/clinicbilling/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const JobEscalation = "escalation.apply_rules"

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log     *zap.Logger
	Engine  escalation.Service
	Locker  *lock.Locker            `optional:"true"`
	Metrics *metrics.BillingMetrics `optional:"true"`
	GenID   *snowflake.Node
	Clock   clock.Clock
	Config  Config
}

type Scheduler struct {
	log     *zap.Logger
	cfg     Config
	genID   *snowflake.Node
	clock   clock.Clock
	engine  escalation.Service
	locker  *lock.Locker
	metrics *metrics.BillingMetrics
	cron    *cron.Cron
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Engine == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()
	log := p.Log.Named("scheduler").With(zap.String("component", "scheduler"))

	cronLogger := cron.PrintfLogger(zap.NewStdLog(log))
	return &Scheduler{
		log:     log,
		cfg:     cfg,
		genID:   p.GenID,
		clock:   p.Clock,
		engine:  p.Engine,
		locker:  p.Locker,
		metrics: p.Metrics,
		cron:    cron.New(cron.WithLocation(cfg.Location), cron.WithChain(cron.Recover(cronLogger))),
	}, nil
}

// Start registers the escalation job and starts the cron loop.
func (s *Scheduler) Start() error {
	if !s.cfg.Enabled() {
		s.log.Info("escalation schedule disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		_ = s.RunEscalation(context.Background())
	}); err != nil {
		return fmt.Errorf("schedule %s: %w", JobEscalation, err)
	}
	s.cron.Start()
	s.log.Info("scheduled escalation job",
		zap.String("schedule", s.cfg.Schedule),
		zap.String("timezone", s.cfg.Location.String()),
	)
	return nil
}

// Stop halts scheduling and returns a context done when running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// RunEscalation performs one scheduled sweep. When a Redis locker is
// configured the sweep completes at most once per billing day across replicas:
// a successful run keeps the day's key until the day ends, a failed run
// releases it so the job can be retried.
func (s *Scheduler) RunEscalation(parent context.Context) error {
	ctx, cancel := context.WithTimeout(parent, s.cfg.Timeout)
	defer cancel()

	ctx, run := s.beginRun(ctx, JobEscalation)

	var key, token string
	if s.locker != nil {
		key = "escalation:" + clock.Date(s.clock.Now(), s.cfg.Location).Format("2006-01-02")
		var (
			ok  bool
			err error
		)
		token, ok, err = s.locker.TryLock(ctx, key, s.cfg.LockTTL)
		if err != nil {
			run.fail("scheduler.lock.failed", err)
			return err
		}
		if !ok {
			run.skip("lock_held")
			return nil
		}
	}

	run.log.Info("scheduler.job.start")
	res, err := s.engine.ApplyRules(ctx, escalation.Scope{Trigger: escalation.TriggerScheduled})
	if err != nil {
		run.fail("scheduler.job.failed", err)
	}
	if s.locker != nil {
		s.settleLock(context.WithoutCancel(ctx), run, key, token, err == nil)
	}
	run.finish(res)
	return err
}

// settleLock holds the day's key until the billing day ends after a
// successful sweep and drops it otherwise.
func (s *Scheduler) settleLock(ctx context.Context, run *jobRun, key, token string, done bool) {
	if !done {
		if err := s.locker.Release(ctx, key, token); err != nil {
			run.log.Warn("scheduler.lock.release_failed", zap.String("key", key), zap.Error(err))
		}
		return
	}
	ttl := s.untilDayEnds()
	if ttl < s.cfg.LockTTL {
		ttl = s.cfg.LockTTL
	}
	held, err := s.locker.Extend(ctx, key, token, ttl)
	switch {
	case err != nil:
		run.log.Warn("scheduler.lock.extend_failed", zap.String("key", key), zap.Error(err))
	case !held:
		run.log.Warn("scheduler.lock.lost", zap.String("key", key))
	}
}

func (s *Scheduler) untilDayEnds() time.Duration {
	now := s.clock.Now().In(s.cfg.Location)
	y, m, d := now.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, s.cfg.Location).Sub(now)
}
