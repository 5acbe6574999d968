package scheduler

import (
	"context"
	"fmt"
	"time"

	"sgjobs_backend/platform/config"
	"sgjobs_backend/platform/logger"

	"github.com/hibiken/asynq"
)

const defaultSweepInterval = 15 * time.Minute

// Periodic enqueues the payment sweep on a fixed interval.
type Periodic struct {
	scheduler *asynq.Scheduler
	log       *logger.Logger
}

func NewPeriodic(cfg config.SchedulerConfig, log *logger.Logger) (*Periodic, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{Location: time.UTC})
	spec := SweepCronSpec(cfg.GetSweepInterval())
	if _, err := scheduler.Register(spec, NewPaymentSweepTask(), asynq.Queue(queueName(cfg)), asynq.MaxRetry(0)); err != nil {
		return nil, fmt.Errorf("register payment sweep: %w", err)
	}
	log.Info("payment sweep scheduled", "spec", spec)

	return &Periodic{scheduler: scheduler, log: log}, nil
}

// SweepCronSpec is the asynq schedule for the given interval.
func SweepCronSpec(interval time.Duration) string {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return "@every " + interval.String()
}

func (p *Periodic) Run(ctx context.Context) {
	if p == nil || p.scheduler == nil {
		return
	}

	if err := p.scheduler.Start(); err != nil {
		p.log.Error("periodic scheduler stopped", "error", err)
		return
	}
	<-ctx.Done()
	p.scheduler.Shutdown()
}
