package scheduler

import (
	"context"
	"time"

	"sgjobs_backend/platform/logger"

	"github.com/go-co-op/gocron/v2"
)

// LocalRunner runs the payment sweep in-process when no Redis is configured.
type LocalRunner struct {
	sweep    SweepRunner
	interval time.Duration
	log      *logger.Logger
}

func NewLocalRunner(sweep SweepRunner, interval time.Duration, log *logger.Logger) *LocalRunner {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &LocalRunner{sweep: sweep, interval: interval, log: log}
}

// Run sweeps immediately and then on every interval until ctx is done. A
// pass still running when the next one is due delays it.
func (r *LocalRunner) Run(ctx context.Context) error {
	s, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return err
	}

	_, err = s.NewJob(
		gocron.DurationJob(r.interval),
		gocron.NewTask(func() {
			_ = RunSweep(ctx, r.sweep, nil, r.log)
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithName("payments.sweep"),
	)
	if err != nil {
		return err
	}

	r.log.Info("local payment sweep started", "interval", r.interval.String())
	s.Start()
	<-ctx.Done()
	return s.Shutdown()
}
