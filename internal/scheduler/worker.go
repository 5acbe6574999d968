package scheduler

import (
	"context"
	"fmt"
	"time"

	"sgjobs_backend/internal/payments"
	"sgjobs_backend/platform/apperr"
	"sgjobs_backend/platform/config"
	"sgjobs_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// SweepRunner performs one payment reconciliation pass.
type SweepRunner interface {
	Run(ctx context.Context) (payments.Result, error)
}

// Reprojector writes a job's current state to its calendar.
type Reprojector interface {
	Reproject(ctx context.Context, jobID int64) (string, error)
}

type Worker struct {
	server      *asynq.Server
	mux         *asynq.ServeMux
	sweep       SweepRunner
	reprojector Reprojector
	guard       *SweepGuard
	log         *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, sweep SweepRunner, reprojector Reprojector, guard *SweepGuard, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
		RetryDelayFunc: reprojectRetryDelay,
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:      server,
		mux:         mux,
		sweep:       sweep,
		reprojector: reprojector,
		guard:       guard,
		log:         log,
	}

	mux.HandleFunc(TaskPaymentSweep, w.handlePaymentSweep)
	mux.HandleFunc(TaskReprojectJob, w.handleReprojectJob)

	return w, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handlePaymentSweep(ctx context.Context, _ *asynq.Task) error {
	return RunSweep(ctx, w.sweep, w.guard, w.log)
}

func (w *Worker) handleReprojectJob(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseReprojectJobPayload(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	uid, err := w.reprojector.Reproject(ctx, payload.JobID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	w.log.Info("job re-projected", "job_id", payload.JobID, "caldav_event_uid", uid)
	return nil
}

// RunSweep runs one sweep under the guard's lock and records the finish
// time. A sweep already running elsewhere is skipped. guard may be nil.
func RunSweep(ctx context.Context, sweep SweepRunner, guard *SweepGuard, log *logger.Logger) error {
	if guard != nil {
		release, err := guard.Acquire(ctx)
		if err != nil {
			return err
		}
		if release == nil {
			log.Info("payment sweep already running, skipping")
			return nil
		}
		defer release(context.WithoutCancel(ctx))
	}

	if _, err := sweep.Run(ctx); err != nil {
		log.Error("payment sweep failed", "error", err)
		return err
	}

	if guard != nil {
		if err := guard.MarkRun(ctx, time.Now()); err != nil {
			log.Warn("failed to record payment sweep run", "error", err)
		}
	}
	return nil
}

// reprojectRetryDelay backs off quadratically from one minute, capped at an hour.
func reprojectRetryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	delay := time.Duration((n+1)*(n+1)) * time.Minute
	if delay > time.Hour {
		return time.Hour
	}
	return delay
}
