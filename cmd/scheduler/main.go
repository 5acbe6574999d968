package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"sgjobs_backend/internal/bootstrap"
	"sgjobs_backend/internal/scheduler"
	"sgjobs_backend/platform/validator"

	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.Start(ctx, false)
	if err != nil {
		panic("failed to start: " + err.Error())
	}
	defer rt.Close()

	cfg, log := rt.Config, rt.Log
	log.Info("starting scheduler", "env", cfg.Env, "sweepInterval", cfg.GetSweepInterval().String())

	svc, err := bootstrap.Wire(rt, validator.New())
	if err != nil {
		log.Error("failed to wire job services", "error", err)
		panic("failed to wire job services: " + err.Error())
	}

	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; running payment sweep in-process without calendar retries")
		if err := scheduler.NewLocalRunner(svc.Sweep, cfg.GetSweepInterval(), log).Run(ctx); err != nil {
			log.Error("local sweep runner stopped", "error", err)
			panic("local sweep runner stopped: " + err.Error())
		}
		return
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		panic("failed to initialize scheduler client: " + err.Error())
	}
	defer func() { _ = client.Close() }()
	svc.Jobs.Service.SetRetrier(client)

	rdb, err := scheduler.NewRedisClient(cfg)
	if err != nil {
		log.Error("failed to initialize redis client", "error", err)
		panic("failed to initialize redis client: " + err.Error())
	}
	defer func() { _ = rdb.Close() }()
	guard := scheduler.NewSweepGuard(rdb, cfg.GetSweepInterval())

	worker, err := scheduler.NewWorker(cfg, svc.Sweep, svc.Jobs.Service, guard, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	periodic, err := scheduler.NewPeriodic(cfg, log)
	if err != nil {
		log.Error("failed to initialize periodic scheduler", "error", err)
		panic("failed to initialize periodic scheduler: " + err.Error())
	}

	var g errgroup.Group
	g.Go(func() error {
		worker.Run(ctx)
		return nil
	})
	g.Go(func() error {
		periodic.Run(ctx)
		return nil
	})
	_ = g.Wait()
	log.Info("scheduler stopped")
}
