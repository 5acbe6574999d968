package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sgjobs_backend/internal/adapters/storage"
	"sgjobs_backend/internal/bootstrap"
	"sgjobs_backend/internal/health"
	apphttp "sgjobs_backend/internal/http"
	"sgjobs_backend/internal/http/router"
	"sgjobs_backend/internal/scheduler"
	"sgjobs_backend/platform/logger"
	"sgjobs_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	rt, err := bootstrap.Start(ctx, true)
	if err != nil {
		panic("failed to start: " + err.Error())
	}
	defer rt.Close()

	cfg, log := rt.Config, rt.Log
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Shared validator instance for dependency injection
	val := validator.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	svc, err := bootstrap.Wire(rt, val)
	if err != nil {
		log.Error("failed to wire job services", "error", err)
		panic("failed to wire job services: " + err.Error())
	}

	synced, err := svc.Teams.Service.Sync(ctx, cfg.GetTeams())
	if err != nil {
		log.Error("failed to sync teams", "error", err)
		panic("failed to sync teams: " + err.Error())
	}
	log.Info("teams synced", "upserted", synced.Upserted, "skipped", synced.Skipped)

	var sweepClock health.SweepClock
	if cfg.GetRedisURL() != "" {
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
		sweepClock = scheduler.NewSweepGuard(rdb, cfg.GetSweepInterval())
	} else {
		log.Warn("REDIS_URL not configured; calendar retries disabled and sweep freshness unknown")
	}

	initUploads(ctx, rt, svc, log)

	healthSvc := health.New(cfg, svc.Gateway, svc.Calendar, sweepClock, svc.Jobs.Repository(), log)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config: cfg,
		Logger: log,
		Health: rt.Pool,
		Modules: []apphttp.Module{
			svc.Jobs,
			svc.Teams,
			health.NewModule(healthSvc),
		},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		panic("server error: " + err.Error())
	}
}

// initUploads enables installer photo uploads when MinIO is configured.
func initUploads(ctx context.Context, rt *bootstrap.Runtime, svc *bootstrap.Services, log *logger.Logger) {
	cfg := rt.Config
	if !cfg.IsMinIOEnabled() {
		log.Warn("MINIO_ENDPOINT not configured; installer uploads disabled")
		return
	}

	storageSvc, err := storage.NewMinIOService(cfg)
	if err != nil {
		log.Error("failed to initialize storage service", "error", err)
		panic("failed to initialize storage service: " + err.Error())
	}

	bucket := cfg.GetMinioBucketJobUploads()
	if err := bootstrap.WithRetry(ctx, log, "ensure job uploads bucket", 5, 2*time.Second, func() error {
		return storageSvc.EnsureBucketExists(ctx, bucket)
	}); err != nil {
		log.Error("failed to ensure storage bucket exists", "error", err, "bucket", bucket)
		panic("failed to ensure storage bucket exists: " + err.Error())
	}

	svc.Jobs.Service.SetUploads(storageSvc, bucket)
	log.Info("storage service initialized", "jobUploadsBucket", bucket)
}
