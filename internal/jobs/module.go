// Package jobs provides the installation job module.
package jobs

import (
	apphttp "sgjobs_backend/internal/http"
	"sgjobs_backend/internal/jobs/handler"
	"sgjobs_backend/internal/jobs/repository"
	"sgjobs_backend/internal/jobs/service"
	"sgjobs_backend/platform/config"
	"sgjobs_backend/platform/httpkit"
	"sgjobs_backend/platform/logger"
	"sgjobs_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module represents the jobs domain module
type Module struct {
	handler    *handler.Handler
	Service    *service.Service
	repository *repository.Repository
}

// NewModule creates a new jobs module with all dependencies wired
func NewModule(pool *pgxpool.Pool, teams service.TeamReader, erp service.ERP, projector service.Projector, tokens service.Tokens, cfg config.JobsConfig, log *logger.Logger, val *validator.Validator) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, teams, erp, projector, tokens, cfg, log)
	h := handler.New(svc, val)

	return &Module{
		handler:    h,
		Service:    svc,
		repository: repo,
	}
}

// Repository exposes the job store for background processes.
func (m *Module) Repository() *repository.Repository {
	return m.repository
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "jobs"
}

// RegisterRoutes registers the module's routes under /api/v1/jobs
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterDispatcherRoutes(ctx.Dispatcher.Group("/jobs"))

	scoped := ctx.V1.Group("/jobs",
		httpkit.DispatcherOrInstaller(ctx.Config, m.Service),
		httpkit.RequireJobScope("id"),
	)
	m.handler.RegisterScopedRoutes(scoped)

	installer := ctx.V1.Group("/jobs",
		httpkit.InstallerRequired(m.Service),
		httpkit.RequireJobScope("id"),
	)
	m.handler.RegisterInstallerRoutes(installer)

	public := ctx.V1.Group("/jobs/by-token", ctx.MagicLinkLimiter.RateLimit())
	m.handler.RegisterPublicRoutes(public)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
