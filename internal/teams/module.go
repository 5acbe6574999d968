// Package teams provides the installer teams module.
package teams

import (
	apphttp "sgjobs_backend/internal/http"
	"sgjobs_backend/internal/teams/handler"
	"sgjobs_backend/internal/teams/repository"
	"sgjobs_backend/internal/teams/service"
	"sgjobs_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module represents the teams domain module
type Module struct {
	handler *handler.Handler
	Service *service.Service
}

// NewModule creates a new teams module with all dependencies wired
func NewModule(pool *pgxpool.Pool, log *logger.Logger) *Module {
	svc := service.New(repository.New(pool), log)
	return &Module{
		handler: handler.New(svc),
		Service: svc,
	}
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "teams"
}

// RegisterRoutes registers the module's routes under /api/v1/teams
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Dispatcher.Group("/teams"))
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
