package health

import (
	apphttp "sgjobs_backend/internal/http"
	"sgjobs_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// Module exposes the health report to dispatchers.
type Module struct {
	svc *Service
}

// NewModule creates the health module.
func NewModule(svc *Service) *Module {
	return &Module{svc: svc}
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "health"
}

// RegisterRoutes registers GET /api/v1/admin/health
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Admin.GET("/health", m.handleCheck)
}

func (m *Module) handleCheck(c *gin.Context) {
	httpkit.OK(c, m.svc.Check(c.Request.Context()))
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
