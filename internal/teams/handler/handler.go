package handler

import (
	"sgjobs_backend/internal/teams/service"
	"sgjobs_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// Handler handles HTTP requests for teams
type Handler struct {
	svc *service.Service
}

// New creates a new teams handler
func New(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers the team routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
}

// List handles GET /api/v1/teams
func (h *Handler) List(c *gin.Context) {
	teams, err := h.svc.List(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"items": teams})
}
