// Package http provides HTTP server infrastructure including the Module interface
// that all domain modules must implement for route registration.
package http

import (
	"sgjobs_backend/platform/config"
	"sgjobs_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// Module represents a bounded context that can register its HTTP routes.
// Each domain module implements this interface to encapsulate its own
// route setup, keeping the main router decoupled from specific endpoints.
type Module interface {
	// Name returns the module's identifier for logging purposes.
	Name() string
	// RegisterRoutes mounts the module's routes on the provided router group.
	// The RouterContext provides access to shared middleware and configuration.
	RegisterRoutes(ctx *RouterContext)
}

// RouterContext provides shared dependencies for module route registration.
type RouterContext struct {
	// Engine is the root Gin engine for modules that need engine-level access.
	Engine *gin.Engine
	// V1 is the /api/v1 route group.
	V1 *gin.RouterGroup
	// Dispatcher is the /api/v1 group restricted to dispatcher access tokens.
	Dispatcher *gin.RouterGroup
	// Admin is the dispatcher-only group under /api/v1/admin.
	Admin *gin.RouterGroup
	// Config is the JWT configuration for scoped auth middleware.
	Config config.JWTConfig
	// AuthMiddleware authenticates dispatcher access tokens.
	AuthMiddleware gin.HandlerFunc
	// MagicLinkLimiter throttles unauthenticated magic-link routes per IP.
	MagicLinkLimiter *httpkit.IPRateLimiter
}
