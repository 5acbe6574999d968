// Package httpkit provides HTTP utilities including identity abstraction.
package httpkit

import (
	"github.com/gin-gonic/gin"

	"sgjobs_backend/platform/apperr"
)

const (
	// RoleDispatcher is carried by back-office access tokens.
	RoleDispatcher = "dispatcher"
	// RoleInstaller is assigned to callers holding a job magic link.
	RoleInstaller = "installer"
)

// Identity represents the authenticated caller.
// Handlers read it without depending on how the token was validated.
type Identity interface {
	// ActorID is the identity recorded in audit entries.
	ActorID() string
	// Roles returns the caller's assigned roles.
	Roles() []string
	// HasRole checks if the caller has a specific role.
	HasRole(role string) bool
	// JobID is the job an installer token is scoped to, or 0.
	JobID() int64
	// IsAuthenticated returns true if the caller is authenticated.
	IsAuthenticated() bool
}

type identity struct {
	actorID       string
	roles         []string
	jobID         int64
	authenticated bool
}

func (i *identity) ActorID() string {
	return i.actorID
}

func (i *identity) Roles() []string {
	return i.roles
}

func (i *identity) HasRole(role string) bool {
	for _, r := range i.roles {
		if r == role {
			return true
		}
	}
	return false
}

func (i *identity) JobID() int64 {
	return i.jobID
}

func (i *identity) IsAuthenticated() bool {
	return i.authenticated
}

// GetIdentity extracts the Identity from a Gin context.
// Returns an unauthenticated identity if no caller was attached.
func GetIdentity(c *gin.Context) Identity {
	actor, ok := c.Get(ContextActorIDKey)
	if !ok {
		return &identity{}
	}

	actorID, ok := actor.(string)
	if !ok || actorID == "" {
		return &identity{}
	}

	var roleList []string
	if roles, ok := c.Get(ContextRolesKey); ok {
		roleList, _ = roles.([]string)
	}

	var jobID int64
	if raw, ok := c.Get(ContextJobIDKey); ok {
		jobID, _ = raw.(int64)
	}

	return &identity{
		actorID:       actorID,
		roles:         roleList,
		jobID:         jobID,
		authenticated: true,
	}
}

// MustGetIdentity extracts the Identity from a Gin context.
// If the caller is not authenticated, it aborts with 401 and returns nil.
func MustGetIdentity(c *gin.Context) Identity {
	id := GetIdentity(c)
	if !id.IsAuthenticated() {
		AbortWithError(c, apperr.Unauthorized("authentication required"))
		return nil
	}
	return id
}

func setIdentity(c *gin.Context, actorID string, roles []string, jobID int64) {
	c.Set(ContextActorIDKey, actorID)
	c.Set(ContextRolesKey, roles)
	if jobID > 0 {
		c.Set(ContextJobIDKey, jobID)
	}
}
