// Package httpkit provides HTTP middleware infrastructure.
// This is part of the platform layer and contains no business logic.
package httpkit

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"sgjobs_backend/platform/apperr"
	"sgjobs_backend/platform/config"
	"sgjobs_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	// ContextActorIDKey is the gin context key for the authenticated actor.
	ContextActorIDKey = "actorID"
	// ContextRolesKey is the gin context key for the caller's roles.
	ContextRolesKey = "roles"
	// ContextJobIDKey is the gin context key for an installer's job scope.
	ContextJobIDKey = "jobID"
	// ContextRequestIDKey is the gin context key for the request id.
	ContextRequestIDKey = "requestID"

	// HeaderRequestID carries the request id in and out.
	HeaderRequestID = "X-Request-ID"

	errMissingToken = "missing token"
	errInvalidToken = "invalid token"
)

// InstallerVerifier resolves an installer magic-link token to the job it
// grants access to.
type InstallerVerifier interface {
	AuthenticateInstaller(ctx context.Context, rawToken string) (int64, error)
}

// RequestID assigns a request id, reusing a well-formed incoming one, and
// stores it on both the gin and the request context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}

		c.Set(ContextRequestIDKey, requestID)
		c.Header(HeaderRequestID, requestID)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), logger.RequestIDKey, requestID))

		c.Next()
	}
}

// RequestLogger logs HTTP requests with timing.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		clientIP := c.ClientIP()

		reqLog := log.WithContext(c.Request.Context())
		if len(c.Errors) > 0 && status >= 500 {
			reqLog.HTTPError(c.Request.Method, path, status, c.Errors.Last().Err, clientIP)
			return
		}
		reqLog.HTTPRequest(c.Request.Method, path, status, float64(latency.Milliseconds()), clientIP)
	}
}

// SecurityHeaders adds security headers to responses.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "no-referrer")
		c.Header("Content-Security-Policy", "default-src 'self'")
		c.Header("Permissions-Policy", "geolocation=(), microphone=(), camera=(self)")

		if c.Request.TLS != nil {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}

const (
	limiterIdleTTL       = 10 * time.Minute
	limiterSweepInterval = time.Minute
)

// IPRateLimiter manages per-IP rate limiters. Limiters idle for longer than
// limiterIdleTTL are dropped.
type IPRateLimiter struct {
	limiters  sync.Map
	rate      rate.Limit
	burst     int
	log       *logger.Logger
	now       func() time.Time
	mu        sync.Mutex
	lastSweep time.Time
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

// NewIPRateLimiter creates a new IP-based rate limiter.
func NewIPRateLimiter(r rate.Limit, burst int, log *logger.Logger) *IPRateLimiter {
	return &IPRateLimiter{
		rate:  r,
		burst: burst,
		log:   log,
		now:   time.Now,
	}
}

// NewMagicLinkRateLimiter limits public token routes to 30 requests per
// minute per client, bursting to 10.
func NewMagicLinkRateLimiter(log *logger.Logger) *IPRateLimiter {
	return NewIPRateLimiter(rate.Limit(30.0/60.0), 10, log)
}

func (i *IPRateLimiter) getLimiter(ip string) *rate.Limiter {
	now := i.now()
	i.evictIdle(now)

	entry, _ := i.limiters.LoadOrStore(ip, &ipLimiter{limiter: rate.NewLimiter(i.rate, i.burst)})
	l := entry.(*ipLimiter)
	l.lastSeen.Store(now.UnixNano())
	return l.limiter
}

// evictIdle drops idle limiters at most once per limiterSweepInterval.
func (i *IPRateLimiter) evictIdle(now time.Time) {
	i.mu.Lock()
	if now.Sub(i.lastSweep) < limiterSweepInterval {
		i.mu.Unlock()
		return
	}
	i.lastSweep = now
	i.mu.Unlock()

	cutoff := now.Add(-limiterIdleTTL).UnixNano()
	i.limiters.Range(func(key, value interface{}) bool {
		if value.(*ipLimiter).lastSeen.Load() < cutoff {
			i.limiters.Delete(key)
		}
		return true
	})
}

// RateLimit returns a middleware that rate limits by IP.
func (i *IPRateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !i.getLimiter(ip).Allow() {
			if i.log != nil {
				i.log.RateLimitExceeded(ip, c.FullPath())
			}
			Error(c, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded", nil)
			c.Abort()
			return
		}

		c.Next()
	}
}

// AuthRequired returns middleware that validates dispatcher access tokens
// from the Authorization header.
func AuthRequired(cfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		rawToken, ok := extractBearerToken(c.GetHeader("Authorization"))
		if !ok {
			AbortWithError(c, apperr.Unauthorized(errMissingToken))
			return
		}

		if err := authenticateDispatcher(c, rawToken, cfg); err != nil {
			AbortWithError(c, apperr.Unauthorized(errInvalidToken))
			return
		}

		c.Next()
	}
}

// InstallerRequired returns middleware that accepts installer magic-link
// tokens, either as a bearer token or as the "token" query parameter.
func InstallerRequired(verifier InstallerVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		rawToken, ok := extractBearerToken(c.GetHeader("Authorization"))
		if !ok {
			rawToken = strings.TrimSpace(c.Query("token"))
		}
		if rawToken == "" {
			AbortWithError(c, apperr.Unauthorized(errMissingToken))
			return
		}

		if err := authenticateInstaller(c, rawToken, verifier); err != nil {
			AbortWithError(c, err)
			return
		}

		c.Next()
	}
}

// DispatcherOrInstaller accepts a dispatcher access token first and falls
// back to an installer token.
func DispatcherOrInstaller(cfg config.JWTConfig, verifier InstallerVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		rawToken, ok := extractBearerToken(c.GetHeader("Authorization"))
		if !ok {
			rawToken = strings.TrimSpace(c.Query("token"))
		}
		if rawToken == "" {
			AbortWithError(c, apperr.Unauthorized(errMissingToken))
			return
		}

		if err := authenticateDispatcher(c, rawToken, cfg); err == nil {
			c.Next()
			return
		}

		if err := authenticateInstaller(c, rawToken, verifier); err != nil {
			AbortWithError(c, err)
			return
		}

		c.Next()
	}
}

// RequireRole returns middleware that checks if the caller has the specified role.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !GetIdentity(c).HasRole(role) {
			AbortWithError(c, apperr.Forbidden("forbidden"))
			return
		}
		c.Next()
	}
}

// RequireJobScope lets dispatchers through and restricts installers to the
// job named by the given path parameter.
func RequireJobScope(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := GetIdentity(c)
		if id.HasRole(RoleDispatcher) {
			c.Next()
			return
		}

		jobID, err := strconv.ParseInt(c.Param(param), 10, 64)
		if err != nil || jobID <= 0 || id.JobID() != jobID {
			AbortWithError(c, apperr.Forbidden("token is not valid for this job"))
			return
		}

		c.Next()
	}
}

func authenticateDispatcher(c *gin.Context, rawToken string, cfg config.JWTConfig) error {
	claims, err := parseAccessClaims(rawToken, cfg)
	if err != nil {
		return err
	}

	subject, _ := claims["sub"].(string)
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return errors.New(errInvalidToken)
	}

	roles := extractRoles(claims["roles"])
	if !containsRole(roles, RoleDispatcher) {
		return errors.New(errInvalidToken)
	}

	setIdentity(c, subject, roles, 0)
	withActor(c, subject)
	return nil
}

func authenticateInstaller(c *gin.Context, rawToken string, verifier InstallerVerifier) error {
	if verifier == nil {
		return apperr.Unauthorized(errInvalidToken)
	}

	jobID, err := verifier.AuthenticateInstaller(c.Request.Context(), rawToken)
	if err != nil {
		return err
	}

	actor := "installer:job:" + strconv.FormatInt(jobID, 10)
	setIdentity(c, actor, []string{RoleInstaller}, jobID)
	withActor(c, actor)
	return nil
}

func withActor(c *gin.Context, actor string) {
	c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), logger.UserIDKey, actor))
}

func containsRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func extractRoles(value interface{}) []string {
	roles := make([]string, 0)
	if value == nil {
		return roles
	}

	switch typed := value.(type) {
	case []string:
		return append(roles, typed...)
	case []interface{}:
		for _, item := range typed {
			if text, ok := item.(string); ok {
				roles = append(roles, text)
			}
		}
	case string:
		roles = append(roles, typed)
	}

	return roles
}

func extractBearerToken(authHeader string) (string, bool) {
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}

	rawToken := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if rawToken == "" {
		return "", false
	}

	return rawToken, true
}

func parseAccessClaims(rawToken string, cfg config.JWTConfig) (jwt.MapClaims, error) {
	parsed, err := jwt.Parse(rawToken, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return []byte(cfg.GetJWTAccessSecret()), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return nil, errors.New(errInvalidToken)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New(errInvalidToken)
	}

	if tokenType, _ := claims["type"].(string); tokenType != "access" {
		return nil, errors.New(errInvalidToken)
	}

	return claims, nil
}
