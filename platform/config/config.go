// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"sgjobs_backend/platform/apperr"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides dispatcher access token validation settings.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// TokenConfig provides installer token signing settings.
type TokenConfig interface {
	GetInstallerTokenSecret() string
	GetInstallerTokenExpiryDays() int
}

// BexioConfig provides ERP access settings.
type BexioConfig interface {
	GetBexioBaseURL() string
	GetBexioToken() string
	GetBexioRatePerSecond() float64
	IsBexioConfigured() bool
}

// CalDAVConfig provides calendar backend settings.
type CalDAVConfig interface {
	GetCalDAVBaseURL() string
	GetCalDAVUsername() string
	GetCalDAVPassword() string
	IsCalDAVConfigured() bool
}

// JobsConfig provides settings for the job lifecycle.
type JobsConfig interface {
	GetAppBaseURL() string
	GetDefaultTimezone() string
	GetTeams() []TeamDefinition
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// SchedulerConfig provides settings for the background scheduler.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetSweepInterval() time.Duration
}

// MinIOConfig provides settings for MinIO S3-compatible storage.
type MinIOConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinIOMaxFileSize() int64
	GetMinioBucketJobUploads() string
	IsMinIOEnabled() bool
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                      string
	HTTPAddr                 string
	DatabaseURL              string
	JWTAccessSecret          string
	InstallerTokenSecret     string
	InstallerTokenExpiryDays int
	CORSAllowAll             bool
	CORSOrigins              []string
	CORSAllowCreds           bool
	AppBaseURL               string
	DefaultTimezone          string
	Teams                    []TeamDefinition
	BexioBaseURL             string
	BexioToken               string
	BexioRatePerSecond       float64
	CalDAVBaseURL            string
	CalDAVUsername           string
	CalDAVPassword           string
	RedisURL                 string
	RedisTLSInsecure         bool
	AsynqQueueName           string
	AsynqConcurrency         int
	SweepInterval            time.Duration
	MinIOEndpoint            string
	MinIOAccessKey           string
	MinIOSecretKey           string
	MinIOUseSSL              bool
	MinIOMaxFileSize         int64
	MinioBucketJobUploads    string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// TokenConfig implementation
func (c *Config) GetInstallerTokenSecret() string  { return c.InstallerTokenSecret }
func (c *Config) GetInstallerTokenExpiryDays() int { return c.InstallerTokenExpiryDays }

// BexioConfig implementation
func (c *Config) GetBexioBaseURL() string        { return c.BexioBaseURL }
func (c *Config) GetBexioToken() string          { return c.BexioToken }
func (c *Config) GetBexioRatePerSecond() float64 { return c.BexioRatePerSecond }
func (c *Config) IsBexioConfigured() bool        { return c.BexioBaseURL != "" && c.BexioToken != "" }

// CalDAVConfig implementation
func (c *Config) GetCalDAVBaseURL() string  { return c.CalDAVBaseURL }
func (c *Config) GetCalDAVUsername() string { return c.CalDAVUsername }
func (c *Config) GetCalDAVPassword() string { return c.CalDAVPassword }
func (c *Config) IsCalDAVConfigured() bool {
	return c.CalDAVBaseURL != "" && c.CalDAVUsername != "" && c.CalDAVPassword != ""
}

// JobsConfig implementation
func (c *Config) GetAppBaseURL() string      { return c.AppBaseURL }
func (c *Config) GetDefaultTimezone() string { return c.DefaultTimezone }
func (c *Config) GetTeams() []TeamDefinition { return c.Teams }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string             { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool       { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string       { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int        { return c.AsynqConcurrency }
func (c *Config) GetSweepInterval() time.Duration { return c.SweepInterval }

// MinIOConfig implementation
func (c *Config) GetMinIOEndpoint() string         { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string        { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string        { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool             { return c.MinIOUseSSL }
func (c *Config) GetMinIOMaxFileSize() int64       { return c.MinIOMaxFileSize }
func (c *Config) GetMinioBucketJobUploads() string { return c.MinioBucketJobUploads }
func (c *Config) IsMinIOEnabled() bool             { return c.MinIOEndpoint != "" }

// =============================================================================
// Loading
// =============================================================================

// Loader resolves configuration from the explicit file and the environment,
// and later from stored options once the database is reachable.
type Loader struct {
	explicit Source
	env      Source
}

// NewLoader reads .env and the optional explicit config file named by
// SGJOBS_CONFIG_FILE.
func NewLoader() (*Loader, error) {
	_ = godotenv.Load()

	explicit, err := LoadFile(strings.TrimSpace(os.Getenv("SGJOBS_CONFIG_FILE")))
	if err != nil {
		return nil, err
	}

	return &Loader{explicit: explicit, env: EnvSource{}}, nil
}

// DatabaseURL resolves the database address without stored options.
func (l *Loader) DatabaseURL() string {
	return Layered{l.explicit, l.env}.String(KeyDatabaseURL, "")
}

// Env resolves the runtime environment name without stored options.
func (l *Loader) Env() string {
	return Layered{l.explicit, l.env}.String(KeyAppEnv, "development")
}

// DatabaseURL lets a bare connection string satisfy DatabaseConfig.
type DatabaseURL string

// GetDatabaseURL implements DatabaseConfig.
func (u DatabaseURL) GetDatabaseURL() string { return string(u) }

// Load resolves the full configuration. stored may be nil.
func (l *Loader) Load(stored Source) (*Config, error) {
	return Build(Layered{l.explicit, stored, l.env})
}

// Build resolves a Config from the given layers and validates it.
func Build(src Layered) (*Config, error) {
	corsOrigins := splitCSV(src.String(KeyCORSOrigins, "http://localhost:5173"))
	corsAllowAll := src.Bool(KeyCORSAllowAll, false)
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	teams, err := ParseTeams(src.String(KeyTeams, ""))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Env:                      src.String(KeyAppEnv, "development"),
		HTTPAddr:                 src.String(KeyHTTPAddr, ":8080"),
		DatabaseURL:              src.String(KeyDatabaseURL, ""),
		JWTAccessSecret:          src.String(KeyJWTAccessSecret, ""),
		InstallerTokenSecret:     src.String(KeyJWTSecret, ""),
		InstallerTokenExpiryDays: src.PositiveInt(KeyJWTExpiryDays, 14),
		CORSAllowAll:             corsAllowAll,
		CORSOrigins:              corsOrigins,
		CORSAllowCreds:           src.Bool(KeyCORSAllowCreds, true),
		AppBaseURL:               strings.TrimRight(src.String(KeyAppBaseURL, "http://localhost:8080"), "/"),
		DefaultTimezone:          src.String(KeyDefaultTimezone, "Europe/Zurich"),
		Teams:                    teams,
		BexioBaseURL:             strings.TrimRight(src.String(KeyBexioBaseURL, ""), "/"),
		BexioToken:               src.String(KeyBexioToken, ""),
		BexioRatePerSecond:       src.PositiveFloat(KeyBexioRatePerSecond, 5),
		CalDAVBaseURL:            src.String(KeyCalDAVBaseURL, ""),
		CalDAVUsername:           src.String(KeyCalDAVUsername, ""),
		CalDAVPassword:           src.String(KeyCalDAVPassword, ""),
		RedisURL:                 src.String(KeyRedisURL, ""),
		RedisTLSInsecure:         src.Bool(KeyRedisTLSInsecure, false),
		AsynqQueueName:           src.String(KeyAsynqQueue, "sgjobs"),
		AsynqConcurrency:         src.PositiveInt(KeyAsynqConcurrency, 5),
		SweepInterval:            src.Duration(KeySweepInterval, 15*time.Minute),
		MinIOEndpoint:            src.String(KeyMinIOEndpoint, ""),
		MinIOAccessKey:           src.String(KeyMinIOAccessKey, ""),
		MinIOSecretKey:           src.String(KeyMinIOSecretKey, ""),
		MinIOUseSSL:              src.Bool(KeyMinIOUseSSL, false),
		MinIOMaxFileSize:         src.PositiveInt64(KeyMinIOMaxFileSize, 26214400),
		MinioBucketJobUploads:    src.String(KeyMinIOBucketJobUploads, "job-uploads"),
	}

	if _, err := time.LoadLocation(cfg.DefaultTimezone); err != nil {
		return nil, apperr.Configuration(fmt.Sprintf("unknown default timezone %q", cfg.DefaultTimezone))
	}
	if cfg.DatabaseURL == "" {
		return nil, apperr.Configuration("DATABASE_URL is required")
	}
	if cfg.InstallerTokenSecret == "" {
		return nil, apperr.Configuration("JWT secret is not configured; set jwt.secret or JWT_SECRET to a long random value")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, apperr.Configuration("JWT_ACCESS_SECRET is required")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, apperr.Configuration("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}

	return cfg, nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}

func parseFloat(value string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
