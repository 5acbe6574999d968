package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Logical configuration keys. Explicit files and stored options use these
// names; the environment uses the variable mapped in envNames.
const (
	KeyAppEnv                = "app.env"
	KeyHTTPAddr              = "http.addr"
	KeyDatabaseURL           = "database.url"
	KeyJWTAccessSecret       = "jwt.access_secret"
	KeyJWTSecret             = "jwt.secret"
	KeyJWTExpiryDays         = "jwt.expiry_days"
	KeyCORSOrigins           = "cors.origins"
	KeyCORSAllowAll          = "cors.allow_all"
	KeyCORSAllowCreds        = "cors.allow_credentials"
	KeyAppBaseURL            = "app.base_url"
	KeyDefaultTimezone       = "jobs.default_timezone"
	KeyTeams                 = "teams"
	KeyBexioBaseURL          = "bexio.base_url"
	KeyBexioToken            = "bexio.token"
	KeyBexioRatePerSecond    = "bexio.rate_per_second"
	KeyCalDAVBaseURL         = "caldav.base_url"
	KeyCalDAVUsername        = "caldav.username"
	KeyCalDAVPassword        = "caldav.password"
	KeyRedisURL              = "redis.url"
	KeyRedisTLSInsecure      = "redis.tls_insecure"
	KeyAsynqQueue            = "asynq.queue"
	KeyAsynqConcurrency      = "asynq.concurrency"
	KeySweepInterval         = "payments.sweep_interval"
	KeyMinIOEndpoint         = "minio.endpoint"
	KeyMinIOAccessKey        = "minio.access_key"
	KeyMinIOSecretKey        = "minio.secret_key"
	KeyMinIOUseSSL           = "minio.use_ssl"
	KeyMinIOMaxFileSize      = "minio.max_file_size"
	KeyMinIOBucketJobUploads = "minio.bucket_job_uploads"
)

var envNames = map[string]string{
	KeyAppEnv:                "APP_ENV",
	KeyHTTPAddr:              "HTTP_ADDR",
	KeyDatabaseURL:           "DATABASE_URL",
	KeyJWTAccessSecret:       "JWT_ACCESS_SECRET",
	KeyJWTSecret:             "JWT_SECRET",
	KeyJWTExpiryDays:         "JWT_EXPIRE_DAYS",
	KeyCORSOrigins:           "CORS_ORIGINS",
	KeyCORSAllowAll:          "CORS_ALLOW_ALL",
	KeyCORSAllowCreds:        "CORS_ALLOW_CREDENTIALS",
	KeyAppBaseURL:            "APP_BASE_URL",
	KeyDefaultTimezone:       "SGJOBS_DEFAULT_TIMEZONE",
	KeyTeams:                 "SGJOBS_TEAMS",
	KeyBexioBaseURL:          "BEXIO_BASE_URL",
	KeyBexioToken:            "BEXIO_API_TOKEN",
	KeyBexioRatePerSecond:    "BEXIO_RATE_PER_SECOND",
	KeyCalDAVBaseURL:         "CALDAV_BASE_URL",
	KeyCalDAVUsername:        "CALDAV_USER",
	KeyCalDAVPassword:        "CALDAV_PASS",
	KeyRedisURL:              "REDIS_URL",
	KeyRedisTLSInsecure:      "REDIS_TLS_INSECURE",
	KeyAsynqQueue:            "ASYNQ_QUEUE",
	KeyAsynqConcurrency:      "ASYNQ_CONCURRENCY",
	KeySweepInterval:         "PAYMENT_SWEEP_INTERVAL",
	KeyMinIOEndpoint:         "MINIO_ENDPOINT",
	KeyMinIOAccessKey:        "MINIO_ACCESS_KEY",
	KeyMinIOSecretKey:        "MINIO_SECRET_KEY",
	KeyMinIOUseSSL:           "MINIO_USE_SSL",
	KeyMinIOMaxFileSize:      "MINIO_MAX_FILE_SIZE",
	KeyMinIOBucketJobUploads: "MINIO_BUCKET_JOB_UPLOADS",
}

// EnvName returns the environment variable consulted for key.
func EnvName(key string) string {
	return envNames[key]
}

// Source is one configuration layer.
type Source interface {
	Lookup(key string) (string, bool)
}

// MapSource is a Source backed by a flat key/value map.
type MapSource map[string]string

// Lookup implements Source.
func (m MapSource) Lookup(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// EnvSource reads the environment variable mapped to each logical key.
type EnvSource struct{}

// Lookup implements Source.
func (EnvSource) Lookup(key string) (string, bool) {
	name, ok := envNames[key]
	if !ok {
		return "", false
	}
	return os.LookupEnv(name)
}

// Layered consults its sources in order; the first non-empty value wins.
type Layered []Source

func (l Layered) lookup(key string) (string, bool) {
	for _, src := range l {
		if src == nil {
			continue
		}
		if v, ok := src.Lookup(key); ok {
			if trimmed := strings.TrimSpace(v); trimmed != "" {
				return trimmed, true
			}
		}
	}
	return "", false
}

// String returns the first non-empty value for key, or fallback.
func (l Layered) String(key, fallback string) string {
	if v, ok := l.lookup(key); ok {
		return v
	}
	return fallback
}

// Bool returns true for "true"/"1"/"yes" (case-insensitive).
func (l Layered) Bool(key string, fallback bool) bool {
	v, ok := l.lookup(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(v) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	return fallback
}

// PositiveInt returns the first layer holding a positive integer. Layers with
// unparsable or non-positive values are skipped.
func (l Layered) PositiveInt(key string, fallback int) int {
	for _, src := range l {
		if src == nil {
			continue
		}
		raw, ok := src.Lookup(key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

// PositiveInt64 is PositiveInt for int64 values.
func (l Layered) PositiveInt64(key string, fallback int64) int64 {
	for _, src := range l {
		if src == nil {
			continue
		}
		raw, ok := src.Lookup(key)
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

// PositiveFloat is PositiveInt for float values.
func (l Layered) PositiveFloat(key string, fallback float64) float64 {
	for _, src := range l {
		if src == nil {
			continue
		}
		raw, ok := src.Lookup(key)
		if !ok {
			continue
		}
		if f, ok := parseFloat(raw); ok && f > 0 {
			return f
		}
	}
	return fallback
}

// Duration parses a Go duration string; non-positive values are ignored.
func (l Layered) Duration(key string, fallback time.Duration) time.Duration {
	v, ok := l.lookup(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// LoadFile reads an explicit YAML config file and flattens nested maps into
// dotted keys. Lists are re-encoded as YAML so that "teams" can be given
// inline. An empty path yields an empty source.
func LoadFile(path string) (MapSource, error) {
	if path == "" {
		return MapSource{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	return ParseYAML(data)
}

// ParseYAML flattens a YAML document into a MapSource.
func ParseYAML(data []byte) (MapSource, error) {
	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	out := MapSource{}
	if err := flatten("", doc, out); err != nil {
		return nil, err
	}
	return out, nil
}

func flatten(prefix string, value interface{}, out MapSource) error {
	switch typed := value.(type) {
	case map[string]interface{}:
		for k, v := range typed {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if err := flatten(key, v, out); err != nil {
				return err
			}
		}
	case []interface{}:
		encoded, err := yaml.Marshal(typed)
		if err != nil {
			return fmt.Errorf("encode %s: %w", prefix, err)
		}
		out[prefix] = string(encoded)
	case nil:
		out[prefix] = ""
	default:
		out[prefix] = fmt.Sprint(typed)
	}
	return nil
}
