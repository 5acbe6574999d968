// Package token issues and verifies installer magic-link tokens.
// Tokens are HS256 JWTs bound to exactly one job; only their SHA-256 hash is
// ever persisted.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"sgjobs_backend/platform/apperr"
	"sgjobs_backend/platform/config"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultExpiryDays applies when no positive expiry is configured.
	DefaultExpiryDays = 14

	subjectPrefix = "job:"
	nonceBytes    = 9
)

// Claims is the verified claim set of an installer token.
type Claims map[string]interface{}

// Subject returns the "sub" claim.
func (c Claims) Subject() string {
	sub, _ := c["sub"].(string)
	return sub
}

// JobID resolves the job the token is bound to, preferring the job_id claim
// and falling back to a "job:<id>" subject.
func (c Claims) JobID() (int64, bool) {
	switch v := c["job_id"].(type) {
	case float64:
		if v > 0 && v == float64(int64(v)) {
			return int64(v), true
		}
	case int64:
		if v > 0 {
			return v, true
		}
	case string:
		if id, err := strconv.ParseInt(v, 10, 64); err == nil && id > 0 {
			return id, true
		}
	}

	return ParseSubject(c.Subject())
}

// Subject returns the job-binding subject for jobID.
func Subject(jobID int64) string {
	return subjectPrefix + strconv.FormatInt(jobID, 10)
}

// ParseSubject extracts the job id from a "job:<id>" subject.
func ParseSubject(sub string) (int64, bool) {
	if !strings.HasPrefix(sub, subjectPrefix) {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(sub, subjectPrefix), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// Service signs and validates installer tokens. The secret and expiry are
// read once at construction.
type Service struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for iat/exp and validation.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New builds a Service. A missing secret is a configuration error and no
// Service is returned.
func New(cfg config.TokenConfig, opts ...Option) (*Service, error) {
	secret := strings.TrimSpace(cfg.GetInstallerTokenSecret())
	if secret == "" {
		return nil, apperr.Configuration("JWT secret is not configured; set a long random secret before issuing job links").WithOp("token.New")
	}

	days := cfg.GetInstallerTokenExpiryDays()
	if days <= 0 {
		days = DefaultExpiryDays
	}

	s := &Service{
		secret: []byte(secret),
		expiry: time.Duration(days) * 24 * time.Hour,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Expiry returns the configured token lifetime.
func (s *Service) Expiry() time.Duration {
	return s.expiry
}

// Issue signs claims after adding iat, exp and a random nonce. The claims
// must carry a non-empty subject.
func (s *Service) Issue(claims map[string]interface{}) (string, error) {
	sub, _ := claims["sub"].(string)
	if strings.TrimSpace(sub) == "" {
		return "", apperr.Validation("token claims must include a subject").WithOp("token.Issue")
	}

	nonce, err := GenerateRandomToken(nonceBytes)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "generate nonce", err)
	}

	now := s.now()
	payload := jwt.MapClaims{}
	for k, v := range claims {
		payload[k] = v
	}
	payload["iat"] = now.Unix()
	payload["exp"] = now.Add(s.expiry).Unix()
	payload["nonce"] = nonce

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, payload).SignedString(s.secret)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "sign token", err)
	}
	return signed, nil
}

// IssueForJob issues a token bound to jobID.
func (s *Service) IssueForJob(jobID int64) (string, error) {
	return s.Issue(map[string]interface{}{
		"sub":    Subject(jobID),
		"job_id": jobID,
	})
}

// Validate verifies signature and expiry and returns the claims.
func (s *Service) Validate(raw string) (Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, apperr.InvalidToken("token is empty", nil)
	}

	parsed, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return nil, apperr.InvalidToken(describe(err), err)
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, apperr.InvalidToken("token is invalid", nil)
	}

	return Claims(mapClaims), nil
}

func describe(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "token has expired"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "token signature is invalid"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "token is malformed"
	default:
		return fmt.Sprintf("token is invalid: %v", err)
	}
}

// GenerateRandomToken returns size random bytes, base64url encoded.
func GenerateRandomToken(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashSHA256 returns the hex SHA-256 digest stored in place of a raw token.
func HashSHA256(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
