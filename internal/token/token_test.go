package token

import (
	"strings"
	"testing"
	"time"

	"sgjobs_backend/platform/apperr"
)

type testTokenConfig struct {
	secret string
	days   int
}

func (c testTokenConfig) GetInstallerTokenSecret() string  { return c.secret }
func (c testTokenConfig) GetInstallerTokenExpiryDays() int { return c.days }

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func newTestService(t *testing.T, days int) (*Service, *clock) {
	t.Helper()
	clk := &clock{now: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}
	svc, err := New(testTokenConfig{secret: "a-long-installer-secret", days: days}, WithClock(clk.Now))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return svc, clk
}

func TestNewRequiresSecret(t *testing.T) {
	_, err := New(testTokenConfig{secret: "   ", days: 14})
	if !apperr.Is(err, apperr.KindConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestRoundTripBeforeExpiry(t *testing.T) {
	svc, clk := newTestService(t, 14)

	raw, err := svc.Issue(map[string]interface{}{"sub": "job:42"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	clk.now = clk.now.Add(13 * 24 * time.Hour)
	claims, err := svc.Validate(raw)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Subject() != "job:42" {
		t.Fatalf("unexpected subject %q", claims.Subject())
	}
	if nonce, _ := claims["nonce"].(string); nonce == "" {
		t.Fatalf("expected nonce claim")
	}
	if id, ok := claims.JobID(); !ok || id != 42 {
		t.Fatalf("expected job 42 from subject, got %d %v", id, ok)
	}
}

func TestValidateFailsAfterExpiry(t *testing.T) {
	svc, clk := newTestService(t, 14)

	raw, err := svc.IssueForJob(42)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	clk.now = clk.now.Add(14*24*time.Hour + time.Second)
	_, err = svc.Validate(raw)
	if !apperr.Is(err, apperr.KindInvalidToken) {
		t.Fatalf("expected invalid token error, got %v", err)
	}
}

func TestNonPositiveExpiryFallsBackToDefault(t *testing.T) {
	svc, _ := newTestService(t, 0)
	if svc.Expiry() != DefaultExpiryDays*24*time.Hour {
		t.Fatalf("expected default expiry, got %s", svc.Expiry())
	}
}

func TestValidateRejectsForeignSignature(t *testing.T) {
	svc, _ := newTestService(t, 14)
	other, err := New(testTokenConfig{secret: "another-secret", days: 14}, WithClock(svc.now))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	raw, err := other.IssueForJob(7)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := svc.Validate(raw); !apperr.Is(err, apperr.KindInvalidToken) {
		t.Fatalf("expected invalid token error, got %v", err)
	}
	if _, err := svc.Validate("not-a-jwt"); !apperr.Is(err, apperr.KindInvalidToken) {
		t.Fatalf("expected invalid token error for garbage, got %v", err)
	}
}

func TestIssueRequiresSubject(t *testing.T) {
	svc, _ := newTestService(t, 14)
	if _, err := svc.Issue(map[string]interface{}{"job_id": 1}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestIssueForJobCarriesJobIDClaim(t *testing.T) {
	svc, _ := newTestService(t, 14)
	raw, err := svc.IssueForJob(1234)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := svc.Validate(raw)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if id, ok := claims.JobID(); !ok || id != 1234 {
		t.Fatalf("expected 1234, got %d", id)
	}
}

func TestHashSHA256IsHex(t *testing.T) {
	h := HashSHA256("abc")
	if len(h) != 64 || strings.ToLower(h) != h {
		t.Fatalf("unexpected hash %q", h)
	}
	if h != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Fatalf("unexpected digest %q", h)
	}
}
