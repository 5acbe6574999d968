package config

import (
	"testing"
	"time"

	"sgjobs_backend/platform/apperr"
)

func baseSource() MapSource {
	return MapSource{
		KeyDatabaseURL:     "postgres://localhost/sgjobs",
		KeyJWTSecret:       "installer-secret",
		KeyJWTAccessSecret: "access-secret",
	}
}

func TestBuildDefaults(t *testing.T) {
	cfg, err := Build(Layered{baseSource()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.InstallerTokenExpiryDays != 14 {
		t.Fatalf("expected 14 expiry days, got %d", cfg.InstallerTokenExpiryDays)
	}
	if cfg.DefaultTimezone != "Europe/Zurich" {
		t.Fatalf("expected Europe/Zurich, got %q", cfg.DefaultTimezone)
	}
	if cfg.SweepInterval != 15*time.Minute {
		t.Fatalf("expected 15m sweep interval, got %s", cfg.SweepInterval)
	}
	if cfg.AsynqQueueName != "sgjobs" {
		t.Fatalf("expected queue sgjobs, got %q", cfg.AsynqQueueName)
	}
}

func TestBuildFailsWithoutSigningSecret(t *testing.T) {
	src := baseSource()
	delete(src, KeyJWTSecret)

	_, err := Build(Layered{src})
	if !apperr.Is(err, apperr.KindConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestLayeredFirstNonEmptyWins(t *testing.T) {
	explicit := MapSource{KeyBexioBaseURL: "  "}
	stored := MapSource{KeyBexioBaseURL: "https://stored.example/2.0/"}
	env := MapSource{KeyBexioBaseURL: "https://env.example"}

	got := Layered{explicit, stored, env}.String(KeyBexioBaseURL, "")
	if got != "https://stored.example/2.0/" {
		t.Fatalf("expected stored value, got %q", got)
	}

	got = Layered{nil, MapSource{}, env}.String(KeyBexioBaseURL, "")
	if got != "https://env.example" {
		t.Fatalf("expected env value, got %q", got)
	}
}

func TestPositiveIntIgnoresNonPositive(t *testing.T) {
	src := Layered{
		MapSource{KeyJWTExpiryDays: "0"},
		MapSource{KeyJWTExpiryDays: "-3"},
		MapSource{KeyJWTExpiryDays: "7"},
	}
	if got := src.PositiveInt(KeyJWTExpiryDays, 14); got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}

	if got := (Layered{MapSource{KeyJWTExpiryDays: "abc"}}).PositiveInt(KeyJWTExpiryDays, 14); got != 14 {
		t.Fatalf("expected default 14, got %d", got)
	}
}

func TestParseTeamsAliasesAndPaths(t *testing.T) {
	raw := `[
  {"name": "Team Nord", "caldav_principal": "/principals/nord", "execution_path": "/calendars/nord/exec", "blocker_path": "/calendars/nord/block/"},
  {"name": "", "principal": "", "calendar": ""},
  {"name": "Team Süd", "principal": "/principals/sued/", "exec": "/calendars/sued/exec//"}
]`

	teams, err := ParseTeams(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(teams) != 2 {
		t.Fatalf("expected 2 teams, got %d", len(teams))
	}

	if teams[0].Principal != "/principals/nord/" || teams[0].ExecutionPath != "/calendars/nord/exec/" || teams[0].BlockerPath != "/calendars/nord/block/" {
		t.Fatalf("unexpected first team: %+v", teams[0])
	}
	if teams[1].ExecutionPath != "/calendars/sued/exec/" || teams[1].BlockerPath != "" {
		t.Fatalf("unexpected second team: %+v", teams[1])
	}
}

func TestParseYAMLFlattensNestedKeys(t *testing.T) {
	doc := []byte(`
bexio:
  base_url: https://api.bexio.com/2.0
  token: abc
jwt:
  expiry_days: 21
teams:
  - name: Team Nord
    principal: /principals/nord
    execution: /calendars/nord/exec
`)

	src, err := ParseYAML(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if v, _ := src.Lookup(KeyBexioToken); v != "abc" {
		t.Fatalf("expected token abc, got %q", v)
	}
	if got := (Layered{src}).PositiveInt(KeyJWTExpiryDays, 14); got != 21 {
		t.Fatalf("expected 21, got %d", got)
	}

	raw, _ := src.Lookup(KeyTeams)
	teams, err := ParseTeams(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(teams) != 1 || teams[0].ExecutionPath != "/calendars/nord/exec/" {
		t.Fatalf("unexpected teams: %+v", teams)
	}
}
