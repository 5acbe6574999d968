package health

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"sgjobs_backend/platform/config"
)

type testSettings struct {
	bexio  bool
	caldav bool
	secret string
	teams  []config.TeamDefinition
}

func (s testSettings) IsBexioConfigured() bool           { return s.bexio }
func (s testSettings) IsCalDAVConfigured() bool          { return s.caldav }
func (s testSettings) GetInstallerTokenSecret() string   { return s.secret }
func (s testSettings) GetSweepInterval() time.Duration   { return 15 * time.Minute }
func (s testSettings) GetTeams() []config.TeamDefinition { return s.teams }

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type stubProber struct {
	mu       sync.Mutex
	statuses map[string]int
	errs     map[string]error
	paths    []string
}

func (p *stubProber) Propfind(_ context.Context, path string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paths = append(p.paths, path)
	if err := p.errs[path]; err != nil {
		return 0, err
	}
	return p.statuses[path], nil
}

type stubClock struct {
	at  time.Time
	ok  bool
	err error
}

func (c stubClock) LastRun(context.Context) (time.Time, bool, error) { return c.at, c.ok, c.err }

type stubCounter struct{ count int }

func (c stubCounter) CountWithoutEvent(context.Context) (int, error) { return c.count, nil }

var now = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func healthySettings() testSettings {
	return testSettings{
		bexio:  true,
		caldav: true,
		secret: "secret",
		teams: []config.TeamDefinition{
			{Name: "Nord", ExecutionPath: "/cal/nord/exec/", BlockerPath: "/cal/nord/block/"},
			{Principal: "sued", ExecutionPath: "/cal/sued/exec/"},
		},
	}
}

func newService(settings Settings, erp ERPPinger, prober CalendarProber, clock SweepClock, count int) *Service {
	svc := New(settings, erp, prober, clock, stubCounter{count: count}, nil)
	svc.now = func() time.Time { return now }
	return svc
}

func TestCheckHealthy(t *testing.T) {
	prober := &stubProber{statuses: map[string]int{
		"/cal/nord/exec/":  207,
		"/cal/nord/block/": 207,
		"/cal/sued/exec/":  207,
	}}
	svc := newService(healthySettings(), stubPinger{}, prober, stubClock{at: now.Add(-10 * time.Minute), ok: true}, 0)

	report := svc.Check(context.Background())
	if !report.OK {
		t.Fatalf("expected healthy report, got errors %v", report.Errors)
	}
	if len(prober.paths) != 3 {
		t.Fatalf("expected 3 probes, got %v", prober.paths)
	}
	if report.CalDAV["Nord"]["blocker"] != 207 {
		t.Fatalf("unexpected caldav status %v", report.CalDAV)
	}
	if _, ok := report.CalDAV["sued"]["execution"]; !ok {
		t.Fatalf("expected principal to name the team, got %v", report.CalDAV)
	}
}

func TestCheckReportsEveryFailure(t *testing.T) {
	prober := &stubProber{
		statuses: map[string]int{"/cal/nord/exec/": 401, "/cal/sued/exec/": 207},
		errs:     map[string]error{"/cal/nord/block/": errors.New("timeout")},
	}
	svc := newService(healthySettings(), stubPinger{err: errors.New("bexio down")}, prober, stubClock{at: now.Add(-21 * time.Minute), ok: true}, 2)

	report := svc.Check(context.Background())
	if report.OK {
		t.Fatalf("expected unhealthy report")
	}
	joined := strings.Join(report.Errors, "\n")
	for _, want := range []string{"bexio is unreachable", "overdue", "returned status 401", "(blocker) failed: timeout", "2 jobs have no calendar event"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected %q in errors:\n%s", want, joined)
		}
	}
	if report.CalDAV["Nord"]["blocker"] != "timeout" {
		t.Fatalf("expected probe error in report, got %v", report.CalDAV["Nord"])
	}
	if report.UnprojectedJobs != 2 {
		t.Fatalf("expected unprojected count, got %d", report.UnprojectedJobs)
	}
}

func TestCheckWithoutConfigurationSkipsProbes(t *testing.T) {
	prober := &stubProber{}
	svc := newService(testSettings{}, nil, prober, nil, 0)

	report := svc.Check(context.Background())
	if report.OK {
		t.Fatalf("expected unhealthy report")
	}
	if len(prober.paths) != 0 {
		t.Fatalf("expected no probes, got %v", prober.paths)
	}
	if report.Bexio.Configured || report.Sweep.Scheduled {
		t.Fatalf("unexpected statuses %+v %+v", report.Bexio, report.Sweep)
	}
	if len(report.Errors) != 4 {
		t.Fatalf("expected 4 errors, got %v", report.Errors)
	}
}

func TestSweepWithoutClockIsUnknown(t *testing.T) {
	prober := &stubProber{statuses: map[string]int{
		"/cal/nord/exec/":  207,
		"/cal/nord/block/": 207,
		"/cal/sued/exec/":  207,
	}}
	svc := newService(healthySettings(), stubPinger{}, prober, nil, 0)

	report := svc.Check(context.Background())
	if !report.OK {
		t.Fatalf("expected healthy report without a sweep clock, got errors %v", report.Errors)
	}
	if report.Sweep.State != SweepUnknown {
		t.Fatalf("expected unknown sweep state, got %q", report.Sweep.State)
	}
}

func TestSweepStates(t *testing.T) {
	cases := []struct {
		name  string
		clock stubClock
		state string
		ok    bool
	}{
		{"fresh", stubClock{at: now.Add(-10 * time.Minute), ok: true}, SweepOK, true},
		{"overdue", stubClock{at: now.Add(-21 * time.Minute), ok: true}, SweepOverdue, false},
		{"never run", stubClock{}, SweepNeverRun, false},
		{"unreadable", stubClock{err: errors.New("redis down")}, SweepError, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			prober := &stubProber{statuses: map[string]int{
				"/cal/nord/exec/":  207,
				"/cal/nord/block/": 207,
				"/cal/sued/exec/":  207,
			}}
			report := newService(healthySettings(), stubPinger{}, prober, tc.clock, 0).Check(context.Background())
			if report.Sweep.State != tc.state || report.OK != tc.ok {
				t.Fatalf("expected state %q ok=%v, got %q ok=%v (%v)", tc.state, tc.ok, report.Sweep.State, report.OK, report.Errors)
			}
		})
	}
}
