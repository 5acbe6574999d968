// Package health reports whether the integrations the job lifecycle depends
// on are configured and reachable.
package health

import (
	"context"
	"fmt"
	"time"

	"sgjobs_backend/platform/config"
	"sgjobs_backend/platform/logger"

	"golang.org/x/sync/errgroup"
)

const (
	probeTimeout = 5 * time.Second
	probeLimit   = 4
	sweepGrace   = 5 * time.Minute
)

// Payment sweep states in the report.
const (
	SweepUnknown  = "unknown"
	SweepError    = "error"
	SweepNeverRun = "never_run"
	SweepOverdue  = "overdue"
	SweepOK       = "ok"
)

// Settings is the configuration the report inspects.
type Settings interface {
	IsBexioConfigured() bool
	IsCalDAVConfigured() bool
	GetInstallerTokenSecret() string
	GetSweepInterval() time.Duration
	GetTeams() []config.TeamDefinition
}

// ERPPinger checks the bexio API.
type ERPPinger interface {
	Ping(ctx context.Context) error
}

// CalendarProber issues PROPFIND requests against calendar collections.
type CalendarProber interface {
	Propfind(ctx context.Context, path string) (int, error)
}

// SweepClock reports when the payment sweep last finished.
type SweepClock interface {
	LastRun(ctx context.Context) (time.Time, bool, error)
}

// UnprojectedCounter counts jobs without a calendar event.
type UnprojectedCounter interface {
	CountWithoutEvent(ctx context.Context) (int, error)
}

// BexioStatus is the bexio part of the report.
type BexioStatus struct {
	Configured bool   `json:"configured"`
	Error      string `json:"error,omitempty"`
}

// SweepStatus is the payment sweep part of the report. State is unknown when
// this process has no access to the sweep's last-run marker.
type SweepStatus struct {
	State     string     `json:"state"`
	Scheduled bool       `json:"scheduled"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	Overdue   bool       `json:"overdue"`
}

// Report is the integration health report.
type Report struct {
	OK              bool                              `json:"ok"`
	CalDAV          map[string]map[string]interface{} `json:"caldav"`
	Bexio           BexioStatus                       `json:"bexio"`
	Sweep           SweepStatus                       `json:"sweep"`
	UnprojectedJobs int                               `json:"unprojected_jobs"`
	Errors          []string                          `json:"errors"`
}

// Service builds health reports.
type Service struct {
	settings Settings
	erp      ERPPinger
	calendar CalendarProber
	sweep    SweepClock
	jobs     UnprojectedCounter
	log      *logger.Logger
	now      func() time.Time
}

// New creates a health service. erp, calendar and sweep may be nil when the
// integration is not configured in this process.
func New(settings Settings, erp ERPPinger, calendar CalendarProber, sweep SweepClock, jobs UnprojectedCounter, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Discard()
	}
	return &Service{
		settings: settings,
		erp:      erp,
		calendar: calendar,
		sweep:    sweep,
		jobs:     jobs,
		log:      log,
		now:      time.Now,
	}
}

// Check builds the report.
func (s *Service) Check(ctx context.Context) Report {
	report := Report{OK: true, CalDAV: map[string]map[string]interface{}{}, Errors: []string{}}
	fail := func(format string, args ...interface{}) {
		report.OK = false
		report.Errors = append(report.Errors, fmt.Sprintf(format, args...))
	}

	report.Bexio = s.checkBexio(ctx)
	if !report.Bexio.Configured {
		fail("bexio credentials are incomplete")
	} else if report.Bexio.Error != "" {
		fail("bexio is unreachable: %s", report.Bexio.Error)
	}

	report.Sweep = s.checkSweep(ctx)
	switch report.Sweep.State {
	case SweepError:
		fail("could not read payment sweep last run")
	case SweepNeverRun:
		fail("payment sweep has never run")
	case SweepOverdue:
		fail("payment sweep is overdue")
	}

	if s.settings.GetInstallerTokenSecret() == "" {
		fail("installer token secret is not set")
	}

	caldavReady := s.settings.IsCalDAVConfigured() && s.calendar != nil
	if !caldavReady {
		fail("caldav credentials are incomplete")
	}

	teams := s.settings.GetTeams()
	if len(teams) == 0 {
		fail("no teams configured")
	}

	if caldavReady && len(teams) > 0 {
		for _, p := range s.probeCalendars(ctx, teams) {
			if report.CalDAV[p.team] == nil {
				report.CalDAV[p.team] = map[string]interface{}{}
			}
			if p.err != nil {
				report.CalDAV[p.team][p.kind] = p.err.Error()
				fail("caldav check for %s (%s) failed: %v", p.team, p.kind, p.err)
				continue
			}
			report.CalDAV[p.team][p.kind] = p.status
			if p.status < 200 || p.status >= 300 {
				fail("caldav check for %s (%s) returned status %d", p.team, p.kind, p.status)
			}
		}
	}

	if s.jobs != nil {
		count, err := s.jobs.CountWithoutEvent(ctx)
		if err != nil {
			s.log.WithContext(ctx).DatabaseError("count unprojected jobs", err)
			fail("could not count unprojected jobs")
		} else if count > 0 {
			report.UnprojectedJobs = count
			fail("%d jobs have no calendar event", count)
		}
	}

	return report
}

func (s *Service) checkBexio(ctx context.Context) BexioStatus {
	status := BexioStatus{Configured: s.settings.IsBexioConfigured() && s.erp != nil}
	if !status.Configured {
		return status
	}

	pingCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := s.erp.Ping(pingCtx); err != nil {
		status.Error = err.Error()
	}
	return status
}

func (s *Service) checkSweep(ctx context.Context) SweepStatus {
	status := SweepStatus{State: SweepUnknown}
	if s.sweep == nil {
		return status
	}

	lastRun, ok, err := s.sweep.LastRun(ctx)
	if err != nil {
		s.log.WithContext(ctx).Warn("failed to read payment sweep last run", "error", err)
		status.State = SweepError
		return status
	}
	if !ok {
		status.State = SweepNeverRun
		return status
	}

	status.Scheduled = true
	status.LastRun = &lastRun
	interval := s.settings.GetSweepInterval()
	status.Overdue = s.now().Sub(lastRun) > interval+sweepGrace
	status.State = SweepOK
	if status.Overdue {
		status.State = SweepOverdue
	}
	return status
}

type probe struct {
	team   string
	kind   string
	path   string
	status int
	err    error
}

// probeCalendars issues the PROPFIND probes concurrently and returns them in
// team order.
func (s *Service) probeCalendars(ctx context.Context, teams []config.TeamDefinition) []probe {
	var probes []probe
	for _, t := range teams {
		for _, target := range []struct{ kind, path string }{
			{"execution", t.ExecutionPath},
			{"blocker", t.BlockerPath},
		} {
			if target.path == "" {
				continue
			}
			probes = append(probes, probe{team: t.DisplayName(), kind: target.kind, path: target.path})
		}
	}

	var g errgroup.Group
	g.SetLimit(probeLimit)
	for i := range probes {
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
			defer cancel()
			probes[i].status, probes[i].err = s.calendar.Propfind(probeCtx, probes[i].path)
			return nil
		})
	}
	_ = g.Wait()
	return probes
}
