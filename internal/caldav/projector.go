package caldav

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"sgjobs_backend/internal/jobs/domain"
	"sgjobs_backend/platform/apperr"

	"github.com/google/uuid"
)

const placeholder = "-"

// Projector keeps one calendar event per job in the team's execution calendar.
type Projector struct {
	client Requester
	newUID func(jobID int64) string
}

// ProjectorOption configures a Projector.
type ProjectorOption func(*Projector)

// WithUIDGenerator overrides how fresh event identifiers are generated.
func WithUIDGenerator(fn func(jobID int64) string) ProjectorOption {
	return func(p *Projector) { p.newUID = fn }
}

// NewProjector creates a Projector writing through client.
func NewProjector(client Requester, opts ...ProjectorOption) *Projector {
	p := &Projector{client: client, newUID: GenerateUID}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GenerateUID returns a new "sgjobs-<jobId>-<suffix>" identifier.
func GenerateUID(jobID int64) string {
	return fmt.Sprintf("sgjobs-%d-%s", jobID, uuid.NewString())
}

// UpsertEvent writes the full event for job, reusing its identifier when it
// has one. The returned identifier is the one written.
func (p *Projector) UpsertEvent(ctx context.Context, job domain.Job, team domain.Team) (string, error) {
	uid := job.EventID()
	if uid == "" {
		uid = p.newUID(job.ID)
	}

	if strings.TrimSpace(team.ExecutionPath) == "" {
		return "", apperr.Calendar(fmt.Sprintf("team %q has no execution calendar", team.Name), nil).
			WithDetails(map[string]interface{}{"job_id": job.ID, "team_id": team.ID})
	}

	path := EventPath(team, uid)
	headers := http.Header{}
	headers.Set("Content-Type", "text/calendar; charset=utf-8")

	resp, err := p.client.Do(ctx, http.MethodPut, path, headers, []byte(Render(job, uid)))
	if err != nil {
		return "", apperr.Calendar("calendar write failed", err).
			WithDetails(map[string]interface{}{"job_id": job.ID, "path": path})
	}
	if !resp.OK() {
		return "", apperr.Calendar(fmt.Sprintf("calendar write failed with status %d", resp.StatusCode), nil).
			WithDetails(map[string]interface{}{"job_id": job.ID, "path": path, "status": resp.StatusCode})
	}

	return uid, nil
}

// EventPath is the location of an event inside the team's execution calendar.
func EventPath(team domain.Team, uid string) string {
	return team.ExecutionPath + uid + ".ics"
}

// Render builds the ICS document for job under uid.
func Render(job domain.Job, uid string) string {
	return BuildICS(Event{
		UID:         uid,
		Start:       job.Range.Start,
		End:         job.Range.End,
		Summary:     Summary(job),
		Description: Description(job),
		Location:    job.Address.City,
		URL:         job.PublicURL,
	})
}

// Summary renders "<emoji> <city> | <delivery note> | <customer>".
func Summary(job domain.Job) string {
	return fmt.Sprintf("%s %s | %s | %s", job.Status.Emoji(), job.Address.City, job.DeliveryNoteNr, job.CustomerName)
}

// Description renders the fixed-order key/value block shown on the board.
func Description(job domain.Job) string {
	lines := []string{
		"LieferscheinNr: " + job.DeliveryNoteNr,
		"AuftragNr: " + orPlaceholder(job.SalesOrder()),
		"Kunde: " + job.CustomerName,
		"Telefon: " + orPlaceholder(job.Phones.String()),
		"Adresse: " + job.Address.Formatted(),
		"Hinweise: " + orPlaceholder(job.Notes),
		"Job-URL: " + job.PublicURL,
		"Status: " + string(job.Status),
	}
	return strings.Join(lines, "\n")
}

func orPlaceholder(s string) string {
	if strings.TrimSpace(s) == "" {
		return placeholder
	}
	return s
}
