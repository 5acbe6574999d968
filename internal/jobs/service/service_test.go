package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"sgjobs_backend/internal/bexio"
	"sgjobs_backend/internal/caldav"
	"sgjobs_backend/internal/jobs/domain"
	"sgjobs_backend/internal/jobs/repository"
	"sgjobs_backend/internal/jobs/transport"
	"sgjobs_backend/internal/token"
	"sgjobs_backend/platform/apperr"
	"sgjobs_backend/platform/config"
	"sgjobs_backend/platform/logger"

	"github.com/shopspring/decimal"
)

// --- fakes -----------------------------------------------------------------

type memoryStore struct {
	mu     sync.Mutex
	nextID int64
	jobs   map[int64]*domain.Job
	audit  []domain.AuditEntry
}

func newMemoryStore() *memoryStore {
	return &memoryStore{nextID: 1, jobs: make(map[int64]*domain.Job)}
}

func cloneJob(j *domain.Job) *domain.Job {
	c := *j
	c.Phones = append(domain.PhoneList(nil), j.Phones...)
	c.Positions = append([]domain.Position(nil), j.Positions...)
	if j.EventUID != nil {
		v := *j.EventUID
		c.EventUID = &v
	}
	if j.TokenHash != nil {
		v := *j.TokenHash
		c.TokenHash = &v
	}
	return &c
}

func (m *memoryStore) CreateWithPositions(_ context.Context, job *domain.Job) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job.ID = m.nextID
	m.nextID++
	for i := range job.Positions {
		job.Positions[i].ID = int64(i + 1)
		job.Positions[i].JobID = job.ID
	}
	m.jobs[job.ID] = cloneJob(job)
	return job.ID, nil
}

func (m *memoryStore) GetByID(_ context.Context, id int64) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, apperr.NotFound("job not found")
	}
	return cloneJob(j), nil
}

func (m *memoryStore) UpdateStatus(_ context.Context, id int64, status domain.Status, actor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return apperr.NotFound("job not found")
	}
	if !j.Status.CanTransitionTo(status) {
		return apperr.Conflict("backward transition")
	}
	j.Status = status
	j.UpdatedBy = actor
	return nil
}

func (m *memoryStore) UpdateNotes(_ context.Context, id int64, notes string, actor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return apperr.NotFound("job not found")
	}
	j.Notes = notes
	j.UpdatedBy = actor
	return nil
}

func (m *memoryStore) SaveProjection(_ context.Context, id int64, update repository.ProjectionUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return apperr.NotFound("job not found")
	}
	if update.EventUID != nil {
		v := *update.EventUID
		j.EventUID = &v
	}
	if update.TokenHash != nil {
		v := *update.TokenHash
		j.TokenHash = &v
	}
	if update.PublicURL != nil {
		j.PublicURL = *update.PublicURL
	}
	return nil
}

func (m *memoryStore) ListByStatuses(_ context.Context, statuses []domain.Status) ([]domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Job, 0)
	for id := int64(1); id < m.nextID; id++ {
		j, ok := m.jobs[id]
		if !ok {
			continue
		}
		for _, s := range statuses {
			if j.Status == s {
				out = append(out, *cloneJob(j))
				break
			}
		}
	}
	return out, nil
}

func (m *memoryStore) ClassifyPosition(_ context.Context, jobID, positionID int64, workType domain.WorkType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return apperr.NotFound("position not found")
	}
	for i := range j.Positions {
		if j.Positions[i].ID == positionID {
			j.Positions[i].WorkType = workType
			return nil
		}
	}
	return apperr.NotFound("position not found")
}

func (m *memoryStore) AppendAudit(_ context.Context, entry domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = int64(len(m.audit) + 1)
	m.audit = append(m.audit, entry)
	return nil
}

func (m *memoryStore) ListAudit(_ context.Context, jobID int64) ([]domain.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.AuditEntry, 0)
	for _, e := range m.audit {
		if e.JobID == jobID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memoryStore) job(id int64) *domain.Job {
	j, _ := m.GetByID(context.Background(), id)
	return j
}

type staticTeams map[int64]domain.Team

func (t staticTeams) GetByID(_ context.Context, id int64) (*domain.Team, error) {
	team, ok := t[id]
	if !ok {
		return nil, apperr.NotFound("team not found")
	}
	return &team, nil
}

type fakeERP struct {
	note      bexio.DeliveryNote
	noteErr   error
	positions []bexio.Position
	comments  []string
}

func (f *fakeERP) GetDeliveryNote(_ context.Context, documentNr string) (bexio.DeliveryNote, error) {
	if f.noteErr != nil {
		return bexio.DeliveryNote{}, f.noteErr
	}
	return f.note, nil
}

func (f *fakeERP) GetPositions(_ context.Context, _ int64) ([]bexio.Position, error) {
	return f.positions, nil
}

func (f *fakeERP) AppendComment(_ context.Context, _ int64, text string) error {
	f.comments = append(f.comments, text)
	return nil
}

type calendarRequester struct {
	mu     sync.Mutex
	fail   bool
	bodies map[string]string
	puts   int
}

func (c *calendarRequester) Do(_ context.Context, _ string, path string, _ http.Header, body []byte) (*caldav.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return nil, errors.New("dial tcp: connection refused")
	}
	if c.bodies == nil {
		c.bodies = make(map[string]string)
	}
	c.bodies[path] = string(body)
	c.puts++
	return &caldav.Response{StatusCode: http.StatusCreated}, nil
}

func (c *calendarRequester) body(path string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bodies[path]
}

type countingRetrier struct {
	jobs []int64
}

func (r *countingRetrier) EnqueueReproject(_ context.Context, jobID int64) error {
	r.jobs = append(r.jobs, jobID)
	return nil
}

type testConfig struct{}

func (testConfig) GetAppBaseURL() string             { return "https://jobs.example.ch/" }
func (testConfig) GetDefaultTimezone() string        { return "Europe/Zurich" }
func (testConfig) GetTeams() []config.TeamDefinition { return nil }
func (testConfig) GetInstallerTokenSecret() string   { return "test-secret-with-enough-entropy" }
func (testConfig) GetInstallerTokenExpiryDays() int  { return 14 }

type fixture struct {
	svc      *Service
	store    *memoryStore
	erp      *fakeERP
	calendar *calendarRequester
	retrier  *countingRetrier
	tokens   *token.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	tokens, err := token.New(testConfig{})
	if err != nil {
		t.Fatalf("token service: %v", err)
	}

	f := &fixture{
		store: newMemoryStore(),
		erp: &fakeERP{
			note: bexio.DeliveryNote{
				ID:           501,
				DocumentNr:   "RS-1001",
				CustomerName: "Huber AG",
				DeliveryAddress: bexio.Address{
					Street: "Bahnhofstrasse 1", Zip: "8001", City: "Zürich", Country: "CH",
				},
				Phones:       []string{"044 668 18 00"},
				SalesOrderNr: "AU-77",
			},
			positions: []bexio.Position{
				{ExternalID: 2, Index: 1, Title: "Waschmaschine", Quantity: decimal.NewFromInt(1), Unit: "Stk"},
				{ExternalID: 1, Index: 2, Title: "Montage", Quantity: decimal.RequireFromString("1.5"), Unit: "h"},
			},
		},
		calendar: &calendarRequester{},
		retrier:  &countingRetrier{},
		tokens:   tokens,
	}

	teams := staticTeams{7: {ID: 7, Name: "Team Nord", ExecutionPath: "/cal/nord/exec/"}}
	projector := caldav.NewProjector(f.calendar, caldav.WithUIDGenerator(func(jobID int64) string {
		return "sgjobs-test-uid"
	}))
	f.svc = New(f.store, teams, f.erp, projector, tokens, testConfig{}, logger.Discard())
	f.svc.SetRetrier(f.retrier)
	return f
}

func createRequest() transport.CreateJobRequest {
	return transport.CreateJobRequest{
		DeliveryNoteNr: "RS-1001",
		TeamID:         7,
		StartsAt:       "2026-03-02T08:00",
		EndsAt:         "2026-03-02T10:30",
	}
}

func tokenFromURL(t *testing.T, publicURL string) string {
	t.Helper()
	const prefix = "https://jobs.example.ch/jobs/"
	if !strings.HasPrefix(publicURL, prefix) {
		t.Fatalf("unexpected public url %q", publicURL)
	}
	return strings.TrimPrefix(publicURL, prefix)
}

// --- tests -----------------------------------------------------------------

func TestCreateJobPersistsProjectsAndLinks(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.CreateJob(context.Background(), createRequest(), "dispatcher:12")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.JobID != 1 || res.CalDAVEventUID != "sgjobs-test-uid" {
		t.Fatalf("unexpected result %+v", res)
	}

	job := f.store.job(res.JobID)
	wantStart := time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	if !job.Range.Start.Equal(wantStart) || !job.Range.End.Equal(wantEnd) {
		t.Fatalf("unexpected range %s - %s", job.Range.Start, job.Range.End)
	}
	if job.Timezone != "Europe/Zurich" || job.Status != domain.StatusOpen {
		t.Fatalf("unexpected job %+v", job)
	}
	if job.SalesOrder() != "AU-77" || job.Phones.String() != "+41446681800" {
		t.Fatalf("unexpected sales order/phones: %q %q", job.SalesOrder(), job.Phones.String())
	}
	if len(job.Positions) != 2 || job.Positions[0].ExternalID != 2 || job.Positions[0].Sort != 0 || job.Positions[1].Sort != 1 {
		t.Fatalf("positions not stored in delivery note order: %+v", job.Positions)
	}
	if job.Positions[1].WorkType != domain.WorkTypeUnknown {
		t.Fatalf("expected unknown work type, got %q", job.Positions[1].WorkType)
	}

	raw := tokenFromURL(t, res.PublicJobURL)
	if job.TokenHash == nil || *job.TokenHash != token.HashSHA256(raw) {
		t.Fatalf("stored token hash does not match issued token")
	}
	if job.EventID() != "sgjobs-test-uid" || job.PublicURL != res.PublicJobURL {
		t.Fatalf("projection not saved: %+v", job)
	}

	ics := f.calendar.body("/cal/nord/exec/sgjobs-test-uid.ics")
	if !strings.Contains(ics, "SUMMARY:🔴 Zürich | RS-1001 | Huber AG") {
		t.Fatalf("unexpected calendar document:\n%s", ics)
	}
}

func TestCreateJobBoundsUpstreamText(t *testing.T) {
	f := newFixture(t)
	longTitle := "<p>" + strings.Repeat("Einbau Kühlschrank inkl. Anschluss ", 20) + "</p>"
	f.erp.positions = []bexio.Position{
		{ExternalID: 1, Index: 1, ArticleNr: "  ART-1 ", Title: longTitle, Quantity: decimal.NewFromInt(12), Unit: "Quadratmeter (m2)"},
	}
	f.erp.note.CustomerName = strings.Repeat("Überbauung ", 30)

	res, err := f.svc.CreateJob(context.Background(), createRequest(), "dispatcher:12")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	job := f.store.job(res.JobID)
	pos := job.Positions[0]
	if strings.Contains(pos.Title, "<") || !strings.HasPrefix(pos.Title, "Einbau Kühlschrank") {
		t.Fatalf("expected plain title, got %q", pos.Title)
	}
	if n := utf8.RuneCountInString(pos.Title); n > domain.MaxTitleLen {
		t.Fatalf("title has %d runes, column allows %d", n, domain.MaxTitleLen)
	}
	if n := utf8.RuneCountInString(pos.Unit); n > domain.MaxUnitLen {
		t.Fatalf("unit %q has %d runes, column allows %d", pos.Unit, n, domain.MaxUnitLen)
	}
	if pos.ArticleNr != "ART-1" {
		t.Fatalf("expected trimmed article number, got %q", pos.ArticleNr)
	}
	if n := utf8.RuneCountInString(job.CustomerName); n > domain.MaxCustomerNameLen {
		t.Fatalf("customer name has %d runes, column allows %d", n, domain.MaxCustomerNameLen)
	}
}

func TestCreateJobUsesPayloadPhonesWhenNoteHasNone(t *testing.T) {
	f := newFixture(t)
	f.erp.note.Phones = nil

	req := createRequest()
	req.Phones = []string{"079 123 45 67"}
	res, err := f.svc.CreateJob(context.Background(), req, "dispatcher:12")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := f.store.job(res.JobID).Phones.String(); got != "+41791234567" {
		t.Fatalf("unexpected phones %q", got)
	}
}

func TestCreateJobWithoutPhonesPersistsNothing(t *testing.T) {
	f := newFixture(t)
	f.erp.note.Phones = nil

	_, err := f.svc.CreateJob(context.Background(), createRequest(), "dispatcher:12")
	if !apperr.Is(err, apperr.KindMissingPhone) {
		t.Fatalf("expected missing phone error, got %v", err)
	}
	if len(f.store.jobs) != 0 {
		t.Fatalf("expected no job rows, got %d", len(f.store.jobs))
	}
}

func TestCreateJobAbortsOnLookupFailures(t *testing.T) {
	f := newFixture(t)
	f.erp.noteErr = apperr.NotFound("delivery note RS-404 not found in bexio")

	if _, err := f.svc.CreateJob(context.Background(), createRequest(), "dispatcher:12"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	f.erp.noteErr = nil
	req := createRequest()
	req.TeamID = 99
	if _, err := f.svc.CreateJob(context.Background(), req, "dispatcher:12"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected unknown team to fail, got %v", err)
	}

	req = createRequest()
	req.EndsAt = "2026-03-02T07:00"
	if _, err := f.svc.CreateJob(context.Background(), req, "dispatcher:12"); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for inverted range, got %v", err)
	}

	if len(f.store.jobs) != 0 {
		t.Fatalf("expected no job rows, got %d", len(f.store.jobs))
	}
}

func TestCreateJobKeepsJobWhenCalendarFails(t *testing.T) {
	f := newFixture(t)
	f.calendar.fail = true

	res, err := f.svc.CreateJob(context.Background(), createRequest(), "dispatcher:12")
	if !apperr.Is(err, apperr.KindCalendar) {
		t.Fatalf("expected calendar error, got %v", err)
	}

	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *apperr.Error")
	}
	details, _ := appErr.Details.(map[string]interface{})
	if details["job_id"] != res.JobID || res.JobID == 0 {
		t.Fatalf("expected job id in details, got %v (result %+v)", details, res)
	}

	job := f.store.job(res.JobID)
	if job == nil || job.TokenHash == nil || job.EventUID != nil {
		t.Fatalf("expected persisted job with link and without event, got %+v", job)
	}
	if len(f.retrier.jobs) != 1 || f.retrier.jobs[0] != res.JobID {
		t.Fatalf("expected re-projection to be scheduled, got %v", f.retrier.jobs)
	}
}

func TestMarkDoneUpdatesSummaryNotesAndAudit(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.CreateJob(context.Background(), createRequest(), "dispatcher:12")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := f.svc.MarkDone(context.Background(), res.JobID, "Alles montiert,  Kunde zufrieden", "installer:job:1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	job := f.store.job(res.JobID)
	if job.Status != domain.StatusDone || job.Notes != "Alles montiert, Kunde zufrieden" {
		t.Fatalf("unexpected job state %s %q", job.Status, job.Notes)
	}
	ics := f.calendar.body("/cal/nord/exec/sgjobs-test-uid.ics")
	if !strings.Contains(ics, "SUMMARY:✅ Zürich | RS-1001 | Huber AG") {
		t.Fatalf("summary not updated:\n%s", ics)
	}
	if len(f.erp.comments) != 1 || f.erp.comments[0] != "Alles montiert, Kunde zufrieden" {
		t.Fatalf("expected comment mirrored to bexio, got %v", f.erp.comments)
	}

	audit, err := f.svc.ListAudit(context.Background(), res.JobID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(audit) != 1 || audit[0].Action != "done" || audit[0].Actor != "installer:job:1" || audit[0].Payload["comment"] != "Alles montiert, Kunde zufrieden" {
		t.Fatalf("unexpected audit %+v", audit)
	}
}

func TestProjectionFailureDoesNotRevertStatus(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.CreateJob(context.Background(), createRequest(), "dispatcher:12")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f.calendar.fail = true
	err = f.svc.MarkBillable(context.Background(), res.JobID, "dispatcher:12")
	if !apperr.Is(err, apperr.KindCalendar) {
		t.Fatalf("expected calendar error, got %v", err)
	}
	if got := f.store.job(res.JobID).Status; got != domain.StatusBillable {
		t.Fatalf("expected billable to be committed, got %s", got)
	}
	if len(f.store.audit) != 1 {
		t.Fatalf("expected audit entry despite projection failure, got %d", len(f.store.audit))
	}
}

func TestMissingTeamAfterCommitIsCalendarError(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.CreateJob(context.Background(), createRequest(), "dispatcher:12")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	projector := caldav.NewProjector(f.calendar)
	orphaned := New(f.store, staticTeams{}, f.erp, projector, f.tokens, testConfig{}, logger.Discard())
	orphaned.SetRetrier(f.retrier)

	err = orphaned.MarkDone(context.Background(), res.JobID, "Gerät montiert", "installer:job:1")
	if !apperr.Is(err, apperr.KindCalendar) {
		t.Fatalf("expected calendar error, got %v", err)
	}
	if got := f.store.job(res.JobID).Status; got != domain.StatusDone {
		t.Fatalf("expected done to be committed, got %s", got)
	}
	if len(f.erp.comments) != 1 || f.erp.comments[0] != "Gerät montiert" {
		t.Fatalf("expected comment mirrored to delivery note, got %v", f.erp.comments)
	}
	if len(f.retrier.jobs) != 1 || f.retrier.jobs[0] != res.JobID {
		t.Fatalf("expected a re-projection to be scheduled, got %v", f.retrier.jobs)
	}
	if len(f.store.audit) != 1 {
		t.Fatalf("expected audit entry, got %d", len(f.store.audit))
	}
}

func TestPaidJobsNeverMove(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.CreateJob(context.Background(), createRequest(), "dispatcher:12")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.svc.MarkPaid(context.Background(), res.JobID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.store.audit[0].Actor != SystemActor {
		t.Fatalf("expected system actor, got %q", f.store.audit[0].Actor)
	}

	if err := f.svc.MarkDone(context.Background(), res.JobID, "spät", "installer:job:1"); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict for done after paid, got %v", err)
	}
	if err := f.svc.MarkBillable(context.Background(), res.JobID, "dispatcher:12"); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict for billable after paid, got %v", err)
	}
	if err := f.svc.MarkStatus(context.Background(), res.JobID, domain.StatusOpen, nil); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict for open after paid, got %v", err)
	}

	job := f.store.job(res.JobID)
	if job.Status != domain.StatusPaid || job.Notes != "" {
		t.Fatalf("paid job changed: %s %q", job.Status, job.Notes)
	}
}

func TestMarkBillableBeforeDoneIsAllowed(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.CreateJob(context.Background(), createRequest(), "dispatcher:12")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.svc.MarkBillable(context.Background(), res.JobID, "dispatcher:12"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := f.store.job(res.JobID).Status; got != domain.StatusBillable {
		t.Fatalf("expected billable, got %s", got)
	}
}

func TestGetJobByTokenRejectsSupersededLinks(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.CreateJob(context.Background(), createRequest(), "dispatcher:12")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first := tokenFromURL(t, res.PublicJobURL)

	sheet, err := f.svc.GetJobByToken(context.Background(), first)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sheet.ID != res.JobID || sheet.LocalStart != "02.03.2026 08:00" {
		t.Fatalf("unexpected sheet %+v", sheet)
	}

	rotated, err := f.svc.RotateLink(context.Background(), res.JobID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.svc.GetJobByToken(context.Background(), first); !apperr.Is(err, apperr.KindInvalidToken) {
		t.Fatalf("expected superseded token to fail, got %v", err)
	}

	jobID, err := f.svc.AuthenticateInstaller(context.Background(), tokenFromURL(t, rotated))
	if err != nil || jobID != res.JobID {
		t.Fatalf("expected rotated token to authenticate job %d, got %d (%v)", res.JobID, jobID, err)
	}
	unfolded := strings.ReplaceAll(f.calendar.body("/cal/nord/exec/sgjobs-test-uid.ics"), "\r\n ", "")
	if !strings.Contains(unfolded, "\r\nURL:"+rotated+"\r\n") {
		t.Fatalf("calendar not updated with rotated link")
	}

	if _, err := f.svc.GetJobByToken(context.Background(), "not-a-token"); !apperr.Is(err, apperr.KindInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
}

func TestClassifyPosition(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.CreateJob(context.Background(), createRequest(), "dispatcher:12")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := f.svc.ClassifyPosition(context.Background(), res.JobID, 1, "teleport"); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := f.svc.ClassifyPosition(context.Background(), res.JobID, 1, "installation"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := f.store.job(res.JobID).Positions[0].WorkType; got != domain.WorkTypeInstallation {
		t.Fatalf("expected installation, got %s", got)
	}
}

func TestReprojectSavesGeneratedUID(t *testing.T) {
	f := newFixture(t)
	f.calendar.fail = true
	res, _ := f.svc.CreateJob(context.Background(), createRequest(), "dispatcher:12")

	f.calendar.fail = false
	uid, err := f.svc.Reproject(context.Background(), res.JobID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if uid != "sgjobs-test-uid" || f.store.job(res.JobID).EventID() != uid {
		t.Fatalf("expected uid to be saved, got %q", uid)
	}
}
