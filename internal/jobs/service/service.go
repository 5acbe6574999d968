// Package service orchestrates the job lifecycle across the record store,
// bexio, the team calendars and installer tokens.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"sgjobs_backend/internal/adapters/storage"
	"sgjobs_backend/internal/bexio"
	"sgjobs_backend/internal/jobs/domain"
	"sgjobs_backend/internal/jobs/repository"
	"sgjobs_backend/internal/jobs/transport"
	"sgjobs_backend/internal/token"
	"sgjobs_backend/platform/apperr"
	"sgjobs_backend/platform/config"
	"sgjobs_backend/platform/logger"
	"sgjobs_backend/platform/sanitize"
)

// Store is the job record store.
type Store interface {
	CreateWithPositions(ctx context.Context, job *domain.Job) (int64, error)
	GetByID(ctx context.Context, id int64) (*domain.Job, error)
	UpdateStatus(ctx context.Context, id int64, status domain.Status, actor string) error
	UpdateNotes(ctx context.Context, id int64, notes string, actor string) error
	SaveProjection(ctx context.Context, id int64, update repository.ProjectionUpdate) error
	ListByStatuses(ctx context.Context, statuses []domain.Status) ([]domain.Job, error)
	ClassifyPosition(ctx context.Context, jobID, positionID int64, workType domain.WorkType) error
	AppendAudit(ctx context.Context, entry domain.AuditEntry) error
	ListAudit(ctx context.Context, jobID int64) ([]domain.AuditEntry, error)
}

// TeamReader resolves the team a job is assigned to.
type TeamReader interface {
	GetByID(ctx context.Context, id int64) (*domain.Team, error)
}

// ERP is the subset of the bexio gateway the lifecycle needs.
type ERP interface {
	GetDeliveryNote(ctx context.Context, documentNr string) (bexio.DeliveryNote, error)
	GetPositions(ctx context.Context, deliveryNoteID int64) ([]bexio.Position, error)
	AppendComment(ctx context.Context, deliveryNoteID int64, text string) error
}

// Projector writes a job's calendar event.
type Projector interface {
	UpsertEvent(ctx context.Context, job domain.Job, team domain.Team) (string, error)
}

// Tokens issues and validates installer tokens.
type Tokens interface {
	IssueForJob(jobID int64) (string, error)
	Validate(raw string) (token.Claims, error)
}

// ProjectionRetrier schedules an out-of-band re-projection.
type ProjectionRetrier interface {
	EnqueueReproject(ctx context.Context, jobID int64) error
}

// Service provides job lifecycle operations.
type Service struct {
	store        Store
	teams        TeamReader
	erp          ERP
	projector    Projector
	tokens       Tokens
	retrier      ProjectionRetrier
	uploads      storage.UploadSigner
	uploadBucket string
	log          *logger.Logger
	baseURL      string
	defaultTZ    string
}

// New creates a new jobs service.
func New(store Store, teams TeamReader, erp ERP, projector Projector, tokens Tokens, cfg config.JobsConfig, log *logger.Logger) *Service {
	defaultTZ := strings.TrimSpace(cfg.GetDefaultTimezone())
	if defaultTZ == "" {
		defaultTZ = domain.DefaultTimezone
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Service{
		store:     store,
		teams:     teams,
		erp:       erp,
		projector: projector,
		tokens:    tokens,
		log:       log,
		baseURL:   strings.TrimRight(cfg.GetAppBaseURL(), "/"),
		defaultTZ: defaultTZ,
	}
}

// SetRetrier enables out-of-band re-projection after calendar failures.
func (s *Service) SetRetrier(r ProjectionRetrier) {
	s.retrier = r
}

// PublicURL is the installer link for a raw token.
func (s *Service) PublicURL(rawToken string) string {
	return s.baseURL + "/jobs/" + url.PathEscape(rawToken)
}

// CreateJob pulls a delivery note in as a new job, issues its installer link
// and projects it onto the team calendar.
//
// Lookups fail before anything is persisted. Once the job row exists a
// calendar failure is returned as a calendar error carrying the job id; the
// job and its link stay in place and the projection is retried out of band.
func (s *Service) CreateJob(ctx context.Context, req transport.CreateJobRequest, actor string) (transport.CreateJobResponse, error) {
	team, err := s.teams.GetByID(ctx, req.TeamID)
	if err != nil {
		return transport.CreateJobResponse{}, err
	}

	note, err := s.erp.GetDeliveryNote(ctx, strings.TrimSpace(req.DeliveryNoteNr))
	if err != nil {
		return transport.CreateJobResponse{}, err
	}
	positions, err := s.erp.GetPositions(ctx, note.ID)
	if err != nil {
		return transport.CreateJobResponse{}, err
	}

	phones := domain.NewPhoneList(note.Phones)
	if len(phones) == 0 {
		phones = domain.NewPhoneList(req.Phones)
	}
	if len(phones) == 0 {
		return transport.CreateJobResponse{}, apperr.MissingPhone(
			fmt.Sprintf("delivery note %s has no phone number and none was supplied", note.DocumentNr))
	}

	tz := strings.TrimSpace(req.Timezone)
	if tz == "" {
		tz = s.defaultTZ
	}
	timeRange, err := domain.ParseTimeRange(req.StartsAt, req.EndsAt, tz)
	if err != nil {
		return transport.CreateJobResponse{}, err
	}

	job := buildJob(note, positions, req, team.ID, timeRange, tz, phones, actor)
	jobID, err := s.store.CreateWithPositions(ctx, job)
	if err != nil {
		return transport.CreateJobResponse{}, err
	}

	rawToken, err := s.tokens.IssueForJob(jobID)
	if err != nil {
		return transport.CreateJobResponse{}, err
	}
	hash := token.HashSHA256(rawToken)
	publicURL := s.PublicURL(rawToken)
	if err := s.store.SaveProjection(ctx, jobID, repository.ProjectionUpdate{TokenHash: &hash, PublicURL: &publicURL}); err != nil {
		return transport.CreateJobResponse{}, err
	}
	job.TokenHash = &hash
	job.PublicURL = publicURL

	result := transport.CreateJobResponse{JobID: jobID, PublicJobURL: publicURL}

	uid, err := s.project(ctx, job, team)
	if err != nil {
		return result, withJobDetails(err, jobID, publicURL)
	}
	result.CalDAVEventUID = uid

	s.log.WithContext(ctx).Info("job created", "job_id", jobID, "delivery_note_nr", job.DeliveryNoteNr, "team_id", team.ID)
	return result, nil
}

func buildJob(note bexio.DeliveryNote, positions []bexio.Position, req transport.CreateJobRequest, teamID int64, timeRange domain.TimeRange, tz string, phones domain.PhoneList, actor string) *domain.Job {
	city := sanitize.Field(req.LocationCity, domain.MaxCityLen)
	if city == "" {
		city = sanitize.Field(note.DeliveryAddress.City, domain.MaxCityLen)
	}
	country := sanitize.Field(note.DeliveryAddress.Country, domain.MaxCountryLen)
	if country == "" {
		country = "CH"
	}

	var salesOrder *string
	if so := strings.TrimSpace(note.SalesOrderNr); so != "" {
		salesOrder = &so
	}

	job := &domain.Job{
		DeliveryNoteID: note.ID,
		DeliveryNoteNr: note.DocumentNr,
		SalesOrderNr:   salesOrder,
		TeamID:         teamID,
		Range:          timeRange,
		Timezone:       tz,
		Address: domain.Address{
			Street:  sanitize.Line(note.DeliveryAddress.Street),
			Zip:     sanitize.Field(note.DeliveryAddress.Zip, domain.MaxZipLen),
			City:    city,
			Country: country,
		},
		CustomerName: sanitize.Field(note.CustomerName, domain.MaxCustomerNameLen),
		Phones:       phones,
		Status:       domain.StatusOpen,
		Notes:        sanitize.Text(req.Notes),
		CreatedBy:    actor,
		UpdatedBy:    actor,
		Positions:    make([]domain.Position, 0, len(positions)),
	}
	for i, p := range positions {
		job.Positions = append(job.Positions, domain.Position{
			ExternalID:  p.ExternalID,
			ArticleNr:   sanitize.Field(p.ArticleNr, domain.MaxArticleNrLen),
			Title:       sanitize.Field(p.Title, domain.MaxTitleLen),
			Description: p.Description,
			Quantity:    p.Quantity,
			Unit:        sanitize.Field(p.Unit, domain.MaxUnitLen),
			WorkType:    domain.WorkTypeUnknown,
			Sort:        i,
		})
	}
	return job
}

// GetJobByID returns the full job view.
func (s *Service) GetJobByID(ctx context.Context, jobID int64) (transport.JobResponse, error) {
	job, err := s.store.GetByID(ctx, jobID)
	if err != nil {
		return transport.JobResponse{}, err
	}
	return transport.NewJobResponse(job), nil
}

// ListAudit returns the job's audit trail.
func (s *Service) ListAudit(ctx context.Context, jobID int64) ([]transport.AuditEntryResponse, error) {
	if _, err := s.store.GetByID(ctx, jobID); err != nil {
		return nil, err
	}
	entries, err := s.store.ListAudit(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return transport.NewAuditResponses(entries), nil
}

// ClassifyPosition sets the work type of one position.
func (s *Service) ClassifyPosition(ctx context.Context, jobID, positionID int64, workType string) error {
	wt := domain.WorkType(workType)
	if !wt.Valid() {
		return apperr.Validation(fmt.Sprintf("unknown work type %q", workType))
	}
	return s.store.ClassifyPosition(ctx, jobID, positionID, wt)
}

// Reproject writes the job's current state to its calendar again.
func (s *Service) Reproject(ctx context.Context, jobID int64) (string, error) {
	job, err := s.store.GetByID(ctx, jobID)
	if err != nil {
		return "", err
	}
	team, err := s.teams.GetByID(ctx, job.TeamID)
	if err != nil {
		return "", err
	}

	uid, err := s.projector.UpsertEvent(ctx, *job, *team)
	if err != nil {
		s.log.WithContext(ctx).ProjectionFailed(jobID, err)
		return "", err
	}
	if uid != job.EventID() {
		if err := s.store.SaveProjection(ctx, jobID, repository.ProjectionUpdate{EventUID: &uid}); err != nil {
			return "", err
		}
	}
	return uid, nil
}

// project writes the event and persists a newly generated identifier. On
// failure the error is logged and a retry is scheduled when possible.
func (s *Service) project(ctx context.Context, job *domain.Job, team *domain.Team) (string, error) {
	uid, err := s.projector.UpsertEvent(ctx, *job, *team)
	if err != nil {
		s.log.WithContext(ctx).ProjectionFailed(job.ID, err)
		s.scheduleRetry(ctx, job.ID)
		return "", err
	}

	if uid != job.EventID() {
		if err := s.store.SaveProjection(ctx, job.ID, repository.ProjectionUpdate{EventUID: &uid}); err != nil {
			return "", err
		}
		job.EventUID = &uid
	}
	return uid, nil
}

func (s *Service) scheduleRetry(ctx context.Context, jobID int64) {
	if s.retrier == nil {
		return
	}
	if err := s.retrier.EnqueueReproject(ctx, jobID); err != nil {
		s.log.WithContext(ctx).Warn("failed to schedule re-projection", "job_id", jobID, "error", err)
	}
}

func withJobDetails(err error, jobID int64, publicURL string) error {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		return err
	}
	details, ok := appErr.Details.(map[string]interface{})
	if !ok {
		details = map[string]interface{}{}
	}
	details["job_id"] = jobID
	details["public_job_url"] = publicURL
	appErr.Details = details
	return err
}
