package service

import (
	"context"
	"fmt"
	"strings"

	"sgjobs_backend/internal/jobs/domain"
	"sgjobs_backend/internal/jobs/repository"
	"sgjobs_backend/internal/jobs/transport"
	"sgjobs_backend/internal/token"
	"sgjobs_backend/platform/apperr"
	"sgjobs_backend/platform/sanitize"
)

// SystemActor attributes changes made by background processes.
const SystemActor = "system"

// MarkStatus moves a job to status. The status is committed first; the
// calendar is re-projected afterwards and an audit entry is appended. A
// projection failure is returned but never reverts the committed status.
func (s *Service) MarkStatus(ctx context.Context, jobID int64, status domain.Status, meta map[string]interface{}) error {
	if !status.Valid() {
		return apperr.Validation(fmt.Sprintf("unknown status %q", status))
	}

	job, err := s.store.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if !job.Status.CanTransitionTo(status) {
		return apperr.Conflict(fmt.Sprintf("job %d cannot move from %s to %s", jobID, job.Status, status)).
			WithDetails(map[string]interface{}{"current": string(job.Status), "requested": string(status)})
	}

	payload := make(map[string]interface{}, len(meta)+1)
	for k, v := range meta {
		payload[k] = v
	}
	actor, _ := payload["actor"].(string)
	if strings.TrimSpace(actor) == "" {
		actor = "unknown"
		payload["actor"] = actor
	}

	if err := s.store.UpdateStatus(ctx, jobID, status, actor); err != nil {
		return err
	}
	job.Status = status
	job.UpdatedBy = actor

	var projectionErr error
	team, err := s.projectionTeam(ctx, job)
	if err != nil {
		projectionErr = err
	} else {
		_, projectionErr = s.project(ctx, job, team)
	}

	if err := s.store.AppendAudit(ctx, domain.AuditEntry{
		JobID:   jobID,
		Actor:   actor,
		Action:  string(status),
		Payload: payload,
	}); err != nil {
		return err
	}

	s.log.WithContext(ctx).Info("job status changed", "job_id", jobID, "status", string(status), "actor", actor)
	return projectionErr
}

// MarkDone records the installer's comment as the job notes and marks the job
// done. A non-empty comment is mirrored onto the delivery note on a best
// effort basis.
func (s *Service) MarkDone(ctx context.Context, jobID int64, comment string, actor string) error {
	job, err := s.store.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if !job.Status.CanTransitionTo(domain.StatusDone) {
		return apperr.Conflict(fmt.Sprintf("job %d cannot move from %s to %s", jobID, job.Status, domain.StatusDone))
	}

	comment = sanitize.Text(comment)
	if comment != "" {
		if err := s.store.UpdateNotes(ctx, jobID, comment, actor); err != nil {
			return err
		}
	}

	statusErr := s.MarkStatus(ctx, jobID, domain.StatusDone, map[string]interface{}{
		"actor":   actor,
		"comment": comment,
	})
	if statusErr != nil && !apperr.Is(statusErr, apperr.KindCalendar) {
		return statusErr
	}

	if comment != "" {
		if err := s.erp.AppendComment(ctx, job.DeliveryNoteID, comment); err != nil {
			s.log.WithContext(ctx).Warn("failed to mirror comment to delivery note",
				"job_id", jobID, "delivery_note_id", job.DeliveryNoteID, "error", err)
		}
	}

	return statusErr
}

// MarkBillable marks a job billable on behalf of a dispatcher. Billing may
// precede the installer's completion.
func (s *Service) MarkBillable(ctx context.Context, jobID int64, actor string) error {
	return s.MarkStatus(ctx, jobID, domain.StatusBillable, map[string]interface{}{"actor": actor})
}

// MarkPaid marks a job paid. Only the payment sweep calls this.
func (s *Service) MarkPaid(ctx context.Context, jobID int64) error {
	return s.MarkStatus(ctx, jobID, domain.StatusPaid, map[string]interface{}{"actor": SystemActor})
}

// ListAwaitingPayment returns the jobs the payment sweep checks.
func (s *Service) ListAwaitingPayment(ctx context.Context) ([]domain.Job, error) {
	return s.store.ListByStatuses(ctx, domain.AwaitingPayment())
}

// GetJobByToken returns the job sheet behind a magic link.
func (s *Service) GetJobByToken(ctx context.Context, rawToken string) (transport.JobSheetResponse, error) {
	job, err := s.resolveToken(ctx, rawToken)
	if err != nil {
		return transport.JobSheetResponse{}, err
	}
	return transport.NewJobSheetResponse(job), nil
}

// AuthenticateInstaller resolves a magic-link token to the job it grants
// access to.
func (s *Service) AuthenticateInstaller(ctx context.Context, rawToken string) (int64, error) {
	job, err := s.resolveToken(ctx, rawToken)
	if err != nil {
		return 0, err
	}
	return job.ID, nil
}

// RotateLink issues a new installer link for a job. The previous link stops
// working and the calendar event is updated with the new URL.
func (s *Service) RotateLink(ctx context.Context, jobID int64) (string, error) {
	job, err := s.store.GetByID(ctx, jobID)
	if err != nil {
		return "", err
	}

	rawToken, err := s.tokens.IssueForJob(jobID)
	if err != nil {
		return "", err
	}
	hash := token.HashSHA256(rawToken)
	publicURL := s.PublicURL(rawToken)
	if err := s.store.SaveProjection(ctx, jobID, repository.ProjectionUpdate{TokenHash: &hash, PublicURL: &publicURL}); err != nil {
		return "", err
	}
	job.TokenHash = &hash
	job.PublicURL = publicURL

	s.log.WithContext(ctx).TokenEvent("rotate", jobID, true, "")

	team, err := s.projectionTeam(ctx, job)
	if err != nil {
		return publicURL, withJobDetails(err, jobID, publicURL)
	}
	if _, err := s.project(ctx, job, team); err != nil {
		return publicURL, withJobDetails(err, jobID, publicURL)
	}
	return publicURL, nil
}

// resolveToken validates the token and rejects it unless it is the link
// currently stored on the job.
func (s *Service) resolveToken(ctx context.Context, rawToken string) (*domain.Job, error) {
	log := s.log.WithContext(ctx)

	claims, err := s.tokens.Validate(rawToken)
	if err != nil {
		log.TokenEvent("validate", 0, false, err.Error())
		return nil, err
	}

	jobID, ok := claims.JobID()
	if !ok {
		log.TokenEvent("validate", 0, false, "token is not bound to a job")
		return nil, apperr.InvalidToken("token is not bound to a job", nil)
	}

	job, err := s.store.GetByID(ctx, jobID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			log.TokenEvent("validate", jobID, false, "job not found")
			return nil, apperr.InvalidToken("token refers to an unknown job", err)
		}
		return nil, err
	}

	if job.TokenHash == nil || *job.TokenHash != token.HashSHA256(rawToken) {
		log.TokenEvent("validate", jobID, false, "token superseded")
		return nil, apperr.InvalidToken("token has been superseded", nil)
	}

	log.TokenEvent("validate", jobID, true, "")
	return job, nil
}

// projectionTeam resolves the job's team after a change has been committed. A
// failed lookup is a projection failure: it is reported as a calendar error
// and a retry is scheduled.
func (s *Service) projectionTeam(ctx context.Context, job *domain.Job) (*domain.Team, error) {
	team, err := s.teams.GetByID(ctx, job.TeamID)
	if err == nil {
		return team, nil
	}

	calErr := apperr.Calendar(fmt.Sprintf("team %d unavailable for calendar projection", job.TeamID), err).
		WithDetails(map[string]interface{}{"job_id": job.ID, "team_id": job.TeamID})
	s.log.WithContext(ctx).ProjectionFailed(job.ID, calErr)
	s.scheduleRetry(ctx, job.ID)
	return nil, calErr
}
