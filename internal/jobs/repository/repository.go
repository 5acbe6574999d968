package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sgjobs_backend/internal/jobs/domain"
	"sgjobs_backend/platform/apperr"
	"sgjobs_backend/platform/db"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	jobNotFoundMsg      = "job not found"
	positionNotFoundMsg = "position not found"

	jobColumns = `id, delivery_note_id, delivery_note_nr, sales_order_nr, team_id, starts_at, ends_at, tz,
		address_street, address_zip, location_city, address_country, customer_name, phones, status,
		caldav_event_uid, job_token_hash, public_job_url, COALESCE(notes, ''), COALESCE(created_by, ''),
		COALESCE(updated_by, ''), created_at, updated_at`
)

// Repository provides database operations for jobs, positions and the audit trail.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new jobs repository
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ProjectionUpdate holds the derived artifacts written back after projection.
// Nil fields are left untouched.
type ProjectionUpdate struct {
	EventUID  *string
	TokenHash *string
	PublicURL *string
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// CreateWithPositions inserts the job and its positions in one transaction and
// returns the new job id.
func (r *Repository) CreateWithPositions(ctx context.Context, job *domain.Job) (int64, error) {
	var jobID int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		query := `
			INSERT INTO sg_jobs (
				delivery_note_id, delivery_note_nr, sales_order_nr, team_id, starts_at, ends_at, tz,
				address_street, address_zip, location_city, address_country, customer_name, phones,
				status, public_job_url, notes, created_by, updated_by
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $17
			) RETURNING id, created_at, updated_at`

		err := tx.QueryRow(ctx, query,
			job.DeliveryNoteID, job.DeliveryNoteNr, job.SalesOrderNr, job.TeamID,
			job.Range.Start.UTC(), job.Range.End.UTC(), job.Timezone,
			job.Address.Street, job.Address.Zip, job.Address.City, job.Address.Country,
			job.CustomerName, []string(job.Phones), string(job.Status), job.PublicURL,
			nullableText(job.Notes), job.CreatedBy,
		).Scan(&jobID, &job.CreatedAt, &job.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to create job: %w", err)
		}

		batch := &pgx.Batch{}
		for i := range job.Positions {
			p := &job.Positions[i]
			p.JobID = jobID
			if p.WorkType == "" {
				p.WorkType = domain.WorkTypeUnknown
			}
			batch.Queue(`
				INSERT INTO sg_job_positions (
					job_id, bexio_position_id, article_no, title, description, qty, unit, work_type, sort
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
				jobID, p.ExternalID, p.ArticleNr, p.Title, nullableText(p.Description),
				p.Quantity, p.Unit, string(p.WorkType), p.Sort,
			).QueryRow(func(row pgx.Row) error {
				return row.Scan(&p.ID)
			})
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to create job positions: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	job.ID = jobID
	return jobID, nil
}

// GetByID retrieves a job with its positions.
func (r *Repository) GetByID(ctx context.Context, id int64) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM sg_jobs WHERE id = $1`

	job, err := scanJob(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound(jobNotFoundMsg)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	positions, err := r.ListPositions(ctx, id)
	if err != nil {
		return nil, err
	}
	job.Positions = positions

	return job, nil
}

// ListPositions returns a job's positions in delivery note order.
func (r *Repository) ListPositions(ctx context.Context, jobID int64) ([]domain.Position, error) {
	query := `
		SELECT id, job_id, bexio_position_id, article_no, title, COALESCE(description, ''), qty, unit, work_type, sort
		FROM sg_job_positions
		WHERE job_id = $1
		ORDER BY sort ASC, id ASC`

	rows, err := r.pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list job positions: %w", err)
	}
	defer rows.Close()

	positions := make([]domain.Position, 0)
	for rows.Next() {
		var p domain.Position
		var workType string
		if err := rows.Scan(
			&p.ID, &p.JobID, &p.ExternalID, &p.ArticleNr, &p.Title, &p.Description,
			&p.Quantity, &p.Unit, &workType, &p.Sort,
		); err != nil {
			return nil, fmt.Errorf("failed to scan job position: %w", err)
		}
		p.WorkType = domain.WorkType(workType)
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate job positions: %w", err)
	}

	return positions, nil
}

// UpdateStatus sets the status when the current one is an allowed predecessor.
// A backward move returns a conflict; an unknown id returns not found.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, status domain.Status, actor string) error {
	allowed := make([]string, 0, 4)
	for _, s := range domain.Predecessors(status) {
		allowed = append(allowed, string(s))
	}

	query := `
		UPDATE sg_jobs SET status = $2, updated_by = $3, updated_at = $4
		WHERE id = $1 AND status = ANY($5)`

	result, err := r.pool.Exec(ctx, query, id, string(status), actor, time.Now().UTC(), allowed)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	if result.RowsAffected() > 0 {
		return nil
	}

	var current string
	err = r.pool.QueryRow(ctx, `SELECT status FROM sg_jobs WHERE id = $1`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound(jobNotFoundMsg)
		}
		return fmt.Errorf("failed to read job status: %w", err)
	}

	return apperr.Conflict(fmt.Sprintf("job %d cannot move from %s to %s", id, current, status)).
		WithDetails(map[string]interface{}{"current": current, "requested": string(status)})
}

// UpdateNotes replaces the job notes.
func (r *Repository) UpdateNotes(ctx context.Context, id int64, notes string, actor string) error {
	query := `UPDATE sg_jobs SET notes = $2, updated_by = $3, updated_at = $4 WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id, nullableText(notes), actor, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update job notes: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound(jobNotFoundMsg)
	}

	return nil
}

// SaveProjection writes the event uid, token hash and public url back onto the job.
func (r *Repository) SaveProjection(ctx context.Context, id int64, update ProjectionUpdate) error {
	query := `
		UPDATE sg_jobs SET
			caldav_event_uid = COALESCE($2, caldav_event_uid),
			job_token_hash = COALESCE($3, job_token_hash),
			public_job_url = COALESCE($4, public_job_url),
			updated_at = $5
		WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id, update.EventUID, update.TokenHash, update.PublicURL, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save job projection: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound(jobNotFoundMsg)
	}

	return nil
}

// ListByStatuses returns jobs (without positions) whose status is one of statuses,
// oldest first.
func (r *Repository) ListByStatuses(ctx context.Context, statuses []domain.Status) ([]domain.Job, error) {
	values := make([]string, 0, len(statuses))
	for _, s := range statuses {
		values = append(values, string(s))
	}

	query := `SELECT ` + jobColumns + ` FROM sg_jobs WHERE status = ANY($1) ORDER BY id ASC`

	rows, err := r.pool.Query(ctx, query, values)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs by status: %w", err)
	}
	defer rows.Close()

	jobs := make([]domain.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate jobs: %w", err)
	}

	return jobs, nil
}

// CountWithoutEvent counts jobs that were persisted but never projected.
func (r *Repository) CountWithoutEvent(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sg_jobs WHERE caldav_event_uid IS NULL`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unprojected jobs: %w", err)
	}
	return count, nil
}

// ClassifyPosition sets the work type of one position of a job.
func (r *Repository) ClassifyPosition(ctx context.Context, jobID, positionID int64, workType domain.WorkType) error {
	query := `UPDATE sg_job_positions SET work_type = $3 WHERE id = $2 AND job_id = $1`

	result, err := r.pool.Exec(ctx, query, jobID, positionID, string(workType))
	if err != nil {
		return fmt.Errorf("failed to classify position: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound(positionNotFoundMsg)
	}

	return nil
}

// AppendAudit adds an entry to the job's audit trail.
func (r *Repository) AppendAudit(ctx context.Context, entry domain.AuditEntry) error {
	var payload []byte
	if entry.Payload != nil {
		encoded, err := json.Marshal(entry.Payload)
		if err != nil {
			return fmt.Errorf("failed to encode audit payload: %w", err)
		}
		payload = encoded
	}

	query := `INSERT INTO sg_job_audit (job_id, actor, action, payload_json) VALUES ($1, $2, $3, $4)`
	if _, err := r.pool.Exec(ctx, query, entry.JobID, entry.Actor, entry.Action, payload); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	return nil
}

// ListAudit returns a job's audit trail, oldest first.
func (r *Repository) ListAudit(ctx context.Context, jobID int64) ([]domain.AuditEntry, error) {
	query := `
		SELECT id, job_id, actor, action, payload_json, created_at
		FROM sg_job_audit
		WHERE job_id = $1
		ORDER BY created_at ASC, id ASC`

	rows, err := r.pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.AuditEntry, 0)
	for rows.Next() {
		var e domain.AuditEntry
		var payload []byte
		if err := rows.Scan(&e.ID, &e.JobID, &e.Actor, &e.Action, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &e.Payload); err != nil {
				return nil, fmt.Errorf("failed to decode audit payload: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit entries: %w", err)
	}

	return entries, nil
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		job    domain.Job
		phones []string
		status string
	)
	err := row.Scan(
		&job.ID, &job.DeliveryNoteID, &job.DeliveryNoteNr, &job.SalesOrderNr, &job.TeamID,
		&job.Range.Start, &job.Range.End, &job.Timezone,
		&job.Address.Street, &job.Address.Zip, &job.Address.City, &job.Address.Country,
		&job.CustomerName, &phones, &status, &job.EventUID, &job.TokenHash, &job.PublicURL,
		&job.Notes, &job.CreatedBy, &job.UpdatedBy, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Range.Start = job.Range.Start.UTC()
	job.Range.End = job.Range.End.UTC()
	job.Phones = domain.PhoneList(phones)
	job.Status = domain.Status(status)
	return &job, nil
}

func nullableText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
