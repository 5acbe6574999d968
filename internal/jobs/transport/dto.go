package transport

import (
	"time"

	"sgjobs_backend/internal/jobs/domain"

	"github.com/shopspring/decimal"
)

// CreateJobRequest is the request body for pulling a delivery note in as a job.
type CreateJobRequest struct {
	DeliveryNoteNr string   `json:"delivery_note_nr" validate:"required,max=64"`
	TeamID         int64    `json:"team_id" validate:"required,gt=0"`
	StartsAt       string   `json:"starts_at" validate:"required"`
	EndsAt         string   `json:"ends_at" validate:"required"`
	Timezone       string   `json:"timezone,omitempty" validate:"omitempty,timezone"`
	Phones         []string `json:"phones,omitempty" validate:"omitempty,max=10,dive,max=32"`
	LocationCity   string   `json:"location_city,omitempty" validate:"max=128"`
	Notes          string   `json:"notes,omitempty" validate:"max=5000"`
}

// CreateJobResponse is returned once a job was created.
type CreateJobResponse struct {
	JobID          int64  `json:"job_id"`
	PublicJobURL   string `json:"public_job_url"`
	CalDAVEventUID string `json:"caldav_event_uid"`
}

// MarkDoneRequest is the installer's completion report.
type MarkDoneRequest struct {
	Comment string `json:"comment" validate:"max=5000"`
}

// ClassifyPositionRequest sets the work type of one position.
type ClassifyPositionRequest struct {
	WorkType string `json:"work_type" validate:"required,oneof=unknown installation service delivery disposal"`
}

// UploadRequest asks for a presigned photo upload.
type UploadRequest struct {
	FileName    string `json:"file_name" validate:"required,max=255"`
	ContentType string `json:"content_type" validate:"required,max=100"`
	SizeBytes   int64  `json:"size_bytes" validate:"required,gt=0"`
}

// UploadResponse carries the presigned PUT URL.
type UploadResponse struct {
	UploadURL string    `json:"upload_url"`
	FileKey   string    `json:"file_key"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StatusResponse reports the status a job was moved to.
type StatusResponse struct {
	Status string `json:"status"`
}

// ReprojectResponse reports the event identifier written.
type ReprojectResponse struct {
	CalDAVEventUID string `json:"caldav_event_uid"`
}

// AddressResponse is a job's address.
type AddressResponse struct {
	Street    string `json:"street"`
	Zip       string `json:"zip"`
	City      string `json:"city"`
	Country   string `json:"country"`
	Formatted string `json:"formatted"`
}

// PositionResponse is one line item of a job.
type PositionResponse struct {
	ID          int64           `json:"id"`
	ExternalID  int64           `json:"bexio_position_id"`
	ArticleNr   string          `json:"article_no"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Quantity    decimal.Decimal `json:"qty"`
	Unit        string          `json:"unit"`
	WorkType    string          `json:"work_type"`
	Sort        int             `json:"sort"`
}

// JobResponse is the full job view. The token hash is never exposed.
type JobResponse struct {
	ID             int64              `json:"id"`
	DeliveryNoteID int64              `json:"delivery_note_id"`
	DeliveryNoteNr string             `json:"delivery_note_nr"`
	SalesOrderNr   *string            `json:"sales_order_nr"`
	TeamID         int64              `json:"team_id"`
	StartsAt       time.Time          `json:"starts_at"`
	EndsAt         time.Time          `json:"ends_at"`
	Timezone       string             `json:"tz"`
	Address        AddressResponse    `json:"address"`
	CustomerName   string             `json:"customer_name"`
	Phones         []string           `json:"phones"`
	Status         string             `json:"status"`
	StatusEmoji    string             `json:"status_emoji"`
	CalDAVEventUID *string            `json:"caldav_event_uid"`
	PublicJobURL   string             `json:"public_job_url"`
	Notes          string             `json:"notes"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
	Positions      []PositionResponse `json:"positions"`
}

// JobSheetResponse is what an installer sees behind a magic link.
type JobSheetResponse struct {
	ID             int64              `json:"id"`
	DeliveryNoteNr string             `json:"delivery_note_nr"`
	StartsAt       time.Time          `json:"starts_at"`
	EndsAt         time.Time          `json:"ends_at"`
	LocalStart     string             `json:"local_start"`
	LocalEnd       string             `json:"local_end"`
	Timezone       string             `json:"tz"`
	Address        AddressResponse    `json:"address"`
	CustomerName   string             `json:"customer_name"`
	Phones         []string           `json:"phones"`
	Status         string             `json:"status"`
	Notes          string             `json:"notes"`
	Positions      []PositionResponse `json:"positions"`
}

// AuditEntryResponse is one audit trail entry.
type AuditEntryResponse struct {
	ID        int64                  `json:"id"`
	Actor     string                 `json:"actor"`
	Action    string                 `json:"action"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// NewJobResponse maps a job to its API view.
func NewJobResponse(job *domain.Job) JobResponse {
	phones := []string(job.Phones)
	if phones == nil {
		phones = []string{}
	}
	return JobResponse{
		ID:             job.ID,
		DeliveryNoteID: job.DeliveryNoteID,
		DeliveryNoteNr: job.DeliveryNoteNr,
		SalesOrderNr:   job.SalesOrderNr,
		TeamID:         job.TeamID,
		StartsAt:       job.Range.Start,
		EndsAt:         job.Range.End,
		Timezone:       job.Timezone,
		Address:        newAddressResponse(job.Address),
		CustomerName:   job.CustomerName,
		Phones:         phones,
		Status:         string(job.Status),
		StatusEmoji:    job.Status.Emoji(),
		CalDAVEventUID: job.EventUID,
		PublicJobURL:   job.PublicURL,
		Notes:          job.Notes,
		CreatedAt:      job.CreatedAt,
		UpdatedAt:      job.UpdatedAt,
		Positions:      newPositionResponses(job.Positions),
	}
}

// NewJobSheetResponse maps a job to the installer view, with local times in
// the job's own zone.
func NewJobSheetResponse(job *domain.Job) JobSheetResponse {
	loc, err := time.LoadLocation(job.Timezone)
	if err != nil {
		loc = time.UTC
	}
	phones := []string(job.Phones)
	if phones == nil {
		phones = []string{}
	}
	return JobSheetResponse{
		ID:             job.ID,
		DeliveryNoteNr: job.DeliveryNoteNr,
		StartsAt:       job.Range.Start,
		EndsAt:         job.Range.End,
		LocalStart:     job.Range.Start.In(loc).Format("02.01.2006 15:04"),
		LocalEnd:       job.Range.End.In(loc).Format("02.01.2006 15:04"),
		Timezone:       job.Timezone,
		Address:        newAddressResponse(job.Address),
		CustomerName:   job.CustomerName,
		Phones:         phones,
		Status:         string(job.Status),
		Notes:          job.Notes,
		Positions:      newPositionResponses(job.Positions),
	}
}

// NewAuditResponses maps audit entries to their API view.
func NewAuditResponses(entries []domain.AuditEntry) []AuditEntryResponse {
	out := make([]AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, AuditEntryResponse{
			ID:        e.ID,
			Actor:     e.Actor,
			Action:    e.Action,
			Payload:   e.Payload,
			CreatedAt: e.CreatedAt,
		})
	}
	return out
}

func newAddressResponse(a domain.Address) AddressResponse {
	return AddressResponse{
		Street:    a.Street,
		Zip:       a.Zip,
		City:      a.City,
		Country:   a.Country,
		Formatted: a.Formatted(),
	}
}

func newPositionResponses(positions []domain.Position) []PositionResponse {
	out := make([]PositionResponse, 0, len(positions))
	for _, p := range positions {
		out = append(out, PositionResponse{
			ID:          p.ID,
			ExternalID:  p.ExternalID,
			ArticleNr:   p.ArticleNr,
			Title:       p.Title,
			Description: p.Description,
			Quantity:    p.Quantity,
			Unit:        p.Unit,
			WorkType:    string(p.WorkType),
			Sort:        p.Sort,
		})
	}
	return out
}
