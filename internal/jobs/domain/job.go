package domain

import (
	"fmt"
	"strings"
	"time"

	"sgjobs_backend/platform/apperr"
	"sgjobs_backend/platform/phone"

	"github.com/shopspring/decimal"
)

// DefaultTimezone applies when a job is created without an explicit zone.
const DefaultTimezone = "Europe/Zurich"

// Address is the physical location of a job.
type Address struct {
	Street  string
	Zip     string
	City    string
	Country string
}

// Formatted renders "street, zip city, country", skipping empty parts.
func (a Address) Formatted() string {
	parts := make([]string, 0, 3)
	if s := strings.TrimSpace(a.Street); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(strings.TrimSpace(a.Zip) + " " + strings.TrimSpace(a.City)); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(a.Country); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, ", ")
}

// PhoneList is an ordered list of contact numbers without duplicates.
type PhoneList []string

// NewPhoneList normalizes each number to E.164 where possible, drops empty
// entries and keeps the first occurrence of each number.
func NewPhoneList(raw []string) PhoneList {
	seen := make(map[string]struct{}, len(raw))
	out := make(PhoneList, 0, len(raw))
	for _, r := range raw {
		n := phone.NormalizeE164(r)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// String joins the numbers with "; ".
func (p PhoneList) String() string {
	return strings.Join(p, "; ")
}

// TimeRange is a UTC interval with End after Start.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseTimeRange interprets start and end in timezone and returns them in UTC.
// Values carrying an explicit offset keep that offset.
func ParseTimeRange(start, end, timezone string) (TimeRange, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return TimeRange{}, apperr.Validation(fmt.Sprintf("unknown timezone %q", timezone))
	}

	s, err := parseLocal(start, loc)
	if err != nil {
		return TimeRange{}, apperr.Validation(fmt.Sprintf("invalid start time %q", start))
	}
	e, err := parseLocal(end, loc)
	if err != nil {
		return TimeRange{}, apperr.Validation(fmt.Sprintf("invalid end time %q", end))
	}

	return NewTimeRange(s, e)
}

// NewTimeRange validates and normalizes a range to UTC.
func NewTimeRange(start, end time.Time) (TimeRange, error) {
	if !end.After(start) {
		return TimeRange{}, apperr.Validation("end time must be after start time")
	}
	return TimeRange{Start: start.UTC(), End: end.UTC()}, nil
}

func parseLocal(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	var lastErr error
	for _, layout := range localLayouts {
		t, err := time.ParseInLocation(layout, value, loc)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// Team is an installer crew with its calendar collections.
type Team struct {
	ID            int64
	Name          string
	Principal     string
	ExecutionPath string
	BlockerPath   string
}

// Column widths of the bounded text fields in sg_jobs and sg_job_positions.
const (
	MaxCustomerNameLen = 191
	MaxCityLen         = 128
	MaxZipLen          = 16
	MaxCountryLen      = 64
	MaxArticleNrLen    = 64
	MaxTitleLen        = 255
	MaxUnitLen         = 16
)

// Position is one line item snapshotted from the delivery note.
type Position struct {
	ID          int64
	JobID       int64
	ExternalID  int64
	ArticleNr   string
	Title       string
	Description string
	Quantity    decimal.Decimal
	Unit        string
	WorkType    WorkType
	Sort        int
}

// Job is one scheduled field-service visit derived from a delivery note.
type Job struct {
	ID             int64
	DeliveryNoteID int64
	DeliveryNoteNr string
	SalesOrderNr   *string
	TeamID         int64
	Range          TimeRange
	Timezone       string
	Address        Address
	CustomerName   string
	Phones         PhoneList
	Status         Status
	EventUID       *string
	TokenHash      *string
	PublicURL      string
	Notes          string
	CreatedBy      string
	UpdatedBy      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Positions      []Position
}

// SalesOrder returns the sales-order number or "".
func (j Job) SalesOrder() string {
	if j.SalesOrderNr == nil {
		return ""
	}
	return *j.SalesOrderNr
}

// EventID returns the calendar event identifier or "".
func (j Job) EventID() string {
	if j.EventUID == nil {
		return ""
	}
	return *j.EventUID
}

// AuditEntry records one status change.
type AuditEntry struct {
	ID        int64
	JobID     int64
	Actor     string
	Action    string
	Payload   map[string]interface{}
	CreatedAt time.Time
}
