// Package domain provides core business rules for the jobs bounded context.
package domain

// Status is the lifecycle state of a job.
type Status string

const (
	StatusOpen     Status = "open"
	StatusDone     Status = "done"
	StatusBillable Status = "billable"
	StatusPaid     Status = "paid"
)

var statusRank = map[Status]int{
	StatusOpen:     0,
	StatusDone:     1,
	StatusBillable: 2,
	StatusPaid:     3,
}

var statusEmoji = map[Status]string{
	StatusOpen:     "\U0001F534",
	StatusDone:     "✅",
	StatusBillable: "\U0001F9FE",
	StatusPaid:     "\U0001F4B0",
}

// ParseStatus returns the Status for s when it is known.
func ParseStatus(s string) (Status, bool) {
	status := Status(s)
	_, ok := statusRank[status]
	return status, ok
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Emoji returns the calendar marker for s. Unknown statuses use the open marker.
func (s Status) Emoji() string {
	if e, ok := statusEmoji[s]; ok {
		return e
	}
	return statusEmoji[StatusOpen]
}

// CanTransitionTo reports whether a job in s may move to next. Transitions
// only move forward; re-applying the current status is allowed.
func (s Status) CanTransitionTo(next Status) bool {
	from, okFrom := statusRank[s]
	to, okTo := statusRank[next]
	if !okFrom || !okTo {
		return false
	}
	return to >= from
}

// Predecessors lists the statuses from which next may be applied, next included.
func Predecessors(next Status) []Status {
	to, ok := statusRank[next]
	if !ok {
		return nil
	}
	out := make([]Status, 0, to+1)
	for _, candidate := range []Status{StatusOpen, StatusDone, StatusBillable, StatusPaid} {
		if statusRank[candidate] <= to {
			out = append(out, candidate)
		}
	}
	return out
}

// AwaitingPayment lists the statuses the payment sweep checks.
func AwaitingPayment() []Status {
	return []Status{StatusBillable, StatusDone}
}

// WorkType classifies a job position.
type WorkType string

const (
	WorkTypeUnknown      WorkType = "unknown"
	WorkTypeInstallation WorkType = "installation"
	WorkTypeService      WorkType = "service"
	WorkTypeDelivery     WorkType = "delivery"
	WorkTypeDisposal     WorkType = "disposal"
)

// WorkTypes lists every accepted work type.
func WorkTypes() []WorkType {
	return []WorkType{WorkTypeUnknown, WorkTypeInstallation, WorkTypeService, WorkTypeDelivery, WorkTypeDisposal}
}

// Valid reports whether w is a known work type.
func (w WorkType) Valid() bool {
	for _, known := range WorkTypes() {
		if w == known {
			return true
		}
	}
	return false
}
