// Package payments reconciles invoice payment status against bexio.
package payments

import (
	"context"
	"fmt"

	"sgjobs_backend/internal/jobs/domain"
	"sgjobs_backend/platform/apperr"
	"sgjobs_backend/platform/logger"
)

// Lifecycle is the part of the job service the sweep drives.
type Lifecycle interface {
	ListAwaitingPayment(ctx context.Context) ([]domain.Job, error)
	MarkPaid(ctx context.Context, jobID int64) error
}

// PaymentStatus looks up whether a sales order's invoice is paid.
type PaymentStatus interface {
	GetPaymentStatus(ctx context.Context, salesOrderNr string) (bool, error)
}

// Result summarizes one sweep.
type Result struct {
	Checked int `json:"checked"`
	Paid    int `json:"paid"`
	Failed  int `json:"failed"`
}

// Sweep walks billable and done jobs and marks the paid ones.
type Sweep struct {
	jobs Lifecycle
	erp  PaymentStatus
	log  *logger.Logger
}

// NewSweep creates a payment sweep.
func NewSweep(jobs Lifecycle, erp PaymentStatus, log *logger.Logger) *Sweep {
	if log == nil {
		log = logger.Discard()
	}
	return &Sweep{jobs: jobs, erp: erp, log: log}
}

// Run performs one pass. Jobs are processed one at a time and a failing job
// is logged and skipped. Only a failure to list the jobs, or cancellation,
// ends the pass early.
func (s *Sweep) Run(ctx context.Context) (Result, error) {
	var result Result
	log := s.log.WithContext(ctx)

	jobs, err := s.jobs.ListAwaitingPayment(ctx)
	if err != nil {
		return result, fmt.Errorf("list jobs awaiting payment: %w", err)
	}

	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Checked++

		paid, err := s.erp.GetPaymentStatus(ctx, job.SalesOrder())
		if err != nil {
			result.Failed++
			log.Warn("payment status lookup failed", "job_id", job.ID, "sales_order_nr", job.SalesOrder(), "error", err)
			continue
		}
		if !paid {
			continue
		}

		if err := s.jobs.MarkPaid(ctx, job.ID); err != nil {
			if apperr.Is(err, apperr.KindCalendar) {
				// the status is committed; the calendar catches up on reprojection
				log.Warn("job marked paid but calendar update failed", "job_id", job.ID, "error", err)
				result.Paid++
				continue
			}
			result.Failed++
			log.Warn("failed to mark job paid", "job_id", job.ID, "error", err)
			continue
		}
		result.Paid++
	}

	log.Info("payment sweep finished", "checked", result.Checked, "paid", result.Paid, "failed", result.Failed)
	return result, nil
}
