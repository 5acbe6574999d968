package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"sgjobs_backend/internal/payments"
	"sgjobs_backend/platform/apperr"
	"sgjobs_backend/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

type countingSweep struct {
	runs int
	err  error
}

func (s *countingSweep) Run(context.Context) (payments.Result, error) {
	s.runs++
	return payments.Result{}, s.err
}

type stubReprojector struct {
	err   error
	calls []int64
}

func (r *stubReprojector) Reproject(_ context.Context, jobID int64) (string, error) {
	r.calls = append(r.calls, jobID)
	if r.err != nil {
		return "", r.err
	}
	return "sgjobs-1-uid", nil
}

func newTestGuard(t *testing.T) (*SweepGuard, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewSweepGuard(rdb, time.Minute), mr
}

func TestSweepGuardLockIsExclusive(t *testing.T) {
	guard, mr := newTestGuard(t)
	ctx := context.Background()

	release, err := guard.Acquire(ctx)
	if err != nil || release == nil {
		t.Fatalf("expected lock, got release=%v err=%v", release != nil, err)
	}

	second, err := guard.Acquire(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second != nil {
		t.Fatalf("expected second acquire to fail while locked")
	}

	release(ctx)
	if mr.Exists(sweepLockKey) {
		t.Fatalf("expected lock to be released")
	}

	again, err := guard.Acquire(ctx)
	if err != nil || again == nil {
		t.Fatalf("expected lock after release")
	}
}

func TestSweepGuardLockExpires(t *testing.T) {
	guard, mr := newTestGuard(t)
	ctx := context.Background()

	if release, _ := guard.Acquire(ctx); release == nil {
		t.Fatalf("expected lock")
	}
	mr.FastForward(2 * time.Minute)

	if release, _ := guard.Acquire(ctx); release == nil {
		t.Fatalf("expected expired lock to be reacquired")
	}
}

func TestSweepGuardLastRun(t *testing.T) {
	guard, _ := newTestGuard(t)
	ctx := context.Background()

	if _, ok, err := guard.LastRun(ctx); err != nil || ok {
		t.Fatalf("expected no last run, got ok=%v err=%v", ok, err)
	}

	at := time.Date(2026, 3, 2, 10, 15, 0, 0, time.UTC)
	if err := guard.MarkRun(ctx, at); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, ok, err := guard.LastRun(ctx)
	if err != nil || !ok || !got.Equal(at) {
		t.Fatalf("expected %v, got %v ok=%v err=%v", at, got, ok, err)
	}
}

func TestRunSweepSkipsWhileLockedElsewhere(t *testing.T) {
	guard, _ := newTestGuard(t)
	ctx := context.Background()
	sweep := &countingSweep{}

	release, _ := guard.Acquire(ctx)
	if err := RunSweep(ctx, sweep, guard, logger.Discard()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sweep.runs != 0 {
		t.Fatalf("expected sweep to be skipped")
	}
	release(ctx)

	if err := RunSweep(ctx, sweep, guard, logger.Discard()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sweep.runs != 1 {
		t.Fatalf("expected one sweep, got %d", sweep.runs)
	}
	if _, ok, _ := guard.LastRun(ctx); !ok {
		t.Fatalf("expected last run to be recorded")
	}
}

func TestRunSweepDoesNotRecordFailedRun(t *testing.T) {
	guard, _ := newTestGuard(t)
	ctx := context.Background()

	err := RunSweep(ctx, &countingSweep{err: errors.New("db down")}, guard, logger.Discard())
	if err == nil {
		t.Fatalf("expected error")
	}
	if _, ok, _ := guard.LastRun(ctx); ok {
		t.Fatalf("expected failed sweep not to be recorded")
	}
}

func TestHandleReprojectSkipsRetryForMissingJob(t *testing.T) {
	reprojector := &stubReprojector{err: apperr.NotFound("job not found")}
	w := &Worker{reprojector: reprojector, log: logger.Discard()}

	task, err := NewReprojectJobTask(ReprojectJobPayload{JobID: 42})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = w.handleReprojectJob(context.Background(), task)
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
	if len(reprojector.calls) != 1 || reprojector.calls[0] != 42 {
		t.Fatalf("unexpected calls: %v", reprojector.calls)
	}
}

func TestHandleReprojectRetriesCalendarErrors(t *testing.T) {
	w := &Worker{reprojector: &stubReprojector{err: apperr.Calendar("calendar unavailable", nil)}, log: logger.Discard()}
	task, _ := NewReprojectJobTask(ReprojectJobPayload{JobID: 7})

	err := w.handleReprojectJob(context.Background(), task)
	if err == nil || errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected retryable error, got %v", err)
	}
}

func TestSweepCronSpec(t *testing.T) {
	if got := SweepCronSpec(0); got != "@every 15m0s" {
		t.Fatalf("unexpected default spec %q", got)
	}
	if got := SweepCronSpec(5 * time.Minute); got != "@every 5m0s" {
		t.Fatalf("unexpected spec %q", got)
	}
}

func TestReprojectRetryDelayIsCapped(t *testing.T) {
	if got := reprojectRetryDelay(0, nil, nil); got != time.Minute {
		t.Fatalf("expected 1m, got %v", got)
	}
	if got := reprojectRetryDelay(2, nil, nil); got != 9*time.Minute {
		t.Fatalf("expected 9m, got %v", got)
	}
	if got := reprojectRetryDelay(20, nil, nil); got != time.Hour {
		t.Fatalf("expected cap at 1h, got %v", got)
	}
}
