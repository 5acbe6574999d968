package scheduler

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	sweepLockKey    = "sgjobs:payments:sweep:lock"
	sweepLastRunKey = "sgjobs:payments:sweep:last_run"
)

// releaseScript deletes the lock only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SweepGuard keeps payment sweeps from overlapping across processes and
// records when the last sweep finished.
type SweepGuard struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

// NewSweepGuard creates a guard whose lock expires after ttl.
func NewSweepGuard(rdb redis.UniversalClient, ttl time.Duration) *SweepGuard {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &SweepGuard{rdb: rdb, ttl: ttl}
}

// Acquire takes the sweep lock. The returned release func is nil when the
// lock is held elsewhere.
func (g *SweepGuard) Acquire(ctx context.Context) (func(context.Context), error) {
	token := uuid.NewString()
	ok, err := g.rdb.SetNX(ctx, sweepLockKey, token, g.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return func(ctx context.Context) {
		_ = releaseScript.Run(ctx, g.rdb, []string{sweepLockKey}, token).Err()
	}, nil
}

// MarkRun records a finished sweep.
func (g *SweepGuard) MarkRun(ctx context.Context, at time.Time) error {
	return g.rdb.Set(ctx, sweepLastRunKey, at.UTC().Unix(), 0).Err()
}

// LastRun returns when the last sweep finished. ok is false if none has.
func (g *SweepGuard) LastRun(ctx context.Context) (time.Time, bool, error) {
	raw, err := g.rdb.Get(ctx, sweepLastRunKey).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, err
	}
	return time.Unix(secs, 0).UTC(), true, nil
}
