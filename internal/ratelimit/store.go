package ratelimit

import (
	"context"
	"time"

	"github.com/oggyb/muzz-matchmaking/internal/cache"
	"github.com/oggyb/muzz-matchmaking/internal/repository"
)

// Store holds fixed-window counters. Increment must be one atomic
// increment-and-return; implementations never read then write.
type Store interface {
	Increment(ctx context.Context, identifier string, windowStart time.Time, limit int64, resetAt time.Time) (int64, error)
	// Sweep removes windows that reset before cutoff and reports how many.
	Sweep(ctx context.Context, cutoff time.Time) (int64, error)
}

// DBStore keeps windows in rate_limit_windows.
type DBStore struct {
	repo *repository.RateLimitRepository
}

func NewDBStore(repo *repository.RateLimitRepository) *DBStore {
	return &DBStore{repo: repo}
}

func (s *DBStore) Increment(ctx context.Context, identifier string, windowStart time.Time, limit int64, resetAt time.Time) (int64, error) {
	w, err := s.repo.Increment(ctx, identifier, windowStart.Unix(), limit, resetAt.UTC())
	if err != nil {
		return 0, err
	}
	return w.RequestCount, nil
}

func (s *DBStore) Sweep(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.repo.DeleteExpired(ctx, cutoff.UTC())
}

// RedisStore keeps windows as Redis counters that expire on their own
// once resetAt plus the grace period has passed.
type RedisStore struct {
	rc    *cache.RedisCache
	grace time.Duration
}

func NewRedisStore(rc *cache.RedisCache, grace time.Duration) *RedisStore {
	return &RedisStore{rc: rc, grace: grace}
}

func (s *RedisStore) Increment(ctx context.Context, identifier string, windowStart time.Time, _ int64, resetAt time.Time) (int64, error) {
	return s.rc.IncrWindow(ctx, s.rc.KeyForWindow(identifier, windowStart), resetAt.Add(s.grace))
}

// Sweep is a no-op: keys carry their own expiry.
func (s *RedisStore) Sweep(context.Context, time.Time) (int64, error) {
	return 0, nil
}
