package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/muzz-matchmaking/internal/logger"
	"github.com/oggyb/muzz-matchmaking/internal/repository"
	"github.com/oggyb/muzz-matchmaking/internal/testutil"
)

func stores(t *testing.T) map[string]Store {
	rc, _ := testutil.NewRedis(t)
	return map[string]Store{
		"db":    NewDBStore(repository.NewRateLimitRepository(testutil.NewDB(t))),
		"redis": NewRedisStore(rc, time.Hour),
	}
}

func TestCheckAndIncrement_ConcurrentNoLostIncrements(t *testing.T) {
	const limit = 10

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			l := New(store, time.Hour, logger.Nop())
			start := time.Now().UTC().Truncate(time.Minute)
			reset := start.Add(time.Minute)

			var allowed, denied atomic.Int64
			var maxCount atomic.Int64
			var wg sync.WaitGroup
			for i := 0; i < limit+5; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					d, err := l.CheckAndIncrement(context.Background(), "swipes:1", start, limit, reset)
					if !assert.NoError(t, err) {
						return
					}
					if d.Allowed {
						allowed.Add(1)
						assert.LessOrEqual(t, d.Count, int64(limit))
					} else {
						denied.Add(1)
					}
					for {
						cur := maxCount.Load()
						if d.Count <= cur || maxCount.CompareAndSwap(cur, d.Count) {
							break
						}
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, int64(limit), allowed.Load())
			assert.Equal(t, int64(5), denied.Load())
			assert.Equal(t, int64(limit+5), maxCount.Load())
		})
	}
}

func TestCheckAndIncrement_NewWindowStartsFresh(t *testing.T) {
	l := New(NewDBStore(repository.NewRateLimitRepository(testutil.NewDB(t))), time.Hour, logger.Nop())
	ctx := context.Background()
	w1 := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	w2 := w1.Add(time.Minute)

	for i := 0; i < 2; i++ {
		_, err := l.CheckAndIncrement(ctx, "id", w1, 1, w1.Add(time.Minute))
		require.NoError(t, err)
	}
	d, err := l.CheckAndIncrement(ctx, "id", w2, 1, w2.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(1), d.Count)
}

func TestCheckAndIncrement_Validation(t *testing.T) {
	l := New(NewDBStore(repository.NewRateLimitRepository(testutil.NewDB(t))), time.Hour, logger.Nop())
	now := time.Now()

	_, err := l.CheckAndIncrement(context.Background(), "", now, 1, now.Add(time.Minute))
	assert.Error(t, err)

	_, err = l.CheckAndIncrement(context.Background(), "x", now, 1, now)
	assert.Error(t, err)
}

func TestAllow_Policy(t *testing.T) {
	l := New(NewDBStore(repository.NewRateLimitRepository(testutil.NewDB(t))), time.Hour, logger.Nop())
	fixed := time.Date(2024, 5, 5, 12, 30, 45, 0, time.UTC)
	l.now = func() time.Time { return fixed }
	p := Policy{Name: "swipes_minute", Limit: 2, Interval: time.Minute}

	for i := 0; i < 2; i++ {
		d, err := l.Allow(context.Background(), p, 7)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}
	d, err := l.Allow(context.Background(), p, 7)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "swipes_minute:7", d.Identifier)
	assert.Equal(t, time.Date(2024, 5, 5, 12, 30, 0, 0, time.UTC), d.WindowStart)
	assert.Equal(t, time.Date(2024, 5, 5, 12, 31, 0, 0, time.UTC), d.ResetAt)

	// other users are independent
	d, err = l.Allow(context.Background(), p, 8)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	// disabled policy always allows
	d, err = l.Allow(context.Background(), Policy{Name: "off"}, 7)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestPolicyWindow_Day(t *testing.T) {
	p := Policy{Name: "d", Limit: 1, Interval: 24 * time.Hour}
	start, reset := p.Window(time.Date(2024, 3, 10, 17, 5, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), reset)
}

func TestSweepExpired(t *testing.T) {
	repo := repository.NewRateLimitRepository(testutil.NewDB(t))
	l := New(NewDBStore(repo), time.Hour, logger.Nop())
	ctx := context.Background()
	now := time.Now().UTC()

	old := now.Add(-3 * time.Hour)
	_, err := l.CheckAndIncrement(ctx, "old", old, 5, old.Add(time.Minute))
	require.NoError(t, err)
	// reset 30 minutes ago, still within grace
	recent := now.Add(-31 * time.Minute)
	_, err = l.CheckAndIncrement(ctx, "recent", recent, 5, recent.Add(time.Minute))
	require.NoError(t, err)

	n, err := l.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	w, err := repo.Get(ctx, "recent", recent.Unix())
	require.NoError(t, err)
	assert.Equal(t, int64(1), w.RequestCount)
}

func TestRedisStore_KeyExpiresAfterGrace(t *testing.T) {
	rc, mr := testutil.NewRedis(t)
	l := New(NewRedisStore(rc, time.Minute), time.Minute, logger.Nop())
	start := time.Now().UTC().Truncate(time.Minute)

	_, err := l.CheckAndIncrement(context.Background(), "k", start, 1, start.Add(time.Minute))
	require.NoError(t, err)

	key := rc.KeyForWindow("k", start)
	assert.True(t, mr.Exists(key))
	assert.Greater(t, mr.TTL(key), time.Duration(0))

	n, err := l.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}
