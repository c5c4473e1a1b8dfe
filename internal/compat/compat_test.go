package compat_test

import (
	"bytes"
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/oggyb/muzz-matchmaking/internal/compat"
	"github.com/oggyb/muzz-matchmaking/internal/db"
	"github.com/oggyb/muzz-matchmaking/internal/logger"
	"github.com/oggyb/muzz-matchmaking/internal/pair"
	"github.com/oggyb/muzz-matchmaking/internal/repository"
	"github.com/oggyb/muzz-matchmaking/internal/testutil"
)

// countingScorer returns 10, 20, 30... and counts calls.
type countingScorer struct {
	calls atomic.Int64
	fail  atomic.Bool
}

func (s *countingScorer) Score(_ context.Context, _ pair.Pair) (compat.Result, error) {
	if s.fail.Load() {
		return compat.Result{}, errors.New("scorer down")
	}
	n := s.calls.Add(1)
	return compat.Result{Score: float64(n * 10), Breakdown: map[string]float64{"calls": float64(n)}}, nil
}

func newCache(t *testing.T, scorer compat.Scorer, opts compat.Options, withRedis bool) (*compat.Cache, *repository.CompatibilityRepository) {
	t.Helper()
	store := repository.NewCompatibilityRepository(testutil.NewDB(t))
	if opts.DefaultScore == 0 {
		opts.DefaultScore = 75
	}
	if !withRedis {
		return compat.New(store, nil, scorer, opts, logger.Nop()), store
	}
	rc, _ := testutil.NewRedis(t)
	return compat.New(store, rc, scorer, opts, logger.Nop()), store
}

func TestGetOrCompute_MemoizesPerCanonicalPair(t *testing.T) {
	ctx := context.Background()
	scorer := &countingScorer{}
	c, store := newCache(t, scorer, compat.Options{}, false)

	first, err := c.GetOrCompute(ctx, 9, 4)
	require.NoError(t, err)
	assert.Equal(t, compat.SourceScorer, first.Source)

	second, err := c.GetOrCompute(ctx, 4, 9)
	require.NoError(t, err)
	assert.Equal(t, compat.SourceStore, second.Source)
	assert.Equal(t, first.Score, second.Score)
	assert.Equal(t, int64(1), scorer.calls.Load())

	p, _ := pair.Canonical(4, 9)
	entry, err := store.Get(ctx, p)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, first.Score, entry.Score)
}

func TestRecompute_IsReflectedByNextGet(t *testing.T) {
	ctx := context.Background()
	scorer := &countingScorer{}
	c, _ := newCache(t, scorer, compat.Options{}, true)

	first, err := c.GetOrCompute(ctx, 1, 2)
	require.NoError(t, err)

	again, err := c.GetOrCompute(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, first.Score, again.Score)
	assert.Equal(t, compat.SourceRedis, again.Source)

	fresh, err := c.Recompute(ctx, 2, 1)
	require.NoError(t, err)
	assert.NotEqual(t, first.Score, fresh.Score)

	after, err := c.GetOrCompute(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, fresh.Score, after.Score)
}

func TestGetOrCompute_FallbackNotStored(t *testing.T) {
	ctx := context.Background()
	scorer := &countingScorer{}
	scorer.fail.Store(true)
	c, store := newCache(t, scorer, compat.Options{DefaultScore: 75}, false)

	res, err := c.GetOrCompute(ctx, 1, 2)
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Equal(t, 75.0, res.Score)

	p, _ := pair.Canonical(1, 2)
	entry, err := store.Get(ctx, p)
	require.NoError(t, err)
	assert.Nil(t, entry)

	// scorer back → real score
	scorer.fail.Store(false)
	res, err = c.GetOrCompute(ctx, 1, 2)
	require.NoError(t, err)
	assert.False(t, res.Fallback)
	assert.Equal(t, 10.0, res.Score)
}

func TestRecompute_FailureKeepsOldEntry(t *testing.T) {
	ctx := context.Background()
	scorer := &countingScorer{}
	c, _ := newCache(t, scorer, compat.Options{}, false)

	first, _ := c.GetOrCompute(ctx, 1, 2)
	scorer.fail.Store(true)

	_, err := c.Recompute(ctx, 1, 2)
	assert.Error(t, err)

	res, err := c.GetOrCompute(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, first.Score, res.Score)
}

func TestGetOrCompute_SelfPair(t *testing.T) {
	c, _ := newCache(t, &countingScorer{}, compat.Options{}, false)
	_, err := c.GetOrCompute(context.Background(), 3, 3)
	assert.ErrorIs(t, err, pair.ErrSelfPair)
}

func TestGetOrCompute_StaleServedThenRefreshed(t *testing.T) {
	ctx := context.Background()
	scorer := &countingScorer{}
	release := make(chan struct{})
	gated := compat.ScorerFunc(func(ctx context.Context, p pair.Pair) (compat.Result, error) {
		<-release
		return scorer.Score(ctx, p)
	})
	c, store := newCache(t, gated, compat.Options{MaxAge: time.Minute}, false)

	require.NoError(t, store.Upsert(ctx, &db.CompatibilityEntry{
		UserLowID:  1,
		UserHighID: 2,
		Score:      99,
		ComputedAt: time.Now().UTC().Add(-time.Hour),
	}))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := c.GetOrCompute(ctx, 1, 2)
			assert.NoError(t, err)
			assert.Equal(t, 99.0, res.Score)
		}()
	}
	wg.Wait()
	close(release)
	c.Wait()

	assert.GreaterOrEqual(t, scorer.calls.Load(), int64(1))

	res, err := c.GetOrCompute(ctx, 1, 2)
	require.NoError(t, err)
	assert.NotEqual(t, 99.0, res.Score)
}

func TestConcurrentGetOrCompute_AllSucceed(t *testing.T) {
	ctx := context.Background()
	c, _ := newCache(t, &countingScorer{}, compat.Options{}, false)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := uint64(1), uint64(2)
			if i%2 == 0 {
				a, b = b, a
			}
			res, err := c.GetOrCompute(ctx, a, b)
			assert.NoError(t, err)
			assert.False(t, res.Fallback)
		}(i)
	}
	wg.Wait()
}

func TestProfileScorer(t *testing.T) {
	ctx := context.Background()
	database := testutil.NewDB(t)
	profiles := repository.NewProfileRepository(database)

	lat, lng := 51.5, -0.12
	users := []db.User{
		{ID: 1, Username: "a", Email: "a@x", PasswordHash: "x", Gender: "female", Latitude: &lat, Longitude: &lng, Activities: []string{"yoga", "running"}},
		{ID: 2, Username: "b", Email: "b@x", PasswordHash: "x", Gender: "male", Latitude: &lat, Longitude: &lng, Activities: []string{"running"}},
	}
	require.NoError(t, database.Create(&users).Error)

	scorer := compat.NewProfileScorer(profiles)
	p, _ := pair.Canonical(1, 2)
	res, err := scorer.Score(ctx, p)
	require.NoError(t, err)
	// activities 40*0.5 + age 25*0.5 + distance 20*1 + zodiac 15*1
	assert.InDelta(t, 67.5, res.Score, 0.01)
	assert.Len(t, res.Breakdown, 4)

	missing, _ := pair.Canonical(1, 3)
	_, err = scorer.Score(ctx, missing)
	assert.Error(t, err)
}

func TestProfileScorer_RepeatedActivitiesStayOnScale(t *testing.T) {
	ctx := context.Background()
	database := testutil.NewDB(t)

	lat, lng := 51.5, -0.12
	users := []db.User{
		{ID: 1, Username: "a", Email: "a@x", PasswordHash: "x", Gender: "female", Latitude: &lat, Longitude: &lng, Activities: []string{"yoga"}},
		{ID: 2, Username: "b", Email: "b@x", PasswordHash: "x", Gender: "male", Latitude: &lat, Longitude: &lng, Activities: []string{"yoga", "yoga", "yoga"}},
	}
	require.NoError(t, database.Create(&users).Error)

	p, _ := pair.Canonical(1, 2)
	res, err := compat.NewProfileScorer(repository.NewProfileRepository(database)).Score(ctx, p)
	require.NoError(t, err)

	// identical sets: activities 40 + age 12.5 + distance 20 + zodiac 15
	assert.InDelta(t, 40, res.Breakdown["activities"], 0.01)
	assert.InDelta(t, 87.5, res.Score, 0.01)
	assert.LessOrEqual(t, res.Score, 100.0)
}

func TestGetOrCompute_UnreadableBreakdownIsLoggedAndScoreServed(t *testing.T) {
	ctx := context.Background()
	store := repository.NewCompatibilityRepository(testutil.NewDB(t))
	var logs bytes.Buffer
	scorer := &countingScorer{}
	c := compat.New(store, nil, scorer, compat.Options{DefaultScore: 75},
		logger.New(logger.Config{Level: "warn", Output: &logs}))

	require.NoError(t, store.Upsert(ctx, &db.CompatibilityEntry{
		UserLowID:  1,
		UserHighID: 2,
		Score:      64,
		Breakdown:  datatypes.JSON(`{"age":`),
		ComputedAt: time.Now().UTC(),
	}))

	res, err := c.GetOrCompute(ctx, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, compat.SourceStore, res.Source)
	assert.Equal(t, 64.0, res.Score)
	assert.Nil(t, res.Breakdown)
	assert.Equal(t, int64(0), scorer.calls.Load())
	assert.Contains(t, logs.String(), "stored compatibility breakdown unreadable")
}

func TestBreakdownJSON_RejectsNonFinite(t *testing.T) {
	_, err := compat.Result{Breakdown: map[string]float64{"age": math.NaN()}}.BreakdownJSON()
	assert.Error(t, err)

	raw, err := compat.Result{}.BreakdownJSON()
	require.NoError(t, err)
	assert.Nil(t, raw)
}
