package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/muzz-matchmaking/internal/db"
	"github.com/oggyb/muzz-matchmaking/internal/pair"
	"github.com/oggyb/muzz-matchmaking/internal/repository"
	"github.com/oggyb/muzz-matchmaking/internal/testutil"
)

func newMatch(p pair.Pair) *db.Match {
	return &db.Match{
		ID:         uuid.NewString(),
		UserLowID:  p.Low,
		UserHighID: p.High,
		Status:     db.MatchActive,
		MatchedAt:  time.Now().UTC(),
	}
}

func TestMatchCreateIfAbsent_SecondWriterLoses(t *testing.T) {
	ctx := context.Background()
	dbase := testutil.NewDB(t)
	repo := repository.NewMatchRepository(dbase)
	p, _ := pair.Canonical(7, 3)

	created, err := repo.CreateIfAbsent(ctx, newMatch(p))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.CreateIfAbsent(ctx, newMatch(p))
	require.NoError(t, err)
	assert.False(t, created)

	var count int64
	require.NoError(t, dbase.Model(&db.Match{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	m, err := repo.FindByPair(ctx, p)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, uint64(3), m.UserLowID)
	assert.True(t, m.NeedsScore())
}

func TestMatchPatchScore_OnlyLegacyOrFallback(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMatchRepository(testutil.NewDB(t))
	p, _ := pair.Canonical(1, 2)

	m := newMatch(p)
	m.CompatibilityScore = testutil.Float(75)
	m.ScoreFallback = true
	_, err := repo.CreateIfAbsent(ctx, m)
	require.NoError(t, err)

	n, err := repo.PatchScore(ctx, m.ID, 88, false, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// real score present now → no-op
	n, err = repo.PatchScore(ctx, m.ID, 10, false, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	got, _ := repo.FindByPair(ctx, p)
	assert.InDelta(t, 88, *got.CompatibilityScore, 0.001)
	assert.False(t, got.NeedsScore())
}

func TestMatchTransitionStatus_Guarded(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMatchRepository(testutil.NewDB(t))
	p, _ := pair.Canonical(1, 2)
	m := newMatch(p)
	_, _ = repo.CreateIfAbsent(ctx, m)

	n, err := repo.TransitionStatus(ctx, m.ID, []db.MatchStatus{db.MatchActive}, db.MatchInactive)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repo.TransitionStatus(ctx, m.ID, []db.MatchStatus{db.MatchActive}, db.MatchInactive)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	list, err := repo.ListForUser(ctx, 2, db.MatchInactive, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestConversationFindOrCreate_Converges(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewConversationRepository(testutil.NewDB(t))
	p, _ := pair.Canonical(4, 9)

	c1, err := repo.FindOrCreate(ctx, p, "match-1", uuid.NewString())
	require.NoError(t, err)
	c2, err := repo.FindOrCreate(ctx, p, "match-1", uuid.NewString())
	require.NoError(t, err)
	assert.Equal(t, c1.ID, c2.ID)
}
