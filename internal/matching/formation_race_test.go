package matching

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/oggyb/muzz-matchmaking/internal/db"
	"github.com/oggyb/muzz-matchmaking/internal/ratelimit"
	"github.com/oggyb/muzz-matchmaking/internal/testutil"
)

// beforeMatchInsert runs fn once, right before the first INSERT into matches.
func beforeMatchInsert(t *testing.T, database *gorm.DB, fn func(tx *gorm.DB)) *atomic.Bool {
	t.Helper()
	var fired atomic.Bool
	err := database.Callback().Create().Before("gorm:create").Register("test:before_match_insert", func(tx *gorm.DB) {
		if tx.Statement.Table != "matches" || !fired.CompareAndSwap(false, true) {
			return
		}
		fn(tx)
	})
	require.NoError(t, err)
	return &fired
}

// Another writer commits the pair after the pre-read: the caller converges on
// that record and completes it instead of creating a second one.
func TestConfirmMatch_ConvergesOnConcurrentWinner(t *testing.T) {
	database := testutil.NewFileDB(t)
	f := newFixtureOn(t, database, ratelimit.Policies{})
	f.users(t, 1, 2)

	winner := db.Match{
		ID:                 uuid.NewString(),
		UserLowID:          1,
		UserHighID:         2,
		Status:             db.MatchActive,
		CompatibilityScore: testutil.Float(82),
	}
	fired := beforeMatchInsert(t, database, func(*gorm.DB) {
		// separate connection, committed before the engine's insert runs
		err := database.Session(&gorm.Session{NewDB: true, Context: context.Background()}).Create(&winner).Error
		assert.NoError(t, err)
	})

	res, err := f.engine.ConfirmMatch(context.Background(), 2, 1, nil)
	require.NoError(t, err)
	require.True(t, fired.Load())

	assert.False(t, res.Created)
	assert.Equal(t, winner.ID, res.MatchID)
	assert.NotEmpty(t, res.ConversationID)
	assert.Equal(t, 82.0, res.Score)
	assert.Equal(t, int64(1), f.count(t, &db.Match{}))
	assert.Equal(t, int64(1), f.count(t, &db.Conversation{}))

	var m db.Match
	require.NoError(t, database.Where("id = ?", winner.ID).First(&m).Error)
	require.NotNil(t, m.ConversationID)
	assert.Equal(t, res.ConversationID, *m.ConversationID)
}

// A conflicting row seen only by the insert makes the attempt lose; the
// retry runs in a fresh transaction and forms exactly one match.
func TestConfirmMatch_LostInsertIsRetried(t *testing.T) {
	f := newFixture(t, ratelimit.Policies{})
	f.users(t, 3, 4)

	phantomID := uuid.NewString()
	fired := beforeMatchInsert(t, f.db, func(tx *gorm.DB) {
		// same transaction, so it rolls back with the losing attempt
		phantom := db.Match{ID: phantomID, UserLowID: 3, UserHighID: 4, Status: db.MatchActive}
		assert.NoError(t, tx.Session(&gorm.Session{NewDB: true}).Create(&phantom).Error)
	})

	res, err := f.engine.ConfirmMatch(context.Background(), 3, 4, nil)
	require.NoError(t, err)
	require.True(t, fired.Load())

	assert.True(t, res.Created)
	assert.NotEqual(t, phantomID, res.MatchID)
	assert.Equal(t, int64(1), f.count(t, &db.Match{}))
	assert.Equal(t, int64(1), f.count(t, &db.Conversation{}))
}
