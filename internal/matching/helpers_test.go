package matching

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/oggyb/muzz-matchmaking/internal/audit"
	"github.com/oggyb/muzz-matchmaking/internal/compat"
	"github.com/oggyb/muzz-matchmaking/internal/db"
	"github.com/oggyb/muzz-matchmaking/internal/events"
	"github.com/oggyb/muzz-matchmaking/internal/logger"
	"github.com/oggyb/muzz-matchmaking/internal/pair"
	"github.com/oggyb/muzz-matchmaking/internal/ratelimit"
	"github.com/oggyb/muzz-matchmaking/internal/repository"
	"github.com/oggyb/muzz-matchmaking/internal/testutil"
)

// stubScorer returns a fixed score, or fails while down is set.
type stubScorer struct {
	score float64
	down  atomic.Bool
	calls atomic.Int64
}

func (s *stubScorer) Score(context.Context, pair.Pair) (compat.Result, error) {
	s.calls.Add(1)
	if s.down.Load() {
		return compat.Result{}, errors.New("scorer unavailable")
	}
	return compat.Result{Score: s.score, Breakdown: map[string]float64{"stub": s.score}}, nil
}

type fixture struct {
	engine   *Engine
	db       *gorm.DB
	scorer   *stubScorer
	recorder *events.Recorder
	audits   *repository.AuditRepository
}

func newFixture(t *testing.T, policies ratelimit.Policies) *fixture {
	t.Helper()
	return newFixtureOn(t, testutil.NewDB(t), policies)
}

func newFixtureOn(t *testing.T, database *gorm.DB, policies ratelimit.Policies) *fixture {
	t.Helper()
	log := logger.Nop()

	scorer := &stubScorer{score: 82}
	cache := compat.New(
		repository.NewCompatibilityRepository(database),
		nil,
		scorer,
		compat.Options{DefaultScore: 75},
		log,
	)
	limiter := ratelimit.New(
		ratelimit.NewDBStore(repository.NewRateLimitRepository(database)),
		time.Hour,
		log,
	)
	audits := repository.NewAuditRepository(database)
	recorder := &events.Recorder{}

	engine := New(Deps{
		DB:       database,
		Compat:   cache,
		Limiter:  limiter,
		Policies: policies,
		Audit:    audit.NewSync(audit.NewStoreWriter(audits), log),
		Notifier: events.NewPublisherNotifier(recorder, log),
		Logger:   log,
	}, Options{RetryBackoff: time.Millisecond})

	return &fixture{engine: engine, db: database, scorer: scorer, recorder: recorder, audits: audits}
}

func (f *fixture) users(t *testing.T, ids ...uint64) {
	t.Helper()
	for _, id := range ids {
		u := db.User{
			ID:           id,
			Username:     fmt.Sprintf("user%d", id),
			Email:        fmt.Sprintf("user%d@example.com", id),
			PasswordHash: "x",
			Gender:       "female",
			Active:       true,
		}
		require.NoError(t, f.db.Create(&u).Error)
	}
}

func (f *fixture) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Count(&n).Error)
	return n
}

func (f *fixture) request(t *testing.T, id string) db.MatchRequest {
	t.Helper()
	var r db.MatchRequest
	require.NoError(t, f.db.Where("id = ?", id).First(&r).Error)
	return r
}
