// Package compat memoizes the pairwise compatibility score.
//
// Lookups go Redis → compatibility_entries → scorer. The stored value is a
// pure function of the pair, so concurrent writers are last-writer-wins and
// any layer can be dropped without losing correctness.
package compat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"gorm.io/datatypes"

	"github.com/oggyb/muzz-matchmaking/internal/cache"
	"github.com/oggyb/muzz-matchmaking/internal/db"
	"github.com/oggyb/muzz-matchmaking/internal/observability"
	"github.com/oggyb/muzz-matchmaking/internal/pair"
	"github.com/oggyb/muzz-matchmaking/internal/repository"
)

// Lookup sources, also used as metric labels.
const (
	SourceRedis    = "redis"
	SourceStore    = "store"
	SourceScorer   = "scorer"
	SourceFallback = "fallback"
	SourceStale    = "stale"
)

// Result is a compatibility score for one canonical pair.
type Result struct {
	Score      float64            `json:"score"`
	Breakdown  map[string]float64 `json:"breakdown,omitempty"`
	ComputedAt time.Time          `json:"computed_at"`

	// Fallback marks the default score returned while the scorer was down.
	// Fallback results are never stored.
	Fallback bool   `json:"fallback"`
	Source   string `json:"-"`
}

// BreakdownJSON encodes the breakdown for a JSON column. It fails only on
// non-finite components.
func (r Result) BreakdownJSON() (datatypes.JSON, error) {
	if len(r.Breakdown) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(r.Breakdown)
	if err != nil {
		return nil, fmt.Errorf("encode breakdown: %w", err)
	}
	return datatypes.JSON(raw), nil
}

// Scorer computes the score of a pair. It may be slow and it may fail.
type Scorer interface {
	Score(ctx context.Context, p pair.Pair) (Result, error)
}

// ScorerFunc adapts a function to Scorer.
type ScorerFunc func(ctx context.Context, p pair.Pair) (Result, error)

func (f ScorerFunc) Score(ctx context.Context, p pair.Pair) (Result, error) {
	return f(ctx, p)
}

type Options struct {
	DefaultScore float64
	// MaxAge > 0 serves older entries as-is and refreshes them in the
	// background. Zero keeps entries usable forever.
	MaxAge       time.Duration
	RedisTTL     time.Duration
	ScoreTimeout time.Duration
}

// Cache is safe for concurrent use.
type Cache struct {
	store  *repository.CompatibilityRepository
	redis  *cache.RedisCache
	scorer Scorer
	opts   Options
	log    *slog.Logger
	now    func() time.Time

	refresh singleflight.Group
	bg      sync.WaitGroup
}

// New builds a cache. redis may be nil.
func New(
	store *repository.CompatibilityRepository,
	redis *cache.RedisCache,
	scorer Scorer,
	opts Options,
	log *slog.Logger,
) *Cache {
	if log == nil {
		log = slog.Default()
	}
	return &Cache{
		store:  store,
		redis:  redis,
		scorer: scorer,
		opts:   opts,
		log:    log.With("component", "compat"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// GetOrCompute returns the score of the unordered pair (a, b).
//
// The only error is an invalid pair. Scorer failures are absorbed into the
// default score.
func (c *Cache) GetOrCompute(ctx context.Context, a, b uint64) (Result, error) {
	p, err := pair.Canonical(a, b)
	if err != nil {
		return Result{}, err
	}

	if res, ok := c.fromRedis(ctx, p); ok {
		c.maybeRefresh(ctx, p, res)
		return res, nil
	}

	entry, err := c.store.Get(ctx, p)
	if err != nil {
		c.log.Warn("compatibility store read failed", "pair", p.String(), "err", err)
	}
	if entry != nil {
		res := c.fromEntry(p, entry)
		res.Source = SourceStore
		observability.IncCompatLookup(SourceStore)
		c.toRedis(ctx, p, res)
		c.maybeRefresh(ctx, p, res)
		return res, nil
	}

	res, err := c.compute(ctx, p)
	if err != nil {
		c.log.Warn("compatibility scorer failed, using default score",
			"pair", p.String(), "default", c.opts.DefaultScore, "err", err)
		observability.IncCompatLookup(SourceFallback)
		return c.fallback(), nil
	}
	observability.IncCompatLookup(SourceScorer)
	return res, nil
}

// Recompute forces a fresh score for the pair and replaces the cached one.
// Unlike GetOrCompute, a scorer failure is returned and the old entry stays.
func (c *Cache) Recompute(ctx context.Context, low, high uint64) (Result, error) {
	p, err := pair.Canonical(low, high)
	if err != nil {
		return Result{}, err
	}
	return c.compute(ctx, p)
}

// Wait blocks until background refreshes finish.
func (c *Cache) Wait() {
	c.bg.Wait()
}

// compute calls the scorer and writes the result through both layers.
func (c *Cache) compute(ctx context.Context, p pair.Pair) (Result, error) {
	scoreCtx := ctx
	if c.opts.ScoreTimeout > 0 {
		var cancel context.CancelFunc
		scoreCtx, cancel = context.WithTimeout(ctx, c.opts.ScoreTimeout)
		defer cancel()
	}

	res, err := c.scorer.Score(scoreCtx, p)
	if err != nil {
		return Result{}, fmt.Errorf("score %s: %w", p, err)
	}
	res.ComputedAt = c.now()
	res.Fallback = false
	res.Source = SourceScorer

	breakdown, err := res.BreakdownJSON()
	if err != nil {
		c.log.Warn("compatibility breakdown dropped", "pair", p.String(), "err", err)
	}
	err = c.store.Upsert(ctx, &db.CompatibilityEntry{
		UserLowID:  p.Low,
		UserHighID: p.High,
		Score:      res.Score,
		Breakdown:  breakdown,
		ComputedAt: res.ComputedAt,
	})
	if err != nil {
		// the score is still good; only the memo is lost
		c.log.Warn("compatibility store write failed", "pair", p.String(), "err", err)
	}
	c.toRedis(ctx, p, res)
	return res, nil
}

func (c *Cache) fallback() Result {
	return Result{
		Score:      c.opts.DefaultScore,
		ComputedAt: c.now(),
		Fallback:   true,
		Source:     SourceFallback,
	}
}

// maybeRefresh kicks off one background recompute per pair once the entry
// is older than MaxAge. The caller keeps the stale value.
func (c *Cache) maybeRefresh(ctx context.Context, p pair.Pair, res Result) {
	if c.opts.MaxAge <= 0 || c.now().Sub(res.ComputedAt) <= c.opts.MaxAge {
		return
	}
	observability.IncCompatLookup(SourceStale)

	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		bgCtx := context.WithoutCancel(ctx)
		_, err, _ := c.refresh.Do(p.String(), func() (any, error) {
			return c.compute(bgCtx, p)
		})
		if err != nil {
			c.log.Warn("background recompute failed", "pair", p.String(), "err", err)
		}
	}()
}

func (c *Cache) fromRedis(ctx context.Context, p pair.Pair) (Result, bool) {
	if c.redis == nil {
		return Result{}, false
	}
	var res Result
	err := c.redis.GetJSON(ctx, c.redis.KeyForScore(p), &res)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			c.log.Warn("redis score read failed", "pair", p.String(), "err", err)
		}
		return Result{}, false
	}
	res.Source = SourceRedis
	observability.IncCompatLookup(SourceRedis)
	return res, true
}

func (c *Cache) toRedis(ctx context.Context, p pair.Pair, res Result) {
	if c.redis == nil {
		return
	}
	if err := c.redis.SetJSON(ctx, c.redis.KeyForScore(p), res, c.opts.RedisTTL); err != nil {
		c.log.Warn("redis score write failed", "pair", p.String(), "err", err)
	}
}

// fromEntry serves the stored score even when its breakdown is unreadable.
func (c *Cache) fromEntry(p pair.Pair, e *db.CompatibilityEntry) Result {
	res := Result{Score: e.Score, ComputedAt: e.ComputedAt.UTC()}
	if len(e.Breakdown) > 0 {
		if err := json.Unmarshal(e.Breakdown, &res.Breakdown); err != nil {
			c.log.Warn("stored compatibility breakdown unreadable", "pair", p.String(), "err", err)
			res.Breakdown = nil
		}
	}
	return res
}
