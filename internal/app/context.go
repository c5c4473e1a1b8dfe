package app

import (
	"log/slog"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-matchmaking/internal/audit"
	"github.com/oggyb/muzz-matchmaking/internal/cache"
	"github.com/oggyb/muzz-matchmaking/internal/compat"
	"github.com/oggyb/muzz-matchmaking/internal/config"
	"github.com/oggyb/muzz-matchmaking/internal/events"
	"github.com/oggyb/muzz-matchmaking/internal/matching"
	"github.com/oggyb/muzz-matchmaking/internal/ratelimit"
	"github.com/oggyb/muzz-matchmaking/internal/repository"
)

// AppContext holds shared dependencies (DB, Redis, Logger, etc.)
type AppContext struct {
	Config     *config.Config
	DB         *gorm.DB
	RedisCache *cache.RedisCache
	Logger     *slog.Logger

	Publisher events.Publisher
	Audit     *audit.Async
	Compat    *compat.Cache
	Limiter   *ratelimit.Limiter
	Engine    *matching.Engine
}

// New wires the matchmaking core on top of an open DB and Redis.
func New(cfg *config.Config, database *gorm.DB, rdb *cache.RedisCache, logger *slog.Logger) *AppContext {
	publisher := events.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, logger)

	auditSink := audit.NewAsync(audit.Multi{
		audit.NewStoreWriter(repository.NewAuditRepository(database)),
		audit.NewPublisherWriter(publisher, cfg.Audit.RoutingKey),
	}, cfg.Audit.QueueSize, logger)

	compatCache := compat.New(
		repository.NewCompatibilityRepository(database),
		rdb,
		compat.NewProfileScorer(repository.NewProfileRepository(database)),
		compat.Options{
			DefaultScore: cfg.Compat.DefaultScore,
			MaxAge:       cfg.Compat.MaxAge,
			RedisTTL:     cfg.Compat.RedisTTL,
			ScoreTimeout: cfg.Compat.ScoreTimeout,
		},
		logger,
	)

	var store ratelimit.Store
	if cfg.RateLimit.Backend == "redis" && rdb != nil {
		store = ratelimit.NewRedisStore(rdb, cfg.RateLimit.Grace)
	} else {
		store = ratelimit.NewDBStore(repository.NewRateLimitRepository(database))
	}
	limiter := ratelimit.New(store, cfg.RateLimit.Grace, logger)

	engine := matching.New(matching.Deps{
		DB:       database,
		Compat:   compatCache,
		Limiter:  limiter,
		Policies: ratelimit.PoliciesFromConfig(cfg),
		Audit:    auditSink,
		Notifier: events.NewPublisherNotifier(publisher, logger),
		Redis:    rdb,
		Logger:   logger,
	}, matching.Options{RequestTTL: cfg.Matching.RequestTTL})

	return &AppContext{
		Config:     cfg,
		DB:         database,
		RedisCache: rdb,
		Logger:     logger,
		Publisher:  publisher,
		Audit:      auditSink,
		Compat:     compatCache,
		Limiter:    limiter,
		Engine:     engine,
	}
}

// Close flushes background work. The DB and Redis belong to the caller.
func (a *AppContext) Close() {
	a.Compat.Wait()
	a.Audit.Close()
	if err := a.Publisher.Close(); err != nil {
		a.Logger.Warn("publisher close failed", "err", err)
	}
}
