// Package matching turns mutual interest into exactly one Match and one
// Conversation per unordered user pair.
//
// Two entry paths converge on the same formation routine: a like that finds
// the reverse like already stored, and an explicit confirmation (usually an
// accepted match request). Formation runs in one transaction keyed on the
// canonical pair; the unique index on (user_low_id, user_high_id) makes
// concurrent or repeated calls collide, and the loser re-reads the winner's
// row instead of failing.
package matching

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/oggyb/muzz-matchmaking/internal/audit"
	"github.com/oggyb/muzz-matchmaking/internal/cache"
	"github.com/oggyb/muzz-matchmaking/internal/compat"
	"github.com/oggyb/muzz-matchmaking/internal/events"
	"github.com/oggyb/muzz-matchmaking/internal/ratelimit"
	"github.com/oggyb/muzz-matchmaking/internal/repository"
)

type Options struct {
	RequestTTL   time.Duration
	MaxAttempts  int
	RetryBackoff time.Duration
	// LikeCountTTL is how long cached liker counts live in Redis.
	LikeCountTTL time.Duration
}

// Deps are the collaborators of an Engine. Redis and Notifier may be nil.
type Deps struct {
	DB       *gorm.DB
	Compat   *compat.Cache
	Limiter  *ratelimit.Limiter
	Policies ratelimit.Policies
	Audit    audit.Sink
	Notifier events.Notifier
	Redis    *cache.RedisCache
	Logger   *slog.Logger
}

type Engine struct {
	db       *gorm.DB
	swipes   *repository.SwipeRepository
	matches  *repository.MatchRepository
	convs    *repository.ConversationRepository
	requests *repository.MatchRequestRepository
	profiles *repository.ProfileRepository

	compat   *compat.Cache
	limiter  *ratelimit.Limiter
	policies ratelimit.Policies
	audit    audit.Sink
	notifier events.Notifier
	redis    *cache.RedisCache
	log      *slog.Logger
	opts     Options

	now   func() time.Time
	newID func() string
}

func New(d Deps, opts Options) *Engine {
	if opts.RequestTTL <= 0 {
		opts.RequestTTL = 72 * time.Hour
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 25 * time.Millisecond
	}
	if opts.LikeCountTTL <= 0 {
		opts.LikeCountTTL = time.Hour
	}
	if d.Audit == nil {
		d.Audit = audit.Nop{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	return &Engine{
		db:       d.DB,
		swipes:   repository.NewSwipeRepository(d.DB),
		matches:  repository.NewMatchRepository(d.DB),
		convs:    repository.NewConversationRepository(d.DB),
		requests: repository.NewMatchRequestRepository(d.DB),
		profiles: repository.NewProfileRepository(d.DB),
		compat:   d.Compat,
		limiter:  d.Limiter,
		policies: d.Policies,
		audit:    d.Audit,
		notifier: d.Notifier,
		redis:    d.Redis,
		log:      d.Logger.With("component", "matching"),
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// Swipes exposes the swipe repository for read-only listings.
func (e *Engine) Swipes() *repository.SwipeRepository {
	return e.swipes
}
