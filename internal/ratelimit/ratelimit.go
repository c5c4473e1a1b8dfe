// Package ratelimit is a fixed-window counter limiter shared by every caller
// that needs throttling.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oggyb/muzz-matchmaking/internal/config"
	"github.com/oggyb/muzz-matchmaking/internal/observability"
)

// Decision is the outcome of one increment.
type Decision struct {
	Identifier  string    `json:"identifier"`
	WindowStart time.Time `json:"window_start"`
	Count       int64     `json:"count"`
	Limit       int64     `json:"limit"`
	Allowed     bool      `json:"allowed"`
	ResetAt     time.Time `json:"reset_at"`
}

// Policy is a named fixed window, e.g. 60 swipes per minute.
// Limit <= 0 disables the policy.
type Policy struct {
	Name     string
	Limit    int64
	Interval time.Duration
}

// Window returns the bucket containing now.
func (p Policy) Window(now time.Time) (start, resetAt time.Time) {
	start = now.UTC().Truncate(p.Interval)
	return start, start.Add(p.Interval)
}

// Identifier is the counter key for userID under this policy.
func (p Policy) Identifier(userID uint64) string {
	return fmt.Sprintf("%s:%d", p.Name, userID)
}

// Policies are the limits the engine enforces.
type Policies struct {
	SwipesPerMinute Policy
	SwipesPerDay    Policy
	RequestsPerDay  Policy
}

// PoliciesFromConfig builds the engine policies.
func PoliciesFromConfig(cfg *config.Config) Policies {
	return Policies{
		SwipesPerMinute: Policy{Name: "swipes_minute", Limit: int64(cfg.RateLimit.SwipesPerMinute), Interval: time.Minute},
		SwipesPerDay:    Policy{Name: "swipes_day", Limit: int64(cfg.RateLimit.SwipesPerDay), Interval: 24 * time.Hour},
		RequestsPerDay:  Policy{Name: "match_requests", Limit: int64(cfg.RateLimit.RequestsPerDay), Interval: 24 * time.Hour},
	}
}

type Limiter struct {
	store Store
	grace time.Duration
	log   *slog.Logger
	now   func() time.Time
}

func New(store Store, grace time.Duration, log *slog.Logger) *Limiter {
	if log == nil {
		log = slog.Default()
	}
	return &Limiter{
		store: store,
		grace: grace,
		log:   log.With("component", "ratelimit"),
		now:   time.Now,
	}
}

// CheckAndIncrement counts one request against (identifier, windowStart)
// and reports whether it fits under limit. Every call is counted, allowed
// or not.
func (l *Limiter) CheckAndIncrement(
	ctx context.Context,
	identifier string,
	windowStart time.Time,
	limit int64,
	resetAt time.Time,
) (Decision, error) {
	if identifier == "" {
		return Decision{}, fmt.Errorf("rate limit identifier is empty")
	}
	if !resetAt.After(windowStart) {
		return Decision{}, fmt.Errorf("rate limit resetAt must be after windowStart")
	}

	count, err := l.store.Increment(ctx, identifier, windowStart, limit, resetAt)
	if err != nil {
		l.log.Error("rate limit increment failed", "identifier", identifier, "err", err)
		return Decision{}, err
	}
	return Decision{
		Identifier:  identifier,
		WindowStart: windowStart.UTC(),
		Count:       count,
		Limit:       limit,
		Allowed:     count <= limit,
		ResetAt:     resetAt.UTC(),
	}, nil
}

// Allow applies a policy to userID in the current window.
func (l *Limiter) Allow(ctx context.Context, p Policy, userID uint64) (Decision, error) {
	if p.Limit <= 0 {
		return Decision{Identifier: p.Identifier(userID), Allowed: true}, nil
	}
	start, resetAt := p.Window(l.now())
	d, err := l.CheckAndIncrement(ctx, p.Identifier(userID), start, p.Limit, resetAt)
	if err != nil {
		return Decision{}, err
	}
	observability.IncRateLimitDecision(p.Name, d.Allowed)
	if !d.Allowed {
		l.log.Debug("rate limited", "policy", p.Name, "user", userID, "count", d.Count, "limit", d.Limit)
	}
	return d, nil
}

// SweepExpired garbage-collects windows whose resetAt is older than the
// grace period.
func (l *Limiter) SweepExpired(ctx context.Context) (int64, error) {
	return l.store.Sweep(ctx, l.now().Add(-l.grace))
}
