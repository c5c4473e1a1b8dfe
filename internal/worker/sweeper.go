// Package worker runs the periodic maintenance jobs of the matchmaking core.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/oggyb/muzz-matchmaking/internal/observability"
)

// RequestExpirer moves lapsed pending match requests to expired.
type RequestExpirer interface {
	ExpireStaleRequests(ctx context.Context, batch int) (int, error)
}

// WindowSweeper deletes rate-limit windows past their grace period.
type WindowSweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// Sweeper ticks both jobs on one interval. Each tick is independent; a
// failed job is logged and retried on the next tick.
type Sweeper struct {
	requests RequestExpirer
	windows  WindowSweeper
	interval time.Duration
	batch    int
	log      *slog.Logger
}

func NewSweeper(requests RequestExpirer, windows WindowSweeper, interval time.Duration, log *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{
		requests: requests,
		windows:  windows,
		interval: interval,
		batch:    100,
		log:      log.With("component", "sweeper"),
	}
}

// Run sweeps once immediately, then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("sweeper started", "interval", s.interval)
	for {
		s.SweepOnce(ctx)
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return
		case <-ticker.C:
		}
	}
}

// SweepOnce runs both jobs a single time.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	if s.requests != nil {
		n, err := s.requests.ExpireStaleRequests(ctx, s.batch)
		if n > 0 {
			observability.AddSwept("match_requests", n)
			s.log.Info("expired match requests", "count", n)
		}
		if err != nil && ctx.Err() == nil {
			s.log.Error("match request expiry failed", "err", err)
		}
	}

	if s.windows != nil {
		n, err := s.windows.SweepExpired(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.log.Error("rate limit sweep failed", "err", err)
			}
			return
		}
		if n > 0 {
			observability.AddSwept("rate_limit_windows", int(n))
			s.log.Debug("swept rate limit windows", "count", n)
		}
	}
}
