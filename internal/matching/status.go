package matching

import (
	"context"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-matchmaking/internal/audit"
	"github.com/oggyb/muzz-matchmaking/internal/db"
	svcErr "github.com/oggyb/muzz-matchmaking/internal/errors"
	"github.com/oggyb/muzz-matchmaking/internal/pair"
)

// Unmatch moves an active match to inactive. Matches are never deleted.
func (e *Engine) Unmatch(ctx context.Context, actorID, otherID uint64) error {
	p, err := pair.Canonical(actorID, otherID)
	if err != nil {
		return svcErr.Classify(err)
	}
	m, err := e.matches.FindByPair(ctx, p)
	if err != nil {
		return svcErr.Classify(err)
	}
	if m == nil {
		return svcErr.NotFound("match", p.String())
	}

	n, err := e.matches.TransitionStatus(ctx, m.ID, []db.MatchStatus{db.MatchActive}, db.MatchInactive)
	if err != nil {
		return svcErr.Classify(err)
	}
	if n == 0 {
		return svcErr.Conflict("match is not active")
	}

	e.audit.Record(ctx, audit.Event{
		EntityType:  audit.EntityMatch,
		EntityID:    m.ID,
		FromStatus:  string(db.MatchActive),
		ToStatus:    string(db.MatchInactive),
		Reason:      "unmatch",
		TriggeredBy: actorID,
		OccurredAt:  e.now(),
	})
	return nil
}

// Block records actor blocking other and moves their match, if any, to
// blocked. Blocking twice is a no-op.
func (e *Engine) Block(ctx context.Context, actorID, otherID uint64) error {
	p, err := pair.Canonical(actorID, otherID)
	if err != nil {
		return svcErr.Classify(err)
	}

	var (
		blockedMatch *db.Match
		from         db.MatchStatus
	)
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := e.profiles.WithTx(tx).Block(ctx, actorID, otherID); err != nil {
			return err
		}
		matches := e.matches.WithTx(tx)
		m, err := matches.FindByPairForUpdate(ctx, p)
		if err != nil || m == nil {
			return err
		}
		n, err := matches.TransitionStatus(ctx, m.ID, []db.MatchStatus{db.MatchActive, db.MatchInactive}, db.MatchBlocked)
		if err != nil {
			return err
		}
		if n == 1 {
			blockedMatch, from = m, m.Status
		}
		return nil
	})
	if err != nil {
		return svcErr.Classify(err)
	}

	e.invalidateLikeCounts(ctx, actorID, otherID)
	if blockedMatch != nil {
		e.audit.Record(ctx, audit.Event{
			EntityType:  audit.EntityMatch,
			EntityID:    blockedMatch.ID,
			FromStatus:  string(from),
			ToStatus:    string(db.MatchBlocked),
			Reason:      "block",
			TriggeredBy: actorID,
			OccurredAt:  e.now(),
		})
	}
	return nil
}

// ListMatches returns the user's matches in a status, newest first.
func (e *Engine) ListMatches(ctx context.Context, userID uint64, status db.MatchStatus, limit int) ([]db.Match, error) {
	if userID == 0 {
		return nil, svcErr.Validation("user id must be non-zero")
	}
	if status == "" {
		status = db.MatchActive
	}
	matches, err := e.matches.ListForUser(ctx, userID, status, limit)
	return matches, svcErr.Classify(err)
}
