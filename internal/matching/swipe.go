package matching

import (
	"context"
	"log/slog"

	"github.com/oggyb/muzz-matchmaking/internal/db"
	"github.com/oggyb/muzz-matchmaking/internal/eligibility"
	svcErr "github.com/oggyb/muzz-matchmaking/internal/errors"
	"github.com/oggyb/muzz-matchmaking/internal/pair"
	"github.com/oggyb/muzz-matchmaking/internal/ratelimit"
)

// SwipeResult is what RecordSwipe reports back. MatchID and ConversationID
// are set only when the swipe completed a mutual like.
type SwipeResult struct {
	Matched        bool   `json:"matched"`
	MatchID        string `json:"match_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// RecordSwipe stores swiper's decision on swiped and forms the match when a
// like meets a reverse like.
//
// Likes are checked for eligibility (blocks included) before anything is
// written; passes are always accepted. Both count against the swipe limits.
func (e *Engine) RecordSwipe(ctx context.Context, swiperID, swipedID uint64, decision db.SwipeDecision) (SwipeResult, error) {
	p, err := pair.Canonical(swiperID, swipedID)
	if err != nil {
		return SwipeResult{}, svcErr.Classify(err)
	}
	if decision != db.DecisionLike && decision != db.DecisionPass {
		return SwipeResult{}, svcErr.Validation("decision must be like or pass")
	}

	if decision == db.DecisionLike {
		res, err := e.evaluate(ctx, swiperID, swipedID, false)
		if err != nil {
			return SwipeResult{}, err
		}
		if !res.Eligible {
			return SwipeResult{}, svcErr.Ineligible(res.Reasons)
		}
	}

	for _, policy := range []ratelimit.Policy{e.policies.SwipesPerMinute, e.policies.SwipesPerDay} {
		if err := e.allow(ctx, policy, swiperID); err != nil {
			return SwipeResult{}, err
		}
	}

	prev, err := e.swipes.Upsert(ctx, swiperID, swipedID, decision)
	if err != nil {
		e.log.Error("swipe upsert failed", "swiper", swiperID, "swiped", swipedID, "err", err)
		return SwipeResult{}, svcErr.Classify(err)
	}
	if prev != decision {
		e.invalidateLikeCounts(ctx, swiperID, swipedID)
	}

	if decision != db.DecisionLike {
		return SwipeResult{}, nil
	}

	mutual, err := e.swipes.HasLiked(ctx, swipedID, swiperID)
	if err != nil {
		return SwipeResult{}, svcErr.Classify(err)
	}
	if !mutual {
		return SwipeResult{}, nil
	}

	f, err := e.form(ctx, formRequest{pair: p, actor: swiperID, reason: "mutual_like"})
	if err != nil {
		return SwipeResult{}, err
	}
	return SwipeResult{Matched: true, MatchID: f.MatchID, ConversationID: f.ConversationID}, nil
}

// CheckEligibility evaluates viewer against candidate for discovery: the
// viewer's prior swipes and both block lists exclude the candidate.
func (e *Engine) CheckEligibility(ctx context.Context, viewerID, candidateID uint64) (eligibility.Result, error) {
	if viewerID == 0 || candidateID == 0 {
		return eligibility.Result{}, svcErr.Validation("user ids must be non-zero")
	}
	return e.evaluate(ctx, viewerID, candidateID, true)
}

func (e *Engine) evaluate(ctx context.Context, viewerID, candidateID uint64, discovery bool) (eligibility.Result, error) {
	viewer, err := e.profiles.Get(ctx, viewerID)
	if err != nil {
		return eligibility.Result{}, svcErr.Classify(err)
	}
	if viewer == nil {
		return eligibility.Result{}, svcErr.NotFound("user", viewerID)
	}
	candidate, err := e.profiles.Get(ctx, candidateID)
	if err != nil {
		return eligibility.Result{}, svcErr.Classify(err)
	}
	if candidate == nil {
		return eligibility.Result{}, svcErr.NotFound("user", candidateID)
	}

	viewerExcluded, err := e.profiles.BlockedWith(ctx, viewerID)
	if err != nil {
		return eligibility.Result{}, svcErr.Classify(err)
	}
	if discovery {
		swiped, err := e.swipes.SwipedTargets(ctx, viewerID)
		if err != nil {
			return eligibility.Result{}, svcErr.Classify(err)
		}
		viewerExcluded = append(viewerExcluded, swiped...)
	}
	candidateExcluded, err := e.profiles.BlockedWith(ctx, candidateID)
	if err != nil {
		return eligibility.Result{}, svcErr.Classify(err)
	}

	now := e.now()
	return eligibility.IsEligible(
		eligibility.FromUser(viewer, now, viewerExcluded),
		eligibility.FromUser(candidate, now, candidateExcluded),
	), nil
}

func (e *Engine) allow(ctx context.Context, policy ratelimit.Policy, userID uint64) error {
	if e.limiter == nil {
		return nil
	}
	d, err := e.limiter.Allow(ctx, policy, userID)
	if err != nil {
		return svcErr.Classify(err)
	}
	if !d.Allowed {
		return svcErr.RateLimitedUntil(policy.Name+" limit reached", d.ResetAt.Sub(e.now()))
	}
	return nil
}

func (e *Engine) invalidateLikeCounts(ctx context.Context, userIDs ...uint64) {
	if e.redis == nil {
		return
	}
	for _, id := range userIDs {
		if err := e.redis.InvalidateLikeCount(ctx, id); err != nil {
			e.log.Warn("like count invalidation failed", slog.Uint64("user", id), "err", err)
		}
	}
}
