package matching

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/oggyb/muzz-matchmaking/internal/audit"
	"github.com/oggyb/muzz-matchmaking/internal/compat"
	"github.com/oggyb/muzz-matchmaking/internal/db"
	"github.com/oggyb/muzz-matchmaking/internal/eligibility"
	svcErr "github.com/oggyb/muzz-matchmaking/internal/errors"
	"github.com/oggyb/muzz-matchmaking/internal/events"
	"github.com/oggyb/muzz-matchmaking/internal/observability"
	"github.com/oggyb/muzz-matchmaking/internal/pair"
)

// Formation is the outcome of a formation call. Every call for the same pair
// returns the same MatchID and ConversationID.
//
// An existing match is returned as it is, including an inactive or blocked
// one; formation never reactivates a match.
type Formation struct {
	MatchID          string         `json:"match_id"`
	ConversationID   string         `json:"conversation_id"`
	Status           db.MatchStatus `json:"status"`
	Score            float64        `json:"score"`
	ScoreFallback    bool           `json:"score_fallback"`
	Created          bool           `json:"created"`
	RequestConfirmed bool           `json:"request_confirmed"`
}

// errLostRace means another transaction inserted the match first.
var errLostRace = errors.New("matching: lost insert race")

// errRequestNotPending aborts a strict formation whose request moved on.
var errRequestNotPending = errors.New("matching: match request is no longer pending")

type formRequest struct {
	pair      pair.Pair
	actor     uint64
	reason    string
	requestID *string
	// strict rolls the whole formation back when the request cannot be
	// confirmed. Without it a stale request is simply left alone.
	strict bool
}

// ConfirmMatch forms the match for (a, b) regardless of swipes. When
// sourceRequestID is set, that request is confirmed if it is still pending,
// unexpired and belongs to the pair; otherwise it is left untouched and the
// match is formed anyway.
func (e *Engine) ConfirmMatch(ctx context.Context, a, b uint64, sourceRequestID *string) (Formation, error) {
	p, err := pair.Canonical(a, b)
	if err != nil {
		return Formation{}, svcErr.Classify(err)
	}
	if err := e.ensureNotBlocked(ctx, p); err != nil {
		return Formation{}, err
	}
	if sourceRequestID != nil && *sourceRequestID == "" {
		sourceRequestID = nil
	}
	return e.form(ctx, formRequest{pair: p, actor: a, reason: "confirmed", requestID: sourceRequestID})
}

// form retries lost races and transient store failures. Both are safe to
// retry because a retry lands in the existing-match branch.
func (e *Engine) form(ctx context.Context, req formRequest) (Formation, error) {
	ctx, span := observability.StartSpan(ctx, "matching.form",
		attribute.String("pair", req.pair.String()),
		attribute.String("reason", req.reason),
	)
	start := time.Now()
	defer func() { observability.ObserveFormation(time.Since(start)) }()

	var err error
	for attempt := 1; attempt <= e.opts.MaxAttempts; attempt++ {
		var f Formation
		f, err = e.tryForm(ctx, req)
		if err == nil {
			observability.EndSpan(span, nil)
			return f, nil
		}

		retryable := errors.Is(err, errLostRace) || svcErr.IsRetryable(err)
		if !retryable || attempt == e.opts.MaxAttempts {
			break
		}
		observability.IncFormation("retried")
		e.log.Debug("formation retry", "pair", req.pair.String(), "attempt", attempt, "err", err)

		if !errors.Is(err, errLostRace) {
			select {
			case <-ctx.Done():
				err = ctx.Err()
				observability.EndSpan(span, err)
				return Formation{}, err
			case <-time.After(e.opts.RetryBackoff * time.Duration(attempt)):
			}
		}
	}

	observability.EndSpan(span, err)
	switch {
	case errors.Is(err, errRequestNotPending):
		return Formation{}, svcErr.Conflict("match request is no longer pending")
	case errors.Is(err, errLostRace):
		// still losing after every attempt: the winner has not committed yet
		return Formation{}, svcErr.Transient(err)
	}
	e.log.Error("formation failed", "pair", req.pair.String(), "err", err)
	return Formation{}, svcErr.Classify(err)
}

func (e *Engine) tryForm(ctx context.Context, req formRequest) (Formation, error) {
	p := req.pair

	existing, err := e.matches.FindByPair(ctx, p)
	if err != nil {
		return Formation{}, err
	}
	if existing != nil && !existing.NeedsScore() && existing.ConversationID != nil && req.requestID == nil {
		observability.IncFormation("existing")
		return formationOf(existing, *existing.ConversationID), nil
	}

	// Scoring may be slow; keep it out of the transaction.
	var (
		score     *compat.Result
		breakdown datatypes.JSON
	)
	if existing == nil || existing.NeedsScore() {
		res, err := e.compat.GetOrCompute(ctx, p.Low, p.High)
		if err != nil {
			return Formation{}, err
		}
		score = &res
		if breakdown, err = res.BreakdownJSON(); err != nil {
			e.log.Warn("score breakdown dropped", "pair", p.String(), "err", err)
		}
	}

	now := e.now()
	var (
		out         Formation
		transitions []audit.Event
		patched     bool
	)

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		matches := e.matches.WithTx(tx)
		convs := e.convs.WithTx(tx)
		requests := e.requests.WithTx(tx)

		m, err := matches.FindByPairForUpdate(ctx, p)
		if err != nil {
			return err
		}

		if m == nil {
			if score == nil {
				// appeared and vanished between reads; start over
				return errLostRace
			}
			m = &db.Match{
				ID:                 e.newID(),
				UserLowID:          p.Low,
				UserHighID:         p.High,
				Status:             db.MatchActive,
				CompatibilityScore: &score.Score,
				ScoreFallback:      score.Fallback,
				ScoreBreakdown:     breakdown,
				SourceRequestID:    req.requestID,
				MatchedAt:          now,
			}
			created, err := matches.CreateIfAbsent(ctx, m)
			if err != nil {
				return err
			}
			if !created {
				return errLostRace
			}
			out.Created = true
			transitions = append(transitions, audit.Event{
				EntityType:  audit.EntityMatch,
				EntityID:    m.ID,
				ToStatus:    string(db.MatchActive),
				Reason:      req.reason,
				TriggeredBy: req.actor,
				Metadata: map[string]any{
					"score":          score.Score,
					"score_fallback": score.Fallback,
				},
			})
		} else if m.NeedsScore() && score != nil && !score.Fallback {
			n, err := matches.PatchScore(ctx, m.ID, score.Score, false, breakdown)
			if err != nil {
				return err
			}
			if n > 0 {
				patched = true
				m.CompatibilityScore = &score.Score
				m.ScoreFallback = false
			}
		}

		conv, err := convs.FindOrCreate(ctx, p, m.ID, e.newID())
		if err != nil {
			return err
		}
		if m.ConversationID == nil {
			if err := matches.SetConversation(ctx, m.ID, conv.ID); err != nil {
				return err
			}
		}

		if req.requestID != nil {
			n, err := requests.ConfirmForPair(ctx, *req.requestID, p, now)
			if err != nil {
				return err
			}
			switch {
			case n == 1:
				out.RequestConfirmed = true
				transitions = append(transitions, audit.Event{
					EntityType:  audit.EntityMatchRequest,
					EntityID:    *req.requestID,
					FromStatus:  string(db.RequestPending),
					ToStatus:    string(db.RequestConfirmed),
					Reason:      "match_formed",
					TriggeredBy: req.actor,
					Metadata:    map[string]any{"match_id": m.ID},
				})
				if !out.Created {
					if err := matches.SetSourceRequest(ctx, m.ID, *req.requestID); err != nil {
						return err
					}
				}
			case req.strict:
				return errRequestNotPending
			default:
				e.log.Debug("source request not confirmed, left untouched",
					"request_id", *req.requestID, "pair", p.String())
			}
		}

		f := formationOf(m, conv.ID)
		f.Created = out.Created
		f.RequestConfirmed = out.RequestConfirmed
		out = f
		return nil
	})
	if err != nil {
		return Formation{}, err
	}

	switch {
	case out.Created:
		observability.IncFormation("created")
	case patched:
		observability.IncFormation("patched")
	default:
		observability.IncFormation("existing")
	}

	// Side channels run after commit and cannot undo it.
	for _, ev := range transitions {
		ev.OccurredAt = now
		e.audit.Record(ctx, ev)
	}
	if out.Created && e.notifier != nil {
		ev := events.MatchFormed{
			MatchID:        out.MatchID,
			ConversationID: out.ConversationID,
			UserLowID:      p.Low,
			UserHighID:     p.High,
			Score:          out.Score,
			FormedAt:       now,
		}
		if req.requestID != nil {
			ev.SourceRequestID = *req.requestID
		}
		e.notifier.MatchFormed(context.WithoutCancel(ctx), ev)
	}
	return out, nil
}

func formationOf(m *db.Match, conversationID string) Formation {
	f := Formation{
		MatchID:        m.ID,
		ConversationID: conversationID,
		Status:         m.Status,
		ScoreFallback:  m.ScoreFallback,
	}
	if m.CompatibilityScore != nil {
		f.Score = *m.CompatibilityScore
	}
	return f
}

func (e *Engine) ensureNotBlocked(ctx context.Context, p pair.Pair) error {
	blocked, err := e.profiles.IsBlocked(ctx, p.Low, p.High)
	if err != nil {
		return svcErr.Classify(err)
	}
	if blocked {
		return svcErr.Ineligible([]string{eligibility.ReasonExcluded})
	}
	return nil
}
