package matching

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/oggyb/muzz-matchmaking/internal/audit"
	"github.com/oggyb/muzz-matchmaking/internal/db"
	svcErr "github.com/oggyb/muzz-matchmaking/internal/errors"
	"github.com/oggyb/muzz-matchmaking/internal/pair"
)

// CreateMatchRequest opens a request from requester to target.
//
// A request is unique per ordered pair. A terminal or lapsed request is
// reopened with a fresh TTL; a live pending one is a conflict.
func (e *Engine) CreateMatchRequest(ctx context.Context, requesterID, targetID uint64) (*db.MatchRequest, error) {
	p, err := pair.Canonical(requesterID, targetID)
	if err != nil {
		return nil, svcErr.Classify(err)
	}

	res, err := e.evaluate(ctx, requesterID, targetID, false)
	if err != nil {
		return nil, err
	}
	if !res.Eligible {
		return nil, svcErr.Ineligible(res.Reasons)
	}

	match, err := e.matches.FindByPair(ctx, p)
	if err != nil {
		return nil, svcErr.Classify(err)
	}
	if match != nil {
		return nil, svcErr.Conflict("users are already matched")
	}

	if err := e.allow(ctx, e.policies.RequestsPerDay, requesterID); err != nil {
		return nil, err
	}

	score, err := e.compat.GetOrCompute(ctx, requesterID, targetID)
	if err != nil {
		return nil, svcErr.Classify(err)
	}
	snapshot, err := json.Marshal(score)
	if err != nil {
		e.log.Warn("compatibility snapshot dropped", "requester", requesterID, "target", targetID, "err", err)
	}

	now := e.now()
	req := &db.MatchRequest{
		RequesterID:           requesterID,
		TargetID:              targetID,
		Status:                db.RequestPending,
		ExpiresAt:             now.Add(e.opts.RequestTTL),
		CompatibilitySnapshot: snapshot,
	}

	existing, err := e.requests.FindByOrderedPair(ctx, requesterID, targetID)
	if err != nil {
		return nil, svcErr.Classify(err)
	}

	from := ""
	if existing == nil {
		req.ID = e.newID()
		if err := e.requests.Create(ctx, req); err != nil {
			if svcErr.IsDuplicateKey(err) {
				return nil, svcErr.Conflict("a match request already exists")
			}
			return nil, svcErr.Classify(err)
		}
	} else {
		if existing.Status == db.RequestPending && existing.ExpiresAt.After(now) {
			return nil, svcErr.Conflict("a pending match request already exists")
		}
		req.ID = existing.ID
		req.CreatedAt = existing.CreatedAt
		n, err := e.requests.Reopen(ctx, req, now)
		if err != nil {
			return nil, svcErr.Classify(err)
		}
		if n == 0 {
			return nil, svcErr.Conflict("a pending match request already exists")
		}
		from = string(existing.Status)
	}

	e.audit.Record(ctx, audit.Event{
		EntityType:  audit.EntityMatchRequest,
		EntityID:    req.ID,
		FromStatus:  from,
		ToStatus:    string(db.RequestPending),
		Reason:      "requested",
		TriggeredBy: requesterID,
		OccurredAt:  now,
		Metadata:    map[string]any{"score": score.Score, "expires_at": req.ExpiresAt},
	})
	return req, nil
}

// AcceptMatchRequest confirms the request on behalf of its target and forms
// the match. A terminal or expired request is a conflict and nothing is
// formed; the request update and the match commit together.
func (e *Engine) AcceptMatchRequest(ctx context.Context, targetID uint64, requestID string) (Formation, error) {
	req, err := e.loadRequest(ctx, requestID)
	if err != nil {
		return Formation{}, err
	}
	if req.TargetID != targetID {
		return Formation{}, svcErr.NotFound("match request", requestID)
	}
	if err := e.ensureRespondable(ctx, req, targetID); err != nil {
		return Formation{}, err
	}

	p, err := pair.Canonical(req.RequesterID, req.TargetID)
	if err != nil {
		return Formation{}, svcErr.Classify(err)
	}
	if err := e.ensureNotBlocked(ctx, p); err != nil {
		return Formation{}, err
	}

	return e.form(ctx, formRequest{
		pair:      p,
		actor:     targetID,
		reason:    "request_accepted",
		requestID: &req.ID,
		strict:    true,
	})
}

// RejectMatchRequest is the target declining the request.
func (e *Engine) RejectMatchRequest(ctx context.Context, targetID uint64, requestID string) error {
	return e.respond(ctx, requestID, "target_id", targetID, db.RequestRejected, "rejected")
}

// CancelMatchRequest is the requester withdrawing the request.
func (e *Engine) CancelMatchRequest(ctx context.Context, requesterID uint64, requestID string) error {
	return e.respond(ctx, requestID, "requester_id", requesterID, db.RequestCancelled, "cancelled")
}

// ListIncomingRequests returns live pending requests addressed to targetID.
func (e *Engine) ListIncomingRequests(ctx context.Context, targetID uint64, limit int) ([]db.MatchRequest, error) {
	if targetID == 0 {
		return nil, svcErr.Validation("user id must be non-zero")
	}
	reqs, err := e.requests.ListPendingForTarget(ctx, targetID, e.now(), limit)
	return reqs, svcErr.Classify(err)
}

// ExpireStaleRequests moves every lapsed pending request to expired and
// audits each one. Returns how many were expired.
func (e *Engine) ExpireStaleRequests(ctx context.Context, batch int) (int, error) {
	if batch <= 0 {
		batch = 100
	}
	total := 0
	for {
		now := e.now()
		stale, err := e.requests.ListExpired(ctx, now, batch)
		if err != nil {
			return total, svcErr.Classify(err)
		}
		for _, r := range stale {
			n, err := e.requests.Expire(ctx, r.ID, now)
			if err != nil {
				return total, svcErr.Classify(err)
			}
			if n == 0 {
				// confirmed or cancelled in the meantime
				continue
			}
			total++
			e.audit.Record(ctx, audit.Event{
				EntityType: audit.EntityMatchRequest,
				EntityID:   r.ID,
				FromStatus: string(db.RequestPending),
				ToStatus:   string(db.RequestExpired),
				Reason:     "ttl",
				OccurredAt: now,
				Metadata:   map[string]any{"expires_at": r.ExpiresAt},
			})
		}
		if len(stale) < batch {
			return total, nil
		}
	}
}

func (e *Engine) respond(ctx context.Context, requestID, party string, userID uint64, to db.RequestStatus, reason string) error {
	req, err := e.loadRequest(ctx, requestID)
	if err != nil {
		return err
	}
	owner := req.TargetID
	if party == "requester_id" {
		owner = req.RequesterID
	}
	if owner != userID {
		return svcErr.NotFound("match request", requestID)
	}
	if err := e.ensureRespondable(ctx, req, userID); err != nil {
		return err
	}

	now := e.now()
	n, err := e.requests.Respond(ctx, req.ID, party, userID, to, now)
	if err != nil {
		return svcErr.Classify(err)
	}
	if n == 0 {
		return svcErr.Conflict("match request is no longer pending")
	}

	e.audit.Record(ctx, audit.Event{
		EntityType:  audit.EntityMatchRequest,
		EntityID:    req.ID,
		FromStatus:  string(db.RequestPending),
		ToStatus:    string(to),
		Reason:      reason,
		TriggeredBy: userID,
		OccurredAt:  now,
	})
	return nil
}

func (e *Engine) loadRequest(ctx context.Context, requestID string) (*db.MatchRequest, error) {
	if requestID == "" {
		return nil, svcErr.Validation("request id is required")
	}
	req, err := e.requests.Get(ctx, requestID)
	if err != nil {
		return nil, svcErr.Classify(err)
	}
	if req == nil {
		return nil, svcErr.NotFound("match request", requestID)
	}
	return req, nil
}

// ensureRespondable rejects terminal requests. A pending request past its
// TTL is expired on the spot so the trail shows why it was refused.
func (e *Engine) ensureRespondable(ctx context.Context, req *db.MatchRequest, actor uint64) error {
	if req.Status.Terminal() {
		return svcErr.Conflict(fmt.Sprintf("match request is already %s", req.Status))
	}
	now := e.now()
	if req.ExpiresAt.After(now) {
		return nil
	}

	n, err := e.requests.Expire(ctx, req.ID, now)
	if err != nil {
		return svcErr.Classify(err)
	}
	if n == 1 {
		e.audit.Record(ctx, audit.Event{
			EntityType:  audit.EntityMatchRequest,
			EntityID:    req.ID,
			FromStatus:  string(db.RequestPending),
			ToStatus:    string(db.RequestExpired),
			Reason:      "ttl",
			TriggeredBy: actor,
			OccurredAt:  now,
		})
	}
	return svcErr.Conflict("match request has expired")
}
