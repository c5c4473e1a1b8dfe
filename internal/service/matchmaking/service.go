package matchmaking

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/oggyb/muzz-matchmaking/internal/app"
	"github.com/oggyb/muzz-matchmaking/internal/cache"
	"github.com/oggyb/muzz-matchmaking/internal/compat"
	"github.com/oggyb/muzz-matchmaking/internal/db"
	svcErr "github.com/oggyb/muzz-matchmaking/internal/errors"
	"github.com/oggyb/muzz-matchmaking/internal/logger"
	"github.com/oggyb/muzz-matchmaking/internal/pair"
	"github.com/oggyb/muzz-matchmaking/internal/repository"
)

const (
	likersPageSize   = 5
	likeCountTTL     = time.Hour
	defaultListLimit = 20
	maxListLimit     = 100
)

// Service implements the Matchmaking gRPC API on top of the matching engine,
// the compatibility cache and the rate limiter. Every method parses wire IDs,
// delegates, and maps domain errors to gRPC status codes.
type Service struct {
	appCtx *app.AppContext
	swipes *repository.SwipeRepository
}

var _ Server = (*Service)(nil)

// NewMatchmakingService creates the service with dependencies from AppContext.
func NewMatchmakingService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx: appCtx,
		swipes: appCtx.Engine.Swipes(),
	}
}

// RecordSwipe stores a like or pass and reports whether it formed a match.
//
// Behavior:
//   - Validates both IDs and the decision.
//   - Likes are checked for eligibility; both decisions count against the
//     swipe rate limits.
//   - A like that meets a stored reverse like forms the match atomically.
//
// Example:
//
//	svc.RecordSwipe(ctx, &RecordSwipeRequest{SwiperUserID: "1", SwipedUserID: "2", Decision: "like"})
func (s *Service) RecordSwipe(ctx context.Context, req *RecordSwipeRequest) (*RecordSwipeResponse, error) {
	s.appCtx.Logger.Debug("RecordSwipe called",
		"swiper", req.SwiperUserID, "swiped", req.SwipedUserID, "decision", req.Decision)

	swiperID, err := parseID("swiper_user_id", req.SwiperUserID)
	if err != nil {
		return nil, err
	}
	swipedID, err := parseID("swiped_user_id", req.SwipedUserID)
	if err != nil {
		return nil, err
	}
	decision := db.SwipeDecision(req.Decision)
	if decision != db.DecisionLike && decision != db.DecisionPass {
		return nil, svcErr.InvalidArgument("decision must be like or pass")
	}

	res, err := s.appCtx.Engine.RecordSwipe(ctx, swiperID, swipedID, decision)
	if err != nil {
		return nil, s.fail(ctx, "RecordSwipe", err)
	}
	return &RecordSwipeResponse{
		Matched:        res.Matched,
		MatchID:        res.MatchID,
		ConversationID: res.ConversationID,
	}, nil
}

// ConfirmMatch forms the match for a pair regardless of swipes. Repeated and
// concurrent calls, in either order, return the same match.
func (s *Service) ConfirmMatch(ctx context.Context, req *ConfirmMatchRequest) (*MatchResponse, error) {
	s.appCtx.Logger.Debug("ConfirmMatch called", "user_a", req.UserA, "user_b", req.UserB)

	a, err := parseID("user_a", req.UserA)
	if err != nil {
		return nil, err
	}
	b, err := parseID("user_b", req.UserB)
	if err != nil {
		return nil, err
	}
	var source *string
	if req.SourceRequestID != nil && *req.SourceRequestID != "" {
		source = req.SourceRequestID
	}

	f, err := s.appCtx.Engine.ConfirmMatch(ctx, a, b, source)
	if err != nil {
		return nil, s.fail(ctx, "ConfirmMatch", err)
	}
	return toMatchResponse(f.MatchID, f.ConversationID, string(f.Status), f.Score, f.ScoreFallback, f.Created, f.RequestConfirmed), nil
}

// GetCompatibility returns the memoized score of a pair. A scorer outage
// yields the default score with Fallback set, never an error.
func (s *Service) GetCompatibility(ctx context.Context, req *CompatibilityRequest) (*CompatibilityResponse, error) {
	s.appCtx.Logger.Debug("GetCompatibility called", "user_a", req.UserA, "user_b", req.UserB)

	p, err := parsePair(req)
	if err != nil {
		return nil, err
	}
	res, err := s.appCtx.Compat.GetOrCompute(ctx, p.Low, p.High)
	if err != nil {
		return nil, s.fail(ctx, "GetCompatibility", err)
	}
	return toCompatibility(p, res), nil
}

// RecomputeCompatibility replaces the cached score with a fresh one. When the
// scorer is down the old entry is kept and Unavailable is returned.
func (s *Service) RecomputeCompatibility(ctx context.Context, req *CompatibilityRequest) (*CompatibilityResponse, error) {
	s.appCtx.Logger.Debug("RecomputeCompatibility called", "user_a", req.UserA, "user_b", req.UserB)

	p, err := parsePair(req)
	if err != nil {
		return nil, err
	}
	res, err := s.appCtx.Compat.Recompute(ctx, p.Low, p.High)
	if err != nil {
		return nil, s.fail(ctx, "RecomputeCompatibility", svcErr.Transient(err))
	}
	return toCompatibility(p, res), nil
}

// CheckRateLimit counts one request against a caller-supplied fixed window.
func (s *Service) CheckRateLimit(ctx context.Context, req *CheckRateLimitRequest) (*CheckRateLimitResponse, error) {
	s.appCtx.Logger.Debug("CheckRateLimit called", "identifier", req.Identifier, "window_start", req.WindowStartUnix)

	if req.Identifier == "" {
		return nil, svcErr.InvalidArgument("identifier is required")
	}
	if req.Limit <= 0 {
		return nil, svcErr.InvalidArgument("limit must be positive")
	}
	if req.ResetAtUnix <= req.WindowStartUnix {
		return nil, svcErr.InvalidArgument("reset_at_unix must be after window_start_unix")
	}

	d, err := s.appCtx.Limiter.CheckAndIncrement(ctx,
		req.Identifier,
		time.Unix(req.WindowStartUnix, 0).UTC(),
		req.Limit,
		time.Unix(req.ResetAtUnix, 0).UTC(),
	)
	if err != nil {
		return nil, s.fail(ctx, "CheckRateLimit", err)
	}
	return &CheckRateLimitResponse{
		Allowed:     d.Allowed,
		Count:       d.Count,
		Limit:       d.Limit,
		ResetAtUnix: d.ResetAt.Unix(),
	}, nil
}

// IsEligible evaluates both sides' preferences for discovery: prior swipes
// and blocks exclude the candidate.
func (s *Service) IsEligible(ctx context.Context, req *IsEligibleRequest) (*IsEligibleResponse, error) {
	s.appCtx.Logger.Debug("IsEligible called", "viewer", req.ViewerUserID, "candidate", req.CandidateUserID)

	viewerID, err := parseID("viewer_user_id", req.ViewerUserID)
	if err != nil {
		return nil, err
	}
	candidateID, err := parseID("candidate_user_id", req.CandidateUserID)
	if err != nil {
		return nil, err
	}

	res, err := s.appCtx.Engine.CheckEligibility(ctx, viewerID, candidateID)
	if err != nil {
		return nil, s.fail(ctx, "IsEligible", err)
	}
	reasons := res.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	return &IsEligibleResponse{Eligible: res.Eligible, Reasons: reasons}, nil
}

// CreateMatchRequest opens (or reopens) a request from requester to target.
func (s *Service) CreateMatchRequest(ctx context.Context, req *CreateMatchRequestRequest) (*MatchRequestResponse, error) {
	s.appCtx.Logger.Debug("CreateMatchRequest called", "requester", req.RequesterUserID, "target", req.TargetUserID)

	requesterID, err := parseID("requester_user_id", req.RequesterUserID)
	if err != nil {
		return nil, err
	}
	targetID, err := parseID("target_user_id", req.TargetUserID)
	if err != nil {
		return nil, err
	}

	mr, err := s.appCtx.Engine.CreateMatchRequest(ctx, requesterID, targetID)
	if err != nil {
		return nil, s.fail(ctx, "CreateMatchRequest", err)
	}
	return &MatchRequestResponse{Request: toMatchRequest(mr)}, nil
}

// AcceptMatchRequest confirms a pending request as its target and forms the
// match. Terminal or expired requests are rejected with Aborted.
func (s *Service) AcceptMatchRequest(ctx context.Context, req *RespondMatchRequestRequest) (*MatchResponse, error) {
	s.appCtx.Logger.Debug("AcceptMatchRequest called", "user", req.UserID, "request", req.RequestID)

	userID, err := parseRespond(req)
	if err != nil {
		return nil, err
	}
	f, err := s.appCtx.Engine.AcceptMatchRequest(ctx, userID, req.RequestID)
	if err != nil {
		return nil, s.fail(ctx, "AcceptMatchRequest", err)
	}
	return toMatchResponse(f.MatchID, f.ConversationID, string(f.Status), f.Score, f.ScoreFallback, f.Created, f.RequestConfirmed), nil
}

func (s *Service) RejectMatchRequest(ctx context.Context, req *RespondMatchRequestRequest) (*Empty, error) {
	s.appCtx.Logger.Debug("RejectMatchRequest called", "user", req.UserID, "request", req.RequestID)

	userID, err := parseRespond(req)
	if err != nil {
		return nil, err
	}
	if err := s.appCtx.Engine.RejectMatchRequest(ctx, userID, req.RequestID); err != nil {
		return nil, s.fail(ctx, "RejectMatchRequest", err)
	}
	return &Empty{}, nil
}

func (s *Service) CancelMatchRequest(ctx context.Context, req *RespondMatchRequestRequest) (*Empty, error) {
	s.appCtx.Logger.Debug("CancelMatchRequest called", "user", req.UserID, "request", req.RequestID)

	userID, err := parseRespond(req)
	if err != nil {
		return nil, err
	}
	if err := s.appCtx.Engine.CancelMatchRequest(ctx, userID, req.RequestID); err != nil {
		return nil, s.fail(ctx, "CancelMatchRequest", err)
	}
	return &Empty{}, nil
}

func (s *Service) ListIncomingRequests(ctx context.Context, req *ListIncomingRequestsRequest) (*ListIncomingRequestsResponse, error) {
	s.appCtx.Logger.Debug("ListIncomingRequests called", "user", req.UserID)

	userID, err := parseID("user_id", req.UserID)
	if err != nil {
		return nil, err
	}
	reqs, err := s.appCtx.Engine.ListIncomingRequests(ctx, userID, listLimit(req.Limit))
	if err != nil {
		return nil, s.fail(ctx, "ListIncomingRequests", err)
	}

	resp := &ListIncomingRequestsResponse{Requests: make([]MatchRequest, 0, len(reqs))}
	for i := range reqs {
		resp.Requests = append(resp.Requests, toMatchRequest(&reqs[i]))
	}
	return resp, nil
}

func (s *Service) Unmatch(ctx context.Context, req *PairActionRequest) (*Empty, error) {
	s.appCtx.Logger.Debug("Unmatch called", "actor", req.ActorUserID, "other", req.OtherUserID)

	actorID, otherID, err := parseAction(req)
	if err != nil {
		return nil, err
	}
	if err := s.appCtx.Engine.Unmatch(ctx, actorID, otherID); err != nil {
		return nil, s.fail(ctx, "Unmatch", err)
	}
	return &Empty{}, nil
}

// Block records a block and moves any match between the two users to blocked.
func (s *Service) Block(ctx context.Context, req *PairActionRequest) (*Empty, error) {
	s.appCtx.Logger.Debug("Block called", "actor", req.ActorUserID, "other", req.OtherUserID)

	actorID, otherID, err := parseAction(req)
	if err != nil {
		return nil, err
	}
	if err := s.appCtx.Engine.Block(ctx, actorID, otherID); err != nil {
		return nil, s.fail(ctx, "Block", err)
	}
	return &Empty{}, nil
}

func (s *Service) ListMatches(ctx context.Context, req *ListMatchesRequest) (*ListMatchesResponse, error) {
	s.appCtx.Logger.Debug("ListMatches called", "user", req.UserID, "status", req.Status)

	userID, err := parseID("user_id", req.UserID)
	if err != nil {
		return nil, err
	}
	status := db.MatchStatus(req.Status)
	switch status {
	case "", db.MatchActive, db.MatchInactive, db.MatchBlocked:
	default:
		return nil, svcErr.InvalidArgument("status must be active, inactive or blocked")
	}

	matches, err := s.appCtx.Engine.ListMatches(ctx, userID, status, listLimit(req.Limit))
	if err != nil {
		return nil, s.fail(ctx, "ListMatches", err)
	}

	resp := &ListMatchesResponse{Matches: make([]Match, 0, len(matches))}
	for _, m := range matches {
		partner, _ := pair.Pair{Low: m.UserLowID, High: m.UserHighID}.Other(userID)
		out := Match{
			ID:            m.ID,
			UserLowID:     strconv.FormatUint(m.UserLowID, 10),
			UserHighID:    strconv.FormatUint(m.UserHighID, 10),
			PartnerID:     strconv.FormatUint(partner, 10),
			Status:        string(m.Status),
			Score:         m.CompatibilityScore,
			MatchedAtUnix: m.MatchedAt.UnixMilli(),
		}
		if m.ConversationID != nil {
			out.ConversationID = *m.ConversationID
		}
		resp.Matches = append(resp.Matches, out)
	}
	return resp, nil
}

// ListLikedYou returns all users who liked the given recipient.
//
// Behavior:
//   - Fetches likes for the given recipient via repository.GetLikers.
//   - Excludes users that the recipient explicitly passed.
//   - Supports cursor-based pagination with paginationToken.
//   - Returns actor_id + timestamp pairs.
//
// Example:
//
//	svc.ListLikedYou(ctx, &ListLikedYouRequest{RecipientUserID: "42"})
func (s *Service) ListLikedYou(ctx context.Context, req *ListLikedYouRequest) (*ListLikedYouResponse, error) {
	s.appCtx.Logger.Debug("ListLikedYou called", "recipient", req.RecipientUserID, "has_token", req.PaginationToken != nil)

	recipientID, err := parseID("recipient_user_id", req.RecipientUserID)
	if err != nil {
		s.appCtx.Logger.Error("Invalid recipient_user_id", "value", req.RecipientUserID, "err", err)
		return nil, err
	}

	swipes, nextToken, err := s.swipes.GetLikers(ctx, recipientID, req.PaginationToken, likersPageSize)
	if err != nil {
		return nil, s.fail(ctx, "GetLikers", err)
	}

	resp := toLikers(swipes, nextToken)
	s.appCtx.Logger.Debug("ListLikedYou result", "liker_count", len(resp.Likers))
	return resp, nil
}

// ListNewLikedYou returns users who liked the recipient and have not been
// liked back. Passed users are excluded, as in ListLikedYou.
func (s *Service) ListNewLikedYou(ctx context.Context, req *ListLikedYouRequest) (*ListLikedYouResponse, error) {
	s.appCtx.Logger.Debug("ListNewLikedYou called", "recipient", req.RecipientUserID)

	recipientID, err := parseID("recipient_user_id", req.RecipientUserID)
	if err != nil {
		return nil, err
	}

	swipes, nextToken, err := s.swipes.GetNewLikers(ctx, recipientID, req.PaginationToken, likersPageSize)
	if err != nil {
		return nil, s.fail(ctx, "GetNewLikers", err)
	}
	return toLikers(swipes, nextToken), nil
}

// CountLikedYou returns how many users liked the recipient.
// Cache-first strategy:
//  1. Attempts to read from Redis (likes:count:userID).
//  2. If cache miss or parse error, falls back to DB via repository.CountLikers.
//  3. On DB fetch, updates Redis with a 1h TTL.
//
// Swipes that change a like invalidate the cached count.
func (s *Service) CountLikedYou(ctx context.Context, req *CountLikedYouRequest) (*CountLikedYouResponse, error) {
	s.appCtx.Logger.Debug("CountLikedYou called", "recipient", req.RecipientUserID)

	recipientID, err := parseID("recipient_user_id", req.RecipientUserID)
	if err != nil {
		return nil, err
	}

	rc := s.appCtx.RedisCache
	if rc != nil {
		n, err := rc.GetLikeCount(ctx, recipientID, likeCountTTL)
		if err == nil {
			return &CountLikedYouResponse{Count: n}, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			s.appCtx.Logger.Warn("like count cache read failed", "recipient", recipientID, "err", err)
		}
	}

	count, err := s.swipes.CountLikers(ctx, recipientID)
	if err != nil {
		return nil, s.fail(ctx, "CountLikers", err)
	}
	if rc != nil {
		_ = rc.SetLikeCount(ctx, recipientID, count, likeCountTTL)
	}
	return &CountLikedYouResponse{Count: uint64(count)}, nil
}

// fail logs unexpected errors and maps err to a gRPC status. Business
// rejections are logged at debug.
func (s *Service) fail(ctx context.Context, op string, err error) error {
	err = svcErr.Classify(err)
	log := logger.FromContext(ctx, s.appCtx.Logger)
	switch svcErr.KindOf(err) {
	case svcErr.KindValidation, svcErr.KindConflict, svcErr.KindIneligible,
		svcErr.KindNotFound, svcErr.KindRateLimited:
		log.Debug(op+" rejected", "err", err)
	default:
		log.Error(op+" failed", "err", err)
	}
	return svcErr.Map(err)
}

func parseID(field, raw string) (uint64, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, svcErr.InvalidArgument(field + " must be a valid non-zero uint64")
	}
	return id, nil
}

func parsePair(req *CompatibilityRequest) (pair.Pair, error) {
	a, err := parseID("user_a", req.UserA)
	if err != nil {
		return pair.Pair{}, err
	}
	b, err := parseID("user_b", req.UserB)
	if err != nil {
		return pair.Pair{}, err
	}
	p, err := pair.Canonical(a, b)
	if err != nil {
		return pair.Pair{}, svcErr.Map(err)
	}
	return p, nil
}

func parseRespond(req *RespondMatchRequestRequest) (uint64, error) {
	userID, err := parseID("user_id", req.UserID)
	if err != nil {
		return 0, err
	}
	if req.RequestID == "" {
		return 0, svcErr.InvalidArgument("request_id is required")
	}
	return userID, nil
}

func parseAction(req *PairActionRequest) (uint64, uint64, error) {
	actorID, err := parseID("actor_user_id", req.ActorUserID)
	if err != nil {
		return 0, 0, err
	}
	otherID, err := parseID("other_user_id", req.OtherUserID)
	if err != nil {
		return 0, 0, err
	}
	return actorID, otherID, nil
}

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return n
}

func toMatchResponse(matchID, convID, status string, score float64, fallback, created, confirmed bool) *MatchResponse {
	return &MatchResponse{
		MatchID:          matchID,
		ConversationID:   convID,
		Status:           status,
		Score:            score,
		ScoreFallback:    fallback,
		Created:          created,
		RequestConfirmed: confirmed,
	}
}

func toCompatibility(p pair.Pair, res compat.Result) *CompatibilityResponse {
	return &CompatibilityResponse{
		UserLowID:      strconv.FormatUint(p.Low, 10),
		UserHighID:     strconv.FormatUint(p.High, 10),
		Score:          res.Score,
		Breakdown:      res.Breakdown,
		ComputedAtUnix: res.ComputedAt.UnixMilli(),
		Fallback:       res.Fallback,
	}
}

func toMatchRequest(mr *db.MatchRequest) MatchRequest {
	out := MatchRequest{
		ID:              mr.ID,
		RequesterUserID: strconv.FormatUint(mr.RequesterID, 10),
		TargetUserID:    strconv.FormatUint(mr.TargetID, 10),
		Status:          string(mr.Status),
		ExpiresAtUnix:   mr.ExpiresAt.UnixMilli(),
	}
	var snap compat.Result
	if len(mr.CompatibilitySnapshot) > 0 && json.Unmarshal(mr.CompatibilitySnapshot, &snap) == nil {
		out.CompatibilityScore = &snap.Score
	}
	return out
}

func toLikers(swipes []db.Swipe, nextToken *string) *ListLikedYouResponse {
	resp := &ListLikedYouResponse{Likers: make([]Liker, 0, len(swipes))}
	for _, sw := range swipes {
		resp.Likers = append(resp.Likers, Liker{
			ActorID:       strconv.FormatUint(sw.SwiperID, 10),
			UnixTimestamp: uint64(sw.UpdatedAt.UnixMilli()),
		})
	}
	resp.NextPaginationToken = nextToken
	return resp
}
