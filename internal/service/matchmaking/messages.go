package matchmaking

// Wire messages. User IDs travel as decimal strings, timestamps as unix
// milliseconds.

type RecordSwipeRequest struct {
	SwiperUserID string `json:"swiper_user_id"`
	SwipedUserID string `json:"swiped_user_id"`
	Decision     string `json:"decision"` // like | pass
}

type RecordSwipeResponse struct {
	Matched        bool   `json:"matched"`
	MatchID        string `json:"match_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

type ConfirmMatchRequest struct {
	UserA           string  `json:"user_a"`
	UserB           string  `json:"user_b"`
	SourceRequestID *string `json:"source_request_id,omitempty"`
}

type MatchResponse struct {
	MatchID          string  `json:"match_id"`
	ConversationID   string  `json:"conversation_id"`
	Status           string  `json:"status"`
	Score            float64 `json:"score"`
	ScoreFallback    bool    `json:"score_fallback"`
	Created          bool    `json:"created"`
	RequestConfirmed bool    `json:"request_confirmed"`
}

type CompatibilityRequest struct {
	UserA string `json:"user_a"`
	UserB string `json:"user_b"`
}

type CompatibilityResponse struct {
	UserLowID      string             `json:"user_low_id"`
	UserHighID     string             `json:"user_high_id"`
	Score          float64            `json:"score"`
	Breakdown      map[string]float64 `json:"breakdown,omitempty"`
	ComputedAtUnix int64              `json:"computed_at_unix"`
	Fallback       bool               `json:"fallback"`
}

type CheckRateLimitRequest struct {
	Identifier      string `json:"identifier"`
	WindowStartUnix int64  `json:"window_start_unix"`
	Limit           int64  `json:"limit"`
	ResetAtUnix     int64  `json:"reset_at_unix"`
}

type CheckRateLimitResponse struct {
	Allowed     bool  `json:"allowed"`
	Count       int64 `json:"count"`
	Limit       int64 `json:"limit"`
	ResetAtUnix int64 `json:"reset_at_unix"`
}

type IsEligibleRequest struct {
	ViewerUserID    string `json:"viewer_user_id"`
	CandidateUserID string `json:"candidate_user_id"`
}

type IsEligibleResponse struct {
	Eligible bool     `json:"eligible"`
	Reasons  []string `json:"reasons"`
}

type CreateMatchRequestRequest struct {
	RequesterUserID string `json:"requester_user_id"`
	TargetUserID    string `json:"target_user_id"`
}

// RespondMatchRequestRequest serves accept, reject and cancel. UserID is the
// acting party.
type RespondMatchRequestRequest struct {
	UserID    string `json:"user_id"`
	RequestID string `json:"request_id"`
}

type MatchRequest struct {
	ID                 string   `json:"id"`
	RequesterUserID    string   `json:"requester_user_id"`
	TargetUserID       string   `json:"target_user_id"`
	Status             string   `json:"status"`
	ExpiresAtUnix      int64    `json:"expires_at_unix"`
	CompatibilityScore *float64 `json:"compatibility_score,omitempty"`
}

type MatchRequestResponse struct {
	Request MatchRequest `json:"request"`
}

type ListIncomingRequestsRequest struct {
	UserID string `json:"user_id"`
	Limit  int    `json:"limit"`
}

type ListIncomingRequestsResponse struct {
	Requests []MatchRequest `json:"requests"`
}

type PairActionRequest struct {
	ActorUserID string `json:"actor_user_id"`
	OtherUserID string `json:"other_user_id"`
}

type Empty struct{}

type ListMatchesRequest struct {
	UserID string `json:"user_id"`
	Status string `json:"status,omitempty"`
	Limit  int    `json:"limit"`
}

type Match struct {
	ID             string   `json:"id"`
	UserLowID      string   `json:"user_low_id"`
	UserHighID     string   `json:"user_high_id"`
	PartnerID      string   `json:"partner_id"`
	Status         string   `json:"status"`
	Score          *float64 `json:"score,omitempty"`
	ConversationID string   `json:"conversation_id,omitempty"`
	MatchedAtUnix  int64    `json:"matched_at_unix"`
}

type ListMatchesResponse struct {
	Matches []Match `json:"matches"`
}

type ListLikedYouRequest struct {
	RecipientUserID string  `json:"recipient_user_id"`
	PaginationToken *string `json:"pagination_token,omitempty"`
}

type Liker struct {
	ActorID       string `json:"actor_id"`
	UnixTimestamp uint64 `json:"unix_timestamp"`
}

type ListLikedYouResponse struct {
	Likers              []Liker `json:"likers"`
	NextPaginationToken *string `json:"next_pagination_token,omitempty"`
}

type CountLikedYouRequest struct {
	RecipientUserID string `json:"recipient_user_id"`
}

type CountLikedYouResponse struct {
	Count uint64 `json:"count"`
}
