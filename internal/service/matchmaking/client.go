package matchmaking

import (
	"context"

	"google.golang.org/grpc"
)

// Client calls the matchmaking service over any gRPC connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func invoke[Resp any](ctx context.Context, c *Client, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, fullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) RecordSwipe(ctx context.Context, in *RecordSwipeRequest, opts ...grpc.CallOption) (*RecordSwipeResponse, error) {
	return invoke[RecordSwipeResponse](ctx, c, "RecordSwipe", in, opts)
}

func (c *Client) ConfirmMatch(ctx context.Context, in *ConfirmMatchRequest, opts ...grpc.CallOption) (*MatchResponse, error) {
	return invoke[MatchResponse](ctx, c, "ConfirmMatch", in, opts)
}

func (c *Client) GetCompatibility(ctx context.Context, in *CompatibilityRequest, opts ...grpc.CallOption) (*CompatibilityResponse, error) {
	return invoke[CompatibilityResponse](ctx, c, "GetCompatibility", in, opts)
}

func (c *Client) RecomputeCompatibility(ctx context.Context, in *CompatibilityRequest, opts ...grpc.CallOption) (*CompatibilityResponse, error) {
	return invoke[CompatibilityResponse](ctx, c, "RecomputeCompatibility", in, opts)
}

func (c *Client) CheckRateLimit(ctx context.Context, in *CheckRateLimitRequest, opts ...grpc.CallOption) (*CheckRateLimitResponse, error) {
	return invoke[CheckRateLimitResponse](ctx, c, "CheckRateLimit", in, opts)
}

func (c *Client) IsEligible(ctx context.Context, in *IsEligibleRequest, opts ...grpc.CallOption) (*IsEligibleResponse, error) {
	return invoke[IsEligibleResponse](ctx, c, "IsEligible", in, opts)
}

func (c *Client) CreateMatchRequest(ctx context.Context, in *CreateMatchRequestRequest, opts ...grpc.CallOption) (*MatchRequestResponse, error) {
	return invoke[MatchRequestResponse](ctx, c, "CreateMatchRequest", in, opts)
}

func (c *Client) AcceptMatchRequest(ctx context.Context, in *RespondMatchRequestRequest, opts ...grpc.CallOption) (*MatchResponse, error) {
	return invoke[MatchResponse](ctx, c, "AcceptMatchRequest", in, opts)
}

func (c *Client) RejectMatchRequest(ctx context.Context, in *RespondMatchRequestRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c, "RejectMatchRequest", in, opts)
}

func (c *Client) CancelMatchRequest(ctx context.Context, in *RespondMatchRequestRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c, "CancelMatchRequest", in, opts)
}

func (c *Client) ListIncomingRequests(ctx context.Context, in *ListIncomingRequestsRequest, opts ...grpc.CallOption) (*ListIncomingRequestsResponse, error) {
	return invoke[ListIncomingRequestsResponse](ctx, c, "ListIncomingRequests", in, opts)
}

func (c *Client) Unmatch(ctx context.Context, in *PairActionRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c, "Unmatch", in, opts)
}

func (c *Client) Block(ctx context.Context, in *PairActionRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c, "Block", in, opts)
}

func (c *Client) ListMatches(ctx context.Context, in *ListMatchesRequest, opts ...grpc.CallOption) (*ListMatchesResponse, error) {
	return invoke[ListMatchesResponse](ctx, c, "ListMatches", in, opts)
}

func (c *Client) ListLikedYou(ctx context.Context, in *ListLikedYouRequest, opts ...grpc.CallOption) (*ListLikedYouResponse, error) {
	return invoke[ListLikedYouResponse](ctx, c, "ListLikedYou", in, opts)
}

func (c *Client) ListNewLikedYou(ctx context.Context, in *ListLikedYouRequest, opts ...grpc.CallOption) (*ListLikedYouResponse, error) {
	return invoke[ListLikedYouResponse](ctx, c, "ListNewLikedYou", in, opts)
}

func (c *Client) CountLikedYou(ctx context.Context, in *CountLikedYouRequest, opts ...grpc.CallOption) (*CountLikedYouResponse, error) {
	return invoke[CountLikedYouResponse](ctx, c, "CountLikedYou", in, opts)
}
