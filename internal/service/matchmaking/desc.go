package matchmaking

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "matchmaking.v1.Matchmaking"

// Server is the matchmaking gRPC API.
type Server interface {
	RecordSwipe(context.Context, *RecordSwipeRequest) (*RecordSwipeResponse, error)
	ConfirmMatch(context.Context, *ConfirmMatchRequest) (*MatchResponse, error)
	GetCompatibility(context.Context, *CompatibilityRequest) (*CompatibilityResponse, error)
	RecomputeCompatibility(context.Context, *CompatibilityRequest) (*CompatibilityResponse, error)
	CheckRateLimit(context.Context, *CheckRateLimitRequest) (*CheckRateLimitResponse, error)
	IsEligible(context.Context, *IsEligibleRequest) (*IsEligibleResponse, error)

	CreateMatchRequest(context.Context, *CreateMatchRequestRequest) (*MatchRequestResponse, error)
	AcceptMatchRequest(context.Context, *RespondMatchRequestRequest) (*MatchResponse, error)
	RejectMatchRequest(context.Context, *RespondMatchRequestRequest) (*Empty, error)
	CancelMatchRequest(context.Context, *RespondMatchRequestRequest) (*Empty, error)
	ListIncomingRequests(context.Context, *ListIncomingRequestsRequest) (*ListIncomingRequestsResponse, error)

	Unmatch(context.Context, *PairActionRequest) (*Empty, error)
	Block(context.Context, *PairActionRequest) (*Empty, error)
	ListMatches(context.Context, *ListMatchesRequest) (*ListMatchesResponse, error)

	ListLikedYou(context.Context, *ListLikedYouRequest) (*ListLikedYouResponse, error)
	ListNewLikedYou(context.Context, *ListLikedYouRequest) (*ListLikedYouResponse, error)
	CountLikedYou(context.Context, *CountLikedYouRequest) (*CountLikedYouResponse, error)
}

// ServiceDesc describes the service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		unary("RecordSwipe", Server.RecordSwipe),
		unary("ConfirmMatch", Server.ConfirmMatch),
		unary("GetCompatibility", Server.GetCompatibility),
		unary("RecomputeCompatibility", Server.RecomputeCompatibility),
		unary("CheckRateLimit", Server.CheckRateLimit),
		unary("IsEligible", Server.IsEligible),
		unary("CreateMatchRequest", Server.CreateMatchRequest),
		unary("AcceptMatchRequest", Server.AcceptMatchRequest),
		unary("RejectMatchRequest", Server.RejectMatchRequest),
		unary("CancelMatchRequest", Server.CancelMatchRequest),
		unary("ListIncomingRequests", Server.ListIncomingRequests),
		unary("Unmatch", Server.Unmatch),
		unary("Block", Server.Block),
		unary("ListMatches", Server.ListMatches),
		unary("ListLikedYou", Server.ListLikedYou),
		unary("ListNewLikedYou", Server.ListNewLikedYou),
		unary("CountLikedYou", Server.CountLikedYou),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "matchmaking/v1/matchmaking",
}

// RegisterServer attaches srv to s.
func RegisterServer(s grpc.ServiceRegistrar, srv Server) {
	s.RegisterService(&ServiceDesc, srv)
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// unary builds the method handler for one RPC, running the server's
// interceptor chain when one is installed.
func unary[Req, Resp any](method string, call func(Server, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(Server), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(Server), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}
