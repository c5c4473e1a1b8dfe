package errors

import (
	"context"
	"errors"
	"time"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"
)

// ErrorDomain tags ErrorInfo details produced by this service.
const ErrorDomain = "matchmaking.muzz"

// Map converts domain and infra errors into gRPC status errors.
// Business rejections carry ErrorInfo; retryable failures carry RetryInfo.
func Map(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "request timed out")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request was canceled")
	}

	err = Classify(err)
	var e *Error
	if !errors.As(err, &e) {
		return status.Error(codes.Internal, err.Error())
	}

	switch e.Kind {
	case KindValidation:
		return withInfo(codes.InvalidArgument, e)
	case KindConflict:
		return withInfo(codes.Aborted, e)
	case KindIneligible:
		return withInfo(codes.FailedPrecondition, e)
	case KindNotFound:
		return withInfo(codes.NotFound, e)
	case KindRateLimited:
		delay := e.RetryAfter
		if delay <= 0 {
			delay = time.Second
		}
		return withRetry(codes.ResourceExhausted, e, delay)
	case KindTransient:
		return withRetry(codes.Unavailable, e, 100*time.Millisecond)
	}
	return status.Error(codes.Internal, e.Error())
}

// InvalidArgument creates a gRPC InvalidArgument error.
// Use this in service layer for bad input validation.
func InvalidArgument(msg string) error {
	return Map(Validation(msg))
}

func withInfo(code codes.Code, e *Error) error {
	info := &errdetails.ErrorInfo{Reason: string(e.Kind), Domain: ErrorDomain}
	if len(e.Reasons) > 0 {
		info.Metadata = map[string]string{}
		for _, r := range e.Reasons {
			info.Metadata[r] = "true"
		}
	}
	st, derr := status.New(code, e.Message).WithDetails(info)
	if derr != nil {
		return status.Error(code, e.Message)
	}
	return st.Err()
}

func withRetry(code codes.Code, e *Error, delay time.Duration) error {
	st, derr := status.New(code, e.Message).WithDetails(
		&errdetails.ErrorInfo{Reason: string(e.Kind), Domain: ErrorDomain},
		&errdetails.RetryInfo{RetryDelay: durationpb.New(delay)},
	)
	if derr != nil {
		return status.Error(code, e.Message)
	}
	return st.Err()
}
