package errors_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	svcErr "github.com/oggyb/muzz-matchmaking/internal/errors"
	"github.com/oggyb/muzz-matchmaking/internal/pair"
)

func TestMap_Codes(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code codes.Code
	}{
		{"validation", svcErr.Validation("bad"), codes.InvalidArgument},
		{"self pair", fmt.Errorf("confirm: %w", pair.ErrSelfPair), codes.InvalidArgument},
		{"conflict", svcErr.Conflict("terminal"), codes.Aborted},
		{"ineligible", svcErr.Ineligible([]string{"distance"}), codes.FailedPrecondition},
		{"rate limited", svcErr.RateLimited("slow down"), codes.ResourceExhausted},
		{"not found", gorm.ErrRecordNotFound, codes.NotFound},
		{"pg deadlock", &pgconn.PgError{Code: "40P01"}, codes.Unavailable},
		{"mysql lock wait", &mysql.MySQLError{Number: 1205}, codes.Unavailable},
		{"deadline", context.DeadlineExceeded, codes.DeadlineExceeded},
		{"unknown", fmt.Errorf("boom"), codes.Internal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.code, status.Code(svcErr.Map(tc.err)))
		})
	}
	assert.NoError(t, svcErr.Map(nil))
}

func TestMap_DistinguishesRejectionFromRetry(t *testing.T) {
	rejected := status.Convert(svcErr.Map(svcErr.Conflict("request already expired")))
	retry := status.Convert(svcErr.Map(svcErr.Transient(fmt.Errorf("lock timeout"))))

	var info *errdetails.ErrorInfo
	for _, d := range rejected.Details() {
		if v, ok := d.(*errdetails.ErrorInfo); ok {
			info = v
		}
	}
	require.NotNil(t, info)
	assert.Equal(t, string(svcErr.KindConflict), info.GetReason())

	var retryInfo *errdetails.RetryInfo
	for _, d := range retry.Details() {
		if v, ok := d.(*errdetails.RetryInfo); ok {
			retryInfo = v
		}
	}
	require.NotNil(t, retryInfo)
	assert.Positive(t, retryInfo.GetRetryDelay().AsDuration())
}

func TestClassify(t *testing.T) {
	assert.True(t, svcErr.IsKind(svcErr.Classify(&pgconn.PgError{Code: "23505"}), svcErr.KindConflict))
	assert.True(t, svcErr.IsKind(svcErr.Classify(&mysql.MySQLError{Number: 1213}), svcErr.KindTransient))
	assert.True(t, svcErr.IsRetryable(fmt.Errorf("exec: database is locked")))
	assert.False(t, svcErr.IsRetryable(svcErr.Conflict("nope")))
	assert.Equal(t, svcErr.KindInternal, svcErr.KindOf(fmt.Errorf("plain")))
}

func TestMap_RateLimitedCarriesResetDelay(t *testing.T) {
	st := status.Convert(svcErr.Map(svcErr.RateLimitedUntil("swipes_minute limit reached", 42*time.Second)))
	assert.Equal(t, codes.ResourceExhausted, st.Code())

	var retryInfo *errdetails.RetryInfo
	for _, d := range st.Details() {
		if v, ok := d.(*errdetails.RetryInfo); ok {
			retryInfo = v
		}
	}
	require.NotNil(t, retryInfo)
	assert.Equal(t, 42*time.Second, retryInfo.GetRetryDelay().AsDuration())
}
