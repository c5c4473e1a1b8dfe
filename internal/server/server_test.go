package server_test

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/oggyb/muzz-matchmaking/internal/config"
	"github.com/oggyb/muzz-matchmaking/internal/logger"
	"github.com/oggyb/muzz-matchmaking/internal/server"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.App.ENV = "test"
	cfg.Tracing.Service = "matchmaking-test"
	return cfg
}

func TestAdminRouter_HealthzOK(t *testing.T) {
	router := server.NewAdminRouter(testConfig(), map[string]server.HealthCheck{
		"db": func(context.Context) error { return nil },
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestAdminRouter_HealthzDegraded(t *testing.T) {
	router := server.NewAdminRouter(testConfig(), map[string]server.HealthCheck{
		"db":    func(context.Context) error { return nil },
		"redis": func(context.Context) error { return errors.New("connection refused") },
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "redis")
	assert.NotContains(t, rec.Body.String(), `"db"`)
}

func TestAdminRouter_MetricsExposesHTTPCounters(t *testing.T) {
	router := server.NewAdminRouter(testConfig(), nil)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "matchmaking_http_requests_total"))
}

func TestRecoveryUnaryInterceptor_PanicBecomesInternal(t *testing.T) {
	intercept := server.RecoveryUnaryInterceptor(logger.Nop())
	info := &grpc.UnaryServerInfo{FullMethod: "/matchmaking.v1.Matchmaking/RecordSwipe"}

	resp, err := intercept(context.Background(), nil, info, func(context.Context, any) (any, error) {
		panic("boom")
	})

	assert.Nil(t, resp)
	assert.Equal(t, codes.Internal, status.Code(err))
}

func TestLoggingUnaryInterceptor_PassesThrough(t *testing.T) {
	intercept := server.LoggingUnaryInterceptor(logger.Nop())
	info := &grpc.UnaryServerInfo{FullMethod: "/matchmaking.v1.Matchmaking/IsEligible"}

	resp, err := intercept(context.Background(), "req", info, func(_ context.Context, req any) (any, error) {
		return req.(string) + "-ok", status.Error(codes.Aborted, "conflict")
	})

	assert.Equal(t, "req-ok", resp)
	assert.Equal(t, codes.Aborted, status.Code(err))
}

func TestLoggingUnaryInterceptor_ScopesLoggerToMethod(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.Config{Level: "debug", Output: &buf})
	intercept := server.LoggingUnaryInterceptor(log)
	info := &grpc.UnaryServerInfo{FullMethod: "/matchmaking.v1.Matchmaking/ConfirmMatch"}

	_, err := intercept(context.Background(), nil, info, func(ctx context.Context, _ any) (any, error) {
		logger.FromContext(ctx, logger.Nop()).Info("inside handler")
		return nil, nil
	})
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "inside handler")
	assert.Contains(t, buf.String(), "method=/matchmaking.v1.Matchmaking/ConfirmMatch")
}

func TestNewGRPCServer_ServesRegisteredServices(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	srv := server.NewGRPCServer(logger.Nop(), server.HealthRegistrar())
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}
