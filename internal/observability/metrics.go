package observability

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matchmaking_http_requests_total",
			Help: "Total number of admin HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "matchmaking_http_request_duration_seconds",
			Help:    "Admin HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	grpcServerHandledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grpc_server_handled_total",
			Help: "Total number of gRPC requests handled by the server.",
		},
		[]string{"grpc_service", "grpc_method", "grpc_code"},
	)
	formationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matchmaking_formations_total",
			Help: "Match formation outcomes (created, existing, patched, retried).",
		},
		[]string{"outcome"},
	)
	formationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "matchmaking_formation_duration_seconds",
			Help:    "Latency of a match formation call, retries included.",
			Buckets: prometheus.DefBuckets,
		},
	)
	compatLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matchmaking_compat_lookups_total",
			Help: "Compatibility cache lookups by source (redis, store, scorer, fallback, stale).",
		},
		[]string{"source"},
	)
	rateLimitDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matchmaking_rate_limit_decisions_total",
			Help: "Rate limiter decisions per policy.",
		},
		[]string{"policy", "allowed"},
	)
	auditEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matchmaking_audit_events_total",
			Help: "Audit events by result (written, dropped, failed).",
		},
		[]string{"result"},
	)
	sweptTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matchmaking_swept_total",
			Help: "Rows transitioned or removed by the periodic sweeper.",
		},
		[]string{"kind"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "matchmaking_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		grpcServerHandledTotal,
		formationsTotal,
		formationDuration,
		compatLookupsTotal,
		rateLimitDecisionsTotal,
		auditEventsTotal,
		sweptTotal,
		amqpPublishErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func GRPCServerMetricsUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		statusInfo := status.Convert(err)
		service, method := splitFullMethod(info.FullMethod)
		grpcServerHandledTotal.WithLabelValues(service, method, statusInfo.Code().String()).Inc()
		return resp, err
	}
}

func splitFullMethod(fullMethod string) (string, string) {
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 3 {
		return "unknown", "unknown"
	}
	return parts[1], parts[2]
}

func IncFormation(outcome string) {
	formationsTotal.WithLabelValues(outcome).Inc()
}

func ObserveFormation(d time.Duration) {
	formationDuration.Observe(d.Seconds())
}

func IncCompatLookup(source string) {
	compatLookupsTotal.WithLabelValues(source).Inc()
}

func IncRateLimitDecision(policy string, allowed bool) {
	rateLimitDecisionsTotal.WithLabelValues(policy, strconv.FormatBool(allowed)).Inc()
}

func IncAuditEvent(result string) {
	auditEventsTotal.WithLabelValues(result).Inc()
}

func AddSwept(kind string, n int) {
	sweptTotal.WithLabelValues(kind).Add(float64(n))
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
