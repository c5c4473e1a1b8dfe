package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type LogConfig struct {
	Level     string
	Format    string
	Component string
	Source    bool
}

type DBConfig struct {
	Driver   string // mysql | postgres | sqlite
	DSN      string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	LogSQL   bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type GRPCConfig struct {
	Host string
	Port string
}

type HTTPConfig struct {
	Addr string
}

type AMQPConfig struct {
	URL      string
	Exchange string
}

type TracingConfig struct {
	Exporter string // none | stdout | otlp
	Endpoint string
	Service  string
}

type MatchingConfig struct {
	RequestTTL    time.Duration
	SweepInterval time.Duration
}

type CompatConfig struct {
	DefaultScore float64
	MaxAge       time.Duration // 0 means cached entries never go stale
	RedisTTL     time.Duration
	ScoreTimeout time.Duration
}

type RateLimitConfig struct {
	Backend         string // db | redis
	SwipesPerMinute int
	SwipesPerDay    int
	RequestsPerDay  int
	Grace           time.Duration
}

type AuditConfig struct {
	QueueSize  int
	RoutingKey string
}

type Config struct {
	App struct {
		ENV string
	}

	Log       LogConfig
	DB        DBConfig
	Redis     RedisConfig
	GRPC      GRPCConfig
	HTTP      HTTPConfig
	AMQP      AMQPConfig
	Tracing   TracingConfig
	Matching  MatchingConfig
	Compat    CompatConfig
	RateLimit RateLimitConfig
	Audit     AuditConfig
}

// New builds the configuration from environment variables and an optional
// config.yml in the working directory.
func New() *Config {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.AddConfigPath(".")
	v.AutomaticEnv()
	setDefaults(v)

	// config file is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	cfg.App.ENV = v.GetString("APP_ENV")

	// Logger
	cfg.Log.Level = v.GetString("LOG_LEVEL")
	cfg.Log.Format = v.GetString("LOG_FORMAT")
	cfg.Log.Component = v.GetString("LOG_COMPONENT")
	cfg.Log.Source = isTruthy(v.GetString("LOG_SOURCE"))

	// Database
	cfg.DB.Driver = strings.ToLower(v.GetString("DB_DRIVER"))
	cfg.DB.Host = v.GetString("DB_HOST")
	cfg.DB.Port = v.GetString("DB_PORT")
	cfg.DB.User = v.GetString("DB_USER")
	cfg.DB.Password = v.GetString("DB_PASSWORD")
	cfg.DB.Name = v.GetString("DB_NAME")
	cfg.DB.LogSQL = isTruthy(v.GetString("DB_LOG_SQL"))
	cfg.DB.DSN = strings.TrimSpace(v.GetString("DB_DSN"))
	if cfg.DB.DSN == "" {
		cfg.DB.DSN = buildDSN(cfg.DB)
	}

	// Redis
	cfg.Redis.Addr = v.GetString("REDIS_ADDR")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")

	// gRPC + admin HTTP
	cfg.GRPC.Host = v.GetString("GRPC_HOST")
	cfg.GRPC.Port = v.GetString("GRPC_PORT")
	cfg.HTTP.Addr = v.GetString("HTTP_ADDR")

	cfg.AMQP.URL = v.GetString("AMQP_URL")
	cfg.AMQP.Exchange = v.GetString("AMQP_EXCHANGE")

	cfg.Tracing.Exporter = strings.ToLower(v.GetString("OTEL_EXPORTER"))
	cfg.Tracing.Endpoint = v.GetString("OTEL_ENDPOINT")
	cfg.Tracing.Service = v.GetString("OTEL_SERVICE_NAME")

	cfg.Matching.RequestTTL = v.GetDuration("MATCH_REQUEST_TTL")
	cfg.Matching.SweepInterval = v.GetDuration("SWEEP_INTERVAL")

	cfg.Compat.DefaultScore = v.GetFloat64("COMPAT_DEFAULT_SCORE")
	cfg.Compat.MaxAge = v.GetDuration("COMPAT_MAX_AGE")
	cfg.Compat.RedisTTL = v.GetDuration("COMPAT_REDIS_TTL")
	cfg.Compat.ScoreTimeout = v.GetDuration("COMPAT_SCORE_TIMEOUT")

	cfg.RateLimit.Backend = strings.ToLower(v.GetString("RATE_LIMIT_BACKEND"))
	cfg.RateLimit.SwipesPerMinute = v.GetInt("RATE_LIMIT_SWIPES_PER_MINUTE")
	cfg.RateLimit.SwipesPerDay = v.GetInt("RATE_LIMIT_SWIPES_PER_DAY")
	cfg.RateLimit.RequestsPerDay = v.GetInt("RATE_LIMIT_REQUESTS_PER_DAY")
	cfg.RateLimit.Grace = v.GetDuration("RATE_LIMIT_GRACE")

	cfg.Audit.QueueSize = v.GetInt("AUDIT_QUEUE_SIZE")
	cfg.Audit.RoutingKey = v.GetString("AUDIT_ROUTING_KEY")

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("LOG_COMPONENT", "matchmaking")

	v.SetDefault("DB_DRIVER", "mysql")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "3306")
	v.SetDefault("DB_USER", "root")
	v.SetDefault("DB_PASSWORD", "root")
	v.SetDefault("DB_NAME", "muzz")

	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("GRPC_HOST", "127.0.0.1")
	v.SetDefault("GRPC_PORT", "50051")
	v.SetDefault("HTTP_ADDR", ":8081")

	v.SetDefault("AMQP_EXCHANGE", "matchmaking.events")

	v.SetDefault("OTEL_EXPORTER", "none")
	v.SetDefault("OTEL_SERVICE_NAME", "matchmaking")

	v.SetDefault("MATCH_REQUEST_TTL", 72*time.Hour)
	v.SetDefault("SWEEP_INTERVAL", time.Minute)

	v.SetDefault("COMPAT_DEFAULT_SCORE", 75.0)
	v.SetDefault("COMPAT_MAX_AGE", time.Duration(0))
	v.SetDefault("COMPAT_REDIS_TTL", time.Hour)
	v.SetDefault("COMPAT_SCORE_TIMEOUT", 2*time.Second)

	v.SetDefault("RATE_LIMIT_BACKEND", "db")
	v.SetDefault("RATE_LIMIT_SWIPES_PER_MINUTE", 60)
	v.SetDefault("RATE_LIMIT_SWIPES_PER_DAY", 1000)
	v.SetDefault("RATE_LIMIT_REQUESTS_PER_DAY", 20)
	v.SetDefault("RATE_LIMIT_GRACE", time.Hour)

	v.SetDefault("AUDIT_QUEUE_SIZE", 1024)
	v.SetDefault("AUDIT_ROUTING_KEY", "audit.status")
}

func buildDSN(db DBConfig) string {
	switch db.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
			db.Host, db.Port, db.User, db.Password, db.Name,
		)
	case "sqlite":
		return db.Name + ".db?_busy_timeout=5000&_txlock=immediate"
	default:
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
			db.User, db.Password, db.Host, db.Port, db.Name,
		)
	}
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}
