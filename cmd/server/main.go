package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/oggyb/muzz-matchmaking/internal/app"
	"github.com/oggyb/muzz-matchmaking/internal/cache"
	"github.com/oggyb/muzz-matchmaking/internal/config"
	"github.com/oggyb/muzz-matchmaking/internal/db"
	"github.com/oggyb/muzz-matchmaking/internal/logger"
	"github.com/oggyb/muzz-matchmaking/internal/observability"
	"github.com/oggyb/muzz-matchmaking/internal/server"
	"github.com/oggyb/muzz-matchmaking/internal/service/matchmaking"
	"github.com/oggyb/muzz-matchmaking/internal/worker"
)

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	cfg := config.New()

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := logger.L()

	shutdownTracing, err := observability.InitTracing(cfg)
	if err != nil {
		log.Error("failed to init tracing", "err", err)
		os.Exit(1)
	}

	// Init DB
	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		os.Exit(1)
	}

	// Init Redis
	redisCache := cache.NewRedisCache(cfg)
	if err := redisCache.Ping(context.Background()); err != nil {
		log.Error("failed to connect to redis", "err", err)
		os.Exit(1)
	}

	if cfg.App.ENV == "development" {
		if err := db.SeedDemoData(database, 50, log); err != nil {
			log.Error("failed to seed", "err", err)
		}
	}

	appCtx := app.New(cfg, database, redisCache, log)

	grpcServer := server.NewGRPCServer(log,
		matchmaking.NewRegistrar(appCtx),
		server.HealthRegistrar(),
	)

	sqlDB, err := database.DB()
	if err != nil {
		log.Error("failed to get sql.DB", "err", err)
		os.Exit(1)
	}
	admin := server.NewAdminServer(cfg, server.NewAdminRouter(cfg, map[string]server.HealthCheck{
		"db":    sqlDB.PingContext,
		"redis": redisCache.Ping,
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweeper := worker.NewSweeper(appCtx.Engine, appCtx.Limiter, cfg.Matching.SweepInterval, log)
	sweeperDone := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(sweeperDone)
	}()

	errCh := make(chan error, 2)
	go func() {
		addr := cfg.GRPC.Host + ":" + cfg.GRPC.Port
		log.Info("starting gRPC server", "addr", addr)
		errCh <- server.StartGRPCServer(cfg, grpcServer)
	}()
	go func() {
		log.Info("starting admin HTTP server", "addr", cfg.HTTP.Addr)
		if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		log.Error("server failed", "err", err)
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	grpcServer.GracefulStop()
	if err := admin.Shutdown(shutdownCtx); err != nil {
		log.Warn("admin server shutdown failed", "err", err)
	}
	<-sweeperDone
	appCtx.Close()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn("tracing shutdown failed", "err", err)
	}
	_ = redisCache.Client.Close()
	_ = sqlDB.Close()

	log.Info("server stopped")
}
