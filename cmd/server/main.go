// Command server starts the persona/feedback-synthesis API server,
// which dispatches persona-generation and feedback-session requests
// onto the asynq queue for the worker process to execute.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/TIGERVENENO/persona-feedback-engine/internal/adapter/httpserver"
	"github.com/TIGERVENENO/persona-feedback-engine/internal/adapter/idempotency"
	"github.com/TIGERVENENO/persona-feedback-engine/internal/adapter/observability"
	"github.com/TIGERVENENO/persona-feedback-engine/internal/adapter/queue/asynqq"
	"github.com/TIGERVENENO/persona-feedback-engine/internal/adapter/repo/postgres"
	"github.com/TIGERVENENO/persona-feedback-engine/internal/adapter/security"
	"github.com/TIGERVENENO/persona-feedback-engine/internal/app"
	"github.com/TIGERVENENO/persona-feedback-engine/internal/config"
	"github.com/TIGERVENENO/persona-feedback-engine/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.SetAppEnv(cfg.AppEnv)
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}

	redisOpt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", slog.Any("error", err))
		os.Exit(1)
	}
	rdb := redis.NewClient(redisOpt)
	defer func() { _ = rdb.Close() }()

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: redisOpt.Addr, Password: redisOpt.Password, DB: redisOpt.DB})
	defer func() { _ = asynqClient.Close() }()

	users := postgres.NewUserRepo(pool)
	products := postgres.NewProductRepo(pool)
	personas := postgres.NewPersonaRepo(pool)
	sessions := postgres.NewSessionRepo(pool)

	asynqq.SetMaxRetry(cfg.QueueMaxRetry)
	producer := asynqq.NewProducer(asynqClient)
	idemCache := idempotency.NewRedisCache(rdb)
	tokens := security.NewTokenManager(cfg.JWTSecret)

	dispatchSvc := usecase.NewDispatchService(personas, sessions, products, producer, idemCache, cfg.IdempotencyTTL)
	querySvc := usecase.NewQueryService(sessions)

	dbCheck, redisCheck := app.BuildReadinessChecks(pool, rdb)

	srv := &httpserver.Server{
		Cfg:        cfg,
		Users:      users,
		Products:   products,
		Dispatch:   dispatchSvc,
		Query:      querySvc,
		Tokens:     tokens,
		DBCheck:    dbCheck,
		RedisCheck: redisCheck,
	}

	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}
