// Command worker runs the asynq consumer that executes persona
// generation and feedback synthesis tasks enqueued by the server
// process.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/TIGERVENENO/persona-feedback-engine/internal/adapter/ai"
	"github.com/TIGERVENENO/persona-feedback-engine/internal/adapter/lock"
	"github.com/TIGERVENENO/persona-feedback-engine/internal/adapter/observability"
	"github.com/TIGERVENENO/persona-feedback-engine/internal/adapter/queue/asynqq"
	"github.com/TIGERVENENO/persona-feedback-engine/internal/adapter/repo/postgres"
	"github.com/TIGERVENENO/persona-feedback-engine/internal/config"
	"github.com/TIGERVENENO/persona-feedback-engine/internal/domain"
	"github.com/TIGERVENENO/persona-feedback-engine/internal/service/ratelimiter"
	"github.com/TIGERVENENO/persona-feedback-engine/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
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

	slog.Info("starting worker", slog.String("env", cfg.AppEnv))

	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("database connection failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisOpt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", slog.Any("error", err))
		os.Exit(1)
	}
	rdb := redis.NewClient(redisOpt)
	defer func() { _ = rdb.Close() }()

	personas := postgres.NewPersonaRepo(pool)
	products := postgres.NewProductRepo(pool)
	sessions := postgres.NewSessionRepo(pool)
	results := postgres.NewFeedbackResultRepo(pool)

	rt := cfg.GetRetryConfig()
	retryCfg := domain.RetryConfig{
		MaxRetries:   rt.MaxRetries,
		InitialDelay: rt.InitialDelay,
		MaxDelay:     rt.MaxDelay,
		Multiplier:   rt.Multiplier,
		Jitter:       rt.Jitter,
	}
	gateway := ai.NewGateway(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMHTTPTimeout, cfg.LLMMaxResponseKB*1024, retryCfg)
	aiLimiter := ratelimiter.NewRedisLuaLimiter(rdb, pool, nil)
	gateway = gateway.WithLimiter(aiLimiter, "ai_gateway", cfg.LLMRateLimitPerMin)
	aggregator := ai.GatewayAggregator{Gateway: gateway}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(gateway.Health())
		})
		if err := http.ListenAndServe(":9090", mux); err != nil {
			slog.Error("worker metrics server error", slog.Any("error", err))
		}
	}()

	sessionLock := lock.NewRedisLock(rdb)
	terminationSvc := usecase.NewTerminationService(sessions, results, sessionLock, aggregator, cfg.LockWait, cfg.LockLease, cfg.AggregationConcernCap)

	personaHandler := asynqq.PersonaHandler{Personas: personas, AI: gateway}
	feedbackHandler := asynqq.FeedbackHandler{
		Results:     results,
		Sessions:    sessions,
		Personas:    personas,
		Products:    products,
		AI:          gateway,
		Termination: terminationSvc,
	}

	redisConnOpt := asynq.RedisClientOpt{Addr: redisOpt.Addr, Password: redisOpt.Password, DB: redisOpt.DB}
	asynqq.SetMaxRetry(cfg.QueueMaxRetry)
	server := asynqq.NewServer(redisConnOpt, cfg.PersonaQueueConcurrency, cfg.FeedbackQueueConcurrency)
	serveMux := asynqq.NewMux(personaHandler, feedbackHandler)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("asynq worker starting",
			slog.Int("persona_concurrency", cfg.PersonaQueueConcurrency),
			slog.Int("feedback_concurrency", cfg.FeedbackQueueConcurrency))
		errCh <- server.Run(serveMux)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("signal received, shutting down", slog.String("signal", sig.String()))
		server.Shutdown()
	case err := <-errCh:
		if err != nil {
			slog.Error("worker error", slog.Any("error", err))
		}
	}

	slog.Info("worker stopped")
}
