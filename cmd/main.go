package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Abdillah-Ali/biz-compas/internal/api"
	"github.com/Abdillah-Ali/biz-compas/internal/app"
	"github.com/Abdillah-Ali/biz-compas/internal/config"
	"github.com/Abdillah-Ali/biz-compas/internal/security"
	"github.com/Abdillah-Ali/biz-compas/internal/store"
	"github.com/Abdillah-Ali/biz-compas/internal/token"
	"github.com/Abdillah-Ali/biz-compas/pkg/rabbitmq"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func fatal(logger *slog.Logger, msg string, args ...any) {
	logger.Error(msg, args...)
	os.Exit(1)
}

func main() {
	// Load .env file for local development. In production, env vars are set directly.
	envErr := godotenv.Load()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		slog.Error("cannot load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	if envErr != nil {
		logger.Info("no .env file found, using environment variables")
	}

	issuer, err := token.NewIssuer(cfg.JWTSecret, token.WithIssuer(cfg.TokenIssuer))
	if err != nil {
		fatal(logger, "cannot create token issuer", "err", err)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, closeStore := openStore(rootCtx, cfg, logger)
	defer closeStore()

	var limiter app.RateLimiter
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			fatal(logger, "invalid REDIS_URL", "err", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()
		pingCtx, cancel := context.WithTimeout(rootCtx, 3*time.Second)
		if err := client.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unreachable at startup, rate limiting fails open", "err", err)
		} else {
			logger.Info("redis connected")
		}
		cancel()
		limiter = app.NewRedisRateLimiter(client, cfg.RedisRateLimitPrefix)
	}

	logger.Info("rabbitmq target", "url", rabbitmq.MaskURL(cfg.RabbitMQURL))
	var connect app.PublisherFactory = func() (rabbitmq.Publisher, error) {
		producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, logger)
		if err != nil {
			return nil, err
		}
		return producer, nil
	}
	var publisher rabbitmq.Publisher
	if cfg.RabbitMQURL == "" {
		publisher = &rabbitmq.FallbackPublisher{Logger: logger}
		connect = nil
		logger.Warn("RABBITMQ_URL not set, auth events stay in the outbox")
	} else if p, err := connect(); err != nil {
		logger.Warn("failed to connect to rabbitmq at startup, retrying from the outbox dispatcher", "err", err)
	} else {
		publisher = p
		logger.Info("rabbitmq producer connected")
	}

	dispatcher := app.NewOutboxDispatcher(repo, publisher, connect, logger)
	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		dispatcher.Run(rootCtx)
	}()

	jobs := app.NewJobs(repo, logger, time.Duration(cfg.OutboxRetentionHours)*time.Hour)
	scheduler := app.NewScheduler(jobs, logger, app.Schedules{
		PINLockSweep: cfg.PINLockSweepSchedule,
		OutboxPrune:  cfg.OutboxPruneSchedule,
	})
	logger.Info("scheduler started", "jobs", scheduler.Start())

	service := app.NewService(repo, security.NewBcryptHasher(cfg.BcryptCost), issuer, logger)
	router := api.NewRouter(api.NewAuthHandler(service, logger), issuer, api.RouterOptions{
		AllowedOrigins:            cfg.AllowedOrigins(),
		Limiter:                   limiter,
		LoginRateLimitPerMinute:   cfg.LoginRateLimitPerMinute,
		AccountRateLimitPerMinute: cfg.AccountRateLimitPerMinute,
		Logger:                    logger,
	})

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(logger, "could not start server", "err", err)
		}
	}()

	<-rootCtx.Done()
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown failed", "err", err)
	}
	<-scheduler.Stop().Done()
	<-dispatchDone

	logger.Info("server gracefully stopped")
}

// openStore connects to Postgres and bootstraps the schema. Without
// DATABASE_URL it falls back to the in-memory store, which loses every account
// on restart.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Repository, func()) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory store")
		return store.NewMemoryRepository(cfg.AuthEventsExchange), func() {}
	}

	dbConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		fatal(logger, "unable to parse database URL", "err", err)
	}
	dbConfig.MaxConns = int32(cfg.DBMaxConns)
	dbConfig.MinConns = int32(cfg.DBMinConns)
	dbConfig.MaxConnLifetime = 30 * time.Minute
	dbConfig.MaxConnIdleTime = 5 * time.Minute
	// Disable prepared statement caching; poolers in front of Postgres reject them.
	dbConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		fatal(logger, "unable to connect to database", "err", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := dbpool.Ping(pingCtx); err != nil {
		dbpool.Close()
		fatal(logger, "database unreachable", "err", err)
	}
	logger.Info("database connection established")

	if err := store.EnsureSchema(ctx, dbpool); err != nil {
		dbpool.Close()
		fatal(logger, "failed ensuring schema", "err", err)
	}

	return store.NewPostgresRepository(dbpool, cfg.AuthEventsExchange), dbpool.Close
}
