package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/omochice/realtime-chat/internal/auth"
	"github.com/omochice/realtime-chat/internal/broker/kafka"
	"github.com/omochice/realtime-chat/internal/cache"
	"github.com/omochice/realtime-chat/internal/chat"
	"github.com/omochice/realtime-chat/internal/config"
	"github.com/omochice/realtime-chat/internal/httpapi"
	"github.com/omochice/realtime-chat/internal/obs"
	"github.com/omochice/realtime-chat/internal/queue"
	"github.com/omochice/realtime-chat/internal/storage/memory"
	"github.com/omochice/realtime-chat/internal/storage/postgres"
	"github.com/omochice/realtime-chat/internal/transport/ws"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn(".env not loaded", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()
	checks := map[string]obs.Check{}

	store, err := openStore(ctx, cfg, logger, checks, &closers)
	if err != nil {
		return err
	}

	hubOpts := chat.Options{Logger: logger, SendBuffer: cfg.SendBuffer}

	if cfg.RedisURL != "" {
		redisCache, err := cache.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		closers = append(closers, func() { _ = redisCache.Close() })
		checks["redis"] = redisCache.Ping

		jobs, err := queue.NewAsynqEnqueuer(cfg.RedisURL)
		if err != nil {
			return err
		}
		closers = append(closers, func() { _ = jobs.Close() })
		hubOpts.Toucher = queue.NewToucher(jobs)

		worker, err := queue.NewAsynqWorker(cfg.RedisURL, cfg.AsynqConcurrency, logger)
		if err != nil {
			return err
		}
		worker.Handle(queue.TypeTouchConversation, queue.TouchHandler(store, logger))
		go func() {
			if err := worker.Run(ctx); err != nil {
				logger.Error("asynq worker failed", "error", err)
			}
		}()

		store = cache.NewUserStore(store, redisCache, cfg.UserCacheTTL, logger)
		logger.Info("redis enabled", "cache_ttl", cfg.UserCacheTTL)
	}

	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewAsyncProducer(cfg.KafkaBrokers, nil, logger)
		if err != nil {
			return fmt.Errorf("kafka producer: %w", err)
		}
		closers = append(closers, func() { _ = producer.Close() })
		publisher := kafka.NewEventPublisher(producer, cfg.KafkaTopicPrefix)
		hubOpts.Events = publisher
		logger.Info("kafka enabled", "brokers", cfg.KafkaBrokers, "topic", publisher.Topic())
	}

	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL)
	if err != nil {
		return err
	}

	hub := chat.NewHub(store, hubOpts)
	gateway := ws.NewGateway(hub, auth.NewAuthenticator(tokens, store), ws.GatewayOptions{
		Logger:       logger,
		PingPeriod:   cfg.PingPeriod,
		WriteTimeout: cfg.WriteTimeout,
	})
	router := httpapi.NewRouter(httpapi.Deps{
		Env:         cfg.Env,
		CORSOrigins: cfg.CORSOrigins,
		Middleware:  obs.Middleware{Logger: logger},
		Health:      obs.HealthHandlers{Checks: checks},
		Gateway:     gateway,
		Hub:         hub,
	})
	srv := ws.New(cfg.HTTPAddr, router, logger)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	var serveErr error
	select {
	case serveErr = <-errChan:
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	if err := gateway.Shutdown(shutdownCtx); err != nil {
		logger.Warn("gateway shutdown", "error", err)
	}
	return serveErr
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger, checks map[string]obs.Check, closers *[]func()) (chat.Store, error) {
	if cfg.DBURL == "" {
		if !cfg.IsDev() {
			return nil, errors.New("DB_URL is required outside dev")
		}
		logger.Warn("DB_URL not set, using in-memory store")
		return seededMemoryStore(), nil
	}

	pool, err := postgres.Connect(ctx, cfg.DBURL, postgres.WithMaxConns(int32(cfg.DBMaxConns)))
	if err != nil {
		return nil, err
	}
	*closers = append(*closers, pool.Close)
	if err := postgres.Migrate(ctx, pool); err != nil {
		return nil, err
	}
	store := postgres.NewStore(pool)
	checks["postgres"] = store.Ping
	return store, nil
}

// seededMemoryStore returns an in-memory store with a few users so a local
// server is usable right away. Mint tokens for them with cmd/token.
func seededMemoryStore() *memory.Store {
	store := memory.NewStore()
	for _, u := range []chat.User{
		{ID: 1, Username: "alice"},
		{ID: 2, Username: "bob"},
		{ID: 3, Username: "carol"},
	} {
		store.PutUser(u)
	}
	return store
}
