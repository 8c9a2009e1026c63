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

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	natsadapter "github.com/staffhub/notifications/internal/adapter/events/nats"
	"github.com/staffhub/notifications/internal/api"
	"github.com/staffhub/notifications/internal/api/handlers"
	"github.com/staffhub/notifications/internal/api/middleware"
	"github.com/staffhub/notifications/internal/config"
	"github.com/staffhub/notifications/internal/events"
	"github.com/staffhub/notifications/internal/logger"
	"github.com/staffhub/notifications/internal/push"
	"github.com/staffhub/notifications/internal/repository"
	"github.com/staffhub/notifications/internal/service"
	"github.com/staffhub/notifications/internal/telemetry"
)

func main() {
	log := logger.Init()

	if err := run(log); err != nil {
		log.Error("server stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, "notifications", handlers.Version, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	// Database and repositories
	db, err := repository.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	notificationRepo := repository.NewNotificationRepository(db)
	eventRepo := repository.NewEventRepository(db)
	directoryRepo := repository.NewDirectoryRepository(db)

	// Pipeline
	rules, err := service.NewRuleRegistry(service.DefaultRules()...)
	if err != nil {
		return err
	}

	registry := push.NewRegistry(cfg.PushQueueSize, cfg.PushWriteTimeout)
	defer registry.Close()

	processor := service.NewProcessor(rules, notificationRepo, eventRepo, directoryRepo, registry,
		service.WithTimeouts(cfg.ResolveTimeout, cfg.StoreTimeout),
		service.WithMaxFoldCount(cfg.MaxFoldCount),
	)

	bus := events.NewBus(processor, cfg.EventWorkers, cfg.EventQueueSize)
	bus.Start(context.Background())
	// Stop after the HTTP server so in-flight publishes are drained
	defer bus.Stop()

	// Services
	notificationService := service.NewNotificationService(notificationRepo, registry)
	authService := service.NewAuthService(cfg.JWTSecret, cfg.PublisherAPIKeyHash)

	deps := api.Dependencies{
		NotificationService: notificationService,
		AuthService:         authService,
		RateLimitPerMinute:  cfg.RateLimitPerMinute,
		Registry:            registry,
		Publisher:           bus,
		DB:                  db,
		AllowedOrigins:      cfg.AllowedOrigins,
	}

	if cfg.RedisURL != "" {
		rateLimitService, err := service.NewRateLimitService(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rateLimitService.Close()
		deps.RateLimiter = middleware.RateLimiter(rateLimitService)
	} else {
		log.Warn("REDIS_URL not set, rate limiting disabled")
	}

	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     otelhttp.NewHandler(api.NewRouter(deps), "notifications"),
		ReadTimeout: 15 * time.Second,
		// Streams are long lived; handlers bound their own writes.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting notifications server", slog.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.NATSURL != "" {
		client, err := natsadapter.NewClient(cfg.NATSURL)
		if err != nil {
			return err
		}
		if _, err := client.SubscribeEvents(cfg.NATSSubject, bus); err != nil {
			client.Close()
			return err
		}
		log.Info("consuming events from nats", slog.String("subject", cfg.NATSSubject))

		g.Go(func() error {
			<-gctx.Done()
			client.Close()
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")

		// Give outstanding requests 30 seconds to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("server exited gracefully", slog.Uint64("dropped_events", bus.Dropped()))
	return nil
}
