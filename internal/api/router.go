package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/staffhub/notifications/internal/api/handlers"
	"github.com/staffhub/notifications/internal/api/middleware"
	"github.com/staffhub/notifications/internal/push"
	"github.com/staffhub/notifications/internal/service"
)

// Dependencies are the collaborators the HTTP layer is built from
type Dependencies struct {
	NotificationService *service.NotificationService
	AuthService         *service.AuthService
	RateLimiter         middleware.RateLimiter // optional
	RateLimitPerMinute  int
	Registry            *push.Registry
	Publisher           handlers.EventPublisher
	DB                  handlers.Pinger
	AllowedOrigins      []string
}

// NewRouter creates and configures the HTTP router
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(middleware.Metrics)
	r.Use(corsHandler(deps.AllowedOrigins))

	// Health checks (no auth required)
	r.Get("/health", handlers.Health)
	r.Get("/ready", handlers.Ready(deps.DB))
	r.Handle("/metrics", promhttp.Handler())

	// Create handlers
	notificationHandler := handlers.NewNotificationHandler(deps.NotificationService)
	streamHandler := handlers.NewStreamHandler(deps.Registry, deps.NotificationService, deps.AllowedOrigins)
	eventHandler := handlers.NewEventHandler(deps.Publisher)

	// Create middleware
	authMiddleware := middleware.NewAuthMiddleware(deps.AuthService)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Business modules publishing events
		r.With(authMiddleware.RequirePublisher).Post("/events", eventHandler.Publish)

		// Receiver routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			r.Get("/notifications/stream", streamHandler.Stream)

			r.Group(func(r chi.Router) {
				if deps.RateLimiter != nil {
					r.Use(middleware.NewRateLimitMiddleware(deps.RateLimiter, deps.RateLimitPerMinute).RateLimit)
				}

				r.Get("/notifications", notificationHandler.List)
				r.Get("/notifications/unread-count", notificationHandler.UnreadCount)
				r.Post("/notifications/mark-delivered", notificationHandler.MarkDelivered)
				r.Post("/notifications/mark-seen", notificationHandler.MarkSeen)
			})
		})
	})

	return r
}

func corsHandler(allowedOrigins []string) func(http.Handler) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Used", "Retry-After"},
		MaxAge:         86400,
	})
}
