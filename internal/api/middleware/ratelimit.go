package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/staffhub/notifications/internal/domain"
	"github.com/staffhub/notifications/internal/logger"
	"github.com/staffhub/notifications/internal/service"
)

// RateLimiter counts requests per receiver
type RateLimiter interface {
	CheckAndIncrement(ctx context.Context, receiver domain.Receiver, limit int) (*service.RateLimitResult, error)
}

// RateLimitMiddleware provides rate limiting middleware
type RateLimitMiddleware struct {
	limiter   RateLimiter
	perMinute int
}

// NewRateLimitMiddleware creates a new rate limit middleware
func NewRateLimitMiddleware(limiter RateLimiter, perMinute int) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter:   limiter,
		perMinute: perMinute,
	}
}

// RateLimit checks and enforces rate limits
func (m *RateLimitMiddleware) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receiver, ok := GetReceiver(r.Context())
		if !ok || m.perMinute <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		result, err := m.limiter.CheckAndIncrement(r.Context(), receiver, m.perMinute)
		if err != nil {
			// Redis outages must not take the read API down
			logger.From(r.Context()).Warn("rate limit check failed", slog.Any("error", err))
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", result.Limit))
		w.Header().Set("X-RateLimit-Used", fmt.Sprintf("%d", result.Used))

		if !result.Allowed {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", result.RetryAfterSecs))
			http.Error(w, `{"error": "Rate limit exceeded"}`, http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}
