package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/staffhub/notifications/internal/domain"
)

// RateLimitService handles rate limiting using Redis
type RateLimitService struct {
	client *redis.Client
	now    func() time.Time
}

// NewRateLimitService creates a new rate limit service
func NewRateLimitService(redisURL string) (*RateLimitService, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RateLimitService{client: client, now: time.Now}, nil
}

// NewRateLimitServiceWithClient wraps an existing client
func NewRateLimitServiceWithClient(client *redis.Client) *RateLimitService {
	return &RateLimitService{client: client, now: time.Now}
}

// RateLimitResult contains the result of a rate limit check
type RateLimitResult struct {
	Allowed        bool
	Used           int
	Limit          int
	RetryAfterSecs int
}

// CheckAndIncrement counts one request against the receiver's per-minute budget
func (s *RateLimitService) CheckAndIncrement(ctx context.Context, receiver domain.Receiver, limit int) (*RateLimitResult, error) {
	now := s.now()
	key := rateLimitKey(receiver, now)
	nextMinute := now.Truncate(time.Minute).Add(time.Minute)

	pipe := s.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireAt(ctx, key, nextMinute)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	used := int(incr.Val())
	result := &RateLimitResult{
		Allowed: used <= limit,
		Used:    used,
		Limit:   limit,
	}
	if !result.Allowed {
		result.RetryAfterSecs = int(nextMinute.Sub(now).Seconds()) + 1
	}

	return result, nil
}

// Ping checks the Redis connection
func (s *RateLimitService) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (s *RateLimitService) Close() error {
	return s.client.Close()
}

func rateLimitKey(receiver domain.Receiver, now time.Time) string {
	return fmt.Sprintf("ratelimit:minute:%s:%s", receiver.String(), now.UTC().Format("200601021504"))
}
