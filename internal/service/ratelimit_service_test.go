package service

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staffhub/notifications/internal/domain"
)

func TestRateLimitKey(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 15, 42, 0, time.FixedZone("CET", 3600))

	assert.Equal(t, "ratelimit:minute:employee:7:202603020815", rateLimitKey(domain.Employee("7"), at))
	assert.NotEqual(t, rateLimitKey(domain.Employee("7"), at), rateLimitKey(domain.User("7"), at))
	assert.NotEqual(t, rateLimitKey(domain.User("7"), at), rateLimitKey(domain.User("7"), at.Add(time.Minute)))
}

func TestNewRateLimitService_InvalidURL(t *testing.T) {
	_, err := NewRateLimitService("not-a-redis-url")
	assert.Error(t, err)
}

func TestRateLimitService_UnreachableRedis(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	svc := NewRateLimitServiceWithClient(client)
	t.Cleanup(func() { svc.Close() })

	_, err := svc.CheckAndIncrement(context.Background(), domain.User("9"), 10)
	require.Error(t, err)
	assert.Error(t, svc.Ping(context.Background()))
}
