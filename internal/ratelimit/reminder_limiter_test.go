package ratelimit

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/clinicbilling/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newLimiter(t *testing.T, rate float64, burst int) (*ReminderLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter, err := NewReminderLimiter(client, config.Config{
		AppName:   "test",
		RateLimit: config.RateLimitConfig{Enabled: true, ReminderRate: rate, ReminderBurst: burst},
	}, zap.NewNop())
	require.NoError(t, err)
	require.True(t, limiter.Enabled())
	return limiter, mr
}

func TestReminderLimiterExhaustsBurst(t *testing.T) {
	limiter, _ := newLimiter(t, 0.01, 2)
	ctx := context.Background()

	assert.True(t, limiter.Allow(ctx, "user:1").Allowed)
	assert.True(t, limiter.Allow(ctx, "user:1").Allowed)

	res := limiter.Allow(ctx, "user:1")
	assert.False(t, res.Allowed)
	assert.Equal(t, 2, res.Limit)
	assert.Positive(t, res.RetryAfter)

	assert.True(t, limiter.Allow(ctx, "user:2").Allowed)
}

func TestReminderLimiterFailsOpen(t *testing.T) {
	limiter, mr := newLimiter(t, 1, 1)
	mr.Close()

	assert.True(t, limiter.Allow(context.Background(), "user:1").Allowed)
}

func TestReminderLimiterDisabledWithoutRedis(t *testing.T) {
	limiter, err := NewReminderLimiter(nil, config.Config{
		RateLimit: config.RateLimitConfig{Enabled: true, ReminderRate: 1, ReminderBurst: 1},
	}, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, limiter.Enabled())
	assert.True(t, limiter.Allow(context.Background(), "user:1").Allowed)
}

func TestNewReminderLimiterRejectsBadLimits(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	_, err := NewReminderLimiter(client, config.Config{
		RateLimit: config.RateLimitConfig{Enabled: true, ReminderRate: 0, ReminderBurst: 5},
	}, zap.NewNop())
	assert.ErrorIs(t, err, ErrInvalidLimit)
}
