package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// KEYS[1] bucket hash. ARGV: refill per second, capacity, idle ttl in ms.
// Returns {allowed, remaining tokens as string, retry delay in ms}. The
// redis clock is used so replicas agree on refill time.
const takeTokenScript = `
local refill = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])

local t = redis.call("TIME")
local now = t[1] * 1000 + math.floor(t[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "updated_ms")
local tokens = capacity
if state[1] then
  local elapsed = math.max(0, now - tonumber(state[2]))
  tokens = math.min(capacity, tonumber(state[1]) + elapsed * refill / 1000)
end

local granted = 0
local wait_ms = 0
if tokens >= 1 then
  granted = 1
  tokens = tokens - 1
else
  wait_ms = math.ceil((1 - tokens) * 1000 / refill)
end

redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "updated_ms", now)
redis.call("PEXPIRE", KEYS[1], ARGV[3])
return {granted, tostring(tokens), wait_ms}
`

var (
	ErrNotConfigured = errors.New("rate limiter not configured")
	ErrEmptyKey      = errors.New("rate limiter key is empty")
	ErrInvalidLimit  = errors.New("rate limiter rate and burst must be positive")
)

// TokenBucket is a redis-backed bucket shared by every API replica.
type TokenBucket struct {
	client *redis.Client
	take   *redis.Script
}

// Result describes one take. Limit is the bucket capacity.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{client: client, take: redis.NewScript(takeTokenScript)}
}

// Allow takes one token from the bucket at key. The bucket refills at rate
// tokens per second up to burst.
func (t *TokenBucket) Allow(ctx context.Context, key string, rate float64, burst int) (Result, error) {
	switch {
	case t == nil || t.client == nil:
		return Result{}, ErrNotConfigured
	case key == "":
		return Result{}, ErrEmptyKey
	case rate <= 0 || burst <= 0:
		return Result{}, ErrInvalidLimit
	}

	reply, err := t.take.Run(ctx, t.client, []string{key}, rate, burst, idleTTL(rate, burst).Milliseconds()).Slice()
	if err != nil {
		return Result{}, err
	}
	if len(reply) != 3 {
		return Result{}, fmt.Errorf("token bucket: unexpected reply %v", reply)
	}

	granted, _ := reply[0].(int64)
	waitMS, _ := reply[2].(int64)
	tokens, err := strconv.ParseFloat(fmt.Sprint(reply[1]), 64)
	if err != nil {
		return Result{}, fmt.Errorf("token bucket: %w", err)
	}

	return Result{
		Allowed:    granted == 1,
		Limit:      burst,
		Remaining:  int(math.Floor(tokens)),
		RetryAfter: time.Duration(waitMS) * time.Millisecond,
	}, nil
}

// idleTTL keeps a bucket for twice its full refill time, at least a second.
func idleTTL(rate float64, burst int) time.Duration {
	refill := time.Duration(float64(burst) / rate * float64(time.Second))
	return max(2*refill, time.Second)
}
