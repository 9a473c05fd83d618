package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/clinicbilling/internal/config"
	"go.uber.org/zap"
)

const keyReminderSend = "%s:ratelimit:reminder:%s"

// ReminderLimiter throttles manual reminder dispatch per operator. It is
// disabled when redis is not configured.
type ReminderLimiter struct {
	log    *zap.Logger
	bucket *TokenBucket
	prefix string
	rate   float64
	burst  int
}

func NewReminderLimiter(client *redis.Client, cfg config.Config, log *zap.Logger) (*ReminderLimiter, error) {
	log = log.Named("ratelimit")
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled || client == nil {
		log.Info("reminder rate limiting disabled")
		return nil, nil
	}
	if limitCfg.ReminderRate <= 0 || limitCfg.ReminderBurst <= 0 {
		return nil, fmt.Errorf("reminder rate limit: %w", ErrInvalidLimit)
	}

	return &ReminderLimiter{
		log:    log,
		bucket: NewTokenBucket(client),
		prefix: cfg.AppName,
		rate:   limitCfg.ReminderRate,
		burst:  limitCfg.ReminderBurst,
	}, nil
}

func (l *ReminderLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// Allow consumes one send from the subject's budget. Redis failures let the
// request through.
func (l *ReminderLimiter) Allow(ctx context.Context, subject string) Result {
	if !l.Enabled() {
		return Result{Allowed: true}
	}
	key := fmt.Sprintf(keyReminderSend, l.prefix, strings.TrimSpace(subject))
	res, err := l.bucket.Allow(ctx, key, l.rate, l.burst)
	if err != nil {
		l.log.Warn("rate limit check failed", zap.String("subject", subject), zap.Error(err))
		return Result{Allowed: true, Limit: l.burst}
	}
	return res
}
