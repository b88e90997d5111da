package rateLimit

import (
	"context"
	"time"

	"github.com/robertarktes/tour-package-bookings/internal/observability"
	"github.com/redis/go-redis/v9"
)

// Policy allows Rate requests per Period for one key.
type Policy struct {
	Rate   int
	Period time.Duration
}

var (
	PerUser = Policy{Rate: 30, Period: time.Minute}
	PerIP   = Policy{Rate: 120, Period: time.Minute}
)

type RateLimiter struct {
	client *redis.Client
	logger observability.Logger
}

func NewRateLimiter(client *redis.Client, logger observability.Logger) *RateLimiter {
	return &RateLimiter{client: client, logger: logger}
}

// Allow counts a request against key in a fixed window. Redis errors let the request through.
func (rl *RateLimiter) Allow(ctx context.Context, key string, p Policy) bool {
	fullKey := "rl:" + key

	pipe := rl.client.Pipeline()
	incr := pipe.Incr(ctx, fullKey)
	pipe.ExpireNX(ctx, fullKey, p.Period)

	_, err := pipe.Exec(ctx)
	if err != nil {
		rl.logger.WithError(err).WithField("key", key).Warn("rate limiter unavailable")
		return true
	}

	if incr.Val() > int64(p.Rate) {
		observability.RateLimitExceeded.Inc()
		return false
	}
	return true
}
