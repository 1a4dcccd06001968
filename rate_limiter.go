package mailotp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	errRequestRateLimited     = errors.New("request rate limited")
	errRateLimiterUnavailable = errors.New("rate limiter unavailable")
)

// requestLimiter throttles challenge issuance with one sorted-set entry per
// request, scored by unix millis. Counting prunes entries older than the
// trailing window first, so an event older than the window never counts.
// A fixed-window counter can double-charge across the boundary; this cannot.
type requestLimiter struct {
	redis  *redis.Client
	config RateLimitConfig
}

func newRequestLimiter(redisClient *redis.Client, cfg RateLimitConfig) *requestLimiter {
	return &requestLimiter{
		redis:  redisClient,
		config: cfg,
	}
}

func (l *requestLimiter) emailKey(email string) string {
	return l.config.RedisPrefix + ":e:" + email
}

func (l *requestLimiter) ipKey(ip string) string {
	return l.config.RedisPrefix + ":ip:" + ip
}

// Check returns errRequestRateLimited with a retry-after hint when the
// address (or, if enabled and present, the client IP) has exhausted its
// budget inside the trailing window. A passing check has no side effects;
// the request is charged separately via Record once issuance succeeds.
func (l *requestLimiter) Check(ctx context.Context, email, ip string) (time.Duration, error) {
	if retry, err := l.checkWindow(ctx, l.emailKey(email)); err != nil {
		return retry, err
	}
	if l.config.EnableIPThrottle && ip != "" {
		if retry, err := l.checkWindow(ctx, l.ipKey(ip)); err != nil {
			return retry, err
		}
	}
	return 0, nil
}

// Record charges one issuance event against the address (and IP when
// enabled). Eventual-consistency slop at the window boundary under
// concurrent requests is acceptable; the limiter is defense in depth, not a
// hard security boundary.
func (l *requestLimiter) Record(ctx context.Context, email, ip string) error {
	if err := l.recordEvent(ctx, l.emailKey(email)); err != nil {
		return err
	}
	if l.config.EnableIPThrottle && ip != "" {
		if err := l.recordEvent(ctx, l.ipKey(ip)); err != nil {
			return err
		}
	}
	return nil
}

func (l *requestLimiter) checkWindow(ctx context.Context, key string) (time.Duration, error) {
	now := time.Now()
	cutoff := now.Add(-l.config.Window).UnixMilli()

	if err := l.redis.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(cutoff, 10)).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", errRateLimiterUnavailable, err)
	}

	count, err := l.redis.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errRateLimiterUnavailable, err)
	}
	if count < int64(l.config.MaxRequests) {
		return 0, nil
	}

	// Budget exhausted: the retry hint is when the oldest surviving event
	// leaves the window.
	oldest, err := l.redis.ZRangeWithScores(ctx, key, 0, 0).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errRateLimiterUnavailable, err)
	}

	retryAfter := l.config.Window
	if len(oldest) == 1 {
		oldestAt := time.UnixMilli(int64(oldest[0].Score))
		retryAfter = oldestAt.Add(l.config.Window).Sub(now)
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
	}

	return retryAfter, errRequestRateLimited
}

func (l *requestLimiter) recordEvent(ctx context.Context, key string) error {
	now := time.Now()

	err := l.redis.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: uuid.NewString(),
	}).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", errRateLimiterUnavailable, err)
	}

	// The set only needs to outlive its newest member's window.
	if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
		return fmt.Errorf("%w: %v", errRateLimiterUnavailable, err)
	}

	return nil
}
