package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds limiter tuning parameters. A zero Max disables that limit.
type Config struct {
	MaxRefreshAttempts int
	RefreshWindow      time.Duration
	MaxLoginFailures   int
	LoginWindow        time.Duration
}

// Limiter enforces the refresh throttle per device lineage and the failed
// login budget per identifier, using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckRefresh counts a refresh attempt for the device and returns
// ErrRateLimited once the window budget is exhausted.
func (l *Limiter) CheckRefresh(ctx context.Context, userID, deviceID string) error {
	if l == nil || l.config.MaxRefreshAttempts <= 0 {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, refreshKey(userID, deviceID), l.config.RefreshWindow)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxRefreshAttempts) {
		return ErrRateLimited
	}

	return nil
}

// CheckLogin returns ErrRateLimited when the identifier already used up its
// failed login budget. It does not count anything.
func (l *Limiter) CheckLogin(ctx context.Context, identifier string) error {
	if l == nil || l.config.MaxLoginFailures <= 0 {
		return nil
	}

	count, err := l.redis.Get(ctx, loginKey(identifier)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count >= int64(l.config.MaxLoginFailures) {
		return ErrRateLimited
	}

	return nil
}

// RecordLoginFailure counts one failed login for the identifier.
func (l *Limiter) RecordLoginFailure(ctx context.Context, identifier string) error {
	if l == nil || l.config.MaxLoginFailures <= 0 {
		return nil
	}

	_, err := l.incrementWithTTL(ctx, loginKey(identifier), l.config.LoginWindow)
	return err
}

// ResetLogin clears the failure counter after a successful login.
func (l *Limiter) ResetLogin(ctx context.Context, identifier string) error {
	if l == nil || l.config.MaxLoginFailures <= 0 {
		return nil
	}

	if err := l.redis.Del(ctx, loginKey(identifier)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
