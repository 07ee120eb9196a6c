package ratelimit

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"
)

// redis_rate stores its counters under its own prefix, so deletion
// patterns must include it or they match nothing.
const redisRateKeyPrefix = "rate:"

func ipKeyPattern(ip string) string {
	return fmt.Sprintf("%sratelimit:*:%s", redisRateKeyPrefix, ip)
}

func allKeysPattern() string {
	return redisRateKeyPrefix + "ratelimit:*"
}

// InvalidateIP removes all rate limit keys for an IP address. Used
// for manual resets.
func (rl *RateLimiter) InvalidateIP(ctx context.Context, ip string) error {
	if !rl.redisClient.IsEnabled() {
		rl.fallbackMutex.Lock()
		defer rl.fallbackMutex.Unlock()

		for _, scope := range []string{"ip", "analyze", "train"} {
			delete(rl.fallbackLimiters, fmt.Sprintf("ratelimit:%s:%s", scope, ip))
		}
		slog.Info("Invalidated IP rate limits (in-memory)", "ip", ip)
		return nil
	}

	return rl.deleteByPattern(ctx, ipKeyPattern(ip))
}

// InvalidateAll removes all rate limit keys. Emergency use only.
func (rl *RateLimiter) InvalidateAll(ctx context.Context) error {
	if !rl.redisClient.IsEnabled() {
		rl.fallbackMutex.Lock()
		defer rl.fallbackMutex.Unlock()

		count := len(rl.fallbackLimiters)
		rl.fallbackLimiters = make(map[string]*rate.Limiter)
		slog.Warn("Invalidated all rate limits (in-memory)", "count", count)
		return nil
	}

	slog.Warn("Invalidating ALL rate limits")
	return rl.deleteByPattern(ctx, allKeysPattern())
}

// deleteByPattern deletes matching Redis keys using SCAN.
func (rl *RateLimiter) deleteByPattern(ctx context.Context, pattern string) error {
	client := rl.redisClient.GetClient()

	var cursor uint64
	var deletedCount int

	for {
		keys, nextCursor, err := client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan keys: %w", err)
		}

		if len(keys) > 0 {
			deleted, err := client.Del(ctx, keys...).Result()
			if err != nil {
				return fmt.Errorf("failed to delete keys: %w", err)
			}
			deletedCount += int(deleted)
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	slog.Info("Deleted rate limit keys by pattern", "pattern", pattern, "count", deletedCount)
	return nil
}
