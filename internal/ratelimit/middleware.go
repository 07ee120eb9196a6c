package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// IPRateLimitMiddleware applies the general per-IP limit to every
// request.
func (rl *RateLimiter) IPRateLimitMiddleware() gin.HandlerFunc {
	return rl.middleware("ip", func(ctx context.Context, ip string) (*Result, error) {
		return rl.AllowIP(ctx, ip)
	})
}

// AnalyzeRateLimitMiddleware applies the analyze endpoint limit.
func (rl *RateLimiter) AnalyzeRateLimitMiddleware() gin.HandlerFunc {
	return rl.middleware("analyze", func(ctx context.Context, ip string) (*Result, error) {
		return rl.AllowAnalyze(ctx, ip)
	})
}

// TrainRateLimitMiddleware applies the train endpoint limit.
func (rl *RateLimiter) TrainRateLimitMiddleware() gin.HandlerFunc {
	return rl.middleware("train", func(ctx context.Context, ip string) (*Result, error) {
		return rl.AllowTrain(ctx, ip)
	})
}

func (rl *RateLimiter) middleware(scope string, check func(context.Context, string) (*Result, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()

		result, err := check(c.Request.Context(), ip)
		if err != nil {
			// Never block a request on limiter failure.
			slog.Error("Rate limit check failed", "scope", scope, "ip", ip, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			if rl.metrics != nil {
				rl.metrics.IncrementRateLimitBlock()
			}
			c.Header("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       fmt.Sprintf("rate limit exceeded: %s", scope),
				"message":     fmt.Sprintf("limit of %d requests exceeded, retry after %ds", result.Limit, int(result.RetryAfter.Seconds())),
				"retry_after": int(result.RetryAfter.Seconds()),
				"reset_at":    result.ResetAt.Unix(),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// HandleRateLimitStatus reports the configured limits for the
// requesting IP.
func (rl *RateLimiter) HandleRateLimitStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"ip": c.ClientIP(),
			"limits": gin.H{
				"ip_per_minute":      rl.config.IPLimitPerMin,
				"analyze_per_minute": rl.config.AnalyzePerMin,
				"train_per_hour":     rl.config.TrainPerHour,
			},
			"stats":     rl.GetStats(),
			"timestamp": time.Now().Format(time.RFC3339),
		})
	}
}

// HandleInvalidateIP clears all rate limit state for an IP.
func (rl *RateLimiter) HandleInvalidateIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.Param("ip")
		if ip == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "IP address is required"})
			return
		}

		if err := rl.InvalidateIP(c.Request.Context(), ip); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "failed to invalidate IP rate limits",
				"details": err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message":   "IP rate limits invalidated",
			"ip":        ip,
			"timestamp": time.Now().Format(time.RFC3339),
		})
	}
}
