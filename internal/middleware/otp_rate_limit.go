package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/edu-api/edu_auth/internal/metrics"
	"github.com/edu-api/edu_auth/internal/ratelimit"
)

const otpRateLimitPrefix = "rl:otp:"

// OTPRateLimitConfig wires the per-phone OTP send limit.
type OTPRateLimitConfig struct {
	Cache     *redis.Client
	Fallback  *ratelimit.KeyLimiter
	MaxPerMin int
	Metrics   *metrics.Recorder
	Logger    *slog.Logger
}

// OTPRateLimit caps OTP sends per phone (or client IP when the body has no
// phone) using a one-minute Redis window. Without Redis, or when Redis
// fails, the in-process limiter decides.
func OTPRateLimit(cfg OTPRateLimitConfig) fiber.Handler {
	if cfg.MaxPerMin <= 0 {
		cfg.MaxPerMin = 5
	}
	if cfg.Fallback == nil {
		cfg.Fallback = ratelimit.PerMinute(cfg.MaxPerMin)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return func(c *fiber.Ctx) error {
		var req struct {
			Phone string `json:"phone"`
		}
		_ = c.BodyParser(&req)
		key := strings.TrimSpace(req.Phone)
		if key == "" {
			key = c.IP()
		}

		if !allowOTP(c, cfg, key) {
			cfg.Metrics.RateLimited()
			return fiber.NewError(http.StatusTooManyRequests, "too many OTP requests, try again later")
		}
		return c.Next()
	}
}

func allowOTP(c *fiber.Ctx, cfg OTPRateLimitConfig, key string) bool {
	if cfg.Cache == nil {
		return cfg.Fallback.Allow(key, time.Now())
	}
	ctx := c.UserContext()
	redisKey := otpRateLimitPrefix + key

	// EXPIRE NX in the same transaction also repairs a counter left
	// without a TTL, so a phone is never locked out for good.
	var incr *redis.IntCmd
	_, err := cfg.Cache.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.ExpireNX(ctx, redisKey, time.Minute)
		return nil
	})
	if err != nil {
		cfg.Logger.Warn("otp rate limit store unavailable", slog.Any("error", err))
		return cfg.Fallback.Allow(key, time.Now())
	}
	return incr.Val() <= int64(cfg.MaxPerMin)
}
