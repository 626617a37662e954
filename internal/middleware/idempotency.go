package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	idempotencyPrefix    = "edu_auth:idem:v1:"
	inProgressMarker     = "__in_progress__"
	idempotencyTimeout   = 2 * time.Second
	maxIdempotencyKeyLen = 128
)

type replayedResponse struct {
	Fingerprint string `json:"fingerprint"`
	Status      int    `json:"status"`
	Body        []byte `json:"body"`
	ContentType string `json:"contentType"`
}

// requestFingerprint binds a stored response to the request that produced
// it, so a reused key cannot pull a response for a different payload.
func requestFingerprint(c *fiber.Ctx) string {
	sum := sha256.New()
	sum.Write([]byte(strings.ToUpper(c.Method())))
	sum.Write([]byte{0})
	sum.Write([]byte(c.Path()))
	sum.Write([]byte{0})
	sum.Write(c.Body())
	return hex.EncodeToString(sum.Sum(nil))
}

// Idempotency replays the first response for a repeated Idempotency-Key on
// unsafe methods. Requests without the header pass straight through, so
// clients opt in. Only successful responses are kept; a failed attempt
// releases the key. A key reused with a different method, path or body is
// rejected with 422. Mount it per route on endpoints whose response does not
// depend on a secret in the request.
func Idempotency(cache *redis.Client, ttl time.Duration, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		switch strings.ToUpper(c.Method()) {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}

		key := strings.TrimSpace(c.Get(idempotencyKeyHeader))
		if key == "" {
			return c.Next()
		}
		if len(key) > maxIdempotencyKeyLen {
			return fiber.NewError(fiber.StatusBadRequest, "Idempotency-Key is too long")
		}
		cacheKey := idempotencyPrefix + c.Path() + ":" + key
		fingerprint := requestFingerprint(c)

		ctx, cancel := context.WithTimeout(context.Background(), idempotencyTimeout)
		defer cancel()

		reserved, err := cache.SetNX(ctx, cacheKey, inProgressMarker, ttl).Result()
		if err != nil {
			logger.Error("idempotency reservation failed", slog.String("key", key), slog.Any("error", err))
			return fiber.NewError(fiber.StatusServiceUnavailable, "idempotency store unavailable")
		}
		if !reserved {
			return replay(c, cache, ctx, cacheKey, key, fingerprint, logger)
		}

		if err := c.Next(); err != nil {
			release(cache, cacheKey)
			return err
		}
		status := c.Response().StatusCode()
		if status >= fiber.StatusBadRequest {
			release(cache, cacheKey)
			return nil
		}

		payload, err := json.Marshal(replayedResponse{
			Fingerprint: fingerprint,
			Status:      status,
			Body:        append([]byte(nil), c.Response().Body()...),
			ContentType: string(c.Response().Header.ContentType()),
		})
		if err != nil {
			release(cache, cacheKey)
			return err
		}

		persistCtx, persistCancel := context.WithTimeout(context.Background(), idempotencyTimeout)
		defer persistCancel()
		if err := cache.Set(persistCtx, cacheKey, payload, ttl).Err(); err != nil {
			logger.Warn("failed to persist idempotent response", slog.String("key", key), slog.Any("error", err))
			release(cache, cacheKey)
		}
		return nil
	}
}

func replay(c *fiber.Ctx, cache *redis.Client, ctx context.Context, cacheKey, key, fingerprint string, logger *slog.Logger) error {
	cached, err := cache.Get(ctx, cacheKey).Result()
	if errors.Is(err, redis.Nil) || cached == inProgressMarker {
		return fiber.NewError(fiber.StatusConflict, "duplicate request currently processing")
	}
	if err != nil {
		logger.Error("idempotency lookup failed", slog.String("key", key), slog.Any("error", err))
		return fiber.NewError(fiber.StatusServiceUnavailable, "idempotency store unavailable")
	}

	var stored replayedResponse
	if err := json.Unmarshal([]byte(cached), &stored); err != nil {
		logger.Warn("failed to decode stored idempotent response", slog.String("key", key), slog.Any("error", err))
		return fiber.NewError(fiber.StatusConflict, "duplicate request")
	}
	if stored.Fingerprint != fingerprint {
		return fiber.NewError(fiber.StatusUnprocessableEntity, "Idempotency-Key was used with a different request")
	}
	if stored.ContentType != "" {
		c.Set(fiber.HeaderContentType, stored.ContentType)
	}
	c.Set("Idempotent-Replayed", "true")
	return c.Status(stored.Status).Send(stored.Body)
}

func release(cache *redis.Client, cacheKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), idempotencyTimeout)
	defer cancel()
	cache.Del(ctx, cacheKey)
}
