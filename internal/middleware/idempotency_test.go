package middleware

import (
	"io"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/edu-api/edu_auth/internal/logging"
)

func setupIdempotentApp(t *testing.T, status int) (*fiber.App, *int32) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		cache.Close()
		mr.Close()
	})

	var calls int32
	app := fiber.New()
	app.Use(Idempotency(cache, time.Minute, logging.Discard()))
	app.Post("/auth/step/set-role", func(c *fiber.Ctx) error {
		n := atomic.AddInt32(&calls, 1)
		return c.Status(status).JSON(fiber.Map{"call": n})
	})
	return app, &calls
}

func postWithKey(t *testing.T, app *fiber.App, key string) (int, string) {
	t.Helper()
	return postBodyWithKey(t, app, key, "{}")
}

func postBodyWithKey(t *testing.T, app *fiber.App, key, body string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/auth/step/set-role", strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if key != "" {
		req.Header.Set(idempotencyKeyHeader, key)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(respBody)
}

func TestIdempotencyIsOptIn(t *testing.T) {
	app, calls := setupIdempotentApp(t, fiber.StatusOK)

	postWithKey(t, app, "")
	postWithKey(t, app, "")
	if *calls != 2 {
		t.Fatalf("requests without a key must reach the handler, got %d calls", *calls)
	}
}

func TestIdempotencyReplaysSuccess(t *testing.T) {
	app, calls := setupIdempotentApp(t, fiber.StatusOK)

	status, first := postWithKey(t, app, "abc123")
	if status != fiber.StatusOK {
		t.Fatalf("expected 200 got %d", status)
	}
	status, second := postWithKey(t, app, "abc123")
	if status != fiber.StatusOK {
		t.Fatalf("expected cached 200 got %d", status)
	}
	if first != second {
		t.Fatalf("expected replayed body %s got %s", first, second)
	}
	if *calls != 1 {
		t.Fatalf("handler should run once, ran %d times", *calls)
	}
}

func TestIdempotencyReleasesFailedAttempts(t *testing.T) {
	app, calls := setupIdempotentApp(t, fiber.StatusConflict)

	postWithKey(t, app, "retry-me")
	postWithKey(t, app, "retry-me")
	if *calls != 2 {
		t.Fatalf("failed responses must not be replayed, got %d calls", *calls)
	}
}

func TestIdempotencyRejectsKeyReuseWithDifferentBody(t *testing.T) {
	app, calls := setupIdempotentApp(t, fiber.StatusOK)

	if status, _ := postBodyWithKey(t, app, "shared", `{"phone":"+15550001"}`); status != fiber.StatusOK {
		t.Fatalf("expected 200 got %d", status)
	}
	status, body := postBodyWithKey(t, app, "shared", `{"phone":"+15550002"}`)
	if status != fiber.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for a different body, got %d %s", status, body)
	}
	if strings.Contains(body, `"call"`) {
		t.Fatalf("stored response leaked to a different request: %s", body)
	}
	if *calls != 1 {
		t.Fatalf("handler should run once, ran %d times", *calls)
	}
}
