package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

const healthTimeout = 2 * time.Second

// RegisterHealthRoutes adds the readiness endpoint. Only configured
// backends are probed and reported.
func RegisterHealthRoutes(app *fiber.App, d Deps) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), healthTimeout)
		defer cancel()

		checks := fiber.Map{}
		healthy := true
		probe := func(name string, ping func(context.Context) error) {
			if err := ping(ctx); err != nil {
				checks[name] = err.Error()
				healthy = false
				return
			}
			checks[name] = "ok"
		}

		if d.DB != nil {
			probe("postgres", d.DB.Ping)
		}
		if d.SQLite != nil {
			probe("sqlite", d.SQLite.PingContext)
		}
		if d.Cache != nil {
			probe("redis", func(ctx context.Context) error { return d.Cache.Ping(ctx).Err() })
		}

		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{
			"status":    checks,
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}
