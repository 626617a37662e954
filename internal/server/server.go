package server

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/edu-api/edu_auth/internal/config"
	"github.com/edu-api/edu_auth/internal/metrics"
	"github.com/edu-api/edu_auth/internal/routes"
)

// Server wraps the Fiber application and shared dependencies.
type Server struct {
	app *fiber.App
	cfg config.Config
}

// Backends are the optional stores the server may be wired to.
type Backends struct {
	DB     *pgxpool.Pool
	SQLite *sql.DB
	Cache  *redis.Client
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
func New(cfg config.Config, backends Backends, rec *metrics.Recorder, logger *slog.Logger) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorHandler: ErrorHandler(logger),
	})

	err := routes.Setup(app, routes.Deps{
		Cfg:     cfg,
		DB:      backends.DB,
		SQLite:  backends.SQLite,
		Cache:   backends.Cache,
		Logger:  logger,
		Metrics: rec,
	})
	if err != nil {
		return nil, err
	}

	return &Server{app: app, cfg: cfg}, nil
}

// ErrorHandler renders every error as {statusCode, message}. Anything that
// is not a fiber.Error is logged and hidden behind a generic 500.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := http.StatusInternalServerError
		message := http.StatusText(status)

		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
			message = fe.Message
		} else if logger != nil {
			logger.ErrorContext(c.UserContext(), "unhandled error", "path", c.Path(), "error", err)
		}

		return c.Status(status).JSON(fiber.Map{
			"statusCode": status,
			"message":    message,
		})
	}
}

// App exposes the underlying Fiber application, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
