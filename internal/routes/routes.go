package routes

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/edu-api/edu_auth/internal/auth"
	"github.com/edu-api/edu_auth/internal/config"
	"github.com/edu-api/edu_auth/internal/identity"
	"github.com/edu-api/edu_auth/internal/metrics"
	"github.com/edu-api/edu_auth/internal/middleware"
	"github.com/edu-api/edu_auth/internal/notification"
	"github.com/edu-api/edu_auth/internal/otp"
	"github.com/edu-api/edu_auth/internal/ratelimit"
	"github.com/edu-api/edu_auth/internal/registration"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	SQLite   *sql.DB
	Cache    *redis.Client
	Logger   *slog.Logger
	Metrics  *metrics.Recorder
	Notifier notification.Notifier
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	if d.Cfg.IsDev() {
		app.Use(logger.New(logger.Config{
			Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
			TimeFormat: "15:04:05",
			TimeZone:   "Local",
		}))
	}
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)
	app.Get("/metrics", adaptor.HTTPHandler(d.Metrics.Handler()))

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	identityRepo := identityRepository(d)
	notifier, err := notifierFor(d)
	if err != nil {
		return err
	}
	issuer := otp.NewIssuer(notifier, d.Cfg.OTPLength, d.Logger)
	authSvc := auth.NewService(d.Cfg, identityRepo)
	registrationSvc := registration.NewService(identityRepo, issuer, authSvc, d.Metrics, d.Logger)

	otpLimit := middleware.OTPRateLimit(middleware.OTPRateLimitConfig{
		Cache:     d.Cache,
		Fallback:  ratelimit.PerMinute(d.Cfg.OTPSendsPerMin),
		MaxPerMin: d.Cfg.OTPSendsPerMin,
		Metrics:   d.Metrics,
		Logger:    d.Logger,
	})
	RegisterAuthRoutes(app, AuthHandlers{
		Registration: registration.NewHandler(registrationSvc),
		Session:      auth.NewHandler(authSvc, identityRepo),
		OTPLimit:     otpLimit,
		Idempotent:   middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger),
		RequireToken: middleware.JWTAuth(authSvc),
	})
	return nil
}

// identityRepository picks the identity store: Postgres, then SQLite, then
// the in-process store used for local runs.
func identityRepository(d Deps) identity.Repository {
	switch {
	case d.DB != nil:
		return identity.NewPostgresRepository(d.DB)
	case d.SQLite != nil:
		return identity.NewSQLiteRepository(d.SQLite)
	default:
		d.Logger.Warn("no identity store configured, identities live in memory")
		return identity.NewMemoryRepository()
	}
}

func notifierFor(d Deps) (notification.Notifier, error) {
	if d.Notifier != nil {
		return d.Notifier, nil
	}
	if d.Cfg.SMSAccountSID == "" {
		return notification.NewLoggerNotifier(d.Logger, d.Cfg.IsDev()), nil
	}
	sms, err := notification.NewSMSNotifier(notification.SMSConfig{
		BaseURL:    d.Cfg.SMSGatewayURL,
		AccountSID: d.Cfg.SMSAccountSID,
		AuthToken:  d.Cfg.SMSAuthToken,
		Sender:     d.Cfg.SMSSender,
	})
	if err != nil {
		return nil, fmt.Errorf("configure sms notifier: %w", err)
	}
	return sms, nil
}
