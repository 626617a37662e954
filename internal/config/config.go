package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	minOTPLength = 4
	maxOTPLength = 10
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string        `env:"APP_NAME" envDefault:"EduAuth"`
	AppEnv         string        `env:"APP_ENV" envDefault:"development"`
	Port           string        `env:"PORT" envDefault:"3333"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL    string        `env:"DATABASE_URL"`
	SQLitePath     string        `env:"SQLITE_PATH"`
	RedisURL       string        `env:"REDIS_URL"`
	ShutdownPeriod time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`

	AccessSecret    string        `env:"JWT_ACCESS_SECRET"`
	AccessTokenTTL  time.Duration `env:"JWT_ACCESS_EXPIRES_IN" envDefault:"1h"`
	RefreshSecret   string        `env:"JWT_REFRESH_SECRET"`
	RefreshTokenTTL time.Duration `env:"JWT_REFRESH_EXPIRES_IN" envDefault:"168h"`

	OTPLength      int    `env:"OTP_LENGTH" envDefault:"6"`
	OTPSendsPerMin int    `env:"OTP_RATE_LIMIT_PER_MINUTE" envDefault:"5"`
	SMSGatewayURL  string `env:"SMS_GATEWAY_URL"`
	SMSAccountSID  string `env:"SMS_ACCOUNT_SID"`
	SMSAuthToken   string `env:"SMS_AUTH_TOKEN"`
	SMSSender      string `env:"SMS_SENDER"`
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks invariants the rest of the service relies on.
func (c Config) Validate() error {
	if c.AccessSecret == "" {
		return errors.New("JWT_ACCESS_SECRET must be set")
	}
	if c.RefreshSecret == "" {
		return errors.New("JWT_REFRESH_SECRET must be set")
	}
	if c.AccessSecret == c.RefreshSecret {
		return errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return errors.New("token lifetimes must be positive")
	}
	if c.RefreshTokenTTL <= c.AccessTokenTTL {
		return fmt.Errorf("JWT_REFRESH_EXPIRES_IN (%s) must exceed JWT_ACCESS_EXPIRES_IN (%s)", c.RefreshTokenTTL, c.AccessTokenTTL)
	}
	if c.OTPLength < minOTPLength || c.OTPLength > maxOTPLength {
		return fmt.Errorf("OTP_LENGTH must be between %d and %d", minOTPLength, maxOTPLength)
	}

	if !c.IsDev() {
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", c.AppEnv)
		}
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", c.AppEnv)
		}
	}
	return nil
}

// IsDev reports whether the service runs in a local/development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}
